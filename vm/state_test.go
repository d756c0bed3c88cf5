package vm

import (
	"bytes"
	"errors"
	"testing"

	"go.zmach.net/zmach/zbuild"
)

// saveFixture: save, then print a marker telling which leg ran.
// Restore lands on the save branch and takes it, so a restored game
// prints the success marker again.
func saveProgram() []byte {
	return zbuild.Join(
		zbuild.Short0OP(0x5), zbuild.Branch(true, 8), // save
		zbuild.Short0OP(0x2), zbuild.ZText("miss"), // 6 bytes
		zbuild.Short0OP(0xA),
		zbuild.Short0OP(0x2), zbuild.ZText("okay"),
		zbuild.Short0OP(0xA),
	)
}

func TestSaveBranchesOnHandlerOutcome(t *testing.T) {
	t.Run("no handler", func(t *testing.T) {
		m, out := buildMachine(t, Config{}, func(b *zbuild.Builder) {
			b.SetMain(saveProgram())
		})
		if err := m.Run(); err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.String() != "miss" {
			t.Errorf("printed %q, want %q", out.String(), "miss")
		}
	})
	t.Run("failing handler", func(t *testing.T) {
		m, out := buildMachine(t, Config{}, func(b *zbuild.Builder) {
			b.SetMain(saveProgram())
		})
		m.SetSaveHandler(func(*Snapshot) error { return errors.New("disk full") })
		if err := m.Run(); err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.String() != "miss" {
			t.Errorf("printed %q, want %q", out.String(), "miss")
		}
	})
	t.Run("working handler", func(t *testing.T) {
		m, out := buildMachine(t, Config{}, func(b *zbuild.Builder) {
			b.SetMain(saveProgram())
		})
		m.SetSaveHandler(func(*Snapshot) error { return nil })
		if err := m.Run(); err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.String() != "okay" {
			t.Errorf("printed %q, want %q", out.String(), "okay")
		}
	})
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	var saved *Snapshot
	build := func(b *zbuild.Builder) { b.SetMain(saveProgram()) }

	m1, out1 := buildMachine(t, Config{}, build)
	m1.SetSaveHandler(func(s *Snapshot) error { saved = s; return nil })
	if err := m1.Run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if out1.String() != "okay" || saved == nil {
		t.Fatalf("save leg broken: output %q", out1.String())
	}

	// Round-trip the snapshot through its wire encoding.
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, saved); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	loaded, err := ReadSnapshot(&buf)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	// A fresh machine restoring this snapshot resumes at the save
	// branch and prints the success marker.
	m2, out2 := buildMachine(t, Config{}, build)
	if err := m2.ApplySnapshot(loaded); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}
	if err := m2.branch(true); err != nil {
		t.Fatalf("take saved branch: %v", err)
	}
	if err := m2.Run(); err != nil {
		t.Fatalf("restored run: %v", err)
	}
	if out2.String() != "okay" {
		t.Errorf("restored run printed %q, want %q", out2.String(), "okay")
	}
}

func TestRestoreOpcodeResumes(t *testing.T) {
	var saved *Snapshot
	build := func(b *zbuild.Builder) { b.SetMain(saveProgram()) }

	m1, _ := buildMachine(t, Config{}, build)
	m1.SetSaveHandler(func(s *Snapshot) error { saved = s; return nil })
	if err := m1.Run(); err != nil {
		t.Fatalf("save run: %v", err)
	}

	// Same image, different main entry: restore immediately.
	m2, out2 := buildMachine(t, Config{}, build)
	m2.SetRestoreHandler(func() (*Snapshot, error) { return saved, nil })
	// Overwrite the program with: restore ?miss-leg, then markers.
	// Building a second story just for the restore program keeps the
	// identity fields equal since the builder is deterministic.
	restoreMain := zbuild.Join(
		zbuild.Short0OP(0x6), zbuild.Branch(true, 8), // restore
		zbuild.Short0OP(0x2), zbuild.ZText("miss"),
		zbuild.Short0OP(0xA),
		zbuild.Short0OP(0x2), zbuild.ZText("okay"),
		zbuild.Short0OP(0xA),
	)
	copy(m2.mem.data[m2.header.InitialPC:], restoreMain)
	if err := m2.Run(); err != nil {
		t.Fatalf("restore run: %v", err)
	}
	// The restore succeeds, so execution continues from the *saved*
	// machine's branch specifier and prints the success marker.
	if out2.String() != "okay" {
		t.Errorf("restore run printed %q, want %q", out2.String(), "okay")
	}
}

func TestApplySnapshotRejectsWrongStory(t *testing.T) {
	var saved *Snapshot
	m1, _ := buildMachine(t, Config{}, func(b *zbuild.Builder) {
		b.SetMain(saveProgram())
	})
	m1.SetSaveHandler(func(s *Snapshot) error { saved = s; return nil })
	if err := m1.Run(); err != nil {
		t.Fatalf("save run: %v", err)
	}

	// A different release is a different story.
	m2, _ := buildMachine(t, Config{}, func(b *zbuild.Builder) {
		b.Release = 2
		b.SetMain(saveProgram())
	})
	wantFault(t, m2.ApplySnapshot(saved), FaultHost)
}

func TestApplySnapshotRejectsBadSchema(t *testing.T) {
	m, _ := buildMachine(t, Config{}, func(b *zbuild.Builder) {
		b.SetMain(zbuild.Short0OP(0xA))
	})
	s := m.Snapshot()
	s.Schema = 99
	wantFault(t, m.ApplySnapshot(s), FaultHost)
}

func TestSnapshotCarriesPendingRead(t *testing.T) {
	m1 := sreadFixture(t, gameWords)
	status, err := m1.RunBatch(100)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if status != AwaitingInput {
		t.Fatalf("status = %v, want %v", status, AwaitingInput)
	}
	s := m1.Snapshot()

	// A machine restored mid-read is still awaiting input and accepts
	// the line as if it had suspended itself.
	m2 := sreadFixture(t, gameWords)
	if err := m2.ApplySnapshot(s); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if status, err := m2.RunBatch(100); err != nil || status != AwaitingInput {
		t.Fatalf("restored status = %v, %v; want %v", status, err, AwaitingInput)
	}
	if err := m2.Feed("look"); err != nil {
		t.Fatalf("restored machine rejected the pending input: %v", err)
	}
	if status, err := m2.RunBatch(100); err != nil || status != Quit {
		t.Fatalf("status after feed = %v, %v; want %v", status, err, Quit)
	}
	count, err := m2.ImageByte(bufParse + 1)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("parsed %d tokens, want 1", count)
	}
	lookAddr, _ := m2.Lookup("look")
	if addr, _ := m2.ImageWord(bufParse + 2); addr != lookAddr {
		t.Errorf("token address = 0x%04x, want 0x%04x", addr, lookAddr)
	}
}

func TestSnapshotCarriesRandomSeed(t *testing.T) {
	setup := func(b *zbuild.Builder) {
		b.SetMain(zbuild.Join(
			zbuild.Var(0x07, zbuild.Large(1000)), zbuild.Store(0x10),
			zbuild.Short0OP(0xA),
		))
	}
	m1, _ := buildMachine(t, Config{Seed: 9}, setup)
	s := m1.Snapshot()

	// A machine seeded differently draws the saved machine's sequence
	// once the snapshot is applied.
	m2, _ := buildMachine(t, Config{Seed: 1}, setup)
	if err := m2.ApplySnapshot(s); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := m2.Run(); err != nil {
		t.Fatalf("restored run: %v", err)
	}
	m3, _ := buildMachine(t, Config{Seed: 9}, setup)
	if err := m3.Run(); err != nil {
		t.Fatalf("reference run: %v", err)
	}
	if a, b := mustGlobal(t, m2, 0), mustGlobal(t, m3, 0); a != b {
		t.Errorf("restored draw %d, want the saved seed's %d", a, b)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	m, _ := buildMachine(t, Config{}, func(b *zbuild.Builder) {
		b.Globals[0] = 7
		b.SetMain(zbuild.Short0OP(0xA))
	})
	s := m.Snapshot()
	// Mutating the machine afterwards must not touch the snapshot.
	if err := m.writeVariable(0x10, 999); err != nil {
		t.Fatal(err)
	}
	m2, _ := buildMachine(t, Config{}, func(b *zbuild.Builder) {
		b.Globals[0] = 7
		b.SetMain(zbuild.Short0OP(0xA))
	})
	if err := m2.ApplySnapshot(s); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := mustGlobal(t, m2, 0); got != 7 {
		t.Errorf("snapshot leaked later mutations: global 0 = %d", got)
	}
}
