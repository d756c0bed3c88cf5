package zbuild

import (
	"bytes"
	"testing"

	"go.zmach.net/zmach/vm"
	"go.zmach.net/zmach/zcode"
)

func testImage(t *testing.T) []byte {
	t.Helper()
	b := New()
	b.Globals[0] = 0xCAFE
	b.Defaults[0] = 11
	if _, err := b.AddObject(Object{Name: "thing", Props: map[byte][]byte{4: {9}}}); err != nil {
		t.Fatalf("add object: %v", err)
	}
	for _, w := range []string{"zebra", "apple", "mango"} {
		if err := b.AddWord(w); err != nil {
			t.Fatalf("add word: %v", err)
		}
	}
	if _, err := b.AddAbbrev("the "); err != nil {
		t.Fatalf("add abbrev: %v", err)
	}
	if _, err := b.AddRoutine([]uint16{1, 2}, Short0OP(0x0)); err != nil {
		t.Fatalf("add routine: %v", err)
	}
	if err := b.SetMain(Short0OP(0xA)); err != nil {
		t.Fatalf("set main: %v", err)
	}
	img, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return img
}

func TestBuiltImageLoads(t *testing.T) {
	img := testImage(t)
	m, err := vm.New(img, vm.Config{})
	if err != nil {
		t.Fatalf("built image rejected: %v", err)
	}
	if v, _ := m.Global(0); v != 0xCAFE {
		t.Errorf("global 0 = 0x%04x, want 0xCAFE", v)
	}
	ok, err := m.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("checksum does not verify")
	}
}

func TestDictionaryEntriesSorted(t *testing.T) {
	img := testImage(t)
	dictAddr := zcode.Endian.Uint16(img[zcode.HdrDictionary:])
	numSeps := img[dictAddr]
	p := uint32(dictAddr) + 1 + uint32(numSeps)
	entryLen := img[p]
	count := zcode.Endian.Uint16(img[p+1:])
	if count != 3 {
		t.Fatalf("dictionary count = %d, want 3", count)
	}
	entries := p + 3
	var prev []byte
	for i := uint32(0); i < uint32(count); i++ {
		e := img[entries+i*uint32(entryLen):][:zcode.DictEntryCodes]
		if prev != nil && bytes.Compare(prev, e) >= 0 {
			t.Fatalf("entry %d not in sorted order", i)
		}
		prev = e
	}
}

func TestRoutineAddressesArePacked(t *testing.T) {
	b := New()
	r1, err := b.AddRoutine(nil, Short0OP(0x0))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := b.AddRoutine([]uint16{7}, Short0OP(0x0))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SetMain(Short0OP(0xA)); err != nil {
		t.Fatal(err)
	}
	img, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, r := range []uint16{r1, r2} {
		addr := zcode.PackedAddress(r)
		if addr >= uint32(len(img)) {
			t.Fatalf("routine 0x%04x unpacks outside the image", r)
		}
		if img[addr] > zcode.MaxLocals {
			t.Errorf("routine at 0x%05x declares %d locals", addr, img[addr])
		}
	}
	// Routine 1 is a header byte and a one-byte body, so routine 2
	// starts two bytes later.
	if zcode.PackedAddress(r2) != zcode.PackedAddress(r1)+2 {
		t.Errorf("routine 2 at 0x%05x, want 2 bytes past routine 1 (0x%05x)",
			zcode.PackedAddress(r2), zcode.PackedAddress(r1))
	}
}

func TestMutationAfterFreezeRejected(t *testing.T) {
	b := New()
	if _, err := b.AddRoutine(nil, Short0OP(0x0)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddObject(Object{Name: "late"}); err == nil {
		t.Error("object added after code placement")
	}
	if err := b.AddWord("late"); err == nil {
		t.Error("word added after code placement")
	}
	if _, err := b.AddAbbrev("late"); err == nil {
		t.Error("abbreviation added after code placement")
	}
}

func TestBranchEncoding(t *testing.T) {
	if got := Branch(true, 10); len(got) != 1 || got[0] != 0xCA {
		t.Errorf("short branch = %#v, want [0xCA]", got)
	}
	if got := Branch(false, 10); got[0]&0x80 != 0 {
		t.Error("branch-on-false has the polarity bit set")
	}
	long := Branch(true, 200)
	if len(long) != 2 {
		t.Fatalf("offset 200 needs the two-byte form")
	}
	raw := uint16(long[0]&0x3F)<<8 | uint16(long[1])
	if raw != 200 {
		t.Errorf("long branch offset = %d, want 200", raw)
	}
	neg := Branch(true, -4)
	raw = uint16(neg[0]&0x3F)<<8 | uint16(neg[1])
	if raw != 0x3FFC {
		t.Errorf("negative offset raw = 0x%04x, want 0x3FFC", raw)
	}
}

func TestVariableFormTypeByte(t *testing.T) {
	ins := Var(0x00, Large(0x1234), Small(7))
	if ins[0] != 0xE0 {
		t.Errorf("opcode byte = 0x%02x, want 0xE0", ins[0])
	}
	// Large, small, omitted, omitted: 00 01 11 11.
	if ins[1] != 0x1F {
		t.Errorf("type byte = 0x%02x, want 0x1F", ins[1])
	}
	if ins[2] != 0x12 || ins[3] != 0x34 || ins[4] != 7 {
		t.Errorf("operand bytes = % x", ins[2:])
	}
}
