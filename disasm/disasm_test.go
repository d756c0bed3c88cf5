package disasm

import (
	"strings"
	"testing"

	"go.zmach.net/zmach/zbuild"
	"go.zmach.net/zmach/zcode"
)

func buildListing(t *testing.T, main []byte) *Disassembler {
	t.Helper()
	b := zbuild.New()
	if err := b.SetMain(main); err != nil {
		t.Fatalf("set main: %v", err)
	}
	img, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	d, err := New(img)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return d
}

func TestDecodeLongForm(t *testing.T) {
	d := buildListing(t, zbuild.Join(
		zbuild.Long2OP(0x14, zbuild.Small(3), zbuild.Variable(0x10)), zbuild.Store(0),
		zbuild.Short0OP(0xA),
	))
	in, err := d.Decode(d.Entry())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Op.Name != "add" || in.Count != zcode.Count2OP {
		t.Fatalf("decoded %q %v, want add 2OP", in.Op.Name, in.Count)
	}
	if len(in.Args) != 2 || in.Args[0].Value != 3 || in.Args[1].Type != zcode.OperandVariable {
		t.Errorf("args = %+v", in.Args)
	}
	if in.Store != 0 {
		t.Errorf("store var = %d, want sp", in.Store)
	}
	if in.Next != d.Entry()+4 {
		t.Errorf("next = 0x%05x, want 0x%05x", in.Next, d.Entry()+4)
	}
	if got := in.String(); !strings.Contains(got, "add #03 g00 -> sp") {
		t.Errorf("listing line %q", got)
	}
}

func TestDecodeVariableFormCall(t *testing.T) {
	d := buildListing(t, zbuild.Join(
		zbuild.Var(0x00, zbuild.Large(0x1234), zbuild.Small(7)), zbuild.Store(0x10),
		zbuild.Short0OP(0xA),
	))
	in, err := d.Decode(d.Entry())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Op.Name != "call" || in.Count != zcode.CountVAR {
		t.Fatalf("decoded %q %v, want call VAR", in.Op.Name, in.Count)
	}
	if len(in.Args) != 2 || in.Args[0].Value != 0x1234 || in.Args[1].Value != 7 {
		t.Errorf("args = %+v", in.Args)
	}
	if got := in.String(); !strings.Contains(got, "call #1234 #07 -> g00") {
		t.Errorf("listing line %q", got)
	}
}

func TestDecodeBranchTarget(t *testing.T) {
	d := buildListing(t, zbuild.Join(
		zbuild.Long2OP(0x01, zbuild.Small(1), zbuild.Small(1)), zbuild.Branch(true, 5),
		zbuild.Short0OP(0xA),
	))
	in, err := d.Decode(d.Entry())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Branch == nil || !in.Branch.OnTrue || in.Branch.Returns {
		t.Fatalf("branch = %+v", in.Branch)
	}
	// Specifier ends 4 bytes in; offset 5 lands 3 past the end.
	if want := d.Entry() + 7; in.Branch.Target != want {
		t.Errorf("target = 0x%05x, want 0x%05x", in.Branch.Target, want)
	}
}

func TestDecodeBranchReturn(t *testing.T) {
	d := buildListing(t, zbuild.Join(
		zbuild.Long2OP(0x01, zbuild.Small(1), zbuild.Small(2)), zbuild.BranchReturn(false, true),
		zbuild.Short0OP(0xA),
	))
	in, err := d.Decode(d.Entry())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Branch == nil || !in.Branch.Returns || !in.Branch.RetValue || in.Branch.OnTrue {
		t.Fatalf("branch = %+v", in.Branch)
	}
	if got := in.String(); !strings.Contains(got, "?~ret:true") {
		t.Errorf("listing line %q", got)
	}
}

func TestDecodeInlineText(t *testing.T) {
	d := buildListing(t, zbuild.Join(
		zbuild.Short0OP(0x2), zbuild.ZText("hello"),
		zbuild.Short0OP(0xA),
	))
	in, err := d.Decode(d.Entry())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Op.Name != "print" || in.Text != "hello" {
		t.Errorf("decoded %q text %q", in.Op.Name, in.Text)
	}
	// "hello" is five Z-characters, two words.
	if in.Next != d.Entry()+5 {
		t.Errorf("next = 0x%05x, want 0x%05x", in.Next, d.Entry()+5)
	}
}

func TestListingStopsAtUndefined(t *testing.T) {
	// quit, then a byte that decodes as undefined 2OP 0x00.
	d := buildListing(t, zbuild.Join(
		zbuild.Short0OP(0xA),
		[]byte{0x00, 0x01, 0x02},
	))
	var sb strings.Builder
	if err := d.Listing(&sb, d.Entry(), 10); err != nil {
		t.Fatalf("listing: %v", err)
	}
	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("listing produced %d lines: %q", len(lines), sb.String())
	}
	if !strings.Contains(lines[0], "quit") {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.Contains(lines[1], ".data") {
		t.Errorf("line 2 = %q, want a .data marker", lines[1])
	}
}

func TestListingHonorsCount(t *testing.T) {
	d := buildListing(t, zbuild.Join(
		zbuild.Short0OP(0xB), // new_line
		zbuild.Short0OP(0xB),
		zbuild.Short0OP(0xB),
		zbuild.Short0OP(0xA),
	))
	var sb strings.Builder
	if err := d.Listing(&sb, d.Entry(), 2); err != nil {
		t.Fatalf("listing: %v", err)
	}
	if got := strings.Count(sb.String(), "\n"); got != 2 {
		t.Errorf("listing produced %d lines, want 2", got)
	}
}
