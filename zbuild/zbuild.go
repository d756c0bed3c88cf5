// Package zbuild constructs version 3 story images programmatically:
// header, global table, object and property tables, dictionary,
// abbreviations and routine code. It is the test bench's way of
// producing images with known contents, and the compose command's
// backend.
package zbuild

import (
	"bytes"
	"fmt"
	"sort"

	"fortio.org/safecast"

	"go.zmach.net/zmach/zcode"
)

// Object declares one object table entry. Links are raw object
// numbers; the builder writes them as given.
type Object struct {
	Name       string
	Attributes uint32
	Parent     byte
	Sibling    byte
	Child      byte
	Props      map[byte][]byte
}

// Builder accumulates image content. Memory content (objects,
// globals, dictionary, abbreviations) must be complete before the
// first AddRoutine call: routine addresses are fixed the moment code
// placement starts.
type Builder struct {
	Release  uint16
	Serial   [zcode.SerialLength]byte
	Defaults [zcode.PropDefaultCount]uint16
	Globals  [zcode.GlobalCount]uint16

	objects []Object
	words   []string
	abbrevs []string
	seps    []byte

	frozen     bool
	staticBase uint32
	codeBase   uint32
	code       bytes.Buffer
	mainAddr   uint32
}

func New() *Builder {
	b := &Builder{
		Release: 1,
		seps:    []byte{'.', ',', '"'},
	}
	copy(b.Serial[:], "260831")
	return b
}

// AddObject appends an object and returns its 1-based number.
func (b *Builder) AddObject(o Object) (int, error) {
	if b.frozen {
		return 0, fmt.Errorf("object added after code placement started")
	}
	if len(b.objects) >= zcode.MaxObjects {
		return 0, fmt.Errorf("object table full at %d entries", zcode.MaxObjects)
	}
	b.objects = append(b.objects, o)
	return len(b.objects), nil
}

// AddWord registers a dictionary word; entries are sorted at build
// time by their encoded form, as the format requires.
func (b *Builder) AddWord(w string) error {
	if b.frozen {
		return fmt.Errorf("dictionary word added after code placement started")
	}
	b.words = append(b.words, w)
	return nil
}

// AddAbbrev registers an abbreviation string and returns its table
// index (0..95).
func (b *Builder) AddAbbrev(s string) (int, error) {
	if b.frozen {
		return 0, fmt.Errorf("abbreviation added after code placement started")
	}
	if len(b.abbrevs) >= zcode.AbbreviationCount {
		return 0, fmt.Errorf("abbreviation table full at %d entries", zcode.AbbreviationCount)
	}
	b.abbrevs = append(b.abbrevs, s)
	return len(b.abbrevs) - 1, nil
}

// Layout, in build order. Everything below staticBase is dynamic.
//
//	header | abbrev table | globals | object table | property tables
//	| abbrev strings | dictionary          <- static
//	| routines and main code              <- high
const (
	abbrevTableAddr = zcode.HeaderSize
	globalsAddr     = abbrevTableAddr + zcode.AbbreviationCount*2
	objectsAddr     = globalsAddr + zcode.GlobalCount*2
)

// freeze computes the final address of every memory structure so code
// placement can hand out real packed routine addresses.
func (b *Builder) freeze() error {
	if b.frozen {
		return nil
	}
	addr := uint32(objectsAddr + zcode.PropDefaultCount*2 + len(b.objects)*zcode.ObjectEntrySize)
	for _, o := range b.objects {
		size, err := propTableSize(o)
		if err != nil {
			return err
		}
		addr += size
	}
	b.staticBase = align2(addr)

	// Static region: abbreviation strings then the dictionary.
	addr = b.staticBase
	for _, a := range b.abbrevs {
		addr = align2(addr) + uint32(len(zcode.EncodeString(a)))*2
	}
	addr += uint32(1 + len(b.seps) + 1 + 2) // dictionary prologue
	addr += uint32(len(b.words)) * dictEntryLength

	b.codeBase = align2(addr)
	b.frozen = true
	return nil
}

const dictEntryLength = 7 // four encoded bytes plus three metadata bytes

// AddRoutine places a routine (local defaults then body) and returns
// its packed address for call operands.
func (b *Builder) AddRoutine(locals []uint16, body []byte) (uint16, error) {
	if err := b.freeze(); err != nil {
		return 0, err
	}
	if len(locals) > zcode.MaxLocals {
		return 0, fmt.Errorf("routine declares %d locals, limit is %d", len(locals), zcode.MaxLocals)
	}
	addr := b.codeBase + uint32(b.code.Len())
	b.code.WriteByte(byte(len(locals)))
	for _, def := range locals {
		var w [2]byte
		zcode.Endian.PutUint16(w[:], def)
		b.code.Write(w[:])
	}
	b.code.Write(body)
	if b.code.Len()%2 != 0 {
		b.code.WriteByte(0) // keep routine starts word-aligned
	}
	packed, err := safecast.Conv[uint16](addr / 2)
	if err != nil {
		return 0, fmt.Errorf("routine address 0x%05x not packable: %v", addr, err)
	}
	return packed, nil
}

// SetMain places the code executed from the initial program counter.
// In version 3 this is raw instructions, not a routine.
func (b *Builder) SetMain(body []byte) error {
	if err := b.freeze(); err != nil {
		return err
	}
	if b.mainAddr != 0 {
		return fmt.Errorf("main code set twice")
	}
	b.mainAddr = b.codeBase + uint32(b.code.Len())
	b.code.Write(body)
	return nil
}

// Build assembles and returns the image.
func (b *Builder) Build() ([]byte, error) {
	if err := b.freeze(); err != nil {
		return nil, err
	}
	if b.mainAddr == 0 {
		return nil, fmt.Errorf("no main code set")
	}

	size := b.codeBase + uint32(b.code.Len())
	if size%2 != 0 {
		size++
	}
	img := make([]byte, size)

	// Globals.
	for i, v := range b.Globals {
		zcode.Endian.PutUint16(img[globalsAddr+uint32(i)*2:], v)
	}

	// Object table: defaults, entries, property tables.
	for i, v := range b.Defaults {
		zcode.Endian.PutUint16(img[objectsAddr+uint32(i)*2:], v)
	}
	propAddr := uint32(objectsAddr + zcode.PropDefaultCount*2 + len(b.objects)*zcode.ObjectEntrySize)
	for i, o := range b.objects {
		entry := objectsAddr + zcode.PropDefaultCount*2 + uint32(i)*zcode.ObjectEntrySize
		zcode.Endian.PutUint32(img[entry:], o.Attributes)
		img[entry+zcode.ObjectParentOff] = o.Parent
		img[entry+zcode.ObjectSiblingOff] = o.Sibling
		img[entry+zcode.ObjectChildOff] = o.Child
		table, err := safecast.Conv[uint16](propAddr)
		if err != nil {
			return nil, fmt.Errorf("property table address 0x%05x: %v", propAddr, err)
		}
		zcode.Endian.PutUint16(img[entry+zcode.ObjectPropsOff:], table)
		n, err := writePropTable(img[propAddr:], o)
		if err != nil {
			return nil, fmt.Errorf("object %d (%q): %w", i+1, o.Name, err)
		}
		propAddr += n
	}

	// Abbreviation strings and their table entries.
	addr := b.staticBase
	for i, a := range b.abbrevs {
		addr = align2(addr)
		zcode.Endian.PutUint16(img[abbrevTableAddr+uint32(i)*2:], uint16(addr/2))
		for _, w := range zcode.EncodeString(a) {
			zcode.Endian.PutUint16(img[addr:], w)
			addr += 2
		}
	}

	// Dictionary: prologue then sorted entries.
	dictAddr := addr
	img[addr] = byte(len(b.seps))
	addr++
	copy(img[addr:], b.seps)
	addr += uint32(len(b.seps))
	img[addr] = dictEntryLength
	addr++
	count, err := safecast.Conv[uint16](len(b.words))
	if err != nil {
		return nil, fmt.Errorf("dictionary of %d words: %v", len(b.words), err)
	}
	zcode.Endian.PutUint16(img[addr:], count)
	addr += 2
	encoded := make([][4]byte, len(b.words))
	for i, w := range b.words {
		encoded[i] = zcode.EncodeWord(w)
	}
	sort.Slice(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i][:], encoded[j][:]) < 0
	})
	for _, e := range encoded {
		copy(img[addr:], e[:])
		addr += dictEntryLength
	}

	// Code.
	copy(img[b.codeBase:], b.code.Bytes())

	// Header last: the checksum covers everything after it.
	img[zcode.HdrVersion] = zcode.Version
	zcode.Endian.PutUint16(img[zcode.HdrRelease:], b.Release)
	put16 := func(off int, v uint32) error {
		w, err := safecast.Conv[uint16](v)
		if err != nil {
			return fmt.Errorf("header field at 0x%02x holds 0x%05x: %v", off, v, err)
		}
		zcode.Endian.PutUint16(img[off:], w)
		return nil
	}
	if err := put16(zcode.HdrHighMem, b.codeBase); err != nil {
		return nil, err
	}
	if err := put16(zcode.HdrInitialPC, b.mainAddr); err != nil {
		return nil, err
	}
	if err := put16(zcode.HdrDictionary, dictAddr); err != nil {
		return nil, err
	}
	if err := put16(zcode.HdrObjects, objectsAddr); err != nil {
		return nil, err
	}
	if err := put16(zcode.HdrGlobals, globalsAddr); err != nil {
		return nil, err
	}
	if err := put16(zcode.HdrStaticMem, b.staticBase); err != nil {
		return nil, err
	}
	if err := put16(zcode.HdrAbbrevs, abbrevTableAddr); err != nil {
		return nil, err
	}
	copy(img[zcode.HdrSerial:], b.Serial[:])
	if err := put16(zcode.HdrFileLen, size/2); err != nil {
		return nil, err
	}
	var sum uint16
	for _, c := range img[zcode.HeaderSize:] {
		sum += uint16(c)
	}
	zcode.Endian.PutUint16(img[zcode.HdrChecksum:], sum)

	return img, nil
}

func propTableSize(o Object) (uint32, error) {
	size := uint32(1 + len(zcode.EncodeString(o.Name))*2)
	for num, data := range o.Props {
		if num < 1 || num > zcode.MaxProperty {
			return 0, fmt.Errorf("property number %d out of range", num)
		}
		if len(data) < 1 || len(data) > 8 {
			return 0, fmt.Errorf("property %d holds %d bytes, want 1..8", num, len(data))
		}
		size += 1 + uint32(len(data))
	}
	return size + 1, nil
}

// writePropTable lays out the short name and the property records,
// highest property number first, zero terminated.
func writePropTable(dst []byte, o Object) (uint32, error) {
	name := zcode.EncodeString(o.Name)
	dst[0] = byte(len(name))
	addr := uint32(1)
	for _, w := range name {
		zcode.Endian.PutUint16(dst[addr:], w)
		addr += 2
	}
	nums := make([]int, 0, len(o.Props))
	for num := range o.Props {
		nums = append(nums, int(num))
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nums)))
	for _, num := range nums {
		data := o.Props[byte(num)]
		dst[addr] = byte((len(data)-1)<<5 | num)
		addr++
		copy(dst[addr:], data)
		addr += uint32(len(data))
	}
	dst[addr] = 0
	return addr + 1, nil
}

func align2(a uint32) uint32 { return (a + 1) &^ 1 }
