package vm

import (
	"bytes"
	"fmt"
	"strings"

	"go.zmach.net/zmach/zcode"
)

// DictNotFound is the sentinel address for a word absent from the
// dictionary.
const DictNotFound = 0

// dictLayout is the decoded dictionary prologue: the entry geometry
// is whatever the image declares, never hardcoded.
type dictLayout struct {
	entries     uint32
	entryLength uint32
	count       uint32
}

func (m *Machine) dictionary() (dictLayout, error) {
	addr := m.header.Dictionary
	numSeps, err := m.mem.Byte(addr)
	if err != nil {
		return dictLayout{}, err
	}
	addr += 1 + uint32(numSeps)
	entryLength, err := m.mem.Byte(addr)
	if err != nil {
		return dictLayout{}, err
	}
	if entryLength < zcode.DictEntryCodes {
		return dictLayout{}, fmt.Errorf("dictionary entry length %d: %w", entryLength, errDecode)
	}
	count, err := m.mem.Word(addr + 1)
	if err != nil {
		return dictLayout{}, err
	}
	d := dictLayout{
		entries:     addr + 3,
		entryLength: uint32(entryLength),
		count:       uint32(count),
	}
	if d.entries+d.count*d.entryLength > m.mem.Size() {
		return dictLayout{}, fmt.Errorf("dictionary entries overrun image: %w", ErrOutOfBounds)
	}
	return d, nil
}

// LookupWord binary-searches the dictionary for an already-encoded
// token and returns the entry address, or DictNotFound.
func (m *Machine) LookupWord(encoded [4]byte) (uint16, error) {
	d, err := m.dictionary()
	if err != nil {
		return 0, err
	}
	lo, hi := uint32(0), d.count
	for lo < hi {
		mid := lo + (hi-lo)/2
		addr := d.entries + mid*d.entryLength
		entry := m.mem.data[addr : addr+zcode.DictEntryCodes]
		switch cmp := bytes.Compare(encoded[:], entry); {
		case cmp < 0:
			hi = mid
		case cmp > 0:
			lo = mid + 1
		default:
			return uint16(addr), nil
		}
	}
	return DictNotFound, nil
}

// Lookup encodes a plain token and searches for it.
func (m *Machine) Lookup(token string) (uint16, error) {
	return m.LookupWord(zcode.EncodeWord(strings.ToLower(token)))
}

// token is one whitespace-delimited word with its position in the
// text buffer, as the parse buffer wants it.
type token struct {
	word string
	pos  int
}

func tokenize(line string) []token {
	var out []token
	start := -1
	for i := 0; i <= len(line); i++ {
		boundary := i == len(line) || line[i] == ' '
		switch {
		case boundary && start >= 0:
			out = append(out, token{word: line[start:i], pos: start})
			start = -1
		case !boundary && start < 0:
			start = i
		}
	}
	return out
}

// acceptLine completes a read: the lowercased line goes into the text
// buffer, each token is looked up and recorded in the parse buffer as
// a four-byte block of dictionary address, length and position.
func (m *Machine) acceptLine(textAddr, parseAddr uint32, line string) error {
	line = strings.ToLower(strings.TrimRight(line, "\r\n"))

	maxChars, err := m.mem.Byte(textAddr)
	if err != nil {
		return err
	}
	if maxChars < 2 {
		return fmt.Errorf("read buffer of %d bytes: %w", maxChars, errDecode)
	}
	if len(line) > int(maxChars)-1 {
		line = line[:maxChars-1]
	}
	for i := 0; i < len(line); i++ {
		if err := m.mem.WriteByte(textAddr+1+uint32(i), line[i]); err != nil {
			return err
		}
	}
	if err := m.mem.WriteByte(textAddr+1+uint32(len(line)), 0); err != nil {
		return err
	}

	maxTokens, err := m.mem.Byte(parseAddr)
	if err != nil {
		return err
	}
	tokens := tokenize(line)
	if len(tokens) > int(maxTokens) {
		tokens = tokens[:maxTokens]
	}
	if err := m.mem.WriteByte(parseAddr+1, byte(len(tokens))); err != nil {
		return err
	}
	block := parseAddr + 2
	for _, t := range tokens {
		addr, err := m.Lookup(t.word)
		if err != nil {
			return err
		}
		if err := m.mem.WriteWord(block, addr); err != nil {
			return err
		}
		if err := m.mem.WriteByte(block+2, byte(len(t.word))); err != nil {
			return err
		}
		// Positions count from the start of the text buffer, so the
		// first typed character is position 1.
		if err := m.mem.WriteByte(block+3, byte(t.pos+1)); err != nil {
			return err
		}
		block += 4
	}
	return nil
}
