package zcode

// The three Z-character alphabets. Codes 6..31 index into the active
// alphabet; entries 0 and 1 of A2 stand for the 10-bit ZSCII escape
// and newline and are handled before the table lookup.
var Alphabets = [3]string{
	"abcdefghijklmnopqrstuvwxyz",
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ",
	" \n0123456789.,!?_#'\"/\\-:()",
}

// Z-character codes with fixed meanings in version 3.
const (
	ZCharSpace   = 0
	ZCharAbbrev1 = 1
	ZCharAbbrev2 = 2
	ZCharAbbrev3 = 3
	ZCharShiftA1 = 4
	ZCharShiftA2 = 5
	ZCharEscape  = 6 // from A2: next two codes form a 10-bit ZSCII code
)

// ZSCIIRune maps a ZSCII output code to a printable rune. The second
// result is false for codes the interpreter does not render.
func ZSCIIRune(code uint16) (rune, bool) {
	switch {
	case code == 13:
		return '\n', true
	case code >= 32 && code <= 126:
		return rune(code), true
	default:
		return 0, false
	}
}

// zchars translates text into Z-character codes, using temporary
// shifts for the A1/A2 alphabets and the 10-bit escape for anything
// outside the three tables. No abbreviations are emitted.
func zchars(text string) []byte {
	var out []byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		alphabet, index := -1, -1
		for a, table := range Alphabets {
			for j := 0; j < len(table); j++ {
				if table[j] == c {
					alphabet, index = a, j
					break
				}
			}
			if alphabet >= 0 {
				break
			}
		}
		switch {
		case c == ' ':
			out = append(out, ZCharSpace)
		case alphabet == 0:
			out = append(out, byte(index+6))
		case alphabet > 0:
			out = append(out, byte(ZCharShiftA1+alphabet-1), byte(index+6))
		default:
			out = append(out, ZCharShiftA2, ZCharEscape, c>>5, c&0x1F)
		}
	}
	return out
}

// packWords packs Z-characters three per 16-bit word, padding the last
// word with shift-A2 codes and setting its terminator bit.
func packWords(codes []byte) []uint16 {
	for len(codes)%3 != 0 {
		codes = append(codes, ZCharShiftA2)
	}
	words := make([]uint16, 0, len(codes)/3)
	for i := 0; i < len(codes); i += 3 {
		w := uint16(codes[i])<<10 | uint16(codes[i+1])<<5 | uint16(codes[i+2])
		words = append(words, w)
	}
	words[len(words)-1] |= 0x8000
	return words
}

// EncodeString encodes text as a terminated Z-string, returned as
// 16-bit words in image order.
func EncodeString(text string) []uint16 {
	codes := zchars(text)
	if len(codes) == 0 {
		codes = []byte{ZCharShiftA2, ZCharShiftA2, ZCharShiftA2}
	}
	return packWords(codes)
}

// EncodeWord encodes a dictionary token: exactly six Z-characters,
// truncated or padded, packed into four bytes. Dictionary entries and
// lookups compare these four bytes for equality.
func EncodeWord(token string) [4]byte {
	codes := zchars(token)
	for len(codes) < DictWordLength {
		codes = append(codes, ZCharShiftA2)
	}
	codes = codes[:DictWordLength]
	words := packWords(codes)

	var out [4]byte
	Endian.PutUint16(out[0:], words[0])
	Endian.PutUint16(out[2:], words[1])
	return out
}
