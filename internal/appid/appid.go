// Package appid computes the legacy shortcut identifier used as the primary
// key of shortcuts.vdf entries and as the base name of grid artwork files.
package appid

import (
	"hash/crc32"
	"strconv"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// ID is a shortcut identifier. The file stores it as a signed 32-bit integer;
// artwork file names use the unsigned decimal form.
type ID uint32

// substitute replaces runes that have neither a Windows-1252 mapping nor a
// best-fit approximation.
const substitute = '?'

// bestFit covers letters that keep their look without a decomposition.
var bestFit = map[rune]byte{
	'\u0110': 0xD0, // Đ
	'\u0111': 'd',
	'\u0126': 'H',
	'\u0127': 'h',
	'\u0131': 'i',
	'\u0141': 'L',
	'\u0142': 'l',
	'\u0166': 'T',
	'\u0167': 't',
	'\u0180': 'b',
	'\u0197': 'I',
	'\u01B6': 'z',
}

// Generate returns the identifier for a shortcut with the given display name
// and executable path.
func Generate(name, exe string) ID {
	data := encode1252(name + exe + "\x00")
	return ID(crc32.ChecksumIEEE(data) | 0x80000000)
}

// FromInt32 reinterprets the bit pattern stored in the file.
func FromInt32(v int32) ID {
	return ID(uint32(v))
}

// Int32 returns the bit pattern written to the file.
func (id ID) Int32() int32 {
	return int32(uint32(id))
}

// String returns the unsigned decimal form.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Parse parses the unsigned decimal form.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

func encode1252(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b, ok = approximate(r)
		}
		if !ok {
			b = substitute
		}
		out = append(out, b)
	}
	return out
}

// approximate maps r to the single Windows-1252 byte it resembles: a listed
// letter, or the one base character left after compatibility decomposition
// with marks removed (Ō to O, fullwidth Ａ to A).
func approximate(r rune) (byte, bool) {
	if b, ok := bestFit[r]; ok {
		return b, true
	}
	base := rune(-1)
	for _, d := range norm.NFKD.String(string(r)) {
		if unicode.Is(unicode.Mn, d) {
			continue
		}
		if base >= 0 {
			return 0, false
		}
		base = d
	}
	if base < 0 || base == r {
		return 0, false
	}
	return charmap.Windows1252.EncodeRune(base)
}
