// Package ebcdic provides the EBCDIC code-page-37 <-> ASCII translation used
// by the 5250 and 3270 data-stream processors. The tables are derived once,
// at init time, from golang.org/x/text's CodePage037 charmap rather than
// hand-maintained, so they track the same mapping every other CP037-aware
// tool in the ecosystem uses.
package ebcdic

import "golang.org/x/text/encoding/charmap"

var (
	toASCII [256]byte
	toEBCDIC [256]byte
	asciiDefined [256]bool
)

func init() {
	// golang.org/x/text's charmap exposes EBCDIC->Unicode per byte; we only
	// need the Unicode values that round-trip through a single byte (every
	// printable CP037 code point does), so DecodeByte is sufficient and we
	// never need the general multi-byte Decoder/Encoder machinery.
	var runeToEBCDIC = make(map[rune]byte, 256)
	for b := 0; b < 256; b++ {
		r := charmap.CodePage037.DecodeByte(byte(b))
		if r <= 0xFF {
			toASCII[b] = byte(r)
			if _, exists := runeToEBCDIC[r]; !exists {
				runeToEBCDIC[r] = byte(b)
			}
		} else {
			// No ASCII-range representation (e.g. box-drawing); fall back to
			// the CP037 substitute character so the table stays total.
			toASCII[b] = '?'
		}
	}
	for a := 0; a < 256; a++ {
		if eb, ok := runeToEBCDIC[rune(a)]; ok {
			toEBCDIC[a] = eb
			asciiDefined[a] = true
		} else {
			toEBCDIC[a] = 0x6F // CP037 '?'
		}
	}
}

// ToASCII converts a single EBCDIC (CP037) byte to its ASCII equivalent.
func ToASCII(b byte) byte { return toASCII[b] }

// ToEBCDIC converts a single ASCII byte to its EBCDIC (CP037) equivalent.
func ToEBCDIC(b byte) byte { return toEBCDIC[b] }

// BytesToASCII converts a buffer of EBCDIC bytes to ASCII, returning a new
// slice and leaving buf unchanged.
func BytesToASCII(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = toASCII[b]
	}
	return out
}

// BytesToEBCDIC converts a buffer of ASCII bytes to EBCDIC.
func BytesToEBCDIC(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = toEBCDIC[b]
	}
	return out
}

// Defined reports whether ascii byte a has an explicit (non-fallback) CP037
// encoding. Used by property tests to verify >=99% domain coverage.
func Defined(a byte) bool { return asciiDefined[a] }
