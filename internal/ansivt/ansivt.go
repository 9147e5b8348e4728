// Package ansivt implements the NVT fallback terminal: a small ANSI/VT CSI
// interpreter used when protocol detection (internal/protocol) settles on
// plain NVT instead of TN5250/TN3270 (spec §4.6).
package ansivt

import (
	"github.com/mattn/go-runewidth"

	"github.com/cwilbanks/tnterm/internal/display"
)

// Interpreter drives a display.Buffer from a byte-oriented ANSI/VT stream.
// Unlike the 5250/3270 processors it is stateful across Feed calls, since
// escape sequences can straddle read boundaries.
type Interpreter struct {
	Disp  *display.Buffer
	state parseState
	csi   []byte
}

type parseState int

const (
	stateGround parseState = iota
	stateEscape
	stateCSI
)

// New returns an Interpreter bound to disp.
func New(disp *display.Buffer) *Interpreter {
	return &Interpreter{Disp: disp}
}

// Feed consumes raw bytes, applying text, cursor motion, and erase to the
// buffer. SGR and DECSET/DECRST sequences are parsed and ignored.
func (it *Interpreter) Feed(data []byte) {
	for _, b := range data {
		it.feedByte(b)
	}
}

func (it *Interpreter) feedByte(b byte) {
	switch it.state {
	case stateGround:
		switch b {
		case 0x1B:
			it.state = stateEscape
		case '\r':
			row, _ := it.Disp.Cursor()
			it.Disp.SetCursor(row, 1)
		case '\n':
			row, col := it.Disp.Cursor()
			it.Disp.SetCursor(row+1, col)
		case 0x08: // backspace
			row, col := it.Disp.Cursor()
			it.Disp.SetCursor(row, col-1)
		default:
			it.writeAndAdvance(b)
		}
	case stateEscape:
		if b == '[' {
			it.state = stateCSI
			it.csi = it.csi[:0]
		} else {
			// Unsupported two-character escape; drop back to ground.
			it.state = stateGround
		}
	case stateCSI:
		if b >= '0' && b <= '9' || b == ';' || b == '?' {
			it.csi = append(it.csi, b)
			return
		}
		it.applyCSI(b, it.csi)
		it.state = stateGround
	}
}

// writeAndAdvance writes one displayable rune-width cell and advances the
// cursor, wrapping to the next row at end-of-line. Wide runes (CJK, via
// go-runewidth) are not expected on an EBCDIC-origin NVT session, but a
// host can still push UTF-8-ish bytes over NVT; width is computed for any
// byte in case a future caller widens Feed's input to full runes.
func (it *Interpreter) writeAndAdvance(b byte) {
	row, col := it.Disp.Cursor()
	addr := it.Disp.AddressOf(row, col)
	it.Disp.WriteChar(addr, b, display.OriginServer)

	w := runewidth.RuneWidth(rune(b))
	if w < 1 {
		w = 1
	}
	col += w
	if col > it.Disp.Cols {
		col = 1
		row++
	}
	it.Disp.SetCursor(row, col)
}

// applyCSI dispatches a terminated CSI sequence: params is everything
// between '[' and the final byte final.
func (it *Interpreter) applyCSI(final byte, params []byte) {
	n, hasN := firstParam(params)
	row, col := it.Disp.Cursor()

	switch final {
	case 'A': // CUU
		if !hasN || n == 0 {
			n = 1
		}
		it.Disp.SetCursor(row-n, col)
	case 'B': // CUD
		if !hasN || n == 0 {
			n = 1
		}
		it.Disp.SetCursor(row+n, col)
	case 'C': // CUF
		if !hasN || n == 0 {
			n = 1
		}
		it.Disp.SetCursor(row, col+n)
	case 'D': // CUB
		if !hasN || n == 0 {
			n = 1
		}
		it.Disp.SetCursor(row, col-n)
	case 'H', 'f': // CUP
		r, c := splitPair(params)
		if r == 0 {
			r = 1
		}
		if c == 0 {
			c = 1
		}
		it.Disp.SetCursor(r, c)
	case 'J': // ED
		it.eraseDisplay(n)
	case 'K': // EL
		it.eraseLine(row, n)
	case 'm':
		// SGR: color/attribute rendering is out of scope for the grid
		// model; acknowledged as a no-op so the stream stays aligned.
	case 'h', 'l':
		// DECSET/DECRST: private mode toggles (cursor visibility, etc.)
		// have no buffer-level effect this core tracks.
	}
}

func (it *Interpreter) eraseDisplay(mode int) {
	n := it.Disp.Rows * it.Disp.Cols
	switch mode {
	case 0: // cursor to end
		row, col := it.Disp.Cursor()
		start := it.Disp.AddressOf(row, col)
		for a := start; a < n; a++ {
			it.Disp.WriteChar(a, 0x00, display.OriginServer)
		}
	case 1: // start to cursor
		row, col := it.Disp.Cursor()
		end := it.Disp.AddressOf(row, col)
		for a := 0; a <= end && a < n; a++ {
			it.Disp.WriteChar(a, 0x00, display.OriginServer)
		}
	case 2: // whole screen
		it.Disp.Clear()
	}
}

func (it *Interpreter) eraseLine(row, mode int) {
	switch mode {
	case 0:
		_, col := it.Disp.Cursor()
		for c := col; c <= it.Disp.Cols; c++ {
			it.Disp.WriteChar(it.Disp.AddressOf(row, c), 0x00, display.OriginServer)
		}
	case 1:
		_, col := it.Disp.Cursor()
		for c := 1; c <= col; c++ {
			it.Disp.WriteChar(it.Disp.AddressOf(row, c), 0x00, display.OriginServer)
		}
	case 2:
		for c := 1; c <= it.Disp.Cols; c++ {
			it.Disp.WriteChar(it.Disp.AddressOf(row, c), 0x00, display.OriginServer)
		}
	}
}

func firstParam(params []byte) (int, bool) {
	n := 0
	found := false
	for _, b := range params {
		if b == ';' {
			break
		}
		if b < '0' || b > '9' {
			return n, found
		}
		n = n*10 + int(b-'0')
		found = true
	}
	return n, found
}

func splitPair(params []byte) (a, b int) {
	i := 0
	for ; i < len(params) && params[i] != ';'; i++ {
		a = a*10 + int(params[i]-'0')
	}
	if i < len(params) {
		for j := i + 1; j < len(params); j++ {
			if params[j] < '0' || params[j] > '9' {
				break
			}
			b = b*10 + int(params[j]-'0')
		}
	}
	return a, b
}
