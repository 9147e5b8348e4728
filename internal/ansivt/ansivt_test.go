package ansivt

import (
	"testing"

	"github.com/cwilbanks/tnterm/internal/display"
)

func newInterp() (*Interpreter, *display.Buffer) {
	buf := display.New(24, 80, nil)
	return New(buf), buf
}

// TestPlainTextAdvancesCursor covers the S5 NVT-fallback scenario: plain
// bytes write through and the cursor advances column by column.
func TestPlainTextAdvancesCursor(t *testing.T) {
	it, buf := newInterp()
	it.Feed([]byte("HI"))

	if buf.Cell(0).Char != 'H' || buf.Cell(1).Char != 'I' {
		t.Fatalf("expected H, I written at 0,1, got %q %q", buf.Cell(0).Char, buf.Cell(1).Char)
	}
	_, col := buf.Cursor()
	if col != 3 {
		t.Fatalf("cursor col = %d, want 3", col)
	}
}

// TestCarriageReturnLineFeed checks \r\n moves to column 1 of the next row.
func TestCarriageReturnLineFeed(t *testing.T) {
	it, buf := newInterp()
	it.Feed([]byte("AB\r\nC"))

	row, col := buf.Cursor()
	if row != 2 || col != 2 {
		t.Fatalf("cursor = (%d,%d), want (2,2)", row, col)
	}
}

// TestCSICursorUp exercises a split-across-Feed-calls CSI sequence, proving
// state survives across reads.
func TestCSICursorUp(t *testing.T) {
	it, buf := newInterp()
	buf.SetCursor(10, 10)
	it.Feed([]byte{0x1B})
	it.Feed([]byte("[3"))
	it.Feed([]byte("A"))

	row, col := buf.Cursor()
	if row != 7 || col != 10 {
		t.Fatalf("cursor = (%d,%d), want (7,10)", row, col)
	}
}

// TestCSICursorPosition checks the two-param CUP form.
func TestCSICursorPosition(t *testing.T) {
	it, buf := newInterp()
	it.Feed([]byte("\x1b[5;12H"))

	row, col := buf.Cursor()
	if row != 5 || col != 12 {
		t.Fatalf("cursor = (%d,%d), want (5,12)", row, col)
	}
}

// TestEraseDisplayWholeScreen checks ED mode 2 clears everything.
func TestEraseDisplayWholeScreen(t *testing.T) {
	it, buf := newInterp()
	it.Feed([]byte("hello"))
	it.Feed([]byte("\x1b[2J"))

	if buf.Cell(0).Char != 0x00 {
		t.Fatalf("expected cell cleared after ED mode 2, got %q", buf.Cell(0).Char)
	}
}
