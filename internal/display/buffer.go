// Package display implements the row x col cell grid shared by the 5250 and
// 3270 data-stream processors (spec §4.5): cells, fields, cursor, MDT
// tracking, and linear addressing. It holds no network or protocol-specific
// knowledge; tn5250 and tn3270 each translate their own command/order
// vocabulary onto these primitives.
package display

import (
	"fmt"
	"sort"
)

// Origin distinguishes a write driven by the host data stream from one
// driven by local user keystrokes. Spec §3 states MDT is set only by user
// writes to unprotected fields; spec §4.5 describes write_char's MDT effect
// in the common (interactive) case. We resolve the two by making origin
// explicit — see DESIGN.md "Open Questions" for the write.
type Origin int

const (
	OriginServer Origin = iota
	OriginUser
)

// Cell is a single grid position. When IsAttr is true the cell represents a
// field's attribute byte rather than displayable data (spec §3: "the byte
// immediately preceding a field's data is the attribute byte on the grid").
type Cell struct {
	Char      byte
	Attr      byte
	ExtAttr   byte
	ExtAttrOn bool
	IsAttr    bool
	Dirty     bool
}

// FieldFlags captures the behavior bits of a field (spec §3).
type FieldFlags struct {
	Protected          bool
	Numeric            bool
	MandatoryFill      bool
	MandatoryEntry     bool
	AutoEnter          bool
	FieldExitRequired  bool
	RightAdjust        bool
	Uppercase          bool
	Bypass             bool
	ContinuedGroupID   int
}

// Field is one structured-field region of the display.
type Field struct {
	ID       int
	Start    int // linear address of the attribute byte
	Length   int // data-region length, not counting the attribute byte
	Attr     byte
	Flags    FieldFlags
	Content  []byte
	Modified bool
	ValidationErr error
}

// DataStart is the linear address of the first data byte of the field.
func (f *Field) DataStart() int { return f.Start + 1 }

// Logger receives clamp/out-of-bounds diagnostics (spec §4.5: "clamped and
// logged"). Buffer never panics; a nil Logger silently drops messages.
type Logger interface {
	Warn(format string, args ...any)
}

// Buffer is the row x col display grid. It is not internally synchronized;
// the session controller (internal/controller) holds the single mutex that
// serializes all access, matching spec §4.7's locking discipline.
type Buffer struct {
	Rows, Cols int
	cells      []Cell
	fields     []*Field
	fieldAt    []int // per-address field id, -1 if none
	nextID     int
	cursorRow  int
	cursorCol  int
	log        Logger
}

// New creates a Rows x Cols buffer, defaulting the cursor to the first valid
// position (1,1) since (0,0) is explicitly invalid per spec §3.
func New(rows, cols int, log Logger) *Buffer {
	b := &Buffer{Rows: rows, Cols: cols, log: log}
	b.cells = make([]Cell, rows*cols)
	b.fieldAt = make([]int, rows*cols)
	b.Clear()
	return b
}

func (b *Buffer) size() int { return b.Rows * b.Cols }

// Clear resets the grid to blanks, drops all fields, and homes the cursor.
// Invoked on 3270 Erase/Write and 5250 Clear Unit (spec §3 Lifecycles).
func (b *Buffer) Clear() {
	for i := range b.cells {
		b.cells[i] = Cell{Char: 0x00}
		b.fieldAt[i] = -1
	}
	b.fields = nil
	b.nextID = 0
	b.cursorRow, b.cursorCol = 1, 1
}

// AddressOf converts 1-based (row, col) to a 0-based linear address.
func (b *Buffer) AddressOf(row, col int) int {
	return (row-1)*b.Cols + (col - 1)
}

// RowColOf converts a 0-based linear address to 1-based (row, col).
func (b *Buffer) RowColOf(addr int) (row, col int) {
	addr = ((addr % b.size()) + b.size()) % b.size()
	return addr/b.Cols + 1, addr%b.Cols + 1
}

// clampAddr wraps an address into [0, size) the way both 5250 and 3270
// orders wrap at end-of-row/end-of-screen, logging when it had to.
func (b *Buffer) clampAddr(addr int) int {
	n := b.size()
	if addr >= 0 && addr < n {
		return addr
	}
	wrapped := ((addr % n) + n) % n
	if b.log != nil {
		b.log.Warn("display: address %d out of bounds, wrapped to %d", addr, wrapped)
	}
	return wrapped
}

// WriteChar writes a single data byte at addr, advancing no state itself
// (callers own the write-pointer advance/wrap). Per spec §3/§4.5: writes to
// an unprotected field set that field's MDT only when origin is OriginUser;
// server-originated writes (origin == OriginServer) never set MDT, and a
// write to a protected field never sets MDT regardless of origin.
func (b *Buffer) WriteChar(addr int, ch byte, origin Origin) {
	addr = b.clampAddr(addr)
	b.cells[addr] = Cell{Char: ch, Dirty: true}

	fid := b.fieldAt[addr]
	if fid < 0 {
		return
	}
	f := b.fields[fid]
	off := addr - f.DataStart()
	if off >= 0 && off < len(f.Content) {
		f.Content[off] = ch
	}
	if origin == OriginUser && !f.Flags.Protected {
		f.Modified = true
	}
}

// DefineField establishes a field whose attribute byte sits at attrAddr.
// length is the data-region size; if length <= 0 the field extends from
// attrAddr+1 up to (but not including) the next already-defined field start,
// wrapping once around the buffer — the 3270 implicit-length convention
// (spec §4.4); 5250 always supplies an explicit length via SF (spec §4.3).
func (b *Buffer) DefineField(attrAddr int, attr byte, length int, flags FieldFlags) *Field {
	attrAddr = b.clampAddr(attrAddr)
	if length <= 0 {
		length = b.distanceToNextField(attrAddr)
	}

	f := &Field{
		ID:      b.nextID,
		Start:   attrAddr,
		Length:  length,
		Attr:    attr,
		Flags:   flags,
		Content: make([]byte, length),
	}
	b.nextID++
	b.fields = append(b.fields, f)

	b.cells[attrAddr] = Cell{IsAttr: true, Attr: attr, Dirty: true}
	b.fieldAt[attrAddr] = f.ID
	for i := 0; i < length; i++ {
		addr := b.clampAddr(f.DataStart() + i)
		b.fieldAt[addr] = f.ID
	}
	return f
}

// distanceToNextField measures from start+1 to the next field's attribute
// address, wrapping around the buffer exactly once if none is found ahead.
func (b *Buffer) distanceToNextField(start int) int {
	n := b.size()
	for step := 1; step <= n; step++ {
		addr := (start + step) % n
		if b.fieldAt[addr] >= 0 && b.cells[addr].IsAttr {
			return step - 1
		}
	}
	return n - 1
}

// SetFieldAttribute updates the attribute byte of an existing field at addr,
// without altering its content or length (spec §4.5).
func (b *Buffer) SetFieldAttribute(addr int, attr byte, flags FieldFlags) error {
	addr = b.clampAddr(addr)
	fid := b.fieldAt[addr]
	if fid < 0 || !b.cells[addr].IsAttr {
		return fmt.Errorf("display: no field attribute at address %d", addr)
	}
	f := b.fields[fid]
	f.Attr = attr
	f.Flags = flags
	b.cells[addr] = Cell{IsAttr: true, Attr: attr, Dirty: true}
	return nil
}

// GetFieldAt returns the field owning addr, if any.
func (b *Buffer) GetFieldAt(addr int) (*Field, bool) {
	addr = b.clampAddr(addr)
	fid := b.fieldAt[addr]
	if fid < 0 {
		return nil, false
	}
	return b.fields[fid], true
}

// Fields returns all fields in creation order (the order their SF orders
// were processed), which is not address order when an SBA moves backward.
func (b *Buffer) Fields() []*Field { return b.fields }

// EraseUnprotected clears data bytes of unprotected fields to NUL while
// preserving attribute bytes and field structure (spec §4.5), and clears
// their MDT (a field with no content cannot meaningfully stay "modified").
func (b *Buffer) EraseUnprotected() {
	for _, f := range b.fields {
		if f.Flags.Protected {
			continue
		}
		for i := range f.Content {
			f.Content[i] = 0x00
			b.cells[b.clampAddr(f.DataStart()+i)] = Cell{Char: 0x00, Dirty: true}
		}
		f.Modified = false
	}
}

// ResetMDT clears the modified flag on every field (3270 WCC reset-MDT, and
// 5250 after a successful Read-MDT-Fields response).
func (b *Buffer) ResetMDT() {
	for _, f := range b.fields {
		f.Modified = false
	}
}

// FindNextUnprotected returns the first unprotected field's data-start
// address strictly after from, wrapping around the end of the buffer
// exactly once. It returns (0, false) iff no unprotected field exists.
func (b *Buffer) FindNextUnprotected(from int) (int, bool) {
	if len(b.fields) == 0 {
		return 0, false
	}
	n := b.size()
	from = b.clampAddr(from)
	for step := 1; step <= n; step++ {
		addr := (from + step) % n
		fid := b.fieldAt[addr]
		if fid < 0 {
			continue
		}
		f := b.fields[fid]
		if !f.Flags.Protected && addr == f.DataStart() {
			return addr, true
		}
	}
	return 0, false
}

// SetCursor clamps (row, col) to grid bounds (spec §3: cursor always within
// bounds; 0,0 is invalid) and logs when a clamp was needed.
func (b *Buffer) SetCursor(row, col int) {
	orig := [2]int{row, col}
	if row < 1 {
		row = 1
	}
	if row > b.Rows {
		row = b.Rows
	}
	if col < 1 {
		col = 1
	}
	if col > b.Cols {
		col = b.Cols
	}
	if (row != orig[0] || col != orig[1]) && b.log != nil {
		b.log.Warn("display: cursor (%d,%d) out of bounds, clamped to (%d,%d)", orig[0], orig[1], row, col)
	}
	b.cursorRow, b.cursorCol = row, col
}

// Cursor returns the current 1-based cursor position.
func (b *Buffer) Cursor() (row, col int) { return b.cursorRow, b.cursorCol }

// SetCursorAddr is SetCursor taking a linear address.
func (b *Buffer) SetCursorAddr(addr int) {
	row, col := b.RowColOf(b.clampAddr(addr))
	b.SetCursor(row, col)
}

// CursorAddr returns the linear address of the current cursor position.
func (b *Buffer) CursorAddr() int { return b.AddressOf(b.cursorRow, b.cursorCol) }

// ModifiedField is one (address, content) pair returned by ReadModified.
type ModifiedField struct {
	Addr    int
	Content []byte
}

// ReadModified returns the content of every field with MDT=1, in address
// order, content EBCDIC/ASCII as stored (spec §4.5 read_modified).
func (b *Buffer) ReadModified() []ModifiedField {
	var out []ModifiedField
	for _, f := range b.fields {
		if f.Modified {
			out = append(out, ModifiedField{Addr: f.DataStart(), Content: append([]byte(nil), f.Content...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Cell returns a copy of the cell at addr.
func (b *Buffer) Cell(addr int) Cell { return b.cells[b.clampAddr(addr)] }

// Snapshot returns a copy of the entire cell grid, for non-blocking
// try-acquire reads from the UI (spec §4.7).
func (b *Buffer) Snapshot() []Cell {
	out := make([]Cell, len(b.cells))
	copy(out, b.cells)
	return out
}

// ClearDirty clears the dirty flag on every cell, used after a UI snapshot
// has been taken so the next "content changed" comparison (spec §4.7) is
// relative to this point.
func (b *Buffer) ClearDirty() {
	for i := range b.cells {
		b.cells[i].Dirty = false
	}
}

// AnyDirty reports whether any cell changed since the last ClearDirty.
func (b *Buffer) AnyDirty() bool {
	for i := range b.cells {
		if b.cells[i].Dirty {
			return true
		}
	}
	return false
}
