package tn5250

import (
	"testing"

	"github.com/cwilbanks/tnterm/internal/display"
)

func newTestProcessor() *Processor {
	buf := display.New(24, 80, nil)
	return New(buf)
}

// TestParseRecordRoundTrip exercises Frame -> ParseRecord for a trivial
// Write-to-Display command, confirming the length header is self-consistent.
func TestParseRecordRoundTrip(t *testing.T) {
	cmd := []byte{CmdWriteToDisplay, 'H', 'I'}
	raw := Frame(0x00, 0, 0, cmd)

	rec, err := ParseRecord(raw)
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if rec.RecordType != 0x00 {
		t.Fatalf("RecordType = %#x, want 0x00", rec.RecordType)
	}
	if len(rec.CommandBytes) != len(cmd) {
		t.Fatalf("CommandBytes len = %d, want %d", len(rec.CommandBytes), len(cmd))
	}
}

// TestParseRecordLengthMismatch mirrors the malformed-packet scenario: a
// declared LEN smaller than the bytes actually framed must be rejected as a
// buffer overflow rather than silently truncated.
func TestParseRecordLengthMismatch(t *testing.T) {
	raw := []byte{0x00, 0x04, 0x00, 0x00, 0x00}
	raw = append(raw, make([]byte, 40)...)

	_, err := ParseRecord(raw)
	if err == nil {
		t.Fatal("expected error for LEN/size mismatch, got nil")
	}
}

// TestWriteToDisplaySBAandData verifies an SBA order followed by a literal
// EBCDIC data run lands at the addressed cell, translated to ASCII.
func TestWriteToDisplaySBAandData(t *testing.T) {
	p := newTestProcessor()
	// SBA to row 1 col 1, then EBCDIC 'A' = 0xC1.
	stream := []byte{OrderSBA, 0x01, 0x01, 0xC1}

	if _, err := p.Handle(&Record{CommandBytes: append([]byte{CmdWriteToDisplay}, stream...)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	cell := p.Disp.Cell(0)
	if cell.Char != 'A' {
		t.Fatalf("cell[0].Char = %q, want 'A'", cell.Char)
	}
}

// TestWriteToDisplaySBANonOrigin confirms SBA decodes its operand as
// (row, col), not a packed linear address: row 2 col 5 must land at
// address 84 (row 1 is 80 cells wide), not at literal value 0x0205.
func TestWriteToDisplaySBANonOrigin(t *testing.T) {
	p := newTestProcessor()
	stream := []byte{OrderSBA, 0x02, 0x05, 0xC1}

	if _, err := p.Handle(&Record{CommandBytes: append([]byte{CmdWriteToDisplay}, stream...)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	want := p.Disp.AddressOf(2, 5)
	cell := p.Disp.Cell(want)
	if cell.Char != 'A' {
		t.Fatalf("cell[%d].Char = %q, want 'A' (SBA row=2,col=5 must land at address %d)", want, cell.Char, want)
	}
}

// TestSFDefinesFieldAndMDT checks that a field defined via SF tracks MDT
// only on user-origin writes, never on server-origin writes (the resolved
// Origin semantics).
func TestSFDefinesFieldAndMDT(t *testing.T) {
	p := newTestProcessor()
	stream := []byte{
		OrderSBA, 0x01, 0x01,
		OrderSF, 0x20, 0x00, 0x05, // protected-looking attr, length 5 (unused bit pattern for test)
	}
	if err := p.writeToDisplay(stream, display.OriginServer); err != nil {
		t.Fatalf("writeToDisplay: %v", err)
	}

	f, ok := p.Disp.GetFieldAt(0)
	if !ok {
		t.Fatal("expected field defined at address 0")
	}
	if f.Modified {
		t.Fatal("field should not be modified immediately after definition")
	}

	p.Disp.WriteChar(f.DataStart(), 'x', display.OriginServer)
	if f.Modified {
		t.Fatal("server-origin write must not set MDT")
	}

	p.Disp.WriteChar(f.DataStart(), 'x', display.OriginUser)
	if f.Flags.Protected {
		if f.Modified {
			t.Fatal("protected field must never set MDT regardless of origin")
		}
	} else if !f.Modified {
		t.Fatal("user-origin write to unprotected field must set MDT")
	}
}

// TestReadMDTResponseResetsMDT confirms a Read-MDT-Fields command both
// reports modified fields and clears MDT afterward (spec §4.3).
func TestReadMDTResponseResetsMDT(t *testing.T) {
	p := newTestProcessor()
	stream := []byte{
		OrderSBA, 0x01, 0x01,
		OrderSF, 0x00, 0x00, 0x03, // unprotected, length 3
	}
	if err := p.writeToDisplay(stream, display.OriginServer); err != nil {
		t.Fatalf("writeToDisplay: %v", err)
	}
	f, _ := p.Disp.GetFieldAt(0)
	p.Disp.WriteChar(f.DataStart(), 'Y', display.OriginUser)

	resp, err := p.Handle(&Record{CommandBytes: []byte{CmdReadMDTFields}})
	if err != nil {
		t.Fatalf("Handle ReadMDTFields: %v", err)
	}
	if len(resp) == 0 {
		t.Fatal("expected non-empty Read-MDT-Fields response")
	}
	if f.Modified {
		t.Fatal("Read-MDT-Fields must clear MDT after reporting it")
	}
}

// TestUnknownCommandProducesDSNR checks the default dispatch branch returns
// a DSNR reply together with an UnknownCommand error (spec §4.3/§7).
func TestUnknownCommandProducesDSNR(t *testing.T) {
	p := newTestProcessor()
	resp, err := p.Handle(&Record{CommandBytes: []byte{0xAA}})
	if err == nil {
		t.Fatal("expected error for unrecognized command")
	}
	if len(resp) == 0 {
		t.Fatal("expected DSNR bytes for unrecognized command")
	}
}

// TestClearUnitResetsBuffer verifies Clear Unit wipes fields and homes the
// cursor (spec §3 Lifecycles).
func TestClearUnitResetsBuffer(t *testing.T) {
	p := newTestProcessor()
	stream := []byte{OrderSBA, 0x01, 0x01, OrderSF, 0x00, 0x00, 0x02}
	_ = p.writeToDisplay(stream, display.OriginServer)

	if _, err := p.Handle(&Record{CommandBytes: []byte{CmdClearUnit}}); err != nil {
		t.Fatalf("Handle ClearUnit: %v", err)
	}
	if _, ok := p.Disp.GetFieldAt(0); ok {
		t.Fatal("expected no fields after Clear Unit")
	}
	row, col := p.Disp.Cursor()
	if row != 1 || col != 1 {
		t.Fatalf("cursor after Clear Unit = (%d,%d), want (1,1)", row, col)
	}
}

// TestQueryStructuredFieldReply checks the Write Structured Field dispatch
// recognizes the 5250-Query class/id pair and replies.
func TestQueryStructuredFieldReply(t *testing.T) {
	p := newTestProcessor()
	body := []byte{CmdWriteStructuredField, 0x00, 0x06, 0xD9, 0x70, 0x00, 0x00}
	resp, err := p.Handle(&Record{CommandBytes: body})
	if err != nil {
		t.Fatalf("Handle WriteStructuredField: %v", err)
	}
	if len(resp) == 0 {
		t.Fatal("expected a Query Reply")
	}
}
