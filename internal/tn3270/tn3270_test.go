package tn3270

import (
	"testing"

	"github.com/cwilbanks/tnterm/internal/display"
)

func newTestProcessor() *Processor {
	buf := display.New(24, 80, nil)
	return New(buf)
}

// TestParseCommandSplitsWCC checks the Write family carries a WCC byte while
// Read-family commands do not (spec §4.4).
func TestParseCommandSplitsWCC(t *testing.T) {
	raw := []byte{CmdEraseWrite, WCCResetMDT, OrderSBA, 0x00, 0x00}
	cmd, err := ParseCommand(raw)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.WCC != WCCResetMDT {
		t.Fatalf("WCC = %#x, want %#x", cmd.WCC, WCCResetMDT)
	}
	if len(cmd.Body) != 3 {
		t.Fatalf("Body len = %d, want 3", len(cmd.Body))
	}

	raw2 := []byte{CmdReadModified}
	cmd2, err := ParseCommand(raw2)
	if err != nil {
		t.Fatalf("ParseCommand (read): %v", err)
	}
	if cmd2.WCC != 0 || len(cmd2.Body) != 0 {
		t.Fatalf("read command should carry no WCC/body, got WCC=%#x body=%v", cmd2.WCC, cmd2.Body)
	}
}

// TestEraseWriteThenReadModified exercises the S4 scenario: an Erase/Write
// defines an unprotected field, a simulated user edit sets MDT, and
// Read-Modified reports exactly that field.
func TestEraseWriteThenReadModified(t *testing.T) {
	p := newTestProcessor()
	stream := []byte{
		CmdEraseWrite, WCCResetMDT,
		OrderSBA, 0x40, 0x40,
		OrderSF, 0x00, // unprotected field
	}
	cmd, err := ParseCommand(stream)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if _, err := p.Handle(cmd); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	addr := DecodeAddr(0x40, 0x40, p.bufSize())
	f, ok := p.Disp.GetFieldAt(addr)
	if !ok {
		t.Fatal("expected field at decoded SBA address")
	}
	p.Disp.WriteChar(f.DataStart(), 'Z', display.OriginUser)

	p.SetLastAID(AIDEnter)
	resp := p.buildReadModifiedResponse()
	if len(resp) == 0 {
		t.Fatal("expected non-empty read-modified response")
	}
	if resp[0] != AIDEnter {
		t.Fatalf("resp[0] = %#x, want leading AID byte %#x", resp[0], AIDEnter)
	}
}

// TestEraseAllUnprotectedPreservesProtected confirms EAU clears only
// unprotected field content, per spec §4.4/§4.5.
func TestEraseAllUnprotectedPreservesProtected(t *testing.T) {
	p := newTestProcessor()
	stream := []byte{
		CmdEraseWrite, 0,
		OrderSBA, 0x00, 0x00,
		OrderSF, 0x20, // protected
		'A' ^ 0, // placeholder data byte, value irrelevant to this check
	}
	cmd, _ := ParseCommand(stream)
	if _, err := p.Handle(cmd); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	cmd2, _ := ParseCommand([]byte{CmdEraseAllUnprotected})
	if _, err := p.Handle(cmd2); err != nil {
		t.Fatalf("Handle EAU: %v", err)
	}
	// Protected field survives EAU; just confirm no panic and field intact.
	if _, ok := p.Disp.GetFieldAt(0); !ok {
		t.Fatal("protected field should still exist after EAU")
	}
}

// TestDecodeAddrWidthSelection checks 12-bit vs 14-bit selection based on
// buffer size.
func TestDecodeAddrWidthSelection(t *testing.T) {
	small := DecodeAddr(0x01, 0x02, 1920) // 24x80 screen
	if small != decode12Bit(0x01, 0x02) {
		t.Fatalf("expected 12-bit decode for small buffer")
	}
	large := DecodeAddr(0x01, 0x02, 4440) // buffer larger than 4096 positions
	if large != decode14Bit(0x01, 0x02) {
		t.Fatalf("expected 14-bit decode for large buffer")
	}
}

// TestUnknownCommandErrors checks the default dispatch branch.
func TestUnknownCommandErrors(t *testing.T) {
	p := newTestProcessor()
	cmd := &Command{Code: 0xAA}
	if _, err := p.Handle(cmd); err == nil {
		t.Fatal("expected error for unrecognized 3270 command")
	}
}
