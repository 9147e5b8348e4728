package tn3270

import (
	"github.com/cwilbanks/tnterm/internal/apperrors"
	"github.com/cwilbanks/tnterm/internal/display"
	"github.com/cwilbanks/tnterm/internal/ebcdic"
)

// Processor applies 3270 commands to a shared display.Buffer.
type Processor struct {
	Disp *display.Buffer

	// lastAID is the AID of the most recent key the terminal reported to
	// the host; a host-initiated Read-Modified(-All) poll echoes it back
	// as the first byte of its reply (spec §4.4), the same AID the
	// terminal already sent when the key was first pressed.
	lastAID byte
}

// New returns a Processor bound to disp.
func New(disp *display.Buffer) *Processor {
	return &Processor{Disp: disp, lastAID: AIDNone}
}

// SetLastAID records the AID of the key the terminal most recently
// reported, so a later host poll (Read-Modified/Read-Modified-All) echoes
// the right value (spec §4.4).
func (p *Processor) SetLastAID(aid byte) { p.lastAID = aid }

func (p *Processor) bufSize() int { return p.Disp.Rows * p.Disp.Cols }

// Handle dispatches a parsed 3270 command and returns any reply bytes.
func (p *Processor) Handle(cmd *Command) ([]byte, error) {
	switch cmd.Code {
	case CmdEraseWrite, CmdEraseWriteAlternate:
		p.Disp.Clear()
		if err := p.applyOrders(cmd.Body); err != nil {
			return nil, err
		}
		p.applyWCC(cmd.WCC)
		return nil, nil
	case CmdWrite:
		if err := p.applyOrders(cmd.Body); err != nil {
			return nil, err
		}
		p.applyWCC(cmd.WCC)
		return nil, nil
	case CmdEraseAllUnprotected:
		p.Disp.EraseUnprotected()
		return nil, nil
	case CmdReadModified, CmdReadModifiedAll:
		return p.buildReadModifiedResponse(), nil
	case CmdReadBuffer:
		return p.buildReadBufferResponse(), nil
	default:
		return nil, apperrors.New(apperrors.KindUnknownCommand, "unrecognized 3270 command 0x%02X", cmd.Code)
	}
}

func (p *Processor) applyWCC(wcc byte) {
	if wcc&WCCResetMDT != 0 {
		p.Disp.ResetMDT()
	}
}

// applyOrders interprets the order/data stream following a Write family
// command (spec §4.4): SBA, SF, SFE, IC, PT, RA, EUA, SA, MF, and raw
// EBCDIC data runs.
func (p *Processor) applyOrders(stream []byte) error {
	i := 0
	writeAddr := p.Disp.CursorAddr()

	for i < len(stream) {
		b := stream[i]
		switch b {
		case OrderSBA:
			if i+2 >= len(stream) {
				return apperrors.New(apperrors.KindIncompleteData, "SBA truncated")
			}
			writeAddr = DecodeAddr(stream[i+1], stream[i+2], p.bufSize())
			i += 3
		case OrderSF:
			if i+1 >= len(stream) {
				return apperrors.New(apperrors.KindIncompleteData, "SF truncated")
			}
			attr := stream[i+1]
			p.Disp.DefineField(writeAddr, attr, 0, decodeFieldFlags(attr))
			writeAddr = (writeAddr + 1) % p.bufSize()
			i += 2
		case OrderSFE:
			if i+1 >= len(stream) {
				return apperrors.New(apperrors.KindIncompleteData, "SFE truncated")
			}
			n := int(stream[i+1])
			i += 2
			attr := byte(0)
			for j := 0; j < n && i+1 < len(stream); j++ {
				attrType, attrVal := stream[i], stream[i+1]
				if attrType == 0xC0 { // basic field attribute type
					attr = attrVal
				}
				i += 2
			}
			p.Disp.DefineField(writeAddr, attr, 0, decodeFieldFlags(attr))
			writeAddr = (writeAddr + 1) % p.bufSize()
		case OrderIC:
			p.Disp.SetCursorAddr(writeAddr)
			i++
		case OrderPT:
			addr, ok := p.Disp.FindNextUnprotected(writeAddr)
			if ok {
				writeAddr = addr
				p.Disp.SetCursorAddr(addr)
			}
			i++
		case OrderRA:
			if i+3 >= len(stream) {
				return apperrors.New(apperrors.KindIncompleteData, "RA truncated")
			}
			stopAddr := DecodeAddr(stream[i+1], stream[i+2], p.bufSize())
			fillChar := ebcdic.ToASCII(stream[i+3])
			i += 4
			for a := writeAddr; ; a = (a + 1) % p.bufSize() {
				p.Disp.WriteChar(a, fillChar, display.OriginServer)
				if a == stopAddr {
					break
				}
			}
			writeAddr = (stopAddr + 1) % p.bufSize()
		case OrderEUA:
			if i+2 >= len(stream) {
				return apperrors.New(apperrors.KindIncompleteData, "EUA truncated")
			}
			stopAddr := DecodeAddr(stream[i+1], stream[i+2], p.bufSize())
			i += 3
			for a := writeAddr; ; a = (a + 1) % p.bufSize() {
				if f, ok := p.Disp.GetFieldAt(a); !ok || !f.Flags.Protected {
					p.Disp.WriteChar(a, 0x00, display.OriginServer)
				}
				if a == stopAddr {
					break
				}
			}
			writeAddr = (stopAddr + 1) % p.bufSize()
		case OrderSA, OrderMF:
			// Set Attribute / Modify Field: extended-attribute orders this
			// core does not render (color, highlighting); skip their
			// fixed-size payload so the stream stays aligned.
			if b == OrderSA {
				i += 3
			} else {
				if i+1 >= len(stream) {
					return apperrors.New(apperrors.KindIncompleteData, "MF truncated")
				}
				n := int(stream[i+1])
				i += 2 + 2*n
			}
		default:
			ch := ebcdic.ToASCII(b)
			p.Disp.WriteChar(writeAddr, ch, display.OriginServer)
			writeAddr = (writeAddr + 1) % p.bufSize()
			i++
		}
	}
	return nil
}

func decodeFieldFlags(attr byte) display.FieldFlags {
	return display.FieldFlags{
		Protected:      attr&0x20 != 0,
		Numeric:        attr&0x10 != 0,
		MandatoryEntry: attr&0x0C == 0x0C,
	}
}

// buildReadModifiedResponse builds the AID + modified-field reply with
// BuildAIDResponse: SBA-prefixed field pairs, with no 5250-style
// length+header envelope (spec §4.4). The leading AID byte
// is the one SetLastAID most recently recorded, per the AID Processor
// doc comment above.
func (p *Processor) buildReadModifiedResponse() []byte {
	mods := p.Disp.ReadModified()
	row, col := p.Disp.Cursor()
	addr := p.Disp.AddressOf(row, col)
	return BuildAIDResponse(p.lastAID, addr, p.bufSize(), mods)
}

// buildReadBufferResponse dumps the whole grid EBCDIC-encoded with SF
// markers at field-attribute positions (spec §4.4 Read-Buffer).
func (p *Processor) buildReadBufferResponse() []byte {
	n := p.bufSize()
	body := make([]byte, 0, n)
	for addr := 0; addr < n; addr++ {
		cell := p.Disp.Cell(addr)
		if cell.IsAttr {
			body = append(body, OrderSF, cell.Attr)
			continue
		}
		body = append(body, ebcdic.ToEBCDIC(cell.Char))
	}
	return body
}
