package tn5250

import (
	"github.com/cwilbanks/tnterm/internal/apperrors"
	"github.com/cwilbanks/tnterm/internal/display"
	"github.com/cwilbanks/tnterm/internal/ebcdic"
)

// AID values (spec §4.3) sent as the first byte of an inbound response.
const (
	AIDEnter     byte = 0xF1
	AIDPF3       byte = 0xF3
	AIDPF12      byte = 0xFC
	AIDClear     byte = 0xBD
	AIDHelp      byte = 0xF3
	AIDPageDown  byte = 0xF5
	AIDPageUp    byte = 0xF4
)

// BuildAIDResponse constructs the inbound record sent after the user
// presses an AID key: AID byte, cursor address, then the modified-field
// pairs (each SBA-prefixed address followed by its field's content,
// terminated implicitly by record length). fields is normally what
// display.Buffer.ReadModified returns, so the controller can build this
// response directly from a buffer snapshot without going through a
// Processor.
func BuildAIDResponse(aid byte, cursorRow, cursorCol int, fields []display.ModifiedField) []byte {
	body := make([]byte, 0, 8+16*len(fields))
	body = append(body, aid)
	body = append(body, byte(cursorRow), byte(cursorCol))
	for _, f := range fields {
		body = append(body, OrderSBA, byte(f.Addr>>8), byte(f.Addr&0xFF))
		body = append(body, ebcdic.BytesToEBCDIC(f.Content)...)
	}
	return Frame(0x00, 0, 0, body)
}

// buildReadMDTResponse walks the buffer's modified fields and frames them as
// a Read-MDT-Fields reply (spec §4.3 Read-MDT-Fields).
func (p *Processor) buildReadMDTResponse() []byte {
	mods := p.Disp.ReadModified()
	row, col := p.Disp.Cursor()
	resp := BuildAIDResponse(AIDEnter, row, col, mods)
	p.Disp.ResetMDT()
	return resp
}

// buildReadBufferResponse dumps the entire buffer content EBCDIC-encoded,
// one SF-prefixed segment per field plus bare data between fields (spec
// §4.3 Read-Buffer — used mainly by diagnostics, not interactive flow).
func (p *Processor) buildReadBufferResponse() []byte {
	body := make([]byte, 0, p.Disp.Rows*p.Disp.Cols)
	n := p.Disp.Rows * p.Disp.Cols
	for addr := 0; addr < n; addr++ {
		cell := p.Disp.Cell(addr)
		if cell.IsAttr {
			body = append(body, OrderSF, cell.Attr)
			continue
		}
		body = append(body, ebcdic.ToEBCDIC(cell.Char))
	}
	return Frame(0x00, 0, 0, body)
}

// writeStructuredField dispatches a 5250 Write Structured Field payload.
// body begins with a 2-byte length, then a class byte, then the SF ID.
func (p *Processor) writeStructuredField(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return BuildDSNR(DSNRIncompleteData), apperrors.New(apperrors.KindIncompleteData, "WSF header truncated")
	}
	sfClass := body[2]
	sfID := body[3]

	switch {
	case sfClass == 0xD9 && sfID == 0x70:
		return buildQueryReply(), nil
	case sfClass == 0xD9 && sfID == 0x85:
		// Set-Reply-Mode: acknowledged silently, this core always replies
		// in field-level mode regardless of the requested mode.
		return nil, nil
	default:
		return BuildDSNR(DSNRFieldAttribute), apperrors.New(apperrors.KindUnknownCommand, "unrecognized structured field class=0x%02X id=0x%02X", sfClass, sfID)
	}
}

// buildQueryReply answers a 5250 Query (0x84/class 0xD9 id 0x70) with a
// minimal Query Reply structured field advertising an 80x24 terminal with
// no extended capability flags, enough for hosts that gate sign-on screens
// on a successful query round-trip (spec §4.3).
func buildQueryReply() []byte {
	payload := []byte{
		0xD9, 0x70, // reply class/id, echoed back
		0x00, 0x06, // machine type placeholder
		24, 80, // rows, cols
		0x00, // no extended capabilities
	}
	return Frame(0x00, 0, 0, payload)
}
