// Package tn5250 implements the 5250 data-stream processor (spec §4.3):
// packet framing, commands, orders, structured fields, and DSNR negative
// responses, driving the shared internal/display buffer.
package tn5250

import "github.com/cwilbanks/tnterm/internal/apperrors"

const (
	maxRecordLen = 32 * 1024
	headerLen    = 6 // smallest valid LEN: 5 header bytes (see Record) plus one command byte
)

// Command bytes (first byte of the command-stream).
const (
	CmdWriteToDisplay      byte = 0xF1
	CmdReadBuffer          byte = 0xF2
	CmdReadMDTFields       byte = 0xF6
	CmdReadImmediate       byte = 0xF8
	CmdEraseWriteAlternate byte = 0x11
	CmdClearUnit           byte = 0x40
	CmdWriteStructuredField byte = 0xF3
	CmdSaveScreen          byte = 0x02
	CmdRestoreScreen       byte = 0x12
	CmdRoll                byte = 0x23
)

// Order bytes within a Write-to-Display command stream.
const (
	OrderSBA byte = 0x11
	OrderSF  byte = 0x1D
	OrderIC  byte = 0x13
	OrderRA  byte = 0x14
	OrderTD  byte = 0x10
	OrderWEA byte = 0x29
)

// DSNR reason codes (spec §4.3).
const (
	DSNRBufferOverflow  uint16 = 0x0801
	DSNRInvalidCursor   uint16 = 0x0802
	DSNRFieldAttribute  uint16 = 0x0803
	DSNRIncompleteData  uint16 = 0x1005
)

// Record is a parsed 5250 packet header plus its command stream.
type Record struct {
	RecordType   byte
	Reserved     byte
	Flags        byte
	CommandBytes []byte
}

// ParseRecord validates and splits a raw 5250 record per spec §4.3 framing:
// [LEN-hi LEN-lo][RECORD-TYPE][RESERVED][FLAGS]<command-stream>.
// LEN counts the whole record including its own 2 bytes.
func ParseRecord(raw []byte) (*Record, error) {
	if len(raw) < 2 {
		return nil, apperrors.New(apperrors.KindIncompleteData, "5250 record shorter than length header")
	}
	length := int(raw[0])<<8 | int(raw[1])
	if length < headerLen {
		return nil, apperrors.New(apperrors.KindBufferOverflow, "5250 record LEN=%d smaller than header", length)
	}
	if length > maxRecordLen {
		return nil, apperrors.New(apperrors.KindBufferOverflow, "5250 record LEN=%d exceeds %d byte ceiling", length, maxRecordLen)
	}
	if len(raw) < length {
		return nil, apperrors.New(apperrors.KindIncompleteData, "5250 record declares LEN=%d but only %d bytes available", length, len(raw))
	}
	if len(raw) != length {
		// Spec's test scenario S6 (LEN=4 with 40 bytes of payload) is the
		// inverse case: declared length smaller than the data actually
		// present. Data beyond the declared length is a buffer overflow;
		// the shorter case was already reported as incomplete data above.
		return nil, apperrors.New(apperrors.KindBufferOverflow, "5250 record LEN=%d does not match framed size %d", length, len(raw))
	}

	return &Record{
		RecordType:   raw[2],
		Reserved:     raw[3],
		Flags:        raw[4],
		CommandBytes: raw[5:length],
	}, nil
}

// Frame re-wraps a command stream with the standard length+header envelope
// used for both normal records and DSNR replies.
func Frame(recordType, reserved, flags byte, commandBytes []byte) []byte {
	total := headerLen - 1 + len(commandBytes) // headerLen-1 is the 5 header bytes: len(2)+type+reserved+flags
	out := make([]byte, 0, 2+total)
	full := 5 + len(commandBytes)
	out = append(out, byte(full>>8), byte(full&0xFF))
	out = append(out, recordType, reserved, flags)
	out = append(out, commandBytes...)
	return out
}

// BuildDSNR constructs a DSNR negative response packet (spec §4.3: "The DSNR
// packet format mirrors the command framing").
func BuildDSNR(reason uint16) []byte {
	payload := []byte{byte(reason >> 8), byte(reason & 0xFF)}
	return Frame(0x02 /* negative response record type */, 0, 0, payload)
}
