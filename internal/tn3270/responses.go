package tn3270

import (
	"github.com/cwilbanks/tnterm/internal/display"
	"github.com/cwilbanks/tnterm/internal/ebcdic"
)

// AID values (spec §4.4) sent as the first byte of an inbound 3270
// response, distinct from the 5250 AID table.
const (
	AIDNone  byte = 0x60
	AIDEnter byte = 0x7D
	AIDClear byte = 0x6D
	AIDPA1   byte = 0x6C
	AIDPA2   byte = 0x6E
	AIDPA3   byte = 0x6B
	AIDPF1   byte = 0xF1
	AIDPF3   byte = 0xF3
	AIDPF12  byte = 0xF8
)

// BuildAIDResponse constructs the inbound stream sent after the user
// presses an AID key: AID byte, cursor address (12- or 14-bit per bufSize),
// then SBA-prefixed modified-field pairs (spec §4.4: "AID byte, cursor
// address, then ..."). Unlike 5250, this carries no length+header envelope
// — the bytes go straight onto the wire.
func BuildAIDResponse(aid byte, cursorAddr, bufSize int, fields []display.ModifiedField) []byte {
	body := make([]byte, 0, 8+16*len(fields))
	body = append(body, aid)
	hi, lo := EncodeAddr(cursorAddr, bufSize)
	body = append(body, hi, lo)
	for _, f := range fields {
		fhi, flo := EncodeAddr(f.Addr, bufSize)
		body = append(body, OrderSBA, fhi, flo)
		body = append(body, ebcdic.BytesToEBCDIC(f.Content)...)
	}
	return body
}
