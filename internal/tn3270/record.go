// Package tn3270 implements the 3270 data-stream processor (spec §4.4):
// commands, WCC, orders, 12/14-bit buffer addressing, and Read-Modified
// response construction, driving the shared internal/display buffer.
package tn3270

import "github.com/cwilbanks/tnterm/internal/apperrors"

// Command bytes (spec §4.4).
const (
	CmdWrite               byte = 0xF1
	CmdEraseWrite          byte = 0xF5
	CmdEraseWriteAlternate byte = 0x7E
	CmdEraseAllUnprotected byte = 0x6F
	CmdReadBuffer          byte = 0xF2
	CmdReadModified        byte = 0xF6
	CmdReadModifiedAll     byte = 0x6E
)

// Order bytes (spec §4.4).
const (
	OrderSBA byte = 0x11
	OrderSF  byte = 0x1D
	OrderSFE byte = 0x29
	OrderIC  byte = 0x13
	OrderPT  byte = 0x05
	OrderRA  byte = 0x3C
	OrderEUA byte = 0x12
	OrderSA  byte = 0x28
	OrderMF  byte = 0x2C
)

// WCC bits (spec §4.4): bit meanings per the WCC byte following the command.
const (
	WCCResetMDT       byte = 0x01
	WCCAlarm          byte = 0x04
	WCCKeyboardReset  byte = 0x02
	WCCStartPrinter   byte = 0x08
)

// Command parses the command byte and WCC (when the command carries one),
// returning the remainder of the stream to be interpreted as orders/data.
type Command struct {
	Code byte
	WCC  byte
	Body []byte
}

// hasWCC reports whether cmd's stream begins with a WCC byte (Write family
// does; Read/EraseAllUnprotected do not).
func hasWCC(cmd byte) bool {
	switch cmd {
	case CmdWrite, CmdEraseWrite, CmdEraseWriteAlternate:
		return true
	default:
		return false
	}
}

// ParseCommand splits a raw 3270 inbound data stream into its command,
// optional WCC, and order/data body.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.KindIncompleteData, "empty 3270 data stream")
	}
	c := &Command{Code: raw[0]}
	rest := raw[1:]
	if hasWCC(c.Code) {
		if len(rest) == 0 {
			return nil, apperrors.New(apperrors.KindIncompleteData, "3270 command 0x%02X missing WCC byte", c.Code)
		}
		c.WCC = rest[0]
		rest = rest[1:]
	}
	c.Body = rest
	return c, nil
}

// decode12Bit converts a 3270 12-bit encoded buffer address (two bytes, each
// carrying 6 significant bits per the classic 3270 address code table) to a
// linear address. Spec §4.4 ties buffer size to address width: 12-bit
// addressing covers up to 4096 positions (the 24x80 default screen).
func decode12Bit(b1, b2 byte) int {
	return int(b1&0x3F)<<6 | int(b2&0x3F)
}

// decode14Bit converts a 14-bit buffer address (used by models with screens
// larger than 4096 positions) straight from the two raw bytes.
func decode14Bit(b1, b2 byte) int {
	return int(b1&0x3F)<<8 | int(b2)
}

// DecodeAddr dispatches to 12-bit or 14-bit decoding based on the buffer
// size the processor was configured for.
func DecodeAddr(b1, b2 byte, bufSize int) int {
	if bufSize > 4096 {
		return decode14Bit(b1, b2)
	}
	return decode12Bit(b1, b2)
}

// encode12Bit is the inverse of decode12Bit, used when building Read-Buffer
// replies that echo SBA addresses back to the host.
func encode12Bit(addr int) (byte, byte) {
	return byte((addr >> 6) & 0x3F), byte(addr & 0x3F)
}

// encode14Bit is the inverse of decode14Bit.
func encode14Bit(addr int) (byte, byte) {
	return byte((addr >> 8) & 0x3F), byte(addr & 0xFF)
}

// EncodeAddr is the inverse of DecodeAddr: it picks 12-bit or 14-bit
// encoding based on the same buffer-size rule.
func EncodeAddr(addr, bufSize int) (byte, byte) {
	if bufSize > 4096 {
		return encode14Bit(addr)
	}
	return encode12Bit(addr)
}
