// Package protocol classifies the first post-negotiation application
// payload as TN5250, TN3270, or NVT and keeps that choice sticky for the
// life of the session (spec §4.2).
package protocol

import "time"

// Mode is the tagged protocol-mode value from spec §3.
type Mode int

const (
	Auto Mode = iota
	TN5250
	TN3270
	NVT
)

func (m Mode) String() string {
	switch m {
	case TN5250:
		return "TN5250"
	case TN3270:
		return "TN3270"
	case NVT:
		return "NVT"
	default:
		return "Auto"
	}
}

// DetectionBudget is the time window after negotiation-complete within
// which the detector must classify, defaulting to NVT on expiry (spec §4.2).
const DetectionBudget = 5 * time.Second

// Detector holds the sticky classification decision for one session.
type Detector struct {
	mode Mode
	hint Mode // caller-provided preference, consulted only for an ambiguous first byte
}

// New creates a detector. hint, if not Auto, is used only to break ties in
// ambiguous payloads; it never overrides a clear classification of the
// actual bytes.
func New(hint Mode) *Detector {
	return &Detector{mode: Auto, hint: hint}
}

// Mode returns the current (possibly still Auto) classification.
func (d *Detector) Mode() Mode { return d.mode }

// Sticky reports whether classification has concluded.
func (d *Detector) Sticky() bool { return d.mode != Auto }

// Classify inspects the first classified payload and fixes the session's
// mode. Calling it again once sticky is a no-op (spec: "sticky for the
// session").
func (d *Detector) Classify(payload []byte) Mode {
	if d.Sticky() {
		return d.mode
	}
	d.mode = classify(payload, d.hint)
	return d.mode
}

// Expire forces NVT when the detection budget elapses with no payload
// (spec §4.2).
func (d *Detector) Expire() Mode {
	if !d.Sticky() {
		d.mode = NVT
	}
	return d.mode
}

func classify(payload []byte, hint Mode) Mode {
	if len(payload) == 0 {
		return NVT
	}

	if payload[0] == 0x1B && len(payload) > 1 && (payload[1] == '[' || payload[1] == '(') {
		return NVT
	}

	first := payload[0]
	is5250First := first == 0xF1 || first == 0xF5 || first == 0x11 || first == 0x04 || first == 0x40
	is3270First := first == 0xF1 || first == 0xF5 || first == 0x7E || first == 0x6F

	if is5250First && looksLike5250(payload) {
		return TN5250
	}
	if is3270First && looksLike3270(payload) {
		return TN3270
	}

	// Ambiguous first byte shared by both (0xF1/0xF5): prefer the hinted
	// protocol if it's one of the two candidates, else fall back to NVT.
	if (is5250First && is3270First) && (hint == TN5250 || hint == TN3270) {
		return hint
	}

	return NVT
}

// looksLike5250 does a shallow structural check: a 5250 record begins with
// a 2-byte length header, then record-type/reserved/flags, so byte[0] being
// a command code directly (F1 Write-to-Display, etc.) without a length
// envelope is implausible unless this payload is the command-stream tail of
// a record whose header the caller already stripped. We treat any payload
// starting with a recognized 5250 command byte AND containing a plausible
// EBCDIC order (SBA 0x11 or SF 0x1D) within the first few bytes as 5250.
func looksLike5250(payload []byte) bool {
	if payload[0] == 0x04 || payload[0] == 0x40 {
		return true // Query / Clear-Unit are unambiguous 5250 commands
	}
	for i := 1; i < len(payload) && i < 8; i++ {
		if payload[i] == 0x11 || payload[i] == 0x1D {
			return true
		}
	}
	return false
}

// looksLike3270 checks for the WCC byte following the command plus an SBA
// order (0x11) shortly after, the 3270 structural signature.
func looksLike3270(payload []byte) bool {
	if payload[0] == 0x6F {
		return true // Erase-All-Unprotected is unambiguous 3270
	}
	if len(payload) < 2 {
		return false
	}
	for i := 2; i < len(payload) && i < 8; i++ {
		if payload[i] == 0x11 {
			return true
		}
	}
	return false
}

// QueryCommand is the 5250 Query structured field that Connect
// (internal/telnetsvc) sends post-connect to solicit a confirming reply
// (spec §4.2).
var QueryCommand = []byte{0x04, 0xF3, 0x00, 0x00, 0x06, 0x00, 0x00, 0x03, 0xD9, 0x70, 0x80}

// QueryReplyBudget is the wait for a Query Reply after which its absence
// counts as a (non-invalidating) hint toward NVT. Connect does not wait on
// it; detection falls back to NVT only through DetectionBudget.
const QueryReplyBudget = 3 * time.Second
