// Package telnet implements RFC 854/855 option negotiation, IAC escaping,
// RFC 1091 TTYPE cycling, and the RFC 1572/4777 NEW-ENVIRON credential
// exchange that sits beneath the 5250/3270/NVT data streams (spec §4.1).
//
// The byte-stream extraction state machine below is adapted from a
// general-purpose telnet parser in the same lineage as this package's
// sibling client code: a single pass over the buffer that classifies
// IAC/negotiation/subnegotiation spans and leaves incomplete trailing
// sequences buffered for the next Feed call.
package telnet

import "github.com/cwilbanks/tnterm/internal/apperrors"

// Telnet command bytes.
const (
	CmdSE   byte = 240
	CmdNOP  byte = 241
	CmdGA   byte = 249
	CmdSB   byte = 250
	CmdWILL byte = 251
	CmdWONT byte = 252
	CmdDO   byte = 253
	CmdDONT byte = 254
	CmdIAC  byte = 255
	CmdEOR  byte = 239
)

// Telnet option bytes relevant to spec §3/§4.1.
const (
	OptBinary     byte = 0
	OptEcho       byte = 1
	OptSGA        byte = 3
	OptTTYPE      byte = 24
	OptEOR        byte = 19 // spec.md §3 pins EOR to 19 for this emulator's negotiation
	OptNAWS       byte = 31
	OptNewEnviron byte = 39
)

// NEW-ENVIRON / TTYPE subnegotiation command bytes (RFC 1091, RFC 1572).
const (
	subIS   byte = 0
	subSend byte = 1
	// RFC 1572 variable classification bytes.
	envVAR     byte = 0
	envVALUE   byte = 1
	envESC     byte = 2
	envUSERVAR byte = 3
)

const maxSubnegotiation = 64 * 1024

// State is one leg of an option's negotiation state (spec §3's
// {NO, WANT-YES, YES, WANT-NO} domain).
type State int

const (
	StateNo State = iota
	StateWantYes
	StateYes
	StateWantNo
)

type optionState struct {
	local           State
	remote          State
	localSupported  bool
	localOffered    bool // WILL already sent for this option, pending remote confirmation
	remoteSupported bool
}

// Event is emitted by Feed for anything other than raw IAC-stripped
// application data (which Feed returns directly).
type Event struct {
	Kind EventKind
	Data []byte // Subnegotiation payload, already IAC-unescaped
	Opt  byte
}

// EventKind distinguishes the non-data events the negotiator can emit.
type EventKind int

const (
	EventNegotiation EventKind = iota
	EventSubnegotiation
	EventIACCommand // bare GA/EOR/NOP
)

// Credentials carries the username/password consumed by exactly one
// NEW-ENVIRON IS reply, then zeroed (spec §3).
type Credentials struct {
	Username   string
	Password   string
	DeviceName string
}

func (c *Credentials) zero() {
	c.Username = ""
	c.Password = ""
	c.DeviceName = ""
}

// Negotiator drives telnet option negotiation for one session. It is not
// safe for concurrent use; the session controller's worker goroutine owns
// it exclusively (spec §4.7).
type Negotiator struct {
	options [256]optionState

	buf       []byte
	sbOpt     byte
	sbPayload []byte
	inSB      bool

	termTypes []string
	termIdx   int

	creds       Credentials
	credsArmed  bool
	lastVars    []string // last explicit SEND var-list requested, for re-SEND replies

	ttypeExchanged bool
}

// NewNegotiator creates a negotiator pre-configured with the options the
// client supports locally (BINARY, SGA, EOR, TTYPE, NEW-ENVIRON) and will
// accept remotely (BINARY, SGA, EOR).
func NewNegotiator() *Negotiator {
	n := &Negotiator{
		termTypes: []string{"IBM-3179-2"},
	}
	for _, o := range []byte{OptBinary, OptSGA, OptEOR, OptTTYPE, OptNewEnviron} {
		n.options[o].localSupported = true
	}
	for _, o := range []byte{OptBinary, OptSGA, OptEOR} {
		n.options[o].remoteSupported = true
	}
	return n
}

// SetTerminalTypes configures the TTYPE candidate list offered on
// successive SEND requests (RFC 1091 cycling, supplemented per
// SPEC_FULL.md §4). The first entry is also what a fresh session starts
// with before any SEND has arrived.
func (n *Negotiator) SetTerminalTypes(types []string) {
	if len(types) == 0 {
		return
	}
	n.termTypes = types
	n.termIdx = 0
}

// SetCredentials arms exactly one NEW-ENVIRON IS response with these
// values; they are zeroed the moment that response is sent.
func (n *Negotiator) SetCredentials(c Credentials) {
	n.creds = c
	n.credsArmed = true
}

// InitialBurst returns the fixed negotiation opening spec §4.1 requires,
// and marks each option as proactively offered.
func (n *Negotiator) InitialBurst() []byte {
	var out []byte
	out = append(out, n.requestRemote(OptBinary)...)
	out = append(out, n.offerLocal(OptBinary)...)
	out = append(out, n.requestRemote(OptSGA)...)
	out = append(out, n.offerLocal(OptSGA)...)
	out = append(out, n.requestRemote(OptEOR)...)
	out = append(out, n.offerLocal(OptEOR)...)
	out = append(out, n.offerLocal(OptTTYPE)...)
	out = append(out, n.offerLocal(OptNewEnviron)...)
	return out
}

func (n *Negotiator) offerLocal(opt byte) []byte {
	st := &n.options[opt]
	if !st.localSupported || st.local == StateYes {
		return nil
	}
	st.localOffered = true
	if st.local == StateNo {
		st.local = StateWantYes
	}
	return []byte{CmdIAC, CmdWILL, opt}
}

func (n *Negotiator) requestRemote(opt byte) []byte {
	st := &n.options[opt]
	if !st.remoteSupported || st.remote == StateYes {
		return nil
	}
	if st.remote == StateNo {
		st.remote = StateWantYes
	}
	return []byte{CmdIAC, CmdDO, opt}
}

// LocalEnabled reports whether we are actively using option opt.
func (n *Negotiator) LocalEnabled(opt byte) bool { return n.options[opt].local == StateYes }

// RemoteEnabled reports whether the remote is actively using option opt.
func (n *Negotiator) RemoteEnabled(opt byte) bool { return n.options[opt].remote == StateYes }

// BinaryActive reports whether BINARY is enabled in either direction,
// which per spec §4.1 governs whether outbound 0xFF bytes must be doubled.
func (n *Negotiator) BinaryActive() bool {
	return n.LocalEnabled(OptBinary) || n.RemoteEnabled(OptBinary)
}

// NegotiationComplete reports spec §4.1's completion condition: BINARY
// enabled both ways, SGA enabled both ways, and one TTYPE SB exchange done.
// EOR is explicitly best-effort and not part of completion.
func (n *Negotiator) NegotiationComplete() bool {
	bin := n.LocalEnabled(OptBinary) && n.RemoteEnabled(OptBinary)
	sga := n.LocalEnabled(OptSGA) && n.RemoteEnabled(OptSGA)
	return bin && sga && n.ttypeExchanged
}

// Feed ingests bytes read off the wire and returns: outbound negotiation
// replies (to write back immediately), plain application data (IAC-stripped,
// with every IAC IAC pair collapsed to one 0xFF), non-negotiation events,
// and an error if the stream is malformed (spec §4.1 failure semantics).
func (n *Negotiator) Feed(data []byte) (toSend []byte, appData []byte, events []Event, err error) {
	n.buf = append(n.buf, data...)

	i := 0
	for i < len(n.buf) {
		b := n.buf[i]

		if n.inSB {
			consumed, complete, overflow := n.feedSubnegotiation(n.buf[i:])
			if overflow {
				return toSend, appData, events, apperrors.New(apperrors.KindMalformedIAC,
					"subnegotiation exceeded %d bytes without IAC SE", maxSubnegotiation)
			}
			i += consumed
			if !complete {
				n.buf = append([]byte(nil), n.buf[i:]...)
				return toSend, appData, events, nil
			}
			send, evs := n.completeSubnegotiation()
			toSend = append(toSend, send...)
			events = append(events, evs...)
			continue
		}

		if b != CmdIAC {
			appData = append(appData, b)
			i++
			continue
		}

		// b == IAC
		if i+1 >= len(n.buf) {
			break // wait for more data
		}
		cmd := n.buf[i+1]
		switch cmd {
		case CmdIAC:
			appData = append(appData, CmdIAC)
			i += 2
		case CmdSB:
			if i+2 >= len(n.buf) {
				goto needMore
			}
			n.inSB = true
			n.sbOpt = n.buf[i+2]
			n.sbPayload = n.sbPayload[:0]
			i += 3
		case CmdGA, CmdEOR, CmdNOP:
			events = append(events, Event{Kind: EventIACCommand, Opt: cmd})
			i += 2
		case CmdWILL, CmdWONT, CmdDO, CmdDONT:
			if i+2 >= len(n.buf) {
				goto needMore
			}
			opt := n.buf[i+2]
			send, ev := n.negotiate(cmd, opt)
			toSend = append(toSend, send...)
			if ev != nil {
				events = append(events, *ev)
			}
			i += 3
		default:
			// Unknown IAC command: skip it, do not treat as data.
			i += 2
		}
		continue

	needMore:
		break
	}

	n.buf = append([]byte(nil), n.buf[i:]...)
	return toSend, appData, events, nil
}

// feedSubnegotiation appends bytes to the pending SB payload until IAC SE is
// found (with IAC IAC inside the payload treated as a literal 0xFF).
// Returns how many bytes of in were consumed, whether SE was reached, and
// whether the 64KiB cap was exceeded first.
func (n *Negotiator) feedSubnegotiation(in []byte) (consumed int, complete bool, overflow bool) {
	j := 0
	for j < len(in) {
		b := in[j]
		if b == CmdIAC {
			if j+1 >= len(in) {
				return j, false, false
			}
			switch in[j+1] {
			case CmdSE:
				return j + 2, true, false
			case CmdIAC:
				n.sbPayload = append(n.sbPayload, CmdIAC)
				j += 2
				continue
			default:
				// Malformed: IAC followed by neither SE nor IAC inside SB.
				// Treat as literal and resync on data.
				n.sbPayload = append(n.sbPayload, b)
				j++
				continue
			}
		}
		n.sbPayload = append(n.sbPayload, b)
		j++
		if len(n.sbPayload) > maxSubnegotiation {
			return j, false, true
		}
	}
	return j, false, false
}

func (n *Negotiator) completeSubnegotiation() (toSend []byte, events []Event) {
	n.inSB = false
	opt := n.sbOpt
	payload := append([]byte(nil), n.sbPayload...)
	n.sbPayload = nil

	switch opt {
	case OptTTYPE:
		if len(payload) >= 1 && payload[0] == subSend && n.options[OptTTYPE].local == StateYes {
			toSend = append(toSend, n.ttypeReply()...)
			n.ttypeExchanged = true
		}
	case OptNewEnviron:
		if len(payload) >= 1 && payload[0] == subSend && n.options[OptNewEnviron].local == StateYes {
			names := parseSendVarNames(payload[1:])
			toSend = append(toSend, n.newEnvironReply(names)...)
		}
	}
	events = append(events, Event{Kind: EventSubnegotiation, Opt: opt, Data: payload})
	return toSend, events
}

func (n *Negotiator) ttypeReply() []byte {
	name := n.termTypes[n.termIdx]
	if n.termIdx < len(n.termTypes)-1 {
		n.termIdx++
	}
	payload := append([]byte{subIS}, []byte(name)...)
	return subnegotiate(OptTTYPE, payload)
}

// parseSendVarNames extracts the requested variable names from a NEW-ENVIRON
// SEND payload. An empty list means "send all known variables" (RFC 1572,
// the reading spec §4.1/§9 mandates).
func parseSendVarNames(rest []byte) []string {
	var names []string
	var cur []byte
	inName := false
	for _, b := range rest {
		switch b {
		case envVAR, envUSERVAR:
			if inName {
				names = append(names, string(cur))
			}
			cur = nil
			inName = true
		default:
			if inName {
				cur = append(cur, b)
			}
		}
	}
	if inName {
		names = append(names, string(cur))
	}
	return names
}

func (n *Negotiator) newEnvironReply(requested []string) []byte {
	known := map[string]struct {
		userVar bool
		value   string
	}{
		"USER":      {false, n.creds.Username},
		"IBMRSEED":  {true, ""},
		"IBMSUBSPW": {true, n.creds.Password},
		"DEVNAME":   {true, n.creds.DeviceName},
		"KBDTYPE":   {true, "USB"},
		"CODEPAGE":  {true, "37"},
		"CHARSET":   {true, "37"},
	}
	order := []string{"USER", "IBMRSEED", "IBMSUBSPW", "DEVNAME", "KBDTYPE", "CODEPAGE", "CHARSET"}

	names := requested
	if len(names) == 0 {
		names = order
	}

	var payload []byte
	payload = append(payload, subIS)
	for _, name := range names {
		v, ok := known[name]
		tag := envVAR
		if ok && v.userVar {
			tag = envUSERVAR
		}
		payload = append(payload, tag)
		payload = append(payload, []byte(name)...)
		if ok {
			payload = append(payload, envVALUE)
			payload = append(payload, []byte(v.value)...)
		}
		// Unknown requested name: VAR NAME with no VALUE field, per spec §4.1.
	}

	if n.credsArmed {
		n.creds.zero()
		n.credsArmed = false
	}
	return subnegotiate(OptNewEnviron, payload)
}

func subnegotiate(opt byte, payload []byte) []byte {
	escaped := EscapeIAC(payload)
	out := make([]byte, 0, 3+len(escaped)+2)
	out = append(out, CmdIAC, CmdSB, opt)
	out = append(out, escaped...)
	out = append(out, CmdIAC, CmdSE)
	return out
}

// negotiate applies spec §4.1's response policy for one WILL/WONT/DO/DONT.
func (n *Negotiator) negotiate(cmd, opt byte) (toSend []byte, ev *Event) {
	st := &n.options[opt]
	switch cmd {
	case CmdDO:
		if st.localSupported {
			switch {
			case st.local == StateYes:
				// already enabled; nothing to confirm.
			case st.local == StateWantYes && st.localOffered:
				// this DO confirms the WILL we already sent in offerLocal;
				// echoing another WILL here is how a negotiation loop starts.
				st.local = StateYes
				st.localOffered = false
			default:
				st.local = StateYes
				toSend = []byte{CmdIAC, CmdWILL, opt}
			}
		} else {
			toSend = []byte{CmdIAC, CmdWONT, opt}
		}
	case CmdDONT:
		if st.local != StateNo {
			st.local = StateNo
			st.localOffered = false
			toSend = []byte{CmdIAC, CmdWONT, opt}
		}
	case CmdWILL:
		if st.remoteSupported {
			if st.remote != StateYes {
				st.remote = StateYes
				toSend = []byte{CmdIAC, CmdDO, opt}
			}
		} else {
			toSend = []byte{CmdIAC, CmdDONT, opt}
		}
	case CmdWONT:
		if st.remote != StateNo {
			st.remote = StateNo
			toSend = []byte{CmdIAC, CmdDONT, opt}
		}
	}
	ev = &Event{Kind: EventNegotiation, Opt: opt, Data: []byte{cmd}}
	return toSend, ev
}

// EscapeIAC doubles every IAC byte in outbound application data.
func EscapeIAC(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		out = append(out, b)
		if b == CmdIAC {
			out = append(out, CmdIAC)
		}
	}
	return out
}

// UnescapeIAC collapses IAC IAC pairs in received data to a single 0xFF.
func UnescapeIAC(data []byte) []byte {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if data[i] == CmdIAC && i+1 < len(data) && data[i+1] == CmdIAC {
			out = append(out, CmdIAC)
			i += 2
			continue
		}
		out = append(out, data[i])
		i++
	}
	return out
}
