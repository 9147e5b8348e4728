package telnet

import (
	"bytes"
	"testing"
)

// TestInitialBurstOffersWillTTYPE checks the fixed opening burst contains
// WILL TTYPE and leaves TTYPE offered but unconfirmed (spec §4.1).
func TestInitialBurstOffersWillTTYPE(t *testing.T) {
	n := NewNegotiator()
	burst := n.InitialBurst()

	want := []byte{CmdIAC, CmdWILL, OptTTYPE}
	if !bytes.Contains(burst, want) {
		t.Fatalf("initial burst %v does not contain WILL TTYPE", burst)
	}
	if !n.options[OptTTYPE].localOffered {
		t.Fatal("expected TTYPE to be marked as proactively offered")
	}
	if n.options[OptTTYPE].local != StateWantYes {
		t.Fatalf("TTYPE local state = %v, want StateWantYes until the peer confirms", n.options[OptTTYPE].local)
	}
}

// TestDoConfirmingOurOwnOfferDoesNotReEcho is the regression case for the
// loop-prevention bug: once we've proactively sent WILL TTYPE, the peer's
// confirming DO TTYPE must not produce a second WILL TTYPE. Echoing one
// back is how negotiation loops start.
func TestDoConfirmingOurOwnOfferDoesNotReEcho(t *testing.T) {
	n := NewNegotiator()
	n.InitialBurst() // sends WILL TTYPE, marks localOffered

	toSend, _, _, err := n.Feed([]byte{CmdIAC, CmdDO, OptTTYPE})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(toSend) != 0 {
		t.Fatalf("expected no reply confirming our own offer, got %v", toSend)
	}
	if !n.LocalEnabled(OptTTYPE) {
		t.Fatal("expected TTYPE local state to advance to StateYes")
	}
	if n.options[OptTTYPE].localOffered {
		t.Fatal("expected localOffered to clear once the offer is confirmed")
	}
}

// TestDoFromPeerInitiativeGetsEchoedWill checks the other half of the same
// branch: a DO arriving for an option we never proactively offered (peer
// asking first) still gets an echoed WILL.
func TestDoFromPeerInitiativeGetsEchoedWill(t *testing.T) {
	n := NewNegotiator()

	toSend, _, _, err := n.Feed([]byte{CmdIAC, CmdDO, OptEOR})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	want := []byte{CmdIAC, CmdWILL, OptEOR}
	if !bytes.Equal(toSend, want) {
		t.Fatalf("reply = %v, want %v", toSend, want)
	}
	if !n.LocalEnabled(OptEOR) {
		t.Fatal("expected EOR local state to advance to StateYes")
	}
}

// TestDontClearsLocalOfferedFlag checks a DONT arriving after we proactively
// offered WILL clears localOffered too, so a later re-offer doesn't get
// confused with a stale confirmation.
func TestDontClearsLocalOfferedFlag(t *testing.T) {
	n := NewNegotiator()
	n.InitialBurst()

	if _, _, _, err := n.Feed([]byte{CmdIAC, CmdDONT, OptTTYPE}); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if n.LocalEnabled(OptTTYPE) {
		t.Fatal("expected TTYPE local state to be disabled after DONT")
	}
	if n.options[OptTTYPE].localOffered {
		t.Fatal("expected localOffered to clear on DONT")
	}
}

// TestFeedEscapesAndUnescapesIAC checks application data with a literal
// 0xFF byte round-trips through IAC IAC without disturbing negotiation
// replies interleaved in the same buffer.
func TestFeedEscapesAndUnescapesIAC(t *testing.T) {
	n := NewNegotiator()
	raw := []byte{'A', CmdIAC, CmdIAC, 'B', CmdIAC, CmdWILL, OptSGA}

	_, appData, _, err := n.Feed(raw)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	want := []byte{'A', CmdIAC, 'B'}
	if !bytes.Equal(appData, want) {
		t.Fatalf("appData = %v, want %v", appData, want)
	}
}

// TestFeedSplitAcrossReadsBuffersIncomplete checks a negotiation command
// split across two Feed calls is buffered rather than misparsed as data.
func TestFeedSplitAcrossReadsBuffersIncomplete(t *testing.T) {
	n := NewNegotiator()

	toSend, appData, _, err := n.Feed([]byte{CmdIAC, CmdDO})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(toSend) != 0 || len(appData) != 0 {
		t.Fatalf("expected no output yet, got toSend=%v appData=%v", toSend, appData)
	}

	toSend, _, _, err = n.Feed([]byte{OptNAWS})
	if err != nil {
		t.Fatalf("Feed (continuation): %v", err)
	}
	want := []byte{CmdIAC, CmdWONT, OptNAWS} // NAWS is not locally supported here
	if !bytes.Equal(toSend, want) {
		t.Fatalf("reply = %v, want %v", toSend, want)
	}
}

// TestTTYPESubnegotiationReplies checks a SEND request on an enabled TTYPE
// option produces an IS reply carrying the configured terminal type.
func TestTTYPESubnegotiationReplies(t *testing.T) {
	n := NewNegotiator()
	n.SetTerminalTypes([]string{"IBM-3477-FC"})
	if _, _, _, err := n.Feed([]byte{CmdIAC, CmdDO, OptTTYPE}); err != nil {
		t.Fatalf("Feed (DO TTYPE): %v", err)
	}
	if !n.LocalEnabled(OptTTYPE) {
		t.Fatal("expected TTYPE to be enabled after DO")
	}

	sb := []byte{CmdIAC, CmdSB, OptTTYPE, subSend, CmdIAC, CmdSE}
	toSend, _, events, err := n.Feed(sb)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(events) == 0 || events[len(events)-1].Kind != EventSubnegotiation {
		t.Fatalf("expected a subnegotiation event, got %v", events)
	}
	wantPrefix := []byte{CmdIAC, CmdSB, OptTTYPE, subIS}
	wantPrefix = append(wantPrefix, "IBM-3477-FC"...)
	if !bytes.HasPrefix(toSend, wantPrefix) {
		t.Fatalf("reply = %v, want prefix %v", toSend, wantPrefix)
	}
	if !bytes.HasSuffix(toSend, []byte{CmdIAC, CmdSE}) {
		t.Fatalf("reply = %v, missing IAC SE terminator", toSend)
	}
}
