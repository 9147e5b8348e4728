package controller

import (
	"net"
	"testing"
	"time"

	"github.com/cwilbanks/tnterm/internal/config"
	"github.com/cwilbanks/tnterm/internal/protocol"
)

func newTestController(t *testing.T) (*Controller, func()) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := config.New()
	c := New(24, 80, cfg, nil)
	return c, func() { c.Disconnect() }
}

// TestInitialStateDisconnected checks a fresh Controller reports neither
// connected nor connecting.
func TestInitialStateDisconnected(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()

	if c.IsConnected() || c.IsConnecting() {
		t.Fatal("expected fresh controller to be neither connected nor connecting")
	}
	if err := c.TakeLastError(); err != nil {
		t.Fatalf("expected no last error, got %v", err)
	}
}

// TestConnectAsyncTransitionsToConnected dials a local echo-less listener
// and confirms the state machine reaches Connected.
func TestConnectAsyncTransitionsToConnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(300 * time.Millisecond)
	}()

	c, cleanup := newTestController(t)
	defer cleanup()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	var port int
	for _, ch := range portStr {
		port = port*10 + int(ch-'0')
	}

	c.ConnectAsync(host, port, TLSOptions{}, protocol.Auto)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !c.IsConnected() {
		t.Fatal("expected controller to reach Connected state")
	}
}

// TestCancelConnectSetsCancelFlag confirms CancelConnect is observable
// without blocking.
func TestCancelConnectSetsCancelFlag(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()

	c.CancelConnect()
	if !c.cancel.Load() {
		t.Fatal("expected cancel flag to be set")
	}
}

// TestSnapshotScreenNonBlocking checks an uncontended SnapshotScreen call
// returns the full 24x80 cell grid.
func TestSnapshotScreenNonBlocking(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()

	snap := c.SnapshotScreen()
	if len(snap.Cells) != 24*80 {
		t.Fatalf("expected %d cells, got %d", 24*80, len(snap.Cells))
	}
}

// TestSendAIDRejectsUnknownMode checks send_aid refuses to guess a wire
// encoding when no session has detected a field-mode protocol yet.
func TestSendAIDRejectsUnknownMode(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()

	if err := c.SendAID(0xF1); err == nil {
		t.Fatal("expected an error sending an AID with no detected protocol mode")
	}
}

// TestRepaintIntervalDisconnectedIsNone checks the adaptive scheduler
// returns no repaint when disconnected (spec §4.7).
func TestRepaintIntervalDisconnectedIsNone(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()

	if _, ok := c.RepaintInterval(); ok {
		t.Fatal("expected no repaint interval while disconnected")
	}
}
