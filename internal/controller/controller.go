// Package controller implements the session controller (spec §4.7/§5/§6):
// the single entry point a GUI collaborator drives. It owns the terminal
// controller mutex (display + field manager + protocol mode + cursor),
// the atomic connection-state flags, and cooperative cancellation, exactly
// matching the teacher's session.Session orchestration role but rebuilt
// around this core's mode-aware input API instead of a MUD command line.
package controller

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cwilbanks/tnterm/internal/apperrors"
	"github.com/cwilbanks/tnterm/internal/config"
	"github.com/cwilbanks/tnterm/internal/display"
	"github.com/cwilbanks/tnterm/internal/protocol"
	"github.com/cwilbanks/tnterm/internal/telnet"
	"github.com/cwilbanks/tnterm/internal/telnetsvc"
	"github.com/cwilbanks/tnterm/internal/tn3270"
	"github.com/cwilbanks/tnterm/internal/tn5250"
)

const (
	connectTimeout = 10 * time.Second
)

// connState is the tagged connection-state value backing the atomic flags
// (spec §5: "Connection state flags: atomic integers/booleans; no mutex").
type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// TLSOptions mirrors spec §6's TLS configuration surface.
type TLSOptions struct {
	Enabled          bool
	VerifyCertificate bool
	CABundlePath     string
}

// ScreenSnapshot is the non-blocking read the UI takes every repaint tick.
type ScreenSnapshot struct {
	Cells  []display.Cell
	Row    int
	Col    int
	Fields []*display.Field
}

// Controller is the session's single façade, safe for concurrent use by
// one UI goroutine and one worker goroutine (spec §5).
type Controller struct {
	id uuid.UUID

	state   atomic.Int32
	cancel  atomic.Bool
	lastErr atomic.Pointer[error]

	mu   sync.Mutex // guards disp, detector mode, field navigation state
	disp *display.Buffer

	conn *telnetsvc.Conn
	neg  *telnet.Negotiator
	cfg  *config.Collaborator

	lastSnapshot ScreenSnapshot
}

// New creates a Controller with a rows x cols display buffer.
func New(rows, cols int, cfg *config.Collaborator, log display.Logger) *Controller {
	return &Controller{
		id:   uuid.New(),
		disp: display.New(rows, cols, log),
		conn: telnetsvc.New(),
		cfg:  cfg,
	}
}

// ID returns this session's correlation identifier.
func (c *Controller) ID() uuid.UUID { return c.id }

func (c *Controller) setState(s connState) { c.state.Store(int32(s)) }

// IsConnected is a non-blocking atomic read.
func (c *Controller) IsConnected() bool {
	return connState(c.state.Load()) == stateConnected
}

// IsConnecting is a non-blocking atomic read.
func (c *Controller) IsConnecting() bool {
	return connState(c.state.Load()) == stateConnecting
}

// TakeLastError returns and clears the last recorded error, if any.
func (c *Controller) TakeLastError() error {
	p := c.lastErr.Swap(nil)
	if p == nil {
		return nil
	}
	return *p
}

func (c *Controller) setLastError(err error) {
	c.lastErr.Store(&err)
}

// ConnectAsync starts a connection attempt on a detached goroutine,
// returning immediately (spec §6 connect_async). protocolHint steers
// ambiguous-payload detection; it never forces a classification the bytes
// contradict.
func (c *Controller) ConnectAsync(host string, port int, tlsOpts TLSOptions, protocolHint protocol.Mode) {
	if c.IsConnected() || c.IsConnecting() {
		return
	}
	c.cancel.Store(false)
	c.setState(stateConnecting)

	go c.connectWorker(host, port, tlsOpts, protocolHint)
}

func (c *Controller) connectWorker(host string, port int, tlsOpts TLSOptions, hint protocol.Mode) {
	ctx, cancelFn := context.WithTimeout(context.Background(), connectTimeout)
	defer cancelFn()

	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.cancel.Load() {
					cancelFn()
					return
				}
			}
		}
	}()

	neg := telnet.NewNegotiator()
	termTypes := []string{"IBM-3179-2", "IBM-DYNAMIC"}
	if hint == protocol.TN3270 {
		termTypes = []string{"IBM-3278-2", "IBM-3279-2-E"}
	}
	neg.SetTerminalTypes(termTypes)
	if user, pass := c.cfg.Credentials(); user != "" {
		neg.SetCredentials(telnet.Credentials{Username: user, Password: pass})
	}

	c.mu.Lock()
	c.neg = neg
	c.disp.Clear()
	c.mu.Unlock()

	addr := hostPort(host, port)
	svcTLS := telnetsvc.TLSOptions{
		Enabled:           tlsOpts.Enabled,
		VerifyCertificate: tlsOpts.VerifyCertificate,
		CABundlePath:      tlsOpts.CABundlePath,
	}
	err := c.conn.Connect(ctx, addr, c.disp, neg, hint, svcTLS)
	if err != nil {
		if c.cancel.Load() {
			c.setLastError(apperrors.New(apperrors.KindCanceled, "connect canceled"))
		} else {
			c.setLastError(err)
		}
		c.setState(stateDisconnected)
		return
	}
	c.setState(stateConnected)

	c.drainEvents()
}

func (c *Controller) drainEvents() {
	for ev := range c.conn.Output() {
		switch ev.Kind {
		case telnetsvc.EventDisconnected:
			if c.cancel.Load() {
				c.setLastError(apperrors.New(apperrors.KindCanceled, "connection canceled"))
			} else if ev.Err != nil {
				c.setLastError(apperrors.Wrap(apperrors.KindReadTimeout, ev.Err, "connection lost"))
			}
			c.setState(stateDisconnected)
			c.cfg.ClearCredentials()
			return
		case telnetsvc.EventDSNR, telnetsvc.EventError:
			if ev.Err != nil {
				c.setLastError(ev.Err)
			}
		case telnetsvc.EventProtocolDetected:
			// Informational; UI reads mode via Snapshot's consumer if needed.
		}
	}
}

// CancelConnect flips the cooperative cancel flag (spec §6 cancel_connect).
func (c *Controller) CancelConnect() {
	c.cancel.Store(true)
}

// Disconnect is non-blocking: it tears down the socket from a detached
// goroutine so the UI never waits on I/O (spec §5).
func (c *Controller) Disconnect() {
	go func() {
		c.conn.Disconnect()
		c.setState(stateDisconnected)
		c.cfg.ClearCredentials()
	}()
}

// SnapshotScreen takes a non-blocking try-acquire read of the display. On
// contention it returns the previous snapshot rather than blocking (spec
// §6 snapshot_screen).
func (c *Controller) SnapshotScreen() ScreenSnapshot {
	if !c.mu.TryLock() {
		return c.lastSnapshot
	}
	defer c.mu.Unlock()

	row, col := c.disp.Cursor()
	snap := ScreenSnapshot{Cells: c.disp.Snapshot(), Row: row, Col: col, Fields: c.disp.Fields()}
	c.lastSnapshot = snap
	return snap
}

// SendAID enqueues an AID-key response built from the current buffer state,
// encoded for whichever of 5250/3270 the session actually detected (spec §6
// send_aid; spec §4.3/§4.4 for the two wire shapes).
func (c *Controller) SendAID(aid byte) error {
	c.mu.Lock()
	mods := c.disp.ReadModified()
	row, col := c.disp.Cursor()
	bufSize := c.disp.Rows * c.disp.Cols
	c.mu.Unlock()

	switch c.conn.Mode() {
	case protocol.TN3270:
		addr := c.disp.AddressOf(row, col)
		resp := tn3270.BuildAIDResponse(aid, addr, bufSize, mods)
		c.conn.NoteLastAID(aid)
		return c.conn.Send(resp)
	case protocol.TN5250:
		resp := tn5250.BuildAIDResponse(aid, row, col, mods)
		return c.conn.Send(resp)
	default:
		return apperrors.New(apperrors.KindProtocolMismatch, "send_aid is not valid in the current session mode")
	}
}

// TypeChar handles a single keystroke: in NVT mode it transmits the raw
// byte immediately; in 5250/3270 mode it writes into the locally-held
// field buffer and only transmits when SendAID fires (spec §6 type_char).
func (c *Controller) TypeChar(ch byte, mode protocol.Mode) error {
	if mode == protocol.NVT {
		return c.conn.Send([]byte{ch})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	addr := c.disp.CursorAddr()
	f, ok := c.disp.GetFieldAt(addr)
	if !ok {
		return apperrors.New(apperrors.KindCursorProtected, "cursor is not within a field")
	}
	if f.Flags.Protected {
		return apperrors.New(apperrors.KindCursorProtected, "field is protected")
	}
	if f.Flags.Numeric && !(ch >= '0' && ch <= '9') {
		return apperrors.New(apperrors.KindNumericOnly, "field accepts digits only")
	}

	c.disp.WriteChar(addr, ch, display.OriginUser)
	nextCol := addr + 1
	row, col := c.disp.RowColOf(nextCol)
	c.disp.SetCursor(row, col)
	return nil
}

// Backspace moves the cursor back one cell and, in field mode, clears it.
func (c *Controller) Backspace(mode protocol.Mode) error {
	if mode == protocol.NVT {
		return c.conn.Send([]byte{0x08})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	row, col := c.disp.Cursor()
	addr := c.disp.AddressOf(row, col) - 1
	c.disp.SetCursorAddr(addr)
	if f, ok := c.disp.GetFieldAt(addr); ok && !f.Flags.Protected {
		c.disp.WriteChar(addr, 0x00, display.OriginUser)
	}
	return nil
}

// Delete clears the cell at the cursor without moving it (field mode) or
// transmits the VT Delete sequence (NVT mode).
func (c *Controller) Delete(mode protocol.Mode) error {
	if mode == protocol.NVT {
		return c.conn.Send([]byte{0x1B, '[', '3', '~'})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := c.disp.CursorAddr()
	if f, ok := c.disp.GetFieldAt(addr); ok && !f.Flags.Protected {
		c.disp.WriteChar(addr, 0x00, display.OriginUser)
	}
	return nil
}

// NextField moves the cursor to the next unprotected field (Tab semantics
// in 5250/3270 field mode).
func (c *Controller) NextField() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if addr, ok := c.disp.FindNextUnprotected(c.disp.CursorAddr()); ok {
		c.disp.SetCursorAddr(addr)
	}
}

// PreviousField moves the cursor to the previous unprotected field by
// scanning backward field-by-field (the mirror of FindNextUnprotected).
func (c *Controller) PreviousField() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fields := c.disp.Fields()
	if len(fields) == 0 {
		return
	}
	cur := c.disp.CursorAddr()
	best := -1
	for _, f := range fields {
		if f.Flags.Protected {
			continue
		}
		d := f.DataStart()
		if d < cur && d > best {
			best = d
		}
	}
	if best < 0 {
		for _, f := range fields {
			if !f.Flags.Protected && f.DataStart() > best {
				best = f.DataStart()
			}
		}
	}
	if best >= 0 {
		c.disp.SetCursorAddr(best)
	}
}

// ClickAt positions the cursor at (row, col) and returns the field id the
// click landed in, if any (spec §6 click_at).
func (c *Controller) ClickAt(row, col int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disp.SetCursor(row, col)
	addr := c.disp.AddressOf(row, col)
	if f, ok := c.disp.GetFieldAt(addr); ok {
		return f.ID, true
	}
	return 0, false
}

// SetCredentials stores sign-on credentials for the next connect attempt
// (spec §6 set_credentials).
func (c *Controller) SetCredentials(user, pass string) {
	c.cfg.SetCredentials(user, pass)
}

// ClearCredentials wipes any stored credentials.
func (c *Controller) ClearCredentials() {
	c.cfg.ClearCredentials()
}

// RepaintInterval implements spec §4.7's adaptive scheduler: no repaint
// when disconnected, 100ms while connecting, 50ms when content changed
// since the last tick, else 500ms idle.
func (c *Controller) RepaintInterval() (time.Duration, bool) {
	if c.IsConnecting() {
		return 100 * time.Millisecond, true
	}
	if !c.IsConnected() {
		return 0, false
	}
	c.mu.Lock()
	changed := c.disp.AnyDirty()
	c.disp.ClearDirty()
	c.mu.Unlock()
	if changed {
		return 50 * time.Millisecond, true
	}
	return 500 * time.Millisecond, true
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
