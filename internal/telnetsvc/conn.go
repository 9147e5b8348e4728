// Package telnetsvc wires internal/telnet, internal/protocol, and the
// internal/tn5250, internal/tn3270, internal/ansivt processors onto a
// net.Conn, the way the teacher's network.TCPClient wires its own telnet
// parser onto a socket: one goroutine owns blocking reads, a second owns
// blocking writes, and a small set of atomics publish stats for the UI to
// poll without contending for the connection's own state.
package telnetsvc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwilbanks/tnterm/internal/ansivt"
	"github.com/cwilbanks/tnterm/internal/apperrors"
	"github.com/cwilbanks/tnterm/internal/display"
	"github.com/cwilbanks/tnterm/internal/protocol"
	"github.com/cwilbanks/tnterm/internal/telnet"
	"github.com/cwilbanks/tnterm/internal/tn3270"
	"github.com/cwilbanks/tnterm/internal/tn5250"
)

// Stats mirrors the teacher's atomic-counter Stats shape, extended with the
// protocol mode once detection settles.
type Stats struct {
	Connected    bool
	BytesRead    uint64
	BytesWritten uint64
	LastReadTime time.Time
	Mode         protocol.Mode
}

// EventKind distinguishes the small set of session-level notifications the
// conn surfaces to its owner (internal/controller), separate from the
// display buffer it mutates directly.
type EventKind int

const (
	EventDisconnected EventKind = iota
	EventProtocolDetected
	EventDSNR
	EventError
)

// Event is pushed onto the conn's stable output channel.
type Event struct {
	Kind EventKind
	Mode protocol.Mode
	Err  error
}

// Conn manages one TCP connection's lifecycle and drives the shared
// display.Buffer from whatever bytes arrive, the way TCPClient.Connect
// replaces c.current wholesale rather than mutating it in place.
type Conn struct {
	outputChan chan Event

	mu      sync.Mutex
	current *session

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	lastReadTime atomic.Int64
}

type session struct {
	conn net.Conn
	disp *display.Buffer

	neg      *telnet.Negotiator
	detector *protocol.Detector
	tn5250   *tn5250.Processor
	tn3270   *tn3270.Processor
	ansi     *ansivt.Interpreter

	mode protocol.Mode

	sendQueue   chan outbound
	done        chan struct{}
	closeOnce   sync.Once
	detectTimer *time.Timer
}

// outbound is one item queued for writeLoop. raw items are the negotiator's
// own negotiation/subnegotiation replies (telnet.go already frames and
// escapes these per spec §4.1) and must go out verbatim; non-raw items are
// application data (a tn5250/tn3270 reply or a caller's Send), which only
// need IAC-doubling, and only once BINARY is active (spec §4.1).
type outbound struct {
	data []byte
	raw  bool
}

// New creates a Conn, not yet connected; Connect binds it to a display.
func New() *Conn {
	return &Conn{outputChan: make(chan Event, 64)}
}

// Output returns the event channel; never closed for the Conn's lifetime.
func (c *Conn) Output() <-chan Event { return c.outputChan }

// Stats returns a snapshot of connection counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	cx := c.current
	c.mu.Unlock()

	var mode protocol.Mode
	if cx != nil {
		mode = cx.mode
	}
	lastRead := time.Unix(0, c.lastReadTime.Load())
	if c.lastReadTime.Load() == 0 {
		lastRead = time.Time{}
	}
	return Stats{
		Connected:    cx != nil,
		BytesRead:    c.bytesRead.Load(),
		BytesWritten: c.bytesWritten.Load(),
		LastReadTime: lastRead,
		Mode:         mode,
	}
}

// TLSOptions mirrors spec §6's TLS configuration surface: enabled,
// verify-certificate, and an optional CA bundle path.
type TLSOptions struct {
	Enabled           bool
	VerifyCertificate bool
	CABundlePath      string
}

// Connect dials address and starts the read/write goroutines against disp,
// replacing any existing connection (spec §4.7/§4.1).
func (c *Conn) Connect(ctx context.Context, address string, disp *display.Buffer, neg *telnet.Negotiator, hint protocol.Mode, tlsOpts TLSOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.close()
	}
	c.bytesRead.Store(0)
	c.bytesWritten.Store(0)
	c.lastReadTime.Store(0)

	var d net.Dialer
	rawConn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return apperrors.Wrap(apperrors.KindConnectFailed, err, "dial %s", address)
	}
	if tcpConn, ok := rawConn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	conn, err := wrapTLS(rawConn, address, tlsOpts)
	if err != nil {
		rawConn.Close()
		return err
	}

	cx := &session{
		conn:      conn,
		disp:      disp,
		neg:       neg,
		detector:  protocol.New(hint),
		tn5250:    tn5250.New(disp),
		tn3270:    tn3270.New(disp),
		ansi:      ansivt.New(disp),
		sendQueue: make(chan outbound, 256),
		done:      make(chan struct{}),
	}
	c.current = cx

	if burst := neg.InitialBurst(); len(burst) > 0 {
		if _, werr := conn.Write(burst); werr != nil {
			conn.Close()
			return apperrors.Wrap(apperrors.KindWriteFailed, werr, "initial telnet negotiation burst")
		}
	}

	go c.readLoop(cx)
	go c.writeLoop(cx)

	select {
	case cx.sendQueue <- outbound{data: protocol.QueryCommand}:
	default:
	}
	cx.detectTimer = time.AfterFunc(protocol.DetectionBudget, func() { c.expireDetection(cx) })

	return nil
}

// expireDetection forces NVT once the post-negotiation detection budget
// (spec §4.2) elapses with no payload to classify. A no-op if the session
// already classified itself, or was replaced/closed before the timer fired.
func (c *Conn) expireDetection(cx *session) {
	c.mu.Lock()
	isCurrent := c.current == cx
	c.mu.Unlock()
	if !isCurrent {
		return
	}
	if cx.detector.Sticky() {
		return
	}
	mode := cx.detector.Expire()
	cx.mode = mode
	select {
	case c.outputChan <- Event{Kind: EventProtocolDetected, Mode: mode}:
	default:
	}
}

// wrapTLS wraps rawConn in a TLS client connection when requested (spec §6:
// "TLS: optional transport wrapper... insecure=true disables verification
// and hostname checks with a loud warning"). The handshake runs here, still
// inside the worker, between TCP connect and Telnet negotiation.
func wrapTLS(rawConn net.Conn, address string, opts TLSOptions) (net.Conn, error) {
	if !opts.Enabled {
		return rawConn, nil
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}

	cfg := &tls.Config{ServerName: host, InsecureSkipVerify: !opts.VerifyCertificate}
	if opts.CABundlePath != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(opts.CABundlePath)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindTLSCertInvalid, err, "reading CA bundle %s", opts.CABundlePath)
		}
		if !pool.AppendCertsFromPEM(pem) {
			certs, derr := x509.ParseCertificates(pem)
			if derr != nil || len(certs) == 0 {
				return nil, apperrors.New(apperrors.KindTLSCertInvalid, "CA bundle %s contains no usable certificates", opts.CABundlePath)
			}
			for _, cert := range certs {
				pool.AddCert(cert)
			}
		}
		cfg.RootCAs = pool
	}

	tlsConn := tls.Client(rawConn, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		if _, ok := err.(*tls.CertificateVerificationError); ok {
			return nil, apperrors.Wrap(apperrors.KindTLSHostnameMismatch, err, "certificate verification failed for %s", host)
		}
		return nil, apperrors.Wrap(apperrors.KindTLSHandshakeFailed, err, "TLS handshake with %s", address)
	}
	return tlsConn, nil
}

// Disconnect closes the active connection, if any.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.close()
		c.current = nil
	}
}

// IsConnected reports whether a connection is currently active.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Mode reports the active session's detected protocol mode, or
// protocol.Auto if no session is connected yet.
func (c *Conn) Mode() protocol.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return protocol.Auto
	}
	return c.current.mode
}

// NoteLastAID records the AID of the key the controller just sent, so a
// later host-initiated Read-Modified(-All) poll on the 3270 path echoes it
// back (spec §4.4). A no-op in 5250/NVT mode or with no active session.
func (c *Conn) NoteLastAID(aid byte) {
	c.mu.Lock()
	cx := c.current
	c.mu.Unlock()
	if cx != nil && cx.mode == protocol.TN3270 {
		cx.tn3270.SetLastAID(aid)
	}
}

// Send queues application bytes (already EBCDIC-encoded by the caller, not
// yet IAC-escaped) for write, failing fast if the connection is gone or
// backed up.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	cx := c.current
	c.mu.Unlock()
	if cx == nil {
		return apperrors.New(apperrors.KindWriteFailed, "not connected")
	}
	select {
	case cx.sendQueue <- outbound{data: data}:
		return nil
	default:
		return apperrors.New(apperrors.KindWriteFailed, "send queue full")
	}
}

func (c *Conn) readLoop(cx *session) {
	buf := make([]byte, 8192)
	for {
		n, err := cx.conn.Read(buf)
		if err != nil {
			c.mu.Lock()
			isCurrent := c.current == cx
			if isCurrent {
				c.current = nil
			}
			c.mu.Unlock()
			if isCurrent {
				select {
				case c.outputChan <- Event{Kind: EventDisconnected, Err: err}:
				case <-cx.done:
				}
				cx.shutdown()
			}
			return
		}
		if n == 0 {
			continue
		}

		c.bytesRead.Add(uint64(n))
		c.lastReadTime.Store(time.Now().UnixNano())

		toSend, appData, events, ferr := cx.neg.Feed(buf[:n])
		if len(toSend) > 0 {
			select {
			case cx.sendQueue <- outbound{data: toSend, raw: true}:
			case <-cx.done:
				return
			}
		}
		if ferr != nil {
			select {
			case c.outputChan <- Event{Kind: EventError, Err: ferr}:
			case <-cx.done:
				return
			}
			if k, ok := apperrors.Of(ferr); ok && apperrors.Fatal(k) {
				cx.close()
				return
			}
		}
		_ = events // negotiation/IAC events are informational only today

		if len(appData) > 0 {
			c.dispatch(cx, appData)
		}
	}
}

func (c *Conn) dispatch(cx *session, appData []byte) {
	if !cx.detector.Sticky() {
		mode := cx.detector.Classify(appData)
		cx.mode = mode
		select {
		case c.outputChan <- Event{Kind: EventProtocolDetected, Mode: mode}:
		default:
		}
	}

	var err error
	switch cx.mode {
	case protocol.TN5250:
		rec, perr := tn5250.ParseRecord(appData)
		if perr != nil {
			err = perr
		} else {
			var resp []byte
			resp, err = cx.tn5250.Handle(rec)
			if len(resp) > 0 {
				select {
				case cx.sendQueue <- outbound{data: resp}:
				case <-cx.done:
				}
			}
		}
	case protocol.TN3270:
		cmd, perr := tn3270.ParseCommand(appData)
		if perr != nil {
			err = perr
		} else {
			var resp []byte
			resp, err = cx.tn3270.Handle(cmd)
			if len(resp) > 0 {
				select {
				case cx.sendQueue <- outbound{data: resp}:
				case <-cx.done:
				}
			}
		}
	default:
		cx.ansi.Feed(appData)
	}

	if err != nil {
		select {
		case c.outputChan <- Event{Kind: EventDSNR, Err: err}:
		default:
		}
	}
}

func (c *Conn) writeLoop(cx *session) {
	for {
		select {
		case <-cx.done:
			return
		case item := <-cx.sendQueue:
			out := item.data
			if !item.raw && cx.neg.BinaryActive() {
				out = telnet.EscapeIAC(out)
			}
			cx.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			n, err := cx.conn.Write(out)
			cx.conn.SetWriteDeadline(time.Time{})
			if err != nil {
				cx.conn.Close()
				return
			}
			c.bytesWritten.Add(uint64(n))
		}
	}
}

func (cx *session) close() {
	cx.conn.Close()
	if cx.detectTimer != nil {
		cx.detectTimer.Stop()
	}
	cx.shutdown()
}

func (cx *session) shutdown() {
	cx.closeOnce.Do(func() { close(cx.done) })
}
