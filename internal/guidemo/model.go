// Package guidemo is the thin GUI collaborator (spec §6): a bubbletea
// model that renders ScreenSnapshot and forwards keystrokes to the
// controller's public API. It holds no protocol knowledge of its own.
package guidemo

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cwilbanks/tnterm/internal/controller"
	"github.com/cwilbanks/tnterm/internal/protocol"
)

var (
	protectedStyle = lipgloss.NewStyle()
	cursorStyle    = lipgloss.NewStyle().Reverse(true)
	statusStyle    = lipgloss.NewStyle().Faint(true)
)

type repaintMsg struct{}

// Model is the bubbletea root model for the terminal viewer.
type Model struct {
	ctl  *controller.Controller
	mode protocol.Mode

	host string
	port int
	tls  controller.TLSOptions
}

// New returns a Model that drives ctl.
func New(ctl *controller.Controller, host string, port int, tls controller.TLSOptions) Model {
	return Model{ctl: ctl, host: host, port: port, tls: tls, mode: protocol.Auto}
}

// Init kicks off the initial connect and the first repaint tick.
func (m Model) Init() tea.Cmd {
	m.ctl.ConnectAsync(m.host, m.port, m.tls, protocol.Auto)
	return scheduleNextRepaint(100 * time.Millisecond)
}

func scheduleNextRepaint(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return repaintMsg{} })
}

// Update handles key and repaint messages, mapping keys onto the
// controller's mode-aware input API (spec §6).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case repaintMsg:
		d, ok := m.ctl.RepaintInterval()
		if !ok {
			return m, nil
		}
		return m, scheduleNextRepaint(d)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.ctl.Disconnect()
		return m, tea.Quit
	case tea.KeyEnter:
		m.ctl.SendAID(0xF1) // AIDEnter
	case tea.KeyTab:
		m.ctl.NextField()
	case tea.KeyShiftTab:
		m.ctl.PreviousField()
	case tea.KeyBackspace:
		m.ctl.Backspace(m.mode)
	case tea.KeyDelete:
		m.ctl.Delete(m.mode)
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if r >= 0 && r < 256 {
				m.ctl.TypeChar(byte(r), m.mode)
			}
		}
	}
	return m, nil
}

// View renders the current screen snapshot as a plain grid, highlighting
// the cursor cell (spec §6 snapshot_screen consumer).
func (m Model) View() string {
	snap := m.ctl.SnapshotScreen()
	if len(snap.Cells) == 0 {
		return statusStyle.Render("connecting...")
	}

	rows := 24
	cols := 80
	if len(snap.Cells) != rows*cols {
		rows, cols = guessGrid(len(snap.Cells))
	}

	var b lipgloss.Style
	var sb []byte
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			idx := r*cols + c
			cell := snap.Cells[idx]
			ch := cell.Char
			if ch == 0 {
				ch = ' '
			}
			b = protectedStyle
			if r+1 == snap.Row && c+1 == snap.Col {
				b = cursorStyle
			}
			sb = append(sb, []byte(b.Render(string(ch)))...)
		}
		sb = append(sb, '\n')
	}

	status := statusStyle.Render(connectionStatus(m.ctl))
	return string(sb) + status
}

func connectionStatus(ctl *controller.Controller) string {
	switch {
	case ctl.IsConnecting():
		return "connecting..."
	case ctl.IsConnected():
		return "connected"
	default:
		if err := ctl.TakeLastError(); err != nil {
			return "disconnected: " + err.Error()
		}
		return "disconnected"
	}
}

func guessGrid(n int) (rows, cols int) {
	switch {
	case n >= 32*80:
		return 32, 80
	case n >= 27*132:
		return 27, 132
	default:
		return 24, 80
	}
}
