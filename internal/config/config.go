// Package config resolves and persists the terminal's saved settings:
// host, port, protocol mode, terminal type, and (non-persisted) in-memory
// credentials (spec §6). Directory resolution follows the teacher's XDG
// convention; persistence is YAML via gopkg.in/yaml.v3.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwilbanks/tnterm/internal/apperrors"
)

// Dir returns the tnterm configuration directory, respecting
// XDG_CONFIG_HOME on Unix and APPDATA on Windows.
func Dir() string {
	var base string

	if runtime.GOOS == "windows" {
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	} else {
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(base, "tnterm")
}

// File returns the path to the saved settings file.
func File() string {
	return filepath.Join(Dir(), "settings.yaml")
}

// Settings is the persisted shape (spec §6). Credentials are deliberately
// absent: they live only in Collaborator's in-memory fields and are never
// marshaled.
type Settings struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ProtocolMode string `yaml:"protocol_mode"`
	TerminalType string `yaml:"terminal_type"`
}

// Collaborator owns the single mutex guarding saved settings plus the
// session's in-memory credentials, matching spec §4.7's pattern: the UI
// does non-blocking try-acquire reads, writes happen fire-and-forget with
// retry, and a single mutex serializes everything else.
type Collaborator struct {
	mu       sync.Mutex
	settings Settings
	username string
	password string

	writeRetries int
	writeBackoff time.Duration
}

// New loads settings from disk if present, otherwise starts from zero
// values. A missing or unreadable file is not an error: a fresh install
// has no saved settings yet.
func New() *Collaborator {
	c := &Collaborator{writeRetries: 3, writeBackoff: 200 * time.Millisecond}
	data, err := os.ReadFile(File())
	if err == nil {
		_ = yaml.Unmarshal(data, &c.settings)
	}
	return c
}

// Snapshot returns a copy of the current settings using a non-blocking
// try-acquire of the mutex. On contention it returns zero-value Settings
// (the same defaults a fresh install starts from) instead of waiting.
func (c *Collaborator) Snapshot() Settings {
	if !c.mu.TryLock() {
		return Settings{}
	}
	defer c.mu.Unlock()
	return c.settings
}

// Update applies fn to the settings under lock, then persists
// fire-and-forget in a separate goroutine with bounded retry.
func (c *Collaborator) Update(fn func(*Settings)) {
	c.mu.Lock()
	fn(&c.settings)
	snap := c.settings
	c.mu.Unlock()

	go c.persist(snap)
}

func (c *Collaborator) persist(s Settings) {
	data, err := yaml.Marshal(&s)
	if err != nil {
		return
	}
	dir := Dir()
	backoff := c.writeBackoff
	for attempt := 0; attempt < c.writeRetries; attempt++ {
		if err := os.MkdirAll(dir, 0o700); err == nil {
			if err := os.WriteFile(File(), data, 0o600); err == nil {
				return
			}
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

// SetCredentials stores a session's sign-on credentials in memory only.
func (c *Collaborator) SetCredentials(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.password = password
}

// Credentials returns the in-memory username/password pair.
func (c *Collaborator) Credentials() (username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username, c.password
}

// ClearCredentials wipes in-memory credentials, e.g. on disconnect.
func (c *Collaborator) ClearCredentials() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = ""
	c.password = ""
}

// ValidateProtocolMode checks mode is one of the recognized tagged values
// before it's accepted into Settings (spec §6 KindInvalidProtocolMode).
func ValidateProtocolMode(mode string) error {
	switch mode {
	case "auto", "tn5250", "tn3270", "nvt":
		return nil
	default:
		return apperrors.New(apperrors.KindInvalidProtocolMode, "unrecognized protocol mode %q", mode)
	}
}

// ValidateTerminalType checks the terminal type string is one of the 5250
// or 3270 device types this package recognizes (spec §6
// KindInvalidTerminalType).
func ValidateTerminalType(termType string) error {
	switch termType {
	case "IBM-3179-2", "IBM-3477-FC", "IBM-3279-2-E", "IBM-3278-2", "IBM-DYNAMIC":
		return nil
	default:
		return apperrors.New(apperrors.KindInvalidTerminalType, "unrecognized terminal type %q", termType)
	}
}

// ValidateCompatibility checks mode and termType agree on protocol family
// (spec §6 KindIncompatibleProtocolTerminal): a 5250 terminal type cannot
// be paired with tn3270 mode and vice versa.
func ValidateCompatibility(mode, termType string) error {
	is3270Term := termType == "IBM-3279-2-E" || termType == "IBM-3278-2"
	is5250Term := termType == "IBM-3179-2" || termType == "IBM-3477-FC" || termType == "IBM-DYNAMIC"

	switch mode {
	case "tn3270":
		if is5250Term {
			return apperrors.New(apperrors.KindIncompatibleProtocolTerminal, "terminal type %q is not a 3270 device", termType)
		}
	case "tn5250":
		if is3270Term {
			return apperrors.New(apperrors.KindIncompatibleProtocolTerminal, "terminal type %q is not a 5250 device", termType)
		}
	}
	return nil
}
