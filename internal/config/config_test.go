package config

import (
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDirRespectsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdgtest")
	got := Dir()
	want := filepath.Join("/tmp/xdgtest", "tnterm")
	if got != want {
		t.Fatalf("Dir() = %q, want %q", got, want)
	}
}

func TestUpdatePersistsAndSnapshotReflectsChange(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	c := New()
	c.Update(func(s *Settings) {
		s.Host = "example.org"
		s.Port = 23
		s.ProtocolMode = "tn5250"
	})

	snap := c.Snapshot()
	if snap.Host != "example.org" || snap.Port != 23 {
		t.Fatalf("unexpected snapshot after update: %+v", snap)
	}
}

func TestCredentialsNeverPersisted(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	c := New()
	c.SetCredentials("alice", "hunter2")
	data, err := yaml.Marshal(&c.settings)
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	if contains(string(data), "alice") || contains(string(data), "hunter2") {
		t.Fatal("expected Settings marshaling to never include credentials")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestValidateProtocolMode(t *testing.T) {
	if err := ValidateProtocolMode("tn5250"); err != nil {
		t.Fatalf("expected tn5250 to validate, got %v", err)
	}
	if err := ValidateProtocolMode("bogus"); err == nil {
		t.Fatal("expected error for unrecognized protocol mode")
	}
}

func TestValidateCompatibility(t *testing.T) {
	if err := ValidateCompatibility("tn3270", "IBM-DYNAMIC"); err == nil {
		t.Fatal("expected incompatibility between tn3270 mode and a 5250 terminal type")
	}
	if err := ValidateCompatibility("tn5250", "IBM-DYNAMIC"); err != nil {
		t.Fatalf("expected IBM-DYNAMIC to be compatible with tn5250, got %v", err)
	}
}
