package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lfreitas/syncbox/internal/config"
)

func TestValidateName(t *testing.T) {
	valid := []string{"default", "work", "a", "my-profile", "my_profile", "abc123"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "UPPER", "has space", "slash/name", "dot.name", "ümlaut",
		"0123456789012345678901234567890123456789012345678901234567890123x"} // 65 chars
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SYNCBOX_HOME", home)
	t.Setenv("SYNCBOX_PROFILE", "")

	// Nothing set: built-in default.
	if got := Resolve(""); got != "default" {
		t.Errorf("Resolve = %q, want default", got)
	}

	// Config file default.
	if err := config.Save(ConfigPath(), &config.Config{DefaultProfile: "fromconfig"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "fromconfig" {
		t.Errorf("Resolve = %q, want fromconfig", got)
	}

	// Environment beats config.
	t.Setenv("SYNCBOX_PROFILE", "fromenv")
	if got := Resolve(""); got != "fromenv" {
		t.Errorf("Resolve = %q, want fromenv", got)
	}

	// Flag beats everything.
	if got := Resolve("fromflag"); got != "fromflag" {
		t.Errorf("Resolve = %q, want fromflag", got)
	}
}

func TestPathsUnderBaseDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SYNCBOX_HOME", home)

	if got := DBPath("work"); got != filepath.Join(home, "profiles", "work", "cache.db") {
		t.Errorf("DBPath = %q", got)
	}
	if got := LockPath("work"); got != filepath.Join(home, "profiles", "work", "LOCK") {
		t.Errorf("LockPath = %q", got)
	}
	if got := LogPath("work"); got != filepath.Join(home, "profiles", "work", "logs", "syncboxd.log") {
		t.Errorf("LogPath = %q", got)
	}
	if got := ConfigPath(); got != filepath.Join(home, "config.toml") {
		t.Errorf("ConfigPath = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SYNCBOX_HOME", home)

	if err := EnsureDir("work"); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{Dir("work"), LogDir("work")} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("%s permission = %o, want 0700", dir, perm)
		}
	}
}
