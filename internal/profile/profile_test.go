package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/mixdesk/internal/config"
)

func TestDirHonorsHomeOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MIXDESK_HOME", tmpDir)

	got := Dir("main")
	want := filepath.Join(tmpDir, "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestSocketAndLockPaths(t *testing.T) {
	if got := SocketPath("test"); !strings.HasSuffix(got, filepath.Join("profiles", "test", "mixd.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix profiles/test/mixd.sock", got)
	}
	if got := LockPath("test"); !strings.HasSuffix(got, filepath.Join("profiles", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix profiles/test/LOCK", got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("MIXDESK_HOME", t.TempDir())

	if err := EnsureDir("studio"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(LogDir("studio"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("log dir permission = %o, want 0700", info.Mode().Perm())
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-studio", false},
		{"valid with underscore", "my_studio", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my studio", true},
		{"dot", "my.studio", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "my/studio", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv("MIXDESK_HOME", t.TempDir())

	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve(\"\") without config = %q, want %q", got, DefaultName)
	}

	cfg := config.Default()
	cfg.DefaultProfile = "studio"
	if err := config.Save(ConfigPath(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "studio" {
		t.Errorf("Resolve(\"\") = %q, want studio from config", got)
	}
	if got := Resolve("live"); got != "live" {
		t.Errorf("Resolve(live) = %q, want flag override", got)
	}
}
