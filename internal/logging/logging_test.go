package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nextlevelbuilder/hamdam/internal/config"
)

func TestPreview(t *testing.T) {
	if got := Preview("short", 50); got != "short" {
		t.Errorf("Preview = %q", got)
	}
	long := strings.Repeat("سلام ", 30)
	got := Preview(long, 20)
	if !strings.HasSuffix(got, "...") || !utf8.ValidString(got) {
		t.Errorf("Preview = %q", got)
	}
}

func TestSetupWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "hamdam.log")
	closer := Setup(config.LoggingConfig{File: path, Format: "json"}, true)
	slog.Debug("debug line", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"msg":"debug line"`) {
		t.Errorf("log file = %s", b)
	}
}
