package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestNewLoggerWithFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yapp.log")
	logger, err := NewLoggerWithFile("info", FileOptions{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("feed refreshed", zap.Int("posts", 3))
	logger.Debug("suppressed")
	_ = logger.Sync()

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	text := string(contents)
	if !strings.Contains(text, `"msg":"feed refreshed"`) || !strings.Contains(text, `"posts":3`) {
		t.Fatalf("unexpected log contents %q", text)
	}
	if strings.Contains(text, "suppressed") {
		t.Fatalf("debug entry should be filtered at info level")
	}
}
