package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T, level Level, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	defer func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	}()
	fn()
	return buf.String()
}

func TestLevelFiltering(t *testing.T) {
	out := capture(t, LevelInfo, func() {
		Debug("hidden")
		Info("shown")
	})
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line emitted at info level:\n%s", out)
	}
	if !strings.Contains(out, "[INFO] shown") {
		t.Errorf("info line missing:\n%s", out)
	}

	out = capture(t, LevelDebug, func() {
		Debug("now visible")
	})
	if !strings.Contains(out, "[DEBUG] now visible") {
		t.Errorf("debug line missing at debug level:\n%s", out)
	}
}

func TestKeyValueFormatting(t *testing.T) {
	out := capture(t, LevelInfo, func() {
		Info("refresh done", "event_count", 42, "tag", "groupA")
	})
	if !strings.Contains(out, "refresh done event_count=42 tag=groupA") {
		t.Errorf("unexpected line: %s", out)
	}
}

func TestErrorPrependsErr(t *testing.T) {
	out := capture(t, LevelInfo, func() {
		Error("feed skipped", errors.New("connection refused"), "url", "https://example.com/a")
	})
	if !strings.Contains(out, "[ERROR] feed skipped err=connection refused url=https://example.com/a") {
		t.Errorf("unexpected line: %s", out)
	}
}
