package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, now func() time.Time) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := New(Config{Dir: dir, Enabled: true, Now: now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, dir
}

func readEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("bad JSONL line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestDisabledLoggerIsNoOp(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Dir: dir, Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info(EventClientRequest, "ignored", map[string]interface{}{"a": 1})
	l.Close()

	files, _ := os.ReadDir(dir)
	if len(files) != 0 {
		t.Errorf("disabled logger created %d files", len(files))
	}
}

func TestWriteRedactsSecrets(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l, dir := newTestLogger(t, func() time.Time { return now })

	l.Info(EventCentralRequest, "posting", map[string]interface{}{
		"url":       "http://localhost/api",
		"api_token": "topsecret",
	})
	l.Close()

	raw, err := os.ReadFile(filepath.Join(dir, FileName(now)))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(raw), "topsecret") {
		t.Errorf("secret value leaked into audit log")
	}
	if !strings.Contains(string(raw), MaskedValue) {
		t.Errorf("masked marker missing from audit log")
	}
}

func TestVerbatimEventTypesBypassRedaction(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l, dir := newTestLogger(t, func() time.Time { return now })

	// DB query events carry connection info on purpose.
	l.Info(EventDBQuery, "executing", map[string]interface{}{
		"connection": "root:secretpw@localhost:9030",
	})
	l.Close()

	raw, _ := os.ReadFile(filepath.Join(dir, FileName(now)))
	if !strings.Contains(string(raw), "secretpw") {
		t.Errorf("DB_QUERY event should be logged verbatim")
	}
}

func TestStartupEventDumpsEnvironment(t *testing.T) {
	t.Setenv("SRDIAG_TEST_MARKER", "present")
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l, dir := newTestLogger(t, func() time.Time { return now })
	l.Close()

	entries := readEntries(t, filepath.Join(dir, FileName(now)))
	if len(entries) == 0 {
		t.Fatalf("no entries written")
	}
	first := entries[0]
	if first["type"] != string(EventStartup) {
		t.Fatalf("first entry type = %v, want STARTUP", first["type"])
	}
	env, ok := first["environment"].(map[string]interface{})
	if !ok {
		t.Fatalf("STARTUP entry has no environment map")
	}
	if env["SRDIAG_TEST_MARKER"] != "present" {
		t.Errorf("environment snapshot missing test marker")
	}
}

func TestDailyRotation(t *testing.T) {
	day1 := time.Date(2026, 8, 24, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 25, 0, 1, 0, 0, time.UTC)

	current := day1
	l, dir := newTestLogger(t, func() time.Time { return current })

	l.Info(EventClientRequest, "first day", nil)
	current = day2
	l.Info(EventClientRequest, "second day", nil)
	l.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName(day1))); err != nil {
		t.Errorf("day-1 file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName(day2))); err != nil {
		t.Errorf("day-2 file missing: %v", err)
	}

	entries := readEntries(t, filepath.Join(dir, FileName(day2)))
	for _, e := range entries {
		if e["message"] == "first day" {
			t.Errorf("day-1 entry landed in day-2 file")
		}
	}
}

func TestEntryShape(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l, dir := newTestLogger(t, func() time.Time { return now })

	l.Error(EventError, "boom", map[string]interface{}{"detail": "x"})
	l.Close()

	entries := readEntries(t, filepath.Join(dir, FileName(now)))
	last := entries[len(entries)-1]
	if last["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", last["level"])
	}
	if last["type"] != string(EventError) {
		t.Errorf("type = %v, want ERROR", last["type"])
	}
	if last["message"] != "boom" {
		t.Errorf("message = %v, want boom", last["message"])
	}
	if last["detail"] != "x" {
		t.Errorf("detail = %v, want x", last["detail"])
	}
	if _, ok := last["timestamp"].(string); !ok {
		t.Errorf("timestamp missing")
	}
}
