package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesPrefixedLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, closer, err := New(dir, "0123456789abcdef")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Printf("compile %s", "test_a.c")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", entries, err)
	}
	if !strings.HasSuffix(entries[0].Name(), ".log") {
		t.Errorf("unexpected log name %q", entries[0].Name())
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.HasPrefix(line, "[01234567] ") || !strings.Contains(line, "compile test_a.c") {
		t.Errorf("unexpected log line %q", line)
	}
}

func TestNewFailsOnFileAsDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := New(file, ""); err == nil {
		t.Fatal("expected error when logs dir is a file")
	}
}

func TestDiscard(t *testing.T) {
	var l Logger = Discard()
	l.Printf("dropped %d", 1)
}
