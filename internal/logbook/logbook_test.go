package logbook

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestScopedEntriesCarryComponentName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Scoped("scheduler").Warn("dispatch held")
	lines, total := book.Tail(1)
	if total != 1 || len(lines) != 1 {
		t.Fatalf("tail = %v (%d)", lines, total)
	}
	if !strings.Contains(lines[0], "WARN") || !strings.Contains(lines[0], "scheduler: dispatch held") {
		t.Fatalf("unexpected line %q", lines[0])
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	book.Scoped("x").Error("ignored")
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("nil tail = %v (%d)", lines, total)
	}
}
