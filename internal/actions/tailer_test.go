package actions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"banbench/internal/domain"
)

func TestTailerHoldsPartialLineUntilComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f2b-actions.json")

	tailer := &Tailer{Path: path, DefaultJail: "ssh-proxmox", Location: time.UTC}

	// First append: one complete record plus the beginning of a second.
	appendFile(t, path, `{"timestamp":"2024-12-17T00:04:00Z","action":"ban","ip":"198.51.100.7"}`+"\n"+
		`{"timestamp":"2024-12-17T00:05:00Z","act`)
	tailer.poll(false)
	if len(tailer.events) != 1 {
		t.Fatalf("events after partial write = %d, want 1", len(tailer.events))
	}

	// The writer finishes the second record.
	appendFile(t, path, `ion":"unban","ip":"198.51.100.7"}`+"\n")
	tailer.poll(false)
	if len(tailer.events) != 2 {
		t.Fatalf("events after completed write = %d, want 2", len(tailer.events))
	}
	if tailer.skipped != 0 {
		t.Fatalf("skipped = %d, want 0: the partial line must not count as malformed", tailer.skipped)
	}

	result := tailer.result()
	if result.Events[1].Action != domain.ActionUnban {
		t.Fatalf("second event action = %q, want unban", result.Events[1].Action)
	}
}

func TestTailerFinalDrainParsesLastLineWithoutNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f2b-actions.json")
	appendFile(t, path, `{"timestamp":"2024-12-17T00:04:00Z","action":"ban","ip":"198.51.100.7"}`)

	tailer := &Tailer{Path: path, DefaultJail: "ssh-proxmox", Location: time.UTC}
	tailer.poll(true)

	if len(tailer.events) != 1 {
		t.Fatalf("events = %d, want 1 after final drain", len(tailer.events))
	}
}

func TestTailerMissingFileIsNotFatal(t *testing.T) {
	tailer := &Tailer{Path: filepath.Join(t.TempDir(), "absent.json"), Location: time.UTC}
	tailer.poll(false)
	if len(tailer.events) != 0 || tailer.skipped != 0 {
		t.Fatalf("expected empty state for missing file")
	}
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append to %s: %v", path, err)
	}
}
