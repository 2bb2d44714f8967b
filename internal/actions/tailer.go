package actions

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
)

// Tailer follows a live-appended action log without ever mutating it. It
// only hands complete lines to the parser; a partial trailing write stays
// buffered until its newline arrives.
type Tailer struct {
	Path        string
	DefaultJail string
	Location    *time.Location
	// Interval between polls; zero means 500ms.
	Interval time.Duration

	offset  int64
	pending []byte
	events  []domain.ActionEvent
	skipped int
}

// Run polls until ctx is cancelled, then performs a final drain and returns
// everything collected, sorted by timestamp.
func (t *Tailer) Run(ctx context.Context) Result {
	interval := t.Interval
	if interval == 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.poll(true)
			return t.result()
		case <-ticker.C:
			t.poll(false)
		}
	}
}

// poll reads whatever the hook appended since the last poll. final forces
// the buffered partial line through the parser as a last attempt.
func (t *Tailer) poll(final bool) {
	file, err := os.Open(t.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("cannot open action log for tailing", "path", t.Path, "error", err)
		}
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		log.Warn("cannot stat action log", "path", t.Path, "error", err)
		return
	}
	if info.Size() < t.offset {
		// Truncated or rotated underneath us; start over.
		log.Warn("action log shrank, re-reading from start", "path", t.Path)
		t.offset = 0
		t.pending = nil
	}
	if info.Size() == t.offset && !final {
		return
	}

	if _, err := file.Seek(t.offset, io.SeekStart); err != nil {
		log.Warn("cannot seek action log", "path", t.Path, "error", err)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		log.Warn("cannot read action log delta", "path", t.Path, "error", err)
		return
	}
	t.offset += int64(len(data))

	buf := append(t.pending, data...)
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		t.consume(buf[:idx])
		buf = buf[idx+1:]
	}
	t.pending = buf

	if final && len(t.pending) > 0 {
		t.consume(t.pending)
		t.pending = nil
	}
}

func (t *Tailer) consume(line []byte) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return
	}
	event, err := parseLine(string(trimmed), t.DefaultJail, t.Location)
	if err != nil {
		t.skipped++
		log.Warn("skipping malformed action record while tailing", "error", err)
		return
	}
	t.events = append(t.events, event)
}

func (t *Tailer) result() Result {
	res := Result{Events: t.events, Skipped: t.skipped}
	sortEvents(res.Events)
	return res
}
