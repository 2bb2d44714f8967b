package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"banbench/internal/domain"
	"banbench/internal/sink"
)

type recordingSink struct {
	lines   []string
	failAt  int // fail on the Nth emit (1-based); 0 = never
	emitted int
}

func (s *recordingSink) Emit(line string) error {
	s.emitted++
	if s.failAt > 0 && s.emitted == s.failAt {
		return &domain.SinkWriteError{Err: errors.New("pipe closed")}
	}
	s.lines = append(s.lines, line)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func evenlySpacedLog(t *testing.T, n int, interval time.Duration) string {
	t.Helper()
	var b strings.Builder
	ts := time.Date(2024, 12, 17, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s host sshd[%d]: Failed password for root from 198.51.100.7 port 22 ssh2\n",
			ts.Format("Jan _2 15:04:05"), i)
		ts = ts.Add(interval)
	}
	path := filepath.Join(t.TempDir(), "benchmark.log")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func openTestReader(t *testing.T, path string) *Reader {
	t.Helper()
	reader, err := Open(path, ReaderOptions{StartYear: 2024})
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	t.Cleanup(func() { reader.Close() })
	return reader
}

func TestSchedulerScaledCadence(t *testing.T) {
	// 5 records spaced 60s apart at speed 600 gives 4 sleeps of 100ms,
	// exactly at the cap boundary when the cap is 100ms.
	path := evenlySpacedLog(t, 5, time.Minute)
	target := &recordingSink{}

	var sleeps []time.Duration
	s := &Scheduler{
		Sink:        target,
		SpeedFactor: 600,
		SleepCap:    100 * time.Millisecond,
		Sleep:       func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) },
	}

	progress, err := s.Run(context.Background(), openTestReader(t, path))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if progress.Emitted != 5 {
		t.Fatalf("emitted = %d, want 5", progress.Emitted)
	}
	if len(sleeps) != 4 {
		t.Fatalf("sleeps = %d, want 4", len(sleeps))
	}
	for i, d := range sleeps {
		if d != 100*time.Millisecond {
			t.Fatalf("sleep %d = %v, want 100ms", i, d)
		}
	}
}

func TestSchedulerSleepCap(t *testing.T) {
	// A multi-hour idle gap must not stall the replay beyond the cap.
	path := evenlySpacedLog(t, 2, 5*time.Hour)
	var sleeps []time.Duration
	s := &Scheduler{
		Sink:        &recordingSink{},
		SpeedFactor: 600,
		SleepCap:    100 * time.Millisecond,
		Sleep:       func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) },
	}

	if _, err := s.Run(context.Background(), openTestReader(t, path)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sleeps) != 1 || sleeps[0] != 100*time.Millisecond {
		t.Fatalf("sleeps = %v, want one capped 100ms sleep", sleeps)
	}
}

func TestSchedulerNoSleepOnNonPositiveDelta(t *testing.T) {
	content := "Dec 17 00:04:12 host sshd[1]: Failed password from 198.51.100.7\n" +
		"Dec 17 00:04:12 host sshd[2]: Failed password from 198.51.100.7\n" +
		"Dec 17 00:04:10 host sshd[3]: Failed password from 198.51.100.7\n"
	path := filepath.Join(t.TempDir(), "benchmark.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var sleeps []time.Duration
	s := &Scheduler{
		Sink:        &recordingSink{},
		SpeedFactor: 600,
		SleepCap:    100 * time.Millisecond,
		Sleep:       func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) },
	}

	progress, err := s.Run(context.Background(), openTestReader(t, path))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if progress.Emitted != 3 {
		t.Fatalf("emitted = %d, want 3", progress.Emitted)
	}
	if len(sleeps) != 0 {
		t.Fatalf("sleeps = %v, want none for duplicate/out-of-order timestamps", sleeps)
	}
}

func TestSchedulerSinkFailureIsFatal(t *testing.T) {
	path := evenlySpacedLog(t, 3, time.Second)
	target := &recordingSink{failAt: 2}
	s := &Scheduler{
		Sink:        target,
		SpeedFactor: 600,
		SleepCap:    100 * time.Millisecond,
		Sleep:       func(context.Context, time.Duration) {},
	}

	progress, err := s.Run(context.Background(), openTestReader(t, path))
	var sinkErr *domain.SinkWriteError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("run error = %v, want SinkWriteError", err)
	}
	if progress.Emitted != 1 {
		t.Fatalf("emitted = %d, want 1 before the failure", progress.Emitted)
	}
}

func TestSchedulerStatusQueries(t *testing.T) {
	path := evenlySpacedLog(t, 7, time.Second)
	var labels []string
	s := &Scheduler{
		Sink:           &recordingSink{},
		SpeedFactor:    600,
		SleepCap:       100 * time.Millisecond,
		StatusInterval: 3,
		Sleep:          func(context.Context, time.Duration) {},
		Status: func(_ context.Context, label string) error {
			labels = append(labels, label)
			return nil
		},
	}

	if _, err := s.Run(context.Background(), openTestReader(t, path)); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"status_at_3", "status_at_6", "status_after"}
	if len(labels) != len(want) {
		t.Fatalf("status labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("status label %d = %q, want %q", i, labels[i], want[i])
		}
	}
}

func TestSchedulerCancellation(t *testing.T) {
	path := evenlySpacedLog(t, 100, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	finalStatus := 0
	emittedAtCancel := 0
	s := &Scheduler{
		Sink:        &recordingSink{},
		SpeedFactor: 600,
		SleepCap:    100 * time.Millisecond,
		Sleep: func(_ context.Context, _ time.Duration) {
			emittedAtCancel++
			if emittedAtCancel == 5 {
				cancel()
			}
		},
		Status: func(_ context.Context, label string) error {
			if label == "status_after" {
				finalStatus++
			}
			return nil
		},
	}

	progress, err := s.Run(ctx, openTestReader(t, path))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("run error = %v, want context.Canceled", err)
	}
	if progress.Emitted == 0 || progress.Emitted >= 100 {
		t.Fatalf("emitted = %d, want a partial count", progress.Emitted)
	}
	if finalStatus != 1 {
		t.Fatalf("final status queries = %d, want 1 even when cancelled", finalStatus)
	}
}

func TestSchedulerRecordsFirstSeen(t *testing.T) {
	content := "Dec 17 00:04:10 host sshd[1]: Failed password from 198.51.100.7\n" +
		"Dec 17 00:04:20 host sshd[2]: Failed password from 203.0.113.9\n" +
		"Dec 17 00:04:30 host sshd[3]: Failed password from 198.51.100.7\n"
	path := filepath.Join(t.TempDir(), "benchmark.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	s := &Scheduler{
		Sink:        &recordingSink{},
		SpeedFactor: 600,
		SleepCap:    100 * time.Millisecond,
		Sleep:       func(context.Context, time.Duration) {},
	}
	progress, err := s.Run(context.Background(), openTestReader(t, path))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := time.Date(2024, 12, 17, 0, 4, 10, 0, time.UTC)
	if got := progress.FirstSeen["198.51.100.7"]; !got.Equal(want) {
		t.Fatalf("first seen for repeated ip = %v, want %v", got, want)
	}
	if len(progress.FirstSeen) != 2 {
		t.Fatalf("distinct observed ips = %d, want 2", len(progress.FirstSeen))
	}
}

var _ sink.Sink = (*recordingSink)(nil)
