package replay

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
	"banbench/internal/sink"
)

// StatusFunc captures a labeled detector status snapshot. The scheduler calls
// it synchronously every StatusInterval records and once at the end of the
// run, including a cancelled run.
type StatusFunc func(ctx context.Context, label string) error

// Progress describes how far a replay got. It is usable even when the run
// was cancelled mid-way.
type Progress struct {
	Emitted      int
	Skipped      int
	NonMonotonic int
	FirstTS      time.Time
	LastTS       time.Time
	Elapsed      time.Duration
	// FirstSeen records the first log timestamp per source IP, the
	// baseline for detection-time measurement.
	FirstSeen map[string]time.Time
}

// Scheduler paces record emission so recorded inter-event gaps replay
// compressed by SpeedFactor, with each sleep capped. It runs on a single
// goroutine; the capped sleeps and status queries are its only suspension
// points, so no partial record is ever emitted.
type Scheduler struct {
	Sink           sink.Sink
	Status         StatusFunc
	SpeedFactor    float64
	SleepCap       time.Duration
	StatusInterval int
	MaxLines       int

	// OnProgress, when set, is invoked at every status interval with a
	// snapshot of the current progress (heartbeat publishing).
	OnProgress func(Progress)

	// Sleep and Now are injectable for tests; nil means real time.
	Sleep func(ctx context.Context, d time.Duration)
	Now   func() time.Time
}

// Run replays the reader's records through the sink. The returned Progress
// is valid regardless of the error; a sink failure surfaces as a
// SinkWriteError and aborts the run.
func (s *Scheduler) Run(ctx context.Context, reader *Reader) (Progress, error) {
	if s.SpeedFactor <= 0 {
		return Progress{}, &domain.ConfigurationError{Reason: "speed factor must be > 0"}
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = waitOrCancelled
	}

	progress := Progress{FirstSeen: make(map[string]time.Time)}
	startWall := now()
	var lastTS time.Time

	defer func() {
		progress.Skipped = reader.Skipped()
		progress.NonMonotonic = reader.NonMonotonic()
		progress.Elapsed = now().Sub(startWall)
	}()

	for {
		if err := ctx.Err(); err != nil {
			log.Warn("replay cancelled", "emitted", progress.Emitted, "last_ts", progress.LastTS)
			s.finalStatus(progress)
			return progress, err
		}

		record, ok := reader.Next()
		if !ok {
			break
		}

		if !lastTS.IsZero() {
			delta := record.Timestamp.Sub(lastTS)
			if delta > 0 {
				scaled := time.Duration(float64(delta) / s.SpeedFactor)
				if scaled > s.SleepCap {
					scaled = s.SleepCap
				}
				sleep(ctx, scaled)
			}
		}

		if err := ctx.Err(); err != nil {
			log.Warn("replay cancelled", "emitted", progress.Emitted, "last_ts", progress.LastTS)
			s.finalStatus(progress)
			return progress, err
		}

		if err := s.Sink.Emit(record.Raw); err != nil {
			return progress, err
		}

		progress.Emitted++
		lastTS = record.Timestamp
		progress.LastTS = record.Timestamp
		if progress.FirstTS.IsZero() {
			progress.FirstTS = record.Timestamp
		}
		if record.SourceIP != "" {
			if _, seen := progress.FirstSeen[record.SourceIP]; !seen {
				progress.FirstSeen[record.SourceIP] = record.Timestamp
			}
		}

		if s.StatusInterval > 0 && progress.Emitted%s.StatusInterval == 0 {
			progress.Skipped = reader.Skipped()
			progress.Elapsed = now().Sub(startWall)
			log.Info("replay progress", "emitted", progress.Emitted,
				"last_ts", progress.LastTS, "elapsed", progress.Elapsed)
			s.intervalStatus(ctx, progress.Emitted)
			if s.OnProgress != nil {
				s.OnProgress(progress)
			}
		}

		if s.MaxLines > 0 && progress.Emitted >= s.MaxLines {
			log.Info("replay reached max lines", "max_lines", s.MaxLines)
			break
		}
	}

	s.finalStatus(progress)
	log.Info("replay finished", "emitted", progress.Emitted, "skipped", reader.Skipped())
	return progress, nil
}

func (s *Scheduler) intervalStatus(ctx context.Context, emitted int) {
	if s.Status == nil {
		return
	}
	label := "status_at_" + strconv.Itoa(emitted)
	if err := s.Status(ctx, label); err != nil {
		log.Error("detector status query failed", "label", label, "error", err)
	}
}

func (s *Scheduler) finalStatus(progress Progress) {
	if s.Status == nil {
		return
	}
	// The final snapshot is taken even after cancellation so a partial run
	// still leaves a usable artifact.
	if err := s.Status(context.Background(), "status_after"); err != nil {
		log.Error("final detector status query failed", "error", err)
	}
	if s.OnProgress != nil {
		s.OnProgress(progress)
	}
}

// waitOrCancelled sleeps for d but returns early on cancellation.
func waitOrCancelled(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
