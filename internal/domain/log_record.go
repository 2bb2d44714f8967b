package domain

import "time"

// LogRecord is a single parsed line of the replayed source log. Records are
// immutable once read and keep file order even when timestamps jitter.
type LogRecord struct {
	Timestamp time.Time
	SourceIP  string
	Raw       string
}
