// Package replay streams a captured source log back out at a scaled cadence
// so a live detector can be benchmarked against it.
package replay

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
)

var syslogMonths = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

var ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// ReaderOptions tune one pass over the source log. Each replay opens a
// fresh reader; there is no resume.
type ReaderOptions struct {
	// StartYear anchors the year-less syslog timestamps. Zero means the
	// current year.
	StartYear int
	// FilterIP restricts the replay to lines containing this IP.
	FilterIP string
	// Location interprets the timestamps; nil means UTC.
	Location *time.Location
}

// Reader produces LogRecords lazily, in file order. Malformed lines are
// counted and skipped, never fatal; the replay favors availability over
// strictness on single bad lines.
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
	opts    ReaderOptions

	year   int
	prev   time.Time
	lineNo int

	skipped      int
	nonMonotonic int
}

func Open(path string, opts ReaderOptions) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source log: %w", err)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	year := opts.StartYear
	if year == 0 {
		year = time.Now().In(opts.Location).Year()
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{file: file, scanner: scanner, opts: opts, year: year}, nil
}

// Next returns the next parseable record. ok is false once the log is
// exhausted.
func (r *Reader) Next() (domain.LogRecord, bool) {
	for r.scanner.Scan() {
		r.lineNo++
		raw := strings.TrimRight(r.scanner.Text(), "\n")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if r.opts.FilterIP != "" && !strings.Contains(raw, r.opts.FilterIP) {
			continue
		}

		ts, err := r.parseTimestamp(raw)
		if err != nil {
			r.skipped++
			log.Warn("skipping malformed log line", "line", r.lineNo, "error", err)
			continue
		}

		if !r.prev.IsZero() && ts.Before(r.prev) {
			// Sub-second jitter upstream is expected; keep file order.
			r.nonMonotonic++
			log.Warn("non-monotonic timestamp in source log", "line", r.lineNo,
				"timestamp", ts, "previous", r.prev)
		}
		r.prev = ts
		r.year = ts.Year()

		return domain.LogRecord{Timestamp: ts, SourceIP: extractIP(raw), Raw: raw}, true
	}
	return domain.LogRecord{}, false
}

// parseTimestamp reads the leading "MMM dd HH:MM:SS" syslog fragment and
// infers the year, rolling over at a December to January transition.
func (r *Reader) parseTimestamp(line string) (time.Time, error) {
	if len(line) < 15 {
		return time.Time{}, fmt.Errorf("line too short for syslog timestamp: %q", line)
	}
	month, ok := syslogMonths[line[0:3]]
	if !ok {
		return time.Time{}, fmt.Errorf("cannot parse month from %q", line[:15])
	}
	day, err := strconv.Atoi(strings.TrimSpace(line[4:6]))
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse day from %q", line[:15])
	}
	clock, err := time.Parse("15:04:05", line[7:15])
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time from %q", line[:15])
	}

	candidate := time.Date(r.year, month, day,
		clock.Hour(), clock.Minute(), clock.Second(), 0, r.opts.Location)

	if !r.prev.IsZero() {
		if candidate.Before(r.prev) && month == time.January && r.prev.Month() == time.December {
			candidate = candidate.AddDate(1, 0, 0)
		} else if candidate.Year() < r.prev.Year() {
			candidate = time.Date(r.prev.Year(), month, day,
				clock.Hour(), clock.Minute(), clock.Second(), 0, r.opts.Location)
		}
	}
	return candidate, nil
}

// Skipped reports how many malformed lines were dropped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// NonMonotonic reports how many records arrived with a timestamp before
// their predecessor's.
func (r *Reader) NonMonotonic() int {
	return r.nonMonotonic
}

func (r *Reader) Close() error {
	return r.file.Close()
}

func extractIP(line string) string {
	return ipv4Pattern.FindString(line)
}
