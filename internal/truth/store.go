// Package truth loads the labeled benchmark dataset and answers per-IP
// classification queries for the metrics engine.
package truth

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
	"banbench/internal/support"
)

// Required dataset columns. first_ts is optional; when present it supplies
// the detection-time baseline for malicious IPs.
var requiredColumns = []string{"ip", "day", "label"}

type key struct {
	ip  string
	day string
}

// Store is the in-memory ground-truth lookup. Read-only after Load.
type Store struct {
	labels    map[key]domain.Label
	firstSeen map[string]time.Time
	loc       *time.Location

	rows      int
	conflicts int
}

// Load reads a CSV dataset with at least the ip, day and label columns.
// Duplicate (ip, day) rows with conflicting labels keep the first-seen label
// and are logged; missing columns are a DataFormatError.
func Load(path string, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.UTC
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ground-truth dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, &domain.DataFormatError{Path: path, Reason: fmt.Sprintf("cannot read header: %v", err)}
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, &domain.DataFormatError{Path: path, Reason: fmt.Sprintf("missing required column %q", name)}
		}
	}
	firstTsCol, hasFirstTs := columns["first_ts"]

	minFields := 0
	for _, name := range requiredColumns {
		if columns[name] >= minFields {
			minFields = columns[name] + 1
		}
	}

	store := &Store{
		labels:    make(map[key]domain.Label),
		firstSeen: make(map[string]time.Time),
		loc:       loc,
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Warn("skipping unreadable ground-truth row", "line", line, "error", err)
			continue
		}

		if len(record) < minFields {
			log.Warn("skipping ground-truth row with missing fields", "line", line,
				"fields", len(record), "expected", minFields)
			continue
		}

		ip := strings.TrimSpace(record[columns["ip"]])
		day := strings.TrimSpace(record[columns["day"]])
		label := NormalizeLabel(record[columns["label"]])
		if ip == "" || day == "" {
			log.Warn("skipping ground-truth row without ip or day", "line", line)
			continue
		}

		k := key{ip: ip, day: day}
		if existing, ok := store.labels[k]; ok {
			if existing != label {
				// First-seen wins; duplicate rows are expected in the source data.
				store.conflicts++
				log.Warn("conflicting ground-truth label, keeping first-seen",
					"ip", ip, "day", day, "kept", existing, "dropped", label)
			}
		} else {
			store.labels[k] = label
			store.rows++
		}

		if hasFirstTs && firstTsCol < len(record) {
			if raw := strings.TrimSpace(record[firstTsCol]); raw != "" {
				ts, err := support.ParseTimestamp(raw, loc)
				if err != nil {
					log.Warn("unparseable first_ts in ground truth", "ip", ip, "line", line, "error", err)
				} else if existing, ok := store.firstSeen[ip]; !ok || ts.Before(existing) {
					store.firstSeen[ip] = ts
				}
			}
		}
	}

	log.Info("Ground truth loaded", "path", path, "entries", store.rows, "conflicts", store.conflicts)
	return store, nil
}

// NormalizeLabel maps raw dataset labels onto the malicious/benign/unknown
// vocabulary. Attack-class markers count as malicious, explicit unknowns stay
// unknown, everything else is benign.
func NormalizeLabel(raw string) domain.Label {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.Contains(upper, "ATTACK") || upper == "MALICIOUS":
		return domain.LabelMalicious
	case strings.Contains(upper, "UNKNOWN") || upper == "":
		return domain.LabelUnknown
	default:
		return domain.LabelBenign
	}
}

// Classify returns the label for an IP on a given day. Unknown means the
// (ip, day) pair is absent from the dataset; such IPs are excluded from
// TPR/FPR denominators rather than treated as benign.
func (s *Store) Classify(ip, day string) domain.Label {
	if label, ok := s.labels[key{ip: ip, day: day}]; ok {
		return label
	}
	return domain.LabelUnknown
}

// ClassifyAt classifies an IP at an instant, deriving the day in the
// dataset's configured timezone.
func (s *Store) ClassifyAt(ip string, at time.Time) domain.Label {
	return s.Classify(ip, s.DayOf(at))
}

// DayOf formats a timestamp as the dataset's day key.
func (s *Store) DayOf(at time.Time) string {
	return at.In(s.loc).Format("2006-01-02")
}

// FirstSeen returns the dataset's first-evidence timestamp for an IP, when
// the optional first_ts column was present.
func (s *Store) FirstSeen(ip string) (time.Time, bool) {
	ts, ok := s.firstSeen[ip]
	return ts, ok
}

// Len reports the number of distinct (ip, day) entries.
func (s *Store) Len() int {
	return s.rows
}

// Conflicts reports how many duplicate rows carried a conflicting label.
func (s *Store) Conflicts() int {
	return s.conflicts
}
