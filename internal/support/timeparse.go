package support

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp layouts accepted across the ground-truth dataset and the
// detector's action stream. The day-first forms come from the benchmark
// dataset exports, the RFC3339 forms from the action hook.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05Z",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// ParseTimestamp tries the known layouts in order. Layouts without an offset
// are interpreted in loc; a nil loc means UTC.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		ts, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", value)
}
