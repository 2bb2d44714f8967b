// Package actions parses the detector hook's newline-delimited ban/unban
// records into sorted ActionEvents.
package actions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
	"banbench/internal/support"
)

// rawEvent mirrors the JSON payload appended by the action hook. Older hook
// versions wrote "ts" instead of "timestamp".
type rawEvent struct {
	Timestamp string `json:"timestamp"`
	TS        string `json:"ts"`
	Action    string `json:"action"`
	IP        string `json:"ip"`
	Jail      string `json:"jail"`
	Reason    string `json:"reason"`
}

// Result is one parsed pass over the action stream.
type Result struct {
	Events  []domain.ActionEvent
	Skipped int
}

// ParseFile reads the whole action log. A missing file yields an empty
// result: the detector may simply never have fired.
func ParseFile(path, defaultJail string, loc *time.Location) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("action log not found, assuming no detector actions", "path", path)
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("open action log: %w", err)
	}
	defer file.Close()
	return Parse(file, defaultJail, loc), nil
}

// Parse consumes a stream of JSON lines. Malformed records (including a
// partial trailing line from a live-appended file) are counted and skipped,
// never fatal. Events are returned sorted by timestamp since interleaved
// writers can append out of order; the sort is stable so re-running it on
// the same input is idempotent.
func Parse(r io.Reader, defaultJail string, loc *time.Location) Result {
	var result Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		event, err := parseLine(line, defaultJail, loc)
		if err != nil {
			result.Skipped++
			log.Warn("skipping malformed action record", "line", lineNo, "error", err)
			continue
		}
		result.Events = append(result.Events, event)
	}
	if err := scanner.Err(); err != nil {
		result.Skipped++
		log.Warn("action stream truncated", "error", err)
	}

	sortEvents(result.Events)
	return result
}

func sortEvents(events []domain.ActionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

func parseLine(line, defaultJail string, loc *time.Location) (domain.ActionEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return domain.ActionEvent{}, err
	}

	tsField := raw.Timestamp
	if tsField == "" {
		tsField = raw.TS
	}
	if tsField == "" {
		return domain.ActionEvent{}, fmt.Errorf("action record has no timestamp")
	}
	ts, err := support.ParseTimestamp(tsField, loc)
	if err != nil {
		return domain.ActionEvent{}, err
	}

	if raw.IP == "" {
		return domain.ActionEvent{}, fmt.Errorf("action record has no ip")
	}

	action := strings.ToLower(strings.TrimSpace(raw.Action))
	switch action {
	case "":
		action = domain.ActionBan
	case domain.ActionBan, domain.ActionUnban:
	default:
		return domain.ActionEvent{}, fmt.Errorf("unknown action %q", raw.Action)
	}

	jail := raw.Jail
	if jail == "" {
		jail = defaultJail
	}

	return domain.ActionEvent{
		Timestamp: ts,
		Action:    action,
		IP:        raw.IP,
		Jail:      jail,
		Reason:    raw.Reason,
	}, nil
}
