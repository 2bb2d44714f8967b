package metrics

import (
	"testing"
	"time"

	"banbench/internal/domain"
)

func ts(minute int) time.Time {
	return time.Date(2024, 12, 17, 0, minute, 0, 0, time.UTC)
}

func TestReconstructIntervalsPairsChronologically(t *testing.T) {
	events := []domain.ActionEvent{
		{Timestamp: ts(4), Action: domain.ActionBan, IP: "198.51.100.7", Jail: "ssh"},
		{Timestamp: ts(14), Action: domain.ActionUnban, IP: "198.51.100.7", Jail: "ssh"},
		{Timestamp: ts(20), Action: domain.ActionBan, IP: "198.51.100.7", Jail: "ssh"},
		{Timestamp: ts(30), Action: domain.ActionUnban, IP: "198.51.100.7", Jail: "ssh"},
	}

	intervals, anomalies := ReconstructIntervals(events)
	if len(anomalies) != 0 {
		t.Fatalf("anomalies = %v, want none", anomalies)
	}
	if len(intervals) != 2 {
		t.Fatalf("intervals = %d, want 2 disjoint bans", len(intervals))
	}
	for i, interval := range intervals {
		d, closed := interval.Duration()
		if !closed {
			t.Fatalf("interval %d unexpectedly open", i)
		}
		if d != 10*time.Minute {
			t.Fatalf("interval %d duration = %v, want 10m", i, d)
		}
	}
	if !intervals[0].BanTime.Before(intervals[1].BanTime) {
		t.Fatalf("intervals not in chronological order")
	}
}

func TestReconstructIntervalsOpenBan(t *testing.T) {
	events := []domain.ActionEvent{
		{Timestamp: ts(4), Action: domain.ActionBan, IP: "198.51.100.7", Jail: "ssh"},
	}

	intervals, anomalies := ReconstructIntervals(events)
	if len(intervals) != 1 {
		t.Fatalf("intervals = %d, want exactly 1 open interval", len(intervals))
	}
	if !intervals[0].Open() {
		t.Fatalf("interval should be open when the run ends before unban")
	}
	if len(anomalies) != 0 {
		t.Fatalf("an unclosed ban is not an anomaly, got %v", anomalies)
	}
}

func TestReconstructIntervalsUnmatchedUnban(t *testing.T) {
	events := []domain.ActionEvent{
		{Timestamp: ts(4), Action: domain.ActionUnban, IP: "198.51.100.7", Jail: "ssh"},
	}

	intervals, anomalies := ReconstructIntervals(events)
	if len(intervals) != 0 {
		t.Fatalf("intervals = %d, want none for a stray unban", len(intervals))
	}
	if len(anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(anomalies))
	}
}

func TestReconstructIntervalsIdempotent(t *testing.T) {
	events := []domain.ActionEvent{
		{Timestamp: ts(1), Action: domain.ActionBan, IP: "a", Jail: "ssh"},
		{Timestamp: ts(2), Action: domain.ActionBan, IP: "b", Jail: "ssh"},
		{Timestamp: ts(3), Action: domain.ActionUnban, IP: "a", Jail: "ssh"},
		{Timestamp: ts(5), Action: domain.ActionUnban, IP: "c", Jail: "ssh"},
	}

	first, firstAnomalies := ReconstructIntervals(events)
	second, secondAnomalies := ReconstructIntervals(events)

	if len(first) != len(second) || len(firstAnomalies) != len(secondAnomalies) {
		t.Fatalf("reconstruction not idempotent: %d/%d intervals, %d/%d anomalies",
			len(first), len(second), len(firstAnomalies), len(secondAnomalies))
	}
	for i := range first {
		if first[i].IP != second[i].IP || !first[i].BanTime.Equal(second[i].BanTime) {
			t.Fatalf("interval %d differs between passes", i)
		}
		if (first[i].UnbanTime == nil) != (second[i].UnbanTime == nil) {
			t.Fatalf("interval %d open state differs between passes", i)
		}
	}
}

func TestReconstructIntervalsSeparatesJails(t *testing.T) {
	events := []domain.ActionEvent{
		{Timestamp: ts(1), Action: domain.ActionBan, IP: "a", Jail: "ssh"},
		{Timestamp: ts(2), Action: domain.ActionUnban, IP: "a", Jail: "http"},
	}

	intervals, anomalies := ReconstructIntervals(events)
	if len(intervals) != 1 || !intervals[0].Open() {
		t.Fatalf("expected one open interval, unban in another jail must not close it")
	}
	if len(anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1 for the cross-jail unban", len(anomalies))
	}
}
