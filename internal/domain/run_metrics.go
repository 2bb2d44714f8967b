package domain

import "time"

// SummaryStats aggregates a set of per-IP durations in seconds.
type SummaryStats struct {
	Count  int     `json:"count"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ObservedCounts breaks down the labeled IPs that actually appeared in the
// replayed log, plus how many distinct IPs the detector banned.
type ObservedCounts struct {
	Malicious int `json:"malicious" gorm:"column:observed_malicious"`
	Benign    int `json:"benign" gorm:"column:observed_benign"`
	Unknown   int `json:"unknown" gorm:"column:observed_unknown"`
	Banned    int `json:"banned" gorm:"column:banned"`
}

// RunMetrics is the per-run result row. Rows are append-only: the history
// store never updates or deletes them once written.
type RunMetrics struct {
	ID    uint64 `json:"-" gorm:"primaryKey;autoIncrement"`
	RunID string `json:"run_id" gorm:"uniqueIndex;not null"`
	Notes string `json:"notes,omitempty"`

	TPR      Metric `json:"tpr" gorm:"embedded;embeddedPrefix:tpr_"`
	FPR      Metric `json:"fpr" gorm:"embedded;embeddedPrefix:fpr_"`
	Accuracy Metric `json:"accuracy" gorm:"embedded;embeddedPrefix:accuracy_"`

	DetectionSeconds SummaryStats `json:"detection_seconds" gorm:"embedded;embeddedPrefix:detection_"`
	BlockingSeconds  SummaryStats `json:"blocking_seconds" gorm:"embedded;embeddedPrefix:blocking_"`

	// Bans still open at run end; censored, never averaged into BlockingSeconds.
	OpenIntervals int `json:"open_intervals"`

	Counts ObservedCounts `json:"counts" gorm:"embedded"`

	LinesIngested int `json:"line_count_ingested"`
	LinesSkipped  int `json:"line_count_skipped"`

	// Pairing anomalies (unban without a matching ban) seen in this run.
	Anomalies StringList `json:"anomalies,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
