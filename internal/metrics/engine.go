// Package metrics joins ground truth with the detector's action trace into
// per-run quality metrics and cross-run repeatability figures.
package metrics

import (
	"time"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
	"banbench/internal/support"
	"banbench/internal/truth"
)

// Inputs is everything one run produced that the engine needs. Events must
// be sorted by timestamp (the collector guarantees this).
type Inputs struct {
	Truth     *truth.Store
	Events    []domain.ActionEvent
	FirstSeen map[string]time.Time
	RunID     string
	Notes     string

	LinesIngested int
	LinesSkipped  int
}

// Report carries the per-IP details that go into metrics.json but not into
// the history store.
type Report struct {
	Intervals     []domain.BanInterval `json:"intervals"`
	DetectionByIP map[string]float64   `json:"detection_by_ip"`
	BlockingByIP  map[string][]float64 `json:"blocking_by_ip"`
	FPCountries   map[string]int       `json:"fp_countries,omitempty"`
	Anomalies     []string             `json:"anomalies,omitempty"`
}

// Compute classifies every labeled IP observed in the run and derives TPR,
// FPR, accuracy and the timing distributions. Zero observed IPs of a label
// class yields an undefined metric, never a misleading 0/0.
func Compute(in Inputs) (domain.RunMetrics, Report, error) {
	if in.Truth == nil || in.Truth.Len() == 0 {
		return domain.RunMetrics{}, Report{}, &domain.ConfigurationError{Reason: "ground-truth store is empty, metrics are undefined without labels"}
	}

	intervals, anomalies := ReconstructIntervals(in.Events)

	bannedIPs := make(map[string]struct{})
	firstBan := make(map[string]time.Time)
	for _, interval := range intervals {
		bannedIPs[interval.IP] = struct{}{}
		if existing, ok := firstBan[interval.IP]; !ok || interval.BanTime.Before(existing) {
			firstBan[interval.IP] = interval.BanTime
		}
	}

	// Classification is over labeled IPs with at least one log record in
	// the run; the label is looked up on the day the IP first appeared.
	var truePos, falsePos, falseNeg, trueNeg int
	var observedMalicious, observedBenign, observedUnknown int
	maliciousObserved := make(map[string]struct{})

	for ip, firstTS := range in.FirstSeen {
		label := in.Truth.ClassifyAt(ip, firstTS)
		_, banned := bannedIPs[ip]
		switch label {
		case domain.LabelMalicious:
			observedMalicious++
			maliciousObserved[ip] = struct{}{}
			if banned {
				truePos++
			} else {
				falseNeg++
			}
		case domain.LabelBenign:
			observedBenign++
			if banned {
				falsePos++
			} else {
				trueNeg++
			}
		default:
			observedUnknown++
		}
	}

	report := Report{
		Intervals:     intervals,
		DetectionByIP: make(map[string]float64),
		BlockingByIP:  make(map[string][]float64),
		Anomalies:     anomalies,
	}

	var detectionSeconds []float64
	for ip := range maliciousObserved {
		banTime, banned := firstBan[ip]
		if !banned {
			continue
		}
		baseline := in.FirstSeen[ip]
		if ts, ok := in.Truth.FirstSeen(ip); ok {
			baseline = ts
		}
		seconds := banTime.Sub(baseline).Seconds()
		report.DetectionByIP[ip] = seconds
		detectionSeconds = append(detectionSeconds, seconds)
	}

	var blockingSeconds []float64
	openIntervals := 0
	for _, interval := range intervals {
		duration, closed := interval.Duration()
		if !closed {
			// Censored: still open at run end, upper-bounded only by the
			// detector's configured ban time which is external to us.
			openIntervals++
			continue
		}
		seconds := duration.Seconds()
		blockingSeconds = append(blockingSeconds, seconds)
		report.BlockingByIP[interval.IP] = append(report.BlockingByIP[interval.IP], seconds)
	}

	report.FPCountries = falsePositiveCountries(in.FirstSeen, in.Truth, bannedIPs)

	result := domain.RunMetrics{
		RunID:            in.RunID,
		Notes:            in.Notes,
		TPR:              ratioMetric(truePos, observedMalicious),
		FPR:              ratioMetric(falsePos, observedBenign),
		Accuracy:         ratioMetric(truePos+trueNeg, observedMalicious+observedBenign),
		DetectionSeconds: Summarize(detectionSeconds),
		BlockingSeconds:  Summarize(blockingSeconds),
		OpenIntervals:    openIntervals,
		Counts: domain.ObservedCounts{
			Malicious: observedMalicious,
			Benign:    observedBenign,
			Unknown:   observedUnknown,
			Banned:    len(bannedIPs),
		},
		LinesIngested: in.LinesIngested,
		LinesSkipped:  in.LinesSkipped,
		Anomalies:     domain.StringList(anomalies),
	}

	log.Info("metrics computed", "run_id", in.RunID,
		"tpr", result.TPR, "fpr", result.FPR, "accuracy", result.Accuracy,
		"open_intervals", openIntervals, "anomalies", len(anomalies))
	return result, report, nil
}

func ratioMetric(numerator, denominator int) domain.Metric {
	if denominator == 0 {
		return domain.UndefinedMetric()
	}
	return domain.DefinedMetric(float64(numerator) / float64(denominator))
}

// falsePositiveCountries enriches the benign-but-banned set with GeoLite
// country codes when a database is configured. Best effort only.
func falsePositiveCountries(firstSeen map[string]time.Time, store *truth.Store, banned map[string]struct{}) map[string]int {
	countries := make(map[string]int)
	for ip, firstTS := range firstSeen {
		if _, ok := banned[ip]; !ok {
			continue
		}
		if store.ClassifyAt(ip, firstTS) != domain.LabelBenign {
			continue
		}
		country := support.CountryFor(ip)
		if country == "" {
			continue
		}
		countries[country]++
	}
	if len(countries) == 0 {
		return nil
	}
	return countries
}
