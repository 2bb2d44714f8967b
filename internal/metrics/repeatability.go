package metrics

import (
	"banbench/internal/domain"
)

// Metric names the repeatability analyzer understands.
const (
	MetricTPR          = "tpr"
	MetricFPR          = "fpr"
	MetricAccuracy     = "accuracy"
	MetricDetectionAvg = "detection_seconds_avg"
	MetricBlockingAvg  = "blocking_seconds_avg"
)

// DefaultRepeatabilityMetrics is what the analyzer reports when the caller
// does not name specific metrics.
var DefaultRepeatabilityMetrics = []string{
	MetricTPR, MetricFPR, MetricAccuracy, MetricDetectionAvg, MetricBlockingAvg,
}

// Analyze computes per-metric dispersion (population standard deviation)
// across the most recent window runs. window <= 0 means all runs. With fewer
// than two usable values a metric is undefined, not zero: a single run
// carries no repeatability information.
func Analyze(history []domain.RunMetrics, names []string, window int) map[string]domain.Metric {
	if len(names) == 0 {
		names = DefaultRepeatabilityMetrics
	}
	if window > 0 && window < len(history) {
		history = history[len(history)-window:]
	}

	result := make(map[string]domain.Metric, len(names))
	for _, name := range names {
		values := make([]float64, 0, len(history))
		for _, run := range history {
			if v, ok := metricValue(run, name); ok {
				values = append(values, v)
			}
		}
		if len(values) < 2 {
			result[name] = domain.UndefinedMetric()
			continue
		}
		result[name] = domain.DefinedMetric(populationStdDev(values))
	}
	return result
}

func metricValue(run domain.RunMetrics, name string) (float64, bool) {
	switch name {
	case MetricTPR:
		return run.TPR.Value, run.TPR.Defined
	case MetricFPR:
		return run.FPR.Value, run.FPR.Defined
	case MetricAccuracy:
		return run.Accuracy.Value, run.Accuracy.Defined
	case MetricDetectionAvg:
		return run.DetectionSeconds.Avg, run.DetectionSeconds.Count > 0
	case MetricBlockingAvg:
		return run.BlockingSeconds.Avg, run.BlockingSeconds.Count > 0
	default:
		return 0, false
	}
}
