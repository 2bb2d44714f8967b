package metrics

import (
	"math"
	"sort"

	"banbench/internal/domain"
)

// Summarize aggregates a sample of seconds into the summary shape persisted
// with each run. An empty sample yields a zero struct with Count 0.
func Summarize(values []float64) domain.SummaryStats {
	if len(values) == 0 {
		return domain.SummaryStats{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return domain.SummaryStats{
		Count:  len(sorted),
		Avg:    sum / float64(len(sorted)),
		Median: percentile(sorted, 0.5),
		P90:    percentile(sorted, 0.9),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// percentile interpolates linearly over a sorted sample.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// populationStdDev treats the sample as the full population under study.
// Needs at least two values to mean anything; callers gate on that.
func populationStdDev(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
