package metrics

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	t.Run("empty sample", func(t *testing.T) {
		stats := Summarize(nil)
		if stats.Count != 0 || stats.Avg != 0 {
			t.Fatalf("empty summary = %+v, want zero struct", stats)
		}
	})

	t.Run("basic aggregates", func(t *testing.T) {
		stats := Summarize([]float64{30, 10, 20})
		if stats.Count != 3 {
			t.Fatalf("count = %d, want 3", stats.Count)
		}
		if stats.Avg != 20 {
			t.Fatalf("avg = %v, want 20", stats.Avg)
		}
		if stats.Median != 20 {
			t.Fatalf("median = %v, want 20", stats.Median)
		}
		if stats.Min != 10 || stats.Max != 30 {
			t.Fatalf("min/max = %v/%v, want 10/30", stats.Min, stats.Max)
		}
	})

	t.Run("even-sized median interpolates", func(t *testing.T) {
		stats := Summarize([]float64{1, 2, 3, 4})
		if stats.Median != 2.5 {
			t.Fatalf("median = %v, want 2.5", stats.Median)
		}
	})
}

func TestPopulationStdDev(t *testing.T) {
	if got := populationStdDev([]float64{0.8, 0.9}); math.Abs(got-0.05) > 1e-12 {
		t.Fatalf("std dev = %v, want 0.05", got)
	}
	if got := populationStdDev([]float64{5, 5, 5}); got != 0 {
		t.Fatalf("std dev of constant population = %v, want 0", got)
	}
}
