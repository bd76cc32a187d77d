package services

import "sort"

// Median returns the middle value; even-length inputs average the two central values
func Median(values []float64) (float64, error) {
	n := len(values)
	if n == 0 {
		return 0, ErrEmptyCohort
	}
	sorted := sortedCopy(values)
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, nil
}

// Mean returns the arithmetic mean
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyCohort
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// Percentile90 is the nearest-rank value at index floor(0.9*n) of the ascending sort
func Percentile90(values []float64) (float64, error) {
	n := len(values)
	if n == 0 {
		return 0, ErrEmptyCohort
	}
	idx := n * 9 / 10
	if idx >= n {
		idx = n - 1
	}
	return sortedCopy(values)[idx], nil
}

// optional converts a statistic into a nullable metric field
func optional(v float64, err error) *float64 {
	if err != nil {
		return nil
	}
	return &v
}

// delta is current minus baseline with missing sides treated as zero
func delta(cur, base *float64) float64 {
	var c, b float64
	if cur != nil {
		c = *cur
	}
	if base != nil {
		b = *base
	}
	return c - b
}

func sortedCopy(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	return out
}
