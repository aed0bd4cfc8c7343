package boosting

import "sort"

// Borders returns at most maxBorders split candidates for a feature. With
// few distinct values every midpoint is a border; otherwise borders sit
// between equal-frequency quantiles.
func Borders(values []float64, maxBorders int) []float64 {
	if len(values) == 0 || maxBorders < 1 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	unique := sorted[:1:1]
	for _, v := range sorted[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}
	if len(unique) <= maxBorders+1 {
		borders := make([]float64, 0, len(unique)-1)
		for i := 1; i < len(unique); i++ {
			borders = append(borders, midpoint(unique[i-1], unique[i]))
		}
		return borders
	}

	n := len(sorted)
	borders := make([]float64, 0, maxBorders)
	for k := 1; k <= maxBorders; k++ {
		pos := k * n / (maxBorders + 1)
		if pos <= 0 || pos >= n {
			continue
		}
		lo, hi := sorted[pos-1], sorted[pos]
		if lo == hi {
			// move to the next distinct value above the quantile
			j := sort.SearchFloat64s(sorted, hi)
			for j < n && sorted[j] == hi {
				j++
			}
			if j >= n {
				continue
			}
			lo, hi = hi, sorted[j]
		}
		b := midpoint(lo, hi)
		if len(borders) == 0 || b > borders[len(borders)-1] {
			borders = append(borders, b)
		}
	}
	return borders
}

func midpoint(lo, hi float64) float64 {
	m := lo + (hi-lo)/2
	if m >= hi {
		return lo
	}
	return m
}

// binIndex returns the number of borders strictly below v, so that
// v > borders[k] exactly when binIndex(v) > k.
func binIndex(borders []float64, v float64) int {
	return sort.SearchFloat64s(borders, v)
}
