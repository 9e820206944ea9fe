package grading

import "sort"

// DefaultPassThreshold is the percentage below which a result counts as
// failed when the caller has no scale-specific cutoff.
const DefaultPassThreshold = 50.0

// Summary describes the distribution of exam percentages across a cohort.
type Summary struct {
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"` // fraction in 0..1
}

// Statistics computes the cohort summary over raw percentages. The input is
// not mutated. Zero grades is an error, not a zeroed summary, so callers
// cannot mistake "nobody graded" for "everyone scored 0".
func Statistics(percents []float64, passThreshold float64) (Summary, error) {
	if len(percents) == 0 {
		return Summary{}, &EmptyDatasetError{}
	}
	sorted := make([]float64, len(percents))
	copy(sorted, percents)
	sort.Float64s(sorted)

	sum := 0.0
	passed := 0
	for _, p := range sorted {
		sum += p
		if p >= passThreshold {
			passed++
		}
	}
	n := len(sorted)
	return Summary{
		Count:    n,
		Min:      sorted[0],
		Max:      sorted[n-1],
		Mean:     round2(sum / float64(n)),
		Median:   round2(median(sorted)),
		Passed:   passed,
		Failed:   n - passed,
		PassRate: round4(float64(passed) / float64(n)),
	}, nil
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Distribution buckets percentages by the grade value they resolve to on the
// scale. Keys are formatted values ("1.3"), ready for JSON.
func Distribution(percents []float64, scale Scale) (map[string]int, error) {
	if len(percents) == 0 {
		return nil, &EmptyDatasetError{}
	}
	out := make(map[string]int)
	for _, p := range percents {
		t, err := scale.Resolve(p)
		if err != nil {
			return nil, err
		}
		out[FormatValue(t.Value)]++
	}
	return out, nil
}
