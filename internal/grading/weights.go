package grading

import "math"

// WeightedScore pairs a percentage with the weight it contributes to an
// aggregate. Weights are fractions of 1.0, not percent.
type WeightedScore struct {
	Percent float64
	Weight  float64
}

// CheckComponentWeight reports whether next fits into the budget left by the
// existing component weights. The check runs at component-add time so an
// exam can never be configured past 100%.
func CheckComponentWeight(existing []float64, next float64) error {
	if err := validWeight(next); err != nil {
		return err
	}
	sum := 0.0
	for _, w := range existing {
		sum += w
	}
	if sum+next > 1+WeightEpsilon {
		return &WeightOverflowError{Weight: next, Remaining: RemainingWeight(existing)}
	}
	return nil
}

// RemainingWeight is the unallocated share of the weight budget, floored at
// zero and rounded so callers see 0.2 rather than 0.19999999999999996.
func RemainingWeight(existing []float64) float64 {
	sum := 0.0
	for _, w := range existing {
		sum += w
	}
	rem := 1 - sum
	if rem < 0 {
		rem = 0
	}
	return round4(rem)
}

// ComponentAverage folds component percentages into an exam percentage.
func ComponentAverage(parts []WeightedScore, opts ...Option) (float64, error) {
	return weightedAverage(parts, opts)
}

// CourseAverage folds exam percentages into a course percentage. Same
// contract as ComponentAverage, the level only differs in what the caller
// feeds in.
func CourseAverage(exams []WeightedScore, opts ...Option) (float64, error) {
	return weightedAverage(exams, opts)
}

func weightedAverage(parts []WeightedScore, opts []Option) (float64, error) {
	cfg := applyOptions(opts)
	if len(parts) == 0 {
		return 0, &EmptyDatasetError{}
	}
	sum, acc := 0.0, 0.0
	for _, p := range parts {
		if err := validWeight(p.Weight); err != nil {
			return 0, err
		}
		if !isFinite(p.Percent) || p.Percent < 0 {
			return 0, &ValidationError{Field: "percent", Reason: "must be a non-negative number"}
		}
		sum += p.Weight
		acc += p.Percent * p.Weight
	}
	if sum > 1+WeightEpsilon {
		return 0, &WeightOverflowError{Weight: round4(sum), Remaining: 0}
	}
	if math.Abs(sum-1) > WeightEpsilon {
		if !cfg.PartialWeights {
			return 0, &IncompleteWeightingError{Sum: round4(sum)}
		}
		return round2(acc / sum), nil
	}
	return round2(acc), nil
}

func validWeight(w float64) error {
	if !isFinite(w) || w <= 0 || w > 1 {
		return &ValidationError{Field: "weight", Reason: "must be in (0, 1]"}
	}
	return nil
}
