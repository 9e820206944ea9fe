package grading

import "fmt"

// WeightEpsilon is the tolerance applied whenever weight sums are compared
// against the budget of 1.0. Float accumulation drift below this bound is
// treated as exact.
const WeightEpsilon = 0.001

// ValidationError reports malformed numeric input such as negative points,
// a zero maximum, or a weight outside (0, 1].
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// WeightOverflowError is returned when adding a component weight would push
// the exam total above 1.0. Remaining is the budget still available.
type WeightOverflowError struct {
	Weight    float64
	Remaining float64
}

func (e *WeightOverflowError) Error() string {
	return fmt.Sprintf("weight %v exceeds remaining budget %v", e.Weight, e.Remaining)
}

// IncompleteWeightingError is returned when an aggregate is requested over
// weights that do not cover the full budget.
type IncompleteWeightingError struct {
	Sum float64
}

func (e *IncompleteWeightingError) Error() string {
	return fmt.Sprintf("weights sum to %v, want 1", e.Sum)
}

// ScaleExhaustedError is returned when no threshold of a scale covers the
// percentage being resolved.
type ScaleExhaustedError struct {
	Scale      string
	Percentage float64
}

func (e *ScaleExhaustedError) Error() string {
	return fmt.Sprintf("scale %q has no threshold covering %.2f%%", e.Scale, e.Percentage)
}

// EmptyDatasetError is returned when statistics are requested over zero grades.
type EmptyDatasetError struct{}

func (e *EmptyDatasetError) Error() string { return "no grades in dataset" }
