package grading

import "math"

// Engine options

type Option func(*config)

type config struct {
	AllowBonus     bool // permit points above max, percentage may exceed 100
	PartialWeights bool // renormalize averages over an incomplete weight set
}

// WithBonus permits points above the maximum, for exams with bonus tasks.
func WithBonus() Option { return func(c *config) { c.AllowBonus = true } }

// WithPartialWeights lets averages renormalize when only part of the weight
// budget is graded yet. Without it, incomplete weights are an error.
func WithPartialWeights() Option { return func(c *config) { c.PartialWeights = true } }

func applyOptions(opts []Option) *config {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// Percentage converts achieved points to a percentage of the maximum,
// rounded to two decimals.
func Percentage(points, maxPoints float64, opts ...Option) (float64, error) {
	cfg := applyOptions(opts)
	if !isFinite(points) {
		return 0, &ValidationError{Field: "points", Reason: "not a finite number"}
	}
	if !isFinite(maxPoints) {
		return 0, &ValidationError{Field: "max_points", Reason: "not a finite number"}
	}
	if maxPoints <= 0 {
		return 0, &ValidationError{Field: "max_points", Reason: "must be greater than zero"}
	}
	if points < 0 {
		return 0, &ValidationError{Field: "points", Reason: "must not be negative"}
	}
	if points > maxPoints && !cfg.AllowBonus {
		return 0, &ValidationError{Field: "points", Reason: "exceeds maximum points"}
	}
	return round2(points / maxPoints * 100), nil
}

// ValidatePoints checks a raw score against the maximum without converting.
func ValidatePoints(points, maxPoints float64, opts ...Option) error {
	_, err := Percentage(points, maxPoints, opts...)
	return err
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// round2 rounds to two decimals, the precision percentages are stored with.
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// round4 rounds to four decimals, used for weight sums and rates.
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
