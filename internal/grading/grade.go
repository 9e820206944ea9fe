package grading

// Status is the review state of a stored grade.
type Status string

const (
	StatusProvisional Status = "provisional"
	StatusFinal       Status = "final"
)

// CanBecome reports whether a grade may move to the next status. Final
// grades are locked; correcting one requires an explicit reopen.
func (s Status) CanBecome(next Status) bool {
	switch s {
	case StatusFinal:
		return false
	default:
		return next == StatusProvisional || next == StatusFinal
	}
}

// Computed carries everything derived from one scoring pass.
type Computed struct {
	Points    float64 `json:"points"`
	MaxPoints float64 `json:"max_points"`
	Percent   float64 `json:"percent"`
	Value     float64 `json:"value"`
	Label     string  `json:"label"`
}

// Compute scores raw points against a scale in one step.
func Compute(points, maxPoints float64, scale Scale, opts ...Option) (Computed, error) {
	pct, err := Percentage(points, maxPoints, opts...)
	if err != nil {
		return Computed{}, err
	}
	t, err := scale.Resolve(pct)
	if err != nil {
		return Computed{}, err
	}
	return Computed{
		Points:    points,
		MaxPoints: maxPoints,
		Percent:   pct,
		Value:     t.Value,
		Label:     t.Label,
	}, nil
}

// Regrade is the before/after pair a rescoring produces, kept together so
// corrections stay auditable.
type Regrade struct {
	Old Computed `json:"old"`
	New Computed `json:"new"`
}

// Rescore recomputes a grade with new points and reports both states.
func Rescore(old Computed, points float64, scale Scale, opts ...Option) (Regrade, error) {
	next, err := Compute(points, old.MaxPoints, scale, opts...)
	if err != nil {
		return Regrade{}, err
	}
	return Regrade{Old: old, New: next}, nil
}
