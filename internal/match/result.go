package match

import (
	"errors"
	"fmt"
)

// Outcome is what resolving a single artifact produced.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeNone      Outcome = "no_candidate"
)

// Strategy names which rule in the chain decided the outcome.
type Strategy string

const (
	StrategyStudentID Strategy = "student_id"
	StrategyEmail     Strategy = "email"
	StrategyFuzzyName Strategy = "fuzzy_name"
)

// Result is the outcome of resolving one artifact. Ambiguity is a value
// here, never silently collapsed to a pick; callers decide what a tie means
// for them.
type Result struct {
	Outcome    Outcome     `json:"outcome"`
	Strategy   Strategy    `json:"strategy,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Candidate  *Candidate  `json:"candidate,omitempty"`  // set when matched
	Candidates []Candidate `json:"candidates,omitempty"` // set when ambiguous
}

// Matched reports whether the artifact resolved to exactly one enrollment.
func (r Result) Matched() bool { return r.Outcome == OutcomeMatched }

// ErrNoMatch is returned by EnrollmentID when nothing resolved.
var ErrNoMatch = errors.New("no matching enrollment")

// AmbiguousMatchError is the error form of an ambiguous outcome, for callers
// that want resolution to fail hard instead of handling the tie themselves.
type AmbiguousMatchError struct {
	Strategy   Strategy
	Candidates []Candidate
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%d enrollments match via %s", len(e.Candidates), e.Strategy)
}

// EnrollmentID unwraps a decisive match, turning the other outcomes into
// errors.
func (r Result) EnrollmentID() (int64, error) {
	switch r.Outcome {
	case OutcomeMatched:
		return r.Candidate.EnrollmentID, nil
	case OutcomeAmbiguous:
		return 0, &AmbiguousMatchError{Strategy: r.Strategy, Candidates: r.Candidates}
	default:
		return 0, ErrNoMatch
	}
}
