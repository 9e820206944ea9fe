package match

import (
	"sort"
	"strings"
)

// Conservative defaults: a fuzzy hit needs a high ratio, and a runner-up
// almost as good makes the whole artifact ambiguous.
const (
	DefaultThreshold = 0.84
	DefaultMargin    = 0.05
)

// Engine resolves artifacts to enrollments. It is pure and stateless; all
// I/O stays with the callers.
type Engine struct {
	threshold float64
	margin    float64
}

// Engine options

type Option func(*Engine)

// WithThreshold sets the minimum similarity ratio a fuzzy name hit needs.
func WithThreshold(v float64) Option { return func(e *Engine) { e.threshold = v } }

// WithMargin sets how close a runner-up may come before the result counts
// as ambiguous.
func WithMargin(v float64) Option { return func(e *Engine) { e.margin = v } }

func NewEngine(opts ...Option) *Engine {
	e := &Engine{threshold: DefaultThreshold, margin: DefaultMargin}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Match runs the strategy chain in strict priority order: exact student ID,
// exact email, fuzzy name. The first strategy that finds anything decides;
// an ambiguous hit stops the chain rather than letting a weaker strategy
// guess.
func (e *Engine) Match(a Artifact, roster []Candidate) Result {
	if len(roster) == 0 {
		return Result{Outcome: OutcomeNone}
	}
	if r, ok := e.matchByStudentID(a, roster); ok {
		return r
	}
	if r, ok := e.matchByEmail(a, roster); ok {
		return r
	}
	return e.matchByName(a, roster)
}

func (e *Engine) matchByStudentID(a Artifact, roster []Candidate) (Result, bool) {
	id, found := ExtractStudentID(a.Filename, a.Subject, a.Body)
	if !found {
		return Result{}, false
	}
	var hits []Candidate
	for _, c := range roster {
		if c.StudentID == id {
			hits = append(hits, c)
		}
	}
	// a digit run that belongs to nobody falls through to the next strategy
	return decide(hits, StrategyStudentID)
}

func (e *Engine) matchByEmail(a Artifact, roster []Candidate) (Result, bool) {
	addr := strings.TrimSpace(a.SenderAddr)
	if addr == "" {
		return Result{}, false
	}
	var hits []Candidate
	for _, c := range roster {
		if c.Email != "" && strings.EqualFold(c.Email, addr) {
			hits = append(hits, c)
		}
	}
	return decide(hits, StrategyEmail)
}

// decide turns exact-strategy hits into a result. Zero hits means the chain
// continues; more than one is surfaced as ambiguous right away.
func decide(hits []Candidate, via Strategy) (Result, bool) {
	switch len(hits) {
	case 0:
		return Result{}, false
	case 1:
		c := hits[0]
		return Result{Outcome: OutcomeMatched, Strategy: via, Confidence: 1, Candidate: &c}, true
	default:
		return Result{Outcome: OutcomeAmbiguous, Strategy: via, Candidates: hits}, true
	}
}

type scored struct {
	cand  Candidate
	score float64
}

func (e *Engine) matchByName(a Artifact, roster []Candidate) Result {
	probes := a.nameProbes()
	if len(probes) == 0 {
		return Result{Outcome: OutcomeNone}
	}
	tokenized := make([][]string, 0, len(probes))
	for _, p := range probes {
		if toks := tokens(p); len(toks) > 0 {
			tokenized = append(tokenized, toks)
		}
	}

	var ranked []scored
	for _, c := range roster {
		best := 0.0
		for _, key := range NameKeys(c.LastName, c.FirstName) {
			for _, toks := range tokenized {
				if s := windowScore(toks, key); s > best {
					best = s
				}
			}
		}
		if best >= e.threshold {
			ranked = append(ranked, scored{cand: c, score: best})
		}
	}
	if len(ranked) == 0 {
		return Result{Outcome: OutcomeNone}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].cand.EnrollmentID < ranked[j].cand.EnrollmentID
	})

	rivals := []Candidate{ranked[0].cand}
	for _, s := range ranked[1:] {
		if ranked[0].score-s.score <= e.margin {
			rivals = append(rivals, s.cand)
		}
	}
	if len(rivals) > 1 {
		return Result{Outcome: OutcomeAmbiguous, Strategy: StrategyFuzzyName, Candidates: rivals}
	}
	top := ranked[0]
	return Result{
		Outcome:    OutcomeMatched,
		Strategy:   StrategyFuzzyName,
		Confidence: top.score,
		Candidate:  &top.cand,
	}
}
