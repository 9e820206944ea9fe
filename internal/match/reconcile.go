package match

// Incoming pairs an artifact with the error its parser produced, if any.
// Failed parses travel through reconciliation as data so one broken email
// cannot abort a batch.
type Incoming struct {
	Artifact Artifact
	Err      error
}

// Item is the per-artifact outcome of a reconciliation run.
type Item struct {
	Artifact Artifact `json:"artifact"`
	Result   Result   `json:"result"`
	Err      error    `json:"-"`
}

// Report partitions a batch. Input order is preserved within each bucket,
// so the same batch always yields the same report.
type Report struct {
	Matched    []Item `json:"matched"`
	Duplicates []Item `json:"duplicates"`
	Ambiguous  []Item `json:"ambiguous"`
	Unmatched  []Item `json:"unmatched"`
	Failed     []Item `json:"failed"`
}

// Total is the number of artifacts the batch carried.
func (r Report) Total() int {
	return len(r.Matched) + len(r.Duplicates) + len(r.Ambiguous) + len(r.Unmatched) + len(r.Failed)
}

// Reconcile resolves every artifact in the batch against the roster.
// existing marks enrollments that already hold a submission for the target
// exam; matches against those are reported as duplicates instead of being
// handed out again, which makes running the same batch twice a no-op.
func (e *Engine) Reconcile(batch []Incoming, roster []Candidate, existing map[int64]bool) Report {
	taken := make(map[int64]bool, len(existing))
	for id, ok := range existing {
		if ok {
			taken[id] = true
		}
	}
	var rep Report
	for _, in := range batch {
		if in.Err != nil {
			rep.Failed = append(rep.Failed, Item{Artifact: in.Artifact, Err: in.Err})
			continue
		}
		res := e.Match(in.Artifact, roster)
		item := Item{Artifact: in.Artifact, Result: res}
		switch res.Outcome {
		case OutcomeMatched:
			id := res.Candidate.EnrollmentID
			if taken[id] {
				rep.Duplicates = append(rep.Duplicates, item)
				continue
			}
			taken[id] = true
			rep.Matched = append(rep.Matched, item)
		case OutcomeAmbiguous:
			rep.Ambiguous = append(rep.Ambiguous, item)
		default:
			rep.Unmatched = append(rep.Unmatched, item)
		}
	}
	return rep
}
