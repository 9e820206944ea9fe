package ingest

import "github.com/notenwerk/notenwerk/internal/match"

// ItemStatus is the end-to-end outcome for one inbound artifact.
type ItemStatus string

const (
	StatusStored     ItemStatus = "stored"
	StatusWouldStore ItemStatus = "would_store" // dry run
	StatusDuplicate  ItemStatus = "duplicate"   // already present, no-op
	StatusAmbiguous  ItemStatus = "ambiguous"
	StatusUnmatched  ItemStatus = "unmatched"
	StatusFailed     ItemStatus = "failed"
)

// ItemReport carries one artifact through matching and commit.
type ItemReport struct {
	Ref          string            `json:"ref"`
	Status       ItemStatus        `json:"status"`
	Strategy     match.Strategy    `json:"strategy,omitempty"`
	Confidence   float64           `json:"confidence,omitempty"`
	EnrollmentID int64             `json:"enrollment_id,omitempty"`
	Student      string            `json:"student,omitempty"`
	SubmissionID string            `json:"submission_id,omitempty"`
	Candidates   []match.Candidate `json:"candidates,omitempty"` // ambiguous ties
	Error        string            `json:"error,omitempty"`
}

// Report is the outcome of one import run, in input order.
type Report struct {
	CourseID   int64        `json:"course_id"`
	ExamID     *int64       `json:"exam_id,omitempty"`
	DryRun     bool         `json:"dry_run,omitempty"`
	Items      []ItemReport `json:"items"`
	Stored     int          `json:"stored"` // includes would_store on dry runs
	Duplicates int          `json:"duplicates"`
	Ambiguous  int          `json:"ambiguous"`
	Unmatched  int          `json:"unmatched"`
	Failed     int          `json:"failed"`
}

func (r *Report) add(item ItemReport) {
	r.Items = append(r.Items, item)
	switch item.Status {
	case StatusStored, StatusWouldStore:
		r.Stored++
	case StatusDuplicate:
		r.Duplicates++
	case StatusAmbiguous:
		r.Ambiguous++
	case StatusUnmatched:
		r.Unmatched++
	case StatusFailed:
		r.Failed++
	}
}

// Total is the number of artifacts the run carried.
func (r Report) Total() int { return len(r.Items) }
