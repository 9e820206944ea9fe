package match

import "path"

// Kind distinguishes where an artifact came from.
type Kind string

const (
	KindEmail Kind = "email"
	KindFile  Kind = "file"
)

// Artifact is one inbound item to resolve against a course roster: an email
// or a file found in a submissions directory. Fields carry whatever the
// source had; the engine normalizes internally.
type Artifact struct {
	Ref        string `json:"ref"` // provenance, e.g. file path or message id
	Kind       Kind   `json:"kind"`
	Filename   string `json:"filename,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Body       string `json:"body,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	SenderAddr string `json:"sender_addr,omitempty"`
}

// nameProbes lists the free-text fields worth scanning for a student name.
func (a Artifact) nameProbes() []string {
	var ps []string
	if a.SenderName != "" {
		ps = append(ps, a.SenderName)
	}
	if a.Subject != "" {
		ps = append(ps, a.Subject)
	}
	if a.Filename != "" {
		ps = append(ps, stripExt(a.Filename))
	}
	return ps
}

func stripExt(name string) string {
	return name[:len(name)-len(path.Ext(name))]
}

// Candidate is one active enrollment the engine may resolve an artifact to.
// Rosters are expected to hold active enrollments only; dropped and
// completed ones never compete for a match. Status rides along for reports
// and ambiguity resolution, the engine itself does not act on it.
type Candidate struct {
	EnrollmentID int64  `json:"enrollment_id"`
	StudentID    string `json:"student_id"` // eight-digit registry number
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Status       string `json:"status,omitempty"`
}
