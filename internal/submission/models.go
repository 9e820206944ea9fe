package submission

import "errors"

// Submission kinds.
const (
	KindDocument        = "document"
	KindAssignment      = "assignment"
	KindExamAnswer      = "exam_answer"
	KindEmailAttachment = "email_attachment"
)

// Review lifecycle.
const (
	StatusSubmitted = "submitted"
	StatusReviewed  = "reviewed"
	StatusGraded    = "graded"
	StatusReturned  = "returned"
)

var (
	// ErrNotFound marks lookups that hit nothing; handlers map it to 404.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks rejected input such as a disallowed file type.
	ErrInvalid = errors.New("invalid input")
	// ErrDuplicate is returned when a submission for the same source
	// already exists (same message id, or same enrollment and exam during
	// reconciliation).
	ErrDuplicate = errors.New("already exists")
)

func ValidKind(k string) bool {
	switch k {
	case KindDocument, KindAssignment, KindExamAnswer, KindEmailAttachment:
		return true
	}
	return false
}

func ValidStatus(s string) bool {
	switch s {
	case StatusSubmitted, StatusReviewed, StatusGraded, StatusReturned:
		return true
	}
	return false
}

// Submission is one handed-in piece of work. Documents hang off it; an
// email with three attachments is one submission with three documents.
type Submission struct {
	ID           string     `json:"id"`
	EnrollmentID int64      `json:"enrollment_id"`
	ExamID       *int64     `json:"exam_id,omitempty"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	Source       string     `json:"source,omitempty"` // file path or mailbox the item came from
	MessageID    string     `json:"message_id,omitempty"`
	Note         string     `json:"note,omitempty"`
	SubmittedAt  int64      `json:"submitted_at"`
	UpdatedAt    int64      `json:"updated_at"`
	Documents    []Document `json:"documents,omitempty"`
}

// Document is a stored file belonging to a submission. Filename is the
// sanitized name under the upload tree, OriginalName what the sender used.
type Document struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	BlobKey      string `json:"blob_key"`
	MIMEType     string `json:"mime_type,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	UploadedAt   int64  `json:"uploaded_at"`
}
