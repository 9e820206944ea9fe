package submission

import "context"

type ListOpts struct {
	EnrollmentID int64
	ExamID       int64
	Kind         string
	Status       string
	Limit        int
}

type Store interface {
	Insert(ctx context.Context, sub Submission) (Submission, error)
	Get(ctx context.Context, id string) (Submission, error)
	List(ctx context.Context, opts ListOpts) ([]Submission, error)
	UpdateStatus(ctx context.Context, id, status string) (Submission, error)

	// HasForExam reports whether the enrollment already handed something
	// in for the exam; reconciliation uses it to stay idempotent.
	HasForExam(ctx context.Context, enrollmentID, examID int64) (bool, error)
	// HasMessage reports whether an email with this Message-Id was
	// already imported.
	HasMessage(ctx context.Context, messageID string) (bool, error)

	AddDocument(ctx context.Context, d Document) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context, submissionID string) ([]Document, error)
}
