package submission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) Insert(ctx context.Context, sub Submission) (Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Kind == "" {
		sub.Kind = KindDocument
	}
	if !ValidKind(sub.Kind) {
		return Submission{}, fmt.Errorf("kind %q: %w", sub.Kind, ErrInvalid)
	}
	if sub.Status == "" {
		sub.Status = StatusSubmitted
	}
	if !ValidStatus(sub.Status) {
		return Submission{}, fmt.Errorf("status %q: %w", sub.Status, ErrInvalid)
	}
	now := time.Now().Unix()
	sub.SubmittedAt, sub.UpdatedAt = now, now

	var examID sql.NullInt64
	if sub.ExamID != nil {
		examID = sql.NullInt64{Int64: *sub.ExamID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, enrollment_id, exam_id, kind, status, source,
		   message_id, note, submitted_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sub.ID, sub.EnrollmentID, examID, sub.Kind, sub.Status, sub.Source,
		sub.MessageID, sub.Note, sub.SubmittedAt, sub.UpdatedAt)
	if err != nil {
		return Submission{}, err
	}
	return sub, nil
}

const submissionCols = `id, enrollment_id, exam_id, kind, status, source,
	message_id, note, submitted_at, updated_at`

func scanSubmission(row interface{ Scan(...any) error }) (Submission, error) {
	var sub Submission
	var examID sql.NullInt64
	err := row.Scan(&sub.ID, &sub.EnrollmentID, &examID, &sub.Kind, &sub.Status,
		&sub.Source, &sub.MessageID, &sub.Note, &sub.SubmittedAt, &sub.UpdatedAt)
	if examID.Valid {
		sub.ExamID = &examID.Int64
	}
	return sub, err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Submission{}, err
	}
	sub.Documents, err = s.ListDocuments(ctx, sub.ID)
	return sub, err
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Submission, error) {
	q := `SELECT ` + submissionCols + ` FROM submissions WHERE 1=1`
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if opts.EnrollmentID > 0 {
		q += " AND enrollment_id = " + arg(opts.EnrollmentID)
	}
	if opts.ExamID > 0 {
		q += " AND exam_id = " + arg(opts.ExamID)
	}
	if opts.Kind != "" {
		q += " AND kind = " + arg(opts.Kind)
	}
	if opts.Status != "" {
		q += " AND status = " + arg(opts.Status)
	}
	q += " ORDER BY submitted_at DESC, id"
	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q += " LIMIT " + arg(limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id, status string) (Submission, error) {
	if !ValidStatus(status) {
		return Submission{}, fmt.Errorf("status %q: %w", status, ErrInvalid)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status=$1, updated_at=$2 WHERE id=$3`,
		status, time.Now().Unix(), id)
	if err != nil {
		return Submission{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Submission{}, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return s.Get(ctx, id)
}

func (s *SQLStore) HasForExam(ctx context.Context, enrollmentID, examID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM submissions WHERE enrollment_id=$1 AND exam_id=$2`,
		enrollmentID, examID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) HasMessage(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM submissions WHERE message_id=$1`, messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) AddDocument(ctx context.Context, d Document) (Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.UploadedAt = time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, submission_id, filename, original_name, blob_key,
		   mime_type, size_bytes, uploaded_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.SubmissionID, d.Filename, d.OriginalName, d.BlobKey,
		d.MIMEType, d.SizeBytes, d.UploadedAt)
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func (s *SQLStore) GetDocument(ctx context.Context, id string) (Document, error) {
	var d Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, submission_id, filename, original_name, blob_key, mime_type, size_bytes, uploaded_at
		 FROM documents WHERE id=$1`, id).
		Scan(&d.ID, &d.SubmissionID, &d.Filename, &d.OriginalName, &d.BlobKey,
			&d.MIMEType, &d.SizeBytes, &d.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return d, err
}

func (s *SQLStore) ListDocuments(ctx context.Context, submissionID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, filename, original_name, blob_key, mime_type, size_bytes, uploaded_at
		 FROM documents WHERE submission_id=$1 ORDER BY uploaded_at, id`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.SubmissionID, &d.Filename, &d.OriginalName, &d.BlobKey,
			&d.MIMEType, &d.SizeBytes, &d.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
