package submission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/notenwerk/notenwerk/internal/audit"
	"github.com/notenwerk/notenwerk/internal/registry"
	"github.com/notenwerk/notenwerk/internal/storage"
)

// RosterInfo is the slice of the registry needed to place files in the
// upload tree. registry.Store satisfies it.
type RosterInfo interface {
	GetEnrollment(ctx context.Context, id int64) (registry.Enrollment, error)
	GetStudent(ctx context.Context, id int64) (registry.Student, error)
	GetCourse(ctx context.Context, id int64) (registry.Course, error)
	GetUniversity(ctx context.Context, id int64) (registry.University, error)
}

// Service stores submissions: rows in the store, file bodies in the blob
// store under the upload path convention.
type Service struct {
	store  Store
	blobs  storage.BlobStore
	roster RosterInfo
	audit  *audit.Recorder
}

func NewService(store Store, blobs storage.BlobStore, roster RosterInfo, rec *audit.Recorder) *Service {
	return &Service{store: store, blobs: blobs, roster: roster, audit: rec}
}

func (s *Service) record(ctx context.Context, actor, action string, id string, details any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, actor, action, "submission", id, details)
}

// File is one incoming document body.
type File struct {
	Name     string // name as sent, sanitized before storing
	MIMEType string
	Data     []byte
}

type CreateInput struct {
	EnrollmentID int64
	ExamID       *int64
	Kind         string
	Source       string
	MessageID    string
	Note         string
	Actor        string
	Files        []File
}

// Create stores one submission with its files. The whole submission is
// rejected if any filename fails sanitization, so storage never holds a
// partial hand-in.
func (s *Service) Create(ctx context.Context, in CreateInput) (Submission, error) {
	if len(in.Files) == 0 {
		return Submission{}, fmt.Errorf("submission needs at least one file: %w", ErrInvalid)
	}
	enr, err := s.roster.GetEnrollment(ctx, in.EnrollmentID)
	if err != nil {
		return Submission{}, err
	}
	if in.MessageID != "" {
		dup, err := s.store.HasMessage(ctx, in.MessageID)
		if err != nil {
			return Submission{}, err
		}
		if dup {
			return Submission{}, fmt.Errorf("message %s: %w", in.MessageID, ErrDuplicate)
		}
	}

	names := make([]string, len(in.Files))
	for i, f := range in.Files {
		safe, err := SanitizeFilename(f.Name)
		if err != nil {
			return Submission{}, err
		}
		names[i] = safe
	}
	dir, err := s.uploadDir(ctx, enr)
	if err != nil {
		return Submission{}, err
	}

	sub, err := s.store.Insert(ctx, Submission{
		EnrollmentID: in.EnrollmentID,
		ExamID:       in.ExamID,
		Kind:         in.Kind,
		Source:       in.Source,
		MessageID:    in.MessageID,
		Note:         in.Note,
	})
	if err != nil {
		return Submission{}, err
	}
	for i, f := range in.Files {
		doc, err := s.storeFile(ctx, sub.ID, dir, names[i], f)
		if err != nil {
			return Submission{}, err
		}
		sub.Documents = append(sub.Documents, doc)
	}
	s.record(ctx, in.Actor, audit.ActionCreate, sub.ID, sub)
	return sub, nil
}

// Attach adds more files to an existing submission.
func (s *Service) Attach(ctx context.Context, submissionID string, files []File) (Submission, error) {
	sub, err := s.store.Get(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	enr, err := s.roster.GetEnrollment(ctx, sub.EnrollmentID)
	if err != nil {
		return Submission{}, err
	}
	dir, err := s.uploadDir(ctx, enr)
	if err != nil {
		return Submission{}, err
	}
	for _, f := range files {
		safe, err := SanitizeFilename(f.Name)
		if err != nil {
			return Submission{}, err
		}
		if _, err := s.storeFile(ctx, sub.ID, dir, safe, f); err != nil {
			return Submission{}, err
		}
	}
	return s.store.Get(ctx, submissionID)
}

func (s *Service) SetStatus(ctx context.Context, id, status, actor string) (Submission, error) {
	sub, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return Submission{}, err
	}
	s.record(ctx, actor, audit.ActionUpdate, sub.ID, map[string]string{"status": status})
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id string) (Submission, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, opts ListOpts) ([]Submission, error) {
	return s.store.List(ctx, opts)
}

func (s *Service) HasForExam(ctx context.Context, enrollmentID, examID int64) (bool, error) {
	return s.store.HasForExam(ctx, enrollmentID, examID)
}

func (s *Service) HasMessage(ctx context.Context, messageID string) (bool, error) {
	return s.store.HasMessage(ctx, messageID)
}

// OpenDocument returns the stored file body for download.
func (s *Service) OpenDocument(ctx context.Context, documentID string) (Document, io.ReadCloser, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, nil, err
	}
	rc, err := s.blobs.Get(doc.BlobKey)
	if err != nil {
		return Document{}, nil, err
	}
	return doc, rc, nil
}

// uploadDir resolves an enrollment to its folder in the upload tree:
// {university}/{semester}/{course}/{LastnameFirstname}.
func (s *Service) uploadDir(ctx context.Context, enr registry.Enrollment) (string, error) {
	student, err := s.roster.GetStudent(ctx, enr.StudentID)
	if err != nil {
		return "", err
	}
	course, err := s.roster.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return "", err
	}
	uni, err := s.roster.GetUniversity(ctx, course.UniversityID)
	if err != nil {
		return "", err
	}
	return path.Join(uni.Slug, course.Semester, course.Slug,
		Folder(student.LastName, student.FirstName)), nil
}

func (s *Service) storeFile(ctx context.Context, submissionID, dir, safeName string, f File) (Document, error) {
	key := Dedup(path.Join(dir, safeName), s.blobs.Exists)
	if _, err := s.blobs.Put(key, bytes.NewReader(f.Data)); err != nil {
		return Document{}, err
	}
	return s.store.AddDocument(ctx, Document{
		SubmissionID: submissionID,
		Filename:     path.Base(key),
		OriginalName: f.Name,
		BlobKey:      key,
		MIMEType:     f.MIMEType,
		SizeBytes:    int64(len(f.Data)),
	})
}
