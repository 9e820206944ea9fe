// Package ingest turns inbound artifacts, submission emails and files from
// bulk hand-in directories, into stored submissions for a course. Matching
// against the roster is the engine's job; this package builds the batches,
// commits the decisive matches and reports every artifact's fate.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/notenwerk/notenwerk/internal/audit"
	"github.com/notenwerk/notenwerk/internal/mailparse"
	"github.com/notenwerk/notenwerk/internal/match"
	"github.com/notenwerk/notenwerk/internal/registry"
	"github.com/notenwerk/notenwerk/internal/submission"
)

// Roster is the slice of the registry the importer reads.
// registry.SQLStore satisfies it.
type Roster interface {
	GetCourse(ctx context.Context, id int64) (registry.Course, error)
	Candidates(ctx context.Context, courseID int64) ([]match.Candidate, error)
}

// Submitter commits matched artifacts. *submission.Service satisfies it.
type Submitter interface {
	Create(ctx context.Context, in submission.CreateInput) (submission.Submission, error)
	HasForExam(ctx context.Context, enrollmentID, examID int64) (bool, error)
}

type Service struct {
	roster Roster
	subs   Submitter
	engine *match.Engine
	audit  *audit.Recorder
}

// NewService wires an importer. A nil engine gets the default thresholds.
func NewService(roster Roster, subs Submitter, engine *match.Engine, rec *audit.Recorder) *Service {
	if engine == nil {
		engine = match.NewEngine()
	}
	return &Service{roster: roster, subs: subs, engine: engine, audit: rec}
}

func (s *Service) record(ctx context.Context, actor, action string, courseID int64, rep Report) {
	if s.audit == nil || rep.DryRun {
		return
	}
	_ = s.audit.Record(ctx, actor, action, "course", courseID, map[string]int{
		"total":      rep.Total(),
		"stored":     rep.Stored,
		"duplicates": rep.Duplicates,
		"ambiguous":  rep.Ambiguous,
		"unmatched":  rep.Unmatched,
		"failed":     rep.Failed,
	})
}

// EmailImport is one parsed mailbox to import for a course.
type EmailImport struct {
	CourseID int64
	ExamID   *int64
	Messages []mailparse.Parsed
	DryRun   bool
	Actor    string
}

// ImportEmails matches every message against the course roster and stores
// the attachments of decisive matches as submissions. Messages that fail to
// parse or carry no attachments are reported, never dropped silently.
// Re-importing the same mailbox is a no-op: the Message-ID dedup turns every
// already stored message into a duplicate item.
func (s *Service) ImportEmails(ctx context.Context, in EmailImport) (Report, error) {
	batch := make([]match.Incoming, 0, len(in.Messages))
	files := make(map[string][]submission.File, len(in.Messages))
	msgIDs := make(map[string]string, len(in.Messages))
	notes := make(map[string]string, len(in.Messages))
	seen := make(map[string]bool, len(in.Messages))

	for i, p := range in.Messages {
		ref := fmt.Sprintf("message %d", i+1)
		if id := p.Message.MessageID; id != "" && !seen[id] {
			ref = id
		}
		seen[ref] = true

		if p.Err != nil {
			batch = append(batch, match.Incoming{
				Artifact: match.Artifact{Ref: ref, Kind: match.KindEmail},
				Err:      p.Err,
			})
			continue
		}
		m := p.Message
		if len(m.Attachments) == 0 {
			batch = append(batch, match.Incoming{
				Artifact: emailArtifact(ref, m),
				Err:      fmt.Errorf("%s: no attachments", ref),
			})
			continue
		}
		fs := make([]submission.File, len(m.Attachments))
		for j, at := range m.Attachments {
			fs[j] = submission.File{Name: at.Filename, MIMEType: at.MIMEType, Data: at.Data}
		}
		files[ref] = fs
		msgIDs[ref] = m.MessageID
		notes[ref] = m.Subject
		batch = append(batch, match.Incoming{Artifact: emailArtifact(ref, m)})
	}

	return s.run(ctx, runInput{
		courseID: in.CourseID,
		examID:   in.ExamID,
		kind:     submission.KindEmailAttachment,
		source:   "email",
		action:   audit.ActionImport,
		dryRun:   in.DryRun,
		actor:    in.Actor,
		batch:    batch,
		files:    files,
		msgIDs:   msgIDs,
		notes:    notes,
	})
}

func emailArtifact(ref string, m mailparse.Message) match.Artifact {
	a := match.Artifact{
		Ref:        ref,
		Kind:       match.KindEmail,
		Subject:    m.Subject,
		Body:       m.Body,
		SenderName: m.SenderName,
		SenderAddr: m.SenderAddr,
	}
	if len(m.Attachments) > 0 {
		a.Filename = m.Attachments[0].Filename
	}
	return a
}

// Upload is one file from a bulk hand-in directory.
type Upload struct {
	Name     string
	MIMEType string
	Data     []byte
}

// UploadBatch is a collected set of hand-in files to reconcile against a
// course roster.
type UploadBatch struct {
	CourseID int64
	ExamID   *int64
	Kind     string // defaults: exam_answer with an exam, document without
	Files    []Upload
	DryRun   bool
	Actor    string
}

// ReconcileUploads partitions the files into matched, duplicate, ambiguous
// and unmatched, then stores the matches. With an exam set, enrollments that
// already hold a submission for it are reported as duplicates, so running
// the same directory twice commits nothing the second time.
func (s *Service) ReconcileUploads(ctx context.Context, in UploadBatch) (Report, error) {
	kind := in.Kind
	if kind == "" {
		if in.ExamID != nil {
			kind = submission.KindExamAnswer
		} else {
			kind = submission.KindDocument
		}
	}

	batch := make([]match.Incoming, 0, len(in.Files))
	files := make(map[string][]submission.File, len(in.Files))
	seen := make(map[string]bool, len(in.Files))
	for i, u := range in.Files {
		ref := u.Name
		if ref == "" || seen[ref] {
			ref = fmt.Sprintf("file %d", i+1)
		}
		seen[ref] = true
		files[ref] = []submission.File{{Name: u.Name, MIMEType: u.MIMEType, Data: u.Data}}
		batch = append(batch, match.Incoming{
			Artifact: match.Artifact{Ref: ref, Kind: match.KindFile, Filename: u.Name},
		})
	}

	return s.run(ctx, runInput{
		courseID: in.CourseID,
		examID:   in.ExamID,
		kind:     kind,
		source:   "upload",
		action:   audit.ActionReconcile,
		dryRun:   in.DryRun,
		actor:    in.Actor,
		batch:    batch,
		files:    files,
	})
}

type runInput struct {
	courseID int64
	examID   *int64
	kind     string
	source   string
	action   string
	dryRun   bool
	actor    string
	batch    []match.Incoming
	files    map[string][]submission.File
	msgIDs   map[string]string
	notes    map[string]string
}

// run resolves the batch against a roster snapshot and commits decisive
// matches one at a time; the (enrollment, exam, component) uniqueness lives
// in the grade and submission stores, so commits stay serialized here.
func (s *Service) run(ctx context.Context, in runInput) (Report, error) {
	if _, err := s.roster.GetCourse(ctx, in.courseID); err != nil {
		return Report{}, err
	}
	roster, err := s.roster.Candidates(ctx, in.courseID)
	if err != nil {
		return Report{}, err
	}
	existing, err := s.existingFor(ctx, roster, in.examID)
	if err != nil {
		return Report{}, err
	}

	part := s.engine.Reconcile(in.batch, roster, existing)

	byRef := make(map[string]ItemReport, part.Total())
	for _, it := range part.Failed {
		byRef[it.Artifact.Ref] = ItemReport{
			Ref: it.Artifact.Ref, Status: StatusFailed, Error: it.Err.Error(),
		}
	}
	for _, it := range part.Unmatched {
		byRef[it.Artifact.Ref] = ItemReport{Ref: it.Artifact.Ref, Status: StatusUnmatched}
	}
	for _, it := range part.Ambiguous {
		byRef[it.Artifact.Ref] = ItemReport{
			Ref:        it.Artifact.Ref,
			Status:     StatusAmbiguous,
			Strategy:   it.Result.Strategy,
			Confidence: it.Result.Confidence,
			Candidates: it.Result.Candidates,
		}
	}
	for _, it := range part.Duplicates {
		byRef[it.Artifact.Ref] = matchedItem(it, StatusDuplicate)
	}
	for _, it := range part.Matched {
		item := matchedItem(it, StatusWouldStore)
		if !in.dryRun {
			item = s.commit(ctx, in, it, item)
		}
		byRef[it.Artifact.Ref] = item
	}

	rep := Report{CourseID: in.courseID, ExamID: in.examID, DryRun: in.dryRun}
	for _, inc := range in.batch {
		rep.add(byRef[inc.Artifact.Ref])
	}
	s.record(ctx, in.actor, in.action, in.courseID, rep)
	return rep, nil
}

func matchedItem(it match.Item, status ItemStatus) ItemReport {
	c := it.Result.Candidate
	return ItemReport{
		Ref:          it.Artifact.Ref,
		Status:       status,
		Strategy:     it.Result.Strategy,
		Confidence:   it.Result.Confidence,
		EnrollmentID: c.EnrollmentID,
		Student:      c.FirstName + " " + c.LastName,
	}
}

func (s *Service) commit(ctx context.Context, in runInput, it match.Item, item ItemReport) ItemReport {
	ref := it.Artifact.Ref
	sub, err := s.subs.Create(ctx, submission.CreateInput{
		EnrollmentID: item.EnrollmentID,
		ExamID:       in.examID,
		Kind:         in.kind,
		Source:       in.source,
		MessageID:    in.msgIDs[ref],
		Note:         in.notes[ref],
		Actor:        in.actor,
		Files:        in.files[ref],
	})
	switch {
	case err == nil:
		item.Status = StatusStored
		item.SubmissionID = sub.ID
	case errors.Is(err, submission.ErrDuplicate):
		item.Status = StatusDuplicate
	default:
		item.Status = StatusFailed
		item.Error = err.Error()
	}
	return item
}

// existingFor marks the enrollments that already hold a submission for the
// exam, the roster-sized no-op set for idempotent re-runs.
func (s *Service) existingFor(ctx context.Context, roster []match.Candidate, examID *int64) (map[int64]bool, error) {
	if examID == nil {
		return nil, nil
	}
	out := make(map[int64]bool, len(roster))
	for _, c := range roster {
		has, err := s.subs.HasForExam(ctx, c.EnrollmentID, *examID)
		if err != nil {
			return nil, err
		}
		if has {
			out[c.EnrollmentID] = true
		}
	}
	return out, nil
}
