package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/notenwerk/notenwerk/internal/audit"
	"github.com/notenwerk/notenwerk/internal/db"
	"github.com/notenwerk/notenwerk/internal/exam"
	"github.com/notenwerk/notenwerk/internal/ingest"
	"github.com/notenwerk/notenwerk/internal/mailparse"
	"github.com/notenwerk/notenwerk/internal/registry"
	"github.com/notenwerk/notenwerk/internal/storage"
	"github.com/notenwerk/notenwerk/internal/submission"
)

type fixture struct {
	svc     *ingest.Service
	subs    *submission.Service
	reg     *registry.SQLStore
	trail   *audit.Recorder
	course  registry.Course
	exam    exam.Exam
	enrMike registry.Enrollment
	enrAnna registry.Enrollment
}

func setup(t *testing.T, name string) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	reg := registry.NewSQLStore(conn, "sqlite")
	uni, err := reg.CreateUniversity(ctx, registry.University{Name: "TU Beispielstadt"})
	if err != nil {
		t.Fatal(err)
	}
	course, err := reg.CreateCourse(ctx, registry.Course{
		UniversityID: uni.ID, Name: "Datenbanken", Semester: "2025_WiSe",
	})
	if err != nil {
		t.Fatal(err)
	}
	mike, err := reg.CreateStudent(ctx, registry.Student{
		FirstName: "Mike", LastName: "Müller", StudentID: "11111111",
		Email: "mike.mueller@example.edu", UniversityID: uni.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	anna, err := reg.CreateStudent(ctx, registry.Student{
		FirstName: "Anna", LastName: "Schmidt", StudentID: "22222222",
		Email: "anna.schmidt@example.edu", UniversityID: uni.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	enrMike, err := reg.Enroll(ctx, mike.ID, course.ID)
	if err != nil {
		t.Fatal(err)
	}
	enrAnna, err := reg.Enroll(ctx, anna.ID, course.ID)
	if err != nil {
		t.Fatal(err)
	}

	exams := exam.NewSQLStore(conn, "sqlite")
	ex, err := exams.CreateExam(ctx, exam.Exam{
		CourseID: course.ID, Name: "Klausur", MaxPoints: 100, Weight: 1.0,
	})
	if err != nil {
		t.Fatal(err)
	}

	blobs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	trail := audit.NewRecorder(conn)
	subs := submission.NewService(submission.NewSQLStore(conn, "sqlite"), blobs, reg, trail)
	return &fixture{
		svc:     ingest.NewService(reg, subs, nil, trail),
		subs:    subs,
		reg:     reg,
		trail:   trail,
		course:  course,
		exam:    ex,
		enrMike: enrMike,
		enrAnna: enrAnna,
	}
}

func pdf(name string) mailparse.Attachment {
	return mailparse.Attachment{Filename: name, MIMEType: "application/pdf", Data: []byte("%PDF-1.4")}
}

func TestImportEmailsStoresAttachments(t *testing.T) {
	f := setup(t, "ingestmail")
	ctx := context.Background()

	msgs := []mailparse.Parsed{
		{Message: mailparse.Message{
			MessageID:   "<blatt1.mike@mail.example.edu>",
			Subject:     "Abgabe Blatt 1",
			SenderName:  "Mike Müller",
			SenderAddr:  "mike.mueller@example.edu",
			Attachments: []mailparse.Attachment{pdf("blatt1.pdf")},
		}},
		{Message: mailparse.Message{
			MessageID:   "<frage@mail.example.org>",
			Subject:     "Frage zur Vorlesung",
			SenderAddr:  "unbekannt@example.org",
			Attachments: []mailparse.Attachment{pdf("frage.pdf")},
		}},
		{Err: &mailparse.ParseError{Source: "message 3", Err: errors.New("multipart boundary missing")}},
		{Message: mailparse.Message{
			MessageID:  "<leer@mail.example.edu>",
			SenderAddr: "anna.schmidt@example.edu",
		}},
	}

	rep, err := f.svc.ImportEmails(ctx, ingest.EmailImport{
		CourseID: f.course.ID, Messages: msgs, Actor: "sekretariat",
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if rep.Stored != 1 || rep.Unmatched != 1 || rep.Failed != 2 {
		t.Fatalf("counts stored=%d unmatched=%d failed=%d", rep.Stored, rep.Unmatched, rep.Failed)
	}
	if rep.Total() != 4 || len(rep.Items) != 4 {
		t.Fatalf("total = %d", rep.Total())
	}

	first := rep.Items[0]
	if first.Status != ingest.StatusStored || first.Student != "Mike Müller" {
		t.Fatalf("first item = %+v", first)
	}
	if first.EnrollmentID != f.enrMike.ID || first.SubmissionID == "" {
		t.Fatalf("first item not committed: %+v", first)
	}
	if rep.Items[1].Status != ingest.StatusUnmatched {
		t.Errorf("second item = %+v", rep.Items[1])
	}
	if rep.Items[2].Status != ingest.StatusFailed || rep.Items[2].Error == "" {
		t.Errorf("third item = %+v", rep.Items[2])
	}
	if rep.Items[3].Status != ingest.StatusFailed || !strings.Contains(rep.Items[3].Error, "no attachments") {
		t.Errorf("fourth item = %+v", rep.Items[3])
	}

	sub, err := f.subs.Get(ctx, first.SubmissionID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if sub.Kind != submission.KindEmailAttachment || sub.MessageID != "<blatt1.mike@mail.example.edu>" {
		t.Fatalf("submission = %+v", sub)
	}
	if sub.Note != "Abgabe Blatt 1" {
		t.Errorf("note = %q", sub.Note)
	}
	if len(sub.Documents) != 1 ||
		!strings.HasPrefix(sub.Documents[0].BlobKey, "tu-beispielstadt/2025_WiSe/datenbanken/MuellerMike/") {
		t.Fatalf("documents = %+v", sub.Documents)
	}
}

func TestImportEmailsIsIdempotent(t *testing.T) {
	f := setup(t, "ingestmaildup")
	ctx := context.Background()

	msgs := []mailparse.Parsed{{Message: mailparse.Message{
		MessageID:   "<blatt2.mike@mail.example.edu>",
		Subject:     "Blatt 2",
		SenderAddr:  "mike.mueller@example.edu",
		Attachments: []mailparse.Attachment{pdf("blatt2.pdf")},
	}}}

	in := ingest.EmailImport{CourseID: f.course.ID, Messages: msgs, Actor: "sekretariat"}
	rep1, err := f.svc.ImportEmails(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if rep1.Stored != 1 {
		t.Fatalf("first run stored = %d", rep1.Stored)
	}
	rep2, err := f.svc.ImportEmails(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if rep2.Stored != 0 || rep2.Duplicates != 1 {
		t.Fatalf("second run stored=%d duplicates=%d", rep2.Stored, rep2.Duplicates)
	}
	if rep2.Items[0].Status != ingest.StatusDuplicate || rep2.Items[0].Error != "" {
		t.Fatalf("duplicate must be a no-op, got %+v", rep2.Items[0])
	}

	subs, err := f.subs.List(ctx, submission.ListOpts{EnrollmentID: f.enrMike.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d submissions, want 1", len(subs))
	}
}

func TestReconcileUploadsPartitionsAndCommits(t *testing.T) {
	f := setup(t, "ingestuploads")
	ctx := context.Background()

	batch := ingest.UploadBatch{
		CourseID: f.course.ID,
		ExamID:   &f.exam.ID,
		Actor:    "sekretariat",
		Files: []ingest.Upload{
			{Name: "Abgabe_11111111.pdf", Data: []byte("a")},
			{Name: "Schmidt_Anna_klausur.pdf", Data: []byte("b")},
			{Name: "unbekannt.pdf", Data: []byte("c")},
		},
	}

	rep, err := f.svc.ReconcileUploads(ctx, batch)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rep.Stored != 2 || rep.Unmatched != 1 {
		t.Fatalf("counts stored=%d unmatched=%d ambiguous=%d failed=%d",
			rep.Stored, rep.Unmatched, rep.Ambiguous, rep.Failed)
	}
	if rep.Items[0].Student != "Mike Müller" || rep.Items[1].Student != "Anna Schmidt" {
		t.Fatalf("matches = %+v, %+v", rep.Items[0], rep.Items[1])
	}

	sub, err := f.subs.Get(ctx, rep.Items[0].SubmissionID)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Kind != submission.KindExamAnswer || sub.ExamID == nil || *sub.ExamID != f.exam.ID {
		t.Fatalf("submission = %+v", sub)
	}

	// The same directory again: everything already handed in is a no-op.
	rep2, err := f.svc.ReconcileUploads(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if rep2.Stored != 0 || rep2.Duplicates != 2 || rep2.Unmatched != 1 {
		t.Fatalf("second run stored=%d duplicates=%d unmatched=%d",
			rep2.Stored, rep2.Duplicates, rep2.Unmatched)
	}

	events, err := f.trail.Search(ctx, audit.SearchOpts{Action: audit.ActionReconcile, Entity: "course"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d reconcile events, want 2", len(events))
	}
}

func TestReconcileUploadsDryRun(t *testing.T) {
	f := setup(t, "ingestdryrun")
	ctx := context.Background()

	rep, err := f.svc.ReconcileUploads(ctx, ingest.UploadBatch{
		CourseID: f.course.ID,
		ExamID:   &f.exam.ID,
		DryRun:   true,
		Files:    []ingest.Upload{{Name: "Abgabe_11111111.pdf", Data: []byte("a")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Stored != 1 || rep.Items[0].Status != ingest.StatusWouldStore {
		t.Fatalf("dry run report = %+v", rep.Items[0])
	}
	if rep.Items[0].SubmissionID != "" {
		t.Error("dry run produced a submission id")
	}

	subs, err := f.subs.List(ctx, submission.ListOpts{EnrollmentID: f.enrMike.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 0 {
		t.Fatalf("dry run stored %d submissions", len(subs))
	}
	events, err := f.trail.Search(ctx, audit.SearchOpts{Action: audit.ActionReconcile})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatal("dry run recorded an audit event")
	}
}

func TestReconcileUploadsReportsAmbiguity(t *testing.T) {
	f := setup(t, "ingestambig")
	ctx := context.Background()

	// A second Anna Schmidt: same name, own registry number.
	twin, err := f.reg.CreateStudent(ctx, registry.Student{
		FirstName: "Anna", LastName: "Schmidt", StudentID: "33333333",
		Email: "anna.schmidt2@example.edu", UniversityID: f.course.UniversityID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.reg.Enroll(ctx, twin.ID, f.course.ID); err != nil {
		t.Fatal(err)
	}

	rep, err := f.svc.ReconcileUploads(ctx, ingest.UploadBatch{
		CourseID: f.course.ID,
		Files:    []ingest.Upload{{Name: "Schmidt_Anna_klausur.pdf", Data: []byte("x")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Ambiguous != 1 || rep.Stored != 0 {
		t.Fatalf("counts = %+v", rep)
	}
	item := rep.Items[0]
	if item.Status != ingest.StatusAmbiguous || len(item.Candidates) != 2 {
		t.Fatalf("item = %+v", item)
	}
}

func TestImportEmailsUnknownCourse(t *testing.T) {
	f := setup(t, "ingestnocourse")
	_, err := f.svc.ImportEmails(context.Background(), ingest.EmailImport{CourseID: 9999})
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("err = %v, want registry.ErrNotFound", err)
	}
}
