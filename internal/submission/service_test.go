package submission_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/notenwerk/notenwerk/internal/db"
	"github.com/notenwerk/notenwerk/internal/exam"
	"github.com/notenwerk/notenwerk/internal/registry"
	"github.com/notenwerk/notenwerk/internal/storage"
	"github.com/notenwerk/notenwerk/internal/submission"
)

type fixture struct {
	svc    *submission.Service
	blobs  *storage.FSStore
	reg    *registry.SQLStore
	exams  *exam.SQLStore
	course registry.Course
	enr    registry.Enrollment
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
		t.Fatalf("create university: %v", err)
	}
	course, err := reg.CreateCourse(ctx, registry.Course{
		UniversityID: uni.ID, Name: "Datenbanken", Semester: "2025_WiSe",
	})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	student, err := reg.CreateStudent(ctx, registry.Student{
		FirstName: "Mike", LastName: "Müller", StudentID: "11111111",
		Email: "mike.mueller@example.edu", UniversityID: uni.ID,
	})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	enr, err := reg.Enroll(ctx, student.ID, course.ID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	blobs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	return &fixture{
		svc:    submission.NewService(submission.NewSQLStore(conn, "sqlite"), blobs, reg, nil),
		blobs:  blobs,
		reg:    reg,
		exams:  exam.NewSQLStore(conn, "sqlite"),
		course: course,
		enr:    enr,
	}
}

func readBody(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestCreateStoresFilesUnderConvention(t *testing.T) {
	f := setup(t, "subconvention")
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, submission.CreateInput{
		EnrollmentID: f.enr.ID,
		Source:       "upload",
		Actor:        "sekretariat",
		Files: []submission.File{
			{Name: "Übungsblatt 1 (final).pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4")},
			{Name: "notizen.txt", MIMEType: "text/plain", Data: []byte("siehe Blatt 1")},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.Kind != submission.KindDocument || sub.Status != submission.StatusSubmitted {
		t.Fatalf("defaults not applied: kind=%q status=%q", sub.Kind, sub.Status)
	}
	if len(sub.Documents) != 2 {
		t.Fatalf("got %d documents, want 2", len(sub.Documents))
	}

	wantKey := "tu-beispielstadt/2025_WiSe/datenbanken/MuellerMike/Uebungsblatt_1_final.pdf"
	doc := sub.Documents[0]
	if doc.BlobKey != wantKey {
		t.Errorf("blob key = %q, want %q", doc.BlobKey, wantKey)
	}
	if doc.OriginalName != "Übungsblatt 1 (final).pdf" {
		t.Errorf("original name = %q", doc.OriginalName)
	}
	if doc.SizeBytes != int64(len("%PDF-1.4")) {
		t.Errorf("size = %d", doc.SizeBytes)
	}

	got, rc, err := f.svc.OpenDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("open document: %v", err)
	}
	if got.Filename != "Uebungsblatt_1_final.pdf" {
		t.Errorf("filename = %q", got.Filename)
	}
	if body := readBody(t, rc); body != "%PDF-1.4" {
		t.Errorf("body = %q", body)
	}

	// Get reloads the documents from the store.
	again, err := f.svc.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(again.Documents) != 2 {
		t.Fatalf("reloaded %d documents, want 2", len(again.Documents))
	}
}

func TestCreateDedupsFilenames(t *testing.T) {
	f := setup(t, "subdedup")
	ctx := context.Background()

	first, err := f.svc.Create(ctx, submission.CreateInput{
		EnrollmentID: f.enr.ID,
		Files:        []submission.File{{Name: "abgabe.pdf", Data: []byte("v1")}},
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := f.svc.Create(ctx, submission.CreateInput{
		EnrollmentID: f.enr.ID,
		Files:        []submission.File{{Name: "abgabe.pdf", Data: []byte("v2")}},
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if got := second.Documents[0].Filename; got != "abgabe_1.pdf" {
		t.Fatalf("second filename = %q, want abgabe_1.pdf", got)
	}
	_, rc, err := f.svc.OpenDocument(ctx, first.Documents[0].ID)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if body := readBody(t, rc); body != "v1" {
		t.Errorf("first body overwritten: %q", body)
	}
	_, rc, err = f.svc.OpenDocument(ctx, second.Documents[0].ID)
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	if body := readBody(t, rc); body != "v2" {
		t.Errorf("second body = %q", body)
	}
}

func TestCreateRejectsBadExtension(t *testing.T) {
	f := setup(t, "subbadext")
	ctx := context.Background()

	_, err := f.svc.Create(ctx, submission.CreateInput{
		EnrollmentID: f.enr.ID,
		Files: []submission.File{
			{Name: "abgabe.pdf", Data: []byte("ok")},
			{Name: "malware.exe", Data: []byte("nope")},
		},
	})
	if !errors.Is(err, submission.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}

	// Nothing may be half stored.
	subs, err := f.svc.List(ctx, submission.ListOpts{EnrollmentID: f.enr.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("got %d submissions, want 0", len(subs))
	}
	if f.blobs.Exists("tu-beispielstadt/2025_WiSe/datenbanken/MuellerMike/abgabe.pdf") {
		t.Error("good file stored despite rejected submission")
	}
}

func TestCreateRequiresFilesAndEnrollment(t *testing.T) {
	f := setup(t, "subrequires")
	ctx := context.Background()

	_, err := f.svc.Create(ctx, submission.CreateInput{EnrollmentID: f.enr.ID})
	if !errors.Is(err, submission.ErrInvalid) {
		t.Errorf("no files: err = %v, want ErrInvalid", err)
	}
	_, err = f.svc.Create(ctx, submission.CreateInput{
		EnrollmentID: 9999,
		Files:        []submission.File{{Name: "abgabe.pdf", Data: []byte("x")}},
	})
	if !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("unknown enrollment: err = %v, want registry.ErrNotFound", err)
	}
}

func TestCreateDedupsByMessageID(t *testing.T) {
	f := setup(t, "submsgid")
	ctx := context.Background()

	in := submission.CreateInput{
		EnrollmentID: f.enr.ID,
		Kind:         submission.KindEmailAttachment,
		Source:       "email",
		MessageID:    "<blatt1.mike@mail.example.edu>",
		Files:        []submission.File{{Name: "blatt1.pdf", Data: []byte("x")}},
	}
	if _, err := f.svc.Create(ctx, in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := f.svc.Create(ctx, in)
	if !errors.Is(err, submission.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	ok, err := f.svc.HasMessage(ctx, in.MessageID)
	if err != nil || !ok {
		t.Fatalf("HasMessage = %v, %v", ok, err)
	}
}

func TestStatusLifecycle(t *testing.T) {
	f := setup(t, "substatus")
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, submission.CreateInput{
		EnrollmentID: f.enr.ID,
		Files:        []submission.File{{Name: "abgabe.pdf", Data: []byte("x")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	upd, err := f.svc.SetStatus(ctx, sub.ID, submission.StatusReviewed, "pruefer")
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if upd.Status != submission.StatusReviewed {
		t.Fatalf("status = %q", upd.Status)
	}
	if _, err := f.svc.SetStatus(ctx, sub.ID, "verschollen", ""); !errors.Is(err, submission.ErrInvalid) {
		t.Errorf("bad status: err = %v, want ErrInvalid", err)
	}
	if _, err := f.svc.SetStatus(ctx, "no-such-id", submission.StatusReturned, ""); !errors.Is(err, submission.ErrNotFound) {
		t.Errorf("missing id: err = %v, want ErrNotFound", err)
	}
}

func TestHasForExamAndListFilters(t *testing.T) {
	f := setup(t, "subexam")
	ctx := context.Background()

	ex, err := f.exams.CreateExam(ctx, exam.Exam{
		CourseID: f.course.ID, Name: "Klausur", MaxPoints: 100, Weight: 1.0,
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}

	if _, err := f.svc.Create(ctx, submission.CreateInput{
		EnrollmentID: f.enr.ID,
		ExamID:       &ex.ID,
		Kind:         submission.KindExamAnswer,
		Files:        []submission.File{{Name: "klausur.pdf", Data: []byte("x")}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Create(ctx, submission.CreateInput{
		EnrollmentID: f.enr.ID,
		Files:        []submission.File{{Name: "sonstiges.pdf", Data: []byte("y")}},
	}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	ok, err := f.svc.HasForExam(ctx, f.enr.ID, ex.ID)
	if err != nil || !ok {
		t.Fatalf("HasForExam = %v, %v", ok, err)
	}
	ok, err = f.svc.HasForExam(ctx, f.enr.ID, ex.ID+100)
	if err != nil || ok {
		t.Fatalf("HasForExam for unknown exam = %v, %v", ok, err)
	}

	subs, err := f.svc.List(ctx, submission.ListOpts{EnrollmentID: f.enr.ID, ExamID: ex.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].Kind != submission.KindExamAnswer {
		t.Fatalf("filtered list = %+v", subs)
	}
}

func TestAttachAddsDocuments(t *testing.T) {
	f := setup(t, "subattach")
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, submission.CreateInput{
		EnrollmentID: f.enr.ID,
		Files:        []submission.File{{Name: "teil1.pdf", Data: []byte("1")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	upd, err := f.svc.Attach(ctx, sub.ID, []submission.File{{Name: "teil2.pdf", Data: []byte("2")}})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if len(upd.Documents) != 2 {
		t.Fatalf("got %d documents, want 2", len(upd.Documents))
	}
	keys := []string{upd.Documents[0].BlobKey, upd.Documents[1].BlobKey}
	for _, k := range keys {
		if !strings.HasPrefix(k, "tu-beispielstadt/2025_WiSe/datenbanken/MuellerMike/") {
			t.Errorf("key %q outside student folder", k)
		}
	}
}
