package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/notenwerk/notenwerk/internal/api/http"
	"github.com/notenwerk/notenwerk/internal/audit"
	"github.com/notenwerk/notenwerk/internal/db"
	"github.com/notenwerk/notenwerk/internal/exam"
	"github.com/notenwerk/notenwerk/internal/ingest"
	"github.com/notenwerk/notenwerk/internal/registry"
	"github.com/notenwerk/notenwerk/internal/storage"
	"github.com/notenwerk/notenwerk/internal/submission"
)

type fixture struct {
	router http.Handler
}

func setup(t *testing.T, name string) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	trail := audit.NewRecorder(conn)
	reg := registry.NewService(registry.NewSQLStore(conn, "sqlite"), trail)
	exams := exam.NewSQLStore(conn, "sqlite")
	subs := submission.NewSQLStore(conn, "sqlite")
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	subSvc := submission.NewService(subs, blobs, reg, trail)
	gradeSvc := exam.NewService(exams, reg, trail)
	ingSvc := ingest.NewService(reg, subSvc, nil, trail)

	r := chi.NewRouter()
	api.Mount(r, api.Deps{
		Registry:    reg,
		Exams:       exams,
		Grades:      gradeSvc,
		Submissions: subSvc,
		Ingest:      ingSvc,
		Audit:       trail,
	})
	return &fixture{router: r}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, req)
}

type filePart struct {
	field string
	name  string
	data  []byte
}

func (f *fixture) doMultipart(t *testing.T, path string, fields map[string]string, files []filePart) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, fp := range files {
		w, err := mw.CreateFormFile(fp.field, fp.name)
		require.NoError(t, err)
		_, err = w.Write(fp.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.do(t, req)
}

func parse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst), rec.Body.String())
}

type seeded struct {
	uni    registry.University
	course registry.Course
	mike   registry.Student
	enr    registry.Enrollment
}

// seed drives the create endpoints so every fixture also exercises them.
func (f *fixture) seed(t *testing.T) seeded {
	t.Helper()
	var s seeded

	rec := f.doJSON(t, "POST", "/universities", map[string]any{
		"name": "TU Beispielstadt", "city": "Beispielstadt",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &s.uni)

	rec = f.doJSON(t, "POST", "/courses", map[string]any{
		"university_id": s.uni.ID, "name": "Datenbanken", "semester": "2025_WiSe",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &s.course)

	rec = f.doJSON(t, "POST", "/students", map[string]any{
		"first_name": "Mike", "last_name": "Müller", "student_id": "11111111",
		"email": "mike.mueller@uni.example", "program": "Informatik",
		"university_id": s.uni.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &s.mike)

	rec = f.doJSON(t, "POST", "/enrollments", map[string]any{
		"student_id": s.mike.ID, "course_id": s.course.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &s.enr)

	return s
}

func TestStudentEndpoints(t *testing.T) {
	f := setup(t, "api_students")
	s := f.seed(t)

	// duplicate registry number is a conflict
	rec := f.doJSON(t, "POST", "/students", map[string]any{
		"first_name": "Misha", "last_name": "Mueller", "student_id": "11111111",
		"email": "other@uni.example", "university_id": s.uni.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = f.doJSON(t, "GET", fmt.Sprintf("/students/%d", s.mike.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got registry.Student
	parse(t, rec, &got)
	assert.Equal(t, "Müller", got.LastName)
	assert.Equal(t, "mike.mueller@uni.example", got.Email)

	rec = f.doJSON(t, "PUT", fmt.Sprintf("/students/%d", s.mike.ID), map[string]any{
		"first_name": "Mike", "last_name": "Müller", "student_id": "11111111",
		"email": "mike.mueller@uni.example", "program": "Wirtschaftsinformatik",
		"university_id": s.uni.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &got)
	assert.Equal(t, "Wirtschaftsinformatik", got.Program)

	rec = f.doJSON(t, "GET", "/students?q=mike", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []registry.Student
	parse(t, rec, &list)
	require.Len(t, list, 1)

	rec = f.doJSON(t, "DELETE", fmt.Sprintf("/students/%d", s.mike.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.doJSON(t, "GET", fmt.Sprintf("/students/%d", s.mike.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.doJSON(t, "GET", "/students?include_deleted=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	parse(t, rec, &list)
	assert.Len(t, list, 1)
}

func TestStudentImportExport(t *testing.T) {
	f := setup(t, "api_csv")
	s := f.seed(t)

	csv := "first_name,last_name,student_id,email,program\n" +
		"Anna,Schmidt,22222222,anna.schmidt@uni.example,Mathematik\n" +
		"Deniz,Kaya,33333333,deniz.kaya@uni.example,Informatik\n" +
		"Anna,Doppelt,22222222,doppelt@uni.example,Physik\n"
	rec := f.doMultipart(t, "/students/import",
		map[string]string{"university_id": fmt.Sprint(s.uni.ID)},
		[]filePart{{field: "file", name: "roster.csv", data: []byte(csv)}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report registry.ImportReport
	parse(t, rec, &report)
	assert.Equal(t, 2, report.Created)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 4, report.Errors[0].Line)

	rec = f.doJSON(t, "GET", fmt.Sprintf("/students/export?university_id=%d", s.uni.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "first_name,last_name,student_id,email,program")
	assert.Contains(t, body, "22222222")
	assert.Contains(t, body, "11111111") // seeded student included
}

func TestExamAndGradeFlow(t *testing.T) {
	f := setup(t, "api_grades")
	s := f.seed(t)

	rec := f.doJSON(t, "POST", "/exams", map[string]any{
		"course_id": s.course.ID, "name": "Klausur", "max_points": 100.0, "weight": 0.6,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var klausur exam.Exam
	parse(t, rec, &klausur)

	// second exam would push the course weight past 1.0
	rec = f.doJSON(t, "POST", "/exams", map[string]any{
		"course_id": s.course.ID, "name": "Projekt", "max_points": 50.0, "weight": 0.5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = f.doJSON(t, "PUT", fmt.Sprintf("/exams/%d", klausur.ID), map[string]any{
		"name": "Klausur", "max_points": 100.0, "weight": 0.7,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &klausur)
	assert.Equal(t, 0.7, klausur.Weight)

	rec = f.doJSON(t, "POST", "/grades", map[string]any{
		"enrollment_id": s.enr.ID, "exam_id": klausur.ID, "points": 83.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var g exam.Grade
	parse(t, rec, &g)
	assert.Equal(t, 2.0, g.Value)
	assert.Equal(t, "gut", g.Label)
	assert.Equal(t, "provisional", g.Status)

	rec = f.doJSON(t, "POST", "/grades", map[string]any{
		"enrollment_id": s.enr.ID, "exam_id": klausur.ID, "points": 90.0,
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = f.doJSON(t, "PATCH", fmt.Sprintf("/grades/%d", g.ID), map[string]any{
		"points": 90.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rr exam.RegradeResult
	parse(t, rec, &rr)
	assert.Equal(t, 2.0, rr.Change.Old.Value)
	assert.Equal(t, 1.3, rr.Change.New.Value)

	// points beyond the maximum are rejected
	rec = f.doJSON(t, "PATCH", fmt.Sprintf("/grades/%d", g.ID), map[string]any{
		"points": 140.0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	// nothing is finalized yet, so the average has no grades to draw on;
	// a preview over provisional grades must opt in
	rec = f.doJSON(t, "GET", fmt.Sprintf("/enrollments/%d/average?partial=1", s.enr.ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	rec = f.doJSON(t, "GET", fmt.Sprintf("/enrollments/%d/average?partial=1&provisional=1", s.enr.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var avg exam.AverageReport
	parse(t, rec, &avg)
	assert.InDelta(t, 90.0, avg.Average, 1e-9)

	rec = f.doJSON(t, "POST", fmt.Sprintf("/grades/%d/finalize", g.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &g)
	assert.Equal(t, "final", g.Status)

	// a single 0.7 exam cannot give a full course average
	rec = f.doJSON(t, "GET", fmt.Sprintf("/enrollments/%d/average", s.enr.ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = f.doJSON(t, "GET", fmt.Sprintf("/enrollments/%d/average?partial=1", s.enr.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &avg)
	assert.InDelta(t, 90.0, avg.Average, 1e-9)
	assert.Equal(t, 1.3, avg.Value)
	assert.True(t, avg.Passing)

	rec = f.doJSON(t, "PATCH", fmt.Sprintf("/grades/%d", g.ID), map[string]any{"points": 50.0})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	rec = f.doJSON(t, "DELETE", fmt.Sprintf("/grades/%d", g.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = f.doJSON(t, "GET", fmt.Sprintf("/exams/%d/statistics", klausur.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats exam.Stats
	parse(t, rec, &stats)
	assert.Equal(t, 1, stats.Summary.Count)
	assert.InDelta(t, 90.0, stats.Summary.Mean, 1e-9)
	assert.Equal(t, 1, stats.Summary.Passed)
	assert.Equal(t, map[string]int{"1.3": 1}, stats.Distribution)
}

func TestSubmissionEndpoints(t *testing.T) {
	f := setup(t, "api_subs")
	s := f.seed(t)

	pdf := []byte("%PDF-1.4 inhalt")
	rec := f.doMultipart(t, "/submissions",
		map[string]string{"enrollment_id": fmt.Sprint(s.enr.ID), "note": "per Post"},
		[]filePart{{field: "files", name: "Übungsblatt 1 (final).pdf", data: pdf}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sub submission.Submission
	parse(t, rec, &sub)
	require.Len(t, sub.Documents, 1)
	doc := sub.Documents[0]
	assert.Equal(t, "Uebungsblatt_1_final.pdf", doc.Filename)
	assert.Equal(t, "tu-beispielstadt/2025_WiSe/datenbanken/MuellerMike/Uebungsblatt_1_final.pdf", doc.BlobKey)

	rec = f.doJSON(t, "GET", "/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Uebungsblatt_1_final.pdf")
	got, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, pdf, got)

	rec = f.doJSON(t, "PATCH", "/submissions/"+sub.ID+"/status", map[string]any{"status": "reviewed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &sub)
	assert.Equal(t, "reviewed", sub.Status)

	rec = f.doJSON(t, "PATCH", "/submissions/"+sub.ID+"/status", map[string]any{"status": "verschollen"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = f.doJSON(t, "GET", fmt.Sprintf("/submissions?enrollment_id=%d", s.enr.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []submission.Submission
	parse(t, rec, &list)
	assert.Len(t, list, 1)

	// second file lands in the same folder
	rec = f.doMultipart(t, "/submissions/"+sub.ID+"/documents",
		nil,
		[]filePart{{field: "files", name: "korrektur.pdf", data: pdf}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &sub)
	assert.Len(t, sub.Documents, 2)

	// disallowed extension rejects the whole submission
	rec = f.doMultipart(t, "/submissions",
		map[string]string{"enrollment_id": fmt.Sprint(s.enr.ID)},
		[]filePart{{field: "files", name: "malware.exe", data: pdf}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = f.doMultipart(t, "/submissions",
		map[string]string{},
		[]filePart{{field: "files", name: "abgabe.pdf", data: pdf}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestReconcileUploadsEndpoint(t *testing.T) {
	f := setup(t, "api_reconcile")
	s := f.seed(t)

	rec := f.doJSON(t, "POST", "/exams", map[string]any{
		"course_id": s.course.ID, "name": "Klausur", "max_points": 100.0, "weight": 1.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var klausur exam.Exam
	parse(t, rec, &klausur)

	pdf := []byte("%PDF-1.4 scan")
	files := []filePart{
		{field: "files", name: "Abgabe_11111111.pdf", data: pdf},
		{field: "files", name: "unbekannt.pdf", data: pdf},
	}
	fields := map[string]string{"exam_id": fmt.Sprint(klausur.ID), "dry_run": "1"}

	rec = f.doMultipart(t, fmt.Sprintf("/courses/%d/reconcile", s.course.ID), fields, files)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report ingest.Report
	parse(t, rec, &report)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Stored)
	assert.Equal(t, 1, report.Unmatched)
	require.Len(t, report.Items, 2)
	assert.Equal(t, ingest.StatusWouldStore, report.Items[0].Status)
	assert.Empty(t, report.Items[0].SubmissionID)

	delete(fields, "dry_run")
	rec = f.doMultipart(t, fmt.Sprintf("/courses/%d/reconcile", s.course.ID), fields, files)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &report)
	assert.Equal(t, 1, report.Stored)
	assert.Equal(t, ingest.StatusStored, report.Items[0].Status)
	assert.NotEmpty(t, report.Items[0].SubmissionID)

	// re-running the same batch stores nothing new
	rec = f.doMultipart(t, fmt.Sprintf("/courses/%d/reconcile", s.course.ID), fields, files)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &report)
	assert.Equal(t, 0, report.Stored)
	assert.Equal(t, 1, report.Duplicates)

	rec = f.doMultipart(t, "/courses/9999/reconcile", fields, files)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestImportEmailsEndpoint(t *testing.T) {
	f := setup(t, "api_emails")
	s := f.seed(t)

	eml := "From: Mike Mueller <mike.mueller@uni.example>\r\n" +
		"Subject: Abgabe Hausarbeit\r\n" +
		"Message-Id: <abg-1@uni.example>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"B\"\r\n" +
		"\r\n" +
		"--B\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Anbei die Hausarbeit.\r\n" +
		"--B\r\n" +
		"Content-Type: application/pdf; name=\"hausarbeit.pdf\"\r\n" +
		"Content-Disposition: attachment; filename=\"hausarbeit.pdf\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"JVBERi0xLjQK\r\n" +
		"--B--\r\n"

	rec := f.doMultipart(t, fmt.Sprintf("/courses/%d/import/emails", s.course.ID),
		nil,
		[]filePart{{field: "file", name: "abgabe.eml", data: []byte(eml)}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report ingest.Report
	parse(t, rec, &report)
	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, ingest.StatusStored, item.Status)
	assert.Equal(t, "abg-1@uni.example", item.Ref)
	assert.Equal(t, s.enr.ID, item.EnrollmentID)

	// same mailbox again: the message id blocks a second copy
	rec = f.doMultipart(t, fmt.Sprintf("/courses/%d/import/emails", s.course.ID),
		nil,
		[]filePart{{field: "file", name: "abgabe.eml", data: []byte(eml)}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parse(t, rec, &report)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 0, report.Stored)
}

func TestAuditEndpoint(t *testing.T) {
	f := setup(t, "api_audit")
	s := f.seed(t)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{
		"course_id": s.course.ID, "name": "Klausur", "max_points": 100.0, "weight": 1.0,
	}))
	req := httptest.NewRequest("POST", "/exams", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "prof.lang")
	rec := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.doJSON(t, "GET", "/audit?entity=exam&actor=prof.lang", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var events []audit.Event
	parse(t, rec, &events)
	require.Len(t, events, 1)
	assert.Equal(t, "create", events[0].Action)
	assert.Equal(t, "prof.lang", events[0].Actor)

	// seeding through the API leaves a trail too, attributed to the default actor
	rec = f.doJSON(t, "GET", "/audit?entity=enrollment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	parse(t, rec, &events)
	require.Len(t, events, 1)
	assert.Equal(t, "create", events[0].Action)
	assert.Equal(t, fmt.Sprint(s.enr.ID), events[0].EntityID)
	assert.Equal(t, "api", events[0].Actor)

	rec = f.doJSON(t, "GET", "/audit?actor=niemand", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	parse(t, rec, &events)
	assert.Empty(t, events)
}

func TestBadRequests(t *testing.T) {
	f := setup(t, "api_errors")
	s := f.seed(t)

	req := httptest.NewRequest("POST", "/students", bytes.NewBufferString("{nicht json"))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.doJSON(t, "GET", "/students/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.doJSON(t, "GET", "/universities/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// validator catches the missing course_id
	rec = f.doJSON(t, "POST", "/enrollments", map[string]any{"student_id": s.mike.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.doJSON(t, "GET", "/enrollments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
