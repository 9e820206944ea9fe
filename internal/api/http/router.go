package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notenwerk/notenwerk/internal/audit"
	"github.com/notenwerk/notenwerk/internal/exam"
	"github.com/notenwerk/notenwerk/internal/ingest"
	"github.com/notenwerk/notenwerk/internal/registry"
	"github.com/notenwerk/notenwerk/internal/submission"
)

// Deps bundles everything the API surface needs.
type Deps struct {
	Registry    registry.Store
	Exams       exam.Store
	Grades      *exam.Service
	Submissions *submission.Service
	Ingest      *ingest.Service
	Audit       *audit.Recorder
}

// actorContext carries the caller's X-Actor header into the request context
// for the layers that record audit events themselves.
func actorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithActor(r.Context(), actorOf(r))))
	})
}

// Mount registers the whole API on r.
func Mount(r chi.Router, d Deps) {
	r.Use(actorContext)

	// registry
	r.Post("/universities", CreateUniversityHandler(d.Registry))
	r.Get("/universities", ListUniversitiesHandler(d.Registry))
	r.Get("/universities/{id}", GetUniversityHandler(d.Registry))

	r.Post("/students", CreateStudentHandler(d.Registry))
	r.Get("/students", ListStudentsHandler(d.Registry))
	r.Post("/students/import", ImportStudentsHandler(d.Registry))
	r.Get("/students/export", ExportStudentsHandler(d.Registry))
	r.Get("/students/{id}", GetStudentHandler(d.Registry))
	r.Put("/students/{id}", UpdateStudentHandler(d.Registry))
	r.Delete("/students/{id}", DeleteStudentHandler(d.Registry))

	r.Post("/courses", CreateCourseHandler(d.Registry))
	r.Get("/courses", ListCoursesHandler(d.Registry))
	r.Get("/courses/{id}", GetCourseHandler(d.Registry))
	r.Get("/courses/{id}/exams", ListExamsHandler(d.Exams))
	r.Post("/courses/{id}/import/emails", ImportEmailsHandler(d.Ingest))
	r.Post("/courses/{id}/reconcile", ReconcileUploadsHandler(d.Ingest))

	r.Post("/enrollments", EnrollHandler(d.Registry))
	r.Get("/enrollments", ListEnrollmentsHandler(d.Registry))
	r.Get("/enrollments/{id}", GetEnrollmentHandler(d.Registry))
	r.Patch("/enrollments/{id}/status", UpdateEnrollmentStatusHandler(d.Registry))
	r.Get("/enrollments/{id}/average", CourseAverageHandler(d.Grades))

	// exams and grading
	r.Post("/exams", CreateExamHandler(d.Grades))
	r.Get("/exams/{id}", GetExamHandler(d.Exams))
	r.Put("/exams/{id}", UpdateExamHandler(d.Grades))
	r.Post("/exams/{id}/components", AddComponentHandler(d.Grades))
	r.Get("/exams/{id}/components", ListComponentsHandler(d.Exams))
	r.Get("/exams/{id}/statistics", ExamStatisticsHandler(d.Grades))

	r.Post("/grades", AddGradeHandler(d.Grades))
	r.Get("/grades", ListGradesHandler(d.Exams))
	r.Get("/grades/{id}", GetGradeHandler(d.Exams))
	r.Patch("/grades/{id}", UpdateGradeHandler(d.Grades))
	r.Post("/grades/{id}/finalize", FinalizeGradeHandler(d.Grades))
	r.Delete("/grades/{id}", DeleteGradeHandler(d.Grades))

	r.Post("/scales", CreateScaleHandler(d.Grades))
	r.Get("/scales", ListScalesHandler(d.Exams))
	r.Get("/scales/{id}", GetScaleHandler(d.Exams))

	// submissions
	r.Post("/submissions", CreateSubmissionHandler(d.Submissions))
	r.Get("/submissions", ListSubmissionsHandler(d.Submissions))
	r.Get("/submissions/{id}", GetSubmissionHandler(d.Submissions))
	r.Post("/submissions/{id}/documents", AttachDocumentsHandler(d.Submissions))
	r.Patch("/submissions/{id}/status", UpdateSubmissionStatusHandler(d.Submissions))
	r.Get("/documents/{id}", DownloadDocumentHandler(d.Submissions))

	// audit
	r.Get("/audit", SearchAuditHandler(d.Audit))
}
