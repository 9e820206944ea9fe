package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/notenwerk/notenwerk/internal/registry"
)

// Handlers only; routes are assembled in router.go.

func CreateUniversityHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name" validate:"required"`
			Slug string `json:"slug"`
			City string `json:"city"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u, err := store.CreateUniversity(r.Context(), registry.University{
			Name: req.Name, Slug: req.Slug, City: req.City,
		})
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, u)
	}
}

func ListUniversitiesHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		us, err := store.ListUniversities(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, us)
	}
}

func GetUniversityHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u, err := store.GetUniversity(r.Context(), id)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, u)
	}
}

type studentReq struct {
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	StudentID    string `json:"student_id" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Program      string `json:"program"`
	UniversityID int64  `json:"university_id"`
}

func (req studentReq) model() registry.Student {
	return registry.Student{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		StudentID:    req.StudentID,
		Email:        req.Email,
		Program:      req.Program,
		UniversityID: req.UniversityID,
	}
}

func CreateStudentHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req studentReq
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		st, err := store.CreateStudent(r.Context(), req.model())
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, st)
	}
}

func UpdateStudentHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req studentReq
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		st := req.model()
		st.ID = id
		st, err = store.UpdateStudent(r.Context(), st)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, st)
	}
}

func GetStudentHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		st, err := store.GetStudent(r.Context(), id)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, st)
	}
}

func ListStudentsHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := registry.StudentListOpts{
			Q:              r.URL.Query().Get("q"),
			UniversityID:   queryInt(r, "university_id"),
			IncludeDeleted: queryBool(r, "include_deleted"),
			Limit:          int(queryInt(r, "limit")),
			Offset:         int(queryInt(r, "offset")),
		}
		sts, err := store.ListStudents(r.Context(), opts)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, sts)
	}
}

func DeleteStudentHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.SoftDeleteStudent(r.Context(), id); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /students/import (multipart: file=roster.csv, university_id=N)
func ImportStudentsHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()
		universityID, _ := strconv.ParseInt(r.FormValue("university_id"), 10, 64)
		report, err := registry.ImportStudentsCSV(r.Context(), store, universityID, f)
		if err != nil {
			http.Error(w, "bad csv: "+err.Error(), http.StatusBadRequest)
			return
		}
		respond(w, report)
	}
}

// GET /students/export streams the filtered roster as CSV.
func ExportStudentsHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := registry.StudentListOpts{
			Q:              r.URL.Query().Get("q"),
			UniversityID:   queryInt(r, "university_id"),
			IncludeDeleted: queryBool(r, "include_deleted"),
			Limit:          int(queryInt(r, "limit")),
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="students.csv"`)
		if err := registry.ExportStudentsCSV(r.Context(), store, opts, w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func CreateCourseHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UniversityID int64  `json:"university_id" validate:"required"`
			Name         string `json:"name" validate:"required"`
			Slug         string `json:"slug"`
			Semester     string `json:"semester" validate:"required"`
			ScaleKey     string `json:"scale_key"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c, err := store.CreateCourse(r.Context(), registry.Course{
			UniversityID: req.UniversityID,
			Name:         req.Name,
			Slug:         req.Slug,
			Semester:     req.Semester,
			ScaleKey:     strings.ToLower(req.ScaleKey),
		})
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, c)
	}
}

func GetCourseHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c, err := store.GetCourse(r.Context(), id)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, c)
	}
}

func ListCoursesHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cs, err := store.ListCourses(r.Context(), queryInt(r, "university_id"))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, cs)
	}
}

func EnrollHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StudentID int64 `json:"student_id" validate:"required"`
			CourseID  int64 `json:"course_id" validate:"required"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, err := store.Enroll(r.Context(), req.StudentID, req.CourseID)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, e)
	}
}

// PATCH /enrollments/{id}/status
func UpdateEnrollmentStatusHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req struct {
			Status string `json:"status" validate:"required"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, err := store.UpdateEnrollmentStatus(r.Context(), id, req.Status)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, e)
	}
}

func GetEnrollmentHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, err := store.GetEnrollment(r.Context(), id)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, e)
	}
}

func ListEnrollmentsHandler(store registry.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := queryInt(r, "course_id")
		if courseID == 0 {
			http.Error(w, "course_id required", http.StatusBadRequest)
			return
		}
		es, err := store.ListEnrollments(r.Context(), courseID, r.URL.Query().Get("status"))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, es)
	}
}
