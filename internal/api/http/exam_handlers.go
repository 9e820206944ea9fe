package http

import (
	"net/http"

	"github.com/notenwerk/notenwerk/internal/exam"
	"github.com/notenwerk/notenwerk/internal/grading"
)

func CreateExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CourseID  int64   `json:"course_id" validate:"required"`
			Name      string  `json:"name" validate:"required"`
			ExamDate  int64   `json:"exam_date"`
			MaxPoints float64 `json:"max_points" validate:"required,gt=0"`
			Weight    float64 `json:"weight" validate:"required,gt=0,lte=1"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, err := svc.CreateExam(r.Context(), exam.Exam{
			CourseID:  req.CourseID,
			Name:      req.Name,
			ExamDate:  req.ExamDate,
			MaxPoints: req.MaxPoints,
			Weight:    req.Weight,
		}, actorOf(r))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, e)
	}
}

// PUT /exams/{id}
func UpdateExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req struct {
			Name      string  `json:"name" validate:"required"`
			ExamDate  int64   `json:"exam_date"`
			MaxPoints float64 `json:"max_points" validate:"required,gt=0"`
			Weight    float64 `json:"weight" validate:"required,gt=0,lte=1"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, err := svc.UpdateExam(r.Context(), exam.Exam{
			ID:        id,
			Name:      req.Name,
			ExamDate:  req.ExamDate,
			MaxPoints: req.MaxPoints,
			Weight:    req.Weight,
		}, actorOf(r))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, e)
	}
}

func GetExamHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, err := store.GetExam(r.Context(), id)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, e)
	}
}

// GET /courses/{id}/exams
func ListExamsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		es, err := store.ListExams(r.Context(), courseID)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, es)
	}
}

// POST /exams/{id}/components
func AddComponentHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req struct {
			Name      string  `json:"name" validate:"required"`
			MaxPoints float64 `json:"max_points" validate:"required,gt=0"`
			Weight    float64 `json:"weight" validate:"required,gt=0,lte=1"`
			Position  int     `json:"position"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c, err := svc.AddComponent(r.Context(), exam.Component{
			ExamID:    examID,
			Name:      req.Name,
			MaxPoints: req.MaxPoints,
			Weight:    req.Weight,
			Position:  req.Position,
		}, actorOf(r))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, c)
	}
}

// GET /exams/{id}/components
func ListComponentsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cs, err := store.ListComponents(r.Context(), examID)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, cs)
	}
}

func AddGradeHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in exam.GradeInput
		if err := decode(r, &in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if in.GradedBy == "" {
			in.GradedBy = actorOf(r)
		}
		g, err := svc.AddGrade(r.Context(), in)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, g)
	}
}

// PATCH /grades/{id} rescores a provisional grade and returns the change.
func UpdateGradeHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var in exam.GradeUpdate
		if err := decode(r, &in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if in.GradedBy == "" {
			in.GradedBy = actorOf(r)
		}
		res, err := svc.UpdateGrade(r.Context(), id, in)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, res)
	}
}

func FinalizeGradeHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g, err := svc.FinalizeGrade(r.Context(), id, actorOf(r))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, g)
	}
}

func DeleteGradeHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := svc.DeleteGrade(r.Context(), id, actorOf(r)); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func GetGradeHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g, err := store.GetGrade(r.Context(), id)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, g)
	}
}

func ListGradesHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := exam.GradeListOpts{
			ExamID:       queryInt(r, "exam_id"),
			EnrollmentID: queryInt(r, "enrollment_id"),
			ComponentID:  queryInt(r, "component_id"),
			ExamLevel:    queryBool(r, "exam_level"),
			Status:       r.URL.Query().Get("status"),
		}
		gs, err := store.ListGrades(r.Context(), opts)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, gs)
	}
}

// GET /enrollments/{id}/average?partial=1&provisional=1
func CourseAverageHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rep, err := svc.CourseAverage(r.Context(), id, exam.AverageOpts{
			Partial:     queryBool(r, "partial"),
			Provisional: queryBool(r, "provisional"),
		})
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, rep)
	}
}

// GET /exams/{id}/statistics
func ExamStatisticsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		stats, err := svc.ExamStatistics(r.Context(), id)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, stats)
	}
}

func CreateScaleHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UniversityID int64               `json:"university_id"`
			Name         string              `json:"name" validate:"required"`
			IsDefault    bool                `json:"is_default"`
			Thresholds   []grading.Threshold `json:"thresholds" validate:"required,min=1"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec, err := svc.CreateScale(r.Context(), exam.ScaleRecord{
			UniversityID: req.UniversityID,
			Name:         req.Name,
			IsDefault:    req.IsDefault,
			Thresholds:   req.Thresholds,
		}, actorOf(r))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, rec)
	}
}

func GetScaleHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec, err := store.GetScale(r.Context(), id)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, rec)
	}
}

func ListScalesHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := store.ListScales(r.Context(), queryInt(r, "university_id"))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, recs)
	}
}
