package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/notenwerk/notenwerk/internal/exam"
	"github.com/notenwerk/notenwerk/internal/grading"
	"github.com/notenwerk/notenwerk/internal/match"
	"github.com/notenwerk/notenwerk/internal/registry"
	"github.com/notenwerk/notenwerk/internal/submission"
)

var validate = validator.New()

// errStatus maps service errors onto HTTP statuses so handlers can pass
// errors through without inspecting them.
func errStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, exam.ErrNotFound),
		errors.Is(err, submission.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicate),
		errors.Is(err, registry.ErrAlreadyEnrolled),
		errors.Is(err, exam.ErrDuplicate),
		errors.Is(err, exam.ErrDuplicateGrade),
		errors.Is(err, exam.ErrFinalized),
		errors.Is(err, submission.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalid),
		errors.Is(err, exam.ErrInvalid),
		errors.Is(err, submission.ErrInvalid):
		return http.StatusUnprocessableEntity
	}
	var (
		validation *grading.ValidationError
		overflow   *grading.WeightOverflowError
		incomplete *grading.IncompleteWeightingError
		exhausted  *grading.ScaleExhaustedError
		empty      *grading.EmptyDatasetError
		ambiguous  *match.AmbiguousMatchError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &overflow),
		errors.As(err, &incomplete), errors.As(err, &exhausted),
		errors.As(err, &empty):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ambiguous):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), errStatus(err))
}

func respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body and runs struct validation on it.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("bad json: " + err.Error())
	}
	return validate.Struct(dst)
}

// urlID parses a numeric chi path parameter.
func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return id, nil
}

// queryInt returns 0 when the parameter is absent or malformed.
func queryInt(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func queryBool(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// actorOf names the caller for the audit trail.
func actorOf(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}
