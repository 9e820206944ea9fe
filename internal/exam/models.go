package exam

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notenwerk/notenwerk/internal/grading"
)

var (
	// ErrNotFound marks lookups that hit nothing; handlers map it to 404.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks input rejected before it reaches the database.
	ErrInvalid = errors.New("invalid input")
	// ErrDuplicate marks creates that collide with an existing record.
	ErrDuplicate = errors.New("already exists")
	// ErrDuplicateGrade is returned when a grade for the same
	// (enrollment, exam, component) triple already exists.
	ErrDuplicateGrade = errors.New("grade already recorded")
	// ErrFinalized guards mutations of grades that have been finalized.
	ErrFinalized = errors.New("grade is final")
)

// Exam is a graded assessment within a course. Weight is its share of the
// course grade.
type Exam struct {
	ID        int64   `json:"id"`
	CourseID  int64   `json:"course_id"`
	Name      string  `json:"name"`
	ExamDate  int64   `json:"exam_date,omitempty"` // unix, 0 = unscheduled
	MaxPoints float64 `json:"max_points"`
	Weight    float64 `json:"weight"`
	CreatedAt int64   `json:"created_at"`
}

func (e Exam) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("exam name must not be empty: %w", ErrInvalid)
	}
	if e.CourseID <= 0 {
		return fmt.Errorf("course_id must be set: %w", ErrInvalid)
	}
	if e.MaxPoints <= 0 {
		return fmt.Errorf("max_points must be positive: %w", ErrInvalid)
	}
	if e.Weight <= 0 || e.Weight > 1 {
		return fmt.Errorf("weight %v: must be in (0, 1]: %w", e.Weight, ErrInvalid)
	}
	return nil
}

// Component is a graded part of an exam (written part, lab, presentation).
// Weight is its share of the exam grade; positions are unique per exam.
type Component struct {
	ID        int64   `json:"id"`
	ExamID    int64   `json:"exam_id"`
	Name      string  `json:"name"`
	MaxPoints float64 `json:"max_points"`
	Weight    float64 `json:"weight"`
	Position  int     `json:"position"`
}

func (c Component) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("component name must not be empty: %w", ErrInvalid)
	}
	if c.ExamID <= 0 {
		return fmt.Errorf("exam_id must be set: %w", ErrInvalid)
	}
	if c.MaxPoints <= 0 {
		return fmt.Errorf("max_points must be positive: %w", ErrInvalid)
	}
	return nil
}

// Grade is a scored result for one enrollment, either for a whole exam
// (ComponentID nil) or for a single component.
type Grade struct {
	ID           int64   `json:"id"`
	EnrollmentID int64   `json:"enrollment_id"`
	ExamID       int64   `json:"exam_id"`
	ComponentID  *int64  `json:"component_id,omitempty"`
	Points       float64 `json:"points"`
	Percentage   float64 `json:"percentage"`
	Value        float64 `json:"grade_value"`
	Label        string  `json:"grade_label"`
	Status       string  `json:"status"` // provisional | final
	GradedBy     string  `json:"graded_by,omitempty"`
	Note         string  `json:"note,omitempty"`
	GradedAt     int64   `json:"graded_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

// Final reports whether the grade is locked against changes.
func (g Grade) Final() bool { return g.Status == string(grading.StatusFinal) }

// ScaleRecord is a stored grading scale. UniversityID 0 means the scale is
// shared across universities.
type ScaleRecord struct {
	ID           int64               `json:"id"`
	UniversityID int64               `json:"university_id,omitempty"`
	Name         string              `json:"name"`
	IsDefault    bool                `json:"is_default"`
	Thresholds   []grading.Threshold `json:"thresholds"`
}

// Scale converts the stored record into the engine's form.
func (r ScaleRecord) Scale() grading.Scale {
	return grading.Scale{Name: r.Name, Thresholds: r.Thresholds}
}

func (r ScaleRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("scale name must not be empty: %w", ErrInvalid)
	}
	if err := r.Scale().Validate(); err != nil {
		return fmt.Errorf("scale %s: %v: %w", r.Name, err, ErrInvalid)
	}
	return nil
}
