package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Enrollment lifecycle.
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentDropped   = "dropped"
)

// ErrInvalid marks input that failed registry validation; handlers map it
// to 422.
var ErrInvalid = errors.New("invalid input")

// ErrNotFound marks lookups that hit nothing; handlers map it to 404.
var ErrNotFound = errors.New("not found")

// ErrAlreadyEnrolled is returned when enrolling a student who is already
// active in the course.
var ErrAlreadyEnrolled = errors.New("already enrolled")

// ErrDuplicate marks creates that collide with an existing record.
var ErrDuplicate = errors.New("already exists")

type University struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	City      string `json:"city,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type Student struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	StudentID    string `json:"student_id"` // eight-digit registry number
	Email        string `json:"email"`
	Program      string `json:"program,omitempty"`
	UniversityID int64  `json:"university_id,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	DeletedAt    *int64 `json:"deleted_at,omitempty"`
}

// FullName is "First Last", used in listings.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

type Course struct {
	ID           int64  `json:"id"`
	UniversityID int64  `json:"university_id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Semester     string `json:"semester"` // e.g. 2025_SoSe
	ScaleKey     string `json:"scale_key"`
	CreatedAt    int64  `json:"created_at"`
}

type Enrollment struct {
	ID         int64  `json:"id"`
	StudentID  int64  `json:"student_id"`
	CourseID   int64  `json:"course_id"`
	Status     string `json:"status"`
	EnrolledAt int64  `json:"enrolled_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

var (
	studentIDRe = regexp.MustCompile(`^\d{8}$`)
	semesterRe  = regexp.MustCompile(`^\d{4}_(SoSe|WiSe)$`)
	emailRe     = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
)

// ValidStudentID accepts exactly eight digits.
func ValidStudentID(s string) bool { return studentIDRe.MatchString(s) }

// ValidSemester accepts the YYYY_SoSe / YYYY_WiSe convention.
func ValidSemester(s string) bool { return semesterRe.MatchString(s) }

func ValidEmail(s string) bool { return emailRe.MatchString(s) }

// ValidEnrollmentStatus guards the three lifecycle states.
func ValidEnrollmentStatus(s string) bool {
	switch s {
	case EnrollmentActive, EnrollmentCompleted, EnrollmentDropped:
		return true
	}
	return false
}

func (s Student) Validate() error {
	if strings.TrimSpace(s.FirstName) == "" || strings.TrimSpace(s.LastName) == "" {
		return fmt.Errorf("name must not be empty: %w", ErrInvalid)
	}
	if !ValidStudentID(s.StudentID) {
		return fmt.Errorf("student_id %q: must be eight digits: %w", s.StudentID, ErrInvalid)
	}
	if !ValidEmail(s.Email) {
		return fmt.Errorf("email %q: malformed: %w", s.Email, ErrInvalid)
	}
	return nil
}

func (c Course) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("course name must not be empty: %w", ErrInvalid)
	}
	if !ValidSemester(c.Semester) {
		return fmt.Errorf("semester %q: want YYYY_SoSe or YYYY_WiSe: %w", c.Semester, ErrInvalid)
	}
	if c.UniversityID <= 0 {
		return fmt.Errorf("university_id must be set: %w", ErrInvalid)
	}
	return nil
}

// germanFold maps umlauts to the digraphs used in file and URL names.
var germanFold = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify folds a free-text name to [a-z0-9-], the form used in URLs and
// upload paths.
func Slugify(s string) string {
	s = germanFold.Replace(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) { // mark nonspacing
			continue
		}
		b.WriteRune(r)
	}
	out := nonSlug.ReplaceAllString(b.String(), "-")
	return strings.Trim(out, "-")
}
