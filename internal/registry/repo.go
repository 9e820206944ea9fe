package registry

import (
	"context"

	"github.com/notenwerk/notenwerk/internal/match"
)

type StudentListOpts struct {
	Q              string // matches name, registry number or email
	UniversityID   int64
	IncludeDeleted bool
	Limit          int
	Offset         int
}

type Store interface {
	CreateUniversity(ctx context.Context, u University) (University, error)
	GetUniversity(ctx context.Context, id int64) (University, error)
	ListUniversities(ctx context.Context) ([]University, error)

	CreateStudent(ctx context.Context, st Student) (Student, error)
	UpdateStudent(ctx context.Context, st Student) (Student, error)
	GetStudent(ctx context.Context, id int64) (Student, error)
	GetStudentByRegistryNumber(ctx context.Context, studentID string) (Student, error)
	ListStudents(ctx context.Context, opts StudentListOpts) ([]Student, error)
	// SoftDeleteStudent hides the student from listings but keeps grades
	// and submissions referencing them intact.
	SoftDeleteStudent(ctx context.Context, id int64) error

	CreateCourse(ctx context.Context, c Course) (Course, error)
	GetCourse(ctx context.Context, id int64) (Course, error)
	ListCourses(ctx context.Context, universityID int64) ([]Course, error)

	// Enroll creates an active enrollment, re-activating a dropped or
	// completed one instead of failing on the unique pair constraint.
	Enroll(ctx context.Context, studentID, courseID int64) (Enrollment, error)
	UpdateEnrollmentStatus(ctx context.Context, id int64, status string) (Enrollment, error)
	GetEnrollment(ctx context.Context, id int64) (Enrollment, error)
	ListEnrollments(ctx context.Context, courseID int64, status string) ([]Enrollment, error)

	// Candidates is the matching roster for a course: active enrollments
	// joined with their student records.
	Candidates(ctx context.Context, courseID int64) ([]match.Candidate, error)
}
