package exam

import "context"

type GradeListOpts struct {
	ExamID       int64
	EnrollmentID int64
	ComponentID  int64 // >0 selects one component's grades
	ExamLevel    bool  // only grades without a component
	Status       string
}

type Store interface {
	CreateExam(ctx context.Context, e Exam) (Exam, error)
	GetExam(ctx context.Context, id int64) (Exam, error)
	UpdateExam(ctx context.Context, e Exam) (Exam, error)
	ListExams(ctx context.Context, courseID int64) ([]Exam, error)

	// AddComponent assigns the next free position when c.Position <= 0.
	AddComponent(ctx context.Context, c Component) (Component, error)
	GetComponent(ctx context.Context, id int64) (Component, error)
	ListComponents(ctx context.Context, examID int64) ([]Component, error)

	InsertGrade(ctx context.Context, g Grade) (Grade, error)
	UpdateGrade(ctx context.Context, g Grade) (Grade, error)
	GetGrade(ctx context.Context, id int64) (Grade, error)
	// FindGrade looks up the grade for a (enrollment, exam, component)
	// triple; componentID nil means the exam-level grade.
	FindGrade(ctx context.Context, enrollmentID, examID int64, componentID *int64) (Grade, error)
	ListGrades(ctx context.Context, opts GradeListOpts) ([]Grade, error)
	DeleteGrade(ctx context.Context, id int64) error

	// CreateScale stores a scale with its thresholds. A scale created as
	// default demotes the previous default of its university scope.
	CreateScale(ctx context.Context, rec ScaleRecord) (ScaleRecord, error)
	GetScale(ctx context.Context, id int64) (ScaleRecord, error)
	FindScaleByName(ctx context.Context, name string) (ScaleRecord, error)
	ListScales(ctx context.Context, universityID int64) ([]ScaleRecord, error)
}
