package registry

import (
	"context"

	"github.com/notenwerk/notenwerk/internal/audit"
)

// Service wraps a Store with audit recording. Reads pass through the
// embedded Store; every mutation leaves a trail entry attributed to the
// context actor.
type Service struct {
	Store
	audit *audit.Recorder
}

func NewService(store Store, rec *audit.Recorder) *Service {
	return &Service{Store: store, audit: rec}
}

func (s *Service) record(ctx context.Context, action, entity string, id any, details any) {
	if s.audit == nil {
		return
	}
	// the audit trail must not fail the operation it records
	_ = s.audit.Record(ctx, audit.ActorFrom(ctx), action, entity, id, details)
}

func (s *Service) CreateUniversity(ctx context.Context, u University) (University, error) {
	u, err := s.Store.CreateUniversity(ctx, u)
	if err != nil {
		return University{}, err
	}
	s.record(ctx, audit.ActionCreate, "university", u.ID, u)
	return u, nil
}

func (s *Service) CreateStudent(ctx context.Context, st Student) (Student, error) {
	st, err := s.Store.CreateStudent(ctx, st)
	if err != nil {
		return Student{}, err
	}
	s.record(ctx, audit.ActionCreate, "student", st.ID, st)
	return st, nil
}

func (s *Service) UpdateStudent(ctx context.Context, st Student) (Student, error) {
	st, err := s.Store.UpdateStudent(ctx, st)
	if err != nil {
		return Student{}, err
	}
	s.record(ctx, audit.ActionUpdate, "student", st.ID, st)
	return st, nil
}

func (s *Service) SoftDeleteStudent(ctx context.Context, id int64) error {
	if err := s.Store.SoftDeleteStudent(ctx, id); err != nil {
		return err
	}
	s.record(ctx, audit.ActionDelete, "student", id, nil)
	return nil
}

func (s *Service) CreateCourse(ctx context.Context, c Course) (Course, error) {
	c, err := s.Store.CreateCourse(ctx, c)
	if err != nil {
		return Course{}, err
	}
	s.record(ctx, audit.ActionCreate, "course", c.ID, c)
	return c, nil
}

func (s *Service) Enroll(ctx context.Context, studentID, courseID int64) (Enrollment, error) {
	e, err := s.Store.Enroll(ctx, studentID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	s.record(ctx, audit.ActionCreate, "enrollment", e.ID, e)
	return e, nil
}

func (s *Service) UpdateEnrollmentStatus(ctx context.Context, id int64, status string) (Enrollment, error) {
	e, err := s.Store.UpdateEnrollmentStatus(ctx, id, status)
	if err != nil {
		return Enrollment{}, err
	}
	s.record(ctx, audit.ActionUpdate, "enrollment", e.ID, map[string]string{"status": status})
	return e, nil
}
