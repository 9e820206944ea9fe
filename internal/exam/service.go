package exam

import (
	"context"
	"errors"
	"fmt"

	"github.com/notenwerk/notenwerk/internal/audit"
	"github.com/notenwerk/notenwerk/internal/grading"
	"github.com/notenwerk/notenwerk/internal/registry"
)

// CourseResolver is the slice of the registry the grade service needs.
// registry.Store satisfies it.
type CourseResolver interface {
	GetCourse(ctx context.Context, id int64) (registry.Course, error)
	GetEnrollment(ctx context.Context, id int64) (registry.Enrollment, error)
}

// Service applies the grading rules on top of the store: scale resolution,
// duplicate protection, weight budgets, finalization.
type Service struct {
	store   Store
	courses CourseResolver
	audit   *audit.Recorder
}

func NewService(store Store, courses CourseResolver, rec *audit.Recorder) *Service {
	return &Service{store: store, courses: courses, audit: rec}
}

func (s *Service) record(ctx context.Context, actor, action, entity string, id int64, details any) {
	if s.audit == nil {
		return
	}
	// the audit trail must not fail the operation it records
	_ = s.audit.Record(ctx, actor, action, entity, id, details)
}

func (s *Service) CreateExam(ctx context.Context, e Exam, actor string) (Exam, error) {
	existing, err := s.store.ListExams(ctx, e.CourseID)
	if err != nil {
		return Exam{}, err
	}
	weights := make([]float64, 0, len(existing))
	for _, ex := range existing {
		weights = append(weights, ex.Weight)
	}
	if err := grading.CheckComponentWeight(weights, e.Weight); err != nil {
		return Exam{}, err
	}
	e, err = s.store.CreateExam(ctx, e)
	if err != nil {
		return Exam{}, err
	}
	s.record(ctx, actor, audit.ActionCreate, "exam", e.ID, e)
	return e, nil
}

// UpdateExam rescores the course's weight budget with the exam's new
// weight in place of its old one. The course binding never changes.
func (s *Service) UpdateExam(ctx context.Context, e Exam, actor string) (Exam, error) {
	old, err := s.store.GetExam(ctx, e.ID)
	if err != nil {
		return Exam{}, err
	}
	e.CourseID = old.CourseID
	siblings, err := s.store.ListExams(ctx, old.CourseID)
	if err != nil {
		return Exam{}, err
	}
	weights := make([]float64, 0, len(siblings))
	for _, sib := range siblings {
		if sib.ID != e.ID {
			weights = append(weights, sib.Weight)
		}
	}
	if err := grading.CheckComponentWeight(weights, e.Weight); err != nil {
		return Exam{}, err
	}
	e, err = s.store.UpdateExam(ctx, e)
	if err != nil {
		return Exam{}, err
	}
	s.record(ctx, actor, audit.ActionUpdate, "exam", e.ID, e)
	return e, nil
}

// AddComponent enforces the exam's weight budget before inserting.
func (s *Service) AddComponent(ctx context.Context, c Component, actor string) (Component, error) {
	if err := c.Validate(); err != nil {
		return Component{}, err
	}
	existing, err := s.store.ListComponents(ctx, c.ExamID)
	if err != nil {
		return Component{}, err
	}
	weights := make([]float64, 0, len(existing))
	for _, e := range existing {
		weights = append(weights, e.Weight)
	}
	if err := grading.CheckComponentWeight(weights, c.Weight); err != nil {
		return Component{}, err
	}
	c, err = s.store.AddComponent(ctx, c)
	if err != nil {
		return Component{}, err
	}
	s.record(ctx, actor, audit.ActionCreate, "component", c.ID, c)
	return c, nil
}

type GradeInput struct {
	EnrollmentID int64   `json:"enrollment_id"`
	ExamID       int64   `json:"exam_id"`
	ComponentID  *int64  `json:"component_id,omitempty"`
	Points       float64 `json:"points"`
	Note         string  `json:"note,omitempty"`
	GradedBy     string  `json:"graded_by,omitempty"`
	Bonus        bool    `json:"bonus,omitempty"` // allow points above the maximum
}

// AddGrade scores the points against the course's scale and stores the
// result as provisional.
func (s *Service) AddGrade(ctx context.Context, in GradeInput) (Grade, error) {
	ex, err := s.store.GetExam(ctx, in.ExamID)
	if err != nil {
		return Grade{}, err
	}
	enr, err := s.courses.GetEnrollment(ctx, in.EnrollmentID)
	if err != nil {
		return Grade{}, err
	}
	if enr.CourseID != ex.CourseID {
		return Grade{}, fmt.Errorf("enrollment %d is not in course %d: %w", enr.ID, ex.CourseID, ErrInvalid)
	}

	maxPoints := ex.MaxPoints
	if in.ComponentID != nil {
		comp, err := s.store.GetComponent(ctx, *in.ComponentID)
		if err != nil {
			return Grade{}, err
		}
		if comp.ExamID != ex.ID {
			return Grade{}, fmt.Errorf("component %d does not belong to exam %d: %w", comp.ID, ex.ID, ErrInvalid)
		}
		maxPoints = comp.MaxPoints
	}

	if _, err := s.store.FindGrade(ctx, in.EnrollmentID, in.ExamID, in.ComponentID); err == nil {
		return Grade{}, fmt.Errorf("enrollment %d on exam %d: %w", in.EnrollmentID, in.ExamID, ErrDuplicateGrade)
	} else if !errors.Is(err, ErrNotFound) {
		return Grade{}, err
	}

	scale, err := s.scaleFor(ctx, ex.CourseID)
	if err != nil {
		return Grade{}, err
	}
	computed, err := grading.Compute(in.Points, maxPoints, scale, gradeOpts(in.Bonus)...)
	if err != nil {
		return Grade{}, err
	}

	g := Grade{
		EnrollmentID: in.EnrollmentID,
		ExamID:       in.ExamID,
		ComponentID:  in.ComponentID,
		Points:       computed.Points,
		Percentage:   computed.Percent,
		Value:        computed.Value,
		Label:        computed.Label,
		Status:       string(grading.StatusProvisional),
		GradedBy:     in.GradedBy,
		Note:         in.Note,
	}
	g, err = s.store.InsertGrade(ctx, g)
	if err != nil {
		return Grade{}, err
	}
	s.record(ctx, in.GradedBy, audit.ActionCreate, "grade", g.ID, g)
	return g, nil
}

type GradeUpdate struct {
	Points   float64 `json:"points"`
	Note     string  `json:"note,omitempty"`
	GradedBy string  `json:"graded_by,omitempty"`
	Bonus    bool    `json:"bonus,omitempty"`
}

// RegradeResult carries the stored grade plus the old/new pair for the
// audit trail and API responses.
type RegradeResult struct {
	Grade  Grade           `json:"grade"`
	Change grading.Regrade `json:"change"`
}

// UpdateGrade rescores a provisional grade. Finalized grades are locked.
func (s *Service) UpdateGrade(ctx context.Context, id int64, in GradeUpdate) (RegradeResult, error) {
	g, err := s.store.GetGrade(ctx, id)
	if err != nil {
		return RegradeResult{}, err
	}
	if g.Final() {
		return RegradeResult{}, fmt.Errorf("grade %d: %w", id, ErrFinalized)
	}
	ex, err := s.store.GetExam(ctx, g.ExamID)
	if err != nil {
		return RegradeResult{}, err
	}
	maxPoints := ex.MaxPoints
	if g.ComponentID != nil {
		comp, err := s.store.GetComponent(ctx, *g.ComponentID)
		if err != nil {
			return RegradeResult{}, err
		}
		maxPoints = comp.MaxPoints
	}
	scale, err := s.scaleFor(ctx, ex.CourseID)
	if err != nil {
		return RegradeResult{}, err
	}

	old := grading.Computed{
		Points: g.Points, MaxPoints: maxPoints,
		Percent: g.Percentage, Value: g.Value, Label: g.Label,
	}
	change, err := grading.Rescore(old, in.Points, scale, gradeOpts(in.Bonus)...)
	if err != nil {
		return RegradeResult{}, err
	}

	g.Points = change.New.Points
	g.Percentage = change.New.Percent
	g.Value = change.New.Value
	g.Label = change.New.Label
	if in.Note != "" {
		g.Note = in.Note
	}
	if in.GradedBy != "" {
		g.GradedBy = in.GradedBy
	}
	g, err = s.store.UpdateGrade(ctx, g)
	if err != nil {
		return RegradeResult{}, err
	}
	s.record(ctx, in.GradedBy, audit.ActionRegrade, "grade", g.ID, change)
	return RegradeResult{Grade: g, Change: change}, nil
}

// FinalizeGrade locks a grade; any further update or delete fails with
// ErrFinalized.
func (s *Service) FinalizeGrade(ctx context.Context, id int64, actor string) (Grade, error) {
	g, err := s.store.GetGrade(ctx, id)
	if err != nil {
		return Grade{}, err
	}
	if !grading.Status(g.Status).CanBecome(grading.StatusFinal) {
		return Grade{}, fmt.Errorf("grade %d: %w", id, ErrFinalized)
	}
	g.Status = string(grading.StatusFinal)
	g, err = s.store.UpdateGrade(ctx, g)
	if err != nil {
		return Grade{}, err
	}
	s.record(ctx, actor, audit.ActionFinalize, "grade", g.ID, g)
	return g, nil
}

func (s *Service) DeleteGrade(ctx context.Context, id int64, actor string) error {
	g, err := s.store.GetGrade(ctx, id)
	if err != nil {
		return err
	}
	if g.Final() {
		return fmt.Errorf("grade %d: %w", id, ErrFinalized)
	}
	if err := s.store.DeleteGrade(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, audit.ActionDelete, "grade", g.ID, g)
	return nil
}

// AverageReport is the course outcome for one enrollment: the weighted
// percentage plus its resolution on the course's scale.
type AverageReport struct {
	EnrollmentID int64   `json:"enrollment_id"`
	Average      float64 `json:"average"`
	Value        float64 `json:"value"`
	Label        string  `json:"label"`
	Passing      bool    `json:"passing"`
}

// AverageOpts controls which grades enter a course average.
type AverageOpts struct {
	// Partial renormalizes over the graded share of the weights instead
	// of requiring the exams to cover the full course.
	Partial bool
	// Provisional admits grades that have not been finalized yet, for a
	// mid-semester preview. By default only final grades count.
	Provisional bool
}

// CourseAverage computes the weighted course grade percentage for one
// enrollment and resolves it to a grade. Exams graded per component are
// reduced with the component weights first. Only finalized grades enter
// the average unless opts.Provisional is set.
func (s *Service) CourseAverage(ctx context.Context, enrollmentID int64, opts AverageOpts) (AverageReport, error) {
	enr, err := s.courses.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return AverageReport{}, err
	}
	exams, err := s.store.ListExams(ctx, enr.CourseID)
	if err != nil {
		return AverageReport{}, err
	}
	listOpts := GradeListOpts{EnrollmentID: enrollmentID}
	if !opts.Provisional {
		listOpts.Status = string(grading.StatusFinal)
	}
	grades, err := s.store.ListGrades(ctx, listOpts)
	if err != nil {
		return AverageReport{}, err
	}

	byExam := map[int64][]Grade{}
	for _, g := range grades {
		byExam[g.ExamID] = append(byExam[g.ExamID], g)
	}

	var engineOpts []grading.Option
	if opts.Partial {
		engineOpts = append(engineOpts, grading.WithPartialWeights())
	}
	var parts []grading.WeightedScore
	for _, ex := range exams {
		pct, ok, err := s.examPercent(ctx, ex, byExam[ex.ID], engineOpts)
		if err != nil {
			return AverageReport{}, err
		}
		if !ok {
			continue
		}
		parts = append(parts, grading.WeightedScore{Percent: pct, Weight: ex.Weight})
	}
	avg, err := grading.CourseAverage(parts, engineOpts...)
	if err != nil {
		return AverageReport{}, err
	}
	scale, err := s.scaleFor(ctx, enr.CourseID)
	if err != nil {
		return AverageReport{}, err
	}
	t, err := scale.Resolve(avg)
	if err != nil {
		return AverageReport{}, err
	}
	return AverageReport{
		EnrollmentID: enrollmentID,
		Average:      avg,
		Value:        t.Value,
		Label:        t.Label,
		Passing:      t.Value <= grading.PassingValue,
	}, nil
}

// examPercent reduces one exam's grades to a single percentage. An
// exam-level grade wins over component grades.
func (s *Service) examPercent(ctx context.Context, ex Exam, grades []Grade, opts []grading.Option) (float64, bool, error) {
	var compGrades []Grade
	for _, g := range grades {
		if g.ComponentID == nil {
			return g.Percentage, true, nil
		}
		compGrades = append(compGrades, g)
	}
	if len(compGrades) == 0 {
		return 0, false, nil
	}
	comps, err := s.store.ListComponents(ctx, ex.ID)
	if err != nil {
		return 0, false, err
	}
	weightByID := make(map[int64]float64, len(comps))
	for _, c := range comps {
		weightByID[c.ID] = c.Weight
	}
	parts := make([]grading.WeightedScore, 0, len(compGrades))
	for _, g := range compGrades {
		w, ok := weightByID[*g.ComponentID]
		if !ok {
			continue
		}
		parts = append(parts, grading.WeightedScore{Percent: g.Percentage, Weight: w})
	}
	pct, err := grading.ComponentAverage(parts, opts...)
	if err != nil {
		return 0, false, err
	}
	return pct, true, nil
}

// Stats is the cohort view of one exam.
type Stats struct {
	ExamID       int64           `json:"exam_id"`
	Summary      grading.Summary `json:"summary"`
	Distribution map[string]int  `json:"distribution"`
}

func (s *Service) ExamStatistics(ctx context.Context, examID int64) (Stats, error) {
	ex, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Stats{}, err
	}
	grades, err := s.store.ListGrades(ctx, GradeListOpts{ExamID: examID, ExamLevel: true})
	if err != nil {
		return Stats{}, err
	}
	percents := make([]float64, 0, len(grades))
	for _, g := range grades {
		percents = append(percents, g.Percentage)
	}
	summary, err := grading.Statistics(percents, grading.DefaultPassThreshold)
	if err != nil {
		return Stats{}, err
	}
	scale, err := s.scaleFor(ctx, ex.CourseID)
	if err != nil {
		return Stats{}, err
	}
	dist, err := grading.Distribution(percents, scale)
	if err != nil {
		return Stats{}, err
	}
	return Stats{ExamID: examID, Summary: summary, Distribution: dist}, nil
}

// CreateScale persists a custom scale and registers it so course scale
// keys resolve to it immediately.
func (s *Service) CreateScale(ctx context.Context, rec ScaleRecord, actor string) (ScaleRecord, error) {
	rec, err := s.store.CreateScale(ctx, rec)
	if err != nil {
		return ScaleRecord{}, err
	}
	grading.RegisterScale(rec.Name, rec.Scale())
	s.record(ctx, actor, audit.ActionCreate, "scale", rec.ID, rec)
	return rec, nil
}

// LoadScales registers all stored scales with the in-process registry.
// Called once at startup.
func (s *Service) LoadScales(ctx context.Context) error {
	recs, err := s.store.ListScales(ctx, 0)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		grading.RegisterScale(rec.Name, rec.Scale())
	}
	return nil
}

// EnsureDefaultScale seeds the stored german scale on first start so the
// scales API lists it alongside custom ones.
func (s *Service) EnsureDefaultScale(ctx context.Context) (ScaleRecord, error) {
	rec, err := s.store.FindScaleByName(ctx, grading.DefaultScaleKey)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ScaleRecord{}, err
	}
	german := grading.German()
	return s.store.CreateScale(ctx, ScaleRecord{
		Name:       grading.DefaultScaleKey,
		IsDefault:  true,
		Thresholds: german.Thresholds,
	})
}

func (s *Service) scaleFor(ctx context.Context, courseID int64) (grading.Scale, error) {
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return grading.Scale{}, err
	}
	return grading.ScaleFor(course.ScaleKey), nil
}

func gradeOpts(bonus bool) []grading.Option {
	if bonus {
		return []grading.Option{grading.WithBonus()}
	}
	return nil
}
