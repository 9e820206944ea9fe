package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/notenwerk/notenwerk/internal/grading"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) (Exam, error) {
	if err := e.Validate(); err != nil {
		return Exam{}, err
	}
	var exist int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id=$1`, e.CourseID).Scan(&exist)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, fmt.Errorf("course %d: %w", e.CourseID, ErrNotFound)
	}
	if err != nil {
		return Exam{}, err
	}
	e.CreatedAt = time.Now().Unix()
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO exams (course_id, name, exam_date, max_points, weight, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		e.CourseID, e.Name, e.ExamDate, e.MaxPoints, e.Weight, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (s *SQLStore) GetExam(ctx context.Context, id int64) (Exam, error) {
	var e Exam
	err := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, name, COALESCE(exam_date, 0), max_points, weight, created_at
		 FROM exams WHERE id=$1`, id).
		Scan(&e.ID, &e.CourseID, &e.Name, &e.ExamDate, &e.MaxPoints, &e.Weight, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, fmt.Errorf("exam %d: %w", id, ErrNotFound)
	}
	return e, err
}

func (s *SQLStore) UpdateExam(ctx context.Context, e Exam) (Exam, error) {
	if err := e.Validate(); err != nil {
		return Exam{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE exams SET name=$1, exam_date=$2, max_points=$3, weight=$4 WHERE id=$5`,
		e.Name, e.ExamDate, e.MaxPoints, e.Weight, e.ID)
	if err != nil {
		return Exam{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Exam{}, fmt.Errorf("exam %d: %w", e.ID, ErrNotFound)
	}
	return s.GetExam(ctx, e.ID)
}

func (s *SQLStore) ListExams(ctx context.Context, courseID int64) ([]Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, name, COALESCE(exam_date, 0), max_points, weight, created_at
		 FROM exams WHERE course_id=$1 ORDER BY exam_date, id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Exam
	for rows.Next() {
		var e Exam
		if err := rows.Scan(&e.ID, &e.CourseID, &e.Name, &e.ExamDate, &e.MaxPoints, &e.Weight, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) AddComponent(ctx context.Context, c Component) (Component, error) {
	if err := c.Validate(); err != nil {
		return Component{}, err
	}
	if _, err := s.GetExam(ctx, c.ExamID); err != nil {
		return Component{}, err
	}
	if c.Position <= 0 {
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM exam_components WHERE exam_id=$1`,
			c.ExamID).Scan(&c.Position)
		if err != nil {
			return Component{}, err
		}
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO exam_components (exam_id, name, max_points, weight, position)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		c.ExamID, c.Name, c.MaxPoints, c.Weight, c.Position).Scan(&c.ID)
	if err != nil {
		return Component{}, err
	}
	return c, nil
}

func (s *SQLStore) GetComponent(ctx context.Context, id int64) (Component, error) {
	var c Component
	err := s.db.QueryRowContext(ctx,
		`SELECT id, exam_id, name, max_points, weight, position
		 FROM exam_components WHERE id=$1`, id).
		Scan(&c.ID, &c.ExamID, &c.Name, &c.MaxPoints, &c.Weight, &c.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return Component{}, fmt.Errorf("component %d: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *SQLStore) ListComponents(ctx context.Context, examID int64) ([]Component, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exam_id, name, max_points, weight, position
		 FROM exam_components WHERE exam_id=$1 ORDER BY position`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Component
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.ID, &c.ExamID, &c.Name, &c.MaxPoints, &c.Weight, &c.Position); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const gradeCols = `id, enrollment_id, exam_id, component_id, points, percentage,
	grade_value, grade_label, status, graded_by, note, graded_at, updated_at`

func scanGrade(row interface{ Scan(...any) error }) (Grade, error) {
	var g Grade
	var comp sql.NullInt64
	err := row.Scan(&g.ID, &g.EnrollmentID, &g.ExamID, &comp, &g.Points, &g.Percentage,
		&g.Value, &g.Label, &g.Status, &g.GradedBy, &g.Note, &g.GradedAt, &g.UpdatedAt)
	if comp.Valid {
		g.ComponentID = &comp.Int64
	}
	return g, err
}

func (s *SQLStore) InsertGrade(ctx context.Context, g Grade) (Grade, error) {
	now := time.Now().Unix()
	g.GradedAt, g.UpdatedAt = now, now
	var comp sql.NullInt64
	if g.ComponentID != nil {
		comp = sql.NullInt64{Int64: *g.ComponentID, Valid: true}
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO grades (enrollment_id, exam_id, component_id, points, percentage,
		   grade_value, grade_label, status, graded_by, note, graded_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		g.EnrollmentID, g.ExamID, comp, g.Points, g.Percentage,
		g.Value, g.Label, g.Status, g.GradedBy, g.Note, g.GradedAt, g.UpdatedAt).Scan(&g.ID)
	if err != nil {
		return Grade{}, err
	}
	return g, nil
}

func (s *SQLStore) UpdateGrade(ctx context.Context, g Grade) (Grade, error) {
	g.UpdatedAt = time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE grades SET points=$1, percentage=$2, grade_value=$3, grade_label=$4,
		   status=$5, graded_by=$6, note=$7, updated_at=$8
		 WHERE id=$9`,
		g.Points, g.Percentage, g.Value, g.Label,
		g.Status, g.GradedBy, g.Note, g.UpdatedAt, g.ID)
	if err != nil {
		return Grade{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Grade{}, fmt.Errorf("grade %d: %w", g.ID, ErrNotFound)
	}
	return s.GetGrade(ctx, g.ID)
}

func (s *SQLStore) GetGrade(ctx context.Context, id int64) (Grade, error) {
	g, err := scanGrade(s.db.QueryRowContext(ctx,
		`SELECT `+gradeCols+` FROM grades WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Grade{}, fmt.Errorf("grade %d: %w", id, ErrNotFound)
	}
	return g, err
}

func (s *SQLStore) FindGrade(ctx context.Context, enrollmentID, examID int64, componentID *int64) (Grade, error) {
	var (
		g   Grade
		err error
	)
	if componentID == nil {
		g, err = scanGrade(s.db.QueryRowContext(ctx,
			`SELECT `+gradeCols+` FROM grades
			 WHERE enrollment_id=$1 AND exam_id=$2 AND component_id IS NULL`,
			enrollmentID, examID))
	} else {
		g, err = scanGrade(s.db.QueryRowContext(ctx,
			`SELECT `+gradeCols+` FROM grades
			 WHERE enrollment_id=$1 AND exam_id=$2 AND component_id=$3`,
			enrollmentID, examID, *componentID))
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Grade{}, fmt.Errorf("grade for enrollment %d on exam %d: %w", enrollmentID, examID, ErrNotFound)
	}
	return g, err
}

func (s *SQLStore) ListGrades(ctx context.Context, opts GradeListOpts) ([]Grade, error) {
	q := `SELECT ` + gradeCols + ` FROM grades WHERE 1=1`
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if opts.ExamID > 0 {
		q += " AND exam_id = " + arg(opts.ExamID)
	}
	if opts.EnrollmentID > 0 {
		q += " AND enrollment_id = " + arg(opts.EnrollmentID)
	}
	if opts.ComponentID > 0 {
		q += " AND component_id = " + arg(opts.ComponentID)
	} else if opts.ExamLevel {
		q += " AND component_id IS NULL"
	}
	if opts.Status != "" {
		q += " AND status = " + arg(opts.Status)
	}
	q += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Grade
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteGrade(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM grades WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("grade %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) CreateScale(ctx context.Context, rec ScaleRecord) (ScaleRecord, error) {
	if err := rec.Validate(); err != nil {
		return ScaleRecord{}, err
	}
	rec.Name = strings.ToLower(strings.TrimSpace(rec.Name))
	if _, err := s.FindScaleByName(ctx, rec.Name); err == nil {
		return ScaleRecord{}, fmt.Errorf("scale %s: %w", rec.Name, ErrDuplicate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ScaleRecord{}, err
	}
	defer tx.Rollback()

	isDefault := 0
	if rec.IsDefault {
		isDefault = 1
	}
	var uid sql.NullInt64
	if rec.UniversityID > 0 {
		uid = sql.NullInt64{Int64: rec.UniversityID, Valid: true}
	}
	// at most one default per university scope
	if rec.IsDefault {
		demote := `UPDATE grading_scales SET is_default=0 WHERE is_default=1 AND university_id IS NULL`
		args := []any{}
		if uid.Valid {
			demote = `UPDATE grading_scales SET is_default=0 WHERE is_default=1 AND university_id=$1`
			args = append(args, uid.Int64)
		}
		if _, err := tx.ExecContext(ctx, demote, args...); err != nil {
			return ScaleRecord{}, err
		}
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO grading_scales (university_id, name, is_default) VALUES ($1,$2,$3) RETURNING id`,
		uid, rec.Name, isDefault).Scan(&rec.ID)
	if err != nil {
		return ScaleRecord{}, err
	}
	for _, th := range rec.Thresholds {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grade_thresholds (scale_id, grade_value, label, min_percent) VALUES ($1,$2,$3,$4)`,
			rec.ID, th.Value, th.Label, th.MinPercent); err != nil {
			return ScaleRecord{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return ScaleRecord{}, err
	}
	return rec, nil
}

func (s *SQLStore) GetScale(ctx context.Context, id int64) (ScaleRecord, error) {
	var rec ScaleRecord
	var isDefault int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(university_id, 0), name, is_default FROM grading_scales WHERE id=$1`, id).
		Scan(&rec.ID, &rec.UniversityID, &rec.Name, &isDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return ScaleRecord{}, fmt.Errorf("scale %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ScaleRecord{}, err
	}
	rec.IsDefault = isDefault != 0
	rec.Thresholds, err = s.thresholds(ctx, rec.ID)
	return rec, err
}

func (s *SQLStore) FindScaleByName(ctx context.Context, name string) (ScaleRecord, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM grading_scales WHERE name=$1`, strings.ToLower(strings.TrimSpace(name))).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ScaleRecord{}, fmt.Errorf("scale %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return ScaleRecord{}, err
	}
	return s.GetScale(ctx, id)
}

func (s *SQLStore) ListScales(ctx context.Context, universityID int64) ([]ScaleRecord, error) {
	q := `SELECT id FROM grading_scales`
	args := []any{}
	if universityID > 0 {
		q += ` WHERE university_id=$1 OR university_id IS NULL`
		args = append(args, universityID)
	}
	q += ` ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]ScaleRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetScale(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLStore) thresholds(ctx context.Context, scaleID int64) ([]grading.Threshold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT grade_value, label, min_percent FROM grade_thresholds
		 WHERE scale_id=$1 ORDER BY min_percent DESC`, scaleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []grading.Threshold
	for rows.Next() {
		var th grading.Threshold
		if err := rows.Scan(&th.Value, &th.Label, &th.MinPercent); err != nil {
			return nil, err
		}
		out = append(out, th)
	}
	return out, rows.Err()
}
