package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/notenwerk/notenwerk/internal/match"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) CreateUniversity(ctx context.Context, u University) (University, error) {
	if strings.TrimSpace(u.Name) == "" {
		return University{}, fmt.Errorf("university name must not be empty: %w", ErrInvalid)
	}
	if u.Slug == "" {
		u.Slug = Slugify(u.Name)
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM universities WHERE name=$1 OR slug=$2`, u.Name, u.Slug).Scan(&exists)
	if err == nil {
		return University{}, fmt.Errorf("university %q: %w", u.Name, ErrDuplicate)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return University{}, err
	}
	u.CreatedAt = time.Now().Unix()
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO universities (name, slug, city, created_at) VALUES ($1,$2,$3,$4) RETURNING id`,
		u.Name, u.Slug, u.City, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		return University{}, err
	}
	return u, nil
}

func (s *SQLStore) GetUniversity(ctx context.Context, id int64) (University, error) {
	var u University
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, city, created_at FROM universities WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Slug, &u.City, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return University{}, fmt.Errorf("university %d: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *SQLStore) ListUniversities(ctx context.Context) ([]University, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, slug, city, created_at FROM universities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []University
	for rows.Next() {
		var u University
		if err := rows.Scan(&u.ID, &u.Name, &u.Slug, &u.City, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateStudent(ctx context.Context, st Student) (Student, error) {
	if err := st.Validate(); err != nil {
		return Student{}, err
	}
	st.Email = strings.ToLower(st.Email)
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM students WHERE student_id=$1 OR email=$2`, st.StudentID, st.Email).Scan(&exists)
	if err == nil {
		return Student{}, fmt.Errorf("student %s: %w", st.StudentID, ErrDuplicate)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Student{}, err
	}
	st.CreatedAt = time.Now().Unix()
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO students (first_name, last_name, student_id, email, program, university_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		st.FirstName, st.LastName, st.StudentID, st.Email, st.Program,
		nullableID(st.UniversityID), st.CreatedAt).Scan(&st.ID)
	if err != nil {
		return Student{}, err
	}
	return st, nil
}

func (s *SQLStore) UpdateStudent(ctx context.Context, st Student) (Student, error) {
	if err := st.Validate(); err != nil {
		return Student{}, err
	}
	st.Email = strings.ToLower(st.Email)
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET first_name=$1, last_name=$2, student_id=$3, email=$4, program=$5, university_id=$6
		 WHERE id=$7 AND deleted_at IS NULL`,
		st.FirstName, st.LastName, st.StudentID, st.Email, st.Program,
		nullableID(st.UniversityID), st.ID)
	if err != nil {
		return Student{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Student{}, fmt.Errorf("student %d: %w", st.ID, ErrNotFound)
	}
	return s.GetStudent(ctx, st.ID)
}

const studentCols = `id, first_name, last_name, student_id, email, program,
	COALESCE(university_id, 0), created_at, deleted_at`

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var st Student
	var deleted sql.NullInt64
	err := row.Scan(&st.ID, &st.FirstName, &st.LastName, &st.StudentID, &st.Email,
		&st.Program, &st.UniversityID, &st.CreatedAt, &deleted)
	if deleted.Valid {
		st.DeletedAt = &deleted.Int64
	}
	return st, err
}

func (s *SQLStore) GetStudent(ctx context.Context, id int64) (Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE id=$1 AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, fmt.Errorf("student %d: %w", id, ErrNotFound)
	}
	return st, err
}

func (s *SQLStore) GetStudentByRegistryNumber(ctx context.Context, studentID string) (Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE student_id=$1 AND deleted_at IS NULL`, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	return st, err
}

func (s *SQLStore) ListStudents(ctx context.Context, opts StudentListOpts) ([]Student, error) {
	q := `SELECT ` + studentCols + ` FROM students WHERE 1=1`
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if !opts.IncludeDeleted {
		q += " AND deleted_at IS NULL"
	}
	if opts.UniversityID > 0 {
		q += " AND university_id = " + arg(opts.UniversityID)
	}
	if opts.Q != "" {
		needle := "%" + strings.ToLower(opts.Q) + "%"
		q += " AND (LOWER(first_name || ' ' || last_name) LIKE " + arg(needle) +
			" OR student_id LIKE " + arg(needle) +
			" OR LOWER(email) LIKE " + arg(needle) + ")"
	}
	q += " ORDER BY last_name, first_name"
	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q += " LIMIT " + arg(limit)
	if opts.Offset > 0 {
		q += " OFFSET " + arg(opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLStore) SoftDeleteStudent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET deleted_at=$1 WHERE id=$2 AND deleted_at IS NULL`,
		time.Now().Unix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("student %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) CreateCourse(ctx context.Context, c Course) (Course, error) {
	if err := c.Validate(); err != nil {
		return Course{}, err
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	if c.ScaleKey == "" {
		c.ScaleKey = "german"
	}
	if _, err := s.GetUniversity(ctx, c.UniversityID); err != nil {
		return Course{}, err
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM courses WHERE university_id=$1 AND slug=$2 AND semester=$3`,
		c.UniversityID, c.Slug, c.Semester).Scan(&exists)
	if err == nil {
		return Course{}, fmt.Errorf("course %s (%s): %w", c.Slug, c.Semester, ErrDuplicate)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Course{}, err
	}
	c.CreatedAt = time.Now().Unix()
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO courses (university_id, name, slug, semester, scale_key, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		c.UniversityID, c.Name, c.Slug, c.Semester, c.ScaleKey, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

func (s *SQLStore) GetCourse(ctx context.Context, id int64) (Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx,
		`SELECT id, university_id, name, slug, semester, scale_key, created_at
		 FROM courses WHERE id=$1`, id).
		Scan(&c.ID, &c.UniversityID, &c.Name, &c.Slug, &c.Semester, &c.ScaleKey, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, fmt.Errorf("course %d: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *SQLStore) ListCourses(ctx context.Context, universityID int64) ([]Course, error) {
	q := `SELECT id, university_id, name, slug, semester, scale_key, created_at FROM courses`
	args := []any{}
	if universityID > 0 {
		q += ` WHERE university_id=$1`
		args = append(args, universityID)
	}
	q += ` ORDER BY semester DESC, name`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.UniversityID, &c.Name, &c.Slug, &c.Semester, &c.ScaleKey, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) Enroll(ctx context.Context, studentID, courseID int64) (Enrollment, error) {
	if _, err := s.GetStudent(ctx, studentID); err != nil {
		return Enrollment{}, err
	}
	if _, err := s.GetCourse(ctx, courseID); err != nil {
		return Enrollment{}, err
	}
	now := time.Now().Unix()

	var id int64
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status FROM enrollments WHERE student_id=$1 AND course_id=$2`,
		studentID, courseID).Scan(&id, &status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		e := Enrollment{StudentID: studentID, CourseID: courseID, Status: EnrollmentActive,
			EnrolledAt: now, UpdatedAt: now}
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO enrollments (student_id, course_id, status, enrolled_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			e.StudentID, e.CourseID, e.Status, e.EnrolledAt, e.UpdatedAt).Scan(&e.ID)
		if err != nil {
			return Enrollment{}, err
		}
		return e, nil
	case err != nil:
		return Enrollment{}, err
	case status == EnrollmentActive:
		return Enrollment{}, fmt.Errorf("student %d in course %d: %w", studentID, courseID, ErrAlreadyEnrolled)
	default:
		// dropped or completed: re-activate instead of violating the pair constraint
		if _, err := s.db.ExecContext(ctx,
			`UPDATE enrollments SET status=$1, updated_at=$2 WHERE id=$3`,
			EnrollmentActive, now, id); err != nil {
			return Enrollment{}, err
		}
		return s.GetEnrollment(ctx, id)
	}
}

func (s *SQLStore) UpdateEnrollmentStatus(ctx context.Context, id int64, status string) (Enrollment, error) {
	if !ValidEnrollmentStatus(status) {
		return Enrollment{}, fmt.Errorf("enrollment status %q: %w", status, ErrInvalid)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrollments SET status=$1, updated_at=$2 WHERE id=$3`,
		status, time.Now().Unix(), id)
	if err != nil {
		return Enrollment{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Enrollment{}, fmt.Errorf("enrollment %d: %w", id, ErrNotFound)
	}
	return s.GetEnrollment(ctx, id)
}

func (s *SQLStore) GetEnrollment(ctx context.Context, id int64) (Enrollment, error) {
	var e Enrollment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, course_id, status, enrolled_at, updated_at
		 FROM enrollments WHERE id=$1`, id).
		Scan(&e.ID, &e.StudentID, &e.CourseID, &e.Status, &e.EnrolledAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, fmt.Errorf("enrollment %d: %w", id, ErrNotFound)
	}
	return e, err
}

func (s *SQLStore) ListEnrollments(ctx context.Context, courseID int64, status string) ([]Enrollment, error) {
	q := `SELECT id, student_id, course_id, status, enrolled_at, updated_at
	      FROM enrollments WHERE course_id=$1`
	args := []any{courseID}
	if status != "" {
		q += ` AND status=$2`
		args = append(args, status)
	}
	q += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.ID, &e.StudentID, &e.CourseID, &e.Status, &e.EnrolledAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Candidates(ctx context.Context, courseID int64) ([]match.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.status, s.student_id, s.email, s.first_name, s.last_name
		 FROM enrollments e
		 JOIN students s ON s.id = e.student_id
		 WHERE e.course_id=$1 AND e.status=$2 AND s.deleted_at IS NULL
		 ORDER BY e.id`, courseID, EnrollmentActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []match.Candidate
	for rows.Next() {
		var c match.Candidate
		if err := rows.Scan(&c.EnrollmentID, &c.Status, &c.StudentID, &c.Email, &c.FirstName, &c.LastName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// nullableID maps 0 to NULL for optional foreign keys.
func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
