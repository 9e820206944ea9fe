package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:notenwerk.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/notenwerk?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS universities (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  slug TEXT NOT NULL UNIQUE,
  city TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  student_id TEXT NOT NULL UNIQUE,        -- eight-digit registry number
  email TEXT NOT NULL UNIQUE,
  program TEXT NOT NULL DEFAULT '',
  university_id INTEGER REFERENCES universities(id),
  created_at INTEGER NOT NULL,
  deleted_at INTEGER                       -- soft delete
);

CREATE TABLE IF NOT EXISTS courses (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  university_id INTEGER NOT NULL REFERENCES universities(id),
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  semester TEXT NOT NULL,                  -- e.g. 2025_SoSe
  scale_key TEXT NOT NULL DEFAULT 'german',
  created_at INTEGER NOT NULL,
  UNIQUE(university_id, slug, semester)
);

CREATE TABLE IF NOT EXISTS enrollments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  student_id INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
  course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  status TEXT NOT NULL DEFAULT 'active',   -- active | completed | dropped
  enrolled_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE(student_id, course_id)
);

CREATE TABLE IF NOT EXISTS exams (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  exam_date INTEGER,
  max_points REAL NOT NULL,
  weight REAL NOT NULL DEFAULT 1,          -- share of the course grade
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_components (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  max_points REAL NOT NULL,
  weight REAL NOT NULL,                    -- share of the exam grade
  position INTEGER NOT NULL DEFAULT 0,
  UNIQUE(exam_id, position)
);

CREATE TABLE IF NOT EXISTS grading_scales (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  university_id INTEGER REFERENCES universities(id),
  name TEXT NOT NULL,
  is_default INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS grade_thresholds (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  scale_id INTEGER NOT NULL REFERENCES grading_scales(id) ON DELETE CASCADE,
  grade_value REAL NOT NULL,
  label TEXT NOT NULL,
  min_percent REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS grades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  enrollment_id INTEGER NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  component_id INTEGER REFERENCES exam_components(id) ON DELETE CASCADE,
  points REAL NOT NULL,
  percentage REAL NOT NULL,
  grade_value REAL NOT NULL,
  grade_label TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'provisional',
  graded_by TEXT NOT NULL DEFAULT '',
  note TEXT NOT NULL DEFAULT '',
  graded_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  enrollment_id INTEGER NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  exam_id INTEGER REFERENCES exams(id) ON DELETE SET NULL,
  kind TEXT NOT NULL,                      -- document | assignment | exam_answer | email_attachment
  status TEXT NOT NULL DEFAULT 'submitted',
  source TEXT NOT NULL DEFAULT '',         -- file path or mailbox the item came from
  message_id TEXT NOT NULL DEFAULT '',
  note TEXT NOT NULL DEFAULT '',
  submitted_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  filename TEXT NOT NULL,
  original_name TEXT NOT NULL,
  blob_key TEXT NOT NULL,
  mime_type TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  uploaded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,    -- BIGSERIAL in Postgres
  actor TEXT NOT NULL DEFAULT '',
  action TEXT NOT NULL,                     -- e.g. regrade
  entity TEXT NOT NULL,                     -- e.g. grade
  entity_id TEXT NOT NULL,
  data TEXT NOT NULL DEFAULT '',            -- JSON payload
  created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_id);
CREATE INDEX IF NOT EXISTS idx_exams_course ON exams(course_id);
CREATE INDEX IF NOT EXISTS idx_grades_exam ON grades(exam_id);
CREATE INDEX IF NOT EXISTS idx_grades_enrollment ON grades(enrollment_id);
CREATE INDEX IF NOT EXISTS idx_submissions_enrollment ON submissions(enrollment_id);
CREATE INDEX IF NOT EXISTS idx_documents_submission ON documents(submission_id);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity, entity_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_message
  ON submissions(message_id) WHERE message_id <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_grades_component
  ON grades(enrollment_id, exam_id, component_id) WHERE component_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_grades_exam
  ON grades(enrollment_id, exam_id) WHERE component_id IS NULL;
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS universities (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  slug TEXT NOT NULL UNIQUE,
  city TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
  id BIGSERIAL PRIMARY KEY,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  student_id TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  program TEXT NOT NULL DEFAULT '',
  university_id BIGINT REFERENCES universities(id),
  created_at BIGINT NOT NULL,
  deleted_at BIGINT
);

CREATE TABLE IF NOT EXISTS courses (
  id BIGSERIAL PRIMARY KEY,
  university_id BIGINT NOT NULL REFERENCES universities(id),
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  semester TEXT NOT NULL,
  scale_key TEXT NOT NULL DEFAULT 'german',
  created_at BIGINT NOT NULL,
  UNIQUE(university_id, slug, semester)
);

CREATE TABLE IF NOT EXISTS enrollments (
  id BIGSERIAL PRIMARY KEY,
  student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
  course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  status TEXT NOT NULL DEFAULT 'active',
  enrolled_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  UNIQUE(student_id, course_id)
);

CREATE TABLE IF NOT EXISTS exams (
  id BIGSERIAL PRIMARY KEY,
  course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  exam_date BIGINT,
  max_points DOUBLE PRECISION NOT NULL,
  weight DOUBLE PRECISION NOT NULL DEFAULT 1,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_components (
  id BIGSERIAL PRIMARY KEY,
  exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  max_points DOUBLE PRECISION NOT NULL,
  weight DOUBLE PRECISION NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  UNIQUE(exam_id, position)
);

CREATE TABLE IF NOT EXISTS grading_scales (
  id BIGSERIAL PRIMARY KEY,
  university_id BIGINT REFERENCES universities(id),
  name TEXT NOT NULL,
  is_default INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS grade_thresholds (
  id BIGSERIAL PRIMARY KEY,
  scale_id BIGINT NOT NULL REFERENCES grading_scales(id) ON DELETE CASCADE,
  grade_value DOUBLE PRECISION NOT NULL,
  label TEXT NOT NULL,
  min_percent DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS grades (
  id BIGSERIAL PRIMARY KEY,
  enrollment_id BIGINT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  component_id BIGINT REFERENCES exam_components(id) ON DELETE CASCADE,
  points DOUBLE PRECISION NOT NULL,
  percentage DOUBLE PRECISION NOT NULL,
  grade_value DOUBLE PRECISION NOT NULL,
  grade_label TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'provisional',
  graded_by TEXT NOT NULL DEFAULT '',
  note TEXT NOT NULL DEFAULT '',
  graded_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  enrollment_id BIGINT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  exam_id BIGINT REFERENCES exams(id) ON DELETE SET NULL,
  kind TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'submitted',
  source TEXT NOT NULL DEFAULT '',
  message_id TEXT NOT NULL DEFAULT '',
  note TEXT NOT NULL DEFAULT '',
  submitted_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  filename TEXT NOT NULL,
  original_name TEXT NOT NULL,
  blob_key TEXT NOT NULL,
  mime_type TEXT NOT NULL DEFAULT '',
  size_bytes BIGINT NOT NULL DEFAULT 0,
  uploaded_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
  seq BIGSERIAL PRIMARY KEY,
  actor TEXT NOT NULL DEFAULT '',
  action TEXT NOT NULL,
  entity TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  data TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_id);
CREATE INDEX IF NOT EXISTS idx_exams_course ON exams(course_id);
CREATE INDEX IF NOT EXISTS idx_grades_exam ON grades(exam_id);
CREATE INDEX IF NOT EXISTS idx_grades_enrollment ON grades(enrollment_id);
CREATE INDEX IF NOT EXISTS idx_submissions_enrollment ON submissions(enrollment_id);
CREATE INDEX IF NOT EXISTS idx_documents_submission ON documents(submission_id);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity, entity_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_message
  ON submissions(message_id) WHERE message_id <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_grades_component
  ON grades(enrollment_id, exam_id, component_id) WHERE component_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_grades_exam
  ON grades(enrollment_id, exam_id) WHERE component_id IS NULL;
`
