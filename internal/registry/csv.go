package registry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// studentRow is the CSV wire format for roster import and export.
type studentRow struct {
	FirstName string `csv:"first_name"`
	LastName  string `csv:"last_name"`
	StudentID string `csv:"student_id"`
	Email     string `csv:"email"`
	Program   string `csv:"program"`
}

type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type ImportReport struct {
	Created int        `json:"created"`
	Errors  []RowError `json:"errors,omitempty"`
}

func (r ImportReport) Total() int { return r.Created + len(r.Errors) }

// ImportStudentsCSV reads a roster file and creates one student per row.
// Rows that fail validation or collide with existing records are reported
// with their line number instead of aborting the batch. Line 1 is the header.
func ImportStudentsCSV(ctx context.Context, store Store, universityID int64, r io.Reader) (ImportReport, error) {
	var rows []studentRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return ImportReport{}, fmt.Errorf("parse roster csv: %w", err)
	}

	var report ImportReport
	seenID := map[string]int{}
	seenMail := map[string]int{}
	for i, row := range rows {
		line := i + 2
		st := Student{
			FirstName:    strings.TrimSpace(row.FirstName),
			LastName:     strings.TrimSpace(row.LastName),
			StudentID:    strings.TrimSpace(row.StudentID),
			Email:        strings.ToLower(strings.TrimSpace(row.Email)),
			Program:      strings.TrimSpace(row.Program),
			UniversityID: universityID,
		}
		if prev, ok := seenID[st.StudentID]; ok {
			report.Errors = append(report.Errors, RowError{
				Line:    line,
				Message: fmt.Sprintf("duplicate student_id %s (first seen on line %d)", st.StudentID, prev),
			})
			continue
		}
		if prev, ok := seenMail[st.Email]; ok && st.Email != "" {
			report.Errors = append(report.Errors, RowError{
				Line:    line,
				Message: fmt.Sprintf("duplicate email %s (first seen on line %d)", st.Email, prev),
			})
			continue
		}
		if _, err := store.CreateStudent(ctx, st); err != nil {
			report.Errors = append(report.Errors, RowError{Line: line, Message: err.Error()})
			continue
		}
		seenID[st.StudentID] = line
		seenMail[st.Email] = line
		report.Created++
	}
	return report, nil
}

// ExportStudentsCSV writes the roster in the same column layout the
// importer accepts, so a round trip reproduces the file.
func ExportStudentsCSV(ctx context.Context, store Store, opts StudentListOpts, w io.Writer) error {
	students, err := store.ListStudents(ctx, opts)
	if err != nil {
		return err
	}
	rows := make([]studentRow, 0, len(students))
	for _, st := range students {
		rows = append(rows, studentRow{
			FirstName: st.FirstName,
			LastName:  st.LastName,
			StudentID: st.StudentID,
			Email:     st.Email,
			Program:   st.Program,
		})
	}
	return gocsv.Marshal(&rows, w)
}
