package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/notenwerk/notenwerk/internal/audit"
	"github.com/notenwerk/notenwerk/internal/config"
	"github.com/notenwerk/notenwerk/internal/db"
	"github.com/notenwerk/notenwerk/internal/exam"
	"github.com/notenwerk/notenwerk/internal/grading"
	"github.com/notenwerk/notenwerk/internal/ingest"
	"github.com/notenwerk/notenwerk/internal/mailparse"
	"github.com/notenwerk/notenwerk/internal/match"
	"github.com/notenwerk/notenwerk/internal/registry"
	"github.com/notenwerk/notenwerk/internal/storage"
	"github.com/notenwerk/notenwerk/internal/submission"
)

func usage() {
	fmt.Fprint(os.Stderr, `notenctl - notenwerk administration tool

Usage:
  notenctl students import -university N -file roster.csv
  notenctl students export [-university N] [-q text] [-out students.csv]
  notenctl students list [-university N] [-q text]
  notenctl courses list [-university N]
  notenctl emails import -course N [-exam N] -file inbox.mbox [-dry-run]
  notenctl emails parse -file inbox.mbox
  notenctl uploads reconcile -course N [-exam N] [-kind kind] -dir ./scans [-dry-run]
  notenctl grades stats -exam N
  notenctl grades average -enrollment N [-partial] [-provisional]
  notenctl scales init
`)
	os.Exit(2)
}

type app struct {
	reg    *registry.Service
	exams  *exam.SQLStore
	grades *exam.Service
	ingest *ingest.Service
}

func newApp(ctx context.Context, cfg config.Config) *app {
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	blobs, err := storage.NewFSStore(cfg.UploadBase)
	if err != nil {
		log.Fatalf("upload store: %v", err)
	}
	trail := audit.NewRecorder(dbh)
	reg := registry.NewService(registry.NewSQLStore(dbh, cfg.DBDriver), trail)
	exams := exam.NewSQLStore(dbh, cfg.DBDriver)
	gradeSvc := exam.NewService(exams, reg, trail)
	if err := gradeSvc.LoadScales(ctx); err != nil {
		log.Fatalf("load scales: %v", err)
	}
	subSvc := submission.NewService(submission.NewSQLStore(dbh, cfg.DBDriver), blobs, reg, trail)
	engine := match.NewEngine(
		match.WithThreshold(cfg.MatchThreshold),
		match.WithMargin(cfg.MatchMargin),
	)
	return &app{
		reg:    reg,
		exams:  exams,
		grades: gradeSvc,
		ingest: ingest.NewService(reg, subSvc, engine, trail),
	}
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 3 {
		usage()
	}
	cmd := os.Args[1] + " " + os.Args[2]
	if cmd == "emails parse" {
		// inspection only, no database
		emailsParse(os.Args[3:])
		return
	}
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = audit.WithActor(ctx, "cli")
	a := newApp(ctx, cfg)

	switch cmd {
	case "students import":
		a.studentsImport(ctx, os.Args[3:])
	case "students export":
		a.studentsExport(ctx, os.Args[3:])
	case "students list":
		a.studentsList(ctx, os.Args[3:])
	case "courses list":
		a.coursesList(ctx, os.Args[3:])
	case "emails import":
		a.emailsImport(ctx, os.Args[3:])
	case "uploads reconcile":
		a.uploadsReconcile(ctx, os.Args[3:])
	case "grades stats":
		a.gradesStats(ctx, os.Args[3:])
	case "grades average":
		a.gradesAverage(ctx, os.Args[3:])
	case "scales init":
		a.scalesInit(ctx, os.Args[3:])
	default:
		usage()
	}
}

func (a *app) studentsImport(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("students import", flag.ExitOnError)
	university := fs.Int64("university", 0, "university id the roster belongs to")
	file := fs.String("file", "", "roster csv (first_name,last_name,student_id,email,program)")
	actor := fs.String("actor", "cli", "name recorded in the audit trail")
	_ = fs.Parse(args)
	if *university <= 0 || *file == "" {
		fs.Usage()
		os.Exit(2)
	}
	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open roster: %v", err)
	}
	defer f.Close()
	report, err := registry.ImportStudentsCSV(audit.WithActor(ctx, *actor), a.reg, *university, f)
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	fmt.Printf("%d of %d rows imported\n", report.Created, report.Total())
	if len(report.Errors) > 0 {
		table := tablewriter.NewTable(os.Stdout)
		table.Header("Line", "Problem")
		for _, e := range report.Errors {
			_ = table.Append(fmt.Sprint(e.Line), e.Message)
		}
		_ = table.Render()
		os.Exit(1)
	}
}

func (a *app) studentsExport(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("students export", flag.ExitOnError)
	university := fs.Int64("university", 0, "restrict to one university")
	q := fs.String("q", "", "name, registry number or email filter")
	out := fs.String("out", "", "write to file instead of stdout")
	_ = fs.Parse(args)
	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}
	opts := registry.StudentListOpts{UniversityID: *university, Q: *q}
	if err := registry.ExportStudentsCSV(ctx, a.reg, opts, w); err != nil {
		log.Fatalf("export: %v", err)
	}
}

func (a *app) studentsList(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("students list", flag.ExitOnError)
	university := fs.Int64("university", 0, "restrict to one university")
	q := fs.String("q", "", "name, registry number or email filter")
	_ = fs.Parse(args)
	students, err := a.reg.ListStudents(ctx, registry.StudentListOpts{
		UniversityID: *university, Q: *q,
	})
	if err != nil {
		log.Fatalf("list students: %v", err)
	}
	table := tablewriter.NewTable(os.Stdout)
	table.Header("ID", "Name", "Matrikelnr", "Email", "Program")
	for _, st := range students {
		_ = table.Append(fmt.Sprint(st.ID), st.LastName+", "+st.FirstName,
			st.StudentID, st.Email, st.Program)
	}
	_ = table.Render()
}

func (a *app) coursesList(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("courses list", flag.ExitOnError)
	university := fs.Int64("university", 0, "restrict to one university")
	_ = fs.Parse(args)
	courses, err := a.reg.ListCourses(ctx, *university)
	if err != nil {
		log.Fatalf("list courses: %v", err)
	}
	table := tablewriter.NewTable(os.Stdout)
	table.Header("ID", "Course", "Semester", "Scale")
	for _, c := range courses {
		_ = table.Append(fmt.Sprint(c.ID), c.Name, c.Semester, c.ScaleKey)
	}
	_ = table.Render()
}

func (a *app) emailsImport(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("emails import", flag.ExitOnError)
	course := fs.Int64("course", 0, "course id")
	examID := fs.Int64("exam", 0, "exam the submissions belong to")
	file := fs.String("file", "", "mbox archive or single .eml file")
	dryRun := fs.Bool("dry-run", false, "match only, store nothing")
	actor := fs.String("actor", "cli", "name recorded in the audit trail")
	_ = fs.Parse(args)
	if *course <= 0 || *file == "" {
		fs.Usage()
		os.Exit(2)
	}
	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open mailbox: %v", err)
	}
	defer f.Close()
	msgs, err := mailparse.ReadArchive(f)
	if err != nil {
		log.Fatalf("read mailbox: %v", err)
	}
	report, err := a.ingest.ImportEmails(ctx, ingest.EmailImport{
		CourseID: *course,
		ExamID:   optID(*examID),
		Messages: msgs,
		DryRun:   *dryRun,
		Actor:    *actor,
	})
	if err != nil {
		log.Fatalf("import emails: %v", err)
	}
	renderReport(report)
}

func emailsParse(args []string) {
	fs := flag.NewFlagSet("emails parse", flag.ExitOnError)
	file := fs.String("file", "", "mbox archive or single .eml file")
	_ = fs.Parse(args)
	if *file == "" {
		fs.Usage()
		os.Exit(2)
	}
	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open mailbox: %v", err)
	}
	defer f.Close()
	entries, err := mailparse.ReadArchive(f)
	if err != nil {
		log.Fatalf("read mailbox: %v", err)
	}
	table := tablewriter.NewTable(os.Stdout)
	table.Header("From", "Subject", "Attachments", "Error")
	failed := 0
	for _, e := range entries {
		if e.Err != nil {
			failed++
			_ = table.Append("", "", "", e.Err.Error())
			continue
		}
		names := make([]string, 0, len(e.Message.Attachments))
		for _, att := range e.Message.Attachments {
			names = append(names, att.Filename)
		}
		_ = table.Append(e.Message.SenderAddr, e.Message.Subject, strings.Join(names, ", "), "")
	}
	_ = table.Render()
	fmt.Printf("%d messages, %d unparseable\n", len(entries), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func (a *app) uploadsReconcile(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("uploads reconcile", flag.ExitOnError)
	course := fs.Int64("course", 0, "course id")
	examID := fs.Int64("exam", 0, "exam the files belong to")
	kind := fs.String("kind", "", "submission kind, defaults by exam")
	dir := fs.String("dir", "", "directory of hand-in files")
	dryRun := fs.Bool("dry-run", false, "match only, store nothing")
	actor := fs.String("actor", "cli", "name recorded in the audit trail")
	_ = fs.Parse(args)
	if *course <= 0 || *dir == "" {
		fs.Usage()
		os.Exit(2)
	}
	files, err := ingest.ReadUploadDir(*dir)
	if err != nil {
		log.Fatalf("read %s: %v", *dir, err)
	}
	if len(files) == 0 {
		log.Fatalf("no files in %s", *dir)
	}
	report, err := a.ingest.ReconcileUploads(ctx, ingest.UploadBatch{
		CourseID: *course,
		ExamID:   optID(*examID),
		Kind:     *kind,
		Files:    files,
		DryRun:   *dryRun,
		Actor:    *actor,
	})
	if err != nil {
		log.Fatalf("reconcile: %v", err)
	}
	renderReport(report)
}

func (a *app) gradesStats(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("grades stats", flag.ExitOnError)
	examID := fs.Int64("exam", 0, "exam id")
	_ = fs.Parse(args)
	if *examID <= 0 {
		fs.Usage()
		os.Exit(2)
	}
	stats, err := a.grades.ExamStatistics(ctx, *examID)
	if err != nil {
		log.Fatalf("statistics: %v", err)
	}
	s := stats.Summary
	table := tablewriter.NewTable(os.Stdout)
	table.Header("Count", "Mean", "Median", "Min", "Max", "Passed", "Failed")
	_ = table.Append(fmt.Sprint(s.Count),
		fmt.Sprintf("%.1f%%", s.Mean), fmt.Sprintf("%.1f%%", s.Median),
		fmt.Sprintf("%.1f%%", s.Min), fmt.Sprintf("%.1f%%", s.Max),
		fmt.Sprint(s.Passed), fmt.Sprint(s.Failed))
	_ = table.Render()

	values := make([]string, 0, len(stats.Distribution))
	for v := range stats.Distribution {
		values = append(values, v)
	}
	sort.Strings(values)
	dist := tablewriter.NewTable(os.Stdout)
	dist.Header("Grade", "Students")
	for _, v := range values {
		_ = dist.Append(v, fmt.Sprint(stats.Distribution[v]))
	}
	_ = dist.Render()
}

func (a *app) gradesAverage(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("grades average", flag.ExitOnError)
	enrollment := fs.Int64("enrollment", 0, "enrollment id")
	partial := fs.Bool("partial", false, "average over the graded share of the weights")
	provisional := fs.Bool("provisional", false, "preview including not yet finalized grades")
	_ = fs.Parse(args)
	if *enrollment <= 0 {
		fs.Usage()
		os.Exit(2)
	}
	rep, err := a.grades.CourseAverage(ctx, *enrollment, exam.AverageOpts{
		Partial:     *partial,
		Provisional: *provisional,
	})
	if err != nil {
		log.Fatalf("average: %v", err)
	}
	verdict := "bestanden"
	if !rep.Passing {
		verdict = "nicht bestanden"
	}
	fmt.Printf("%.2f%% -> %s (%s), %s\n", rep.Average, grading.FormatValue(rep.Value), rep.Label, verdict)
}

func (a *app) scalesInit(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("scales init", flag.ExitOnError)
	_ = fs.Parse(args)
	rec, err := a.grades.EnsureDefaultScale(ctx)
	if err != nil {
		log.Fatalf("seed scale: %v", err)
	}
	fmt.Printf("scale %q ready (%d thresholds)\n", rec.Name, len(rec.Thresholds))
}

func optID(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func renderReport(rep ingest.Report) {
	table := tablewriter.NewTable(os.Stdout)
	table.Header("Ref", "Status", "Student", "Strategy", "Conf", "Error")
	for _, it := range rep.Items {
		conf := ""
		if it.Confidence > 0 {
			conf = fmt.Sprintf("%.2f", it.Confidence)
		}
		_ = table.Append(it.Ref, string(it.Status), it.Student, string(it.Strategy), conf, it.Error)
	}
	_ = table.Render()
	fmt.Printf("%d items: %d stored, %d duplicates, %d ambiguous, %d unmatched, %d failed\n",
		rep.Total(), rep.Stored, rep.Duplicates, rep.Ambiguous, rep.Unmatched, rep.Failed)
	if rep.Failed > 0 {
		os.Exit(1)
	}
}
