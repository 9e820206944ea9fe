package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/notenwerk/notenwerk/internal/api/http"
	"github.com/notenwerk/notenwerk/internal/audit"
	"github.com/notenwerk/notenwerk/internal/config"
	"github.com/notenwerk/notenwerk/internal/db"
	"github.com/notenwerk/notenwerk/internal/exam"
	"github.com/notenwerk/notenwerk/internal/ingest"
	"github.com/notenwerk/notenwerk/internal/match"
	"github.com/notenwerk/notenwerk/internal/registry"
	"github.com/notenwerk/notenwerk/internal/storage"
	"github.com/notenwerk/notenwerk/internal/submission"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.Load()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	trail := audit.NewRecorder(dbh)
	reg := registry.NewService(registry.NewSQLStore(dbh, cfg.DBDriver), trail)
	exams := exam.NewSQLStore(dbh, cfg.DBDriver)
	subs := submission.NewSQLStore(dbh, cfg.DBDriver)

	blobs, err := storage.NewFSStore(cfg.UploadBase)
	if err != nil {
		log.Fatalf("upload store: %v", err)
	}

	// --- Services ---
	gradeSvc := exam.NewService(exams, reg, trail)
	subSvc := submission.NewService(subs, blobs, reg, trail)
	engine := match.NewEngine(
		match.WithThreshold(cfg.MatchThreshold),
		match.WithMargin(cfg.MatchMargin),
	)
	ingSvc := ingest.NewService(reg, subSvc, engine, trail)

	if cfg.SeedDefaultScale {
		if _, err := gradeSvc.EnsureDefaultScale(ctx); err != nil {
			log.Fatalf("seed default scale: %v", err)
		}
	}
	if err := gradeSvc.LoadScales(ctx); err != nil {
		log.Fatalf("load scales: %v", err)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Actor"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		Registry:    reg,
		Exams:       exams,
		Grades:      gradeSvc,
		Submissions: subSvc,
		Ingest:      ingSvc,
		Audit:       trail,
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
