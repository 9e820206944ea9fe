package http

import (
	"net/http"
	"strconv"

	"github.com/notenwerk/notenwerk/internal/ingest"
	"github.com/notenwerk/notenwerk/internal/mailparse"
)

func formInt(r *http.Request, name string) int64 {
	n, _ := strconv.ParseInt(r.FormValue(name), 10, 64)
	return n
}

func formBool(r *http.Request, name string) bool {
	switch r.FormValue(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func formOptID(r *http.Request, name string) (*int64, bool) {
	v := r.FormValue(name)
	if v == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// POST /courses/{id}/import/emails takes an .eml or .mbox file and matches
// every message to an enrolled student.
func ImportEmailsHandler(svc *ingest.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "bad multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()
		msgs, err := mailparse.ReadArchive(f)
		if err != nil {
			http.Error(w, "read archive: "+err.Error(), http.StatusBadRequest)
			return
		}
		examID, ok := formOptID(r, "exam_id")
		if !ok {
			http.Error(w, "exam_id must be numeric", http.StatusBadRequest)
			return
		}
		report, err := svc.ImportEmails(r.Context(), ingest.EmailImport{
			CourseID: courseID,
			ExamID:   examID,
			Messages: msgs,
			DryRun:   formBool(r, "dry_run"),
			Actor:    actorOf(r),
		})
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, report)
	}
}

// POST /courses/{id}/reconcile matches a batch of uploaded files against the
// course roster and stores what it can attribute.
func ReconcileUploadsHandler(svc *ingest.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID, err := urlID(r, "id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "bad multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		files, err := formFiles(r)
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		uploads := make([]ingest.Upload, 0, len(files))
		for _, f := range files {
			uploads = append(uploads, ingest.Upload{Name: f.Name, MIMEType: f.MIMEType, Data: f.Data})
		}
		examID, ok := formOptID(r, "exam_id")
		if !ok {
			http.Error(w, "exam_id must be numeric", http.StatusBadRequest)
			return
		}
		report, err := svc.ReconcileUploads(r.Context(), ingest.UploadBatch{
			CourseID: courseID,
			ExamID:   examID,
			Kind:     r.FormValue("kind"),
			Files:    uploads,
			DryRun:   formBool(r, "dry_run"),
			Actor:    actorOf(r),
		})
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, report)
	}
}
