package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notenwerk/notenwerk/internal/submission"
)

const maxUploadBytes = 64 << 20

// formFiles reads every part under the "files" field, falling back to a
// single "file" part.
func formFiles(r *http.Request) ([]submission.File, error) {
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	out := make([]submission.File, 0, len(headers))
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			return nil, err
		}
		data, err := readAll(f)
		if err != nil {
			return nil, err
		}
		out = append(out, submission.File{
			Name:     hdr.Filename,
			MIMEType: hdr.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return out, nil
}

func readAll(f multipart.File) ([]byte, error) {
	defer f.Close()
	return io.ReadAll(f)
}

// POST /submissions (multipart: enrollment_id, exam_id?, kind?, note?, files)
func CreateSubmissionHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "bad multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		enrollmentID := formInt(r, "enrollment_id")
		if enrollmentID <= 0 {
			http.Error(w, "enrollment_id required", http.StatusBadRequest)
			return
		}
		examID, ok := formOptID(r, "exam_id")
		if !ok {
			http.Error(w, "exam_id must be numeric", http.StatusBadRequest)
			return
		}
		files, err := formFiles(r)
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		sub, err := svc.Create(r.Context(), submission.CreateInput{
			EnrollmentID: enrollmentID,
			ExamID:       examID,
			Kind:         r.FormValue("kind"),
			Source:       "upload",
			Note:         r.FormValue("note"),
			Actor:        actorOf(r),
			Files:        files,
		})
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, sub)
	}
}

// POST /submissions/{id}/documents adds files to an existing submission.
func AttachDocumentsHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "bad multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		files, err := formFiles(r)
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(files) == 0 {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		sub, err := svc.Attach(r.Context(), chi.URLParam(r, "id"), files)
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, sub)
	}
}

func GetSubmissionHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, sub)
	}
}

func ListSubmissionsHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := svc.List(r.Context(), submission.ListOpts{
			EnrollmentID: queryInt(r, "enrollment_id"),
			ExamID:       queryInt(r, "exam_id"),
			Kind:         r.URL.Query().Get("kind"),
			Status:       r.URL.Query().Get("status"),
			Limit:        int(queryInt(r, "limit")),
		})
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, subs)
	}
}

// PATCH /submissions/{id}/status
func UpdateSubmissionStatusHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status" validate:"required"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sub, err := svc.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actorOf(r))
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, sub)
	}
}

// GET /documents/{id} streams the stored file.
func DownloadDocumentHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, rc, err := svc.OpenDocument(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, err)
			return
		}
		defer rc.Close()
		ct := doc.MIMEType
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
		_, _ = io.Copy(w, rc)
	}
}
