package http

import (
	"net/http"

	"github.com/notenwerk/notenwerk/internal/audit"
)

// GET /audit?actor=&action=&entity=&entity_id=&since=&limit=
func SearchAuditHandler(rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		events, err := rec.Search(r.Context(), audit.SearchOpts{
			Actor:    q.Get("actor"),
			Action:   q.Get("action"),
			Entity:   q.Get("entity"),
			EntityID: q.Get("entity_id"),
			Since:    queryInt(r, "since"),
			Limit:    int(queryInt(r, "limit")),
		})
		if err != nil {
			fail(w, err)
			return
		}
		if events == nil {
			events = []audit.Event{}
		}
		respond(w, events)
	}
}
