// Package audit appends an immutable trail of who changed what. Writes are
// best effort: a failed audit insert is logged by the caller, it never
// rolls back the change it describes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one entry in the trail.
type Event struct {
	Seq       int64  `json:"seq"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Entity    string `json:"entity"`
	EntityID  string `json:"entity_id"`
	DataJSON  string `json:"data,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Actions recorded by the services.
const (
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionDelete    = "delete"
	ActionImport    = "import"
	ActionReconcile = "reconcile"
	ActionRegrade   = "regrade"
	ActionFinalize  = "finalize"
)

type actorKey struct{}

// WithActor stamps the acting user onto the context so layers without an
// explicit actor parameter can still attribute their writes.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom reads the acting user off the context, "system" if none was set.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "system"
}

type Recorder struct{ db *sql.DB }

func NewRecorder(db *sql.DB) *Recorder { return &Recorder{db: db} }

// Record appends one event. details is marshalled to JSON; nil means none.
func (r *Recorder) Record(ctx context.Context, actor, action, entity string, entityID any, details any) error {
	data := ""
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		data = string(b)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (actor, action, entity, entity_id, data, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		actor, action, entity, fmt.Sprint(entityID), data, time.Now().Unix())
	return err
}

// SearchOpts narrows a trail query. Zero values mean no filter.
type SearchOpts struct {
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Since    int64
	Limit    int
}

// Search returns events newest first.
func (r *Recorder) Search(ctx context.Context, opts SearchOpts) ([]Event, error) {
	q := `SELECT seq, actor, action, entity, entity_id, data, created_at FROM audit_log WHERE 1=1`
	args := []any{}
	n := 0
	add := func(cond string, v any) {
		n++
		q += fmt.Sprintf(" AND %s $%d", cond, n)
		args = append(args, v)
	}
	if opts.Actor != "" {
		add("actor =", opts.Actor)
	}
	if opts.Action != "" {
		add("action =", opts.Action)
	}
	if opts.Entity != "" {
		add("entity =", opts.Entity)
	}
	if opts.EntityID != "" {
		add("entity_id =", opts.EntityID)
	}
	if opts.Since > 0 {
		add("created_at >=", opts.Since)
	}
	q += " ORDER BY seq DESC"
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	n++
	q += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
