package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"
)

// Event types published by the exam core. Consumers (realtime/notification
// layers) tail the event log; publishing is fire-and-forget and carries no
// correctness weight.
const (
	TypeSessionStarted   = "session.started"
	TypeSessionSubmitted = "session.submitted"
	TypeSessionGraded    = "session.graded"
	TypeTaskClaimed      = "grading_task.claimed"
	TypeTaskCompleted    = "grading_task.completed"
)

type Publisher interface {
	Publish(ctx context.Context, typ, key string, payload interface{})
}

type LogRepo struct{ db *sql.DB }

func NewLogRepo(db *sql.DB) *LogRepo { return &LogRepo{db: db} }

func (r *LogRepo) Publish(ctx context.Context, typ, key string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("event payload marshal failed", "type", typ, "error", err)
		return
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, string(data), time.Now().Unix())
	if err != nil {
		slog.Warn("event append failed", "type", typ, "key", key, "error", err)
	}
}

// Nop drops events. Used in tests.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, interface{}) {}
