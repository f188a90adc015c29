package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Sink is the access-audit boundary. Writes are best-effort: implementations
// must never let an audit failure block the primary operation.
type Sink interface {
	UnauthorizedAccess(ctx context.Context, userID, action, resource, reason string)
}

type SQLSink struct{ db *sql.DB }

func NewSQLSink(db *sql.DB) *SQLSink { return &SQLSink{db: db} }

func (s *SQLSink) UnauthorizedAccess(ctx context.Context, userID, action, resource, reason string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_audit (user_id, action, resource, reason, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		userID, action, resource, reason, time.Now().Unix())
	if err != nil {
		slog.Warn("audit write failed", "user", userID, "action", action, "error", err)
	}
}

// Nop discards audit entries. Used in tests.
type Nop struct{}

func (Nop) UnauthorizedAccess(context.Context, string, string, string, string) {}
