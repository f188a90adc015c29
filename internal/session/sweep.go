package session

import (
	"context"
	"log/slog"
	"time"
)

// SweepExpired finds in-progress sessions past their deadline and submits
// each through the idempotent auto-submit path. Safe to run from multiple
// instances concurrently: the submit compare-and-swap resolves every race.
func (s *SQLStore) SweepExpired(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM exam_sessions
		WHERE status=$1 AND deadline > 0 AND deadline <= $2`,
		string(StatusInProgress), s.now().Unix())
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	submitted := 0
	for _, id := range ids {
		if _, err := s.AutoSubmit(ctx, id); err != nil {
			slog.Warn("auto-submit failed", "session", id, "error", err)
			continue
		}
		submitted++
	}
	return submitted, nil
}

// Sweeper periodically reclaims expired sessions. The server runs one
// in-process; deployments can also run `portald sweep` from cron.
type Sweeper struct {
	Store    *SQLStore
	Interval time.Duration
}

func (w *Sweeper) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := w.Store.SweepExpired(ctx)
			if err != nil {
				slog.Error("sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("swept expired sessions", "submitted", n)
			}
		}
	}
}
