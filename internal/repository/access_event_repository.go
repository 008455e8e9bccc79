package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-seb/internal/model"
)

// AccessEventRepository stores the access-prevented audit trail.
type AccessEventRepository struct {
	pool *pgxpool.Pool
}

// NewAccessEventRepository creates a new AccessEventRepository.
func NewAccessEventRepository(pool *pgxpool.Pool) *AccessEventRepository {
	return &AccessEventRepository{pool: pool}
}

// Insert stores an event. Replays of the same id are ignored.
func (r *AccessEventRepository) Insert(ctx context.Context, e *model.AccessEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO seb_access_events (id, user_id, quiz_id, cmid, reason,
			config_key_hash_present, browser_key_hash_present, ip, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.UserID, e.QuizID, e.CMID, string(e.Reason),
		e.ConfigKeyHashPresent, e.BrowserKeyHashPresent, e.IP, e.CreatedAt,
	)
	return err
}

// ListByCMID returns the most recent events of a module, newest first.
func (r *AccessEventRepository) ListByCMID(ctx context.Context, cmid int64, limit int) ([]model.AccessEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, quiz_id, cmid, reason, config_key_hash_present,
		        browser_key_hash_present, ip, created_at
		 FROM seb_access_events WHERE cmid = $1
		 ORDER BY created_at DESC LIMIT $2`, cmid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.AccessEvent
	for rows.Next() {
		var e model.AccessEvent
		var reason string
		if err := rows.Scan(&e.ID, &e.UserID, &e.QuizID, &e.CMID, &reason, &e.ConfigKeyHashPresent,
			&e.BrowserKeyHashPresent, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reason = model.DenyReason(reason)
		events = append(events, e)
	}
	return events, rows.Err()
}
