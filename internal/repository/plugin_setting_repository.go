package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-seb/internal/model"
)

type PluginSettingRepository struct {
	pool *pgxpool.Pool
}

func NewPluginSettingRepository(pool *pgxpool.Pool) *PluginSettingRepository {
	return &PluginSettingRepository{pool: pool}
}

func (r *PluginSettingRepository) GetAll(ctx context.Context) ([]model.PluginSetting, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value, updated_at FROM seb_plugin_settings ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []model.PluginSetting
	for rows.Next() {
		var s model.PluginSetting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// UpsertMany writes all pairs in one transaction.
func (r *PluginSettingRepository) UpsertMany(ctx context.Context, values map[string]string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for key, value := range values {
		if _, err := tx.Exec(ctx,
			`INSERT INTO seb_plugin_settings (key, value, updated_at) VALUES ($1, $2, NOW())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			key, value); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PluginSettingRepository) GetByKey(ctx context.Context, key string) (*model.PluginSetting, error) {
	s := &model.PluginSetting{}
	err := r.pool.QueryRow(ctx, `SELECT key, value, updated_at FROM seb_plugin_settings WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
