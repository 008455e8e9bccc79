package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-seb/internal/model"
)

// SEBConfigFileRepository tracks uploaded .seb files per course module.
type SEBConfigFileRepository struct {
	pool *pgxpool.Pool
}

// NewSEBConfigFileRepository creates a new SEBConfigFileRepository.
func NewSEBConfigFileRepository(pool *pgxpool.Pool) *SEBConfigFileRepository {
	return &SEBConfigFileRepository{pool: pool}
}

// GetByCMID returns pgx.ErrNoRows when no file was uploaded.
func (r *SEBConfigFileRepository) GetByCMID(ctx context.Context, cmid int64) (*model.ConfigFile, error) {
	f := &model.ConfigFile{}
	err := r.pool.QueryRow(ctx,
		`SELECT cmid, filename, path, sha256, created_at, updated_at
		 FROM seb_config_files WHERE cmid = $1`, cmid,
	).Scan(&f.CMID, &f.Filename, &f.Path, &f.SHA256, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Upsert records the file currently attached to f.CMID.
func (r *SEBConfigFileRepository) Upsert(ctx context.Context, f *model.ConfigFile) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO seb_config_files (cmid, filename, path, sha256)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cmid) DO UPDATE
		 SET filename = EXCLUDED.filename, path = EXCLUDED.path, sha256 = EXCLUDED.sha256, updated_at = NOW()
		 RETURNING created_at, updated_at`,
		f.CMID, f.Filename, f.Path, f.SHA256,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
}

// Delete forgets the file of a module. Missing rows are not an error.
func (r *SEBConfigFileRepository) Delete(ctx context.Context, cmid int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM seb_config_files WHERE cmid = $1`, cmid)
	return err
}
