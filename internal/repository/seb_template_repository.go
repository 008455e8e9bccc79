package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-seb/internal/model"
)

// SEBTemplateRepository handles SEB template data access.
type SEBTemplateRepository struct {
	pool *pgxpool.Pool
}

// NewSEBTemplateRepository creates a new SEBTemplateRepository.
func NewSEBTemplateRepository(pool *pgxpool.Pool) *SEBTemplateRepository {
	return &SEBTemplateRepository{pool: pool}
}

const templateColumns = `t.id, t.name, t.description, t.content, t.content_hash, t.enabled, t.revision,
	EXISTS (SELECT 1 FROM seb_quiz_settings s WHERE s.templateid = t.id AND s.requiresafeexambrowser = 2)
	OR EXISTS (SELECT 1 FROM seb_overrides o WHERE o.templateid = t.id),
	t.created_at, t.updated_at`

func scanTemplate(row pgx.Row) (*model.Template, error) {
	t := &model.Template{}
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Content, &t.ContentHash, &t.Enabled,
		&t.Revision, &t.InUse, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID retrieves a template.
func (r *SEBTemplateRepository) GetByID(ctx context.Context, id int64) (*model.Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM seb_templates t WHERE t.id = $1`, id))
}

// List returns all templates ordered by name. enabledOnly restricts the
// list to templates that can be selected for a quiz.
func (r *SEBTemplateRepository) List(ctx context.Context, enabledOnly bool) ([]model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM seb_templates t`
	if enabledOnly {
		query += ` WHERE t.enabled`
	}
	query += ` ORDER BY t.name ASC, t.id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// FindByNameAndHash finds a template with identical name and content.
func (r *SEBTemplateRepository) FindByNameAndHash(ctx context.Context, name, contentHash string) (*model.Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM seb_templates t
		 WHERE t.name = $1 AND t.content_hash = $2
		 ORDER BY t.id ASC LIMIT 1`, name, contentHash))
}

// Create inserts a new template.
func (r *SEBTemplateRepository) Create(ctx context.Context, t *model.Template) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO seb_templates (name, description, content, content_hash, enabled)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, revision, created_at, updated_at`,
		t.Name, t.Description, t.Content, t.ContentHash, t.Enabled,
	).Scan(&t.ID, &t.Revision, &t.CreatedAt, &t.UpdatedAt)
}

// Update replaces a template's fields and bumps its revision.
func (r *SEBTemplateRepository) Update(ctx context.Context, t *model.Template) error {
	return r.pool.QueryRow(ctx,
		`UPDATE seb_templates
		 SET name = $2, description = $3, content = $4, content_hash = $5, enabled = $6,
		     revision = revision + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING revision, created_at, updated_at`,
		t.ID, t.Name, t.Description, t.Content, t.ContentHash, t.Enabled,
	).Scan(&t.Revision, &t.CreatedAt, &t.UpdatedAt)
}

// SetEnabled toggles a template and bumps its revision.
func (r *SEBTemplateRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE seb_templates SET enabled = $2, revision = revision + 1, updated_at = NOW() WHERE id = $1`,
		id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a template.
func (r *SEBTemplateRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM seb_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
