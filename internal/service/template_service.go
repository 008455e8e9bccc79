package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/seb"
)

// TemplateService handles SEB template business logic.
type TemplateService struct {
	repo TemplateStore
	log  zerolog.Logger
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(repo TemplateStore, log zerolog.Logger) *TemplateService {
	return &TemplateService{
		repo: repo,
		log:  log.With().Str("component", "template_service").Logger(),
	}
}

func (s *TemplateService) List(ctx context.Context, enabledOnly bool) ([]model.Template, error) {
	templates, err := s.repo.List(ctx, enabledOnly)
	if err != nil {
		return nil, err
	}
	if templates == nil {
		templates = []model.Template{}
	}
	return templates, nil
}

func (s *TemplateService) GetByID(ctx context.Context, id int64) (*model.Template, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Create(ctx context.Context, req model.CreateTemplateRequest) (*model.Template, error) {
	content, err := checkTemplateContent(req.Content)
	if err != nil {
		return nil, err
	}
	t := &model.Template{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Content:     content,
		ContentHash: seb.ContentHash(content),
		Enabled:     req.Enabled,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	s.log.Info().Int64("template_id", t.ID).Str("name", t.Name).Msg("template created")
	return t, nil
}

// Update replaces a template. Quizzes using it pick up the new content
// through the revision bump.
func (s *TemplateService) Update(ctx context.Context, id int64, req model.UpdateTemplateRequest) (*model.Template, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	content, err := checkTemplateContent(req.Content)
	if err != nil {
		return nil, err
	}
	t.Name = strings.TrimSpace(req.Name)
	t.Description = req.Description
	t.Content = content
	t.ContentHash = seb.ContentHash(content)
	t.Enabled = req.Enabled
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

func (s *TemplateService) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := s.repo.SetEnabled(ctx, id, enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTemplateNotFound
		}
		return err
	}
	s.log.Info().Int64("template_id", id).Bool("enabled", enabled).Msg("template toggled")
	return nil
}

// Delete removes a template no quiz or override references.
func (s *TemplateService) Delete(ctx context.Context, id int64) error {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.InUse {
		return ErrTemplateInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTemplateNotFound
		}
		return err
	}
	return nil
}

func checkTemplateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if err := seb.Validate([]byte(content)); err != nil {
		return "", &ValidationError{Fields: map[string]string{"content": "must be a valid .seb XML file"}}
	}
	return content, nil
}
