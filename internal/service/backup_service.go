package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/seb"
)

// BackupFileStore is the file access backups need.
type BackupFileStore interface {
	ConfigFileManager
	ReadConfigFile(ctx context.Context, cmid int64) ([]byte, error)
}

// BackupService exports a quiz's SEB configuration and restores it into
// another quiz, possibly on another deployment.
type BackupService struct {
	siteID    string
	settings  QuizSettingsStore
	overrides OverrideStore
	templates TemplateStore
	quizzes   QuizStore
	files     BackupFileStore
	configs   ConfigInvalidator
	log       zerolog.Logger
}

// NewBackupService creates a new BackupService. siteID identifies this
// deployment in exported backups.
func NewBackupService(
	siteID string,
	settings QuizSettingsStore,
	overrides OverrideStore,
	templates TemplateStore,
	quizzes QuizStore,
	files BackupFileStore,
	configs ConfigInvalidator,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		siteID:    siteID,
		settings:  settings,
		overrides: overrides,
		templates: templates,
		quizzes:   quizzes,
		files:     files,
		configs:   configs,
		log:       log.With().Str("component", "backup_service").Logger(),
	}
}

// Export collects the settings, overrides, referenced templates and uploaded
// file of a quiz.
func (s *BackupService) Export(ctx context.Context, cmid int64) (*model.QuizBackup, error) {
	quiz, err := s.quizzes.GetByCMID(ctx, cmid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	b := &model.QuizBackup{SiteID: s.siteID, QuizID: quiz.ID, CMID: quiz.CMID}

	base, err := s.settings.GetByQuizID(ctx, quiz.ID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("get quiz settings: %w", err)
	default:
		settings := base.SEBSettings
		b.Settings = &settings
		if settings.RequireSafeExamBrowser == model.ModeTemplate {
			if b.Template, err = s.exportTemplate(ctx, settings.TemplateID); err != nil {
				return nil, err
			}
		}
		if settings.RequireSafeExamBrowser == model.ModeUpload {
			if b.File, err = s.exportFile(ctx, quiz.CMID); err != nil {
				return nil, err
			}
		}
	}

	overrides, err := s.overrides.ListByQuizID(ctx, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	for _, o := range overrides {
		ob := model.OverrideBackup{OverrideID: o.OverrideID, Enabled: o.Enabled, Settings: o.PartialSettings}
		if o.TemplateID != nil && *o.TemplateID > 0 {
			if ob.Template, err = s.exportTemplate(ctx, *o.TemplateID); err != nil {
				return nil, err
			}
		}
		b.Overrides = append(b.Overrides, ob)
	}

	return b, nil
}

func (s *BackupService) exportTemplate(ctx context.Context, id int64) (*model.TemplateBackup, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &model.TemplateBackup{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Content:     t.Content,
		Enabled:     t.Enabled,
	}, nil
}

func (s *BackupService) exportFile(ctx context.Context, cmid int64) (*model.ConfigFileBackup, error) {
	f, err := s.files.Get(ctx, cmid)
	if err != nil {
		if errors.Is(err, ErrNoConfigFile) {
			return nil, nil
		}
		return nil, err
	}
	content, err := s.files.ReadConfigFile(ctx, cmid)
	if err != nil {
		if errors.Is(err, ErrNoConfigFile) {
			return nil, nil
		}
		return nil, err
	}
	return &model.ConfigFileBackup{Filename: f.Filename, Content: content}, nil
}

// Restore writes a backup into the quiz at cmid. Overrides are restored only
// when OverrideMap names their new override window.
func (s *BackupService) Restore(ctx context.Context, cmid int64, req model.RestoreRequest, userID int) error {
	quiz, err := s.quizzes.GetByCMID(ctx, cmid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("get quiz: %w", err)
	}

	b := req.Backup
	sameSite := b.SiteID != "" && b.SiteID == s.siteID

	if b.Settings != nil {
		settings := *b.Settings
		if settings.RequireSafeExamBrowser == model.ModeTemplate {
			tid, err := s.restoreTemplate(ctx, b.Template, sameSite)
			if err != nil {
				return err
			}
			settings.TemplateID = tid
			if tid == 0 {
				settings.RequireSafeExamBrowser = model.ModeNo
			}
		}
		if settings.RequireSafeExamBrowser == model.ModeUpload {
			if b.File == nil {
				s.log.Warn().Int64("quiz_id", quiz.ID).Msg("backup has upload mode but no file, disabling SEB")
				settings.RequireSafeExamBrowser = model.ModeNo
			} else if _, err := s.files.Save(ctx, quiz.CMID, b.File.Filename, bytes.NewReader(b.File.Content)); err != nil {
				return fmt.Errorf("restore config file: %w", err)
			}
		}

		if settings.RequireSafeExamBrowser == model.ModeNo {
			if err := s.settings.DeleteByQuizID(ctx, quiz.ID); err != nil {
				return fmt.Errorf("delete quiz settings: %w", err)
			}
		} else {
			row := &model.QuizSettings{QuizID: quiz.ID, CMID: quiz.CMID, SEBSettings: settings, UserModifiedID: userID}
			if err := s.settings.Upsert(ctx, row); err != nil {
				return fmt.Errorf("restore quiz settings: %w", err)
			}
		}
		if err := s.configs.Invalidate(ctx, quiz.ID, 0); err != nil {
			return err
		}
	}

	for _, ob := range b.Overrides {
		newID, ok := req.OverrideMap[ob.OverrideID]
		if !ok || newID == 0 {
			s.log.Warn().Int64("override_id", ob.OverrideID).Msg("no target for backed-up override, skipping")
			continue
		}
		target, err := s.quizzes.GetOverrideTarget(ctx, newID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOverrideNotFound
			}
			return fmt.Errorf("get override: %w", err)
		}
		if target.QuizID != quiz.ID {
			return ErrOverrideNotFound
		}

		partial := ob.Settings
		if partial.TemplateID != nil && *partial.TemplateID > 0 {
			tid, err := s.restoreTemplate(ctx, ob.Template, sameSite)
			if err != nil {
				return err
			}
			partial.TemplateID = &tid
			if tid == 0 && partial.RequireSafeExamBrowser != nil && *partial.RequireSafeExamBrowser == model.ModeTemplate {
				mode := model.ModeNo
				partial.RequireSafeExamBrowser = &mode
			}
		}

		o := &model.Override{OverrideID: newID, QuizID: quiz.ID, Enabled: ob.Enabled, PartialSettings: partial}
		if err := s.overrides.Upsert(ctx, o); err != nil {
			return fmt.Errorf("restore override: %w", err)
		}
		if err := s.configs.Invalidate(ctx, quiz.ID, newID); err != nil {
			return err
		}
	}

	s.log.Info().Int64("quiz_id", quiz.ID).Bool("same_site", sameSite).Int("overrides", len(b.Overrides)).
		Msg("SEB settings restored")
	return nil
}

// restoreTemplate returns the template id to use for a backed-up template,
// or 0 when the quiz must fall back to no enforcement.
func (s *BackupService) restoreTemplate(ctx context.Context, tb *model.TemplateBackup, sameSite bool) (int64, error) {
	if tb == nil {
		return 0, nil
	}

	if sameSite {
		t, err := s.templates.GetByID(ctx, tb.ID)
		switch {
		case err == nil:
			if !t.Enabled {
				return 0, nil
			}
			return t.ID, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return 0, fmt.Errorf("get template: %w", err)
		}
	}

	if !tb.Enabled {
		return 0, nil
	}

	hash := seb.ContentHash(tb.Content)
	existing, err := s.templates.FindByNameAndHash(ctx, tb.Name, hash)
	switch {
	case err == nil:
		if !existing.Enabled {
			return 0, nil
		}
		return existing.ID, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("find template: %w", err)
	}

	if err := seb.Validate([]byte(tb.Content)); err != nil {
		s.log.Warn().Str("template", tb.Name).Msg("backed-up template is not a valid .seb file")
		return 0, nil
	}
	t := &model.Template{
		Name:        tb.Name,
		Description: tb.Description,
		Content:     tb.Content,
		ContentHash: hash,
		Enabled:     true,
	}
	if err := s.templates.Create(ctx, t); err != nil {
		return 0, fmt.Errorf("create template: %w", err)
	}
	s.log.Info().Int64("template_id", t.ID).Str("name", t.Name).Msg("template created from backup")
	return t.ID, nil
}
