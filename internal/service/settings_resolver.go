package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/model"
)

// PluginConfigLoader supplies the plugin-wide settings.
type PluginConfigLoader interface {
	Load(ctx context.Context) (*PluginConfig, error)
}

// SettingsResolver merges plugin defaults, a quiz's base settings and the
// override applying to a user into one effective configuration.
type SettingsResolver struct {
	settings  QuizSettingsStore
	overrides OverrideStore
	templates TemplateStore
	files     ConfigFileStore
	quizzes   QuizStore
	plugin    PluginConfigLoader
	log       zerolog.Logger
}

// NewSettingsResolver creates a new SettingsResolver.
func NewSettingsResolver(
	settings QuizSettingsStore,
	overrides OverrideStore,
	templates TemplateStore,
	files ConfigFileStore,
	quizzes QuizStore,
	plugin PluginConfigLoader,
	log zerolog.Logger,
) *SettingsResolver {
	return &SettingsResolver{
		settings:  settings,
		overrides: overrides,
		templates: templates,
		files:     files,
		quizzes:   quizzes,
		plugin:    plugin,
		log:       log.With().Str("component", "settings_resolver").Logger(),
	}
}

// Resolve returns the settings that apply to userID on quizID. Pass userID 0
// to resolve the base settings only. It returns ErrNotConfigured when neither
// base settings nor an applicable override exist.
func (r *SettingsResolver) Resolve(ctx context.Context, quizID int64, userID int) (*model.EffectiveSettings, error) {
	base, err := r.settings.GetByQuizID(ctx, quizID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get quiz settings: %w", err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		base = nil
	}

	var override *model.Override
	if userID > 0 {
		override, err = r.overrides.FindApplicable(ctx, quizID, userID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find override: %w", err)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			override = nil
		}
	}

	if base == nil && override == nil {
		return nil, ErrNotConfigured
	}

	plugin, err := r.plugin.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load plugin settings: %w", err)
	}

	eff := &model.EffectiveSettings{QuizID: quizID}
	var baseRev, overrideRev int64

	if base != nil {
		eff.CMID = base.CMID
		eff.SEBSettings = base.SEBSettings
		baseRev = base.Revision
	} else {
		quiz, err := r.quizzes.GetByID(ctx, quizID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrQuizNotFound
			}
			return nil, fmt.Errorf("get quiz: %w", err)
		}
		eff.CMID = quiz.CMID
		eff.SEBSettings = plugin.Defaults
	}

	if override != nil {
		eff.OverrideID = override.OverrideID
		eff.SEBSettings = override.ApplyTo(eff.SEBSettings)
		overrideRev = override.Revision
	}

	var templateRev int64
	if eff.RequireSafeExamBrowser == model.ModeTemplate {
		tpl, err := r.templates.GetByID(ctx, eff.TemplateID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			r.log.Warn().Int64("quiz_id", quizID).Int64("template_id", eff.TemplateID).
				Msg("template missing, SEB disabled for quiz")
			eff.RequireSafeExamBrowser = model.ModeNo
		case err != nil:
			return nil, fmt.Errorf("get template: %w", err)
		case !tpl.Enabled:
			r.log.Warn().Int64("quiz_id", quizID).Int64("template_id", eff.TemplateID).
				Msg("template disabled, SEB disabled for quiz")
			eff.RequireSafeExamBrowser = model.ModeNo
		default:
			eff.Template = tpl
			templateRev = tpl.Revision
		}
	}

	fileHash := "-"
	if eff.RequireSafeExamBrowser == model.ModeUpload {
		f, err := r.files.GetByCMID(ctx, eff.CMID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get config file: %w", err)
		}
		if f != nil {
			fileHash = f.SHA256
			if len(fileHash) > 12 {
				fileHash = fileHash[:12]
			}
		}
	}

	eff.Fingerprint = fmt.Sprintf("b%d.o%d:%d.t%d.f%s.d%s",
		baseRev, eff.OverrideID, overrideRev, templateRev, fileHash, plugin.DefaultsFingerprint)

	return eff, nil
}
