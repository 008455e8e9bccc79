package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/model"
)

// ConfigInvalidator drops cached configuration of one identity.
type ConfigInvalidator interface {
	Invalidate(ctx context.Context, quizID, overrideID int64) error
}

// ConfigFileManager stores uploaded .seb files.
type ConfigFileManager interface {
	Save(ctx context.Context, cmid int64, filename string, r io.Reader) (*model.ConfigFile, error)
	Get(ctx context.Context, cmid int64) (*model.ConfigFile, error)
	Delete(ctx context.Context, cmid int64) error
}

// SettingsService validates and persists quiz SEB settings and overrides.
// Every write is followed by invalidation of the affected cache identity.
type SettingsService struct {
	settings  QuizSettingsStore
	overrides OverrideStore
	templates TemplateStore
	quizzes   QuizStore
	files     ConfigFileManager
	configs   ConfigInvalidator
	plugin    PluginConfigLoader
	log       zerolog.Logger
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(
	settings QuizSettingsStore,
	overrides OverrideStore,
	templates TemplateStore,
	quizzes QuizStore,
	files ConfigFileManager,
	configs ConfigInvalidator,
	plugin PluginConfigLoader,
	log zerolog.Logger,
) *SettingsService {
	return &SettingsService{
		settings:  settings,
		overrides: overrides,
		templates: templates,
		quizzes:   quizzes,
		files:     files,
		configs:   configs,
		plugin:    plugin,
		log:       log.With().Str("component", "settings_service").Logger(),
	}
}

func (s *SettingsService) quizByCMID(ctx context.Context, cmid int64) (*model.Quiz, error) {
	quiz, err := s.quizzes.GetByCMID(ctx, cmid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	return quiz, nil
}

func (s *SettingsService) ensureUnlocked(ctx context.Context, quizID int64) error {
	n, err := s.quizzes.CountAttempts(ctx, quizID)
	if err != nil {
		return fmt.Errorf("count attempts: %w", err)
	}
	if n > 0 {
		return ErrSettingsLocked
	}
	return nil
}

// baseOrDefaults returns a quiz's stored settings, or the plugin defaults
// bound to the quiz when nothing is stored yet.
func (s *SettingsService) baseOrDefaults(ctx context.Context, quiz *model.Quiz) (*model.QuizSettings, error) {
	current, err := s.settings.GetByQuizID(ctx, quiz.ID)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get quiz settings: %w", err)
	}
	plugin, err := s.plugin.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load plugin settings: %w", err)
	}
	return &model.QuizSettings{
		QuizID:      quiz.ID,
		CMID:        quiz.CMID,
		SEBSettings: plugin.Defaults,
	}, nil
}

// Get returns the settings of a quiz. A quiz without a settings row reports
// the plugin defaults with revision 0.
func (s *SettingsService) Get(ctx context.Context, cmid int64) (*model.QuizSettings, error) {
	quiz, err := s.quizByCMID(ctx, cmid)
	if err != nil {
		return nil, err
	}
	return s.baseOrDefaults(ctx, quiz)
}

// Save validates and stores a quiz's settings. Saving mode "no" removes the
// settings row.
func (s *SettingsService) Save(ctx context.Context, cmid int64, req model.SaveQuizSettingsRequest, userID int) (*model.QuizSettings, error) {
	quiz, err := s.quizByCMID(ctx, cmid)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnlocked(ctx, quiz.ID); err != nil {
		return nil, err
	}

	current, err := s.baseOrDefaults(ctx, quiz)
	if err != nil {
		return nil, err
	}
	merged := req.Partial().ApplyTo(current.SEBSettings)

	quizPassword := quiz.Password
	if req.QuizPassword != "" {
		quizPassword = req.QuizPassword
	}
	if err := s.validate(ctx, cmid, merged, quizPassword); err != nil {
		return nil, err
	}

	if req.QuizPassword != "" && req.QuizPassword != quiz.Password {
		if err := s.quizzes.SetPassword(ctx, quiz.ID, req.QuizPassword); err != nil {
			return nil, fmt.Errorf("set quiz password: %w", err)
		}
	}

	if merged.RequireSafeExamBrowser != model.ModeUpload {
		if err := s.files.Delete(ctx, cmid); err != nil {
			return nil, fmt.Errorf("delete config file: %w", err)
		}
	}

	if merged.RequireSafeExamBrowser == model.ModeNo {
		if err := s.settings.DeleteByQuizID(ctx, quiz.ID); err != nil {
			return nil, fmt.Errorf("delete quiz settings: %w", err)
		}
		if err := s.configs.Invalidate(ctx, quiz.ID, 0); err != nil {
			return nil, err
		}
		s.log.Info().Int64("quiz_id", quiz.ID).Int("user_id", userID).Msg("SEB disabled for quiz")
		return &model.QuizSettings{QuizID: quiz.ID, CMID: quiz.CMID, SEBSettings: merged}, nil
	}

	row := &model.QuizSettings{
		QuizID:         quiz.ID,
		CMID:           quiz.CMID,
		SEBSettings:    merged,
		UserModifiedID: userID,
	}
	if err := s.settings.Upsert(ctx, row); err != nil {
		return nil, fmt.Errorf("save quiz settings: %w", err)
	}
	if err := s.configs.Invalidate(ctx, quiz.ID, 0); err != nil {
		return nil, err
	}

	s.log.Info().Int64("quiz_id", quiz.ID).Str("mode", merged.RequireSafeExamBrowser.String()).
		Int64("revision", row.Revision).Int("user_id", userID).Msg("SEB settings saved")
	return row, nil
}

// Delete removes a quiz's settings and uploaded file. Cached entries of the
// quiz's overrides are kept.
func (s *SettingsService) Delete(ctx context.Context, cmid int64) error {
	quiz, err := s.quizByCMID(ctx, cmid)
	if err != nil {
		return err
	}
	if err := s.settings.DeleteByQuizID(ctx, quiz.ID); err != nil {
		return fmt.Errorf("delete quiz settings: %w", err)
	}
	if err := s.files.Delete(ctx, cmid); err != nil {
		return fmt.Errorf("delete config file: %w", err)
	}
	return s.configs.Invalidate(ctx, quiz.ID, 0)
}

// UploadConfigFile attaches a .seb file to a quiz.
func (s *SettingsService) UploadConfigFile(ctx context.Context, cmid int64, filename string, r io.Reader) (*model.ConfigFile, error) {
	quiz, err := s.quizByCMID(ctx, cmid)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnlocked(ctx, quiz.ID); err != nil {
		return nil, err
	}

	f, err := s.files.Save(ctx, cmid, filename, r)
	if err != nil {
		return nil, err
	}
	if err := s.settings.TouchRevision(ctx, quiz.ID); err != nil {
		return nil, fmt.Errorf("touch settings revision: %w", err)
	}
	if err := s.configs.Invalidate(ctx, quiz.ID, 0); err != nil {
		return nil, err
	}
	return f, nil
}

// ListOverrides returns every SEB override of a quiz.
func (s *SettingsService) ListOverrides(ctx context.Context, cmid int64) ([]model.Override, error) {
	quiz, err := s.quizByCMID(ctx, cmid)
	if err != nil {
		return nil, err
	}
	return s.overrides.ListByQuizID(ctx, quiz.ID)
}

// SaveOverride stores the SEB part of a quiz override window.
func (s *SettingsService) SaveOverride(ctx context.Context, overrideID int64, req model.SaveOverrideRequest) (*model.Override, error) {
	target, err := s.quizzes.GetOverrideTarget(ctx, overrideID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOverrideNotFound
		}
		return nil, fmt.Errorf("get override: %w", err)
	}
	quiz, err := s.quizzes.GetByID(ctx, target.QuizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	base, err := s.baseOrDefaults(ctx, quiz)
	if err != nil {
		return nil, err
	}
	partial := req.Partial()
	if req.Enabled {
		if err := s.validate(ctx, quiz.CMID, partial.ApplyTo(base.SEBSettings), quiz.Password); err != nil {
			return nil, err
		}
	}

	o := &model.Override{
		OverrideID:      overrideID,
		QuizID:          quiz.ID,
		Enabled:         req.Enabled,
		PartialSettings: partial,
	}
	if err := s.overrides.Upsert(ctx, o); err != nil {
		return nil, fmt.Errorf("save override: %w", err)
	}
	if err := s.configs.Invalidate(ctx, quiz.ID, overrideID); err != nil {
		return nil, err
	}

	s.log.Info().Int64("quiz_id", quiz.ID).Int64("override_id", overrideID).Bool("enabled", o.Enabled).
		Msg("SEB override saved")
	return o, nil
}

// DeleteOverrides removes the SEB part of override windows and evicts their
// cached configuration.
func (s *SettingsService) DeleteOverrides(ctx context.Context, overrideIDs ...int64) error {
	if len(overrideIDs) == 0 {
		return nil
	}
	deleted, err := s.overrides.DeleteByOverrideIDs(ctx, overrideIDs)
	if err != nil {
		return fmt.Errorf("delete overrides: %w", err)
	}
	for overrideID, quizID := range deleted {
		if err := s.configs.Invalidate(ctx, quizID, overrideID); err != nil {
			return err
		}
	}
	return nil
}

// validate checks merged settings the way the settings form does and
// reports every problem at once.
func (s *SettingsService) validate(ctx context.Context, cmid int64, merged model.SEBSettings, quizPassword string) error {
	fields := make(map[string]string)

	if !merged.RequireSafeExamBrowser.Valid() {
		fields["requiresafeexambrowser"] = "unknown mode"
	}

	switch merged.RequireSafeExamBrowser {
	case model.ModeTemplate:
		if merged.TemplateID <= 0 {
			fields["templateid"] = "a template must be selected"
			break
		}
		t, err := s.templates.GetByID(ctx, merged.TemplateID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			fields["templateid"] = "template does not exist"
		case err != nil:
			return fmt.Errorf("get template: %w", err)
		case !t.Enabled:
			fields["templateid"] = "template is disabled"
		}
	case model.ModeUpload:
		if _, err := s.files.Get(ctx, cmid); err != nil {
			if !errors.Is(err, ErrNoConfigFile) {
				return err
			}
			fields["configfile"] = "a .seb file must be uploaded"
		}
	}

	if merged.RequireSafeExamBrowser.Enforced() && strings.TrimSpace(quizPassword) == "" {
		plugin, err := s.plugin.Load(ctx)
		if err != nil {
			return fmt.Errorf("load plugin settings: %w", err)
		}
		if plugin.QuizPasswordRequired {
			fields["quizpassword"] = "a quiz password is required"
		}
	}

	if merged.RequireSafeExamBrowser == model.ModeManual {
		for name, list := range map[string]string{
			"regexallowed": merged.RegexAllowed,
			"regexblocked": merged.RegexBlocked,
		} {
			if err := CompileRegexList(list); err != nil {
				fields[name] = err.Error()
			}
		}
		if merged.LinkQuitSEB != "" && !isHTTPURL(merged.LinkQuitSEB) {
			fields["linkquitseb"] = "must be an absolute http(s) URL"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// CompileRegexList checks that every non-blank line of list is a valid
// regular expression.
func CompileRegexList(list string) error {
	for _, line := range strings.Split(strings.ReplaceAll(list, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, err := regexp.Compile(line); err != nil {
			return fmt.Errorf("invalid regular expression %q", line)
		}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
