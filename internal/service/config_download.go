package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/model"
)

// ConfigFileName is the attachment name of downloaded configurations.
const ConfigFileName = "config.seb"

// ConfigDownloadService serves the .seb file a user should open for a quiz.
type ConfigDownloadService struct {
	quizzes  QuizStore
	resolver SettingsSource
	configs  *ConfigService
	log      zerolog.Logger
}

// NewConfigDownloadService creates a new ConfigDownloadService.
func NewConfigDownloadService(quizzes QuizStore, resolver SettingsSource, configs *ConfigService, log zerolog.Logger) *ConfigDownloadService {
	return &ConfigDownloadService{
		quizzes:  quizzes,
		resolver: resolver,
		configs:  configs,
		log:      log.With().Str("component", "config_download_service").Logger(),
	}
}

// Download returns the configuration for cmid as seen by userID, with the
// user's override applied. ErrNotConfigured is returned when the quiz does
// not require SEB and ErrNoConfigFile when the browser brings its own.
func (s *ConfigDownloadService) Download(ctx context.Context, cmid int64, userID int) ([]byte, error) {
	quiz, err := s.quizzes.GetByCMID(ctx, cmid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	eff, err := s.resolver.Resolve(ctx, quiz.ID, userID)
	if err != nil {
		return nil, err
	}
	if !eff.RequireSafeExamBrowser.Enforced() {
		return nil, ErrNotConfigured
	}
	if eff.RequireSafeExamBrowser == model.ModeClient {
		return nil, ErrNoConfigFile
	}

	out, err := s.configs.ConfigXML(ctx, eff)
	if err != nil {
		return nil, err
	}
	s.log.Debug().Int64("cmid", cmid).Int("user_id", userID).Str("identity", Identity(eff)).Msg("config downloaded")
	return out, nil
}
