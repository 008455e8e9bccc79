package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/cache"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/metrics"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/seb"
)

// configCacheTTL bounds how long an unused entry lingers. Correctness comes
// from the fingerprint, not from expiry.
const configCacheTTL = 24 * time.Hour

// ConfigFileReader returns the raw bytes of a module's uploaded .seb file.
type ConfigFileReader interface {
	ReadConfigFile(ctx context.Context, cmid int64) ([]byte, error)
}

// ConfigService builds SEB configuration files and derives their config keys.
// Both are cached per identity and tagged with the settings fingerprint, so a
// value computed from older settings is never served.
type ConfigService struct {
	cache   cache.Store
	files   ConfigFileReader
	links   *seb.Links
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewConfigService creates a new ConfigService.
func NewConfigService(store cache.Store, files ConfigFileReader, links *seb.Links, m *metrics.Metrics, log zerolog.Logger) *ConfigService {
	return &ConfigService{
		cache:   store,
		files:   files,
		links:   links,
		metrics: m,
		log:     log.With().Str("component", "config_service").Logger(),
	}
}

// Identity is the cache identity of effective settings.
func Identity(eff *model.EffectiveSettings) string {
	return config.CacheKey.ConfigIdentity(eff.QuizID, eff.OverrideID)
}

// BuildConfig returns the configuration dictionary the browser must load for
// eff. Client and disabled modes have no server-side configuration.
func (s *ConfigService) BuildConfig(ctx context.Context, eff *model.EffectiveSettings) (seb.Dict, error) {
	startURL := s.links.QuizURL(eff.CMID)

	switch eff.RequireSafeExamBrowser {
	case model.ModeManual:
		return seb.ManualConfig(eff.SEBSettings, startURL), nil

	case model.ModeTemplate:
		if eff.Template == nil {
			return nil, ErrTemplateNotFound
		}
		d, err := seb.Parse([]byte(strings.TrimSpace(eff.Template.Content)))
		if err != nil {
			return nil, fmt.Errorf("parse template %d: %w", eff.Template.ID, err)
		}
		return seb.BindToQuiz(d, eff.SEBSettings, startURL, true), nil

	case model.ModeUpload:
		raw, err := s.files.ReadConfigFile(ctx, eff.CMID)
		if err != nil {
			return nil, err
		}
		d, err := seb.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse uploaded config for cmid %d: %w", eff.CMID, err)
		}
		return seb.BindToQuiz(d, eff.SEBSettings, startURL, false), nil

	default:
		return nil, ErrNoConfigFile
	}
}

// ConfigXML returns the encoded .seb file for eff.
func (s *ConfigService) ConfigXML(ctx context.Context, eff *model.EffectiveSettings) ([]byte, error) {
	key := config.CacheKey.ConfigKey(Identity(eff))
	if cached, ok := s.readTagged(ctx, key, eff.Fingerprint); ok {
		return []byte(cached), nil
	}

	d, err := s.BuildConfig(ctx, eff)
	if err != nil {
		return nil, err
	}
	out, err := seb.Encode(d)
	if err != nil {
		return nil, err
	}
	s.writeTagged(ctx, key, eff.Fingerprint, string(out))
	return out, nil
}

// ConfigKey returns the config key of eff, computing and caching it on a miss
// or when the cached value belongs to an older fingerprint.
func (s *ConfigService) ConfigKey(ctx context.Context, eff *model.EffectiveSettings) (string, error) {
	key := config.CacheKey.ConfigHashKey(Identity(eff))

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		if fp, value, ok := splitTagged(raw); ok && fp == eff.Fingerprint {
			s.metrics.ConfigKeyLookup("hit")
			return value, nil
		}
		s.metrics.ConfigKeyLookup("stale")
	case errors.Is(err, cache.ErrMiss):
		s.metrics.ConfigKeyLookup("miss")
	default:
		s.log.Warn().Err(err).Str("key", key).Msg("config key cache read failed, recomputing")
		s.metrics.ConfigKeyLookup("miss")
	}

	d, err := s.BuildConfig(ctx, eff)
	if err != nil {
		return "", err
	}
	configKey := seb.ConfigKey(d)
	s.writeTagged(ctx, key, eff.Fingerprint, configKey)
	return configKey, nil
}

// GetCached returns the cached config key of identity, or "" when none is
// cached. The value is not checked against current settings.
func (s *ConfigService) GetCached(ctx context.Context, identity string) string {
	raw, err := s.cache.Get(ctx, config.CacheKey.ConfigHashKey(identity))
	if err != nil {
		return ""
	}
	_, value, ok := splitTagged(raw)
	if !ok {
		return ""
	}
	return value
}

// Invalidate drops the cached config and config key of one identity.
func (s *ConfigService) Invalidate(ctx context.Context, quizID, overrideID int64) error {
	identity := config.CacheKey.ConfigIdentity(quizID, overrideID)
	if err := s.cache.Delete(ctx,
		config.CacheKey.ConfigKey(identity),
		config.CacheKey.ConfigHashKey(identity),
	); err != nil {
		return fmt.Errorf("invalidate %s: %w", identity, err)
	}
	s.log.Debug().Str("identity", identity).Msg("config cache invalidated")
	return nil
}

func (s *ConfigService) readTagged(ctx context.Context, key, fingerprint string) (string, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn().Err(err).Str("key", key).Msg("config cache read failed")
		}
		return "", false
	}
	fp, value, ok := splitTagged(raw)
	if !ok || fp != fingerprint {
		return "", false
	}
	return value, true
}

func (s *ConfigService) writeTagged(ctx context.Context, key, fingerprint, value string) {
	if err := s.cache.Set(ctx, key, fingerprint+"\n"+value, configCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("config cache write failed")
	}
}

func splitTagged(raw string) (fingerprint, value string, ok bool) {
	return strings.Cut(raw, "\n")
}
