package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/cache"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/metrics"
	"github.com/stemsi/exstem-seb/internal/model"
)

// sessionKeyScript namespaces continuation keys among other one-time keys.
const sessionKeyScript = "seb"

// SessionAuthenticator is the part of the login subsystem continuation needs.
type SessionAuthenticator interface {
	ForceLogout(ctx context.Context, userID int) error
	CompleteLogin(ctx context.Context, userID int, ip string) (string, error)
}

// ContinueOutcome reports what consuming a key did to the caller's session.
type ContinueOutcome struct {
	UserID int
	// Token is set when a login was completed for the key's owner.
	Token string
	// LoggedOut is set when a different user's session was ended.
	LoggedOut bool
}

// ContinueSessionService issues and consumes single-use keys that carry a
// login from a normal browser into a freshly launched exam browser.
type ContinueSessionService struct {
	keys    cache.Store
	users   UserStore
	auth    SessionAuthenticator
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewContinueSessionService creates a new ContinueSessionService.
func NewContinueSessionService(keys cache.Store, users UserStore, auth SessionAuthenticator, ttl time.Duration, m *metrics.Metrics, log zerolog.Logger) *ContinueSessionService {
	return &ContinueSessionService{
		keys:    keys,
		users:   users,
		auth:    auth,
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
		log:     log.With().Str("component", "continue_session_service").Logger(),
	}
}

// WithClock replaces the time source.
func (s *ContinueSessionService) WithClock(now func() time.Time) *ContinueSessionService {
	s.now = now
	return s
}

type storedSessionKey struct {
	UserID     int       `json:"user_id"`
	IP         string    `json:"ip"`
	ValidUntil time.Time `json:"valid_until"`
}

// Issue creates a key for userID restricted to the user's last known IP, or
// to remoteIP when none is recorded.
func (s *ContinueSessionService) Issue(ctx context.Context, userID int, remoteIP string) (*model.SessionKey, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	ip := user.LastIP
	if ip == "" {
		ip = remoteIP
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	key := &model.SessionKey{
		Value:      hex.EncodeToString(buf),
		UserID:     userID,
		IP:         ip,
		ValidUntil: s.now().Add(s.ttl),
	}
	payload, err := json.Marshal(storedSessionKey{UserID: key.UserID, IP: key.IP, ValidUntil: key.ValidUntil})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := s.keys.Set(ctx, config.CacheKey.UserKey(sessionKeyScript, key.Value), string(payload), s.ttl); err != nil {
		return nil, fmt.Errorf("store key: %w", err)
	}

	s.metrics.SessionKey("issued")
	return key, nil
}

// Consume redeems key for userID. currentUserID is the user logged in on
// the calling browser, or 0. The key is removed whatever the outcome.
//
// An invalid key ends the caller's session, if any, and returns
// ErrInvalidKey without saying why it was rejected.
func (s *ContinueSessionService) Consume(ctx context.Context, key string, userID int, remoteIP string, currentUserID int) (*ContinueOutcome, error) {
	stored, ok := s.take(ctx, key)
	if !ok || stored.UserID != userID || !s.now().Before(stored.ValidUntil) ||
		(stored.IP != "" && stored.IP != remoteIP) {
		s.metrics.SessionKey("invalid")
		s.log.Warn().Int("user_id", userID).Int("current_user_id", currentUserID).Msg("rejected session key")
		if currentUserID != 0 {
			if err := s.auth.ForceLogout(ctx, currentUserID); err != nil {
				s.log.Error().Err(err).Int("user_id", currentUserID).Msg("failed to end session after invalid key")
			}
		}
		return nil, ErrInvalidKey
	}

	s.metrics.SessionKey("consumed")
	out := &ContinueOutcome{UserID: stored.UserID}

	switch {
	case currentUserID != 0 && currentUserID != stored.UserID:
		if err := s.auth.ForceLogout(ctx, currentUserID); err != nil {
			return nil, err
		}
		out.LoggedOut = true
	case currentUserID == 0:
		token, err := s.auth.CompleteLogin(ctx, stored.UserID, remoteIP)
		if err != nil {
			return nil, err
		}
		out.Token = token
	}
	return out, nil
}

func (s *ContinueSessionService) take(ctx context.Context, key string) (*storedSessionKey, bool) {
	if key == "" {
		return nil, false
	}
	raw, err := s.keys.Take(ctx, config.CacheKey.UserKey(sessionKeyScript, key))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Error().Err(err).Msg("session key lookup failed")
		}
		return nil, false
	}
	var stored storedSessionKey
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.log.Error().Err(err).Msg("corrupt session key payload")
		return nil, false
	}
	return &stored, true
}
