package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/cache"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalid     = errors.New("session invalidated")
)

// Claims extends JWT standard claims with app-specific fields. The JWT id is
// the session id that session-scoped state is keyed by.
type Claims struct {
	jwt.RegisteredClaims
	UserID      int      `json:"user_id"`
	Permissions []string `json:"permissions,omitempty"`
}

// AuthService handles authentication, JWT, and session management. A user has
// at most one live session: the jti stored under login:{userID}.
type AuthService struct {
	cfg      *config.Config
	sessions cache.Store
	users    UserStore
	log      zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, sessions cache.Store, users UserStore, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:      cfg,
		sessions: sessions,
		users:    users,
		log:      log.With().Str("component", "auth_service").Logger(),
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login authenticates by email and password and starts a new session,
// replacing any existing one.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest, ip string) (*model.LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := s.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, err := s.startSession(ctx, user, ip)
	if err != nil {
		return nil, err
	}
	return &model.LoginResponse{Token: token, User: *user}, nil
}

// CompleteLogin starts a session for userID without a password. It is only
// reachable through a verified session-continuation key.
func (s *AuthService) CompleteLogin(ctx context.Context, userID int, ip string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("get user: %w", err)
	}
	return s.startSession(ctx, user, ip)
}

func (s *AuthService) startSession(ctx context.Context, user *model.User, ip string) (string, error) {
	token, _, err := s.IssueToken(ctx, user)
	if err != nil {
		return "", err
	}
	if ip != "" && ip != user.LastIP {
		if err := s.users.UpdateLastIP(ctx, user.ID, ip); err != nil {
			s.log.Warn().Err(err).Int("user_id", user.ID).Msg("failed to record last ip")
		}
		user.LastIP = ip
	}
	s.log.Info().Int("user_id", user.ID).Msg("user logged in")
	return token, nil
}

// IssueToken signs a JWT for user and registers its jti as the user's session.
func (s *AuthService) IssueToken(ctx context.Context, user *model.User) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		UserID:      user.ID,
		Permissions: user.Permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	if err := s.sessions.Set(ctx, config.CacheKey.UserSessionKey(user.ID), claims.ID, s.cfg.JWTExpiry); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}
	return signed, claims, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateSession checks that jti is the user's current session.
func (s *AuthService) ValidateSession(ctx context.Context, userID int, jti string) error {
	stored, err := s.sessions.Get(ctx, config.CacheKey.UserSessionKey(userID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return ErrSessionInvalid
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalid
	}
	return nil
}

// ForceLogout ends the user's session. Tokens already handed out stop
// validating immediately.
func (s *AuthService) ForceLogout(ctx context.Context, userID int) error {
	if err := s.sessions.Delete(ctx, config.CacheKey.UserSessionKey(userID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.log.Info().Int("user_id", userID).Msg("session terminated")
	return nil
}

// Me returns the account behind a session.
func (s *AuthService) Me(ctx context.Context, userID int) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}
