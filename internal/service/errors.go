package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stemsi/exstem-seb/internal/model"
)

// SEB domain errors.
var (
	// ErrNotConfigured means no SEB enforcement applies to the quiz. It is a
	// signal, not a failure.
	ErrNotConfigured = errors.New("seb not configured for quiz")
	// ErrInvalidKey covers every session-continuation failure. Callers must
	// not distinguish between a missing, expired or mismatched key.
	ErrInvalidKey = errors.New("invalid session key")

	ErrQuizNotFound     = errors.New("quiz not found")
	ErrSettingsLocked   = errors.New("seb settings are locked because the quiz has attempts")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateInUse    = errors.New("template is in use")
	ErrOverrideNotFound = errors.New("override not found")
	ErrNoConfigFile     = errors.New("no seb config available for quiz")
)

// ValidationError carries field-attributed problems with submitted settings.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AccessDeniedError is returned when a request fails one of the SEB checks.
type AccessDeniedError struct {
	Reason   model.DenyReason
	Decision model.Decision
}

func (e *AccessDeniedError) Error() string {
	return "seb access denied: " + string(e.Reason)
}
