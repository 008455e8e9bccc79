package service

import (
	"context"

	"github.com/stemsi/exstem-seb/internal/model"
)

// The interfaces below are the narrow views services take of the
// repositories. The pgx repositories satisfy them; tests use in-memory fakes.

type QuizSettingsStore interface {
	GetByQuizID(ctx context.Context, quizID int64) (*model.QuizSettings, error)
	Upsert(ctx context.Context, s *model.QuizSettings) error
	TouchRevision(ctx context.Context, quizID int64) error
	DeleteByQuizID(ctx context.Context, quizID int64) error
}

type OverrideStore interface {
	GetByOverrideID(ctx context.Context, overrideID int64) (*model.Override, error)
	FindApplicable(ctx context.Context, quizID int64, userID int) (*model.Override, error)
	ListByQuizID(ctx context.Context, quizID int64) ([]model.Override, error)
	Upsert(ctx context.Context, o *model.Override) error
	DeleteByOverrideIDs(ctx context.Context, overrideIDs []int64) (map[int64]int64, error)
}

type TemplateStore interface {
	GetByID(ctx context.Context, id int64) (*model.Template, error)
	List(ctx context.Context, enabledOnly bool) ([]model.Template, error)
	FindByNameAndHash(ctx context.Context, name, contentHash string) (*model.Template, error)
	Create(ctx context.Context, t *model.Template) error
	Update(ctx context.Context, t *model.Template) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Delete(ctx context.Context, id int64) error
}

type ConfigFileStore interface {
	GetByCMID(ctx context.Context, cmid int64) (*model.ConfigFile, error)
	Upsert(ctx context.Context, f *model.ConfigFile) error
	Delete(ctx context.Context, cmid int64) error
}

type QuizStore interface {
	GetByCMID(ctx context.Context, cmid int64) (*model.Quiz, error)
	GetByID(ctx context.Context, id int64) (*model.Quiz, error)
	CountAttempts(ctx context.Context, quizID int64) (int, error)
	CountFinishedAttempts(ctx context.Context, quizID int64, userID int) (int, error)
	GetOverrideTarget(ctx context.Context, overrideID int64) (*model.OverrideTarget, error)
	SetPassword(ctx context.Context, quizID int64, password string) error
}

type PluginSettingStore interface {
	GetAll(ctx context.Context) ([]model.PluginSetting, error)
	UpsertMany(ctx context.Context, values map[string]string) error
}

type UserStore interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastIP(ctx context.Context, id int, ip string) error
}

type AccessEventStore interface {
	ListByCMID(ctx context.Context, cmid int64, limit int) ([]model.AccessEvent, error)
}
