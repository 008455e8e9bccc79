package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-seb/internal/model"
)

const maxAccessEventPage = 500

// AccessEventService reads the persisted audit trail.
type AccessEventService struct {
	repo    AccessEventStore
	quizzes QuizStore
}

func NewAccessEventService(repo AccessEventStore, quizzes QuizStore) *AccessEventService {
	return &AccessEventService{repo: repo, quizzes: quizzes}
}

// List returns the newest events of a course module.
func (s *AccessEventService) List(ctx context.Context, cmid int64, limit int) ([]model.AccessEvent, error) {
	if _, err := s.quizzes.GetByCMID(ctx, cmid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if limit <= 0 || limit > maxAccessEventPage {
		limit = maxAccessEventPage
	}
	events, err := s.repo.ListByCMID(ctx, cmid, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.AccessEvent{}
	}
	return events, nil
}
