package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-seb/internal/model"
)

// QuizRepository reads the host's quiz, attempt and override tables.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetByCMID retrieves a quiz by its course module id.
func (r *QuizRepository) GetByCMID(ctx context.Context, cmid int64) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, cmid, course_id, name, password FROM quizzes WHERE cmid = $1`, cmid,
	).Scan(&q.ID, &q.CMID, &q.CourseID, &q.Name, &q.Password)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetByID retrieves a quiz by id.
func (r *QuizRepository) GetByID(ctx context.Context, id int64) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, cmid, course_id, name, password FROM quizzes WHERE id = $1`, id,
	).Scan(&q.ID, &q.CMID, &q.CourseID, &q.Name, &q.Password)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// CountAttempts counts attempts of any state. Settings are locked once
// anyone has attempted the quiz.
func (r *QuizRepository) CountAttempts(ctx context.Context, quizID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = $1`, quizID).Scan(&n)
	return n, err
}

// CountFinishedAttempts counts a user's finished attempts on a quiz.
func (r *QuizRepository) CountFinishedAttempts(ctx context.Context, quizID int64, userID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = $1 AND user_id = $2 AND state = 'finished'`,
		quizID, userID,
	).Scan(&n)
	return n, err
}

// GetOverrideTarget retrieves the parent override window of a SEB override.
func (r *QuizRepository) GetOverrideTarget(ctx context.Context, overrideID int64) (*model.OverrideTarget, error) {
	t := &model.OverrideTarget{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, quiz_id, user_id, group_id FROM quiz_overrides WHERE id = $1`, overrideID,
	).Scan(&t.ID, &t.QuizID, &t.UserID, &t.GroupID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetPassword replaces a quiz's access password.
func (r *QuizRepository) SetPassword(ctx context.Context, quizID int64, password string) error {
	_, err := r.pool.Exec(ctx, `UPDATE quizzes SET password = $2 WHERE id = $1`, quizID, password)
	return err
}
