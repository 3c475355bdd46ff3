package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"event-quiz-service/internal/domain"
)

// Store implements the app repositories on Postgres. Documents are JSONB
// rows; the group counter lives in its own column so the balancer can lock
// and increment it inside one transaction.
type Store struct {
	pool *pgxpool.Pool
	rnd  *rand.Rand
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// --- QuizRepository ---

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return domain.Quiz{}, domain.Wrap(domain.KindInternal, "marshal quiz", err)
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO quizzes (id, data) VALUES ($1, $2::jsonb)`, quiz.ID, data); err != nil {
		return domain.Quiz{}, domain.Wrap(domain.KindInternal, "create quiz", err)
	}
	return quiz, nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.Wrap(domain.KindInternal, "read quiz", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, domain.Wrap(domain.KindInternal, "unmarshal quiz", err)
	}
	quiz.ID = quizID
	return quiz, nil
}

func (s *Store) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, data FROM quizzes`)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "list quizzes", err)
	}
	defer rows.Close()

	var out []domain.Quiz
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, domain.Wrap(domain.KindInternal, "scan quiz", err)
		}
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err != nil {
			return nil, domain.Wrap(domain.KindInternal, "unmarshal quiz", err)
		}
		quiz.ID = id
		out = append(out, quiz)
	}
	return out, rows.Err()
}

func (s *Store) UpdateQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "marshal quiz", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE quizzes SET data=$2::jsonb WHERE id=$1`, quiz.ID, data)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "update quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, quizID)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "delete quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// --- GroupRepository ---

func (s *Store) CreateGroup(ctx context.Context, group domain.Group) (domain.Group, error) {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	data, err := json.Marshal(group)
	if err != nil {
		return domain.Group{}, domain.Wrap(domain.KindInternal, "marshal group", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO groups (id, data, user_count) VALUES ($1, $2::jsonb, $3)`,
		group.ID, data, group.UserCount); err != nil {
		return domain.Group{}, domain.Wrap(domain.KindInternal, "create group", err)
	}
	return group, nil
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (domain.Group, error) {
	var raw []byte
	var count int
	err := s.pool.QueryRow(ctx, `SELECT data, user_count FROM groups WHERE id=$1`, groupID).Scan(&raw, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Group{}, domain.ErrGroupNotFound
	}
	if err != nil {
		return domain.Group{}, domain.Wrap(domain.KindInternal, "read group", err)
	}
	var group domain.Group
	if err := json.Unmarshal(raw, &group); err != nil {
		return domain.Group{}, domain.Wrap(domain.KindInternal, "unmarshal group", err)
	}
	group.ID = groupID
	group.UserCount = count
	return group, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, data, user_count FROM groups`)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "list groups", err)
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var id string
		var raw []byte
		var count int
		if err := rows.Scan(&id, &raw, &count); err != nil {
			return nil, domain.Wrap(domain.KindInternal, "scan group", err)
		}
		var group domain.Group
		if err := json.Unmarshal(raw, &group); err != nil {
			return nil, domain.Wrap(domain.KindInternal, "unmarshal group", err)
		}
		group.ID = id
		group.UserCount = count
		out = append(out, group)
	}
	return out, rows.Err()
}

// AssignLeastLoaded locks every group row, picks the minimum counter with a
// random tie-break, and increments it before committing. Two concurrent
// callers serialize on the row locks, so each increment lands on the counter
// value the transaction actually read.
func (s *Store) AssignLeastLoaded(ctx context.Context) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, "begin assign tx", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id, user_count FROM groups FOR UPDATE`)
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, "lock groups", err)
	}

	min := -1
	var candidates []string
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			rows.Close()
			return "", domain.Wrap(domain.KindInternal, "scan group count", err)
		}
		switch {
		case min < 0 || count < min:
			min = count
			candidates = candidates[:0]
			candidates = append(candidates, id)
		case count == min:
			candidates = append(candidates, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", domain.Wrap(domain.KindInternal, "iterate groups", err)
	}
	if len(candidates) == 0 {
		return "", domain.ErrNoGroups
	}

	chosen := candidates[s.rnd.Intn(len(candidates))]
	if _, err := tx.Exec(ctx, `UPDATE groups SET user_count = user_count + 1 WHERE id=$1`, chosen); err != nil {
		return "", domain.Wrap(domain.KindInternal, "increment group count", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", domain.Wrap(domain.KindInternal, "commit assign tx", err)
	}
	return chosen, nil
}

func (s *Store) DecrementUserCount(ctx context.Context, groupID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE groups SET user_count = GREATEST(user_count - 1, 0) WHERE id=$1`, groupID)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "decrement group count", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

// --- UserRepository ---

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "marshal user", err)
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, data, group_id) VALUES ($1, $2::jsonb, NULLIF($3, '')) ON CONFLICT (id) DO NOTHING`,
		user.ID, data, user.GroupID)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "create user", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.E(domain.KindConflict, "user already exists")
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var raw []byte
	var groupID *string
	err := s.pool.QueryRow(ctx, `SELECT data, group_id FROM users WHERE id=$1`, userID).Scan(&raw, &groupID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, domain.Wrap(domain.KindInternal, "read user", err)
	}
	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return domain.User{}, domain.Wrap(domain.KindInternal, "unmarshal user", err)
	}
	user.ID = userID
	if groupID != nil {
		user.GroupID = *groupID
	}
	return user, nil
}

func (s *Store) AssignGroup(ctx context.Context, userID, groupID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET group_id=$2 WHERE id=$1`, userID, groupID)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "assign group", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// --- ProgressRepository ---

// EnsureStartTime inserts the start time only when absent and returns the
// stored value either way; the conditional insert happens at the store so no
// read-then-write race can reset a running timer.
func (s *Store) EnsureStartTime(ctx context.Context, userID, quizID string, startedAt int64) (int64, error) {
	var stored int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO quiz_start_times (user_id, quiz_id, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, quiz_id)
		DO UPDATE SET started_at = quiz_start_times.started_at
		RETURNING started_at`,
		userID, quizID, startedAt).Scan(&stored)
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, "ensure start time", err)
	}
	return stored, nil
}

func (s *Store) GetStartTime(ctx context.Context, userID, quizID string) (int64, bool, error) {
	var startedAt int64
	err := s.pool.QueryRow(ctx,
		`SELECT started_at FROM quiz_start_times WHERE user_id=$1 AND quiz_id=$2`,
		userID, quizID).Scan(&startedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, domain.Wrap(domain.KindInternal, "read start time", err)
	}
	return startedAt, true, nil
}

func (s *Store) CreateResult(ctx context.Context, result domain.QuizResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "marshal result", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_results (user_id, quiz_id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (user_id, quiz_id) DO NOTHING`,
		result.UserID, result.QuizID, data)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "create result", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, userID, quizID string) (domain.QuizResult, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM quiz_results WHERE user_id=$1 AND quiz_id=$2`,
		userID, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizResult{}, false, nil
	}
	if err != nil {
		return domain.QuizResult{}, false, domain.Wrap(domain.KindInternal, "read result", err)
	}
	var result domain.QuizResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.QuizResult{}, false, domain.Wrap(domain.KindInternal, "unmarshal result", err)
	}
	return result, true, nil
}

func (s *Store) ListResults(ctx context.Context, userID string) ([]domain.QuizResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM quiz_results WHERE user_id=$1`, userID)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "list results", err)
	}
	defer rows.Close()

	var out []domain.QuizResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, domain.Wrap(domain.KindInternal, "scan result", err)
		}
		var result domain.QuizResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, domain.Wrap(domain.KindInternal, "unmarshal result", err)
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE quiz_start_times`); err != nil {
		return domain.Wrap(domain.KindInternal, "reset start times", err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE quiz_results`); err != nil {
		return domain.Wrap(domain.KindInternal, "reset results", err)
	}
	return nil
}
