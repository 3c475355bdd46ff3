package app

import (
	"context"

	"event-quiz-service/internal/domain"
)

// TalkProvider fetches the raw conference schedule from the external provider.
type TalkProvider interface {
	FetchTalks(ctx context.Context) ([]domain.Talk, error)
}

// QuizRepository stores staff-authored quizzes.
type QuizRepository interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	UpdateQuiz(ctx context.Context, quiz domain.Quiz) error
	DeleteQuiz(ctx context.Context, quizID string) error
}

// GroupRepository stores check-in groups. AssignLeastLoaded must run as a
// single serializable transaction: read all counters, pick the minimum with a
// uniform-random tie-break, increment it, return the id.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group domain.Group) (domain.Group, error)
	GetGroup(ctx context.Context, groupID string) (domain.Group, error)
	ListGroups(ctx context.Context) ([]domain.Group, error)
	AssignLeastLoaded(ctx context.Context) (string, error)
	DecrementUserCount(ctx context.Context, groupID string) error
}

// UserRepository stores the minimal attendee record.
type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
	AssignGroup(ctx context.Context, userID, groupID string) error
}

// ProgressRepository stores per-(user, quiz) timer state and results.
// EnsureStartTime is create-if-absent at the store level and returns whichever
// value won, so concurrent first reads can never reset the timer.
// CreateResult fails with domain.ErrAlreadySubmitted when a result exists.
type ProgressRepository interface {
	EnsureStartTime(ctx context.Context, userID, quizID string, startedAt int64) (int64, error)
	GetStartTime(ctx context.Context, userID, quizID string) (int64, bool, error)
	CreateResult(ctx context.Context, result domain.QuizResult) error
	GetResult(ctx context.Context, userID, quizID string) (domain.QuizResult, bool, error)
	ListResults(ctx context.Context, userID string) ([]domain.QuizResult, error)
	Reset(ctx context.Context) error
}

// Leaderboard is the external score collaborator. Both increments are atomic;
// the engine calls them at most once per successful submission.
type Leaderboard interface {
	IncrementUserScore(ctx context.Context, userID string, delta int) error
	IncrementGroupScore(ctx context.Context, groupID string, delta int) error
	Reset(ctx context.Context) error
}
