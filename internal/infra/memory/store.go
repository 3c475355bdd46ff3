package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"event-quiz-service/internal/domain"
)

// Store is an in-memory implementation of the app repositories, used for
// tests and for running the server without Postgres. One mutex covers all
// collections; the balancer's read-pick-increment runs entirely under it,
// which gives the same serializability the Postgres transaction provides.
type Store struct {
	mu         sync.Mutex
	rnd        *rand.Rand
	quizzes    map[string]domain.Quiz
	groups     map[string]domain.Group
	users      map[string]domain.User
	startTimes map[progressKey]int64
	results    map[progressKey]domain.QuizResult
}

type progressKey struct {
	userID string
	quizID string
}

func NewStore() *Store {
	return &Store{
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		quizzes:    make(map[string]domain.Quiz),
		groups:     make(map[string]domain.Group),
		users:      make(map[string]domain.User),
		startTimes: make(map[progressKey]int64),
		results:    make(map[progressKey]domain.QuizResult),
	}
}

// --- QuizRepository ---

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	s.quizzes[quiz.ID] = quiz
	return quiz, nil
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) ListQuizzes(_ context.Context) ([]domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		out = append(out, quiz)
	}
	return out, nil
}

func (s *Store) UpdateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quiz.ID]; !ok {
		return domain.ErrQuizNotFound
	}
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *Store) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	return nil
}

// --- GroupRepository ---

func (s *Store) CreateGroup(_ context.Context, group domain.Group) (domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	s.groups[group.ID] = group
	return group, nil
}

func (s *Store) GetGroup(_ context.Context, groupID string) (domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return domain.Group{}, domain.ErrGroupNotFound
	}
	return group, nil
}

func (s *Store) ListGroups(_ context.Context) ([]domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Group, 0, len(s.groups))
	for _, group := range s.groups {
		out = append(out, group)
	}
	return out, nil
}

// AssignLeastLoaded picks a minimum-count group with a uniform-random
// tie-break and increments it, all under the store lock.
func (s *Store) AssignLeastLoaded(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.groups) == 0 {
		return "", domain.ErrNoGroups
	}

	min := -1
	var candidates []string
	for id, group := range s.groups {
		switch {
		case min < 0 || group.UserCount < min:
			min = group.UserCount
			candidates = candidates[:0]
			candidates = append(candidates, id)
		case group.UserCount == min:
			candidates = append(candidates, id)
		}
	}

	chosen := candidates[s.rnd.Intn(len(candidates))]
	group := s.groups[chosen]
	group.UserCount++
	s.groups[chosen] = group
	return chosen, nil
}

func (s *Store) DecrementUserCount(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return domain.ErrGroupNotFound
	}
	if group.UserCount > 0 {
		group.UserCount--
		s.groups[groupID] = group
	}
	return nil
}

// --- UserRepository ---

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return domain.E(domain.KindConflict, "user already exists")
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) AssignGroup(_ context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.GroupID = groupID
	s.users[userID] = user
	return nil
}

// --- ProgressRepository ---

// EnsureStartTime is create-if-absent: a concurrent first read cannot reset
// an existing start time, each caller gets whichever value won.
func (s *Store) EnsureStartTime(_ context.Context, userID, quizID string, startedAt int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey{userID: userID, quizID: quizID}
	if existing, ok := s.startTimes[key]; ok {
		return existing, nil
	}
	s.startTimes[key] = startedAt
	return startedAt, nil
}

func (s *Store) GetStartTime(_ context.Context, userID, quizID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	startedAt, ok := s.startTimes[progressKey{userID: userID, quizID: quizID}]
	return startedAt, ok, nil
}

func (s *Store) CreateResult(_ context.Context, result domain.QuizResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey{userID: result.UserID, quizID: result.QuizID}
	if _, ok := s.results[key]; ok {
		return domain.ErrAlreadySubmitted
	}
	s.results[key] = result
	return nil
}

func (s *Store) GetResult(_ context.Context, userID, quizID string) (domain.QuizResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[progressKey{userID: userID, quizID: quizID}]
	return result, ok, nil
}

func (s *Store) ListResults(_ context.Context, userID string) ([]domain.QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.QuizResult
	for key, result := range s.results {
		if key.userID == userID {
			out = append(out, result)
		}
	}
	return out, nil
}

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTimes = make(map[progressKey]int64)
	s.results = make(map[progressKey]domain.QuizResult)
	return nil
}
