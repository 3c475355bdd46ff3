package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"event-quiz-service/internal/domain"
)

// QuizConfig carries the scoring and timing knobs applied at quiz
// creation/submission time.
type QuizConfig struct {
	// TimePerQuestion is the per-question slice of the quiz timer.
	TimePerQuestion time.Duration
	// TotalPoints is the point budget divided across a quiz's questions.
	TotalPoints int
	// Grace is how long after nominal expiry a submission is still honored,
	// to absorb network latency. Reads get no grace.
	Grace time.Duration
}

// DefaultQuizConfig mirrors the production deployment.
func DefaultQuizConfig() QuizConfig {
	return QuizConfig{
		TimePerQuestion: time.Minute,
		TotalPoints:     100,
		Grace:           30 * time.Second,
	}
}

// QuizService owns the per-(user, quiz) timer state machine and the scoring
// and slot-deduplication rules applied on submission.
type QuizService struct {
	quizzes     QuizRepository
	users       UserRepository
	progress    ProgressRepository
	schedule    *ScheduleService
	leaderboard Leaderboard
	cfg         QuizConfig
	now         func() time.Time
}

func NewQuizService(quizzes QuizRepository, users UserRepository, progress ProgressRepository, schedule *ScheduleService, leaderboard Leaderboard, cfg QuizConfig) *QuizService {
	return &QuizService{
		quizzes:     quizzes,
		users:       users,
		progress:    progress,
		schedule:    schedule,
		leaderboard: leaderboard,
		cfg:         cfg,
		now:         time.Now,
	}
}

// NewQuizServiceWithClock is test-only for deterministic timers.
func NewQuizServiceWithClock(quizzes QuizRepository, users UserRepository, progress ProgressRepository, schedule *ScheduleService, leaderboard Leaderboard, cfg QuizConfig, now func() time.Time) *QuizService {
	s := NewQuizService(quizzes, users, progress, schedule, leaderboard, cfg)
	s.now = now
	return s
}

// CreateQuiz stores a staff-authored quiz. Question values are divided from
// the configured budget and the timer is derived from the question count; the
// creator supplies neither. New quizzes are always closed.
func (s *QuizService) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if len(quiz.QuestionList) == 0 {
		return domain.Quiz{}, domain.E(domain.KindInvalidInput, "quiz needs at least one question")
	}
	for i := range quiz.QuestionList {
		if quiz.QuestionList[i].ID == "" {
			quiz.QuestionList[i].ID = uuid.NewString()
		}
	}
	applyPointBudget(quiz.QuestionList, s.cfg.TotalPoints)
	quiz.TimerDuration = int64(len(quiz.QuestionList)) * s.cfg.TimePerQuestion.Milliseconds()
	quiz.IsOpen = false
	return s.quizzes.CreateQuiz(ctx, quiz)
}

// UpdateQuiz applies a partial update. A new question list re-runs the value
// distribution and timer derivation.
func (s *QuizService) UpdateQuiz(ctx context.Context, quizID string, update QuizUpdate) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if update.Title != nil {
		quiz.Title = *update.Title
	}
	if update.TalkID != nil {
		quiz.TalkID = *update.TalkID
	}
	if update.IsOpen != nil {
		quiz.IsOpen = *update.IsOpen
	}
	if update.QuestionList != nil {
		if len(update.QuestionList) == 0 {
			return domain.Quiz{}, domain.E(domain.KindInvalidInput, "quiz needs at least one question")
		}
		quiz.QuestionList = update.QuestionList
		for i := range quiz.QuestionList {
			if quiz.QuestionList[i].ID == "" {
				quiz.QuestionList[i].ID = uuid.NewString()
			}
		}
		applyPointBudget(quiz.QuestionList, s.cfg.TotalPoints)
		quiz.TimerDuration = int64(len(quiz.QuestionList)) * s.cfg.TimePerQuestion.Milliseconds()
	}
	if err := s.quizzes.UpdateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// QuizUpdate is a partial quiz update; nil fields stay untouched.
type QuizUpdate struct {
	Title        *string
	TalkID       *string
	IsOpen       *bool
	QuestionList []domain.Question
}

// ListQuizzes returns every quiz, answers included (staff surface).
func (s *QuizService) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.quizzes.ListQuizzes(ctx)
}

// DeleteQuiz removes a quiz.
func (s *QuizService) DeleteQuiz(ctx context.Context, quizID string) error {
	return s.quizzes.DeleteQuiz(ctx, quizID)
}

// ReadQuiz returns an open quiz for an attendee and drives the timer state
// machine: the first read creates the start time, later reads report the
// remaining budget in TimerDuration, and an exhausted timer or an existing
// result blocks the read.
func (s *QuizService) ReadQuiz(ctx context.Context, quizID, userID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !quiz.IsOpen {
		return domain.Quiz{}, domain.ErrQuizClosed
	}
	if _, ok, err := s.progress.GetResult(ctx, userID, quizID); err != nil {
		return domain.Quiz{}, err
	} else if ok {
		return domain.Quiz{}, domain.ErrAlreadySubmitted
	}

	now := s.now().UnixMilli()
	startedAt, err := s.progress.EnsureStartTime(ctx, userID, quizID, now)
	if err != nil {
		return domain.Quiz{}, err
	}

	remaining := quiz.TimerDuration - (now - startedAt)
	if remaining <= 0 {
		return domain.Quiz{}, domain.ErrQuizTimeExpired
	}
	quiz.TimerDuration = remaining
	return quiz, nil
}

// SubmitQuiz validates a submission against the timer and question set,
// scales the raw score by the count of schedule slots this submission newly
// claims, persists the write-once result, and forwards the points to the
// leaderboard. Submissions get the configured grace on top of the timer;
// reads do not.
func (s *QuizService) SubmitQuiz(ctx context.Context, quizID string, answers map[string]string, userID string) (score, maxScore int, err error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return 0, 0, err
	}
	if !quiz.IsOpen {
		return 0, 0, domain.ErrQuizClosed
	}
	if _, ok, err := s.progress.GetResult(ctx, userID, quizID); err != nil {
		return 0, 0, err
	} else if ok {
		return 0, 0, domain.ErrAlreadySubmitted
	}
	startedAt, ok, err := s.progress.GetStartTime(ctx, userID, quizID)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, domain.ErrStartTimeNotFound
	}
	if len(answers) != len(quiz.QuestionList) {
		return 0, 0, domain.ErrInvalidAnswerList
	}
	now := s.now().UnixMilli()
	if now > startedAt+quiz.TimerDuration+s.cfg.Grace.Milliseconds() {
		return 0, 0, domain.ErrQuizTimeExpired
	}

	for _, q := range quiz.QuestionList {
		maxScore += q.Value
		if answers[q.ID] == q.CorrectAnswer {
			score += q.Value
		}
	}

	multiplier, err := s.newSlotCount(ctx, quiz, userID)
	if err != nil {
		return 0, 0, err
	}
	score *= multiplier
	maxScore *= multiplier

	result := domain.QuizResult{
		UserID:      userID,
		QuizID:      quizID,
		QuizTitle:   quiz.Title,
		Score:       score,
		MaxScore:    maxScore,
		SubmittedAt: now,
	}
	if err := s.progress.CreateResult(ctx, result); err != nil {
		return 0, 0, err
	}

	if err := s.leaderboard.IncrementUserScore(ctx, userID, score); err != nil {
		return 0, 0, err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		// Unknown users score without a group; anything else is a store
		// failure and must surface.
		if domain.KindOf(err) == domain.KindNotFound {
			return score, maxScore, nil
		}
		return 0, 0, err
	}
	if user.GroupID != "" {
		if err := s.leaderboard.IncrementGroupScore(ctx, user.GroupID, score); err != nil {
			return 0, 0, err
		}
	}
	return score, maxScore, nil
}

// UserResults returns every quiz result recorded for a user.
func (s *QuizService) UserResults(ctx context.Context, userID string) ([]domain.QuizResult, error) {
	return s.progress.ListResults(ctx, userID)
}

// newSlotCount is the new-slot multiplier: the quiz's talk slots minus every
// slot already credited through the user's previous submissions. Zero means
// the submission earns nothing even when answered correctly; that is the
// dedup rule, not an error.
func (s *QuizService) newSlotCount(ctx context.Context, quiz domain.Quiz, userID string) (int, error) {
	if err := s.schedule.EnsureSynced(ctx); err != nil {
		return 0, err
	}
	talkSlots := s.schedule.SlotsForTalk(quiz.TalkID)

	results, err := s.progress.ListResults(ctx, userID)
	if err != nil {
		return 0, err
	}
	completed := make(map[domain.SlotKey]struct{})
	for _, r := range results {
		prior, err := s.quizzes.GetQuiz(ctx, r.QuizID)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				continue // quiz deleted after submission; its slots no longer bind
			}
			return 0, err
		}
		for _, slot := range s.schedule.SlotsForTalk(prior.TalkID) {
			completed[slot.Key()] = struct{}{}
		}
	}

	count := 0
	for _, slot := range talkSlots {
		if _, taken := completed[slot.Key()]; !taken {
			count++
		}
	}
	return count, nil
}

// applyPointBudget divides total across questions with no rounding loss: the
// remainder lands on the first questions so the sum is exact.
func applyPointBudget(questions []domain.Question, total int) {
	n := len(questions)
	if n == 0 {
		return
	}
	base := total / n
	remainder := total % n
	for i := range questions {
		questions[i].Value = base
		if i < remainder {
			questions[i].Value++
		}
	}
}
