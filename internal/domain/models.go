package domain

import "time"

// Talk is a scheduled item in the external conference program. Talks are
// immutable once fetched; every sync replaces the whole set.
type Talk struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"startsAt"`
	EndsAt    time.Time `json:"endsAt"`
	IsService bool      `json:"isService"` // breaks/plenaries: consume time, award nothing
	Tags      []string  `json:"tags,omitempty"`
}

// Duration returns the talk length.
func (t Talk) Duration() time.Duration {
	return t.EndsAt.Sub(t.StartsAt)
}

// Slot is a half-open interval [Start, End) of fixed duration, the unit of
// scoring credit and deduplication. Equality is by (start, end).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotKey is the comparable identity of a slot, safe for use as a map key
// (time.Time carries monotonic/location state that breaks == comparisons).
type SlotKey struct {
	Start int64
	End   int64
}

func (s Slot) Key() SlotKey {
	return SlotKey{Start: s.Start.UnixMilli(), End: s.End.UnixMilli()}
}

// Overlaps reports half-open interval overlap with [start, end).
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && s.End.After(start)
}

// AnswerOption is one selectable answer for a question.
type AnswerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question models an MCQ question with exactly one correct option. Value is
// assigned by dividing the quiz point budget across questions.
type Question struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	AnswerList    []AnswerOption `json:"answerList"`
	CorrectAnswer string         `json:"correctAnswer"`
	Value         int            `json:"value"`
}

// Quiz is a staff-authored question set bound to a talk. TimerDuration is in
// milliseconds and is always computed from the question count, never supplied
// by the creator.
type Quiz struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	QuestionList  []Question `json:"questionList"`
	IsOpen        bool       `json:"isOpen"`
	TimerDuration int64      `json:"timerDuration"`
	TalkID        string     `json:"talkId"`
}

// QuizStartTime records when a user first opened a quiz. Created on first
// read, never overwritten.
type QuizStartTime struct {
	UserID    string `json:"userId"`
	QuizID    string `json:"quizId"`
	StartedAt int64  `json:"startedAt"` // ms since epoch
}

// QuizResult is the write-once outcome of a submission. Its presence marks
// the (user, quiz) pair as already submitted.
type QuizResult struct {
	UserID      string `json:"userId"`
	QuizID      string `json:"quizId"`
	QuizTitle   string `json:"quizTitle"`
	Score       int    `json:"score"`
	MaxScore    int    `json:"maxScore"`
	SubmittedAt int64  `json:"submittedAt"` // ms since epoch
}

// Group is a check-in group. UserCount is mutated only through the balancer
// increment and the symmetric decrement.
type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	ImageURL  string `json:"imageUrl"`
	UserCount int    `json:"userCount"`
}

// User is the minimal attendee record the engine needs: identity plus the
// group assigned at check-in (empty until then).
type User struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	GroupID  string `json:"groupId,omitempty"`
}

// CheckedIn reports whether the user has been assigned a group.
func (u User) CheckedIn() bool {
	return u.GroupID != ""
}
