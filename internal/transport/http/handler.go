package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"event-quiz-service/internal/app"
	"event-quiz-service/internal/domain"
)

// Handler exposes the engagement engine over plain request/response HTTP.
// Identity arrives as the X-User-ID header; verifying it is the gateway's
// job, not ours.
type Handler struct {
	quizzes  *app.QuizService
	checkIn  *app.CheckInService
	schedule *app.ScheduleService
	admin    *app.AdminService
	log      *zap.Logger
}

func NewHandler(quizzes *app.QuizService, checkIn *app.CheckInService, schedule *app.ScheduleService, admin *app.AdminService, log *zap.Logger) *Handler {
	return &Handler{
		quizzes:  quizzes,
		checkIn:  checkIn,
		schedule: schedule,
		admin:    admin,
		log:      log,
	}
}

// Register mounts every route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /checkin", h.handleCheckIn)
	mux.HandleFunc("POST /groups", h.handleCreateGroup)
	mux.HandleFunc("GET /groups", h.handleListGroups)
	mux.HandleFunc("POST /quizzes", h.handleCreateQuiz)
	mux.HandleFunc("GET /quizzes", h.handleListQuizzes)
	mux.HandleFunc("GET /quizzes/{id}", h.handleReadQuiz)
	mux.HandleFunc("PATCH /quizzes/{id}", h.handleUpdateQuiz)
	mux.HandleFunc("DELETE /quizzes/{id}", h.handleDeleteQuiz)
	mux.HandleFunc("POST /quizzes/{id}/submit", h.handleSubmitQuiz)
	mux.HandleFunc("POST /schedule/sync", h.handleSyncSchedule)
	mux.HandleFunc("GET /schedule/talks", h.handleListTalks)
	mux.HandleFunc("POST /users", h.handleRegisterUser)
	mux.HandleFunc("GET /users/me", h.handleCurrentUser)
	mux.HandleFunc("GET /users/me/results", h.handleUserResults)
	mux.HandleFunc("POST /admin/reset", h.handleAdminReset)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	group, err := h.checkIn.CheckIn(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, group)
}

type createGroupRequest struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	ImageURL string `json:"imageUrl"`
}

func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.E(domain.KindInvalidInput, "invalid group payload"))
		return
	}
	group, err := h.checkIn.CreateGroup(r.Context(), domain.Group{
		Name:     req.Name,
		Color:    req.Color,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, group)
}

func (h *Handler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.checkIn.ListGroups(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, groups)
}

type quizPayload struct {
	ID            string            `json:"id,omitempty"`
	Title         string            `json:"title"`
	TalkID        string            `json:"talkId"`
	IsOpen        bool              `json:"isOpen"`
	TimerDuration int64             `json:"timerDuration"`
	Questions     []questionPayload `json:"questionList"`
}

type questionPayload struct {
	ID            string                `json:"id,omitempty"`
	Text          string                `json:"text"`
	AnswerList    []domain.AnswerOption `json:"answerList"`
	CorrectAnswer string                `json:"correctAnswer,omitempty"`
	Value         int                   `json:"value,omitempty"`
}

func (h *Handler) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.E(domain.KindInvalidInput, "invalid quiz payload"))
		return
	}
	quiz, err := h.quizzes.CreateQuiz(r.Context(), domain.Quiz{
		Title:        req.Title,
		TalkID:       req.TalkID,
		QuestionList: toQuestions(req.Questions),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, staffQuizView(quiz))
}

func (h *Handler) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.quizzes.ListQuizzes(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]quizPayload, 0, len(quizzes))
	for _, quiz := range quizzes {
		views = append(views, staffQuizView(quiz))
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleReadQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	quiz, err := h.quizzes.ReadQuiz(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, attendeeQuizView(quiz))
}

type updateQuizRequest struct {
	Title     *string           `json:"title"`
	TalkID    *string           `json:"talkId"`
	IsOpen    *bool             `json:"isOpen"`
	Questions []questionPayload `json:"questionList"`
}

func (h *Handler) handleUpdateQuiz(w http.ResponseWriter, r *http.Request) {
	var req updateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.E(domain.KindInvalidInput, "invalid quiz payload"))
		return
	}
	update := app.QuizUpdate{
		Title:  req.Title,
		TalkID: req.TalkID,
		IsOpen: req.IsOpen,
	}
	if req.Questions != nil {
		update.QuestionList = toQuestions(req.Questions)
	}
	quiz, err := h.quizzes.UpdateQuiz(r.Context(), r.PathValue("id"), update)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, staffQuizView(quiz))
}

func (h *Handler) handleDeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.quizzes.DeleteQuiz(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitQuizRequest struct {
	Answers []struct {
		QuestionID string `json:"questionId"`
		AnswerID   string `json:"answerId"`
	} `json:"answers"`
}

type submitQuizResponse struct {
	Score    int `json:"score"`
	MaxScore int `json:"maxScore"`
}

func (h *Handler) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req submitQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.E(domain.KindInvalidInput, "invalid submission payload"))
		return
	}
	answers := make(map[string]string, len(req.Answers))
	for _, a := range req.Answers {
		answers[a.QuestionID] = a.AnswerID
	}
	score, maxScore, err := h.quizzes.SubmitQuiz(r.Context(), r.PathValue("id"), answers, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, submitQuizResponse{Score: score, MaxScore: maxScore})
}

func (h *Handler) handleSyncSchedule(w http.ResponseWriter, r *http.Request) {
	talks, err := h.schedule.Sync(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, talks)
}

func (h *Handler) handleListTalks(w http.ResponseWriter, r *http.Request) {
	if err := h.schedule.EnsureSynced(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.schedule.Talks())
}

type registerUserRequest struct {
	Nickname string `json:"nickname"`
}

func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.E(domain.KindInvalidInput, "invalid user payload"))
		return
	}
	user, err := h.checkIn.Register(r.Context(), domain.User{ID: userID, Nickname: req.Nickname})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.checkIn.User(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleUserResults(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	results, err := h.quizzes.UserResults(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if results == nil {
		results = []domain.QuizResult{}
	}
	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.ResetEngagement(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, domain.E(domain.KindInvalidInput, "missing X-User-ID header"))
		return "", false
	}
	return userID, true
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the error taxonomy to stable statuses so clients can tell
// "try again later" from "you lost" from "you already did this".
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindExpired:
		status = http.StatusRequestTimeout
	case domain.KindInvalidInput:
		status = http.StatusBadRequest
	case domain.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	} else {
		h.log.Debug("request rejected", zap.Error(err), zap.Int("status", status))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		h.log.Error("write response", zap.Error(err))
	}
}

func toQuestions(payload []questionPayload) []domain.Question {
	questions := make([]domain.Question, 0, len(payload))
	for _, q := range payload {
		questions = append(questions, domain.Question{
			ID:            q.ID,
			Text:          q.Text,
			AnswerList:    q.AnswerList,
			CorrectAnswer: q.CorrectAnswer,
		})
	}
	return questions
}

// staffQuizView keeps correct answers; the staff list endpoint is the only
// consumer.
func staffQuizView(quiz domain.Quiz) quizPayload {
	questions := make([]questionPayload, 0, len(quiz.QuestionList))
	for _, q := range quiz.QuestionList {
		questions = append(questions, questionPayload{
			ID:            q.ID,
			Text:          q.Text,
			AnswerList:    q.AnswerList,
			CorrectAnswer: q.CorrectAnswer,
			Value:         q.Value,
		})
	}
	return quizPayload{
		ID:            quiz.ID,
		Title:         quiz.Title,
		TalkID:        quiz.TalkID,
		IsOpen:        quiz.IsOpen,
		TimerDuration: quiz.TimerDuration,
		Questions:     questions,
	}
}

// attendeeQuizView strips correct answers and point values; TimerDuration
// already carries the remaining budget for this reader.
func attendeeQuizView(quiz domain.Quiz) quizPayload {
	questions := make([]questionPayload, 0, len(quiz.QuestionList))
	for _, q := range quiz.QuestionList {
		questions = append(questions, questionPayload{
			ID:         q.ID,
			Text:       q.Text,
			AnswerList: q.AnswerList,
		})
	}
	return quizPayload{
		ID:            quiz.ID,
		Title:         quiz.Title,
		TalkID:        quiz.TalkID,
		IsOpen:        quiz.IsOpen,
		TimerDuration: quiz.TimerDuration,
		Questions:     questions,
	}
}
