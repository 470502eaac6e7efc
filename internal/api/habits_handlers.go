package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/limbo/supertimer/internal/daykey"
	errorvalues "github.com/limbo/supertimer/internal/error_values"
	"github.com/limbo/supertimer/internal/service"
	"github.com/limbo/supertimer/pkg/entity"
	"github.com/limbo/supertimer/pkg/httputil"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	// Completion bodies only carry a date
	maxCompletionBody = 1 << 10
)

type CreateHabitRequest struct {
	Name  string   `json:"name"`
	Icon  string   `json:"icon"`
	Color string   `json:"color"`
	Tags  []string `json:"tags"`
}

type UpdateHabitRequest struct {
	Name  *string   `json:"name"`
	Icon  *string   `json:"icon"`
	Color *string   `json:"color"`
	Tags  *[]string `json:"tags"`
}

// CompletionRequest optionally moves a completion to the day containing Date.
type CompletionRequest struct {
	Date *time.Time `json:"date"`
}

type GetHabitsResponse struct {
	UserID string              `json:"uid"`
	Page   int                 `json:"page"`
	Limit  int                 `json:"limit"`
	Habits []*entity.HabitView `json:"habits"`
}

type CompletionsResponse struct {
	HabitID     string   `json:"habit_id"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Completions []string `json:"completions"`
}

// writeHabitError maps service errors of habit operations to responses.
func writeHabitError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, errorvalues.ErrValidation):
		logger.Error(op+" error: invalid request", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, errorvalues.ErrInvalidDateRange):
		logger.Error(op + " error: invalid date range")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid date range", nil)
	case errors.Is(err, errorvalues.ErrHabitNotFound):
		logger.Error(op + " error: unexist habit")
		httputil.WriteErrorResponse(w, http.StatusNotFound, "habit doesn't exist", nil)
	case errors.Is(err, errorvalues.ErrUserNotFound):
		logger.Error(op + " error: unexist user")
		httputil.WriteErrorResponse(w, http.StatusNotFound, "user doesn't exist", nil)
	default:
		logger.Error(op+" error: service error", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusInternalServerError, "internal error during "+op, nil)
	}
}

// authorizedHabit extracts uid from context and habit id from path. Writes error response on failure.
func authorizedHabit(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string) (uuid.UUID, uuid.UUID, bool) {
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error(op + " error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		logger.Error(op + " error: invalid id in path value")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid habit id in path value", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return uid, id, true
}

// @Summary Create habit
// @Tags habits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateHabitRequest true "habit"
// @Success 201 {object} entity.Habit
// @Failure 400 {object} httputil.ErrorResponse
// @Router /api/v1/habits [post]
func (s *Server) CreateHabit(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("create habit error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	var req CreateHabitRequest
	defer r.Body.Close()
	err = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		logger.Error("create habit error: invalid request body")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	serviceReq := service.CreateHabitRequest{
		Name:  req.Name,
		Icon:  req.Icon,
		Color: req.Color,
		Tags:  req.Tags,
	}
	if err = service.Validate(serviceReq); err != nil {
		writeHabitError(w, logger, "create habit", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second*10)
	defer cancel()
	habit, err := s.habitsService.CreateHabit(ctx, uid, serviceReq)
	if err != nil {
		writeHabitError(w, logger, "create habit", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusCreated, habit)
	logger.Info("habit created", slog.String("habit_id", habit.ID.String()))
}

// @Summary List habits
// @Tags habits
// @Produce json
// @Security BearerAuth
// @Param tag query string false "only habits with tag"
// @Param limit query int false "page size, everything when omitted"
// @Param page query int false "page number"
// @Success 200 {object} GetHabitsResponse
// @Router /api/v1/habits [get]
func (s *Server) GetHabits(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("get habits error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	query := r.URL.Query()
	var limit, page, offset int
	if query.Has("limit") {
		limit, err = strconv.Atoi(query.Get("limit"))
		if err != nil || limit < 1 || limit > maxLimit {
			limit = defaultLimit
		}
		page, err = strconv.Atoi(query.Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		offset = (page - 1) * limit
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second*15)
	defer cancel()
	habits, err := s.habitsService.ListHabits(ctx, uid, service.ListHabitsOpts{
		Tag:    query.Get("tag"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeHabitError(w, logger, "get habits", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, GetHabitsResponse{
		UserID: uid.String(),
		Page:   page,
		Limit:  limit,
		Habits: habits,
	})
	logger.Info("habits provided")
}

// @Summary Get habit
// @Tags habits
// @Produce json
// @Security BearerAuth
// @Param id path string true "habit id"
// @Success 200 {object} entity.HabitView
// @Failure 404 {object} httputil.ErrorResponse
// @Router /api/v1/habits/{id} [get]
func (s *Server) GetHabit(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, id, ok := authorizedHabit(w, r, logger, "get habit")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second*10)
	defer cancel()
	habit, err := s.habitsService.GetHabit(ctx, id, uid)
	if err != nil {
		writeHabitError(w, logger, "get habit", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, habit)
}

// @Summary Update habit
// @Tags habits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "habit id"
// @Param request body UpdateHabitRequest true "fields to change"
// @Success 200 {object} entity.HabitView
// @Failure 400 {object} httputil.ErrorResponse
// @Failure 404 {object} httputil.ErrorResponse
// @Router /api/v1/habits/{id} [put]
func (s *Server) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, id, ok := authorizedHabit(w, r, logger, "update habit")
	if !ok {
		return
	}
	var req UpdateHabitRequest
	defer r.Body.Close()
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("update habit error: invalid request body")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	serviceReq := service.UpdateHabitRequest{
		Name:  req.Name,
		Icon:  req.Icon,
		Color: req.Color,
		Tags:  req.Tags,
	}
	if err := service.Validate(serviceReq); err != nil {
		writeHabitError(w, logger, "update habit", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second*10)
	defer cancel()
	habit, err := s.habitsService.UpdateHabit(ctx, id, uid, serviceReq)
	if err != nil {
		writeHabitError(w, logger, "update habit", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, habit)
	logger.Info("habit updated", slog.String("habit_id", id.String()))
}

// @Summary Delete habit with its completion history
// @Tags habits
// @Security BearerAuth
// @Param id path string true "habit id"
// @Success 204
// @Failure 404 {object} httputil.ErrorResponse
// @Router /api/v1/habits/{id} [delete]
func (s *Server) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, id, ok := authorizedHabit(w, r, logger, "habit deletion")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second*10)
	defer cancel()
	if err := s.habitsService.DeleteHabit(ctx, id, uid); err != nil {
		writeHabitError(w, logger, "habit deletion", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	logger.Info("habit deleted", slog.String("habit_id", id.String()))
}

// readCompletionDate reads optional {"date": ...} body. Empty body means now.
func readCompletionDate(r *http.Request) (*time.Time, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCompletionBody))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var req CompletionRequest
	if err := sonic.ConfigDefault.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return req.Date, nil
}

type completionFunc func(ctx context.Context, habitID, uid uuid.UUID, at *time.Time) (*entity.CompletionStatus, error)

func (s *Server) completion(w http.ResponseWriter, r *http.Request, op string, apply completionFunc) {
	logger := GetLoggerFromCtx(r.Context())
	uid, id, ok := authorizedHabit(w, r, logger, op)
	if !ok {
		return
	}
	at, err := readCompletionDate(r)
	if err != nil {
		logger.Error(op+" error: invalid request body", slog.String("error", err.Error()))
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second*10)
	defer cancel()
	status, err := apply(ctx, id, uid, at)
	if err != nil {
		writeHabitError(w, logger, op, err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, status)
	logger.Info(op+" done",
		slog.String("habit_id", id.String()),
		slog.Int("completion_count", status.CompletionCount),
	)
}

// @Summary Mark day as completed
// @Description Idempotent per day. Body is optional, current time is used without it.
// @Tags completions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "habit id"
// @Param request body CompletionRequest false "instant inside the day"
// @Success 200 {object} entity.CompletionStatus
// @Failure 404 {object} httputil.ErrorResponse
// @Router /api/v1/habits/{id}/complete [post]
func (s *Server) CompleteHabit(w http.ResponseWriter, r *http.Request) {
	s.completion(w, r, "complete habit", s.habitsService.CompleteHabit)
}

// @Summary Revert completion of a day
// @Description Idempotent per day. Body is optional, current time is used without it.
// @Tags completions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "habit id"
// @Param request body CompletionRequest false "instant inside the day"
// @Success 200 {object} entity.CompletionStatus
// @Failure 404 {object} httputil.ErrorResponse
// @Router /api/v1/habits/{id}/uncomplete [post]
func (s *Server) UncompleteHabit(w http.ResponseWriter, r *http.Request) {
	s.completion(w, r, "uncomplete habit", s.habitsService.UncompleteHabit)
}

// @Summary Tag usage across user's habits
// @Tags habits
// @Produce json
// @Security BearerAuth
// @Success 200 {array} entity.TagUsage
// @Router /api/v1/habits/tags [get]
func (s *Server) GetTagUsage(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, err := GetUIDFromContext(r)
	if err != nil {
		logger.Error("tag usage error: unauthorized")
		httputil.WriteErrorResponse(w, http.StatusUnauthorized, "no authorization", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second*10)
	defer cancel()
	usage, err := s.habitsService.TagUsage(ctx, uid)
	if err != nil {
		writeHabitError(w, logger, "tag usage", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, usage)
}

// @Summary Completed days in range
// @Tags completions
// @Produce json
// @Security BearerAuth
// @Param id path string true "habit id"
// @Param from query string true "first day, YYYY-MM-DD"
// @Param to query string true "last day, YYYY-MM-DD"
// @Success 200 {object} CompletionsResponse
// @Failure 400 {object} httputil.ErrorResponse
// @Router /api/v1/habits/{id}/completions [get]
func (s *Server) GetHabitCompletions(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, id, ok := authorizedHabit(w, r, logger, "get completions")
	if !ok {
		return
	}
	from, err := daykey.Parse(r.URL.Query().Get("from"))
	if err != nil {
		logger.Error("get completions error: invalid from")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD", nil)
		return
	}
	to, err := daykey.Parse(r.URL.Query().Get("to"))
	if err != nil {
		logger.Error("get completions error: invalid to")
		httputil.WriteErrorResponse(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second*10)
	defer cancel()
	completions, err := s.habitsService.GetHabitCompletions(ctx, id, uid, from, to)
	if err != nil {
		writeHabitError(w, logger, "get completions", err)
		return
	}
	days := make([]string, 0, len(completions))
	for _, c := range completions {
		days = append(days, c.Day.Format(daykey.Layout))
	}
	httputil.WriteJSONResponse(w, http.StatusOK, CompletionsResponse{
		HabitID:     id.String(),
		From:        from.Format(daykey.Layout),
		To:          to.Format(daykey.Layout),
		Completions: days,
	})
}

// @Summary Habit statistics
// @Tags completions
// @Produce json
// @Security BearerAuth
// @Param id path string true "habit id"
// @Success 200 {object} entity.HabitStats
// @Failure 404 {object} httputil.ErrorResponse
// @Router /api/v1/habits/{id}/stats [get]
func (s *Server) GetHabitStats(w http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromCtx(r.Context())
	uid, id, ok := authorizedHabit(w, r, logger, "get stats")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second*10)
	defer cancel()
	stats, err := s.habitsService.GetHabitStats(ctx, id, uid)
	if err != nil {
		writeHabitError(w, logger, "get stats", err)
		return
	}
	httputil.WriteJSONResponse(w, http.StatusOK, stats)
}
