package service

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/limbo/supertimer/internal/daykey"
	errorvalues "github.com/limbo/supertimer/internal/error_values"
	"github.com/limbo/supertimer/internal/repository"
	"github.com/limbo/supertimer/pkg/entity"
	"github.com/limbo/supertimer/pkg/logger"
)

// HabitsService keeps habit counters consistent with the completion ledger.
// Exclusion between concurrent completions comes from the ledger's unique key,
// counters move only through single-statement adjustments.
type HabitsService struct {
	habitsRepo      repository.HabitsRepositoryI
	completionsRepo repository.HabitCompletionsRepositoryI
	days            *daykey.Normalizer
}

func NewHabitsService(habitsRepo repository.HabitsRepositoryI, completionsRepo repository.HabitCompletionsRepositoryI, days *daykey.Normalizer) *HabitsService {
	if habitsRepo == nil || completionsRepo == nil {
		log.Fatal("on habits service provided nil repos")
	}
	if days == nil {
		days = daykey.New(time.UTC)
	}
	return &HabitsService{
		habitsRepo:      habitsRepo,
		completionsRepo: completionsRepo,
		days:            days,
	}
}

func repoError(err error) error {
	if errors.Is(err, errorvalues.ErrHabitNotFound) {
		return errorvalues.ErrHabitNotFound
	}
	return errors.New("repository error: " + err.Error())
}

// cleanTags trims tags and drops repeats, keeping first occurrences in order.
func cleanTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		result = append(result, t)
	}
	return result
}

func (hs *HabitsService) CreateHabit(ctx context.Context, uid uuid.UUID, req CreateHabitRequest) (*entity.Habit, error) {
	habit, err := hs.habitsRepo.Create(ctx, &entity.Habit{
		UserID: uid,
		Name:   strings.TrimSpace(req.Name),
		Icon:   req.Icon,
		Color:  req.Color,
		Tags:   cleanTags(req.Tags),
	})
	if err != nil {
		if errors.Is(err, errorvalues.ErrOwnerNotFound) {
			return nil, errorvalues.ErrUserNotFound
		}
		return nil, errors.New("habits repository error: " + err.Error())
	}
	return habit, nil
}

func (hs *HabitsService) completedOn(ctx context.Context, habit *entity.Habit, day time.Time) (*entity.HabitView, error) {
	done, err := hs.completionsRepo.Exists(ctx, habit.ID, habit.UserID, day)
	if err != nil {
		return nil, repoError(err)
	}
	return &entity.HabitView{
		Habit:          *habit,
		CompletedToday: done,
	}, nil
}

func (hs *HabitsService) GetHabit(ctx context.Context, habitID, uid uuid.UUID) (*entity.HabitView, error) {
	habit, err := hs.habitsRepo.GetByID(ctx, uid, habitID)
	if err != nil {
		return nil, repoError(err)
	}
	return hs.completedOn(ctx, habit, hs.days.Today())
}

func (hs *HabitsService) ListHabits(ctx context.Context, uid uuid.UUID, opts ListHabitsOpts) ([]*entity.HabitView, error) {
	habits, err := hs.habitsRepo.ListByOwner(ctx, uid, repository.ListOpts{
		Tag:    strings.TrimSpace(opts.Tag),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
	if err != nil {
		return nil, repoError(err)
	}
	today := hs.days.Today()
	views := make([]*entity.HabitView, 0, len(habits))
	for _, h := range habits {
		view, err := hs.completedOn(ctx, h, today)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (hs *HabitsService) UpdateHabit(ctx context.Context, habitID, uid uuid.UUID, req UpdateHabitRequest) (*entity.HabitView, error) {
	upd := entity.HabitUpdate{
		Icon:  req.Icon,
		Color: req.Color,
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		upd.Name = &name
	}
	if req.Tags != nil {
		tags := cleanTags(*req.Tags)
		upd.Tags = &tags
	}
	habit, err := hs.habitsRepo.Update(ctx, uid, habitID, upd)
	if err != nil {
		return nil, repoError(err)
	}
	return hs.completedOn(ctx, habit, hs.days.Today())
}

func (hs *HabitsService) DeleteHabit(ctx context.Context, habitID, uid uuid.UUID) error {
	if _, err := hs.habitsRepo.Delete(ctx, uid, habitID); err != nil {
		return repoError(err)
	}
	removed, err := hs.completionsRepo.DeleteAllByHabit(ctx, habitID)
	if err != nil {
		logger.FromContext(ctx).Warn("habit deleted but its completions were not",
			slog.String("habit_id", habitID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.FromContext(ctx).Debug("habit completions removed",
		slog.String("habit_id", habitID.String()),
		slog.Int64("count", removed),
	)
	return nil
}

func (hs *HabitsService) CompleteHabit(ctx context.Context, habitID, uid uuid.UUID, at *time.Time) (*entity.CompletionStatus, error) {
	if _, err := hs.habitsRepo.GetByID(ctx, uid, habitID); err != nil {
		return nil, repoError(err)
	}
	day := hs.days.Resolve(at)
	err := hs.completionsRepo.Create(ctx, habitID, uid, day)
	switch {
	case err == nil:
		counters, err := hs.habitsRepo.AdjustCounters(ctx, uid, habitID, 1, 1)
		if err != nil {
			if errors.Is(err, errorvalues.ErrHabitNotFound) {
				// Habit was deleted after the ledger insert, drop the orphan.
				if _, delErr := hs.completionsRepo.Delete(ctx, habitID, uid, day); delErr != nil {
					logger.FromContext(ctx).Warn("orphan completion left behind",
						slog.String("habit_id", habitID.String()),
						slog.String("error", delErr.Error()),
					)
				}
				return nil, errorvalues.ErrHabitNotFound
			}
			return nil, repoError(err)
		}
		return &entity.CompletionStatus{HabitCounters: *counters, CompletedToday: true}, nil
	case errors.Is(err, errorvalues.ErrOwnerNotFound):
		// Owner removed along with the habit.
		return nil, errorvalues.ErrHabitNotFound
	case errors.Is(err, errorvalues.ErrCompletionExists):
		habit, err := hs.habitsRepo.GetByID(ctx, uid, habitID)
		if err != nil {
			return nil, repoError(err)
		}
		return &entity.CompletionStatus{
			HabitCounters: entity.HabitCounters{
				CompletionCount: habit.CompletionCount,
				Streak:          habit.Streak,
			},
			CompletedToday: true,
		}, nil
	default:
		return nil, repoError(err)
	}
}

func (hs *HabitsService) UncompleteHabit(ctx context.Context, habitID, uid uuid.UUID, at *time.Time) (*entity.CompletionStatus, error) {
	habit, err := hs.habitsRepo.GetByID(ctx, uid, habitID)
	if err != nil {
		return nil, repoError(err)
	}
	day := hs.days.Resolve(at)
	deleted, err := hs.completionsRepo.Delete(ctx, habitID, uid, day)
	if err != nil {
		return nil, repoError(err)
	}
	status := &entity.CompletionStatus{
		HabitCounters: entity.HabitCounters{
			CompletionCount: habit.CompletionCount,
			Streak:          habit.Streak,
		},
	}
	if !deleted {
		return status, nil
	}
	counters, err := hs.habitsRepo.AdjustCounters(ctx, uid, habitID, -1, -1)
	if err != nil {
		return nil, repoError(err)
	}
	status.HabitCounters = *counters
	return status, nil
}

func (hs *HabitsService) TagUsage(ctx context.Context, uid uuid.UUID) ([]entity.TagUsage, error) {
	usage, err := hs.habitsRepo.TagUsage(ctx, uid)
	if err != nil {
		return nil, repoError(err)
	}
	return usage, nil
}

func (hs *HabitsService) GetHabitCompletions(ctx context.Context, habitID, uid uuid.UUID, from, to time.Time) ([]entity.HabitCompletion, error) {
	if to.Before(from) {
		return nil, errorvalues.ErrInvalidDateRange
	}
	if _, err := hs.habitsRepo.GetByID(ctx, uid, habitID); err != nil {
		return nil, repoError(err)
	}
	completions, err := hs.completionsRepo.GetByHabitAndDateRange(ctx, habitID, uid, from, to)
	if err != nil {
		return nil, repoError(err)
	}
	return completions, nil
}

func (hs *HabitsService) GetHabitStats(ctx context.Context, habitID, uid uuid.UUID) (*entity.HabitStats, error) {
	habit, err := hs.habitsRepo.GetByID(ctx, uid, habitID)
	if err != nil {
		return nil, repoError(err)
	}
	total, err := hs.completionsRepo.CountByHabitID(ctx, habitID)
	if err != nil {
		return nil, repoError(err)
	}
	last, err := hs.completionsRepo.GetLastCompletionDay(ctx, habitID)
	if err != nil {
		return nil, repoError(err)
	}
	view, err := hs.completedOn(ctx, habit, hs.days.Today())
	if err != nil {
		return nil, err
	}
	return &entity.HabitStats{
		ID:               habit.ID,
		CompletionCount:  habit.CompletionCount,
		Streak:           habit.Streak,
		TotalCompletions: total,
		CompletedToday:   view.CompletedToday,
		LastCompletion:   last,
	}, nil
}
