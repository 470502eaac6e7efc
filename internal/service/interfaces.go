package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/limbo/supertimer/pkg/entity"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/limbo/supertimer/internal/service UserServiceI,HabitsServiceI

type RegisterRequest struct {
	Name     string `validate:"required,alphanum_underscore,min=3,max=100"`
	Password string `validate:"required,min=8,max=72"`
}

type UserServiceI interface {
	// Validates user's credentials, creates new row in database. Returns user's data with ID
	Register(ctx context.Context, req *RegisterRequest) (*entity.User, error)
	// Compares given credentials. If ok, give back user's data with ID.
	Login(ctx context.Context, name, password string) (*entity.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	GetByName(ctx context.Context, name string) (*entity.User, error)
}

type CreateHabitRequest struct {
	Name  string   `validate:"required,notblank,max=100"`
	Icon  string   `validate:"max=64"`
	Color string   `validate:"max=64"`
	Tags  []string `validate:"max=20,dive,notblank,max=50"`
}

// UpdateHabitRequest is a partial update. Nil fields are left untouched.
type UpdateHabitRequest struct {
	Name  *string   `validate:"omitnil,notblank,max=100"`
	Icon  *string   `validate:"omitnil,max=64"`
	Color *string   `validate:"omitnil,max=64"`
	Tags  *[]string `validate:"omitnil,max=20,dive,notblank,max=50"`
}

type ListHabitsOpts struct {
	Tag    string
	Limit  int
	Offset int
}

type HabitsServiceI interface {
	CreateHabit(ctx context.Context, uid uuid.UUID, req CreateHabitRequest) (*entity.Habit, error)
	// Habit with completion state for today
	GetHabit(ctx context.Context, habitID, uid uuid.UUID) (*entity.HabitView, error)
	ListHabits(ctx context.Context, uid uuid.UUID, opts ListHabitsOpts) ([]*entity.HabitView, error)
	UpdateHabit(ctx context.Context, habitID, uid uuid.UUID, req UpdateHabitRequest) (*entity.HabitView, error)
	// Deletes habit and its completion history
	DeleteHabit(ctx context.Context, habitID, uid uuid.UUID) error
	// Marks the day containing at (now when nil) as completed. Idempotent per day
	CompleteHabit(ctx context.Context, habitID, uid uuid.UUID, at *time.Time) (*entity.CompletionStatus, error)
	// Reverts completion of the day containing at (now when nil). Idempotent per day
	UncompleteHabit(ctx context.Context, habitID, uid uuid.UUID, at *time.Time) (*entity.CompletionStatus, error)
	TagUsage(ctx context.Context, uid uuid.UUID) ([]entity.TagUsage, error)
	// Completions between from and to day keys, both included
	GetHabitCompletions(ctx context.Context, habitID, uid uuid.UUID, from, to time.Time) ([]entity.HabitCompletion, error)
	GetHabitStats(ctx context.Context, habitID, uid uuid.UUID) (*entity.HabitStats, error)
}
