package repository

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/limbo/supertimer/pkg/entity"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/limbo/supertimer/internal/repository UsersRepositoryI,HabitsRepositoryI,HabitCompletionsRepositoryI

type UsersRepositoryI interface {
	// Creates new user in database
	Create(ctx context.Context, user *entity.User) error
	// Looks up user by name. Can be used for login
	FindByName(ctx context.Context, name string) (*entity.User, error)
	// Looks up user by uid. Can be used for authorization middleware
	FindByID(ctx context.Context, uid uuid.UUID) (*entity.User, error)
}

type ListOpts struct {
	// Only habits tagged with Tag. Empty means no filter
	Tag string
	// Zero Limit lists everything
	Limit  int
	Offset int
}

type HabitsRepositoryI interface {
	// Creates new habit. UserID and Name are necessary, counters always start at zero
	Create(ctx context.Context, habit *entity.Habit) (*entity.Habit, error)
	// Searches habit with given id owned by uid
	GetByID(ctx context.Context, uid, id uuid.UUID) (*entity.Habit, error)
	// Lists habits owned by uid, optionally filtered by tag
	ListByOwner(ctx context.Context, uid uuid.UUID, opts ListOpts) ([]*entity.Habit, error)
	// Applies non-nil fields of upd
	Update(ctx context.Context, uid, id uuid.UUID, upd entity.HabitUpdate) (*entity.Habit, error)
	// Deletes habit and returns deleted row
	Delete(ctx context.Context, uid, id uuid.UUID) (*entity.Habit, error)
	// Atomically adds deltas to completion count and streak, never going below zero
	AdjustCounters(ctx context.Context, uid, id uuid.UUID, completionDelta, streakDelta int) (*entity.HabitCounters, error)
	// Counts tag usage across habits of uid
	TagUsage(ctx context.Context, uid uuid.UUID) ([]entity.TagUsage, error)
	// Re-derives counters from completions for habits untouched since settledBefore.
	// Returns number of fixed habits
	ReconcileCounters(ctx context.Context, settledBefore time.Time) (int64, error)
}

type HabitCompletionsRepositoryI interface {
	// Creates completion of habit for a day. ErrCompletionExists if the day is already completed
	Create(ctx context.Context, habitID, uid uuid.UUID, day time.Time) error
	// Deletes completion for a day. Reports whether something was deleted
	Delete(ctx context.Context, habitID, uid uuid.UUID, day time.Time) (bool, error)
	// Inspects if completion exists
	Exists(ctx context.Context, habitID, uid uuid.UUID, day time.Time) (bool, error)
	// Deletes every completion of habit
	DeleteAllByHabit(ctx context.Context, habitID uuid.UUID) (int64, error)
	// Provides completions of habitID for a period, both ends included
	GetByHabitAndDateRange(ctx context.Context, habitID, uid uuid.UUID, from, to time.Time) ([]entity.HabitCompletion, error)
	// Returns last completed day of habitID
	GetLastCompletionDay(ctx context.Context, habitID uuid.UUID) (*time.Time, error)
	// Returns count of completions for habitID
	CountByHabitID(ctx context.Context, habitID uuid.UUID) (int, error)
}

type DBConfig interface {
	ConnString() string
}

type PgConnection interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGCfg struct {
	Address  string
	Username string
	Password string
	DB       string
}

func (pgcfg *PGCfg) ConnString() string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(pgcfg.Username, pgcfg.Password),
		Host:   pgcfg.Address,
		Path:   "/" + pgcfg.DB,
	}
	return u.String()
}
