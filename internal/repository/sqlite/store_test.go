package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	errorvalues "github.com/limbo/supertimer/internal/error_values"
	"github.com/limbo/supertimer/internal/repository"
	"github.com/limbo/supertimer/internal/repository/sqlite"
	"github.com/limbo/supertimer/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ repository.UsersRepositoryI            = (*sqlite.UsersRepository)(nil)
	_ repository.HabitsRepositoryI           = (*sqlite.HabitsRepository)(nil)
	_ repository.HabitCompletionsRepositoryI = (*sqlite.HabitCompletionsRepository)(nil)
)

func setupStore(t *testing.T) (*sqlite.Store, uuid.UUID) {
	t.Helper()
	store, err := sqlite.Open(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	user := entity.User{Name: "test_user", PasswordHash: "test_password_hash"}
	require.NoError(t, store.Users().Create(context.Background(), &user))
	return store, user.ID
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestUsers(t *testing.T) {
	store, uid := setupStore(t)
	users := store.Users()
	ctx := context.Background()
	t.Run("duplicate name", func(t *testing.T) {
		err := users.Create(ctx, &entity.User{Name: "test_user", PasswordHash: "x"})
		assert.ErrorIs(t, err, errorvalues.ErrUserExists)
	})
	t.Run("find", func(t *testing.T) {
		byName, err := users.FindByName(ctx, "test_user")
		require.NoError(t, err)
		assert.Equal(t, uid, byName.ID)
		byID, err := users.FindByID(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, *byName, *byID)
	})
	t.Run("not found", func(t *testing.T) {
		_, err := users.FindByName(ctx, "nobody")
		assert.ErrorIs(t, err, errorvalues.ErrUserNotFound)
		_, err = users.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, errorvalues.ErrUserNotFound)
	})
}

func TestHabits(t *testing.T) {
	store, uid := setupStore(t)
	habits := store.Habits()
	ctx := context.Background()
	created := make([]*entity.Habit, 0, 4)
	t.Run("create", func(t *testing.T) {
		for i, tags := range [][]string{{"health"}, {"health", "work"}, nil, {"work"}} {
			h, err := habits.Create(ctx, &entity.Habit{UserID: uid, Name: "habit", Tags: tags})
			require.NoError(t, err, i)
			assert.Equal(t, entity.DefaultHabitIcon, h.Icon)
			assert.Equal(t, entity.DefaultHabitColor, h.Color)
			assert.NotNil(t, h.Tags)
			assert.Zero(t, h.CompletionCount)
			created = append(created, h)
		}
		_, err := habits.Create(ctx, &entity.Habit{UserID: uuid.New(), Name: "orphan"})
		assert.ErrorIs(t, err, errorvalues.ErrOwnerNotFound)
	})
	t.Run("get", func(t *testing.T) {
		h, err := habits.GetByID(ctx, uid, created[1].ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"health", "work"}, h.Tags)
		_, err = habits.GetByID(ctx, uuid.New(), created[1].ID)
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
	t.Run("list", func(t *testing.T) {
		all, err := habits.ListByOwner(ctx, uid, repository.ListOpts{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i := range all {
			assert.Equal(t, created[i].ID, all[i].ID)
		}
		work, err := habits.ListByOwner(ctx, uid, repository.ListOpts{Tag: "work"})
		require.NoError(t, err)
		require.Len(t, work, 2)
		assert.Equal(t, created[1].ID, work[0].ID)
		assert.Equal(t, created[3].ID, work[1].ID)
		page, err := habits.ListByOwner(ctx, uid, repository.ListOpts{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, created[1].ID, page[0].ID)
		none, err := habits.ListByOwner(ctx, uid, repository.ListOpts{Tag: "absent"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
	t.Run("tag usage", func(t *testing.T) {
		usage, err := habits.TagUsage(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, []entity.TagUsage{{Tag: "health", Count: 2}, {Tag: "work", Count: 2}}, usage)
		empty, err := habits.TagUsage(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
	t.Run("update", func(t *testing.T) {
		name := "renamed"
		tags := []string{"evening"}
		h, err := habits.Update(ctx, uid, created[0].ID, entity.HabitUpdate{Name: &name, Tags: &tags})
		require.NoError(t, err)
		assert.Equal(t, name, h.Name)
		assert.Equal(t, tags, h.Tags)
		assert.Equal(t, created[0].Icon, h.Icon)
		same, err := habits.Update(ctx, uid, created[0].ID, entity.HabitUpdate{})
		require.NoError(t, err)
		assert.Equal(t, name, same.Name)
		_, err = habits.Update(ctx, uuid.New(), created[0].ID, entity.HabitUpdate{Name: &name})
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
	t.Run("adjust counters never negative", func(t *testing.T) {
		c, err := habits.AdjustCounters(ctx, uid, created[0].ID, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, entity.HabitCounters{CompletionCount: 1, Streak: 1}, *c)
		for range 3 {
			c, err = habits.AdjustCounters(ctx, uid, created[0].ID, -1, -1)
			require.NoError(t, err)
		}
		assert.Equal(t, entity.HabitCounters{}, *c)
		_, err = habits.AdjustCounters(ctx, uid, uuid.New(), 1, 1)
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
	t.Run("delete", func(t *testing.T) {
		deleted, err := habits.Delete(ctx, uid, created[2].ID)
		require.NoError(t, err)
		assert.Equal(t, created[2].ID, deleted.ID)
		_, err = habits.Delete(ctx, uid, created[2].ID)
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
}

func TestCompletions(t *testing.T) {
	store, uid := setupStore(t)
	habits := store.Habits()
	completions := store.Completions()
	ctx := context.Background()
	habit, err := habits.Create(ctx, &entity.Habit{UserID: uid, Name: "read"})
	require.NoError(t, err)
	d := day(2024, time.January, 1)

	t.Run("create once per day", func(t *testing.T) {
		require.NoError(t, completions.Create(ctx, habit.ID, uid, d))
		assert.ErrorIs(t, completions.Create(ctx, habit.ID, uid, d), errorvalues.ErrCompletionExists)
		exists, err := completions.Exists(ctx, habit.ID, uid, d)
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = completions.Exists(ctx, habit.ID, uid, d.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.False(t, exists)
	})
	t.Run("unknown owner", func(t *testing.T) {
		err := completions.Create(ctx, habit.ID, uuid.New(), d)
		assert.ErrorIs(t, err, errorvalues.ErrOwnerNotFound)
	})
	t.Run("concurrent create has one winner", func(t *testing.T) {
		concurrentDay := day(2024, time.January, 2)
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := completions.Create(ctx, habit.ID, uid, concurrentDay); err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
	})
	t.Run("range", func(t *testing.T) {
		require.NoError(t, completions.Create(ctx, habit.ID, uid, day(2024, time.March, 10)))
		january, err := completions.GetByHabitAndDateRange(ctx, habit.ID, uid, d, day(2024, time.January, 31))
		require.NoError(t, err)
		require.Len(t, january, 2)
		assert.Equal(t, d, january[0].Day)
		assert.Equal(t, day(2024, time.January, 2), january[1].Day)
		single, err := completions.GetByHabitAndDateRange(ctx, habit.ID, uid, d, d)
		require.NoError(t, err)
		assert.Len(t, single, 1)
	})
	t.Run("last day and count", func(t *testing.T) {
		last, err := completions.GetLastCompletionDay(ctx, habit.ID)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, day(2024, time.March, 10), *last)
		count, err := completions.CountByHabitID(ctx, habit.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		none, err := completions.GetLastCompletionDay(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, none)
	})
	t.Run("reconcile", func(t *testing.T) {
		n, err := habits.ReconcileCounters(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = habits.ReconcileCounters(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		h, err := habits.GetByID(ctx, uid, habit.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, h.CompletionCount)
		assert.Equal(t, 3, h.Streak)
	})
	t.Run("delete", func(t *testing.T) {
		deleted, err := completions.Delete(ctx, habit.ID, uid, d)
		require.NoError(t, err)
		assert.True(t, deleted)
		deleted, err = completions.Delete(ctx, habit.ID, uid, d)
		require.NoError(t, err)
		assert.False(t, deleted)
		n, err := completions.DeleteAllByHabit(ctx, habit.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "supertimer.db")
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())
	require.NoError(t, store.Close())
	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	assert.NoError(t, reopened.Close())
}
