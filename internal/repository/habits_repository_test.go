package repository_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	errorvalues "github.com/limbo/supertimer/internal/error_values"
	"github.com/limbo/supertimer/internal/repository"
	"github.com/limbo/supertimer/pkg/entity"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	userID       = uuid.New()
	habitColumns = []string{"id", "user_id", "name", "icon", "color", "tags", "completion_count", "streak", "created_at", "updated_at"}
)

const returningColumns = `id, user_id, name, icon, color, tags, completion_count, streak, created_at, updated_at`

func habitRow(rows *pgxmock.Rows, h *entity.Habit) *pgxmock.Rows {
	return rows.AddRow(h.ID, h.UserID, h.Name, h.Icon, h.Color, h.Tags, h.CompletionCount, h.Streak, h.CreatedAt, h.UpdatedAt)
}

func testHabit() *entity.Habit {
	now := time.Now()
	return &entity.Habit{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "drink water",
		Icon:      entity.DefaultHabitIcon,
		Color:     entity.DefaultHabitColor,
		Tags:      []string{"health"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateHabit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := repository.NewHabitsRepoWithConn(mock)
	query := regexp.QuoteMeta(`INSERT INTO habits (user_id, name, icon, color, tags) VALUES ($1, $2, $3, $4, $5) RETURNING ` + returningColumns + `;`)
	expected := testHabit()
	ctx := context.Background()
	testCases := []struct {
		Desc         string
		Input        entity.Habit
		Error        error
		MockPrepFunc func()
	}{
		{
			Desc:  "defaults applied",
			Input: entity.Habit{UserID: userID, Name: expected.Name, Tags: []string{"health"}},
			MockPrepFunc: func() {
				mock.ExpectQuery(query).
					WithArgs(userID, expected.Name, entity.DefaultHabitIcon, entity.DefaultHabitColor, []string{"health"}).
					WillReturnRows(habitRow(pgxmock.NewRows(habitColumns), expected))
			},
		},
		{
			Desc:  "nil tags become empty",
			Input: entity.Habit{UserID: userID, Name: expected.Name, Icon: "i", Color: "c"},
			MockPrepFunc: func() {
				mock.ExpectQuery(query).
					WithArgs(userID, expected.Name, "i", "c", []string{}).
					WillReturnRows(habitRow(pgxmock.NewRows(habitColumns), expected))
			},
		},
		{
			Desc:  "owner not found",
			Input: entity.Habit{UserID: userID, Name: expected.Name},
			Error: errorvalues.ErrOwnerNotFound,
			MockPrepFunc: func() {
				mock.ExpectQuery(query).
					WithArgs(userID, expected.Name, entity.DefaultHabitIcon, entity.DefaultHabitColor, []string{}).
					WillReturnError(&pgconn.PgError{Code: "23503"})
			},
		},
		{
			Desc:  "db error",
			Input: entity.Habit{UserID: userID, Name: expected.Name},
			Error: errors.New("creating habit db error: db error"),
			MockPrepFunc: func() {
				mock.ExpectQuery(query).
					WithArgs(userID, expected.Name, entity.DefaultHabitIcon, entity.DefaultHabitColor, []string{}).
					WillReturnError(errors.New("db error"))
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.Desc, func(t *testing.T) {
			tc.MockPrepFunc()
			h, err := repo.Create(ctx, &tc.Input)
			if tc.Error != nil {
				assert.EqualError(t, err, tc.Error.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, *expected, *h)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHabitByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := repository.NewHabitsRepoWithConn(mock)
	query := regexp.QuoteMeta(`SELECT ` + returningColumns + ` FROM habits WHERE id = $1 AND user_id = $2;`)
	habit := testHabit()
	ctx := context.Background()
	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(habit.ID, userID).
			WillReturnRows(habitRow(pgxmock.NewRows(habitColumns), habit))
		h, err := repo.GetByID(ctx, userID, habit.ID)
		assert.NoError(t, err)
		assert.Equal(t, *habit, *h)
	})
	t.Run("not found or foreign owner", func(t *testing.T) {
		other := uuid.New()
		mock.ExpectQuery(query).
			WithArgs(habit.ID, other).
			WillReturnError(pgx.ErrNoRows)
		_, err := repo.GetByID(ctx, other, habit.ID)
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(habit.ID, userID).
			WillReturnError(errors.New("db error"))
		_, err := repo.GetByID(ctx, userID, habit.ID)
		assert.EqualError(t, err, "getting habit by id error: db error")
	})
}

func TestListHabitsByOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := repository.NewHabitsRepoWithConn(mock)
	base := `SELECT ` + returningColumns + ` FROM habits WHERE user_id = $1`
	habits := []*entity.Habit{testHabit(), testHabit(), testHabit()}
	ctx := context.Background()
	testCases := []struct {
		Desc         string
		Opts         repository.ListOpts
		Error        error
		Expected     int
		MockPrepFunc func()
	}{
		{
			Desc:     "all",
			Opts:     repository.ListOpts{},
			Expected: 3,
			MockPrepFunc: func() {
				rows := pgxmock.NewRows(habitColumns)
				for _, h := range habits {
					habitRow(rows, h)
				}
				mock.ExpectQuery(regexp.QuoteMeta(base + ` ORDER BY created_at, id;`)).
					WithArgs(userID).
					WillReturnRows(rows)
			},
		},
		{
			Desc:     "tag filter",
			Opts:     repository.ListOpts{Tag: "health"},
			Expected: 1,
			MockPrepFunc: func() {
				mock.ExpectQuery(regexp.QuoteMeta(base + ` AND $2 = ANY(tags) ORDER BY created_at, id;`)).
					WithArgs(userID, "health").
					WillReturnRows(habitRow(pgxmock.NewRows(habitColumns), habits[0]))
			},
		},
		{
			Desc:     "tag filter and pagination",
			Opts:     repository.ListOpts{Tag: "health", Limit: 2, Offset: 2},
			Expected: 1,
			MockPrepFunc: func() {
				mock.ExpectQuery(regexp.QuoteMeta(base + ` AND $2 = ANY(tags) ORDER BY created_at, id LIMIT $3 OFFSET $4;`)).
					WithArgs(userID, "health", 2, 2).
					WillReturnRows(habitRow(pgxmock.NewRows(habitColumns), habits[2]))
			},
		},
		{
			Desc:     "pagination only",
			Opts:     repository.ListOpts{Limit: 10},
			Expected: 0,
			MockPrepFunc: func() {
				mock.ExpectQuery(regexp.QuoteMeta(base + ` ORDER BY created_at, id LIMIT $2 OFFSET $3;`)).
					WithArgs(userID, 10, 0).
					WillReturnRows(pgxmock.NewRows(habitColumns))
			},
		},
		{
			Desc:  "db error",
			Opts:  repository.ListOpts{},
			Error: errors.New("listing habits error: db error"),
			MockPrepFunc: func() {
				mock.ExpectQuery(regexp.QuoteMeta(base + ` ORDER BY created_at, id;`)).
					WithArgs(userID).
					WillReturnError(errors.New("db error"))
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.Desc, func(t *testing.T) {
			tc.MockPrepFunc()
			res, err := repo.ListByOwner(ctx, userID, tc.Opts)
			if tc.Error != nil {
				assert.EqualError(t, err, tc.Error.Error())
				return
			}
			require.NoError(t, err)
			assert.Len(t, res, tc.Expected)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateHabit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := repository.NewHabitsRepoWithConn(mock)
	query := regexp.QuoteMeta(`UPDATE habits SET name = COALESCE($3, name), icon = COALESCE($4, icon), color = COALESCE($5, color), tags = COALESCE($6, tags), updated_at = NOW() WHERE id = $1 AND user_id = $2 RETURNING ` + returningColumns + `;`)
	selectQuery := regexp.QuoteMeta(`SELECT ` + returningColumns + ` FROM habits WHERE id = $1 AND user_id = $2;`)
	habit := testHabit()
	name := "run"
	tags := []string{"sport", "health"}
	upd := entity.HabitUpdate{Name: &name, Tags: &tags}
	ctx := context.Background()
	t.Run("success", func(t *testing.T) {
		updated := *habit
		updated.Name = name
		updated.Tags = tags
		mock.ExpectQuery(query).
			WithArgs(habit.ID, userID, upd.Name, upd.Icon, upd.Color, upd.Tags).
			WillReturnRows(habitRow(pgxmock.NewRows(habitColumns), &updated))
		h, err := repo.Update(ctx, userID, habit.ID, upd)
		require.NoError(t, err)
		assert.Equal(t, name, h.Name)
		assert.Equal(t, tags, h.Tags)
		assert.Equal(t, habit.CompletionCount, h.CompletionCount)
	})
	t.Run("empty update reads habit", func(t *testing.T) {
		mock.ExpectQuery(selectQuery).
			WithArgs(habit.ID, userID).
			WillReturnRows(habitRow(pgxmock.NewRows(habitColumns), habit))
		h, err := repo.Update(ctx, userID, habit.ID, entity.HabitUpdate{})
		require.NoError(t, err)
		assert.Equal(t, *habit, *h)
	})
	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(habit.ID, userID, upd.Name, upd.Icon, upd.Color, upd.Tags).
			WillReturnError(pgx.ErrNoRows)
		_, err := repo.Update(ctx, userID, habit.ID, upd)
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(habit.ID, userID, upd.Name, upd.Icon, upd.Color, upd.Tags).
			WillReturnError(errors.New("db error"))
		_, err := repo.Update(ctx, userID, habit.ID, upd)
		assert.EqualError(t, err, "error updating habit: db error")
	})
}

func TestDeleteHabit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := repository.NewHabitsRepoWithConn(mock)
	query := regexp.QuoteMeta(`DELETE FROM habits WHERE id = $1 AND user_id = $2 RETURNING ` + returningColumns + `;`)
	habit := testHabit()
	ctx := context.Background()
	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(habit.ID, userID).
			WillReturnRows(habitRow(pgxmock.NewRows(habitColumns), habit))
		h, err := repo.Delete(ctx, userID, habit.ID)
		assert.NoError(t, err)
		assert.Equal(t, habit.ID, h.ID)
	})
	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(habit.ID, userID).
			WillReturnError(pgx.ErrNoRows)
		_, err := repo.Delete(ctx, userID, habit.ID)
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(habit.ID, userID).
			WillReturnError(errors.New("db error"))
		_, err := repo.Delete(ctx, userID, habit.ID)
		assert.Error(t, err)
	})
}

func TestAdjustCounters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := repository.NewHabitsRepoWithConn(mock)
	query := regexp.QuoteMeta(`UPDATE habits SET completion_count = GREATEST(completion_count + $3, 0), streak = GREATEST(streak + $4, 0), updated_at = NOW() WHERE id = $1 AND user_id = $2 RETURNING completion_count, streak;`)
	habitID := uuid.New()
	ctx := context.Background()
	testCases := []struct {
		Desc         string
		Delta        int
		Error        error
		Expected     entity.HabitCounters
		MockPrepFunc func()
	}{
		{
			Desc:     "increment",
			Delta:    1,
			Expected: entity.HabitCounters{CompletionCount: 4, Streak: 4},
			MockPrepFunc: func() {
				mock.ExpectQuery(query).
					WithArgs(habitID, userID, 1, 1).
					WillReturnRows(pgxmock.NewRows([]string{"completion_count", "streak"}).AddRow(4, 4))
			},
		},
		{
			Desc:     "decrement clamped by storage",
			Delta:    -1,
			Expected: entity.HabitCounters{CompletionCount: 0, Streak: 0},
			MockPrepFunc: func() {
				mock.ExpectQuery(query).
					WithArgs(habitID, userID, -1, -1).
					WillReturnRows(pgxmock.NewRows([]string{"completion_count", "streak"}).AddRow(0, 0))
			},
		},
		{
			Desc:  "habit gone",
			Delta: 1,
			Error: errorvalues.ErrHabitNotFound,
			MockPrepFunc: func() {
				mock.ExpectQuery(query).
					WithArgs(habitID, userID, 1, 1).
					WillReturnError(pgx.ErrNoRows)
			},
		},
		{
			Desc:  "db error",
			Delta: 1,
			Error: errors.New("error adjusting habit counters: db error"),
			MockPrepFunc: func() {
				mock.ExpectQuery(query).
					WithArgs(habitID, userID, 1, 1).
					WillReturnError(errors.New("db error"))
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.Desc, func(t *testing.T) {
			tc.MockPrepFunc()
			counters, err := repo.AdjustCounters(ctx, userID, habitID, tc.Delta, tc.Delta)
			if tc.Error != nil {
				assert.EqualError(t, err, tc.Error.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Expected, *counters)
		})
	}
}

func TestTagUsage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := repository.NewHabitsRepoWithConn(mock)
	query := regexp.QuoteMeta(`SELECT tag, COUNT(*) AS count FROM habits, unnest(tags) AS tag WHERE user_id = $1 GROUP BY tag ORDER BY count DESC, tag;`)
	ctx := context.Background()
	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(userID).
			WillReturnRows(pgxmock.NewRows([]string{"tag", "count"}).
				AddRow("health", 3).
				AddRow("work", 2))
		usage, err := repo.TagUsage(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []entity.TagUsage{{Tag: "health", Count: 3}, {Tag: "work", Count: 2}}, usage)
	})
	t.Run("no habits", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(userID).
			WillReturnRows(pgxmock.NewRows([]string{"tag", "count"}))
		usage, err := repo.TagUsage(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, usage)
		assert.NotNil(t, usage)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(userID).
			WillReturnError(errors.New("db error"))
		_, err := repo.TagUsage(ctx, userID)
		assert.EqualError(t, err, "counting tags error: db error")
	})
}

func TestReconcileCounters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := repository.NewHabitsRepoWithConn(mock)
	query := regexp.QuoteMeta(`UPDATE habits h SET completion_count = c.total, streak = c.total`)
	settled := time.Now().Add(-time.Minute)
	ctx := context.Background()
	t.Run("fixed some", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(settled).
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))
		n, err := repo.ReconcileCounters(ctx, settled)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(settled).
			WillReturnError(errors.New("db error"))
		_, err := repo.ReconcileCounters(ctx, settled)
		assert.EqualError(t, err, "reconciling habit counters error: db error")
	})
}

func TestHabitsIntegrational(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	cfg := setupTestDB(t)
	repo := repository.NewHabitsRepoWithConn(repository.Connect(cfg))
	habits := []*entity.Habit{}
	for i := range 5 {
		tags := []string{"health"}
		if i%2 == 1 {
			tags = append(tags, "work")
		}
		habits = append(habits, &entity.Habit{
			UserID: userID,
			Name:   fmt.Sprintf("habit_n%d", i),
			Tags:   tags,
		})
	}
	ctx := context.Background()
	t.Run("create", func(t *testing.T) {
		t.Run("success", func(t *testing.T) {
			for i := range habits {
				h, err := repo.Create(ctx, habits[i])
				require.NoError(t, err)
				assert.Equal(t, entity.DefaultHabitIcon, h.Icon)
				assert.Equal(t, entity.DefaultHabitColor, h.Color)
				assert.Zero(t, h.CompletionCount)
				assert.Zero(t, h.Streak)
				habits[i] = h
			}
		})
		t.Run("unknown user error", func(t *testing.T) {
			_, err := repo.Create(ctx, &entity.Habit{UserID: uuid.New(), Name: "ttt"})
			assert.ErrorIs(t, err, errorvalues.ErrOwnerNotFound)
		})
	})
	t.Run("list", func(t *testing.T) {
		result, err := repo.ListByOwner(ctx, userID, repository.ListOpts{})
		require.NoError(t, err)
		require.Len(t, result, 5)
		for i := range result {
			assert.Equal(t, habits[i].ID, result[i].ID)
		}
		tagged, err := repo.ListByOwner(ctx, userID, repository.ListOpts{Tag: "work"})
		require.NoError(t, err)
		assert.Len(t, tagged, 2)
		limited, err := repo.ListByOwner(ctx, userID, repository.ListOpts{Limit: 3, Offset: 2})
		require.NoError(t, err)
		require.Len(t, limited, 3)
		assert.Equal(t, habits[2].ID, limited[0].ID)
		foreign, err := repo.ListByOwner(ctx, uuid.New(), repository.ListOpts{})
		require.NoError(t, err)
		assert.Empty(t, foreign)
	})
	t.Run("tag usage", func(t *testing.T) {
		usage, err := repo.TagUsage(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []entity.TagUsage{{Tag: "health", Count: 5}, {Tag: "work", Count: 2}}, usage)
	})
	t.Run("counters", func(t *testing.T) {
		c, err := repo.AdjustCounters(ctx, userID, habits[0].ID, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, entity.HabitCounters{CompletionCount: 1, Streak: 1}, *c)
		c, err = repo.AdjustCounters(ctx, userID, habits[0].ID, -1, -1)
		require.NoError(t, err)
		assert.Equal(t, entity.HabitCounters{}, *c)
		c, err = repo.AdjustCounters(ctx, userID, habits[0].ID, -1, -1)
		require.NoError(t, err)
		assert.Equal(t, entity.HabitCounters{}, *c)
		_, err = repo.AdjustCounters(ctx, uuid.New(), habits[0].ID, 1, 1)
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
	t.Run("update", func(t *testing.T) {
		name := "renamed"
		h, err := repo.Update(ctx, userID, habits[0].ID, entity.HabitUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, name, h.Name)
		assert.Equal(t, habits[0].Tags, h.Tags)
		_, err = repo.Update(ctx, uuid.New(), habits[0].ID, entity.HabitUpdate{Name: &name})
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
	t.Run("delete", func(t *testing.T) {
		_, err := repo.Delete(ctx, uuid.New(), habits[0].ID)
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
		deleted, err := repo.Delete(ctx, userID, habits[0].ID)
		require.NoError(t, err)
		assert.Equal(t, habits[0].ID, deleted.ID)
		_, err = repo.GetByID(ctx, userID, habits[0].ID)
		assert.ErrorIs(t, err, errorvalues.ErrHabitNotFound)
	})
}
