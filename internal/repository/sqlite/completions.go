package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/limbo/supertimer/internal/daykey"
	errorvalues "github.com/limbo/supertimer/internal/error_values"
	"github.com/limbo/supertimer/pkg/entity"
)

// HabitCompletionsRepository stores day keys as YYYY-MM-DD text, which sorts chronologically.
type HabitCompletionsRepository struct {
	db  *sql.DB
	now func() time.Time
}

func dayText(day time.Time) string {
	return day.Format(daykey.Layout)
}

func (cr *HabitCompletionsRepository) Create(ctx context.Context, habitID, uid uuid.UUID, day time.Time) error {
	_, err := cr.db.ExecContext(ctx,
		`INSERT INTO habit_completions (habit_id, user_id, day, created_at) VALUES (?, ?, ?, ?);`,
		habitID, uid, dayText(day), millis(cr.now()),
	)
	if err != nil {
		switch constraintKind(err) {
		case constraintUnique:
			return errorvalues.ErrCompletionExists
		case constraintForeignKey:
			return errorvalues.ErrOwnerNotFound
		}
		return errors.New("creating completion error: " + err.Error())
	}
	return nil
}

func (cr *HabitCompletionsRepository) Delete(ctx context.Context, habitID, uid uuid.UUID, day time.Time) (bool, error) {
	res, err := cr.db.ExecContext(ctx,
		`DELETE FROM habit_completions WHERE habit_id = ? AND user_id = ? AND day = ?;`,
		habitID, uid, dayText(day),
	)
	if err != nil {
		return false, errors.New("deleting completion error: " + err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.New("deleting completion error: " + err.Error())
	}
	return n > 0, nil
}

func (cr *HabitCompletionsRepository) Exists(ctx context.Context, habitID, uid uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	row := cr.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM habit_completions WHERE habit_id = ? AND user_id = ? AND day = ?);`,
		habitID, uid, dayText(day),
	)
	if err := row.Scan(&exists); err != nil {
		return false, errors.New("inspecting if completion exists error: " + err.Error())
	}
	return exists, nil
}

func (cr *HabitCompletionsRepository) DeleteAllByHabit(ctx context.Context, habitID uuid.UUID) (int64, error) {
	res, err := cr.db.ExecContext(ctx, `DELETE FROM habit_completions WHERE habit_id = ?;`, habitID)
	if err != nil {
		return 0, errors.New("deleting habit completions error: " + err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.New("deleting habit completions error: " + err.Error())
	}
	return n, nil
}

func (cr *HabitCompletionsRepository) GetByHabitAndDateRange(ctx context.Context, habitID, uid uuid.UUID, from, to time.Time) ([]entity.HabitCompletion, error) {
	rows, err := cr.db.QueryContext(ctx,
		`SELECT id, habit_id, user_id, day, created_at FROM habit_completions WHERE habit_id = ? AND user_id = ? AND day >= ? AND day <= ? ORDER BY day;`,
		habitID, uid, dayText(from), dayText(to),
	)
	if err != nil {
		return nil, errors.New("getting completions for period error: " + err.Error())
	}
	defer rows.Close()
	result := make([]entity.HabitCompletion, 0, 8)
	for rows.Next() {
		var (
			c         entity.HabitCompletion
			day       string
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.HabitID, &c.UserID, &day, &createdAt); err != nil {
			return nil, errors.New("completion row parsing error: " + err.Error())
		}
		if c.Day, err = daykey.Parse(day); err != nil {
			return nil, errors.New("completion row parsing error: " + err.Error())
		}
		c.CreatedAt = fromMillis(createdAt)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New("unexpected completion rows error: " + err.Error())
	}
	return result, nil
}

func (cr *HabitCompletionsRepository) GetLastCompletionDay(ctx context.Context, habitID uuid.UUID) (*time.Time, error) {
	var day string
	row := cr.db.QueryRowContext(ctx,
		`SELECT day FROM habit_completions WHERE habit_id = ? ORDER BY day DESC LIMIT 1;`,
		habitID,
	)
	if err := row.Scan(&day); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.New("getting last completion day error: " + err.Error())
	}
	parsed, err := daykey.Parse(day)
	if err != nil {
		return nil, errors.New("getting last completion day error: " + err.Error())
	}
	return &parsed, nil
}

func (cr *HabitCompletionsRepository) CountByHabitID(ctx context.Context, habitID uuid.UUID) (int, error) {
	var count int
	row := cr.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM habit_completions WHERE habit_id = ?;`, habitID)
	if err := row.Scan(&count); err != nil {
		return 0, errors.New("error counting completions: " + err.Error())
	}
	return count, nil
}
