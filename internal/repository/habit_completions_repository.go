package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	errorvalues "github.com/limbo/supertimer/internal/error_values"
	"github.com/limbo/supertimer/pkg/entity"
)

// HabitCompletionsRepository is the completion ledger. The unique constraint on
// (habit_id, user_id, day) decides which of concurrent inserts wins.
type HabitCompletionsRepository struct {
	conn PgConnection
}

func NewHabitCompletionsRepoWithConn(conn PgConnection) *HabitCompletionsRepository {
	ping(conn, "habitCompletionsRepo")
	return &HabitCompletionsRepository{
		conn: conn,
	}
}

func (cr *HabitCompletionsRepository) Create(ctx context.Context, habitID, uid uuid.UUID, day time.Time) error {
	_, err := cr.conn.Exec(
		ctx,
		`INSERT INTO habit_completions (habit_id, user_id, day) VALUES ($1, $2, $3);`,
		habitID,
		uid,
		day,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			// Unique violation
			case "23505":
				return errorvalues.ErrCompletionExists
			// FK violation, only user_id references another table
			case "23503":
				return errorvalues.ErrOwnerNotFound
			}
		}
		return errors.New("creating completion error: " + err.Error())
	}
	return nil
}

func (cr *HabitCompletionsRepository) Delete(ctx context.Context, habitID, uid uuid.UUID, day time.Time) (bool, error) {
	ct, err := cr.conn.Exec(
		ctx,
		`DELETE FROM habit_completions WHERE habit_id = $1 AND user_id = $2 AND day = $3;`,
		habitID,
		uid,
		day,
	)
	if err != nil {
		return false, errors.New("deleting completion error: " + err.Error())
	}
	return ct.RowsAffected() > 0, nil
}

func (cr *HabitCompletionsRepository) Exists(ctx context.Context, habitID, uid uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	row := cr.conn.QueryRow(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM habit_completions WHERE habit_id = $1 AND user_id = $2 AND day = $3);`,
		habitID,
		uid,
		day,
	)
	err := row.Scan(&exists)
	if err != nil {
		return false, errors.New("inspecting if completion exists error: " + err.Error())
	}
	return exists, nil
}

func (cr *HabitCompletionsRepository) DeleteAllByHabit(ctx context.Context, habitID uuid.UUID) (int64, error) {
	ct, err := cr.conn.Exec(ctx, `DELETE FROM habit_completions WHERE habit_id = $1;`, habitID)
	if err != nil {
		return 0, errors.New("deleting habit completions error: " + err.Error())
	}
	return ct.RowsAffected(), nil
}

func (cr *HabitCompletionsRepository) GetByHabitAndDateRange(ctx context.Context, habitID, uid uuid.UUID, from, to time.Time) ([]entity.HabitCompletion, error) {
	rows, err := cr.conn.Query(
		ctx,
		`SELECT id, habit_id, user_id, day, created_at FROM habit_completions WHERE habit_id = $1 AND user_id = $2 AND day >= $3 AND day <= $4 ORDER BY day;`,
		habitID,
		uid,
		from,
		to,
	)
	if err != nil {
		return nil, errors.New("getting completions for period error: " + err.Error())
	}
	defer rows.Close()
	result := make([]entity.HabitCompletion, 0, 8)
	for rows.Next() {
		c := entity.HabitCompletion{}
		err = rows.Scan(&c.ID, &c.HabitID, &c.UserID, &c.Day, &c.CreatedAt)
		if err != nil {
			return nil, errors.New("completion row parsing error: " + err.Error())
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New("unexpected completion rows error: " + err.Error())
	}
	return result, nil
}

func (cr *HabitCompletionsRepository) GetLastCompletionDay(ctx context.Context, habitID uuid.UUID) (*time.Time, error) {
	row := cr.conn.QueryRow(
		ctx,
		`SELECT day FROM habit_completions WHERE habit_id = $1 ORDER BY day DESC LIMIT 1;`,
		habitID,
	)
	var day time.Time
	if err := row.Scan(&day); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.New("getting last completion day error: " + err.Error())
	}
	return &day, nil
}

func (cr *HabitCompletionsRepository) CountByHabitID(ctx context.Context, habitID uuid.UUID) (int, error) {
	row := cr.conn.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM habit_completions WHERE habit_id = $1;`,
		habitID,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, errors.New("error counting completions: " + err.Error())
	}
	return count, nil
}
