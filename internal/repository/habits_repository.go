package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	errorvalues "github.com/limbo/supertimer/internal/error_values"
	"github.com/limbo/supertimer/pkg/entity"
)

const habitColumns = `id, user_id, name, icon, color, tags, completion_count, streak, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanHabit(row scanner) (*entity.Habit, error) {
	var h entity.Habit
	err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.Icon, &h.Color, &h.Tags,
		&h.CompletionCount, &h.Streak, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if h.Tags == nil {
		h.Tags = []string{}
	}
	return &h, nil
}

type HabitsRepository struct {
	conn PgConnection
}

func NewHabitsRepoWithConn(conn PgConnection) *HabitsRepository {
	ping(conn, "habitsRepo")
	return &HabitsRepository{
		conn: conn,
	}
}

func (hr *HabitsRepository) Create(ctx context.Context, habit *entity.Habit) (*entity.Habit, error) {
	h := *habit
	if h.Icon == "" {
		h.Icon = entity.DefaultHabitIcon
	}
	if h.Color == "" {
		h.Color = entity.DefaultHabitColor
	}
	if h.Tags == nil {
		h.Tags = []string{}
	}
	row := hr.conn.QueryRow(ctx,
		`INSERT INTO habits (user_id, name, icon, color, tags) VALUES ($1, $2, $3, $4, $5) RETURNING `+habitColumns+`;`,
		h.UserID, h.Name, h.Icon, h.Color, h.Tags,
	)
	created, err := scanHabit(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			// FK violation
			case "23503":
				return nil, errorvalues.ErrOwnerNotFound
			}
		}
		return nil, errors.New("creating habit db error: " + err.Error())
	}
	return created, nil
}

func (hr *HabitsRepository) GetByID(ctx context.Context, uid, id uuid.UUID) (*entity.Habit, error) {
	row := hr.conn.QueryRow(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = $1 AND user_id = $2;`, id, uid)
	habit, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrHabitNotFound
		}
		return nil, errors.New("getting habit by id error: " + err.Error())
	}
	return habit, nil
}

func (hr *HabitsRepository) ListByOwner(ctx context.Context, uid uuid.UUID, opts ListOpts) ([]*entity.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE user_id = $1`
	args := []any{uid}
	if opts.Tag != "" {
		args = append(args, opts.Tag)
		query += ` AND $` + strconv.Itoa(len(args)) + ` = ANY(tags)`
	}
	query += ` ORDER BY created_at, id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit, opts.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := hr.conn.Query(ctx, query+`;`, args...)
	if err != nil {
		return nil, errors.New("listing habits error: " + err.Error())
	}
	defer rows.Close()
	habits := make([]*entity.Habit, 0)
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, errors.New("unmarshalling habit error: " + err.Error())
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New("unexpected error after scanning: " + err.Error())
	}
	return habits, nil
}

func (hr *HabitsRepository) Update(ctx context.Context, uid, id uuid.UUID, upd entity.HabitUpdate) (*entity.Habit, error) {
	if upd.Empty() {
		return hr.GetByID(ctx, uid, id)
	}
	row := hr.conn.QueryRow(ctx,
		`UPDATE habits SET name = COALESCE($3, name), icon = COALESCE($4, icon), color = COALESCE($5, color), tags = COALESCE($6, tags), updated_at = NOW() WHERE id = $1 AND user_id = $2 RETURNING `+habitColumns+`;`,
		id, uid, upd.Name, upd.Icon, upd.Color, upd.Tags,
	)
	habit, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrHabitNotFound
		}
		return nil, errors.New("error updating habit: " + err.Error())
	}
	return habit, nil
}

func (hr *HabitsRepository) Delete(ctx context.Context, uid, id uuid.UUID) (*entity.Habit, error) {
	row := hr.conn.QueryRow(ctx, `DELETE FROM habits WHERE id = $1 AND user_id = $2 RETURNING `+habitColumns+`;`, id, uid)
	habit, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrHabitNotFound
		}
		return nil, errors.New("error deleting habit: " + err.Error())
	}
	return habit, nil
}

func (hr *HabitsRepository) AdjustCounters(ctx context.Context, uid, id uuid.UUID, completionDelta, streakDelta int) (*entity.HabitCounters, error) {
	var counters entity.HabitCounters
	row := hr.conn.QueryRow(ctx,
		`UPDATE habits SET completion_count = GREATEST(completion_count + $3, 0), streak = GREATEST(streak + $4, 0), updated_at = NOW() WHERE id = $1 AND user_id = $2 RETURNING completion_count, streak;`,
		id, uid, completionDelta, streakDelta,
	)
	if err := row.Scan(&counters.CompletionCount, &counters.Streak); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrHabitNotFound
		}
		return nil, errors.New("error adjusting habit counters: " + err.Error())
	}
	return &counters, nil
}

func (hr *HabitsRepository) TagUsage(ctx context.Context, uid uuid.UUID) ([]entity.TagUsage, error) {
	rows, err := hr.conn.Query(ctx,
		`SELECT tag, COUNT(*) AS count FROM habits, unnest(tags) AS tag WHERE user_id = $1 GROUP BY tag ORDER BY count DESC, tag;`,
		uid,
	)
	if err != nil {
		return nil, errors.New("counting tags error: " + err.Error())
	}
	defer rows.Close()
	usage := make([]entity.TagUsage, 0)
	for rows.Next() {
		var tu entity.TagUsage
		if err := rows.Scan(&tu.Tag, &tu.Count); err != nil {
			return nil, errors.New("tag row parsing error: " + err.Error())
		}
		usage = append(usage, tu)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New("unexpected tag rows error: " + err.Error())
	}
	return usage, nil
}

// ReconcileCounters skips habits with completions created after settledBefore,
// those may still be waiting for their counter bump.
func (hr *HabitsRepository) ReconcileCounters(ctx context.Context, settledBefore time.Time) (int64, error) {
	ct, err := hr.conn.Exec(ctx,
		`UPDATE habits h SET completion_count = c.total, streak = c.total, updated_at = NOW() FROM (SELECT hb.id, COUNT(hc.id)::int AS total FROM habits hb LEFT JOIN habit_completions hc ON hc.habit_id = hb.id GROUP BY hb.id) c WHERE h.id = c.id AND (h.completion_count <> c.total OR h.streak <> c.total) AND h.updated_at < $1 AND NOT EXISTS (SELECT 1 FROM habit_completions r WHERE r.habit_id = h.id AND r.created_at >= $1);`,
		settledBefore,
	)
	if err != nil {
		return 0, errors.New("reconciling habit counters error: " + err.Error())
	}
	return ct.RowsAffected(), nil
}
