package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	errorvalues "github.com/limbo/supertimer/internal/error_values"
	"github.com/limbo/supertimer/internal/repository"
	"github.com/limbo/supertimer/pkg/entity"
)

const habitColumns = `id, user_id, name, icon, color, tags, completion_count, streak, created_at, updated_at`

type HabitsRepository struct {
	db  *sql.DB
	now func() time.Time
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHabit(row scanner) (*entity.Habit, error) {
	var (
		h                    entity.Habit
		tags                 string
		createdAt, updatedAt int64
	)
	err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.Icon, &h.Color, &tags,
		&h.CompletionCount, &h.Streak, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := sonic.UnmarshalString(tags, &h.Tags); err != nil {
		return nil, errors.New("decoding habit tags error: " + err.Error())
	}
	if h.Tags == nil {
		h.Tags = []string{}
	}
	h.CreatedAt = fromMillis(createdAt)
	h.UpdatedAt = fromMillis(updatedAt)
	return &h, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	return sonic.MarshalString(tags)
}

func (hr *HabitsRepository) Create(ctx context.Context, habit *entity.Habit) (*entity.Habit, error) {
	h := *habit
	h.ID = uuid.New()
	if h.Icon == "" {
		h.Icon = entity.DefaultHabitIcon
	}
	if h.Color == "" {
		h.Color = entity.DefaultHabitColor
	}
	if h.Tags == nil {
		h.Tags = []string{}
	}
	tags, err := encodeTags(h.Tags)
	if err != nil {
		return nil, errors.New("encoding habit tags error: " + err.Error())
	}
	now := millis(hr.now())
	row := hr.db.QueryRowContext(ctx,
		`INSERT INTO habits (id, user_id, name, icon, color, tags, completion_count, streak, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?) RETURNING `+habitColumns+`;`,
		h.ID, h.UserID, h.Name, h.Icon, h.Color, tags, now, now,
	)
	created, err := scanHabit(row)
	if err != nil {
		if constraintKind(err) == constraintForeignKey {
			return nil, errorvalues.ErrOwnerNotFound
		}
		return nil, errors.New("creating habit db error: " + err.Error())
	}
	return created, nil
}

func (hr *HabitsRepository) GetByID(ctx context.Context, uid, id uuid.UUID) (*entity.Habit, error) {
	row := hr.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ? AND user_id = ?;`, id, uid)
	habit, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorvalues.ErrHabitNotFound
		}
		return nil, errors.New("getting habit by id error: " + err.Error())
	}
	return habit, nil
}

func (hr *HabitsRepository) ListByOwner(ctx context.Context, uid uuid.UUID, opts repository.ListOpts) ([]*entity.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE user_id = ?`
	args := []any{uid}
	if opts.Tag != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(habits.tags) WHERE json_each.value = ?)`
		args = append(args, opts.Tag)
	}
	query += ` ORDER BY created_at, rowid`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}
	rows, err := hr.db.QueryContext(ctx, query+`;`, args...)
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
	var tags *string
	if upd.Tags != nil {
		encoded, err := encodeTags(*upd.Tags)
		if err != nil {
			return nil, errors.New("encoding habit tags error: " + err.Error())
		}
		tags = &encoded
	}
	row := hr.db.QueryRowContext(ctx,
		`UPDATE habits SET name = COALESCE(?, name), icon = COALESCE(?, icon), color = COALESCE(?, color), tags = COALESCE(?, tags), updated_at = ? WHERE id = ? AND user_id = ? RETURNING `+habitColumns+`;`,
		upd.Name, upd.Icon, upd.Color, tags, millis(hr.now()), id, uid,
	)
	habit, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorvalues.ErrHabitNotFound
		}
		return nil, errors.New("error updating habit: " + err.Error())
	}
	return habit, nil
}

func (hr *HabitsRepository) Delete(ctx context.Context, uid, id uuid.UUID) (*entity.Habit, error) {
	row := hr.db.QueryRowContext(ctx, `DELETE FROM habits WHERE id = ? AND user_id = ? RETURNING `+habitColumns+`;`, id, uid)
	habit, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorvalues.ErrHabitNotFound
		}
		return nil, errors.New("error deleting habit: " + err.Error())
	}
	return habit, nil
}

func (hr *HabitsRepository) AdjustCounters(ctx context.Context, uid, id uuid.UUID, completionDelta, streakDelta int) (*entity.HabitCounters, error) {
	var counters entity.HabitCounters
	row := hr.db.QueryRowContext(ctx,
		`UPDATE habits SET completion_count = MAX(completion_count + ?, 0), streak = MAX(streak + ?, 0), updated_at = ? WHERE id = ? AND user_id = ? RETURNING completion_count, streak;`,
		completionDelta, streakDelta, millis(hr.now()), id, uid,
	)
	if err := row.Scan(&counters.CompletionCount, &counters.Streak); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorvalues.ErrHabitNotFound
		}
		return nil, errors.New("error adjusting habit counters: " + err.Error())
	}
	return &counters, nil
}

func (hr *HabitsRepository) TagUsage(ctx context.Context, uid uuid.UUID) ([]entity.TagUsage, error) {
	rows, err := hr.db.QueryContext(ctx,
		`SELECT t.value AS tag, COUNT(*) AS count FROM habits, json_each(habits.tags) AS t WHERE habits.user_id = ? GROUP BY t.value ORDER BY count DESC, tag;`,
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

func (hr *HabitsRepository) ReconcileCounters(ctx context.Context, settledBefore time.Time) (int64, error) {
	cutoff := millis(settledBefore)
	res, err := hr.db.ExecContext(ctx,
		`UPDATE habits SET completion_count = (SELECT COUNT(*) FROM habit_completions c WHERE c.habit_id = habits.id), streak = (SELECT COUNT(*) FROM habit_completions c WHERE c.habit_id = habits.id), updated_at = ? WHERE updated_at < ? AND (completion_count <> (SELECT COUNT(*) FROM habit_completions c WHERE c.habit_id = habits.id) OR streak <> (SELECT COUNT(*) FROM habit_completions c WHERE c.habit_id = habits.id)) AND NOT EXISTS (SELECT 1 FROM habit_completions r WHERE r.habit_id = habits.id AND r.created_at >= ?);`,
		millis(hr.now()), cutoff, cutoff,
	)
	if err != nil {
		return 0, errors.New("reconciling habit counters error: " + err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.New("reconciling habit counters error: " + err.Error())
	}
	return n, nil
}
