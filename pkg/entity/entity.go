package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultHabitIcon  = "default-habit-icon"
	DefaultHabitColor = "#4a69bd"
)

type User struct {
	ID           uuid.UUID
	Name         string
	PasswordHash string
}

type Habit struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"uid"`
	Name            string    `json:"name"`
	Icon            string    `json:"icon"`
	Color           string    `json:"color"`
	Tags            []string  `json:"tags"`
	CompletionCount int       `json:"completion_count"`
	Streak          int       `json:"streak"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HabitUpdate is a partial update of a habit. Nil fields are left untouched.
// Owner and counters only change through creation and completion bookkeeping.
type HabitUpdate struct {
	Name  *string
	Icon  *string
	Color *string
	Tags  *[]string
}

func (u HabitUpdate) Empty() bool {
	return u.Name == nil && u.Icon == nil && u.Color == nil && u.Tags == nil
}

type HabitCompletion struct {
	ID        int64     `json:"id"`
	HabitID   uuid.UUID `json:"habit_id"`
	UserID    uuid.UUID `json:"uid"`
	Day       time.Time `json:"day"`
	CreatedAt time.Time `json:"created_at"`
}

type HabitCounters struct {
	CompletionCount int `json:"completion_count"`
	Streak          int `json:"streak"`
}

// HabitView is a habit together with its completion state for the current day.
type HabitView struct {
	Habit
	CompletedToday bool `json:"completed_today"`
}

type CompletionStatus struct {
	HabitCounters
	CompletedToday bool `json:"completed_today"`
}

type TagUsage struct {
	Tag   string `json:"name"`
	Count int    `json:"count"`
}

type HabitStats struct {
	ID               uuid.UUID  `json:"habit_id"`
	CompletionCount  int        `json:"completion_count"`
	Streak           int        `json:"streak"`
	TotalCompletions int        `json:"total_completions"`
	CompletedToday   bool       `json:"completed_today"`
	LastCompletion   *time.Time `json:"last_completion,omitempty"`
}
