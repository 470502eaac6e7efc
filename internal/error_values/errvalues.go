package errorvalues

import "errors"

var (
	ErrUserExists       = errors.New("such user already exists")
	ErrUserNotFound     = errors.New("user doesn't exists")
	ErrWrongCredentials = errors.New("wrong name or password")
	ErrInvalidToken     = errors.New("invalid token")

	ErrHabitNotFound    = errors.New("habit doesn't exist")
	ErrOwnerNotFound    = errors.New("habit owner doesn't exist")
	ErrCompletionExists = errors.New("habit already completed for this day")

	ErrValidation       = errors.New("validation error")
	ErrInvalidDateRange = errors.New("invalid date range")
)
