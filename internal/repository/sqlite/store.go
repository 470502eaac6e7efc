// Package sqlite is an embedded storage backend implementing the repository
// interfaces on top of modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/limbo/supertimer/pkg/cleanup"
)

//go:embed schema.sql
var schema string

const MemoryPath = ":memory:"

type Store struct {
	path string
	db   *sql.DB
}

// Open opens database at path and applies schema. MemoryPath opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: sqlite has a single writer and every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

// MustOpen is Open for process startup: failure is fatal and closing is registered as cleanup job.
func MustOpen(path string) *Store {
	s, err := Open(path)
	if err != nil {
		log.Fatal("opening sqlite storage error: " + err.Error())
	}
	cleanup.Register(&cleanup.Job{
		Name: "closing sqlite storage",
		F:    s.Close,
	})
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Users() *UsersRepository {
	return &UsersRepository{db: s.db}
}

func (s *Store) Habits() *HabitsRepository {
	return &HabitsRepository{db: s.db, now: time.Now}
}

func (s *Store) Completions() *HabitCompletionsRepository {
	return &HabitCompletionsRepository{db: s.db, now: time.Now}
}

const (
	constraintUnique = iota + 1
	constraintForeignKey
)

// constraintKind classifies constraint violation errors of the driver. Zero means err is not one.
func constraintKind(err error) int {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return constraintUnique
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return constraintForeignKey
	case sqlite3.SQLITE_CONSTRAINT:
		msg := sqliteErr.Error()
		if strings.Contains(msg, "UNIQUE") {
			return constraintUnique
		}
		if strings.Contains(msg, "FOREIGN KEY") {
			return constraintForeignKey
		}
	}
	return 0
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
