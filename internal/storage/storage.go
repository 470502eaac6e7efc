// Package storage selects the repository backend configured for the process.
package storage

import (
	"context"
	"log"

	"github.com/limbo/supertimer/internal/repository"
	"github.com/limbo/supertimer/internal/repository/sqlite"
	"github.com/limbo/supertimer/pkg/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLitePath = "./data/supertimer.db"
)

type Storage struct {
	Driver      string
	Users       repository.UsersRepositoryI
	Habits      repository.HabitsRepositoryI
	Completions repository.HabitCompletionsRepositoryI
	Pinger      interface {
		Ping(ctx context.Context) error
	}
}

// PGConfig reads postgres connection settings.
func PGConfig(cfg *config.Config) *repository.PGCfg {
	return &repository.PGCfg{
		Address:  cfg.GetString("POSTGRES_DB_ADDRESS"),
		Username: cfg.GetString("POSTGRES_USER"),
		Password: cfg.GetString("POSTGRES_PASSWORD"),
		DB:       cfg.GetString("POSTGRES_DB"),
	}
}

// MustOpen connects to the backend named by STORAGE_DRIVER. Failures are fatal,
// closing is registered as cleanup job.
func MustOpen(cfg *config.Config) *Storage {
	switch driver := cfg.GetStringOr("STORAGE_DRIVER", DriverPostgres); driver {
	case DriverPostgres:
		pool := repository.Connect(PGConfig(cfg))
		return &Storage{
			Driver:      driver,
			Users:       repository.NewUsersRepoWithConn(pool),
			Habits:      repository.NewHabitsRepoWithConn(pool),
			Completions: repository.NewHabitCompletionsRepoWithConn(pool),
			Pinger:      pool,
		}
	case DriverSQLite:
		store := sqlite.MustOpen(cfg.GetStringOr("SQLITE_PATH", defaultSQLitePath))
		return &Storage{
			Driver:      driver,
			Users:       store.Users(),
			Habits:      store.Habits(),
			Completions: store.Completions(),
			Pinger:      store,
		}
	default:
		log.Fatal("unknown STORAGE_DRIVER: " + driver)
		return nil
	}
}
