package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose"

	"github.com/limbo/supertimer/internal/service"
	"github.com/limbo/supertimer/internal/storage"
	"github.com/limbo/supertimer/pkg/config"
	"github.com/limbo/supertimer/pkg/logger"
)

type Context struct {
	Ctx    context.Context
	Config *config.Config
}

type migrationsFlags struct {
	Dir string `help:"Migrations directory." type:"path" default:"./migrations" env:"MIGRATIONS_DIR"`
}

// openMigrationsDB opens postgres through lib/pq for goose.
func openMigrationsDB(cfg *config.Config) (*sql.DB, error) {
	if driver := cfg.GetStringOr("STORAGE_DRIVER", storage.DriverPostgres); driver != storage.DriverPostgres {
		return nil, errors.New("migrations apply to postgres only, " + driver + " schema is created on open")
	}
	connStr := storage.PGConfig(cfg).ConnString() + "?sslmode=" + cfg.GetStringOr("POSTGRES_SSLMODE", "disable")
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.New("opening database error: " + err.Error())
	}
	if err = goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type MigrateUpCmd struct {
	migrationsFlags `embed:""`
}

func (c *MigrateUpCmd) Run(ctx *Context) error {
	db, err := openMigrationsDB(ctx.Config)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.Up(db, c.Dir)
}

type MigrateDownCmd struct {
	migrationsFlags `embed:""`
}

func (c *MigrateDownCmd) Run(ctx *Context) error {
	db, err := openMigrationsDB(ctx.Config)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.Down(db, c.Dir)
}

type MigrateStatusCmd struct {
	migrationsFlags `embed:""`
}

func (c *MigrateStatusCmd) Run(ctx *Context) error {
	db, err := openMigrationsDB(ctx.Config)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.Status(db, c.Dir)
}

type ReconcileCmd struct {
	Timeout time.Duration `help:"Sweep timeout." default:"1m"`
}

func (c *ReconcileCmd) Run(ctx *Context) error {
	st := storage.MustOpen(ctx.Config)
	sweepCtx, cancel := context.WithTimeout(ctx.Ctx, c.Timeout)
	defer cancel()
	fixed, err := service.NewReconciler(st.Habits, 0, logger.FromContext(ctx.Ctx)).RunOnce(sweepCtx)
	if err != nil {
		return errors.New("reconciling counters error: " + err.Error())
	}
	fmt.Fprintf(os.Stdout, "%s: %d habit(s) fixed\n", st.Driver, fixed)
	return nil
}
