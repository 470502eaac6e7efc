package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/limbo/supertimer/pkg/cleanup"
	"github.com/limbo/supertimer/pkg/config"
	"github.com/limbo/supertimer/pkg/logger"
)

var CLI struct {
	Env      string `help:"Path to env file." type:"path" default:"./configs/.env"`
	LogLevel string `help:"Log level." default:"info" enum:"debug,info,warn,error"`

	Migrate struct {
		Up     MigrateUpCmd     `cmd:"" help:"Apply all pending migrations."`
		Down   MigrateDownCmd   `cmd:"" help:"Roll back the latest migration."`
		Status MigrateStatusCmd `cmd:"" help:"Show migration status."`
	} `cmd:"" help:"Manage postgres schema."`
	Reconcile ReconcileCmd `cmd:"" help:"Re-derive habit counters from the completion ledger."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("habitctl"),
		kong.Description("Maintenance tool for supertimer storage"),
		kong.UsageOnError(),
	)
	logger.Setup(logger.Config{Level: CLI.LogLevel})
	appCtx := &Context{
		Ctx:    context.Background(),
		Config: config.Load(CLI.Env),
	}
	err := kctx.Run(appCtx)
	cleanup.CleanUp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
