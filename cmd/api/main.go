// @title Supertimer habits API
// @description Habit tracking with daily completions and streak counters
// @version 1.0
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/limbo/supertimer/internal/api"
	"github.com/limbo/supertimer/internal/daykey"
	"github.com/limbo/supertimer/internal/service"
	"github.com/limbo/supertimer/internal/storage"
	"github.com/limbo/supertimer/pkg/cleanup"
	"github.com/limbo/supertimer/pkg/config"
	jwtservice "github.com/limbo/supertimer/pkg/jwt_service"
	"github.com/limbo/supertimer/pkg/logger"
)

func init() {
	service.InitValidator()
}

func main() {
	cfg := config.New()
	l := logger.Setup(logger.Config{
		Level:  cfg.GetStringOr("LOG_LEVEL", "info"),
		Format: cfg.GetStringOr("LOG_FORMAT", "text"),
		File:   cfg.GetString("LOG_FILE"),
	})
	defer cleanup.CleanUp()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := storage.MustOpen(cfg)
	days := daykey.New(cfg.GetLocation("REFERENCE_TZ", time.UTC))
	l.Info("storage ready",
		slog.String("driver", st.Driver),
		slog.String("reference_tz", days.Location().String()),
	)

	userService := service.NewUserService(st.Users)
	habitsService := service.NewHabitsService(st.Habits, st.Completions, days)

	reconciler := service.NewReconciler(st.Habits, cfg.GetDuration("RECONCILE_INTERVAL", time.Hour), l)
	reconciler.Start(ctx)
	cleanup.Register(&cleanup.Job{
		Name: "stopping counters reconciler",
		F:    reconciler.Stop,
	})

	serv := api.New(&api.ServicesList{
		UserService:   userService,
		HabitsService: habitsService,
		JwtService:    jwtservice.New(cfg.GetString("JWT_SECRET"), cfg.GetDuration("JWT_TTL", jwtservice.DefaultTokenTTL)),
		Storage:       st.Pinger,
	})
	if err := serv.Run(ctx, cfg.GetStringOr("API_ADDRESS", ":8080")); err != nil {
		l.Error("server error", slog.String("error", err.Error()))
	}
}
