package api

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/limbo/supertimer/docs"
	"github.com/limbo/supertimer/internal/service"
	"github.com/limbo/supertimer/pkg/httputil"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mx            *chi.Mux
	userService   service.UserServiceI
	habitsService service.HabitsServiceI
	jwtService    JWTServiceI
	storage       Pinger
}

type ServicesList struct {
	UserService   service.UserServiceI
	HabitsService service.HabitsServiceI
	JwtService    JWTServiceI
	// Optional, used by health check
	Storage Pinger
}

func New(servicesOptions *ServicesList) *Server {
	if servicesOptions == nil {
		log.Fatal("provided nil services list")
	}
	s := &Server{
		mx:            chi.NewMux(),
		userService:   servicesOptions.UserService,
		habitsService: servicesOptions.HabitsService,
		jwtService:    servicesOptions.JwtService,
		storage:       servicesOptions.Storage,
	}
	s.mountEndpoints()
	return s
}

func (s *Server) mountEndpoints() {
	s.mx.Use(middleware.Recoverer)
	s.mx.Use(s.RequestIDMiddleware)
	s.mx.Use(s.SettingUpLoggerMiddleware)
	s.mx.Get("/health", s.Health)
	s.mx.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	s.mx.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.Register)
		r.Post("/auth/login", s.Login)
		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)
			r.Use(s.LoggerExtensionMiddleware)
			r.Route("/habits", func(r chi.Router) {
				r.Get("/", s.GetHabits)
				r.Post("/", s.CreateHabit)
				r.Get("/tags", s.GetTagUsage)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.GetHabit)
					r.Put("/", s.UpdateHabit)
					r.Delete("/", s.DeleteHabit)
					r.Post("/complete", s.CompleteHabit)
					r.Post("/uncomplete", s.UncompleteHabit)
					r.Get("/completions", s.GetHabitCompletions)
					r.Get("/stats", s.GetHabitStats)
				})
			})
		})
	})
}

func (s *Server) Handler() http.Handler {
	return s.mx
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mx,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.New("server shutdown error: " + err.Error())
		}
		return nil
	}
}

// @Summary Service health
// @Tags health
// @Produce json
// @Success 200 {object} httputil.SuccessResponse
// @Failure 503 {object} httputil.ErrorResponse
// @Router /health [get]
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.storage.Ping(ctx); err != nil {
			GetLoggerFromCtx(r.Context()).Error("health check failed", slog.String("error", err.Error()))
			httputil.WriteErrorResponse(w, http.StatusServiceUnavailable, "storage unavailable", nil)
			return
		}
	}
	httputil.WriteSuccessResponse(w, http.StatusOK, "ok", nil)
}
