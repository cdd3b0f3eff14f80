package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/exam-forge/examforge-engine/internal/api/http"
	guestauth "github.com/exam-forge/examforge-engine/internal/auth"
	auth "github.com/exam-forge/examforge-engine/internal/auth/middleware"
	"github.com/exam-forge/examforge-engine/internal/catalog"
	"github.com/exam-forge/examforge-engine/internal/config"
	"github.com/exam-forge/examforge-engine/internal/db"
	"github.com/exam-forge/examforge-engine/internal/progress"
	"github.com/exam-forge/examforge-engine/internal/rbac"
	"github.com/exam-forge/examforge-engine/internal/result"
	"github.com/exam-forge/examforge-engine/internal/session"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	tests := catalog.NewSQLStore(dbh)
	results := result.NewSQLStore(dbh)

	if cfg.TestSeedDir != "" {
		n, err := catalog.LoadDir(ctx, tests, cfg.TestSeedDir)
		if err != nil {
			log.Fatalf("seed tests: %v", err)
		}
		slog.Info("seeded test definitions", "dir", cfg.TestSeedDir, "count", n)
	}

	progStore, err := openProgressStore(cfg, dbh)
	if err != nil {
		log.Fatalf("progress store: %v", err)
	}

	mgr := session.NewManager(tests, progStore, results,
		session.WithAutosaveInterval(cfg.AutosaveInterval),
		session.WithSaveDebounce(cfg.SaveDebounce),
	)

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	r.Post("/auth/guest", guestauth.GuestLoginHandler(authSvc, dbh, cfg.EnableGuestAuth))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Teacher-only: upload test definitions
		pr.With(rbac.Require("test:create")).
			Post("/tests", api.UploadTestHandler(tests))

		pr.With(rbac.Require("test:view")).
			Get("/tests", api.ListTestsHandler(tests))
		pr.With(rbac.Require("test:view")).
			Get("/tests/{testID}", api.GetTestHandler(tests))

		// Session flow
		pr.Route("/sessions/{testID}", func(sr chi.Router) {
			sr.Use(rbac.Require("session:run"))
			sr.Post("/", api.StartSessionHandler(mgr))
			sr.Get("/", api.GetSessionHandler(mgr))
			sr.Delete("/", api.CloseSessionHandler(mgr))
			sr.Post("/select", api.SelectAnswerHandler(mgr))
			sr.Post("/answers", api.SaveAnswerHandler(mgr))
			sr.Post("/mark", api.ToggleMarkHandler(mgr))
			sr.Post("/goto", api.GoToQuestionHandler(mgr))
			sr.Post("/next", api.NextQuestionHandler(mgr))
			sr.Post("/previous", api.PreviousQuestionHandler(mgr))
			sr.Post("/pause", api.PauseSessionHandler(mgr))
			sr.Post("/resume", api.ResumeSessionHandler(mgr))
			sr.Post("/submit", api.SubmitSessionHandler(mgr))
			if watcher, ok := progStore.(progress.Watcher); ok {
				sr.Get("/watch", api.WatchProgressHandler(watcher))
			}
		})

		pr.With(rbac.RequireAny("result:view-own", "result:view-all")).
			Get("/results/{testID}", api.ListResultsHandler(results))
		pr.With(rbac.Require("stats:view-own")).
			Get("/users/me/stats", api.UserStatsHandler(results))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", cfg.HTTPAddr, "mode", string(cfg.Mode),
			"db", cfg.DBDriver, "progress", cfg.ProgressBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	// Flush live sessions so resume picks up from here.
	mgr.Shutdown()
	slog.Info("stopped")
}

func openProgressStore(cfg config.Config, dbh *sql.DB) (progress.Store, error) {
	switch cfg.ProgressBackend {
	case "redis":
		return progress.NewRedisStore(cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB)
	case "sql":
		return progress.NewSQLStore(dbh), nil
	case "memory":
		return progress.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported progress backend: %s", cfg.ProgressBackend)
	}
}
