package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	api "github.com/edupoint/portal/internal/api/http"
	"github.com/edupoint/portal/internal/audit"
	"github.com/edupoint/portal/internal/auth"
	"github.com/edupoint/portal/internal/config"
	"github.com/edupoint/portal/internal/db"
	"github.com/edupoint/portal/internal/eligibility"
	"github.com/edupoint/portal/internal/events"
	"github.com/edupoint/portal/internal/exam"
	"github.com/edupoint/portal/internal/grading"
	"github.com/edupoint/portal/internal/rbac"
	"github.com/edupoint/portal/internal/session"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "portald",
		Short: "School-portal exam delivery and grading backend",
	}

	serve := serveCmd()
	root.AddCommand(serve, sweepCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func commonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", "sqlite", "Database driver (sqlite, postgres)")
	f.String("db-dsn", "", "Database DSN (driver default when empty)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("auth-secret", "", "HMAC secret for JWTs (or PORTAL_AUTH_SECRET)")
	f.String("admin-user", "admin", "Bootstrap admin username")
	f.String("admin-password", "", "Bootstrap admin password (or PORTAL_ADMIN_PASSWORD)")
	f.String("cors-origins", "http://localhost:3000", "Comma-separated allowed CORS origins")
	f.Duration("sweep-interval", 30*time.Second, "Expired-session sweep interval (0 disables)")
	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one expired-session sweep pass and exit",
		RunE:  runSweep,
	}
	commonFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	cfg := config.Load(v)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()

	secret := cfg.AuthSecret
	if secret == "" {
		secret = "insecure-dev-secret"
		slog.Warn("no auth secret configured, using development default")
	}
	authSvc := auth.NewAuthService(secret)
	users := auth.NewUserStore(dbh)

	if cfg.AdminPassword != "" {
		_, err := users.Upsert(ctx, auth.User{Username: cfg.AdminUser, Role: "admin"}, cfg.AdminPassword)
		if err != nil {
			return err
		}
	}

	exams := exam.NewSQLStore(dbh)
	sink := audit.NewSQLSink(dbh)
	gate := eligibility.New(exams, users, sink)
	pub := events.NewLogRepo(dbh)
	sessions := session.NewSQLStore(dbh, exams, gate, grading.NewGrader(), pub)
	checker := rbac.NewChecker(nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, users))

	// Protected API (JWT → subject/role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("exam:create")).
			Post("/exams", api.PutExamHandler(exams))
		pr.With(rbac.Require("exam:publish")).
			Post("/exams/{examID}/publish", api.PublishExamHandler(exams))
		pr.With(rbac.Require("exam:view")).
			Get("/exams/{examID}", api.GetExamHandler(exams, checker))
		pr.With(rbac.Require("exam:view")).
			Get("/exams", api.ListExamsHandler(exams))

		// Student flow
		pr.With(rbac.Require("session:start")).
			Post("/exams/{examID}/sessions", api.StartSessionHandler(sessions))
		pr.With(rbac.RequireAny("session:view-own", "session:view-all")).
			Get("/sessions/{sessionID}", api.GetSessionHandler(sessions, checker))
		pr.With(rbac.RequireAny("session:view-own", "session:view-all")).
			Get("/sessions", api.ListSessionsHandler(sessions, checker))
		pr.With(rbac.Require("session:answer")).
			Put("/sessions/{sessionID}/answers/{questionID}", api.SaveAnswerHandler(sessions))
		pr.With(rbac.Require("session:submit")).
			Post("/sessions/{sessionID}/submit", api.SubmitSessionHandler(sessions))

		// Teacher grading flow
		pr.With(rbac.Require("session:view-all")).
			Get("/sessions/{sessionID}/answers", api.ListSessionAnswersHandler(sessions))
		pr.With(rbac.Require("grading:list")).
			Get("/grading/tasks", api.ListGradingTasksHandler(sessions))
		pr.With(rbac.Require("grading:claim")).
			Post("/grading/tasks/{taskID}/claim", api.ClaimGradingTaskHandler(sessions))
		pr.With(rbac.Require("grading:complete")).
			Post("/grading/tasks/{taskID}/complete", api.CompleteGradingTaskHandler(sessions))
		pr.With(rbac.Require("grading:skip")).
			Post("/grading/tasks/{taskID}/skip", api.SkipGradingTaskHandler(sessions))
		pr.With(rbac.Require("grading:reopen")).
			Post("/grading/tasks/{taskID}/reopen", api.ReopenGradingTaskHandler(sessions))
		pr.With(rbac.Require("grading:escalate")).
			Post("/grading/tasks/{taskID}/priority", api.SetTaskPriorityHandler(sessions))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	if cfg.SweepInterval > 0 {
		sweeper := &session.Sweeper{Store: sessions, Interval: cfg.SweepInterval}
		go sweeper.Run(cmd.Context())
	}

	slog.Info("listening", "addr", cfg.HTTPAddr, "db", cfg.DBDriver)
	return http.ListenAndServe(cfg.HTTPAddr, r)
}

func runSweep(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	cfg := config.Load(v)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()

	exams := exam.NewSQLStore(dbh)
	users := auth.NewUserStore(dbh)
	gate := eligibility.New(exams, users, audit.NewSQLSink(dbh))
	sessions := session.NewSQLStore(dbh, exams, gate, grading.NewGrader(), events.NewLogRepo(dbh))

	n, err := sessions.SweepExpired(ctx)
	if err != nil {
		return err
	}
	slog.Info("sweep complete", "submitted", n)
	return nil
}

func setupLogging(v *viper.Viper) {
	var level slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// viperForCmd binds a command's flags and environment to a fresh viper
// instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("portald")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/portald")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	}
	return v
}
