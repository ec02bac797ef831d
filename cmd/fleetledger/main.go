package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetledger/fleetledger/internal/app"
	"github.com/fleetledger/fleetledger/internal/audit"
	"github.com/fleetledger/fleetledger/internal/auth"
	"github.com/fleetledger/fleetledger/internal/companies"
	"github.com/fleetledger/fleetledger/internal/expenses"
	"github.com/fleetledger/fleetledger/internal/platform/cache"
	"github.com/fleetledger/fleetledger/internal/platform/db"
	"github.com/fleetledger/fleetledger/internal/rbac"
	"github.com/fleetledger/fleetledger/internal/users"
	"github.com/fleetledger/fleetledger/internal/vehicles"
	"github.com/fleetledger/fleetledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, redisClient)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokens)
	authMiddleware := auth.Middleware{Service: authService, Tokens: tokens, Logger: logger}
	authHandler := auth.NewHandler(logger, authService, authMiddleware)

	rolesRepo := rbac.NewRolesRepository(pool)
	assignmentsRepo := rbac.NewAssignmentsRepository(pool)
	permCache := rbac.NewPermissionCache(cfg.PermissionCacheTTL)
	resolver := rbac.NewResolver(rolesRepo, assignmentsRepo, permCache, logger)
	guard := rbac.Middleware{Resolver: resolver, Logger: logger}

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	recorder := audit.NewRecorder(jobsClient, logger)

	usersRepo := users.NewRepository(pool)
	expensesRepo := expenses.NewRepository(pool)
	expensesService := expenses.NewService(expensesRepo)

	rbacService := rbac.NewService(rolesRepo, assignmentsRepo, users.NewDirectory(usersRepo), resolver, logger)
	rolesHandler := rbac.NewHandler(logger, rbacService, guard, recorder)

	usersService := users.NewService(usersRepo, rbacService, expensesService)
	usersHandler := users.NewHandler(logger, usersService, guard, recorder)

	companiesRepo := companies.NewRepository(pool)
	companiesService := companies.NewService(companiesRepo)
	companiesHandler := companies.NewHandler(logger, companiesService, guard, recorder)

	vehiclesRepo := vehicles.NewRepository(pool)
	vehiclesService := vehicles.NewService(vehiclesRepo)
	vehiclesHandler := vehicles.NewHandler(logger, vehiclesService, guard, recorder)

	expensesHandler := expenses.NewHandler(logger, expensesService, guard, recorder)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, guard)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthMiddleware:   authMiddleware,
		AuthHandler:      authHandler,
		RolesHandler:     rolesHandler,
		CompaniesHandler: companiesHandler,
		UsersHandler:     usersHandler,
		VehiclesHandler:  vehiclesHandler,
		ExpensesHandler:  expensesHandler,
		AuditHandler:     auditHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
