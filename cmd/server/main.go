package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"formflow-backend/internal/admin"
	"formflow-backend/internal/auth"
	"formflow-backend/internal/config"
	"formflow-backend/internal/engine"
	"formflow-backend/internal/instrument"
	"formflow-backend/internal/logging"
	"formflow-backend/internal/metadata"
	"formflow-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	zl.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.Name))

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 3. Bootstrap system tables, default roles and the seed admin
	if err := db.Bootstrap(ctx, cfg.SeedAdmin, zl); err != nil {
		zl.Fatal("failed to bootstrap system tables", zap.Error(err))
	}
	zl.Info("system tables ready")

	// 4. Services
	migrator := store.NewMigrator(db, metadata.NewShapeCache())
	retry := engine.NewRetryPolicy(cfg.Retry)
	directory := auth.NewDirectory(db)

	forms := engine.NewFormRegistry(db, migrator, retry, zl)
	records := engine.NewRecordStore(db, migrator, directory, retry, zl)
	approver := engine.NewApprover(db, migrator, directory, retry, zl)

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          engine.NewErrorHandler(zl),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(zl))

	// 6. Health and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", instrument.MetricsHandler())

	// 7. Token routes (no auth required)
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(directory, cfg.JWTSecret, zl))

	authMW := auth.AuthMiddleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()

	// 8. Forms, roles and users
	admin.RegisterAdminRoutes(app, admin.NewHandler(forms, directory), authMW, adminMW)

	// 9. Record and approval routes
	engine.RegisterDataRoutes(app, engine.NewHandler(records, approver), authMW)

	// 10. Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		zl.Info("starting server", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			zl.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zl.Error("shutdown failed", zap.Error(err))
	}
}
