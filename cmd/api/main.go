package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/config"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/db"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/handlers"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/logger"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/metrics"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/realtime"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("pasar-tani-api", cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	rdb := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword, log)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// notifications are best effort; messaging works without them
		log.Warn("redis ping failed", zap.Error(err))
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTP(reg)

	repo := repository.NewGormRepository(gdb)
	messageH := handlers.NewMessageHandler(repo, repo, realtime.NewNotifier(rdb), httpMetrics, log)
	productH := handlers.NewProductHandler(repo, log)
	sessionH := &handlers.SessionHandler{
		Catalog:   repo,
		JWTSecret: cfg.JWTSecret,
		Expires:   cfg.JWTExpiresMin,
		Log:       log,
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))
	app.Use(httpMetrics.Middleware())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	handlers.Mount(app, cfg.JWTSecret, sessionH, messageH, productH)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		_ = app.Shutdown()
	}()

	log.Info("listening", zap.String("port", cfg.AppPort))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
