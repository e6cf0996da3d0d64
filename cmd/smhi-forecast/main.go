package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	httpapi "github.com/i474232898/smhi-forecast/internal/api/http"
	"github.com/i474232898/smhi-forecast/internal/config"
	"github.com/i474232898/smhi-forecast/internal/render"
	"github.com/i474232898/smhi-forecast/internal/scheduler"
	"github.com/i474232898/smhi-forecast/internal/store"
	"github.com/i474232898/smhi-forecast/internal/weather"
	"github.com/i474232898/smhi-forecast/internal/weather/providers"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	once := flag.Bool("once", false, "fetch and aggregate a single forecast, print it as JSON and exit")
	port := flag.String("port", "", "HTTP listen port (overrides PORT)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	// Shared HTTP client for the forecast feed.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	provider := providers.NewSMHIProvider(httpClient, cfg.URLTemplate, cfg.FetchMaxRetries)

	// In-memory history with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	sched := scheduler.New()
	defer sched.Stop()

	service := weather.NewService(memStore, provider, sched, weather.Options{
		Location:         cfg.Location,
		Credential:       cfg.APIKey,
		UpdateInterval:   cfg.UpdateInterval,
		InitialLoadDelay: cfg.InitialLoadDelay,
		RetryDelay:       cfg.RetryDelay,
		Aggregate: weather.AggregateOptions{
			MaxDays: cfg.MaxNumberOfDays,
			Icons:   cfg.Icons,
			TZ:      cfg.Timezone,
		},
	})

	if *once {
		runOnce(service)
		return
	}

	widget := render.NewCache(render.NewWidget(render.Options{
		Title:             cfg.Title,
		ShowWindDirection: cfg.ShowWindDirection,
		Fade:              cfg.Fade,
		FadePoint:         cfg.FadePoint,
		AnimationSpeed:    cfg.AnimationSpeed,
	}))
	service.OnUpdate(widget.Update)

	if err := service.Start(); err != nil {
		log.Fatalf("failed to start forecast updates: %v", err)
	}
	defer service.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "smhi-forecast",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "smhi-forecast",
			"state":   service.State().Status,
		})
	})

	httpapi.RegisterRoutes(app, service, widget)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// runOnce performs a single fetch cycle without the scheduler.
func runOnce(service *weather.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	forecast, err := service.Update(ctx)
	if err != nil {
		log.Fatalf("failed to load forecast: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(forecast); err != nil {
		log.Fatalf("failed to encode forecast: %v", err)
	}
}
