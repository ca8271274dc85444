package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/smartcity/rtiis/internal/delivery/http"
	"github.com/smartcity/rtiis/internal/detection"
	"github.com/smartcity/rtiis/internal/domain"
	"github.com/smartcity/rtiis/internal/repository/memory"
	"github.com/smartcity/rtiis/internal/repository/postgres"
	"github.com/smartcity/rtiis/internal/repository/sqlite"
	"github.com/smartcity/rtiis/internal/service"
	"github.com/smartcity/rtiis/internal/timeutil"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Configuration
	cfg := loadConfig()
	if err := cfg.Detection.Validate(); err != nil {
		log.Fatalf("Invalid detection config: %v", err)
	}

	// Database connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Printf("Warning: Could not connect to database: %v", err)
		log.Println("Running with mock data only")
		store = memory.NewStore()
	}
	if err := seedStore(ctx, store); err != nil {
		log.Fatalf("Failed to seed reference data: %v", err)
	}
	defer store.Close()

	// Dependency Injection: Services
	clock := timeutil.RealClock{}
	engine := detection.NewEngine(cfg.Detection)
	narrator := service.NewLLMBridge(cfg.LLM)
	if !narrator.Enabled() {
		log.Println("No LLM key configured, incidents get the fallback narrative")
	}

	ingestSvc := service.NewIngestService(store, engine, narrator, clock)
	incidentSvc := service.NewIncidentService(store, engine, clock)
	statusSvc := service.NewStatusService(store, narrator, clock)
	scenarioSvc := service.NewScenarioService(store, clock, time.Now().UnixNano())

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "RTIIS API v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	http.SetupRoutes(app, ingestSvc, incidentSvc, statusSvc, scenarioSvc)

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s (%s)", cfg.Port, cfg.Env)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	ingestSvc.WaitBackground()
	log.Println("Server exited gracefully")
}

// openStore picks the store from the DATABASE_URL scheme. An empty URL
// selects the in-memory store.
func openStore(ctx context.Context, cfg *Config) (domain.Store, error) {
	url := cfg.DatabaseURL
	switch {
	case url == "":
		log.Println("DATABASE_URL not set, using in-memory store")
		return memory.NewStore(), nil

	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		if cfg.AutoMigrate {
			if err := postgres.MigrateUp(url); err != nil {
				return nil, err
			}
		}
		repo, err := postgres.Connect(ctx, url)
		if err != nil {
			return nil, err
		}
		log.Println("Connected to PostgreSQL")
		return repo, nil

	default:
		path := sqlitePath(url)
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := store.MigrateUp(); err != nil {
				store.Close()
				return nil, err
			}
		}
		log.Printf("Opened SQLite database %s", path)
		return store, nil
	}
}

// seedStore loads the reference data and closes the store when that fails
func seedStore(ctx context.Context, store domain.Store) error {
	if err := service.SeedReferenceData(ctx, store); err != nil {
		store.Close()
		return err
	}
	return nil
}

func sqlitePath(url string) string {
	for _, prefix := range []string{"sqlite://", "sqlite:", "file:"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix)
		}
	}
	return url
}
