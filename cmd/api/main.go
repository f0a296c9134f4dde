package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"famfin/internal/app"
	"famfin/internal/config"
	"famfin/internal/logger"
	"famfin/internal/validator"

	_ "famfin/internal/docs" // Import swagger docs
)

// @title           Famfin API
// @version         1.0
// @description     Famfin tracks a family's budgets, bills and income across weekly, half-month and monthly periods.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config.Set(appConfig)

	dbManager, err := app.OpenDatabase(appConfig)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	bus, err := app.NewBus(appConfig)
	if err != nil {
		return err
	}
	defer bus.Close()

	// Initialize services
	svc := app.NewServices(dbManager.DB(), appConfig, bus.Publisher)
	bus.Subscribe(svc.EventHandler(true))

	if _, err := svc.Periods.EnsureHorizon(context.Background(), time.Now(), appConfig.LatticeLeadMonths); err != nil {
		log.Warnw("Failed to extend the period lattice at startup", "error", err)
	}

	validator.Register()

	if appConfig.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := app.NewRouter(svc, appConfig)

	log.Infof("Starting Famfin backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
