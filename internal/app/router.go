package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"famfin/internal/config"
	"famfin/internal/handlers"
	"famfin/internal/middleware"
)

// NewRouter registers every HTTP route over svc.
func NewRouter(svc *Services, cfg *config.Config) *gin.Engine {
	obligationHandler := handlers.NewObligationHandler(svc.Obligations, svc.Materializer, svc.Projections, svc.Audit)
	projectionHandler := handlers.NewProjectionHandler(svc.Projections, svc.Aggregator)
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions, svc.Audit)
	feedHandler := handlers.NewFeedHandler(svc.Feed, svc.Audit)
	periodHandler := handlers.NewPeriodHandler(svc.Periods)
	adminHandler := handlers.NewAdminHandler(svc.Periods, svc.Materializer, svc.Reconciler, svc.Audit, cfg.LatticeLeadMonths)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Server-to-server feed delivery
	v1.POST("/feed/webhook", middleware.FeedAuthMiddleware(cfg.FeedAPIKey), feedHandler.IngestWebhook)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// Obligation routes
	obligations := protected.Group("/obligations")
	obligations.POST("", obligationHandler.CreateObligation)
	obligations.GET("", obligationHandler.ListObligations)
	obligations.GET("/:id", obligationHandler.GetObligation)
	obligations.PUT("/:id", obligationHandler.UpdateObligation)
	obligations.DELETE("/:id", obligationHandler.DeactivateObligation)
	obligations.POST("/:id/materialize", obligationHandler.MaterializeObligation)
	obligations.POST("/:id/fill-gap", obligationHandler.FillGap)
	obligations.GET("/:id/projections", obligationHandler.ListProjections)

	// Projection routes
	projections := protected.Group("/projections")
	projections.GET("/:id", projectionHandler.GetProjection)
	projections.POST("/:id/recompute", projectionHandler.RecomputeProjection)

	// Transaction routes
	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.GetTransactions)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.PUT("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	// Feed routes
	protected.POST("/feed/events", feedHandler.IngestEvent)

	// Period routes
	periods := protected.Group("/periods")
	periods.GET("", periodHandler.ListPeriods)
	periods.GET("/current", periodHandler.GetCurrentPeriods)
	periods.GET("/:id", periodHandler.GetPeriod)

	// Operator routes
	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/periods/generate", adminHandler.GeneratePeriods)
	admin.POST("/periods/sweep", adminHandler.SweepPeriods)
	admin.POST("/materialize", adminHandler.MaterializeAll)
	admin.POST("/reconcile", adminHandler.ReconcileStale)

	return router
}
