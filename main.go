package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/refnet/refnet_backend/config"
	"github.com/refnet/refnet_backend/controllers"
	"github.com/refnet/refnet_backend/middleware"
	"github.com/refnet/refnet_backend/notifier"
	"github.com/refnet/refnet_backend/repositories"
	"github.com/refnet/refnet_backend/routes"
	"github.com/refnet/refnet_backend/services"
	"github.com/refnet/refnet_backend/utils"
	"github.com/refnet/refnet_backend/websocket"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Initialize Firebase
	config.InitFirebase()

	// Connect to Redis
	redisClient := config.ConnectRedis()
	defer config.CloseRedis()

	// Connect to database
	client := config.ConnectDB()
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from database: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage and referral tree
	store := repositories.NewAccountRepository(client)
	tree := services.NewReferralTree(store)

	// Change notifier: one feed, fanned out to subscribed connections
	changes := notifier.New(store)
	go changes.Run(ctx)

	// WebSocket hub for global purchase broadcasts
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Commission engine
	engine := services.NewCommissionService(store, tree, changes, wsHub, utils.NewAlerts(client, wsHub))

	// Settle any purchases that crashed mid-settlement on a previous run
	if err := engine.ReplayPending(ctx); err != nil {
		log.Printf("Warning: replay of pending purchases failed: %v", err)
	}

	// Create a new Echo instance
	e := echo.New()

	// Initialize custom validator
	e.Validator = &CustomValidator{validator: validator.New()}

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())
	e.Use(middleware.SecurityHeadersWithConfig(middleware.SecurityConfig{
		AllowedDomains: []string{"*"},
		AllowInlineJS:  false,
	}))

	e.Match([]string{"GET", "HEAD"}, "/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "RefNet Backend is running",
			"version": "1.0",
		})
	})

	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Initialize controllers
	authController := controllers.NewAuthController(engine, store, redisClient)
	purchaseController := controllers.NewPurchaseController(engine)
	referralController := controllers.NewReferralController(store, tree)

	// Register routes
	routes.RegisterAuthRoutes(e, authController)
	routes.RegisterUserRoutes(e, purchaseController, referralController, wsHub, changes)

	// Periodically clear expired entries from the token blacklist
	go middleware.CleanupBlacklist()

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Fatal(e.Start(":" + port))
}
