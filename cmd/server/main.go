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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nnecfa/payments/docs"
	"github.com/nnecfa/payments/internal/audit"
	"github.com/nnecfa/payments/internal/config"
	"github.com/nnecfa/payments/internal/database"
	"github.com/nnecfa/payments/internal/events"
	"github.com/nnecfa/payments/internal/handlers"
	mW "github.com/nnecfa/payments/internal/middleware"
	"github.com/nnecfa/payments/internal/mpesa"
	"github.com/nnecfa/payments/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title NNECFA Payments API
// @version 1.0
// @description M-Pesa registration payment confirmation
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	config.InitViper(".env")
	database.BindEnv()

	mpesaCfg := config.LoadMpesaConfig()
	if err := mpesaCfg.Validate(); err != nil {
		log.Fatalf("Invalid M-Pesa configuration: %v", err)
	}
	eventsCfg := config.LoadEventsConfig()
	if err := eventsCfg.Validate(); err != nil {
		log.Fatalf("Invalid events configuration: %v", err)
	}
	if viper.GetString("jwt.secret_key") == "" {
		log.Fatal("JWT_SECRET_KEY is required")
	}
	paymentCfg := config.LoadPaymentConfig()
	if err := paymentCfg.Validate(); err != nil {
		log.Fatalf("Invalid payment configuration: %v", err)
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.public_host", "localhost:8080")
	port := viper.GetString("server.port")
	publicHost := viper.GetString("server.public_host")

	// Initialize Swagger docs
	docs.SwaggerInfo.Host = publicHost
	docs.SwaggerInfo.BasePath = "/api/v1"

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher, err := events.NewPublisher(eventsCfg)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}
	defer publisher.Close()

	// Initialize services
	gateway := mpesa.NewClient(mpesaCfg, mpesa.Options{
		RefreshMargin: paymentCfg.TokenRefreshMargin,
		QueryTimeout:  paymentCfg.StatusQueryTimeout,
	})
	auditLogger := audit.NewAuditLogger()
	ledger := services.NewPostgresLedger(db)
	accounts := services.NewPostgresAccountStore(db)
	limiter := services.NewRedisRateLimiter(redisClient, paymentCfg.PushRateLimit, paymentCfg.PushRateWindow)
	reconciler := services.NewReconciler(ledger, accounts, publisher, auditLogger)
	paymentService := services.NewPaymentService(gateway, ledger, reconciler, limiter, auditLogger, paymentCfg)
	qrService := services.NewQRService(redisClient, mpesaCfg.ShortCode, paymentCfg.DefaultAmount)
	sweeper := services.NewSweeper(ledger, reconciler, paymentCfg)

	paymentHandler := handlers.NewPaymentHandler(paymentService, paymentCfg.DefaultAmount)
	callbackHandler := handlers.NewCallbackHandler(paymentService, mpesaCfg.CallbackToken)
	instructionsHandler := handlers.NewInstructionsHandler(qrService)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(sweepCtx)
	}()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/mpesa/callback/{token}", callbackHandler.HandleCallback)
		r.Get("/payments/instructions", instructionsHandler.GetInstructions)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/payments/stkpush", paymentHandler.InitiatePush)
			r.Post("/payments/confirm", paymentHandler.ConfirmPayment)
			r.Get("/payments/requests/{checkoutRequestId}", paymentHandler.GetRequest)
			r.Post("/payments/requests/{checkoutRequestId}/query", paymentHandler.QueryStatus)
		})
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopSweeper()
	<-sweeperDone

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
