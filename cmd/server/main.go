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
	"github.com/spf13/viper"

	"github.com/coralwest/backend/internal/database"
	mW "github.com/coralwest/backend/internal/middleware"
	"github.com/coralwest/backend/internal/services"
)

// @title CoralWest Banking API
// @version 1.0
// @description Backend API for the CoralWest banking portal
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")
	viper.BindEnv("rates.btc_usd", "RATES_BTC_USD")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	rates := services.NewFixedRateProvider()
	ledgerService := services.NewLedgerService(db, redisClient, rates)
	authService := services.NewAuthService(db, redisClient)
	accountService := services.NewAccountService(db)
	transactionService := services.NewTransactionService(db, ledgerService, rates)
	adminService := services.NewAdminService(db, ledgerService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/verify-otp", authService.VerifyOTP)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			r.Get("/accounts", accountService.ListAccounts)
			r.Get("/accounts/{id}", accountService.GetAccount)

			r.Get("/transactions", transactionService.ListTransactions)
			r.Get("/transactions/recent", transactionService.GetRecentTransactions)
			r.Get("/transactions/{reference}", transactionService.GetTransaction)

			r.Post("/deposits", transactionService.CreateDeposit)
			r.Post("/transfers", transactionService.CreateTransfer)
			r.Post("/currency-swap", transactionService.CreateSwap)
			r.Get("/currency-swap/rate", transactionService.GetRate)
			r.Post("/investments/deposit", transactionService.InvestmentDeposit)
		})

		// Admin endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Use(mW.AdminMiddleware)

			r.Get("/admin/overview", adminService.Overview)
			r.Get("/admin/users", adminService.ListUsers)
			r.Patch("/admin/users/{id}", adminService.UpdateUser)
			r.Get("/admin/accounts", adminService.ListAccounts)
			r.Post("/admin/accounts", adminService.CreateAccount)
			r.Patch("/admin/accounts/{id}", adminService.UpdateAccount)
			r.Post("/admin/accounts/{id}/deposit", adminService.Deposit)
			r.Post("/admin/accounts/{id}/debit", adminService.Debit)
			r.Post("/admin/accounts/{id}/receive", adminService.Receive)
			r.Post("/admin/accounts/{id}/transfer", adminService.Transfer)
			r.Get("/admin/transactions", adminService.ListTransactions)
			r.Patch("/admin/transactions/{reference}", adminService.UpdateTransactionStatus)
			r.Get("/admin/reconciliations", adminService.ListReconciliations)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
