// cmd/server/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"prediagnostic-back/internal/casestore"
	"prediagnostic-back/internal/config"
	"prediagnostic-back/internal/database"
	"prediagnostic-back/internal/handlers"
	"prediagnostic-back/internal/inference"
	"prediagnostic-back/internal/middleware"
	"prediagnostic-back/internal/prediagnosis"
	"prediagnostic-back/internal/storage"
	"prediagnostic-back/pkg/imaging"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.MigrateDB(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	minioClient, err := storage.NewMinIOClient(cfg)
	if err != nil {
		log.Fatal("Failed to initialize MinIO client:", err)
	}

	// Inference engine: constructed and loaded once, injected everywhere.
	backend := inference.NewHTTPBackend(cfg.ModelURL, cfg.ModelTimeout)
	engine := inference.NewEngine(backend, cfg.ClassLabels)
	if err := engine.Load(context.Background()); err != nil {
		log.Fatal("Failed to load model:", err)
	}

	normalizer := imaging.NewNormalizer(cfg.ImageWidth, cfg.ImageHeight, cfg.JPEGQuality)
	store := casestore.New(db)
	svc := prediagnosis.New(store, minioClient, normalizer, engine, logger)

	// Initialize Gin router
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", handlers.Health(db, engine))

	// Public routes
	public := r.Group("/api")
	{
		public.POST("/register", handlers.Register(db))
		public.POST("/login", handlers.Login(db))
		public.POST("/logout", handlers.Logout)
	}

	// Protected routes
	protected := r.Group("/api")
	protected.Use(middleware.AuthMiddleware())
	{
		protected.POST("/cases", handlers.SubmitCase(svc))
		protected.GET("/cases", handlers.ListProcessedCases(svc))
		protected.GET("/cases/:id", handlers.GetCase(svc, minioClient))
		protected.POST("/cases/:id/review", handlers.SubmitReview(svc))
		protected.GET("/cases/:id/review", handlers.GetReview(svc))
		protected.GET("/history", handlers.GetHistory(svc))
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
