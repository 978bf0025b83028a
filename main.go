package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/config"
	"github.com/andrewbusbee/go-make-your-picks-sub003/handlers"
	"github.com/andrewbusbee/go-make-your-picks-sub003/models"
	"github.com/andrewbusbee/go-make-your-picks-sub003/services"
	"github.com/andrewbusbee/go-make-your-picks-sub003/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	app := fiber.New()

	// CORS for the pick/leaderboard frontend
	allowedOriginsList := strings.Split(cfg.Server.AllowedOrigins, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Season{},
		&models.SeasonWinner{},
		&models.Participant{},
		&models.Round{},
		&models.RoundCandidate{},
		&models.RoundResult{},
		&models.AccessToken{},
		&models.Prediction{},
		&models.PredictionValue{},
		&models.PointSchedule{},
		&models.ScoreRecord{},
		&models.AdminUser{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := services.SeedAdmin(db, cfg); err != nil {
		log.Fatal("failed to seed admin account:", err)
	}

	mailer := services.NewMailer(cfg)
	tokenService := services.NewTokenService(
		db, mailer, cfg.Server.BaseURL,
		time.Duration(cfg.Tokens.AdminLoginTTLMinutes)*time.Minute,
	)
	scoringService := services.NewScoringService(db)
	roundService := services.NewRoundService(db, tokenService, scoringService)
	pickService := services.NewPickService(db, tokenService)
	leaderboardService := services.NewLeaderboardService(db)
	seasonService := services.NewSeasonService(db, leaderboardService, scoringService)
	adminService := services.NewAdminService(db, tokenService, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go workers.SweepTokens(ctx, tokenService, 1*time.Hour)

	roundService.StartLockScheduler()

	handlers.SetupPickRoutes(app, pickService)
	handlers.SetupLeaderboardRoutes(app, leaderboardService, seasonService)
	handlers.SetupAdminRoutes(app, cfg.JWT.Secret, adminService, seasonService, roundService, scoringService)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Server.Port)
	log.Println("✅ Round lock scheduler running (every minute)")
	log.Println("✅ Expired-token sweeper running (hourly)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
