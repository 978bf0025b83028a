// handlers/leaderboard.go
package handlers

import (
	"github.com/andrewbusbee/go-make-your-picks-sub003/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(app *fiber.App, leaderboardService *services.LeaderboardService, seasonService *services.SeasonService) {
	// 🔓 Public standings — no auth, safe to share
	app.Get("/seasons/:slug/leaderboard", leaderboardService.GetBySlug)
	app.Get("/seasons/:slug/winners", seasonService.GetWinners)
}
