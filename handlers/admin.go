// handlers/admin.go
package handlers

import (
	"github.com/andrewbusbee/go-make-your-picks-sub003/middleware"
	"github.com/andrewbusbee/go-make-your-picks-sub003/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(
	app *fiber.App,
	jwtSecret string,
	adminService *services.AdminService,
	seasonService *services.SeasonService,
	roundService *services.RoundService,
	scoringService *services.ScoringService,
) {
	// 🔓 Login routes — these mint the session, so no auth yet
	app.Post("/admin/login", adminService.Login)
	app.Post("/admin/login-link", adminService.RequestLoginLink)
	app.Post("/admin/login/:token", adminService.LoginWithToken)

	// 🔐 Everything else under /admin requires a valid session
	secured := app.Group("/admin", middleware.AdminAuthMiddleware(jwtSecret))

	// Seasons and rosters
	secured.Post("/seasons", seasonService.CreateSeason)
	secured.Get("/seasons", seasonService.ListSeasons)
	secured.Get("/seasons/:id", seasonService.GetSeason)
	secured.Post("/seasons/:id/participants", seasonService.AddParticipants)
	secured.Delete("/seasons/:id/participants/:pid", seasonService.RemoveParticipant)
	secured.Post("/seasons/:id/end", seasonService.EndSeason)
	secured.Post("/seasons/:id/reopen/:roundID", seasonService.ReopenRound)
	secured.Get("/seasons/:id/rounds", roundService.ListRoundsBySeason)

	// Round lifecycle
	secured.Post("/rounds", roundService.CreateRound)
	secured.Get("/rounds/:id", roundService.GetRound)
	secured.Put("/rounds/:id", roundService.UpdateRound)
	secured.Post("/rounds/:id/activate", roundService.ActivateRound)
	secured.Post("/rounds/:id/lock", roundService.LockRound)
	secured.Post("/rounds/:id/complete", roundService.CompleteRound)
	secured.Put("/rounds/:id/results", roundService.UpdateResults)
	secured.Post("/rounds/:id/resend", roundService.ResendLink)

	// Point schedule
	secured.Get("/point-schedule", scoringService.GetPointSchedule)
	secured.Put("/point-schedule", scoringService.UpdatePointSchedule)
}
