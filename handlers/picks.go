// handlers/picks.go
package handlers

import (
	"github.com/andrewbusbee/go-make-your-picks-sub003/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPickRoutes(app *fiber.App, pickService *services.PickService) {
	// 🔓 Public routes — the token in the URL is the only credential
	app.Get("/picks/validate/:token", pickService.ValidateToken)
	app.Post("/picks/:token", pickService.Submit)
}
