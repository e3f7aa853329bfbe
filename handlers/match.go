package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"pongmatch/services"
)

// SetupMatchRoutes wires the game server. Creating and starting matches
// is reserved to callers holding a CSRF token from /get-csrf-token.
func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService) {
	guard := csrf.New(csrf.Config{
		KeyLookup:      "header:X-CSRFToken",
		CookieName:     "csrftoken",
		CookieSameSite: "Lax",
		ContextKey:     "csrf",
		Expiration:     time.Hour,
	})

	app.Get("/get-csrf-token", guard, matchService.CSRFToken)

	app.Put("/match/start/:id", guard, matchService.StartMatch)
	app.Put("/match/join/:id", matchService.JoinMatch)
	app.Put("/match/control/:id", matchService.ControlMatch)
	app.Put("/match/:id", guard, matchService.CreateMatch)
	app.Get("/match/:id/ws", services.UpgradeOnly, matchService.Socket())
	app.Get("/match/:id", matchService.GetMatch)
}
