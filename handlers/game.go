// handlers/game.go
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"pongmatch/middleware"
	"pongmatch/services"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService, playerService *services.PlayerService, apiKey string, writeTimeout time.Duration) {
	// 🔐 Service-to-service routes
	service := middleware.APIKeyMiddleware(apiKey)
	app.Post("/game-result", service, gameService.SubmitResult)
	app.Post("/players", service, playerService.RegisterPlayer)
	app.Patch("/players/:name", service, playerService.UpdatePlayer)

	// 👤 Player routes, identity comes from the Gateway
	player := app.Group("/", middleware.PlayerContextMiddleware())

	player.Post("/game", gameService.RegisterGame)
	player.Get("/games", gameService.ListGames)
	player.Get("/games/me", gameService.MyGames)
	player.Put("/game/start/:id", gameService.StartGame)
	player.Get("/game/:id", gameService.GetGame)
	player.Put("/game/:id", gameService.JoinGame)
	player.Delete("/game/:id", gameService.DeleteGame)

	player.Get("/players", playerService.ListPlayers)
	player.Get("/players/:name", playerService.GetPlayer)
	player.Get("/players/:name/stats", playerService.GetPlayerStats)

	player.Get("/ws", services.UpgradeOnly, playerService.Socket(writeTimeout))
}
