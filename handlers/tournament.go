package handlers

import (
	"github.com/gofiber/fiber/v2"

	"pongmatch/middleware"
	"pongmatch/services"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	secured := app.Group("/tournaments", middleware.PlayerContextMiddleware())

	secured.Post("/", tournamentService.CreateTournament)
	secured.Get("/", tournamentService.ListTournaments)
	secured.Get("/me", tournamentService.MyTournaments)
	secured.Get("/:id", tournamentService.GetTournament)
	secured.Post("/:id", tournamentService.JoinTournament)
	secured.Delete("/:id", tournamentService.LeaveTournament)
}
