package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"pongmatch/dblock"
	"pongmatch/engine"
	"pongmatch/models"
	"pongmatch/registry"
)

var (
	ErrValidation   = eris.New("validation failed")
	ErrUnauthorized = eris.New("player identity required")
	ErrForbidden    = eris.New("forbidden")
	ErrNotFound     = eris.New("not found")
	ErrConflict     = eris.New("conflict")
	ErrUpstream     = eris.New("game server unavailable")
)

// StatusOf maps an error chain to the HTTP status it should be answered with.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, engine.ErrInvalidSide):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, registry.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict),
		errors.Is(err, models.ErrIllegalTransition),
		errors.Is(err, engine.ErrIllegalTransition),
		errors.Is(err, engine.ErrSideTaken),
		errors.Is(err, engine.ErrMatchClosed):
		return fiber.StatusConflict
	case errors.Is(err, dblock.ErrLockTimeout):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ErrUpstream):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := StatusOf(err)
	if status == fiber.StatusInternalServerError {
		log.Error().
			Str("path", c.Path()).
			Interface("trace", eris.ToJSON(err, true)).
			Msg("[HTTP] request failed")
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	log.Debug().Err(err).Str("path", c.Path()).Int("status", status).Msg("[HTTP] request rejected")
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func invalid(format string, args ...any) error {
	return eris.Wrapf(ErrValidation, format, args...)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return eris.Wrapf(ErrNotFound, format, args...)
	}
	return eris.Wrapf(err, format, args...)
}

// currentPlayer is the authenticated player name set by the player context
// middleware, empty for anonymous calls.
func currentPlayer(c *fiber.Ctx) string {
	name, _ := c.Locals("player_name").(string)
	return name
}
