// middleware/gateway.go
package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// APIKeyMiddleware admits service-to-service calls carrying X-API-Key.
func APIKeyMiddleware(expected string) fiber.Handler {
	if expected == "" {
		log.Fatal().Msg("❌ MATCHMAKER_API_KEY is not set, service calls cannot be authenticated")
	}

	return func(c *fiber.Ctx) error {
		key := c.Get("X-API-Key")
		if key == "" {
			log.Warn().Str("path", c.Path()).Msg("🚫 [API_KEY] missing X-API-Key header")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "api key missing",
			})
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			log.Warn().Str("path", c.Path()).Msg("❌ [API_KEY] invalid api key")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid api key",
			})
		}
		return c.Next()
	}
}
