// middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// PlayerContextMiddleware extracts the player identity set by the Gateway.
// Browsers cannot set headers on websocket upgrades, so the player query
// parameter is accepted there.
func PlayerContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Get("X-Player-Name")
		if name == "" && strings.HasSuffix(c.Path(), "/ws") {
			name = c.Query("player")
		}
		name = strings.TrimSpace(norm.NFC.String(name))

		c.Locals("player_name", name)
		if name != "" {
			log.Debug().Str("player", name).Str("path", c.Path()).Msg("👤 [PLAYER_CTX] request")
		}
		return c.Next()
	}
}
