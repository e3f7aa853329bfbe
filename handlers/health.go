package handlers

import "github.com/gofiber/fiber/v2"

// SetupHealthRoute answers liveness probes. live reports extra fields of
// the roles the process runs.
func SetupHealthRoute(app *fiber.App, role string, live func() fiber.Map) {
	app.Get("/health", func(c *fiber.Ctx) error {
		out := fiber.Map{"status": "ok", "role": role}
		if live != nil {
			for k, v := range live() {
				out[k] = v
			}
		}
		return c.JSON(out)
	})
}
