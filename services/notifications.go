package services

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// Socket is a player's notification channel. Queued messages are flushed
// as soon as it opens.
func (s *PlayerService) Socket(writeTimeout time.Duration) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		name, _ := conn.Locals("player_name").(string)
		if name == "" {
			name = conn.Query("player")
		}
		ctx := context.Background()
		client := newSocket(conn, writeTimeout)

		p, _, err := s.GetOrCreate(ctx, name)
		if err != nil {
			log.Warn().Err(err).Str("player", name).Msg("[NOTIFY] connection refused")
			_ = client.Send(fiber.Map{"type": "error", "message": eris.ToString(err, false)})
			return
		}
		connID, err := s.Notifier.Connect(ctx, p.Name, client)
		if err != nil {
			log.Error().Err(err).Str("player", p.Name).Msg("[NOTIFY] connect failed")
			return
		}
		defer s.Notifier.Disconnect(ctx, p.Name, connID)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
