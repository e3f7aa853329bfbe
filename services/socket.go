package services

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// socket serialises writes to a websocket connection. It satisfies both
// engine.Client and Sender.
type socket struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func newSocket(conn *websocket.Conn, timeout time.Duration) *socket {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &socket{conn: conn, timeout: timeout}
}

func (s *socket) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// UpgradeOnly rejects plain HTTP requests on websocket routes.
func UpgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
