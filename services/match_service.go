package services

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pongmatch/engine"
	"pongmatch/registry"
)

// MatchService exposes the match registry of a game server instance.
type MatchService struct {
	Registry     *registry.Registry
	Cache        *MatchCache
	WriteTimeout time.Duration
}

func NewMatchService(reg *registry.Registry, cache *MatchCache, writeTimeout time.Duration) *MatchService {
	return &MatchService{Registry: reg, Cache: cache, WriteTimeout: writeTimeout}
}

// discard is the client of a side joined over plain HTTP; that side
// follows the match by polling its state.
type discard struct{}

func (discard) Send(any) error { return nil }

// Snapshot returns the live state of a match, falling back to the last
// frame cached by whichever instance ran it.
func (s *MatchService) Snapshot(ctx context.Context, id string) (engine.StateFrame, error) {
	session, err := s.Registry.Get(id)
	if err == nil {
		return session.Snapshot(), nil
	}
	if s.Cache == nil || !errors.Is(err, registry.ErrNotFound) {
		return engine.StateFrame{}, err
	}
	frame, cerr := s.Cache.Snapshot(ctx, id)
	if cerr != nil {
		if errors.Is(cerr, ErrNotFound) {
			return engine.StateFrame{}, err
		}
		return engine.StateFrame{}, cerr
	}
	return frame, nil
}

// CSRFToken hands out the token the csrf middleware stored for this
// request; the matching cookie rides on the response.
func (s *MatchService) CSRFToken(c *fiber.Ctx) error {
	token, _ := c.Locals("csrf").(string)
	return c.JSON(fiber.Map{"csrfToken": token})
}

func (s *MatchService) CreateMatch(c *fiber.Ctx) error {
	session, created := s.Registry.Create(c.Params("id"))
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
		log.Info().Str("match_id", session.ID()).Msg("[MATCH] created")
	}
	return c.Status(status).JSON(fiber.Map{"match_id": session.ID(), "status": session.Status()})
}

func (s *MatchService) StartMatch(c *fiber.Ctx) error {
	session, err := s.Registry.Start(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	log.Info().Str("match_id", session.ID()).Msg("[MATCH] start requested")
	return c.JSON(fiber.Map{"match_id": session.ID(), "status": session.Status()})
}

func (s *MatchService) GetMatch(c *fiber.Ctx) error {
	frame, err := s.Snapshot(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(frame)
}

type joinMatchRequest struct {
	Side string `json:"side"`
}

func (s *MatchService) JoinMatch(c *fiber.Ctx) error {
	var req joinMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		return respondError(c, err)
	}
	session, err := s.Registry.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if err := session.Join(side, discard{}, engine.DefaultUpKey, engine.DefaultDownKey); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"match_id": session.ID(), "side": side, "status": session.Status()})
}

type controlRequest struct {
	Side  string `json:"side"`
	Key   string `json:"key"`
	Event string `json:"event"`
}

func (s *MatchService) ControlMatch(c *fiber.Ctx) error {
	var req controlRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		return respondError(c, err)
	}
	session, err := s.Registry.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	session.KeyEvent(side, req.Key, req.Event)
	return c.SendStatus(fiber.StatusNoContent)
}

// Socket is the realtime transport of one side of a match:
// /match/:id/ws?position=left&up=ArrowUp&down=ArrowDown.
func (s *MatchService) Socket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		id := conn.Params("id")
		up := conn.Query("up", engine.DefaultUpKey)
		down := conn.Query("down", engine.DefaultDownKey)
		client := newSocket(conn, s.WriteTimeout)

		side, err := engine.ParseSide(conn.Query("position"))
		if err == nil {
			var session *engine.Session
			session, err = s.Registry.Get(id)
			if err == nil {
				err = session.Join(side, client, up, down)
			}
			if err == nil {
				log.Info().Str("match_id", id).Str("side", string(side)).Str("up", up).Str("down", down).Msg("[MATCH] player connected")
				s.serve(conn, session, side)
				session.Leave(side, client)
				log.Info().Str("match_id", id).Str("side", string(side)).Msg("[MATCH] player disconnected")
				return
			}
		}
		log.Warn().Err(err).Str("match_id", id).Msg("[MATCH] connection refused")
		_ = client.Send(fiber.Map{"type": "error", "message": eris.ToString(err, false)})
	})
}

// serve reads key events until the connection drops or the match ends.
func (s *MatchService) serve(conn *websocket.Conn, session *engine.Session, side engine.Side) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-session.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev engine.KeyEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Debug().Err(err).Str("match_id", session.ID()).Msg("[MATCH] bad frame")
			continue
		}
		if ev.Key == "" {
			continue
		}
		session.KeyEvent(side, ev.Key, ev.Event)
	}
}
