package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"pongmatch/dblock"
	"pongmatch/engine"
	"pongmatch/models"
)

// GameService pairs players into games and records their results.
type GameService struct {
	DB          *gorm.DB
	Locks       *dblock.Service
	Notifier    *Notifier
	Launcher    Launcher
	Tournaments *TournamentService
}

func NewGameService(db *gorm.DB, locks *dblock.Service, notifier *Notifier, launcher Launcher, tournaments *TournamentService) *GameService {
	return &GameService{
		DB:          db,
		Locks:       locks,
		Notifier:    notifier,
		Launcher:    launcher,
		Tournaments: tournaments,
	}
}

// followUps run after the transaction committed and the locks are gone.
// They talk to peers and never undo the committed state.
type followUps []func(ctx context.Context)

func (f followUps) run(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, fn := range f {
		fn(ctx)
	}
}

func newGame(typ models.GameType, status models.GameStatus) models.Game {
	return models.Game{
		ID:              uuid.NewString(),
		Type:            typ,
		Status:          status,
		Player1Position: models.PositionLeft,
		Player2Position: models.PositionRight,
	}
}

func setStatus(g *models.Game, to models.GameStatus) error {
	if !g.Status.CanTransition(to) {
		return eris.Wrapf(models.ErrIllegalTransition, "game %s: %s -> %s", g.ID, g.Status, to)
	}
	g.Status = to
	return nil
}

// launch asks the game server to create and start the match.
func launch(ctx context.Context, l Launcher, gameID string) {
	if err := l.Start(ctx, gameID); err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("[PAIRING] game server start failed")
	}
}

// prepare asks the game server to create the match without starting it.
func prepare(ctx context.Context, l Launcher, gameID string) {
	if err := l.Create(ctx, gameID); err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("[PAIRING] game server create failed")
	}
}

// announceStart sends game_start to both sides of g.
func announceStart(ctx context.Context, db *gorm.DB, n *Notifier, g models.Game) {
	view, err := viewGame(db.WithContext(ctx), g)
	if err != nil {
		log.Error().Err(err).Str("game_id", g.ID).Msg("[PAIRING] describe game failed")
		return
	}
	n.NotifyAll(ctx, []string{g.Player1Name, g.Player2Name}, func(name string) any {
		return GameStartMessage{
			Type:           MessageGameStart,
			GameID:         g.ID,
			PlayerPosition: g.PositionOf(name),
			OpponentName:   g.OpponentOf(name),
			GameDetails:    view,
		}
	})
}

type RegisterGameRequest struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	Type    string `json:"type"`
}

// Register pairs player according to req: a local game between two named
// sides, a private challenge when an opponent is named, an open game
// otherwise.
func (s *GameService) Register(ctx context.Context, player string, req RegisterGameRequest) (*models.Game, error) {
	typ, err := models.ParseGameType(req.Type)
	if err != nil {
		return nil, eris.Wrap(ErrValidation, err.Error())
	}
	if typ == models.Local {
		return s.registerLocal(ctx, req.Player1, req.Player2)
	}
	if player == "" {
		return nil, ErrUnauthorized
	}
	if req.Player2 != "" {
		return s.registerPrivate(ctx, player, req.Player2)
	}
	return s.registerOpen(ctx, player)
}

func (s *GameService) registerLocal(ctx context.Context, player1, player2 string) (*models.Game, error) {
	if player1 == "" {
		player1 = "Player 1"
	}
	if player2 == "" {
		player2 = "Player 2"
	}
	p1, err := NormalizeName(player1)
	if err != nil {
		return nil, err
	}
	p2, err := NormalizeName(player2)
	if err != nil {
		return nil, err
	}
	if p1 == p2 {
		return nil, invalid("both sides of a local game are named %s", p1)
	}

	g := newGame(models.Local, models.GameInProgress)
	g.Player1Name, g.Player2Name = p1, p2
	err = s.Locks.With(ctx, []string{dblock.Game}, func() error {
		return eris.Wrap(s.DB.WithContext(ctx).Create(&g).Error, "create local game")
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("game_id", g.ID).Str("game", g.Name()).Msg("[PAIRING] local game registered")
	launch(context.WithoutCancel(ctx), s.Launcher, g.ID)
	return &g, nil
}

func (s *GameService) registerOpen(ctx context.Context, name string) (*models.Game, error) {
	var (
		g  models.Game
		fx followUps
	)
	err := s.Locks.With(ctx, []string{dblock.Player, dblock.Game}, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, _, err := getOrCreatePlayer(tx, name)
			if err != nil {
				return err
			}

			// already waiting for someone
			err = tx.Where("type = ? AND status = ? AND player1_id = ? AND player2_id IS NULL AND tournament_id IS NULL",
				models.Online, models.GameWaitingForPlayers, p.ID).First(&g).Error
			if err == nil {
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return eris.Wrap(err, "find own open game")
			}

			err = tx.Where("type = ? AND status = ? AND player2_id IS NULL AND player1_id <> ? AND tournament_id IS NULL",
				models.Online, models.GameWaitingForPlayers, p.ID).
				Order("created_at ASC").First(&g).Error
			switch {
			case err == nil:
				g.Player2ID, g.Player2Name = &p.ID, p.Name
				if err := setStatus(&g, models.GameInProgress); err != nil {
					return err
				}
				if err := tx.Save(&g).Error; err != nil {
					return eris.Wrap(err, "fill open game")
				}
				started := g
				fx = append(fx, func(ctx context.Context) {
					announceStart(ctx, s.DB, s.Notifier, started)
					launch(ctx, s.Launcher, started.ID)
				})
				log.Info().Str("game_id", g.ID).Str("game", g.Name()).Msg("[PAIRING] open game filled")
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return eris.Wrap(err, "find open game")
			}

			g = newGame(models.Online, models.GameWaitingForPlayers)
			g.Player1ID, g.Player1Name = &p.ID, p.Name
			g.Player2Name = models.AnyoneName
			if err := tx.Create(&g).Error; err != nil {
				return eris.Wrap(err, "create open game")
			}
			created := g.ID
			fx = append(fx, func(ctx context.Context) { prepare(ctx, s.Launcher, created) })
			log.Info().Str("game_id", g.ID).Str("player", p.Name).Msg("[PAIRING] open game created")
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return &g, nil
}

func (s *GameService) registerPrivate(ctx context.Context, name, opponent string) (*models.Game, error) {
	var (
		g  models.Game
		fx followUps
	)
	err := s.Locks.With(ctx, []string{dblock.Player, dblock.Game}, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			me, _, err := getOrCreatePlayer(tx, name)
			if err != nil {
				return err
			}
			opp, _, err := getOrCreatePlayer(tx, opponent)
			if err != nil {
				return err
			}
			if me.ID == opp.ID {
				return invalid("cannot challenge yourself")
			}

			err = tx.Where("type = ? AND status = ? AND ((player1_id = ? AND player2_id = ?) OR (player1_id = ? AND player2_id = ?))",
				models.Online, models.GameWaitingForPlayers, me.ID, opp.ID, opp.ID, me.ID).First(&g).Error
			if err == nil {
				log.Debug().Str("game_id", g.ID).Msg("[PAIRING] challenge already pending")
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return eris.Wrap(err, "find pending challenge")
			}

			// an open game from either side takes the other as its second player
			err = tx.Where("type = ? AND status = ? AND player1_id IN ? AND player2_id IS NULL AND tournament_id IS NULL",
				models.Online, models.GameWaitingForPlayers, []string{me.ID, opp.ID}).
				Order("created_at ASC").First(&g).Error
			switch {
			case err == nil:
				if *g.Player1ID == me.ID {
					g.Player2ID, g.Player2Name = &opp.ID, opp.Name
				} else {
					g.Player2ID, g.Player2Name = &me.ID, me.Name
				}
				if err := setStatus(&g, models.GameInProgress); err != nil {
					return err
				}
				if err := tx.Save(&g).Error; err != nil {
					return eris.Wrap(err, "fill open game")
				}
				started := g
				fx = append(fx, func(ctx context.Context) {
					announceStart(ctx, s.DB, s.Notifier, started)
					launch(ctx, s.Launcher, started.ID)
				})
				log.Info().Str("game_id", g.ID).Str("game", g.Name()).Msg("[PAIRING] open game filled by challenge")
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return eris.Wrap(err, "find opponent game")
			}

			g = newGame(models.Online, models.GameWaitingForPlayers)
			g.Player1ID, g.Player1Name = &me.ID, me.Name
			g.Player2ID, g.Player2Name = &opp.ID, opp.Name
			if err := tx.Create(&g).Error; err != nil {
				return eris.Wrap(err, "create challenge")
			}
			challenge := g
			fx = append(fx, func(ctx context.Context) {
				view, err := viewGame(s.DB.WithContext(ctx), challenge)
				if err != nil {
					log.Error().Err(err).Str("game_id", challenge.ID).Msg("[PAIRING] describe game failed")
					return
				}
				err = s.Notifier.Notify(ctx, challenge.Player2Name, ChallengeMessage{
					Type:         MessageChallenge,
					OpponentName: challenge.Player1Name,
					GameID:       challenge.ID,
					GameDetails:  view,
				})
				if err != nil {
					log.Error().Err(err).Str("game_id", challenge.ID).Msg("[PAIRING] challenge delivery failed")
				}
			})
			log.Info().Str("game_id", g.ID).Str("game", g.Name()).Msg("[PAIRING] challenge created")
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return &g, nil
}

// Join puts player into the free or reserved slot of a waiting game.
func (s *GameService) Join(ctx context.Context, gameID, player string) (*models.Game, error) {
	if player == "" {
		return nil, ErrUnauthorized
	}
	var g models.Game
	err := s.Locks.With(ctx, []string{dblock.Player, dblock.Game}, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&g, "id = ?", gameID).Error; err != nil {
				return notFound(err, "game %s", gameID)
			}
			if g.Status != models.GameWaitingForPlayers || g.Type != models.Online {
				return eris.Wrapf(ErrConflict, "game %s is not waiting for players", gameID)
			}
			p, _, err := getOrCreatePlayer(tx, player)
			if err != nil {
				return err
			}
			if g.Player1ID != nil && *g.Player1ID == p.ID {
				return eris.Wrapf(ErrConflict, "cannot join your own game %s", gameID)
			}
			if g.Player2ID != nil && *g.Player2ID != p.ID {
				return eris.Wrapf(ErrForbidden, "game %s is reserved for %s", gameID, g.Player2Name)
			}
			g.Player2ID, g.Player2Name = &p.ID, p.Name
			if err := setStatus(&g, models.GameInProgress); err != nil {
				return err
			}
			return eris.Wrap(tx.Save(&g).Error, "join game")
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("game_id", g.ID).Str("game", g.Name()).Msg("[PAIRING] game joined")
	followUps{func(ctx context.Context) {
		announceStart(ctx, s.DB, s.Notifier, g)
		launch(ctx, s.Launcher, g.ID)
	}}.run(ctx)
	return &g, nil
}

// Delete removes a waiting game on behalf of one of its participants.
func (s *GameService) Delete(ctx context.Context, gameID, player string) error {
	if player == "" {
		return ErrUnauthorized
	}
	return s.Locks.With(ctx, []string{dblock.Game}, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var g models.Game
			if err := tx.First(&g, "id = ?", gameID).Error; err != nil {
				return notFound(err, "game %s", gameID)
			}
			if g.Status != models.GameWaitingForPlayers {
				return eris.Wrapf(ErrConflict, "game %s is %s", gameID, g.Status)
			}
			if player != g.Player1Name && (g.Player2ID == nil || player != g.Player2Name) {
				return eris.Wrapf(ErrForbidden, "only the players of game %s can delete it", gameID)
			}
			if err := tx.Delete(&g).Error; err != nil {
				return eris.Wrap(err, "delete game")
			}
			log.Info().Str("game_id", g.ID).Str("player", player).Msg("[PAIRING] game deleted")
			return nil
		})
	})
}

// RequestStart asks the game server again to run the match, moving a
// scheduled tournament game to in_progress.
func (s *GameService) RequestStart(ctx context.Context, gameID string) (*models.Game, error) {
	var g models.Game
	err := s.Locks.With(ctx, []string{dblock.Game}, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&g, "id = ?", gameID).Error; err != nil {
				return notFound(err, "game %s", gameID)
			}
			switch g.Status {
			case models.GameFinished:
				return eris.Wrapf(ErrConflict, "game %s is already finished", gameID)
			case models.GameScheduled:
				if err := setStatus(&g, models.GameInProgress); err != nil {
					return err
				}
				return eris.Wrap(tx.Save(&g).Error, "start scheduled game")
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if err := s.Launcher.Start(context.WithoutCancel(ctx), g.ID); err != nil {
		return &g, eris.Wrapf(ErrUpstream, "start game %s: %v", g.ID, err)
	}
	return &g, nil
}

// RecordResult stores the outcome reported by the game server. A game is
// finished once; any later report for it is rejected.
func (s *GameService) RecordResult(ctx context.Context, res engine.Result) (*models.Game, error) {
	if res.GameID == "" {
		return nil, invalid("game_id is required")
	}
	if res.LeftScore < 0 || res.RightScore < 0 {
		return nil, invalid("scores cannot be negative")
	}

	var (
		g  models.Game
		fx followUps
	)
	err := s.Locks.With(ctx, []string{dblock.Game, dblock.Tournament}, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&g, "id = ?", res.GameID).Error; err != nil {
				return notFound(err, "game %s", res.GameID)
			}
			if err := setStatus(&g, models.GameFinished); err != nil {
				return err
			}
			if g.Player1Position == models.PositionLeft {
				g.Player1Score, g.Player2Score = res.LeftScore, res.RightScore
			} else {
				g.Player1Score, g.Player2Score = res.RightScore, res.LeftScore
			}
			now := time.Now().UTC()
			g.FinishedAt = &now
			g.EndReason = string(res.Status)
			if err := tx.Save(&g).Error; err != nil {
				return eris.Wrap(err, "save result")
			}

			if g.TournamentID != nil && s.Tournaments != nil {
				more, err := s.Tournaments.applyResult(tx, g)
				if err != nil {
					return err
				}
				fx = append(fx, more...)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("game_id", g.ID).
		Str("game", g.Name()).
		Str("winner", g.Winner()).
		Int("player1_score", g.Player1Score).
		Int("player2_score", g.Player2Score).
		Msg("[RESULT] game finished")
	fx.run(ctx)
	return &g, nil
}

type GameFilter struct {
	Status   string
	Type     string
	Player   string
	Opponent string
	Joined   *bool
	Limit    int
}

// List returns games matching filter, newest first. With a player, Joined
// selects the games they created or accepted (true) or the challenges
// still waiting for them (false).
func (s *GameService) List(ctx context.Context, filter GameFilter) ([]GameView, error) {
	db := s.DB.WithContext(ctx)
	q := db.Model(&models.Game{})
	if filter.Status != "" {
		st, err := models.ParseGameStatus(filter.Status)
		if err != nil {
			return nil, eris.Wrap(ErrValidation, err.Error())
		}
		q = q.Where("status = ?", st)
	}
	if filter.Type != "" {
		typ, err := models.ParseGameType(filter.Type)
		if err != nil {
			return nil, eris.Wrap(ErrValidation, err.Error())
		}
		q = q.Where("type = ?", typ)
	}
	if filter.Player != "" {
		q = q.Where("player1_name = ? OR player2_name = ?", filter.Player, filter.Player)
	}
	if filter.Opponent != "" {
		q = q.Where("player1_name = ? OR player2_name = ?", filter.Opponent, filter.Opponent)
	}
	if filter.Player != "" && filter.Joined != nil {
		if *filter.Joined {
			q = q.Where("player1_name = ? OR (player2_name = ? AND status <> ?)",
				filter.Player, filter.Player, models.GameWaitingForPlayers)
		} else {
			q = q.Where("player2_name = ? AND status = ?", filter.Player, models.GameWaitingForPlayers)
		}
	}
	q = q.Order("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var games []models.Game
	if err := q.Find(&games).Error; err != nil {
		return nil, eris.Wrap(err, "list games")
	}
	return viewGames(db, games)
}

func (s *GameService) Get(ctx context.Context, gameID string) (GameView, error) {
	var g models.Game
	if err := s.DB.WithContext(ctx).First(&g, "id = ?", gameID).Error; err != nil {
		return GameView{}, notFound(err, "game %s", gameID)
	}
	return viewGame(s.DB.WithContext(ctx), g)
}

// --- handlers ---

func (s *GameService) RegisterGame(c *fiber.Ctx) error {
	var req RegisterGameRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
	}
	g, err := s.Register(c.UserContext(), currentPlayer(c), req)
	if err != nil {
		return respondError(c, err)
	}
	view, err := viewGame(s.DB.WithContext(c.UserContext()), *g)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      "Game registered successfully",
		"game_id":      g.ID,
		"game_details": view,
	})
}

func parseJoined(c *fiber.Ctx) (*bool, error) {
	raw := c.Query("joined")
	if raw == "" {
		return nil, nil
	}
	joined, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, invalid("invalid joined value %q", raw)
	}
	return &joined, nil
}

func parseLimit(c *fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, invalid("invalid limit value %q", raw)
	}
	return limit, nil
}

func (s *GameService) ListGames(c *fiber.Ctx) error {
	joined, err := parseJoined(c)
	if err != nil {
		return respondError(c, err)
	}
	limit, err := parseLimit(c)
	if err != nil {
		return respondError(c, err)
	}
	games, err := s.List(c.UserContext(), GameFilter{
		Status:   c.Query("status"),
		Type:     c.Query("type"),
		Player:   c.Query("player"),
		Opponent: c.Query("opponent"),
		Joined:   joined,
		Limit:    limit,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"games": games})
}

func (s *GameService) MyGames(c *fiber.Ctx) error {
	player := currentPlayer(c)
	if player == "" {
		return respondError(c, ErrUnauthorized)
	}
	joined, err := parseJoined(c)
	if err != nil {
		return respondError(c, err)
	}
	games, err := s.List(c.UserContext(), GameFilter{Player: player, Joined: joined, Status: c.Query("status")})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"games": games})
}

func (s *GameService) GetGame(c *fiber.Ctx) error {
	view, err := s.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (s *GameService) JoinGame(c *fiber.Ctx) error {
	if _, err := s.Join(c.UserContext(), c.Params("id"), currentPlayer(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Game joined successfully"})
}

func (s *GameService) DeleteGame(c *fiber.Ctx) error {
	if err := s.Delete(c.UserContext(), c.Params("id"), currentPlayer(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Game deleted successfully"})
}

func (s *GameService) StartGame(c *fiber.Ctx) error {
	if _, err := s.RequestStart(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Game start requested"})
}

// SubmitResult receives a finished match from the game server.
func (s *GameService) SubmitResult(c *fiber.Ctx) error {
	var res engine.Result
	if err := c.BodyParser(&res); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	g, err := s.RecordResult(c.UserContext(), res)
	if err != nil {
		return respondError(c, err)
	}
	view, err := viewGame(s.DB.WithContext(c.UserContext()), *g)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}
