package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pongmatch/dblock"
	"pongmatch/models"
)

type PlayerService struct {
	DB       *gorm.DB
	Locks    *dblock.Service
	Notifier *Notifier
}

func NewPlayerService(db *gorm.DB, locks *dblock.Service, notifier *Notifier) *PlayerService {
	return &PlayerService{DB: db, Locks: locks, Notifier: notifier}
}

// getOrCreatePlayer loads the player, creating the record on first
// reference. Callers hold the player lock.
func getOrCreatePlayer(tx *gorm.DB, name string) (*models.Player, bool, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, false, err
	}

	var p models.Player
	err = tx.Where("name = ?", name).First(&p).Error
	if err == nil {
		return &p, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, eris.Wrapf(err, "load player %s", name)
	}

	p = models.Player{ID: uuid.NewString(), Name: name}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	if res.Error != nil {
		return nil, false, eris.Wrapf(res.Error, "create player %s", name)
	}
	if res.RowsAffected == 0 {
		if err := tx.Where("name = ?", name).First(&p).Error; err != nil {
			return nil, false, eris.Wrapf(err, "load player %s", name)
		}
		return &p, false, nil
	}
	log.Info().Str("player", name).Msg("[PLAYER] created")
	return &p, true, nil
}

// GetOrCreate returns the player named name, registering it if needed.
func (s *PlayerService) GetOrCreate(ctx context.Context, name string) (*models.Player, bool, error) {
	var (
		p       *models.Player
		created bool
	)
	err := s.Locks.With(ctx, []string{dblock.Player}, func() error {
		var err error
		p, created, err = getOrCreatePlayer(s.DB.WithContext(ctx), name)
		return err
	})
	return p, created, err
}

// Rename changes a player's name and every denormalised copy of it.
func (s *PlayerService) Rename(ctx context.Context, oldName, newName string) (*models.Player, error) {
	newName, err := NormalizeName(newName)
	if err != nil {
		return nil, err
	}

	var p models.Player
	err = s.Locks.With(ctx, []string{dblock.Player, dblock.Game, dblock.Tournament}, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("name = ?", oldName).First(&p).Error; err != nil {
				return notFound(err, "player %s", oldName)
			}
			if p.Name == newName {
				return nil
			}
			var taken int64
			if err := tx.Model(&models.Player{}).Where("name = ?", newName).Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return eris.Wrapf(ErrConflict, "player name %s is already taken", newName)
			}

			if err := tx.Model(&p).Update("name", newName).Error; err != nil {
				return eris.Wrap(err, "rename player")
			}
			p.Name = newName
			if err := tx.Model(&models.Game{}).Where("player1_id = ?", p.ID).Update("player1_name", newName).Error; err != nil {
				return eris.Wrap(err, "rename player1 in games")
			}
			if err := tx.Model(&models.Game{}).Where("player2_id = ?", p.ID).Update("player2_name", newName).Error; err != nil {
				return eris.Wrap(err, "rename player2 in games")
			}
			return renameInTournaments(tx, p.ID, oldName, newName)
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("old", oldName).Str("new", newName).Msg("[PLAYER] renamed")
	return &p, nil
}

// renameInTournaments rewrites the name in the online tournaments the
// player takes part in.
func renameInTournaments(tx *gorm.DB, playerID, oldName, newName string) error {
	var tournaments []models.Tournament
	err := tx.Joins("JOIN tournament_players ON tournament_players.tournament_id = tournaments.id").
		Where("tournament_players.player_id = ?", playerID).
		Find(&tournaments).Error
	if err != nil {
		return eris.Wrap(err, "load tournaments of player")
	}
	for _, t := range tournaments {
		for i, n := range t.PlayerNames {
			if n == oldName {
				t.PlayerNames[i] = newName
			}
		}
		if err := saveTournament(tx, &t); err != nil {
			return err
		}
		err := tx.Model(&models.LeaderboardEntry{}).
			Where("tournament_id = ? AND player_name = ?", t.ID, oldName).
			Update("player_name", newName).Error
		if err != nil {
			return eris.Wrap(err, "rename player in leaderboard")
		}
	}
	return nil
}

func (s *PlayerService) View(ctx context.Context, p models.Player) (PlayerView, error) {
	var games []models.Game
	err := s.DB.WithContext(ctx).
		Where("(player1_id = ? OR player2_id = ?) AND status = ?", p.ID, p.ID, models.GameFinished).
		Find(&games).Error
	if err != nil {
		return PlayerView{}, eris.Wrap(err, "load finished games")
	}
	v := PlayerView{Name: p.Name, Connected: p.Connected(), TotalGames: len(games)}
	for _, g := range games {
		if g.Winner() == p.Name {
			v.TotalWins++
		}
	}
	v.TotalLosses = v.TotalGames - v.TotalWins
	if v.TotalGames > 0 {
		v.WinRate = float64(v.TotalWins) / float64(v.TotalGames) * 100
	}
	return v, nil
}

type StatsFilter struct {
	Opponent string
	Position string
	Status   string
	Limit    int
}

type StatsGame struct {
	ID              string            `json:"id"`
	Status          models.GameStatus `json:"status"`
	Player1Name     string            `json:"player1_name"`
	Player2Name     string            `json:"player2_name"`
	Player1Position string            `json:"player1_position"`
	Player2Position string            `json:"player2_position"`
	Player1Score    int               `json:"player1_score"`
	Player2Score    int               `json:"player2_score"`
	WinnerName      *string           `json:"winner_name"`
	Date            any               `json:"date"`
}

type PlayerStats struct {
	WinRate      float64     `json:"win_rate"`
	TotalWins    int         `json:"total_wins"`
	TotalLosses  int         `json:"total_losses"`
	GoalsFor     int         `json:"goals_for"`
	GoalsAgainst int         `json:"goals_against"`
	Games        []StatsGame `json:"games"`
}

// Stats aggregates the games of a player matching filter.
func (s *PlayerService) Stats(ctx context.Context, name string, filter StatsFilter) (*PlayerStats, error) {
	db := s.DB.WithContext(ctx)

	var p models.Player
	if err := db.Where("name = ?", name).First(&p).Error; err != nil {
		return nil, notFound(err, "player %s", name)
	}

	q := db.Model(&models.Game{}).Where("player1_id = ? OR player2_id = ?", p.ID, p.ID)
	if filter.Opponent != "" {
		var opp models.Player
		if err := db.Where("name = ?", filter.Opponent).First(&opp).Error; err != nil {
			return nil, notFound(err, "opponent %s", filter.Opponent)
		}
		q = q.Where("player1_id = ? OR player2_id = ?", opp.ID, opp.ID)
	}
	switch filter.Position {
	case "":
	case "home", models.PositionLeft:
		q = q.Where("player1_id = ?", p.ID)
	case "away", models.PositionRight:
		q = q.Where("player2_id = ?", p.ID)
	default:
		return nil, invalid("position %q not in [home, left, away, right]", filter.Position)
	}
	if filter.Status != "" {
		st, err := models.ParseGameStatus(filter.Status)
		if err != nil {
			return nil, eris.Wrap(ErrValidation, err.Error())
		}
		q = q.Where("status = ?", st)
	}
	q = q.Order("COALESCE(finished_at, created_at) DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var games []models.Game
	if err := q.Find(&games).Error; err != nil {
		return nil, eris.Wrap(err, "load player games")
	}

	stats := &PlayerStats{Games: make([]StatsGame, 0, len(games))}
	finished := 0
	for _, g := range games {
		if g.Status == models.GameFinished {
			finished++
			if g.Winner() == p.Name {
				stats.TotalWins++
			}
		}
		stats.GoalsFor += g.ScoreOf(p.Name)
		stats.GoalsAgainst += g.ScoreOf(g.OpponentOf(p.Name))

		sg := StatsGame{
			ID:              g.ID,
			Status:          g.Status,
			Player1Name:     g.Player1Name,
			Player2Name:     g.Player2Name,
			Player1Position: g.Player1Position,
			Player2Position: g.Player2Position,
			Player1Score:    g.Player1Score,
			Player2Score:    g.Player2Score,
			Date:            g.CreatedAt,
		}
		if g.FinishedAt != nil {
			sg.Date = *g.FinishedAt
		}
		if w := g.Winner(); w != "" {
			sg.WinnerName = &w
		}
		stats.Games = append(stats.Games, sg)
	}
	stats.TotalLosses = finished - stats.TotalWins
	if finished > 0 {
		stats.WinRate = float64(stats.TotalWins) / float64(finished) * 100
	}
	return stats, nil
}

// --- handlers ---

// ListPlayers returns every registered player.
func (s *PlayerService) ListPlayers(c *fiber.Ctx) error {
	var players []models.Player
	if err := s.DB.WithContext(c.UserContext()).Order("name ASC").Find(&players).Error; err != nil {
		return respondError(c, eris.Wrap(err, "list players"))
	}
	out := make([]PlayerView, 0, len(players))
	for _, p := range players {
		v, err := s.View(c.UserContext(), p)
		if err != nil {
			return respondError(c, err)
		}
		out = append(out, v)
	}
	return c.JSON(fiber.Map{"players": out})
}

type registerPlayerRequest struct {
	PlayerName string `json:"player_name"`
}

// RegisterPlayer is called by the user service when an account is created.
func (s *PlayerService) RegisterPlayer(c *fiber.Ctx) error {
	var req registerPlayerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	p, created, err := s.GetOrCreate(c.UserContext(), req.PlayerName)
	if err != nil {
		return respondError(c, err)
	}
	v, err := s.View(c.UserContext(), *p)
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(v)
}

func (s *PlayerService) GetPlayer(c *fiber.Ctx) error {
	var p models.Player
	if err := s.DB.WithContext(c.UserContext()).Where("name = ?", c.Params("name")).First(&p).Error; err != nil {
		return respondError(c, notFound(err, "player %s", c.Params("name")))
	}
	v, err := s.View(c.UserContext(), p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(v)
}

type updatePlayerRequest struct {
	Name string `json:"name"`
}

// UpdatePlayer propagates a rename from the user service.
func (s *PlayerService) UpdatePlayer(c *fiber.Ctx) error {
	var req updatePlayerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	p, err := s.Rename(c.UserContext(), c.Params("name"), req.Name)
	if err != nil {
		return respondError(c, err)
	}
	v, err := s.View(c.UserContext(), *p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(v)
}

func (s *PlayerService) GetPlayerStats(c *fiber.Ctx) error {
	filter := StatsFilter{
		Opponent: c.Query("opponent"),
		Position: strings.ToLower(c.Query("position")),
		Status:   c.Query("status"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid limit value"})
		}
		filter.Limit = limit
	}
	stats, err := s.Stats(c.UserContext(), c.Params("name"), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"stats": stats})
}
