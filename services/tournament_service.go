package services

import (
	"context"
	"errors"
	"slices"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pongmatch/dblock"
	"pongmatch/models"
	"pongmatch/utils"
)

// Archiver stores documents in object storage and returns their URL.
type Archiver interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// TournamentService schedules round-robin tournaments and keeps their
// leaderboards.
type TournamentService struct {
	DB       *gorm.DB
	Locks    *dblock.Service
	Notifier *Notifier
	Launcher Launcher
	Archiver Archiver
}

func NewTournamentService(db *gorm.DB, locks *dblock.Service, notifier *Notifier, launcher Launcher, archiver Archiver) *TournamentService {
	return &TournamentService{
		DB:       db,
		Locks:    locks,
		Notifier: notifier,
		Launcher: launcher,
		Archiver: archiver,
	}
}

var registrationLocks = []string{dblock.Player, dblock.Game, dblock.Tournament}

type CreateTournamentRequest struct {
	Name     string   `json:"tournament_name"`
	PoolSize int      `json:"pool_size"`
	Players  []string `json:"players"`
	Type     string   `json:"type"`
}

func saveTournament(tx *gorm.DB, t *models.Tournament) error {
	return eris.Wrapf(tx.Omit(clause.Associations).Save(t).Error, "save tournament %s", t.ID)
}

// Register creates a tournament and enrolls the listed participants, the
// requester included for online tournaments. A full field starts at once.
func (s *TournamentService) Register(ctx context.Context, player string, req CreateTournamentRequest) (*models.Tournament, error) {
	typ, err := models.ParseGameType(req.Type)
	if err != nil {
		return nil, eris.Wrap(ErrValidation, err.Error())
	}
	if req.PoolSize < 2 {
		return nil, invalid("pool_size must be at least 2")
	}
	name, err := NormalizeName(req.Name)
	if err != nil {
		return nil, invalid("tournament_name is required")
	}

	names := req.Players
	if typ == models.Online {
		if player == "" {
			return nil, ErrUnauthorized
		}
		names = append(slices.Clone(names), player)
	}
	var participants []string
	for _, n := range names {
		n, err := NormalizeName(n)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(participants, n) {
			participants = append(participants, n)
		}
	}
	if len(participants) > req.PoolSize {
		return nil, invalid("%d players listed for a pool of %d", len(participants), req.PoolSize)
	}

	t := models.Tournament{
		ID:          uuid.NewString(),
		Name:        name,
		Type:        typ,
		PoolSize:    req.PoolSize,
		PlayerNames: []string{},
		Status:      models.TournamentWaitingForPlayers,
	}
	t.Slug = slug.Make(name)

	var fx followUps
	err = s.Locks.With(ctx, registrationLocks, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit(clause.Associations).Create(&t).Error; err != nil {
				return eris.Wrap(err, "create tournament")
			}
			for _, n := range participants {
				if err := addParticipant(tx, &t, n); err != nil {
					return err
				}
			}
			var err error
			fx, err = s.start(tx, &t)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("tournament_id", t.ID).Str("name", t.Name).Int("pool_size", t.PoolSize).Msg("[TOURNAMENT] created")
	fx.run(ctx)
	return &t, nil
}

// addParticipant enrolls name while registration is open.
func addParticipant(tx *gorm.DB, t *models.Tournament, name string) error {
	if t.Status != models.TournamentWaitingForPlayers {
		return eris.Wrapf(ErrConflict, "tournament %s is not open for registration", t.ID)
	}
	if t.Full() {
		return eris.Wrapf(ErrConflict, "tournament %s is full", t.ID)
	}
	name, err := NormalizeName(name)
	if err != nil {
		return err
	}
	if t.HasPlayer(name) {
		return eris.Wrapf(ErrConflict, "%s already joined tournament %s", name, t.ID)
	}

	if t.Type == models.Online {
		p, _, err := getOrCreatePlayer(tx, name)
		if err != nil {
			return err
		}
		if err := tx.Model(t).Association("Players").Append(p); err != nil {
			return eris.Wrap(err, "link participant")
		}
	}
	t.PlayerNames = append(t.PlayerNames, name)
	return saveTournament(tx, t)
}

// Join enrolls player and starts the tournament once the pool is full.
func (s *TournamentService) Join(ctx context.Context, tournamentID, player string) (*models.Tournament, error) {
	if player == "" {
		return nil, ErrUnauthorized
	}
	var (
		t  models.Tournament
		fx followUps
	)
	err := s.Locks.With(ctx, registrationLocks, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&t, "id = ?", tournamentID).Error; err != nil {
				return notFound(err, "tournament %s", tournamentID)
			}
			if err := addParticipant(tx, &t, player); err != nil {
				return err
			}
			var err error
			fx, err = s.start(tx, &t)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("tournament_id", t.ID).Str("player", player).Msg("[TOURNAMENT] player joined")
	fx.run(ctx)
	return &t, nil
}

// Leave withdraws player before the tournament started.
func (s *TournamentService) Leave(ctx context.Context, tournamentID, player string) (*models.Tournament, error) {
	if player == "" {
		return nil, ErrUnauthorized
	}
	player, err := NormalizeName(player)
	if err != nil {
		return nil, err
	}
	var t models.Tournament
	err = s.Locks.With(ctx, []string{dblock.Player, dblock.Tournament}, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&t, "id = ?", tournamentID).Error; err != nil {
				return notFound(err, "tournament %s", tournamentID)
			}
			if t.Status != models.TournamentWaitingForPlayers {
				return eris.Wrapf(ErrConflict, "tournament %s already started", t.ID)
			}
			i := slices.Index(t.PlayerNames, player)
			if i < 0 {
				return eris.Wrapf(ErrConflict, "%s is not registered in tournament %s", player, t.ID)
			}
			if t.Type == models.Online {
				var p models.Player
				if err := tx.Where("name = ?", player).First(&p).Error; err != nil {
					return notFound(err, "player %s", player)
				}
				if err := tx.Model(&t).Association("Players").Delete(&p); err != nil {
					return eris.Wrap(err, "unlink participant")
				}
			}
			t.PlayerNames = slices.Delete(t.PlayerNames, i, i+1)
			return saveTournament(tx, &t)
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("tournament_id", t.ID).Str("player", player).Msg("[TOURNAMENT] player left")
	return &t, nil
}

// start schedules the whole bracket once the pool is full and opens the
// first round. It does nothing for a tournament still short of players.
func (s *TournamentService) start(tx *gorm.DB, t *models.Tournament) (followUps, error) {
	if t.Status != models.TournamentWaitingForPlayers || !t.Full() {
		return nil, nil
	}
	if !t.Status.CanTransition(models.TournamentInProgress) {
		return nil, eris.Wrapf(models.ErrIllegalTransition, "tournament %s is %s", t.ID, t.Status)
	}

	ids := map[string]string{}
	if t.Type == models.Online {
		var players []models.Player
		if err := tx.Where("name IN ?", t.PlayerNames).Find(&players).Error; err != nil {
			return nil, eris.Wrap(err, "load participants")
		}
		for _, p := range players {
			ids[p.Name] = p.ID
		}
	}

	var created []string
	for i, pairings := range RoundRobin(t.PlayerNames) {
		round := models.Round{ID: uuid.NewString(), TournamentID: t.ID, Number: i + 1, Type: t.Type}
		if err := tx.Omit(clause.Associations).Create(&round).Error; err != nil {
			return nil, eris.Wrapf(err, "create round %d", round.Number)
		}
		for _, pair := range pairings {
			g := newGame(t.Type, models.GameScheduled)
			g.Player1Name, g.Player2Name = pair.Player1, pair.Player2
			if id, ok := ids[pair.Player1]; ok {
				g.Player1ID = &id
			}
			if id, ok := ids[pair.Player2]; ok {
				g.Player2ID = &id
			}
			g.TournamentID, g.RoundID = &t.ID, &round.ID
			if err := tx.Create(&g).Error; err != nil {
				return nil, eris.Wrapf(err, "create game %s", g.Name())
			}
			created = append(created, g.ID)
		}
	}

	for _, name := range t.PlayerNames {
		entry := models.LeaderboardEntry{TournamentID: t.ID, PlayerName: name}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, eris.Wrapf(err, "create leaderboard entry for %s", name)
		}
	}

	t.Status = models.TournamentInProgress
	t.CurrentRound = 0
	if err := saveTournament(tx, t); err != nil {
		return nil, err
	}
	log.Info().Str("tournament_id", t.ID).Int("games", len(created)).Msg("[TOURNAMENT] started")

	tournamentID := t.ID
	fx := followUps{func(ctx context.Context) {
		for _, id := range created {
			prepare(ctx, s.Launcher, id)
		}
		s.broadcast(ctx, tournamentID, MessageTournamentStart)
	}}
	next, err := s.nextRound(tx, t)
	if err != nil {
		return nil, err
	}
	return append(fx, next...), nil
}

// nextRound moves the pointer forward and opens that round's games, or
// ends the tournament when no round is left.
func (s *TournamentService) nextRound(tx *gorm.DB, t *models.Tournament) (followUps, error) {
	t.CurrentRound++

	var round models.Round
	err := tx.Preload("Games", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("tournament_id = ? AND number = ?", t.ID, t.CurrentRound).
		First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.end(tx, t)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "load round %d", t.CurrentRound)
	}
	if err := saveTournament(tx, t); err != nil {
		return nil, err
	}
	if len(round.Games) == 0 {
		return s.nextRound(tx, t)
	}

	started := make([]models.Game, 0, len(round.Games))
	for _, g := range round.Games {
		if err := setStatus(&g, models.GameInProgress); err != nil {
			return nil, err
		}
		if err := tx.Save(&g).Error; err != nil {
			return nil, eris.Wrapf(err, "start game %s", g.ID)
		}
		started = append(started, g)
	}
	log.Info().Str("tournament_id", t.ID).Int("round", t.CurrentRound).Int("games", len(started)).Msg("[TOURNAMENT] round started")

	return followUps{func(ctx context.Context) {
		for _, g := range started {
			announceStart(ctx, s.DB, s.Notifier, g)
			launch(ctx, s.Launcher, g.ID)
		}
	}}, nil
}

func (s *TournamentService) end(tx *gorm.DB, t *models.Tournament) (followUps, error) {
	if !t.Status.CanTransition(models.TournamentFinished) {
		return nil, eris.Wrapf(models.ErrIllegalTransition, "tournament %s is %s", t.ID, t.Status)
	}
	t.Status = models.TournamentFinished
	t.CurrentRound = 0
	if err := saveTournament(tx, t); err != nil {
		return nil, err
	}
	log.Info().Str("tournament_id", t.ID).Msg("[TOURNAMENT] finished")

	tournamentID := t.ID
	return followUps{func(ctx context.Context) {
		s.broadcast(ctx, tournamentID, MessageTournamentEnd)
		s.archive(ctx, tournamentID)
	}}, nil
}

// applyResult folds a finished game into the leaderboard and advances the
// tournament when it closed the current round. The caller holds the game
// and tournament locks.
func (s *TournamentService) applyResult(tx *gorm.DB, g models.Game) (followUps, error) {
	var t models.Tournament
	if err := tx.First(&t, "id = ?", *g.TournamentID).Error; err != nil {
		return nil, notFound(err, "tournament %s", *g.TournamentID)
	}

	winner := g.Winner()
	for _, name := range []string{g.Player1Name, g.Player2Name} {
		var e models.LeaderboardEntry
		if err := tx.Where("tournament_id = ? AND player_name = ?", t.ID, name).First(&e).Error; err != nil {
			return nil, notFound(err, "leaderboard entry %s", name)
		}
		e.GamesPlayed++
		e.GoalsFor += g.ScoreOf(name)
		e.GoalsAgainst += g.ScoreOf(g.OpponentOf(name))
		if name == winner {
			e.GamesWon++
			e.Points += 3
		}
		if err := tx.Save(&e).Error; err != nil {
			return nil, eris.Wrapf(err, "update leaderboard entry %s", name)
		}
	}

	tournamentID := t.ID
	fx := followUps{func(ctx context.Context) {
		s.broadcast(ctx, tournamentID, MessageTournamentUpdate)
	}}
	next, err := s.advance(tx, &t)
	if err != nil {
		return nil, err
	}
	return append(fx, next...), nil
}

// advance opens the next round once every game of the current one is
// finished.
func (s *TournamentService) advance(tx *gorm.DB, t *models.Tournament) (followUps, error) {
	if t.Status != models.TournamentInProgress {
		return nil, nil
	}
	var pending int64
	err := tx.Model(&models.Game{}).
		Joins("JOIN rounds ON rounds.id = games.round_id").
		Where("rounds.tournament_id = ? AND rounds.number = ? AND games.status <> ?", t.ID, t.CurrentRound, models.GameFinished).
		Count(&pending).Error
	if err != nil {
		return nil, eris.Wrap(err, "count pending games")
	}
	if pending > 0 {
		return nil, nil
	}
	return s.nextRound(tx, t)
}

func (s *TournamentService) broadcast(ctx context.Context, tournamentID, kind string) {
	view, err := s.Get(ctx, tournamentID)
	if err != nil {
		log.Error().Err(err).Str("tournament_id", tournamentID).Msg("[TOURNAMENT] describe tournament failed")
		return
	}
	msg := TournamentMessage{Type: kind, TournamentID: tournamentID, TournamentDetails: view}
	s.Notifier.NotifyAll(ctx, view.Players, func(string) any { return msg })
}

// archive uploads the final standings and records their URL.
func (s *TournamentService) archive(ctx context.Context, tournamentID string) {
	if s.Archiver == nil {
		return
	}
	view, err := s.Get(ctx, tournamentID)
	if err != nil {
		log.Error().Err(err).Str("tournament_id", tournamentID).Msg("[ARCHIVE] describe tournament failed")
		return
	}
	body, err := json.Marshal(view)
	if err != nil {
		log.Error().Err(err).Str("tournament_id", tournamentID).Msg("[ARCHIVE] encode standings failed")
		return
	}
	url, err := s.Archiver.Upload(ctx, utils.ArchiveKey(view.Name, view.ID), body, "application/json")
	if err != nil {
		log.Error().Err(err).Str("tournament_id", tournamentID).Msg("[ARCHIVE] upload failed")
		return
	}
	err = s.DB.WithContext(ctx).Model(&models.Tournament{}).Where("id = ?", tournamentID).Update("archive_url", url).Error
	if err != nil {
		log.Error().Err(err).Str("tournament_id", tournamentID).Msg("[ARCHIVE] record url failed")
		return
	}
	log.Info().Str("tournament_id", tournamentID).Str("url", url).Msg("[ARCHIVE] standings archived")
}

func describeTournament(db *gorm.DB, t models.Tournament) (TournamentView, error) {
	var rounds []models.Round
	err := db.Preload("Games", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("tournament_id = ?", t.ID).Order("number ASC").Find(&rounds).Error
	if err != nil {
		return TournamentView{}, eris.Wrap(err, "load rounds")
	}
	var entries []models.LeaderboardEntry
	if err := db.Where("tournament_id = ?", t.ID).Find(&entries).Error; err != nil {
		return TournamentView{}, eris.Wrap(err, "load leaderboard")
	}

	ranked := Rank(entries)
	v := TournamentView{
		ID:           t.ID,
		Name:         t.Name,
		Slug:         t.Slug,
		Type:         t.Type,
		PoolSize:     t.PoolSize,
		Players:      t.PlayerNames,
		Status:       t.Status,
		CurrentRound: t.CurrentRound,
		Ranking:      make([]string, 0, len(ranked)),
		Leaderboard:  ranked,
		Rounds:       make([]RoundView, 0, len(rounds)),
		ArchiveURL:   t.ArchiveURL,
		CreatedAt:    t.CreatedAt,
	}
	if v.Players == nil {
		v.Players = []string{}
	}
	for _, e := range ranked {
		v.Ranking = append(v.Ranking, e.PlayerName)
	}
	if t.Status == models.TournamentFinished && len(v.Ranking) > 0 {
		v.Winner = &v.Ranking[0]
	}
	for i := range rounds {
		rv := RoundView{Number: rounds[i].Number, Games: make([]GameView, 0, len(rounds[i].Games))}
		for _, g := range rounds[i].Games {
			rv.Games = append(rv.Games, gameView(g, &t, &rounds[i]))
		}
		v.Rounds = append(v.Rounds, rv)
	}
	return v, nil
}

func (s *TournamentService) Get(ctx context.Context, tournamentID string) (TournamentView, error) {
	db := s.DB.WithContext(ctx)
	var t models.Tournament
	if err := db.First(&t, "id = ?", tournamentID).Error; err != nil {
		return TournamentView{}, notFound(err, "tournament %s", tournamentID)
	}
	return describeTournament(db, t)
}

type TournamentFilter struct {
	Status string
	Type   string
	Player string
	Limit  int
}

// List returns tournaments matching filter, newest first. Player restricts
// to the online tournaments the player is enrolled in.
func (s *TournamentService) List(ctx context.Context, filter TournamentFilter) ([]TournamentView, error) {
	db := s.DB.WithContext(ctx)
	q := db.Model(&models.Tournament{})
	if filter.Status != "" {
		st, err := models.ParseTournamentStatus(filter.Status)
		if err != nil {
			return nil, eris.Wrap(ErrValidation, err.Error())
		}
		q = q.Where("tournaments.status = ?", st)
	}
	if filter.Type != "" {
		typ, err := models.ParseGameType(filter.Type)
		if err != nil {
			return nil, eris.Wrap(ErrValidation, err.Error())
		}
		q = q.Where("tournaments.type = ?", typ)
	}
	if filter.Player != "" {
		q = q.Joins("JOIN tournament_players ON tournament_players.tournament_id = tournaments.id").
			Joins("JOIN players ON players.id = tournament_players.player_id").
			Where("players.name = ?", filter.Player)
	}
	q = q.Order("tournaments.created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var tournaments []models.Tournament
	if err := q.Find(&tournaments).Error; err != nil {
		return nil, eris.Wrap(err, "list tournaments")
	}
	out := make([]TournamentView, 0, len(tournaments))
	for _, t := range tournaments {
		v, err := describeTournament(db, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// --- handlers ---

func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	var req CreateTournamentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	t, err := s.Register(c.UserContext(), currentPlayer(c), req)
	if err != nil {
		return respondError(c, err)
	}
	view, err := s.Get(c.UserContext(), t.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":            "Tournament created successfully",
		"tournament_id":      t.ID,
		"tournament_details": view,
	})
}

func (s *TournamentService) ListTournaments(c *fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return respondError(c, err)
	}
	list, err := s.List(c.UserContext(), TournamentFilter{
		Status: c.Query("status"),
		Type:   c.Query("type"),
		Limit:  limit,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"tournaments": list})
}

func (s *TournamentService) MyTournaments(c *fiber.Ctx) error {
	player := currentPlayer(c)
	if player == "" {
		return respondError(c, ErrUnauthorized)
	}
	list, err := s.List(c.UserContext(), TournamentFilter{Player: player, Status: c.Query("status")})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"tournaments": list})
}

func (s *TournamentService) GetTournament(c *fiber.Ctx) error {
	view, err := s.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

type participantRequest struct {
	Player string `json:"player"`
}

// participant is the body's player for local tournaments and the
// authenticated player otherwise.
func (s *TournamentService) participant(c *fiber.Ctx) (string, error) {
	var t models.Tournament
	if err := s.DB.WithContext(c.UserContext()).First(&t, "id = ?", c.Params("id")).Error; err != nil {
		return "", notFound(err, "tournament %s", c.Params("id"))
	}
	if t.Type != models.Local {
		return currentPlayer(c), nil
	}
	var req participantRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return "", invalid("invalid JSON")
		}
	}
	return req.Player, nil
}

func (s *TournamentService) JoinTournament(c *fiber.Ctx) error {
	player, err := s.participant(c)
	if err != nil {
		return respondError(c, err)
	}
	if _, err := s.Join(c.UserContext(), c.Params("id"), player); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Tournament joined successfully"})
}

func (s *TournamentService) LeaveTournament(c *fiber.Ctx) error {
	player, err := s.participant(c)
	if err != nil {
		return respondError(c, err)
	}
	if _, err := s.Leave(c.UserContext(), c.Params("id"), player); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Tournament left successfully"})
}
