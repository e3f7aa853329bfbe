package services

import (
	"time"

	"gorm.io/gorm"

	"pongmatch/models"
)

// GameView is the public representation of a game.
type GameView struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Type            models.GameType   `json:"type"`
	Status          models.GameStatus `json:"status"`
	TournamentID    *string           `json:"tournament_id"`
	Tournament      *string           `json:"tournament"`
	Round           *int              `json:"round"`
	Player1         string            `json:"player1"`
	Player2         string            `json:"player2"`
	Player1Position string            `json:"player1_position"`
	Player2Position string            `json:"player2_position"`
	Player1Score    int               `json:"player1_score"`
	Player2Score    int               `json:"player2_score"`
	Winner          *string           `json:"winner"`
	EndReason       string            `json:"end_reason,omitempty"`
	Date            time.Time         `json:"date"`
	CreatedAt       int64             `json:"created_at"`
}

type RoundView struct {
	Number int        `json:"round_number"`
	Games  []GameView `json:"games"`
}

// TournamentView is the public representation of a tournament, standings
// included.
type TournamentView struct {
	ID           string                    `json:"id"`
	Name         string                    `json:"name"`
	Slug         string                    `json:"slug"`
	Type         models.GameType           `json:"type"`
	PoolSize     int                       `json:"pool_size"`
	Players      []string                  `json:"players"`
	Status       models.TournamentStatus   `json:"status"`
	CurrentRound int                       `json:"current_round"`
	Winner       *string                   `json:"winner"`
	Ranking      []string                  `json:"ranking"`
	Leaderboard  []models.LeaderboardEntry `json:"leaderboard"`
	Rounds       []RoundView               `json:"rounds"`
	ArchiveURL   string                    `json:"archive_url,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
}

type PlayerView struct {
	Name        string  `json:"name"`
	Connected   bool    `json:"connected"`
	TotalGames  int     `json:"total_games"`
	TotalWins   int     `json:"total_wins"`
	TotalLosses int     `json:"total_losses"`
	WinRate     float64 `json:"win_rate"`
}

func gameView(g models.Game, tournament *models.Tournament, round *models.Round) GameView {
	v := GameView{
		ID:              g.ID,
		Name:            g.Name(),
		Type:            g.Type,
		Status:          g.Status,
		TournamentID:    g.TournamentID,
		Player1:         g.Player1Name,
		Player2:         g.Player2Name,
		Player1Position: g.Player1Position,
		Player2Position: g.Player2Position,
		Player1Score:    g.Player1Score,
		Player2Score:    g.Player2Score,
		EndReason:       g.EndReason,
		Date:            g.CreatedAt,
		CreatedAt:       g.CreatedAt.Unix(),
	}
	if g.FinishedAt != nil {
		v.Date = *g.FinishedAt
	}
	if w := g.Winner(); w != "" {
		v.Winner = &w
	}
	if tournament != nil {
		v.Tournament = &tournament.Name
	}
	if round != nil {
		v.Round = &round.Number
	}
	return v
}

// viewGames resolves the tournament and round of every game in two queries.
func viewGames(db *gorm.DB, games []models.Game) ([]GameView, error) {
	var tournamentIDs, roundIDs []string
	for _, g := range games {
		if g.TournamentID != nil {
			tournamentIDs = append(tournamentIDs, *g.TournamentID)
		}
		if g.RoundID != nil {
			roundIDs = append(roundIDs, *g.RoundID)
		}
	}

	tournaments := map[string]*models.Tournament{}
	if len(tournamentIDs) > 0 {
		var ts []models.Tournament
		if err := db.Where("id IN ?", tournamentIDs).Find(&ts).Error; err != nil {
			return nil, err
		}
		for i := range ts {
			tournaments[ts[i].ID] = &ts[i]
		}
	}
	rounds := map[string]*models.Round{}
	if len(roundIDs) > 0 {
		var rs []models.Round
		if err := db.Where("id IN ?", roundIDs).Find(&rs).Error; err != nil {
			return nil, err
		}
		for i := range rs {
			rounds[rs[i].ID] = &rs[i]
		}
	}

	out := make([]GameView, 0, len(games))
	for _, g := range games {
		var t *models.Tournament
		var r *models.Round
		if g.TournamentID != nil {
			t = tournaments[*g.TournamentID]
		}
		if g.RoundID != nil {
			r = rounds[*g.RoundID]
		}
		out = append(out, gameView(g, t, r))
	}
	return out, nil
}

func viewGame(db *gorm.DB, g models.Game) (GameView, error) {
	views, err := viewGames(db, []models.Game{g})
	if err != nil {
		return GameView{}, err
	}
	return views[0], nil
}
