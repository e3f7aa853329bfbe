// models/game.go
package models

import (
	"fmt"
	"time"
)

const (
	PositionLeft  = "left"
	PositionRight = "right"

	// AnyoneName stands in for the empty slot of an open game.
	AnyoneName = "*anyone*"
)

// Game is a single match between two sides.
type Game struct {
	ID   string   `json:"id" gorm:"primaryKey"`
	Type GameType `json:"type" gorm:"type:varchar(10);not null;default:'online'"`

	Player1ID *string `json:"-" gorm:"index;uniqueIndex:idx_games_private_waiting,where:status = 'waiting_for_players'"`
	Player2ID *string `json:"-" gorm:"index;uniqueIndex:idx_games_private_waiting,where:status = 'waiting_for_players';check:chk_games_distinct_players,player1_id <> player2_id"`
	Player1   *Player `json:"-" gorm:"foreignKey:Player1ID"`
	Player2   *Player `json:"-" gorm:"foreignKey:Player2ID"`

	Player1Name     string `json:"player1"`
	Player2Name     string `json:"player2"`
	Player1Position string `json:"player1_position" gorm:"type:varchar(10);default:'left'"`
	Player2Position string `json:"player2_position" gorm:"type:varchar(10);default:'right'"`
	Player1Score    int    `json:"player1_score" gorm:"default:0"`
	Player2Score    int    `json:"player2_score" gorm:"default:0"`

	Status    GameStatus `json:"status" gorm:"type:varchar(20);index;not null"`
	EndReason string     `json:"end_reason,omitempty"`

	TournamentID *string `json:"tournament_id,omitempty" gorm:"index"`
	RoundID      *string `json:"round_id,omitempty" gorm:"index"`

	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (g Game) Name() string { return fmt.Sprintf("%s vs %s", g.Player1Name, g.Player2Name) }

// Winner is empty until the game finished, and for a draw.
func (g Game) Winner() string {
	if g.Status != GameFinished {
		return ""
	}
	switch {
	case g.Player1Score > g.Player2Score:
		return g.Player1Name
	case g.Player2Score > g.Player1Score:
		return g.Player2Name
	}
	return ""
}

func (g Game) PositionOf(name string) string {
	if name == g.Player1Name {
		return g.Player1Position
	}
	return g.Player2Position
}

func (g Game) ScoreOf(name string) int {
	if name == g.Player1Name {
		return g.Player1Score
	}
	return g.Player2Score
}

func (g Game) OpponentOf(name string) string {
	if name == g.Player1Name {
		return g.Player2Name
	}
	return g.Player1Name
}

// Open reports whether the second slot of an online game is still free.
func (g Game) Open() bool { return g.Type == Online && g.Player2ID == nil }

func (g Game) HasPlayer(playerID string) bool {
	return (g.Player1ID != nil && *g.Player1ID == playerID) || (g.Player2ID != nil && *g.Player2ID == playerID)
}
