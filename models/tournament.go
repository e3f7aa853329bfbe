package models

import (
	"time"

	"gorm.io/gorm"
)

// Tournament is a round-robin competition between PoolSize participants.
type Tournament struct {
	ID       string   `json:"id" gorm:"primaryKey"`
	Name     string   `json:"name" gorm:"not null"`
	Slug     string   `json:"slug" gorm:"index"`
	Type     GameType `json:"type" gorm:"type:varchar(10);not null;default:'online'"`
	PoolSize int      `json:"pool_size" gorm:"not null;check:chk_tournaments_pool_size,pool_size >= 2"`

	// PlayerNames keeps registration order; the bracket is built from it.
	PlayerNames []string `json:"players" gorm:"serializer:json;type:text"`
	Players     []Player `json:"-" gorm:"many2many:tournament_players;"`

	Status       TournamentStatus `json:"status" gorm:"type:varchar(20);index;not null"`
	CurrentRound int              `json:"current_round" gorm:"default:0"`
	ArchiveURL   string           `json:"archive_url,omitempty"`

	Rounds []Round `json:"-" gorm:"foreignKey:TournamentID"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (t Tournament) HasPlayer(name string) bool {
	for _, n := range t.PlayerNames {
		if n == name {
			return true
		}
	}
	return false
}

func (t Tournament) Full() bool { return len(t.PlayerNames) >= t.PoolSize }

// Round groups the games of one tournament cycle.
type Round struct {
	ID           string   `json:"id" gorm:"primaryKey"`
	TournamentID string   `json:"tournament_id" gorm:"not null;uniqueIndex:idx_rounds_number"`
	Number       int      `json:"round_number" gorm:"not null;uniqueIndex:idx_rounds_number"`
	Type         GameType `json:"type" gorm:"type:varchar(10);not null;default:'online'"`
	Games        []Game   `json:"games,omitempty" gorm:"foreignKey:RoundID"`
}

// LeaderboardEntry is a participant's standing in a tournament.
type LeaderboardEntry struct {
	ID             uint   `json:"-" gorm:"primaryKey;autoIncrement"`
	TournamentID   string `json:"-" gorm:"not null;uniqueIndex:idx_leaderboard_player"`
	PlayerName     string `json:"player_name" gorm:"not null;uniqueIndex:idx_leaderboard_player"`
	GamesPlayed    int    `json:"games_played" gorm:"default:0"`
	GamesWon       int    `json:"games_won" gorm:"default:0"`
	GoalsFor       int    `json:"goals_for" gorm:"default:0"`
	GoalsAgainst   int    `json:"goals_against" gorm:"default:0"`
	GoalDifference int    `json:"goal_difference" gorm:"default:0"`
	Points         int    `json:"points" gorm:"default:0"`
}

func (e *LeaderboardEntry) BeforeSave(*gorm.DB) error {
	e.GoalDifference = e.GoalsFor - e.GoalsAgainst
	return nil
}
