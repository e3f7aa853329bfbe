package models

import "time"

// Player is a registered participant, identified by a unique name.
type Player struct {
	ID   string `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
	// ChannelName is the live notification connection, "<instance>/<conn>".
	ChannelName *string   `json:"-"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (p Player) Connected() bool { return p.ChannelName != nil && *p.ChannelName != "" }

// PlayerMessage is a notification waiting for its player to come online.
type PlayerMessage struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	PlayerID  string    `json:"player_id" gorm:"index;not null"`
	Payload   string    `json:"payload" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
