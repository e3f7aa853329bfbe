package models

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&Player{},
		&PlayerMessage{},
		&Tournament{},
		&Round{},
		&Game{},
		&LeaderboardEntry{},
		&Lock{},
	}
}
