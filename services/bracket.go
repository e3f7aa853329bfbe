package services

import (
	"math/rand/v2"
	"sort"

	"pongmatch/models"
)

// Pairing is one scheduled game of a round.
type Pairing struct {
	Player1 string
	Player2 string
}

// RoundRobin schedules every participant against every other exactly once
// using the circle method: index 0 stays put while the others rotate. An
// odd field gets a bye, whose pairings are skipped.
func RoundRobin(players []string) [][]Pairing {
	slots := make([]*string, 0, len(players)+1)
	for i := range players {
		slots = append(slots, &players[i])
	}
	if len(slots)%2 == 1 {
		slots = append(slots, nil)
	}
	n := len(slots)
	if n < 2 {
		return nil
	}

	rounds := make([][]Pairing, 0, n-1)
	for r := 1; r < n; r++ {
		var round []Pairing
		for i := 0; i < n/2; i++ {
			a, b := slots[i], slots[n-1-i]
			if a == nil || b == nil {
				continue
			}
			round = append(round, Pairing{Player1: *a, Player2: *b})
		}
		rounds = append(rounds, round)

		last := slots[n-1]
		copy(slots[2:], slots[1:n-1])
		slots[1] = last
	}
	return rounds
}

// Rank orders standings by points, wins, goal difference and goals scored.
// Entries tied on all four are ordered randomly.
func Rank(entries []models.LeaderboardEntry) []models.LeaderboardEntry {
	out := make([]models.LeaderboardEntry, len(entries))
	copy(out, entries)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.GamesWon != b.GamesWon {
			return a.GamesWon > b.GamesWon
		}
		if a.GoalDifference != b.GoalDifference {
			return a.GoalDifference > b.GoalDifference
		}
		return a.GoalsFor > b.GoalsFor
	})
	return out
}
