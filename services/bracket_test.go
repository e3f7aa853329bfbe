package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pongmatch/models"
)

func TestRoundRobinPairsEveryoneOnce(t *testing.T) {
	for n := 2; n <= 10; n++ {
		t.Run(fmt.Sprintf("%d players", n), func(t *testing.T) {
			players := make([]string, n)
			for i := range players {
				players[i] = fmt.Sprintf("p%d", i)
			}

			rounds := RoundRobin(players)
			wantRounds := n - 1
			if n%2 == 1 {
				wantRounds = n
			}
			require.Len(t, rounds, wantRounds)

			seen := map[[2]string]int{}
			for _, round := range rounds {
				busy := map[string]bool{}
				for _, p := range round {
					assert.NotEqual(t, p.Player1, p.Player2)
					assert.False(t, busy[p.Player1], "%s plays twice in a round", p.Player1)
					assert.False(t, busy[p.Player2], "%s plays twice in a round", p.Player2)
					busy[p.Player1], busy[p.Player2] = true, true

					key := [2]string{p.Player1, p.Player2}
					if key[0] > key[1] {
						key[0], key[1] = key[1], key[0]
					}
					seen[key]++
				}
				assert.Len(t, round, n/2)
			}
			assert.Len(t, seen, n*(n-1)/2)
			for pair, count := range seen {
				assert.Equal(t, 1, count, "%v met %d times", pair, count)
			}
		})
	}
}

func TestRoundRobinKeepsInput(t *testing.T) {
	players := []string{"a", "b", "c", "d"}
	RoundRobin(players)
	assert.Equal(t, []string{"a", "b", "c", "d"}, players)
}

func TestRankOrdersByPointsWinsDifferenceGoals(t *testing.T) {
	entries := []models.LeaderboardEntry{
		{PlayerName: "goals", Points: 3, GamesWon: 1, GoalDifference: 1, GoalsFor: 9},
		{PlayerName: "top", Points: 6, GamesWon: 2},
		{PlayerName: "diff", Points: 3, GamesWon: 1, GoalDifference: 4},
		{PlayerName: "last", Points: 0},
		{PlayerName: "fewer", Points: 3, GamesWon: 1, GoalDifference: 1, GoalsFor: 2},
	}
	ranked := Rank(entries)

	names := make([]string, 0, len(ranked))
	for _, e := range ranked {
		names = append(names, e.PlayerName)
	}
	assert.Equal(t, []string{"top", "diff", "goals", "fewer", "last"}, names)
	assert.Equal(t, "goals", entries[0].PlayerName, "input must not be reordered")
}
