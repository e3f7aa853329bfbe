package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pongmatch/engine"
	"pongmatch/models"
)

func TestNormalizeName(t *testing.T) {
	n, err := NormalizeName("  Jose\u0301 ")
	require.NoError(t, err)
	assert.Equal(t, "Jos\u00e9", n)

	for _, bad := range []string{"", "   ", models.AnyoneName, strings.Repeat("a", 65)} {
		_, err := NormalizeName(bad)
		assert.Equal(t, 400, StatusOf(err), "%q", bad)
	}
}

func TestGetOrCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, created, err := e.players.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := e.players.GetOrCreate(ctx, " alice ")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)
}

func TestRenameCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	g, err := e.games.Register(ctx, "alice", RegisterGameRequest{Player2: "bob"})
	require.NoError(t, err)
	tour, err := e.tournaments.Register(ctx, "alice", CreateTournamentRequest{Name: "Cup", PoolSize: 2, Players: []string{"carol"}})
	require.NoError(t, err)

	_, err = e.players.Rename(ctx, "alice", "bob")
	assert.Equal(t, 409, StatusOf(err))
	_, err = e.players.Rename(ctx, "nobody", "somebody")
	assert.Equal(t, 404, StatusOf(err))

	p, err := e.players.Rename(ctx, "alice", "alicia")
	require.NoError(t, err)
	assert.Equal(t, "alicia", p.Name)

	assert.Equal(t, "alicia", e.game(t, g.ID).Player1Name)

	view, err := e.tournaments.Get(ctx, tour.ID)
	require.NoError(t, err)
	assert.Contains(t, view.Players, "alicia")
	assert.NotContains(t, view.Players, "alice")
	var names []string
	for _, entry := range view.Leaderboard {
		names = append(names, entry.PlayerName)
	}
	assert.ElementsMatch(t, []string{"alicia", "carol"}, names)
	for _, round := range view.Rounds {
		for _, rg := range round.Games {
			assert.NotEqual(t, "alice", rg.Player1)
			assert.NotEqual(t, "alice", rg.Player2)
		}
	}
}

func TestStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// alice hosts and wins 3-0
	first, err := e.games.Register(ctx, "alice", RegisterGameRequest{})
	require.NoError(t, err)
	_, err = e.games.Register(ctx, "bob", RegisterGameRequest{})
	require.NoError(t, err)
	_, err = e.games.RecordResult(ctx, engine.Result{GameID: first.ID, LeftScore: 3, RightScore: 0})
	require.NoError(t, err)

	// bob hosts and wins 3-2
	second, err := e.games.Register(ctx, "bob", RegisterGameRequest{})
	require.NoError(t, err)
	_, err = e.games.Register(ctx, "alice", RegisterGameRequest{})
	require.NoError(t, err)
	_, err = e.games.RecordResult(ctx, engine.Result{GameID: second.ID, LeftScore: 3, RightScore: 2})
	require.NoError(t, err)

	stats, err := e.players.Stats(ctx, "alice", StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalWins)
	assert.Equal(t, 1, stats.TotalLosses)
	assert.InDelta(t, 50.0, stats.WinRate, 0.001)
	assert.Equal(t, 5, stats.GoalsFor)
	assert.Equal(t, 3, stats.GoalsAgainst)
	require.Len(t, stats.Games, 2)
	assert.Equal(t, second.ID, stats.Games[0].ID, "latest first")
	require.NotNil(t, stats.Games[0].WinnerName)
	assert.Equal(t, "bob", *stats.Games[0].WinnerName)

	home, err := e.players.Stats(ctx, "alice", StatsFilter{Position: "home"})
	require.NoError(t, err)
	require.Len(t, home.Games, 1)
	assert.Equal(t, first.ID, home.Games[0].ID)

	limited, err := e.players.Stats(ctx, "alice", StatsFilter{Opponent: "bob", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited.Games, 1)

	_, err = e.players.Stats(ctx, "alice", StatsFilter{Position: "middle"})
	assert.Equal(t, 400, StatusOf(err))
	_, err = e.players.Stats(ctx, "alice", StatsFilter{Opponent: "zed"})
	assert.Equal(t, 404, StatusOf(err))

	view, err := e.players.View(ctx, models.Player{ID: *first.Player1ID, Name: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalGames)
	assert.Equal(t, 1, view.TotalWins)
}
