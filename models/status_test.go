package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameStatusTransitions(t *testing.T) {
	assert.True(t, GameWaitingForPlayers.CanTransition(GameInProgress))
	assert.True(t, GameWaitingForPlayers.CanTransition(GameFinished))
	assert.True(t, GameScheduled.CanTransition(GameInProgress))
	assert.True(t, GameInProgress.CanTransition(GameFinished))

	assert.False(t, GameScheduled.CanTransition(GameFinished))
	assert.False(t, GameFinished.CanTransition(GameFinished))
	assert.False(t, GameFinished.CanTransition(GameInProgress))
	assert.False(t, GameInProgress.CanTransition(GameWaitingForPlayers))
}

func TestTournamentStatusTransitions(t *testing.T) {
	assert.True(t, TournamentWaitingForPlayers.CanTransition(TournamentInProgress))
	assert.True(t, TournamentInProgress.CanTransition(TournamentFinished))
	assert.False(t, TournamentWaitingForPlayers.CanTransition(TournamentFinished))
	assert.False(t, TournamentFinished.CanTransition(TournamentInProgress))
}

func TestParseGameType(t *testing.T) {
	typ, err := ParseGameType("")
	require.NoError(t, err)
	assert.Equal(t, Online, typ)

	typ, err = ParseGameType("local")
	require.NoError(t, err)
	assert.Equal(t, Local, typ)

	_, err = ParseGameType("ranked")
	assert.Error(t, err)
}

func TestGameWinner(t *testing.T) {
	g := Game{Player1Name: "alice", Player2Name: "bob", Player1Score: 3, Player2Score: 1, Status: GameInProgress}
	assert.Empty(t, g.Winner(), "no winner before the game finished")

	g.Status = GameFinished
	assert.Equal(t, "alice", g.Winner())

	g.Player2Score = 3
	assert.Empty(t, g.Winner(), "draw")

	assert.Equal(t, "alice vs bob", g.Name())
	assert.Equal(t, "bob", g.OpponentOf("alice"))
	assert.Equal(t, PositionRight, Game{Player1Name: "a", Player2Name: "b", Player2Position: PositionRight}.PositionOf("b"))
}

func TestLeaderboardGoalDifference(t *testing.T) {
	e := &LeaderboardEntry{GoalsFor: 4, GoalsAgainst: 7}
	require.NoError(t, e.BeforeSave(nil))
	assert.Equal(t, -3, e.GoalDifference)
}
