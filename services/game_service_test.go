package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pongmatch/engine"
	"pongmatch/models"
)

func TestRegisterLocalGame(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	g, err := e.games.Register(ctx, "", RegisterGameRequest{Type: "local"})
	require.NoError(t, err)
	assert.Equal(t, models.Local, g.Type)
	assert.Equal(t, models.GameInProgress, g.Status)
	assert.Equal(t, "Player 1", g.Player1Name)
	assert.Equal(t, "Player 2", g.Player2Name)
	assert.Nil(t, g.Player1ID)
	assert.Equal(t, []string{g.ID}, e.launcher.started())

	_, err = e.games.Register(ctx, "", RegisterGameRequest{Type: "local", Player1: "Ann", Player2: " Ann "})
	assert.Equal(t, 400, StatusOf(err))

	_, err = e.games.Register(ctx, "", RegisterGameRequest{Type: "squash"})
	assert.Equal(t, 400, StatusOf(err))
}

func TestRegisterOnlineRequiresIdentity(t *testing.T) {
	e := newEnv(t)
	_, err := e.games.Register(context.Background(), "", RegisterGameRequest{})
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestOpenGameIsFilledBySecondPlayer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	open, err := e.games.Register(ctx, "alice", RegisterGameRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.GameWaitingForPlayers, open.Status)
	assert.Equal(t, models.AnyoneName, open.Player2Name)
	assert.Equal(t, []string{open.ID}, e.launcher.created())

	again, err := e.games.Register(ctx, "alice", RegisterGameRequest{})
	require.NoError(t, err)
	assert.Equal(t, open.ID, again.ID, "a second open registration returns the pending game")

	filled, err := e.games.Register(ctx, "bob", RegisterGameRequest{})
	require.NoError(t, err)
	assert.Equal(t, open.ID, filled.ID)
	assert.Equal(t, models.GameInProgress, filled.Status)
	assert.Equal(t, "bob", filled.Player2Name)
	assert.Equal(t, []string{open.ID}, e.launcher.started())

	assert.Equal(t, []string{MessageGameStart}, e.outbox(t, "alice"))
	assert.Equal(t, []string{MessageGameStart}, e.outbox(t, "bob"))
}

func TestConcurrentOpenRegistrationsPairUp(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"alice", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.games.Register(ctx, name, RegisterGameRequest{})
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var games []models.Game
	require.NoError(t, e.db.Find(&games).Error)
	require.Len(t, games, 1)
	assert.Equal(t, models.GameInProgress, games[0].Status)
	assert.ElementsMatch(t, []string{"alice", "bob"}, []string{games[0].Player1Name, games[0].Player2Name})

	third, err := e.games.Register(ctx, "carol", RegisterGameRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.GameWaitingForPlayers, third.Status)
}

func TestPrivateChallenge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	g, err := e.games.Register(ctx, "alice", RegisterGameRequest{Player2: "bob"})
	require.NoError(t, err)
	assert.Equal(t, models.GameWaitingForPlayers, g.Status)
	assert.Equal(t, "bob", g.Player2Name)
	require.NotNil(t, g.Player2ID)
	assert.Equal(t, []string{MessageChallenge}, e.outbox(t, "bob"))

	same, err := e.games.Register(ctx, "bob", RegisterGameRequest{Player2: "alice"})
	require.NoError(t, err)
	assert.Equal(t, g.ID, same.ID, "a pending challenge between the pair is reused")

	_, err = e.games.Register(ctx, "alice", RegisterGameRequest{Player2: "alice"})
	assert.Equal(t, 400, StatusOf(err))

	_, err = e.games.Join(ctx, g.ID, "carol")
	assert.Equal(t, 403, StatusOf(err))
	_, err = e.games.Join(ctx, g.ID, "alice")
	assert.Equal(t, 409, StatusOf(err))

	joined, err := e.games.Join(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.GameInProgress, joined.Status)
	assert.Equal(t, []string{g.ID}, e.launcher.started())

	_, err = e.games.Join(ctx, g.ID, "bob")
	assert.Equal(t, 409, StatusOf(err))
}

func TestPrivateRegistrationFillsOpponentsOpenGame(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	open, err := e.games.Register(ctx, "alice", RegisterGameRequest{})
	require.NoError(t, err)

	g, err := e.games.Register(ctx, "bob", RegisterGameRequest{Player2: "alice"})
	require.NoError(t, err)
	assert.Equal(t, open.ID, g.ID)
	assert.Equal(t, models.GameInProgress, g.Status)
	assert.Equal(t, "alice", g.Player1Name)
	assert.Equal(t, "bob", g.Player2Name)
}

func TestPrivateRegistrationFillsOwnOpenGame(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	open, err := e.games.Register(ctx, "alice", RegisterGameRequest{})
	require.NoError(t, err)

	g, err := e.games.Register(ctx, "alice", RegisterGameRequest{Player2: "bob"})
	require.NoError(t, err)
	assert.Equal(t, open.ID, g.ID)
	assert.Equal(t, models.GameInProgress, g.Status)
	assert.Equal(t, "alice", g.Player1Name)
	assert.Equal(t, "bob", g.Player2Name)

	var waiting int64
	require.NoError(t, e.db.Model(&models.Game{}).Where("status = ?", models.GameWaitingForPlayers).Count(&waiting).Error)
	assert.Zero(t, waiting)
	assert.Equal(t, []string{open.ID}, e.launcher.started())
	assert.Equal(t, []string{MessageGameStart}, e.outbox(t, "bob"))
}

func TestDeleteRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	open, err := e.games.Register(ctx, "alice", RegisterGameRequest{})
	require.NoError(t, err)

	assert.True(t, errors.Is(e.games.Delete(ctx, open.ID, ""), ErrUnauthorized))
	assert.Equal(t, 403, StatusOf(e.games.Delete(ctx, open.ID, "bob")))
	assert.Equal(t, 404, StatusOf(e.games.Delete(ctx, "missing", "alice")))
	require.NoError(t, e.games.Delete(ctx, open.ID, "alice"))

	challenge, err := e.games.Register(ctx, "alice", RegisterGameRequest{Player2: "bob"})
	require.NoError(t, err)
	require.NoError(t, e.games.Delete(ctx, challenge.ID, "bob"), "the challenged player may decline")

	local, err := e.games.Register(ctx, "", RegisterGameRequest{Type: "local"})
	require.NoError(t, err)
	assert.Equal(t, 409, StatusOf(e.games.Delete(ctx, local.ID, "Player 1")))
}

func TestRecordResult(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	open, err := e.games.Register(ctx, "alice", RegisterGameRequest{})
	require.NoError(t, err)

	_, err = e.games.Register(ctx, "bob", RegisterGameRequest{})
	require.NoError(t, err)

	_, err = e.games.RecordResult(ctx, engine.Result{GameID: open.ID, LeftScore: -1})
	assert.Equal(t, 400, StatusOf(err))
	_, err = e.games.RecordResult(ctx, engine.Result{GameID: "missing"})
	assert.Equal(t, 404, StatusOf(err))

	g, err := e.games.RecordResult(ctx, engine.Result{GameID: open.ID, LeftScore: 1, RightScore: 3, Status: engine.StatusOver})
	require.NoError(t, err)
	assert.Equal(t, models.GameFinished, g.Status)
	assert.Equal(t, 1, g.Player1Score)
	assert.Equal(t, 3, g.Player2Score)
	assert.Equal(t, "bob", g.Winner())
	assert.Equal(t, string(engine.StatusOver), g.EndReason)
	assert.NotNil(t, g.FinishedAt)

	_, err = e.games.RecordResult(ctx, engine.Result{GameID: open.ID, LeftScore: 3, RightScore: 0})
	assert.Equal(t, 409, StatusOf(err), "a game is finished once")
	assert.Equal(t, 3, e.game(t, open.ID).Player2Score)
}

func TestRequestStart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	local, err := e.games.Register(ctx, "", RegisterGameRequest{Type: "local"})
	require.NoError(t, err)

	g, err := e.games.RequestStart(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GameInProgress, g.Status)
	assert.Equal(t, []string{local.ID, local.ID}, e.launcher.started())

	e.launcher.err = errors.New("connection refused")
	_, err = e.games.RequestStart(ctx, local.ID)
	assert.Equal(t, 502, StatusOf(err))
	e.launcher.err = nil

	_, err = e.games.RecordResult(ctx, engine.Result{GameID: local.ID, LeftScore: 3})
	require.NoError(t, err)
	_, err = e.games.RequestStart(ctx, local.ID)
	assert.Equal(t, 409, StatusOf(err))
}

func TestListGames(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	challenge, err := e.games.Register(ctx, "alice", RegisterGameRequest{Player2: "bob"})
	require.NoError(t, err)
	_, err = e.games.Register(ctx, "", RegisterGameRequest{Type: "local"})
	require.NoError(t, err)

	all, err := e.games.List(ctx, GameFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	local, err := e.games.List(ctx, GameFilter{Type: "local"})
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, "Player 1 vs Player 2", local[0].Name)

	yes, no := true, false
	pending, err := e.games.List(ctx, GameFilter{Player: "bob", Joined: &no})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, challenge.ID, pending[0].ID)

	joined, err := e.games.List(ctx, GameFilter{Player: "bob", Joined: &yes})
	require.NoError(t, err)
	assert.Empty(t, joined)

	mine, err := e.games.List(ctx, GameFilter{Player: "alice", Joined: &yes})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = e.games.List(ctx, GameFilter{Status: "paused"})
	assert.Equal(t, 400, StatusOf(err))
}
