package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pongmatch/models"
)

func channelOf(t *testing.T, e *env, name string) *string {
	t.Helper()
	var p models.Player
	require.NoError(t, e.db.Where("name = ?", name).First(&p).Error)
	return p.ChannelName
}

func TestNotifyQueuesUntilConnected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _, err := e.players.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, e.notifier.Notify(ctx, "alice", TournamentMessage{Type: MessageTournamentStart}))
	require.NoError(t, e.notifier.Notify(ctx, "alice", TournamentMessage{Type: MessageTournamentUpdate}))
	require.NoError(t, e.notifier.Notify(ctx, "ghost", TournamentMessage{Type: MessageTournamentUpdate}))
	assert.Equal(t, []string{MessageTournamentStart, MessageTournamentUpdate}, e.outbox(t, "alice"))

	conn := &recorder{}
	connID, err := e.notifier.Connect(ctx, "alice", conn)
	require.NoError(t, err)
	assert.Equal(t, []string{MessageTournamentStart, MessageTournamentUpdate}, conn.types())
	assert.Empty(t, e.outbox(t, "alice"))
	require.NotNil(t, channelOf(t, e, "alice"))
	assert.Equal(t, "test/"+connID, *channelOf(t, e, "alice"))

	require.NoError(t, e.notifier.Notify(ctx, "alice", GameStartMessage{Type: MessageGameStart}))
	assert.Equal(t, []string{MessageTournamentStart, MessageTournamentUpdate, MessageGameStart}, conn.types())
	assert.Empty(t, e.outbox(t, "alice"))

	conn.mu.Lock()
	conn.fail = true
	conn.mu.Unlock()
	require.NoError(t, e.notifier.Notify(ctx, "alice", GameStartMessage{Type: MessageGameStart}))
	assert.Equal(t, []string{MessageGameStart}, e.outbox(t, "alice"))

	e.notifier.Disconnect(ctx, "alice", connID)
	assert.Nil(t, channelOf(t, e, "alice"))
}

func TestDisconnectKeepsNewerConnection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _, err := e.players.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	first, err := e.notifier.Connect(ctx, "alice", &recorder{})
	require.NoError(t, err)
	second, err := e.notifier.Connect(ctx, "alice", &recorder{})
	require.NoError(t, err)

	e.notifier.Disconnect(ctx, "alice", first)
	require.NotNil(t, channelOf(t, e, "alice"))
	assert.Equal(t, "test/"+second, *channelOf(t, e, "alice"))

	_, err = e.notifier.Connect(ctx, "nobody", &recorder{})
	assert.Equal(t, 404, StatusOf(err))
}

func TestNotifyRelaysToOwningInstance(t *testing.T) {
	e := newEnv(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	here := NewNotifier(e.db, rdb, "here")
	there := NewNotifier(e.db, rdb, "there")
	go there.Subscribe(ctx)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(instanceChannel("there"))[instanceChannel("there")] == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, _, err := e.players.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	conn := &recorder{}
	_, err = there.Connect(ctx, "alice", conn)
	require.NoError(t, err)

	require.NoError(t, here.Notify(ctx, "alice", ChallengeMessage{Type: MessageChallenge, OpponentName: "bob"}))
	require.Eventually(t, func() bool { return len(conn.types()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{MessageChallenge}, conn.types())
	assert.Empty(t, e.outbox(t, "alice"))

	// nobody listens for a crashed instance
	require.NoError(t, e.db.Model(&models.Player{}).Where("name = ?", "alice").Update("channel_name", "gone/conn").Error)
	require.NoError(t, here.Notify(ctx, "alice", ChallengeMessage{Type: MessageChallenge}))
	assert.Equal(t, []string{MessageChallenge}, e.outbox(t, "alice"))
}
