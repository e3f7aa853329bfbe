package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pongmatch/dblock"
	"pongmatch/models"
	"pongmatch/storetest"
)

// fakeLauncher records the game server calls instead of making them.
type fakeLauncher struct {
	mu      sync.Mutex
	creates []string
	starts  []string
	err     error
}

func (f *fakeLauncher) Create(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, id)
	return f.err
}

func (f *fakeLauncher) Start(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, id)
	return f.err
}

func (f *fakeLauncher) started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.starts...)
}

func (f *fakeLauncher) created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.creates...)
}

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
	body []byte
}

func (a *fakeArchiver) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	a.body = body
	return "https://cdn.example.test/" + key, nil
}

// recorder is a live connection keeping what it was sent.
type recorder struct {
	mu     sync.Mutex
	frames []json.RawMessage
	fail   bool
}

func (r *recorder) Send(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return eris.New("connection closed")
	}
	raw, ok := v.(json.RawMessage)
	if !ok {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = data
	}
	r.frames = append(r.frames, raw)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, messageType(f))
	}
	return out
}

func messageType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &head)
	return head.Type
}

type env struct {
	db          *gorm.DB
	locks       *dblock.Service
	notifier    *Notifier
	launcher    *fakeLauncher
	archiver    *fakeArchiver
	games       *GameService
	tournaments *TournamentService
	players     *PlayerService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := storetest.Open(t)
	e := &env{
		db:       db,
		locks:    dblock.New(db, dblock.Options{RetryDelay: 2 * time.Millisecond, MaxRetryDelay: 20 * time.Millisecond}),
		launcher: &fakeLauncher{},
		archiver: &fakeArchiver{},
	}
	e.notifier = NewNotifier(db, nil, "test")
	e.tournaments = NewTournamentService(db, e.locks, e.notifier, e.launcher, e.archiver)
	e.games = NewGameService(db, e.locks, e.notifier, e.launcher, e.tournaments)
	e.players = NewPlayerService(db, e.locks, e.notifier)
	return e
}

func (e *env) game(t *testing.T, id string) models.Game {
	t.Helper()
	var g models.Game
	require.NoError(t, e.db.First(&g, "id = ?", id).Error)
	return g
}

// outbox lists the types of the messages queued for a player.
func (e *env) outbox(t *testing.T, name string) []string {
	t.Helper()
	var p models.Player
	require.NoError(t, e.db.Where("name = ?", name).First(&p).Error)
	var queued []models.PlayerMessage
	require.NoError(t, e.db.Where("player_id = ?", p.ID).Order("id ASC").Find(&queued).Error)
	out := make([]string, 0, len(queued))
	for _, m := range queued {
		out = append(out, messageType([]byte(m.Payload)))
	}
	return out
}
