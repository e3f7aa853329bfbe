package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pongmatch/models"
	"pongmatch/storetest"
)

type launcher struct {
	mu     sync.Mutex
	starts []string
	fail   map[string]bool
}

func (l *launcher) Create(context.Context, string) error { return nil }

func (l *launcher) Start(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, id)
	if l.fail[id] {
		return errors.New("game server unreachable")
	}
	return nil
}

func TestReconcileRestartsStaleGames(t *testing.T) {
	db := storetest.Open(t)
	now := time.Now().UTC()
	old := now.Add(-10 * time.Minute)

	mk := func(status models.GameStatus, updated time.Time) models.Game {
		g := models.Game{
			ID:          uuid.NewString(),
			Type:        models.Local,
			Player1Name: "a",
			Player2Name: "b",
			Status:      status,
			CreatedAt:   updated,
			UpdatedAt:   updated,
		}
		require.NoError(t, db.Create(&g).Error)
		return g
	}
	stale := mk(models.GameInProgress, old)
	broken := mk(models.GameInProgress, old.Add(time.Second))
	mk(models.GameInProgress, now)
	mk(models.GameFinished, old)
	mk(models.GameScheduled, old)

	l := &launcher{fail: map[string]bool{broken.ID: true}}
	w := NewReconciler(db, l, time.Minute, 2*time.Minute)
	w.now = func() time.Time { return now }

	n, err := w.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{stale.ID, broken.ID}, l.starts)

	var touched models.Game
	require.NoError(t, db.First(&touched, "id = ?", stale.ID).Error)
	assert.WithinDuration(t, now, touched.UpdatedAt, time.Second)

	// only the failed one is still stale
	l.starts = nil
	n, err = w.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{broken.ID}, l.starts)
}

func TestReconcilerStopsWithContext(t *testing.T) {
	db := storetest.Open(t)
	l := &launcher{}
	w := NewReconciler(db, l, 5*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
