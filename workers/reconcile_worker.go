// workers/reconcile_worker.go
package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"pongmatch/models"
	"pongmatch/services"
)

// Reconciler re-requests matches for games stuck in progress, typically
// because the game server restarted or a start request was lost.
type Reconciler struct {
	db         *gorm.DB
	launcher   services.Launcher
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewReconciler(db *gorm.DB, launcher services.Launcher, interval, staleAfter time.Duration) *Reconciler {
	return &Reconciler{
		db:         db,
		launcher:   launcher,
		interval:   interval,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (w *Reconciler) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("🔁 [RECONCILE] worker started")
	go w.run(ctx)
}

func (w *Reconciler) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.Reconcile(ctx); err != nil {
				log.Error().Err(err).Msg("❌ [RECONCILE] pass failed")
			}
		case <-ctx.Done():
			log.Info().Msg("⏹️ [RECONCILE] worker stopped")
			return
		}
	}
}

// Reconcile asks the game server again for every stale in-progress game
// and returns how many requests succeeded. A game is touched after a
// successful request so it waits another full period before the next one.
func (w *Reconciler) Reconcile(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.staleAfter)

	var games []models.Game
	err := w.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", models.GameInProgress, cutoff).
		Order("updated_at ASC").
		Find(&games).Error
	if err != nil {
		return 0, err
	}

	restarted := 0
	for _, g := range games {
		if err := w.launcher.Start(ctx, g.ID); err != nil {
			log.Warn().Err(err).Str("game_id", g.ID).Msg("[RECONCILE] restart request failed")
			continue
		}
		err := w.db.WithContext(ctx).Model(&models.Game{}).
			Where("id = ? AND status = ?", g.ID, models.GameInProgress).
			Update("updated_at", w.now()).Error
		if err != nil {
			log.Error().Err(err).Str("game_id", g.ID).Msg("[RECONCILE] touch failed")
			continue
		}
		restarted++
		log.Info().Str("game_id", g.ID).Str("game", g.Name()).Msg("[RECONCILE] match re-requested")
	}
	return restarted, nil
}
