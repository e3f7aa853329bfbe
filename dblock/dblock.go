// Package dblock implements named mutexes stored as rows of the shared
// database, so every matchmaker instance contends on the same locks.
package dblock

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pongmatch/models"
)

const (
	Player     = "player"
	Game       = "game"
	Tournament = "tournament"
)

var ErrLockTimeout = eris.New("lock acquisition timed out")

// order is the global acquisition order. Unknown names sort first.
var order = map[string]int{
	Player:     1,
	Game:       2,
	Tournament: 3,
}

type Options struct {
	Lease         time.Duration
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// MaxAttempts bounds the attempts per name; 0 waits forever.
	MaxAttempts int
}

type Service struct {
	DB   *gorm.DB
	opts Options
	now  func() time.Time
}

func New(db *gorm.DB, opts Options) *Service {
	if opts.Lease <= 0 {
		opts.Lease = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}
	if opts.MaxRetryDelay < opts.RetryDelay {
		opts.MaxRetryDelay = opts.RetryDelay
	}
	return &Service{DB: db, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// Lease is a set of held locks.
type Lease struct {
	svc   *Service
	owner string
	names []string
}

func (l *Lease) Names() []string { return slices.Clone(l.names) }

// Sort returns names deduplicated and in global acquisition order.
func Sort(names []string) []string {
	out := slices.Clone(names)
	slices.SortFunc(out, func(a, b string) int {
		if oa, ob := order[a], order[b]; oa != ob {
			return oa - ob
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
	return slices.Compact(out)
}

// Acquire takes every named lock in global order. On failure the locks
// already taken are released before returning.
func (s *Service) Acquire(ctx context.Context, names ...string) (*Lease, error) {
	l := &Lease{svc: s, owner: uuid.NewString()}
	for _, name := range Sort(names) {
		if err := s.acquire(ctx, l.owner, name); err != nil {
			l.Release(context.WithoutCancel(ctx))
			return nil, err
		}
		l.names = append(l.names, name)
	}
	return l, nil
}

func (s *Service) acquire(ctx context.Context, owner, name string) error {
	delay := s.opts.RetryDelay
	for attempt := 1; ; attempt++ {
		ok, err := s.try(ctx, owner, name)
		if err != nil {
			return eris.Wrapf(err, "acquire lock %s", name)
		}
		if ok {
			return nil
		}
		if s.opts.MaxAttempts > 0 && attempt >= s.opts.MaxAttempts {
			log.Warn().Str("lock", name).Int("attempts", attempt).Msg("[LOCK] giving up")
			return eris.Wrapf(ErrLockTimeout, "lock %s", name)
		}

		wait := delay/2 + rand.N(delay/2+1)
		select {
		case <-ctx.Done():
			return eris.Wrapf(ctx.Err(), "waiting for lock %s", name)
		case <-time.After(wait):
		}
		delay = min(delay*2, s.opts.MaxRetryDelay)
	}
}

// try reaps a stale holder and inserts the lock row in one transaction.
func (s *Service) try(ctx context.Context, owner, name string) (bool, error) {
	acquired := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		stale := tx.Where("name = ? AND acquired_at <= ?", name, now.Add(-s.opts.Lease)).Delete(&models.Lock{})
		if stale.Error != nil {
			return stale.Error
		}
		if stale.RowsAffected > 0 {
			log.Warn().Str("lock", name).Msg("[LOCK] reaped stale lock")
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Lock{
			Name:       name,
			Owner:      owner,
			AcquiredAt: now,
		})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	return acquired, err
}

// Release frees the held locks in reverse order. Releasing twice is a no-op.
func (l *Lease) Release(ctx context.Context) {
	if l == nil {
		return
	}
	for i := len(l.names) - 1; i >= 0; i-- {
		name := l.names[i]
		err := l.svc.DB.WithContext(ctx).
			Where("name = ? AND owner = ?", name, l.owner).
			Delete(&models.Lock{}).Error
		if err != nil {
			log.Error().Err(err).Str("lock", name).Msg("[LOCK] release failed")
		}
	}
	l.names = nil
}

// With runs fn while holding the named locks.
func (s *Service) With(ctx context.Context, names []string, fn func() error) error {
	l, err := s.Acquire(ctx, names...)
	if err != nil {
		return err
	}
	defer l.Release(context.WithoutCancel(ctx))
	return fn()
}

// Reap deletes every lock older than the lease. Acquire reaps the names it
// contends on; this catches the ones left behind by crashed holders.
func (s *Service) Reap(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Where("acquired_at <= ?", s.now().Add(-s.opts.Lease)).Delete(&models.Lock{})
	return res.RowsAffected, res.Error
}
