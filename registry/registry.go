// Package registry owns the live match sessions of a game server instance.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pongmatch/engine"
)

var ErrNotFound = eris.New("match not found")

// Factory builds a new session for a match id.
type Factory func(id string) *engine.Session

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*engine.Session

	factory Factory
	ctx     context.Context
	wg      sync.WaitGroup
}

// New returns a registry whose session loops stop when ctx is cancelled.
func New(ctx context.Context, factory Factory) *Registry {
	return &Registry{
		sessions: map[string]*engine.Session{},
		factory:  factory,
		ctx:      ctx,
	}
}

// Create registers a session for id. Creating an existing id is a no-op
// that returns the existing session with created=false.
func (r *Registry) Create(id string) (*engine.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		log.Debug().Str("match_id", id).Msg("[REGISTRY] match already exists")
		return s, false
	}
	s := r.factory(id)
	r.sessions[id] = s
	log.Debug().Str("match_id", id).Msg("[REGISTRY] match created")
	return s, true
}

func (r *Registry) Get(id string) (*engine.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "match %s", id)
	}
	return s, nil
}

// Start opens the match to players and launches its loop. Starting an
// already started match does nothing.
func (r *Registry) Start(id string) (*engine.Session, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.Begin() {
		log.Debug().Str("match_id", id).Str("status", string(s.Status())).Msg("[REGISTRY] match already started")
		return s, nil
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		s.Run(r.ctx)
	}()
	log.Info().Str("match_id", id).Msg("[REGISTRY] match started, waiting for players")
	return s, nil
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Collect drops every session that reached game_ended and returns how many
// were removed.
func (r *Registry) Collect() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.Status() == engine.StatusEnded {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Int("live", len(r.sessions)).Msg("[REGISTRY] collected ended matches")
	}
	return removed
}

// Schedule registers Collect as a recurring job on sched.
func (r *Registry) Schedule(sched gocron.Scheduler, every time.Duration) error {
	_, err := sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() { r.Collect() }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return eris.Wrap(err, "schedule registry collection")
	}
	return nil
}

// Wait blocks until every running session loop returned.
func (r *Registry) Wait() { r.wg.Wait() }
