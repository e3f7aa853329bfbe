package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const (
	DefaultUpKey   = "ArrowUp"
	DefaultDownKey = "ArrowDown"

	// defaultForfeitScore is awarded to the side still present when the
	// other one never showed up or dropped out.
	defaultForfeitScore = 3
)

// Client is a connected participant able to receive frames.
type Client interface {
	Send(frame any) error
}

// Reporter receives the final result of a match.
type Reporter interface {
	ReportResult(ctx context.Context, result Result) error
}

// SnapshotStore keeps the latest state frame of a match outside the process.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, matchID string, frame StateFrame) error
}

type participant struct {
	client  Client
	actions map[string]string
}

// Session runs one match from creation to game_ended.
type Session struct {
	id       string
	settings Settings

	mu        sync.Mutex
	status    Status
	logic     *Logic
	players   map[Side]*participant
	waitStart time.Time

	clock     func() time.Time
	rng       *rand.Rand
	reporter  Reporter
	snapshots SnapshotStore

	runOnce    sync.Once
	reportOnce sync.Once
	done       chan struct{}
}

type Option func(*Session)

func WithClock(clock func() time.Time) Option { return func(s *Session) { s.clock = clock } }
func WithRand(rng *rand.Rand) Option          { return func(s *Session) { s.rng = rng } }
func WithReporter(r Reporter) Option          { return func(s *Session) { s.reporter = r } }
func WithSnapshots(st SnapshotStore) Option   { return func(s *Session) { s.snapshots = st } }

func NewSession(id string, settings Settings, opts ...Option) *Session {
	s := &Session{
		id:       id,
		settings: settings,
		status:   StatusCreated,
		players:  map[Side]*participant{},
		clock:    time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Done is closed once the session reached game_ended.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setStatus(to Status) error {
	if !CanTransition(s.status, to) {
		return eris.Wrapf(ErrIllegalTransition, "match %s: %s -> %s", s.id, s.status, to)
	}
	s.status = to
	return nil
}

// Join seats client on side. upKey and downKey name the keys the client
// sends for paddle moves; empty values fall back to the arrow keys.
func (s *Session) Join(side Side, client Client, upKey, downKey string) error {
	if upKey == "" {
		upKey = DefaultUpKey
	}
	if downKey == "" {
		downKey = DefaultDownKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusCreated && s.status != StatusWaitingForPlayers {
		return eris.Wrapf(ErrMatchClosed, "match %s is %s", s.id, s.status)
	}
	if _, taken := s.players[side]; taken {
		return eris.Wrapf(ErrSideTaken, "match %s side %s", s.id, side)
	}
	s.players[side] = &participant{
		client:  client,
		actions: map[string]string{upKey: MoveUp, downKey: MoveDown},
	}
	log.Info().Str("match_id", s.id).Str("side", string(side)).
		Msgf("[MATCH] %s player connected with %s for up and %s for down", side, upKey, downKey)
	return nil
}

// Leave frees side if it is still held by client. Once the session has begun
// this is a disconnect and the next tick ends the match.
func (s *Session) Leave(side Side, client Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[side]
	if !ok || p.client != client {
		return
	}
	delete(s.players, side)
	if s.status == StatusWaitingForPlayers || s.status == StatusStarted {
		_ = s.setStatus(disconnectedStatus(side))
	}
	log.Info().Str("match_id", s.id).Str("side", string(side)).Str("status", string(s.status)).
		Msg("[MATCH] player disconnected")
}

// KeyEvent applies a keydown/keyup event for side.
func (s *Session) KeyEvent(side Side, key, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[side]
	if !ok || s.logic == nil {
		return
	}
	action, ok := p.actions[key]
	if !ok {
		return
	}
	if event == "keyup" {
		action += "_off"
	}
	s.logic.Move(side, action)
}

// Begin moves a created session to waiting_for_players and starts the
// forfeit timer. It returns false when the session was already begun.
func (s *Session) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setStatus(StatusWaitingForPlayers); err != nil {
		return false
	}
	s.waitStart = s.clock()
	return true
}

// Run drives the session until it ends or ctx is cancelled. It must be called
// after Begin; only the first call does anything.
func (s *Session) Run(ctx context.Context) {
	s.runOnce.Do(func() { s.run(ctx) })
}

func (s *Session) run(ctx context.Context) {
	ticker := time.NewTicker(s.settings.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Warn().Str("match_id", s.id).Msg("[MATCH] loop cancelled before the match ended")
			return
		case <-ticker.C:
		}
		if !s.Step(ctx) {
			break
		}
	}
	s.end(ctx)
}

// Step performs one tick. It returns false once the session reached an
// outcome and must be ended.
func (s *Session) Step(ctx context.Context) bool {
	s.mu.Lock()
	var frames []any
	switch s.status {
	case StatusWaitingForPlayers:
		frames = s.waitTick()
	case StatusStarted:
		s.logic.Update(s.clock())
		if s.logic.Finished() {
			_ = s.setStatus(StatusOver)
		}
		frames = []any{s.stateFrame(FrameUpdate)}
	}
	running := !s.status.Finishing() && s.status != StatusEnded
	clients := s.clients()
	state := s.stateFrame(FrameUpdate)
	s.mu.Unlock()

	s.broadcast(clients, frames...)
	if len(frames) > 0 {
		s.saveSnapshot(ctx, state)
	}
	return running
}

func (s *Session) waitTick() []any {
	if s.clock().Sub(s.waitStart) >= s.settings.ForfeitTimeout {
		_ = s.setStatus(StatusForfeited)
		log.Info().Str("match_id", s.id).Msg("[MATCH] forfeited, players did not show up in time")
		return nil
	}
	if len(s.players) < 2 {
		return nil
	}
	s.logic = NewLogic(s.settings, s.rng)
	s.logic.Start(s.clock())
	_ = s.setStatus(StatusStarted)
	log.Info().Str("match_id", s.id).Msg("[MATCH] both players present, match started")
	return []any{s.initialFrame()}
}

// end reports the result, sends the endgame frame and releases the players.
func (s *Session) end(ctx context.Context) {
	s.mu.Lock()
	result := s.result()
	s.mu.Unlock()

	s.reportOnce.Do(func() {
		if s.reporter == nil {
			return
		}
		if err := s.reporter.ReportResult(ctx, result); err != nil {
			log.Error().Err(err).Str("match_id", s.id).Msg("[MATCH] failed to submit result")
		}
	})

	s.mu.Lock()
	endgame := s.stateFrame(FrameEndgame)
	clients := s.clients()
	s.players = map[Side]*participant{}
	s.status = StatusEnded
	s.mu.Unlock()

	s.broadcast(clients, endgame)
	s.saveSnapshot(ctx, endgame)
	close(s.done)
	log.Info().Str("match_id", s.id).Int("left", result.LeftScore).Int("right", result.RightScore).
		Str("outcome", string(result.Status)).Msg("[MATCH] match ended")
}

// result computes the score to report. A side missing at the end loses by
// default.
func (s *Session) result() Result {
	r := Result{GameID: s.id, Status: s.status}
	_, left := s.players[Left]
	_, right := s.players[Right]
	switch {
	case left && !right:
		r.LeftScore = defaultForfeitScore
	case right && !left:
		r.RightScore = defaultForfeitScore
	case s.logic != nil:
		r.LeftScore = s.logic.Scores[Left]
		r.RightScore = s.logic.Scores[Right]
	}
	return r
}

// Snapshot returns the current state frame.
func (s *Session) Snapshot() StateFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateFrame(FrameUpdate)
}

func (s *Session) initialFrame() InitialFrame {
	return InitialFrame{
		Type:       FrameInitial,
		Width:      s.settings.PitchWidth,
		Height:     s.settings.PitchHeight,
		PaddleSize: s.settings.PaddleSize,
		BallSize:   s.settings.BallSize,
	}
}

func (s *Session) stateFrame(kind string) StateFrame {
	f := StateFrame{
		Type:        kind,
		Time:        notStarted,
		BallX:       notStarted,
		BallY:       notStarted,
		PaddleLeft:  notConnected,
		PaddleRight: notConnected,
		ScoreLeft:   notStarted,
		ScoreRight:  notStarted,
		Status:      s.status,
	}
	if s.logic == nil {
		return f
	}
	f.Time = s.logic.Elapsed().Seconds()
	f.BallX = s.logic.Ball.Left
	f.BallY = s.logic.Ball.Top
	if _, ok := s.players[Left]; ok {
		f.PaddleLeft = s.logic.Paddles[Left].Top
		f.ScoreLeft = s.logic.Scores[Left]
	}
	if _, ok := s.players[Right]; ok {
		f.PaddleRight = s.logic.Paddles[Right].Top
		f.ScoreRight = s.logic.Scores[Right]
	}
	return f
}

// clients lists distinct connected clients; a local match may seat the same
// client on both sides.
func (s *Session) clients() []Client {
	seen := make(map[Client]bool, len(s.players))
	out := make([]Client, 0, len(s.players))
	for _, side := range []Side{Left, Right} {
		p, ok := s.players[side]
		if !ok || seen[p.client] {
			continue
		}
		seen[p.client] = true
		out = append(out, p.client)
	}
	return out
}

func (s *Session) broadcast(clients []Client, frames ...any) {
	for _, frame := range frames {
		for _, c := range clients {
			if err := c.Send(frame); err != nil {
				log.Warn().Err(err).Str("match_id", s.id).Msg("[MATCH] failed to notify player")
			}
		}
	}
}

func (s *Session) saveSnapshot(ctx context.Context, frame StateFrame) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.SaveSnapshot(ctx, s.id, frame); err != nil {
		log.Debug().Err(err).Str("match_id", s.id).Msg("[MATCH] snapshot not saved")
	}
}
