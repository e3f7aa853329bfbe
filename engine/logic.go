package engine

import (
	"math/rand"
	"time"
)

const (
	MoveUp      = "up"
	MoveDown    = "down"
	MoveUpOff   = "up_off"
	MoveDownOff = "down_off"
)

// Logic is the physics and scoring of one match. It is not safe for
// concurrent use; Session serialises access to it.
type Logic struct {
	Pitch   Bounds
	Ball    *Ball
	Paddles map[Side]*Paddle
	Scores  map[Side]int

	maxPoints int
	pause     time.Duration

	startedAt  time.Time
	lastUpdate time.Time
	pausedAt   time.Time
	paused     bool
	finished   bool
}

func NewLogic(s Settings, rng *rand.Rand) *Logic {
	pitch := Bounds{Width: s.PitchWidth, Height: s.PitchHeight}
	return &Logic{
		Pitch: pitch,
		Ball:  NewBall(pitch, s.BallSize, s.BallSpeed, s.StartAmplitude, s.BallAccel, s.BallMaxSpeed, rng),
		Paddles: map[Side]*Paddle{
			Left:  NewPaddle(Left, s.PaddleSize, s.PaddleSpeed, s.PaddleAmplitude, pitch),
			Right: NewPaddle(Right, s.PaddleSize, s.PaddleSpeed, s.PaddleAmplitude, pitch),
		},
		Scores:    map[Side]int{Left: 0, Right: 0},
		maxPoints: s.MaxPoints,
		pause:     s.PauseDuration,
	}
}

// Start begins the chronometer with a serve pause.
func (l *Logic) Start(now time.Time) {
	l.startedAt = now
	l.lastUpdate = now
	l.triggerPause(now)
}

// Update advances the simulation to now.
func (l *Logic) Update(now time.Time) {
	dt := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.checkFinish()
	if l.finished {
		return
	}
	for _, side := range []Side{Left, Right} {
		l.Paddles[side].Update(dt, l.Pitch)
	}
	l.checkPause(now)
	if l.paused {
		return
	}
	l.Ball.Update(dt, l.Pitch)
	l.handleCollisions(now)
}

func (l *Logic) handleCollisions(now time.Time) {
	l.Ball.BounceWalls(l.Pitch)
	if l.checkGoal(Left) || l.checkGoal(Right) {
		l.triggerPause(now)
	}
}

// checkGoal handles the ball reaching side's goal line. It returns true when
// the opponent scored.
func (l *Logic) checkGoal(side Side) bool {
	b := l.Ball
	atLine := (side == Left && b.Left == l.Pitch.Left) || (side == Right && b.Right() == l.Pitch.Right())
	if !atLine {
		return false
	}
	p := l.Paddles[side]
	if b.Top <= p.Bottom()+1 && b.Bottom() >= p.Top-1 {
		b.BouncePaddle(p)
		return false
	}
	l.Scores[side.Opponent()]++
	b.Reset(l.Pitch)
	return true
}

func (l *Logic) Move(side Side, move string) {
	if p, ok := l.Paddles[side]; ok {
		p.Apply(move)
	}
}

func (l *Logic) triggerPause(now time.Time) {
	l.pausedAt = now
	l.paused = true
}

func (l *Logic) checkPause(now time.Time) {
	if l.paused && now.Sub(l.pausedAt) >= l.pause {
		l.paused = false
	}
}

func (l *Logic) checkFinish() {
	for _, score := range l.Scores {
		if score == l.maxPoints {
			l.finished = true
		}
	}
}

func (l *Logic) Finished() bool { return l.finished }
func (l *Logic) Paused() bool   { return l.paused }

// Elapsed is the match time at the last update.
func (l *Logic) Elapsed() time.Duration { return l.lastUpdate.Sub(l.startedAt) }
