package engine

import "math/rand"

type Ball struct {
	Body
	StartAmplitude int
	EngageLeft     bool

	rng *rand.Rand
}

func NewBall(pitch Bounds, size, speed float64, startAmplitude int, accel, maxSpeed float64, rng *rand.Rand) *Ball {
	b := &Ball{
		Body: Body{
			Bounds: Bounds{Width: size, Height: size},
			Motion: NewMotion(speed, 0, accel, maxSpeed),
		},
		StartAmplitude: startAmplitude,
		EngageLeft:     rng.Intn(2) == 0,
		rng:            rng,
	}
	b.Reset(pitch)
	return b
}

// Update moves the ball and keeps it inside the pitch.
func (b *Ball) Update(dt float64, pitch Bounds) {
	b.Step(dt)
	if b.Top < pitch.Top {
		b.MoveTo(b.Left, pitch.Top)
	}
	if b.Bottom() > pitch.Bottom() {
		b.MoveTo(b.Left, pitch.Height-b.Height)
	}
	if b.Left < pitch.Left {
		b.MoveTo(pitch.Left, b.Top)
	}
	if b.Right() > pitch.Right() {
		b.MoveTo(pitch.Width-b.Width, b.Top)
	}
}

// Reset recentres the ball and serves it towards the other side than last
// time, at a random angle within the start amplitude.
func (b *Ball) Reset(pitch Bounds) {
	b.Motion.Reset()
	b.CenterAt(pitch.CenterX(), pitch.CenterY())
	b.EngageLeft = !b.EngageLeft
	angle := b.rng.Intn(2*b.StartAmplitude+1) - b.StartAmplitude
	b.Angle = float64(angle)
	if b.EngageLeft {
		b.Angle = normalizeAngle(180 - b.Angle)
	}
}

func (b *Ball) BounceWalls(pitch Bounds) {
	if b.Top == pitch.Top || b.Bottom() == pitch.Bottom() {
		b.Angle = normalizeAngle(360 - b.Angle)
	}
}

// BouncePaddle sends the ball back at an angle proportional to how far from
// the paddle centre it hit.
func (b *Ball) BouncePaddle(p *Paddle) {
	size := b.Height + p.Height + 1
	distance := b.CenterY() - p.CenterY()
	angle := distance / (size / 2) * p.Amplitude
	if p.Side == Right {
		angle = 180 - angle
	}
	b.Angle = normalizeAngle(angle)
}
