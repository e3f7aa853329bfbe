package engine

import "math"

// Bounds is an axis-aligned rectangle in pitch pixels. Right and Bottom are
// inclusive edges.
type Bounds struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

func (b Bounds) Right() float64  { return b.Left + b.Width - 1 }
func (b Bounds) Bottom() float64 { return b.Top + b.Height - 1 }

func (b Bounds) CenterX() float64 { return b.Right() - b.Width/2 }
func (b Bounds) CenterY() float64 { return b.Bottom() - b.Height/2 }

func (b *Bounds) MoveBy(dx, dy float64) {
	b.Left += dx
	b.Top += dy
}

func (b *Bounds) MoveTo(x, y float64) {
	b.Left = x
	b.Top = y
}

func (b *Bounds) CenterAt(x, y float64) {
	b.Left = x - b.Width/2
	b.Top = y - b.Height/2
}

// Motion describes how a body travels: speed in px/s along Angle (degrees,
// 0 = right, 90 = down). Accel is applied per second up to MaxSpeed.
type Motion struct {
	Speed     float64
	BaseSpeed float64
	MaxSpeed  float64
	Accel     float64
	Angle     float64
}

func NewMotion(speed, angle, accel, maxSpeed float64) Motion {
	if maxSpeed == 0 {
		maxSpeed = speed
	}
	return Motion{Speed: speed, BaseSpeed: speed, MaxSpeed: maxSpeed, Accel: accel, Angle: angle}
}

// Delta accelerates (if configured) and returns the displacement for dt seconds.
func (m *Motion) Delta(dt float64) (float64, float64) {
	if m.Accel != 0 {
		m.Speed += m.Accel * dt
		if m.Speed > m.MaxSpeed {
			m.Speed = m.MaxSpeed
		}
	}
	rad := m.Angle * math.Pi / 180
	return math.Cos(rad) * m.Speed * dt, math.Sin(rad) * m.Speed * dt
}

func (m *Motion) Reset() { m.Speed = m.BaseSpeed }

// Body is a moving rectangle.
type Body struct {
	Bounds
	Motion
}

func (b *Body) Step(dt float64) {
	dx, dy := b.Motion.Delta(dt)
	b.Bounds.MoveBy(dx, dy)
}

// normalizeAngle maps any angle to [0, 360).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}
