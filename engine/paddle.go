package engine

const (
	angleDown = 90
	angleUp   = 270
)

// Paddle is a one pixel wide body that only travels vertically.
type Paddle struct {
	Body
	Side      Side
	MoveSpeed float64
	Amplitude float64
}

func NewPaddle(side Side, height, speed, amplitude float64, pitch Bounds) *Paddle {
	p := &Paddle{
		Body: Body{
			Bounds: Bounds{Width: 1, Height: height},
			Motion: NewMotion(0, angleDown, 0, 0),
		},
		Side:      side,
		MoveSpeed: speed,
		Amplitude: amplitude,
	}
	x := pitch.Left - p.Width
	if side == Right {
		x = pitch.Right() + 1
	}
	p.CenterAt(x, pitch.CenterY())
	return p
}

func (p *Paddle) Update(dt float64, pitch Bounds) {
	p.Step(dt)
	if p.Top < 0 {
		p.MoveTo(p.Left, 0)
	}
	if p.Bottom() > pitch.Height {
		p.MoveTo(p.Left, pitch.Height-p.Height)
	}
}

func (p *Paddle) MoveDown() {
	p.Speed = p.MoveSpeed
	p.Angle = angleDown
}

func (p *Paddle) MoveUp() {
	p.Speed = p.MoveSpeed
	p.Angle = angleUp
}

// StopDown halts the paddle only if it is still heading down, so a late
// keyup for one direction never cancels a newer move the other way.
func (p *Paddle) StopDown() {
	if p.Angle == angleDown {
		p.Speed = 0
	}
}

func (p *Paddle) StopUp() {
	if p.Angle == angleUp {
		p.Speed = 0
	}
}

// Apply runs a named move: up, down, up_off or down_off. Unknown moves are
// ignored.
func (p *Paddle) Apply(move string) {
	switch move {
	case MoveUp:
		p.MoveUp()
	case MoveDown:
		p.MoveDown()
	case MoveUpOff:
		p.StopUp()
	case MoveDownOff:
		p.StopDown()
	}
}
