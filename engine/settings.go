package engine

import "time"

// Settings are the fixed parameters of a match.
type Settings struct {
	PitchWidth      float64
	PitchHeight     float64
	BallSize        float64
	BallSpeed       float64
	BallAccel       float64
	BallMaxSpeed    float64
	StartAmplitude  int
	PaddleSize      float64
	PaddleSpeed     float64
	PaddleAmplitude float64
	PauseDuration   time.Duration
	TickInterval    time.Duration
	ForfeitTimeout  time.Duration
	MaxPoints       int
}

func DefaultSettings() Settings {
	return Settings{
		PitchWidth:      480,
		PitchHeight:     360,
		BallSize:        5,
		BallSpeed:       200,
		BallAccel:       15,
		BallMaxSpeed:    500,
		StartAmplitude:  60,
		PaddleSize:      60,
		PaddleSpeed:     300,
		PaddleAmplitude: 60,
		PauseDuration:   1500 * time.Millisecond,
		TickInterval:    30 * time.Millisecond,
		ForfeitTimeout:  60 * time.Second,
		MaxPoints:       3,
	}
}
