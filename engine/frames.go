package engine

const (
	FrameInitial = "initial_message"
	FrameUpdate  = "update_message"
	FrameEndgame = "endgame_message"

	notStarted   = "-"
	notConnected = "not connected"
)

// InitialFrame is sent once when both sides are present.
type InitialFrame struct {
	Type       string  `json:"type"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	PaddleSize float64 `json:"paddleSize"`
	BallSize   float64 `json:"ballSize"`
}

// StateFrame carries the match state. Numeric fields hold "-" before the
// match starts and paddle/score fields hold "not connected" or "-" while a
// side is empty.
type StateFrame struct {
	Type        string `json:"type"`
	Time        any    `json:"time"`
	BallX       any    `json:"ballX"`
	BallY       any    `json:"ballY"`
	PaddleLeft  any    `json:"paddleLeft"`
	PaddleRight any    `json:"paddleRight"`
	ScoreLeft   any    `json:"scoreLeft"`
	ScoreRight  any    `json:"scoreRight"`
	Status      Status `json:"status"`
}

// KeyEvent is the client to server control frame.
type KeyEvent struct {
	MessageType string `json:"messageType"`
	Key         string `json:"key"`
	Event       string `json:"event"`
	Position    string `json:"position"`
}

// Result is what a finished match reports back to the matchmaker.
type Result struct {
	GameID     string `json:"game_id"`
	LeftScore  int    `json:"left_score"`
	RightScore int    `json:"right_score"`
	Status     Status `json:"status"`
}
