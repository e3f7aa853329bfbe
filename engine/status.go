package engine

import "github.com/rotisserie/eris"

// Side is one of the two paddle slots of a match.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Left, Right:
		return Side(s), nil
	}
	return "", eris.Wrapf(ErrInvalidSide, "side %q", s)
}

func (s Side) Opponent() Side {
	if s == Left {
		return Right
	}
	return Left
}

// Status is the lifecycle state of a match session.
type Status string

const (
	StatusCreated           Status = "created"
	StatusWaitingForPlayers Status = "waiting_for_players"
	StatusStarted           Status = "game_started"
	StatusOver              Status = "game_over"
	StatusLeftDisconnected  Status = "left_player_disconnected"
	StatusRightDisconnected Status = "right_player_disconnected"
	StatusForfeited         Status = "player_forfeited"
	StatusEnded             Status = "game_ended"
)

var transitions = map[Status][]Status{
	StatusCreated:           {StatusWaitingForPlayers},
	StatusWaitingForPlayers: {StatusStarted, StatusForfeited, StatusLeftDisconnected, StatusRightDisconnected},
	StatusStarted:           {StatusOver, StatusLeftDisconnected, StatusRightDisconnected},
	StatusOver:              {StatusEnded},
	StatusLeftDisconnected:  {StatusEnded},
	StatusRightDisconnected: {StatusEnded},
	StatusForfeited:         {StatusEnded},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Finishing reports whether the session reached an outcome that still has to
// be reported before it ends.
func (s Status) Finishing() bool {
	switch s {
	case StatusOver, StatusLeftDisconnected, StatusRightDisconnected, StatusForfeited:
		return true
	}
	return false
}

func disconnectedStatus(side Side) Status {
	if side == Left {
		return StatusLeftDisconnected
	}
	return StatusRightDisconnected
}

var (
	ErrInvalidSide       = eris.New("invalid side")
	ErrSideTaken         = eris.New("side already taken")
	ErrIllegalTransition = eris.New("illegal status transition")
	ErrMatchClosed       = eris.New("match no longer accepts players")
)
