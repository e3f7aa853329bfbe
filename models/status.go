package models

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var ErrIllegalTransition = eris.New("illegal record status transition")

type GameType string

const (
	Online GameType = "online"
	Local  GameType = "local"
)

func ParseGameType(s string) (GameType, error) {
	switch GameType(s) {
	case "":
		return Online, nil
	case Online, Local:
		return GameType(s), nil
	}
	return "", fmt.Errorf("invalid type %q (expected online or local)", s)
}

type GameStatus string

const (
	GameWaitingForPlayers GameStatus = "waiting_for_players"
	GameScheduled         GameStatus = "scheduled"
	GameInProgress        GameStatus = "in_progress"
	GameFinished          GameStatus = "finished"
)

// A waiting game may finish without being played when the match server
// reports a forfeit.
var gameTransitions = map[GameStatus][]GameStatus{
	GameWaitingForPlayers: {GameInProgress, GameFinished},
	GameScheduled:         {GameInProgress},
	GameInProgress:        {GameFinished},
}

func ParseGameStatus(s string) (GameStatus, error) {
	switch GameStatus(s) {
	case GameWaitingForPlayers, GameScheduled, GameInProgress, GameFinished:
		return GameStatus(s), nil
	}
	return "", fmt.Errorf("invalid game status %q", s)
}

func (s GameStatus) CanTransition(to GameStatus) bool {
	for _, next := range gameTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type TournamentStatus string

const (
	TournamentWaitingForPlayers TournamentStatus = "waiting_for_players"
	TournamentInProgress        TournamentStatus = "in_progress"
	TournamentFinished          TournamentStatus = "finished"
)

var tournamentTransitions = map[TournamentStatus][]TournamentStatus{
	TournamentWaitingForPlayers: {TournamentInProgress},
	TournamentInProgress:        {TournamentFinished},
}

func ParseTournamentStatus(s string) (TournamentStatus, error) {
	switch TournamentStatus(s) {
	case TournamentWaitingForPlayers, TournamentInProgress, TournamentFinished:
		return TournamentStatus(s), nil
	}
	return "", fmt.Errorf("invalid tournament status %q", s)
}

func (s TournamentStatus) CanTransition(to TournamentStatus) bool {
	for _, next := range tournamentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
