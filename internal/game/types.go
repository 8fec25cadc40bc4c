package game

import (
	"time"
)

// Phase of the table.
type Phase string

const (
	PhaseBetting Phase = "BETTING"
	PhaseDealing Phase = "DEALING"
	PhaseResult  Phase = "RESULT"
)

type Hands struct {
	Player Hand `json:"player"`
	Banker Hand `json:"banker"`
}

type Scores struct {
	Player int `json:"player"`
	Banker int `json:"banker"`
}

// RoundSnapshot is the externally visible table state.
type RoundSnapshot struct {
	Status  Phase    `json:"status"`
	Timer   int      `json:"timer"`
	History []string `json:"history"`
	Hands   Hands    `json:"hands"`
	Scores  Scores   `json:"scores"`
	Result  Side     `json:"result,omitempty"`
	RoundID int64    `json:"round_id"`
}

func (s RoundSnapshot) clone() RoundSnapshot {
	history := make([]string, len(s.History))
	copy(history, s.History)
	s.History = history
	s.Hands = Hands{Player: s.Hands.Player.clone(), Banker: s.Hands.Banker.clone()}
	return s
}

// RoundSummary is emitted once per settled round for archiving.
type RoundSummary struct {
	RoundID     int64      `json:"round_id"`
	Result      Side       `json:"result"`
	PlayerCards Hand       `json:"player_cards"`
	BankerCards Hand       `json:"banker_cards"`
	PlayerScore int        `json:"player_score"`
	BankerScore int        `json:"banker_score"`
	Settlement  Settlement `json:"settlement"`
	SettledAt   time.Time  `json:"settled_at"`
}

type WagerResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Balance  int64  `json:"balance"`
	RoundID  int64  `json:"round_id"`
	Err      error  `json:"-"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
