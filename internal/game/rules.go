package game

import (
	"fmt"
	"strings"
)

// Side is a betting position and also the outcome of a round.
type Side string

const (
	SidePlayer Side = "PLAYER"
	SideBanker Side = "BANKER"
	SideTie    Side = "TIE"
)

// Valid reports whether s is one of the three betting positions.
func (s Side) Valid() bool {
	switch s {
	case SidePlayer, SideBanker, SideTie:
		return true
	}
	return false
}

// NormalizeSide accepts sides in any case with surrounding whitespace.
func NormalizeSide(s Side) Side {
	return Side(strings.ToUpper(strings.TrimSpace(string(s))))
}

// Code returns the single-letter history code (P, B or T).
func (s Side) Code() string {
	switch s {
	case SidePlayer:
		return "P"
	case SideBanker:
		return "B"
	case SideTie:
		return "T"
	}
	return ""
}

// PlayerDraws reports whether the player takes a third card on a two-card score.
func PlayerDraws(score int) bool {
	return score <= 5
}

// BankerDraws implements the banker third-card table. playerThird is the
// point value of the player's third card and is ignored when the player stood.
func BankerDraws(bankerScore int, playerDrew bool, playerThird int) bool {
	if !playerDrew {
		return bankerScore <= 5
	}
	switch bankerScore {
	case 0, 1, 2:
		return true
	case 3:
		return playerThird != 8
	case 4:
		return playerThird >= 2 && playerThird <= 7
	case 5:
		return playerThird >= 4 && playerThird <= 7
	case 6:
		return playerThird == 6 || playerThird == 7
	default:
		return false
	}
}

// Resolve compares final scores.
func Resolve(playerScore, bankerScore int) Side {
	switch {
	case playerScore > bankerScore:
		return SidePlayer
	case bankerScore > playerScore:
		return SideBanker
	default:
		return SideTie
	}
}

// RoundResult is a fully dealt and resolved hand.
type RoundResult struct {
	Player      Hand
	Banker      Hand
	PlayerScore int
	BankerScore int
	Result      Side
}

// DealRound deals two cards to the player, two to the banker, then applies
// the third-card rules. Running out of cards is an invariant violation and
// is returned wrapped in ErrShoeExhausted.
func DealRound(shoe *Shoe) (RoundResult, error) {
	var res RoundResult
	draw := func(h *Hand) error {
		c, err := shoe.Draw()
		if err != nil {
			return fmt.Errorf("dealing card %d: %w", len(res.Player)+len(res.Banker)+1, err)
		}
		*h = append(*h, c)
		return nil
	}

	for _, h := range []*Hand{&res.Player, &res.Player, &res.Banker, &res.Banker} {
		if err := draw(h); err != nil {
			return RoundResult{}, err
		}
	}

	if !IsNatural(res.Player) && !IsNatural(res.Banker) {
		playerDrew := false
		playerThird := 0
		if PlayerDraws(res.Player.Score()) {
			if err := draw(&res.Player); err != nil {
				return RoundResult{}, err
			}
			playerDrew = true
			playerThird = res.Player[2].Value
		}
		if BankerDraws(res.Banker.Score(), playerDrew, playerThird) {
			if err := draw(&res.Banker); err != nil {
				return RoundResult{}, err
			}
		}
	}

	res.PlayerScore = res.Player.Score()
	res.BankerScore = res.Banker.Score()
	res.Result = Resolve(res.PlayerScore, res.BankerScore)
	return res, nil
}
