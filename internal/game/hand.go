package game

import "strings"

// Score calculates the baccarat point total (sum of card values mod 10).
func Score(cards []Card) int {
	total := 0
	for _, c := range cards {
		total += c.Value
	}
	return total % 10
}

// IsNatural reports whether a starting two-card hand scores 8 or 9.
func IsNatural(cards []Card) bool {
	return len(cards) == 2 && Score(cards) >= 8
}

// Hand is the ordered set of cards dealt to one side.
type Hand []Card

// Score is always derived from the cards, never stored.
func (h Hand) Score() int {
	return Score(h)
}

func (h Hand) clone() Hand {
	if h == nil {
		return nil
	}
	out := make(Hand, len(h))
	copy(out, h)
	return out
}

func (h Hand) String() string {
	parts := make([]string, len(h))
	for i, c := range h {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
