package game

// Suit of a playing card.
type Suit string

const (
	Hearts   Suit = "HEARTS"
	Diamonds Suit = "DIAMONDS"
	Clubs    Suit = "CLUBS"
	Spades   Suit = "SPADES"
)

// Rank of a playing card.
type Rank string

const (
	Ace   Rank = "A"
	Two   Rank = "2"
	Three Rank = "3"
	Four  Rank = "4"
	Five  Rank = "5"
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "10"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
)

var (
	suits = []Suit{Hearts, Diamonds, Clubs, Spades}
	ranks = []Rank{Ace, Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King}
)

// Card is a single playing card. Value is the baccarat point value and is
// fixed by the rank when the card is created.
type Card struct {
	Suit  Suit `json:"suit"`
	Rank  Rank `json:"rank"`
	Value int  `json:"value"`
}

// NewCard creates a card with its baccarat point value.
func NewCard(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank, Value: rankValue(rank)}
}

// String returns a short representation like "Q♠" or "10♥".
func (c Card) String() string {
	var symbol string
	switch c.Suit {
	case Hearts:
		symbol = "♥"
	case Diamonds:
		symbol = "♦"
	case Clubs:
		symbol = "♣"
	case Spades:
		symbol = "♠"
	}
	return string(c.Rank) + symbol
}

// rankValue maps a rank to its baccarat point value.
// A: 1, 2-9: face value, 10/J/Q/K: 0
func rankValue(r Rank) int {
	switch r {
	case Ace:
		return 1
	case Two:
		return 2
	case Three:
		return 3
	case Four:
		return 4
	case Five:
		return 5
	case Six:
		return 6
	case Seven:
		return 7
	case Eight:
		return 8
	case Nine:
		return 9
	default:
		return 0
	}
}
