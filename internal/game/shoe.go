package game

import (
	crand "crypto/rand"
	"errors"
	"math/rand/v2"
)

const (
	DEFAULT_DECKS            = 8
	CARDS_PER_DECK           = 52
	MIN_CARDS_BEFORE_SHUFFLE = 20
)

var ErrShoeExhausted = errors.New("shoe exhausted")

// Compose builds decks x 52 cards, one of each suit/rank pair per deck.
func Compose(decks int) []Card {
	cards := make([]Card, 0, decks*CARDS_PER_DECK)
	for d := 0; d < decks; d++ {
		for _, suit := range suits {
			for _, rank := range ranks {
				cards = append(cards, NewCard(suit, rank))
			}
		}
	}
	return cards
}

// Shuffle permutes cards in place with Fisher-Yates.
func Shuffle(cards []Card, rng *rand.Rand) {
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// NewRand returns a ChaCha8 generator seeded from crypto/rand.
func NewRand() *rand.Rand {
	var seed [32]byte
	crand.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

// Shoe is the depleting pool of cards dealt from the front.
type Shoe struct {
	cards     []Card
	decks     int
	threshold int
	rng       *rand.Rand
}

// NewShoe composes and shuffles a fresh shoe of the given number of decks.
func NewShoe(decks int, rng *rand.Rand) *Shoe {
	s := &Shoe{
		decks:     decks,
		threshold: MIN_CARDS_BEFORE_SHUFFLE,
		rng:       rng,
	}
	s.reshuffle()
	return s
}

// NewStackedShoe returns a shoe that deals cards in exactly the given order.
// Once it drops below the reshuffle threshold it is replaced like any other shoe.
func NewStackedShoe(cards []Card, decks int, rng *rand.Rand) *Shoe {
	stacked := make([]Card, len(cards))
	copy(stacked, cards)
	return &Shoe{
		cards:     stacked,
		decks:     decks,
		threshold: MIN_CARDS_BEFORE_SHUFFLE,
		rng:       rng,
	}
}

// Len returns the number of cards left.
func (s *Shoe) Len() int {
	return len(s.cards)
}

// Draw removes and returns the next card.
func (s *Shoe) Draw() (Card, error) {
	if len(s.cards) == 0 {
		return Card{}, ErrShoeExhausted
	}
	card := s.cards[0]
	s.cards = s.cards[1:]
	return card, nil
}

// Prepare replaces the whole shoe when fewer than the threshold cards remain.
// It reports whether a reshuffle happened.
func (s *Shoe) Prepare() bool {
	if len(s.cards) >= s.threshold {
		return false
	}
	s.reshuffle()
	return true
}

func (s *Shoe) reshuffle() {
	cards := Compose(s.decks)
	Shuffle(cards, s.rng)
	s.cards = cards
}
