package game

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DEFAULT_BALANCE = 10000
	MAX_NAME_LENGTH = 10
	// MAX_WAGER keeps every payout multiple inside int64.
	MAX_WAGER = 1_000_000_000_000
)

var (
	ErrUnknownParticipant  = errors.New("unknown participant")
	ErrInvalidSide         = errors.New("invalid side")
	ErrInvalidAmount       = errors.New("amount must be a positive integer")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWagerActive         = errors.New("wager already placed this round")
)

type Wager struct {
	Side   Side  `json:"side"`
	Amount int64 `json:"amount"`
}

// Participant is one connected seat at the table. Balance is debited when a
// wager is accepted, so Balance never includes an outstanding stake.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Balance     int64  `json:"balance"`
	Wager       *Wager `json:"wager,omitempty"`
}

func (p Participant) clone() Participant {
	if p.Wager != nil {
		w := *p.Wager
		p.Wager = &w
	}
	return p
}

// Settlement totals for one round.
type Settlement struct {
	Wagers int   `json:"wagers"`
	Staked int64 `json:"staked"`
	Paid   int64 `json:"paid"`
}

// Ledger tracks balances and active wagers. It is not safe for concurrent
// use; the engine serialises every call.
type Ledger struct {
	participants map[string]*Participant
	order        []string
	startBalance int64
}

func NewLedger(startBalance int64) *Ledger {
	return &Ledger{
		participants: make(map[string]*Participant),
		startBalance: startBalance,
	}
}

// Join registers a new participant with the default balance and a generated name.
func (l *Ledger) Join() Participant {
	id := uuid.NewString()
	p := &Participant{
		ID:          id,
		DisplayName: "Guest-" + strings.ToUpper(id[:4]),
		Balance:     l.startBalance,
	}
	l.participants[id] = p
	l.order = append(l.order, id)
	return p.clone()
}

// Leave drops a participant together with any outstanding wager. The stake
// is not refunded.
func (l *Ledger) Leave(id string) (Participant, bool) {
	p, ok := l.participants[id]
	if !ok {
		return Participant{}, false
	}
	delete(l.participants, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return *p, true
}

// Rename sets the display name, truncated to MAX_NAME_LENGTH runes.
func (l *Ledger) Rename(id, name string) (Participant, error) {
	p, ok := l.participants[id]
	if !ok {
		return Participant{}, ErrUnknownParticipant
	}
	if name = TruncateName(name); name != "" {
		p.DisplayName = name
	}
	return p.clone(), nil
}

// TruncateName trims surrounding whitespace and cuts the name to MAX_NAME_LENGTH runes.
func TruncateName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= MAX_NAME_LENGTH {
		return name
	}
	return string([]rune(name)[:MAX_NAME_LENGTH])
}

// Get returns a copy of a participant.
func (l *Ledger) Get(id string) (Participant, bool) {
	p, ok := l.participants[id]
	if !ok {
		return Participant{}, false
	}
	return p.clone(), true
}

// Accept validates and books a wager, debiting the stake immediately.
func (l *Ledger) Accept(id string, side Side, amount int64) (Participant, error) {
	p, ok := l.participants[id]
	if !ok {
		return Participant{}, ErrUnknownParticipant
	}
	if !side.Valid() {
		return p.clone(), fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	if amount <= 0 || amount > MAX_WAGER {
		return p.clone(), fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if p.Wager != nil {
		return p.clone(), ErrWagerActive
	}
	if amount > p.Balance {
		return p.clone(), fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, p.Balance, amount)
	}

	p.Balance -= amount
	p.Wager = &Wager{Side: side, Amount: amount}
	return p.clone(), nil
}

// Payout returns the amount credited back for a wager, stake included.
//
//	PLAYER win: x2, BANKER win: x1.95 (floored), TIE win: x9
//	PLAYER/BANKER on a TIE result: stake returned
//	anything else: 0
func Payout(w Wager, result Side) int64 {
	switch {
	case w.Side == result && result == SidePlayer:
		return w.Amount * 2
	case w.Side == result && result == SideBanker:
		return w.Amount * 195 / 100
	case w.Side == result && result == SideTie:
		return w.Amount * 9
	case result == SideTie:
		return w.Amount
	default:
		return 0
	}
}

// Settle credits every active wager for the given result and clears all wagers.
func (l *Ledger) Settle(result Side) Settlement {
	var s Settlement
	for _, id := range l.order {
		p := l.participants[id]
		if p.Wager == nil {
			continue
		}
		payout := Payout(*p.Wager, result)
		p.Balance += payout

		s.Wagers++
		s.Staked += p.Wager.Amount
		s.Paid += payout
		p.Wager = nil
	}
	return s
}

// Refund returns every active stake to its owner and clears the wagers.
// Used when a round ends without a deal.
func (l *Ledger) Refund() Settlement {
	var s Settlement
	for _, id := range l.order {
		p := l.participants[id]
		if p.Wager == nil {
			continue
		}
		p.Balance += p.Wager.Amount

		s.Wagers++
		s.Staked += p.Wager.Amount
		s.Paid += p.Wager.Amount
		p.Wager = nil
	}
	return s
}

// Participants returns copies in join order.
func (l *Ledger) Participants() []Participant {
	out := make([]Participant, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.participants[id].clone())
	}
	return out
}

func (l *Ledger) Len() int {
	return len(l.participants)
}
