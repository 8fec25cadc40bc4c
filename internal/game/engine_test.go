package game

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// manualClock fires callbacks synchronously from Advance.
type manualClock struct {
	now     time.Duration
	pending []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{at: c.now + d, f: f}
	c.pending = append(c.pending, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		var next *manualTimer
		live := c.pending[:0]
		for _, t := range c.pending {
			if t.stopped || t.fired {
				continue
			}
			live = append(live, t)
			if t.at <= target && (next == nil || t.at < next.at) {
				next = t
			}
		}
		c.pending = live
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = target
}

type recordingGateway struct {
	snapshots []RoundSnapshot
	timers    []int
	ledgers   [][]Participant
	rounds    []RoundSummary
}

func (g *recordingGateway) PublishSnapshot(s RoundSnapshot) { g.snapshots = append(g.snapshots, s) }
func (g *recordingGateway) PublishTimer(n int)              { g.timers = append(g.timers, n) }
func (g *recordingGateway) PublishLedger(p []Participant)   { g.ledgers = append(g.ledgers, p) }
func (g *recordingGateway) RecordRound(s RoundSummary)      { g.rounds = append(g.rounds, s) }

func (g *recordingGateway) count(status Phase) int {
	n := 0
	for _, s := range g.snapshots {
		if s.Status == status {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *manualClock, *recordingGateway) {
	t.Helper()
	clock := &manualClock{}
	gw := &recordingGateway{}
	base := []Option{
		WithClock(clock),
		WithRand(testRand(99)),
		WithLogger(zaptest.NewLogger(t)),
		WithRecorder(gw),
	}
	e := NewEngine(DefaultConfig(), gw, append(base, opts...)...)
	return e, clock, gw
}

// roundSeconds is one betting window plus the result dwell.
const roundSeconds = BETTING_SECONDS + 5

func TestEngine_RoundCycle(t *testing.T) {
	e, clock, gw := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	first := e.Snapshot()
	if first.Status != PhaseBetting || first.Timer != BETTING_SECONDS || first.RoundID != 1 {
		t.Fatalf("initial snapshot = %+v, want BETTING, timer 20, round 1", first)
	}

	clock.Advance(19 * time.Second)
	if s := e.Snapshot(); s.Status != PhaseBetting || s.Timer != 1 {
		t.Fatalf("after 19 ticks: status %s timer %d, want BETTING 1", s.Status, s.Timer)
	}
	if gw.count(PhaseDealing) != 0 {
		t.Fatal("dealt before the countdown finished")
	}

	clock.Advance(time.Second)
	if len(gw.timers) != BETTING_SECONDS {
		t.Fatalf("timer publishes = %d, want %d", len(gw.timers), BETTING_SECONDS)
	}
	for i, v := range gw.timers {
		if v != BETTING_SECONDS-1-i {
			t.Errorf("tick %d published %d, want %d", i, v, BETTING_SECONDS-1-i)
		}
	}
	if n := gw.count(PhaseDealing); n != 1 {
		t.Errorf("DEALING snapshots = %d, want 1", n)
	}

	dealt := e.Snapshot()
	if dealt.Status != PhaseResult || dealt.Timer != 0 {
		t.Errorf("after deal: status %s timer %d, want RESULT 0", dealt.Status, dealt.Timer)
	}
	if dealt.Result == "" || len(dealt.Hands.Player) < 2 || len(dealt.Hands.Banker) < 2 {
		t.Errorf("after deal snapshot not populated: %+v", dealt)
	}
	if dealt.Scores.Player != dealt.Hands.Player.Score() || dealt.Scores.Banker != dealt.Hands.Banker.Score() {
		t.Error("snapshot scores diverge from hands")
	}

	clock.Advance(4 * time.Second)
	if s := e.Snapshot(); s.Status != PhaseResult {
		t.Errorf("status during dwell = %s, want RESULT", s.Status)
	}

	clock.Advance(time.Second)
	next := e.Snapshot()
	if next.Status != PhaseBetting || next.Timer != BETTING_SECONDS {
		t.Errorf("next round: status %s timer %d, want BETTING 20", next.Status, next.Timer)
	}
	if next.RoundID <= dealt.RoundID {
		t.Errorf("round id %d not greater than %d", next.RoundID, dealt.RoundID)
	}
	if next.Result != "" || next.Hands.Player != nil || next.Scores != (Scores{}) {
		t.Errorf("betting snapshot not cleared: %+v", next)
	}
	if len(next.History) != 1 || next.History[0] != dealt.Result.Code() {
		t.Errorf("History = %v, want [%s]", next.History, dealt.Result.Code())
	}
}

func TestEngine_RoundIDsIncrease(t *testing.T) {
	e, clock, gw := newTestEngine(t)
	e.Start()
	clock.Advance(5 * roundSeconds * time.Second)

	var last int64
	for _, s := range gw.snapshots {
		if s.Status != PhaseBetting {
			continue
		}
		if s.RoundID <= last {
			t.Fatalf("betting round id %d after %d", s.RoundID, last)
		}
		last = s.RoundID
	}
	if last != 6 {
		t.Errorf("last round id = %d, want 6", last)
	}
}

func TestEngine_HistoryBound(t *testing.T) {
	e, clock, gw := newTestEngine(t)
	e.Start()
	clock.Advance((25*roundSeconds - 5) * time.Second)

	var results []string
	for _, s := range gw.snapshots {
		if s.Status == PhaseDealing {
			results = append(results, s.Result.Code())
		}
	}
	if len(results) != 25 {
		t.Fatalf("completed rounds = %d, want 25", len(results))
	}

	s := e.Snapshot()
	if len(s.History) != HISTORY_LIMIT {
		t.Fatalf("History length = %d, want %d", len(s.History), HISTORY_LIMIT)
	}
	for i := 0; i < HISTORY_LIMIT; i++ {
		want := results[len(results)-1-i]
		if s.History[i] != want {
			t.Errorf("History[%d] = %s, want %s", i, s.History[i], want)
		}
	}
}

func TestEngine_PlaceWager(t *testing.T) {
	e, clock, gw := newTestEngine(t)
	alice := e.Connect()
	bob := e.Connect()

	t.Run("closed before start", func(t *testing.T) {
		resp := e.PlaceWager(alice.ID, SidePlayer, 100)
		if resp.Accepted || !errors.Is(resp.Err, ErrBettingClosed) {
			t.Errorf("PlaceWager() = %+v, want betting closed", resp)
		}
	})

	e.Start()

	t.Run("accepted during betting", func(t *testing.T) {
		published := len(gw.ledgers)
		resp := e.PlaceWager(alice.ID, SidePlayer, 100)
		if !resp.Accepted || resp.Balance != DEFAULT_BALANCE-100 || resp.RoundID != 1 {
			t.Fatalf("PlaceWager() = %+v, want accepted with balance %d", resp, DEFAULT_BALANCE-100)
		}
		if len(gw.ledgers) != published+1 {
			t.Error("accepted wager did not publish the ledger")
		}
	})

	t.Run("rejections leave ledger unchanged", func(t *testing.T) {
		cases := []struct {
			id     string
			side   Side
			amount int64
			want   error
		}{
			{alice.ID, SideBanker, 50, ErrWagerActive},
			{bob.ID, SideBanker, DEFAULT_BALANCE + 1, ErrInsufficientBalance},
			{bob.ID, Side("SUITED"), 5, ErrInvalidSide},
			{bob.ID, SideTie, 0, ErrInvalidAmount},
			{"ghost", SideTie, 5, ErrUnknownParticipant},
		}
		before := e.Participants()
		published := len(gw.ledgers)
		for _, c := range cases {
			resp := e.PlaceWager(c.id, c.side, c.amount)
			if resp.Accepted || !errors.Is(resp.Err, c.want) || resp.Reason == "" {
				t.Errorf("PlaceWager(%s, %d) = %+v, want %v", c.side, c.amount, resp, c.want)
			}
		}
		after := e.Participants()
		for i := range before {
			if before[i].Balance != after[i].Balance {
				t.Errorf("%s balance changed %d -> %d", before[i].DisplayName, before[i].Balance, after[i].Balance)
			}
		}
		if len(gw.ledgers) != published {
			t.Error("rejected wagers published the ledger")
		}
	})

	clock.Advance(BETTING_SECONDS * time.Second)

	t.Run("closed after countdown", func(t *testing.T) {
		resp := e.PlaceWager(bob.ID, SideBanker, 100)
		if resp.Accepted || !errors.Is(resp.Err, ErrBettingClosed) {
			t.Errorf("PlaceWager() = %+v, want betting closed", resp)
		}
		if resp.Balance != DEFAULT_BALANCE {
			t.Errorf("Balance = %d, want %d", resp.Balance, DEFAULT_BALANCE)
		}
	})

	t.Run("wagers cleared after settlement", func(t *testing.T) {
		for _, p := range e.Participants() {
			if p.Wager != nil {
				t.Errorf("%s still has a wager", p.DisplayName)
			}
		}
	})

	clock.Advance(5 * time.Second)

	t.Run("open again next round", func(t *testing.T) {
		resp := e.PlaceWager(alice.ID, SideBanker, 10)
		if !resp.Accepted || resp.RoundID != 2 {
			t.Errorf("PlaceWager() = %+v, want accepted in round 2", resp)
		}
	})
}

func TestEngine_StackedRound(t *testing.T) {
	// P: 2+2=4 draws a 3 -> 7. B: 2+3=5 with a player third of 3 stands.
	seq := []Card{
		NewCard(Hearts, Two), NewCard(Clubs, Two),
		NewCard(Spades, Two), NewCard(Diamonds, Three),
		NewCard(Hearts, Three),
		NewCard(Clubs, Four),
	}
	cards := append(seq, Compose(1)...)
	e, clock, gw := newTestEngine(t, WithShoe(NewStackedShoe(cards, 1, testRand(3))))

	onPlayer, onBanker, onTie := e.Connect(), e.Connect(), e.Connect()
	e.Start()
	e.PlaceWager(onPlayer.ID, SidePlayer, 100)
	e.PlaceWager(onBanker.ID, SideBanker, 100)
	e.PlaceWager(onTie.ID, SideTie, 100)

	clock.Advance(BETTING_SECONDS * time.Second)

	s := e.Snapshot()
	if len(s.Hands.Player) != 3 || len(s.Hands.Banker) != 2 {
		t.Fatalf("cards dealt = %d/%d, want 3/2", len(s.Hands.Player), len(s.Hands.Banker))
	}
	if s.Hands.Player[2] != NewCard(Hearts, Three) {
		t.Errorf("player third card = %s, want 3♥", s.Hands.Player[2])
	}
	if s.Scores.Player != 7 || s.Scores.Banker != 5 {
		t.Errorf("scores = %d/%d, want 7/5", s.Scores.Player, s.Scores.Banker)
	}
	if s.Result != SidePlayer {
		t.Errorf("Result = %s, want PLAYER", s.Result)
	}
	if len(s.History) != 1 || s.History[0] != "P" {
		t.Errorf("History = %v, want [P]", s.History)
	}

	balances := map[string]int64{
		onPlayer.ID: DEFAULT_BALANCE + 100,
		onBanker.ID: DEFAULT_BALANCE - 100,
		onTie.ID:    DEFAULT_BALANCE - 100,
	}
	for _, p := range e.Participants() {
		if p.Balance != balances[p.ID] {
			t.Errorf("%s balance = %d, want %d", p.DisplayName, p.Balance, balances[p.ID])
		}
	}

	if len(gw.rounds) != 1 {
		t.Fatalf("recorded rounds = %d, want 1", len(gw.rounds))
	}
	if got := gw.rounds[0].Settlement; got != (Settlement{Wagers: 3, Staked: 300, Paid: 200}) {
		t.Errorf("Settlement = %+v, want {3 300 200}", got)
	}
}

func TestEngine_DisconnectForfeitsWager(t *testing.T) {
	e, clock, gw := newTestEngine(t)
	p := e.Connect()
	e.Start()
	e.PlaceWager(p.ID, SideTie, 500)

	if !e.Disconnect(p.ID) {
		t.Fatal("Disconnect() = false, want true")
	}
	if e.Disconnect(p.ID) {
		t.Error("second Disconnect() = true, want false")
	}
	if n := len(e.Participants()); n != 0 {
		t.Errorf("participants = %d, want 0", n)
	}

	clock.Advance(BETTING_SECONDS * time.Second)
	if len(gw.rounds) != 1 || gw.rounds[0].Settlement.Wagers != 0 {
		t.Errorf("departed wager reached settlement: %+v", gw.rounds)
	}
}

func TestEngine_SetDisplayName(t *testing.T) {
	e, _, gw := newTestEngine(t)
	p := e.Connect()
	published := len(gw.ledgers)

	if err := e.SetDisplayName(p.ID, "VeryLongNickname"); err != nil {
		t.Fatalf("SetDisplayName() error = %v", err)
	}
	got, _ := e.Participant(p.ID)
	if got.DisplayName != "VeryLongNi" {
		t.Errorf("DisplayName = %q, want VeryLongNi", got.DisplayName)
	}
	if len(gw.ledgers) != published+1 {
		t.Error("rename did not publish the ledger")
	}
	if err := e.SetDisplayName("ghost", "x"); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("SetDisplayName() error = %v, want ErrUnknownParticipant", err)
	}
}

func TestEngine_ConnectPublishesLedger(t *testing.T) {
	e, _, gw := newTestEngine(t)
	e.Connect()
	e.Connect()
	if len(gw.ledgers) != 2 || len(gw.ledgers[1]) != 2 {
		t.Errorf("ledger publishes = %v, want two growing snapshots", gw.ledgers)
	}
}

func TestEngine_StopCancelsCountdown(t *testing.T) {
	e, clock, gw := newTestEngine(t)
	e.Start()
	clock.Advance(3 * time.Second)
	e.Stop()
	clock.Advance(time.Minute)

	if len(gw.timers) != 3 {
		t.Errorf("timer publishes = %d, want 3", len(gw.timers))
	}
	if e.Running() {
		t.Error("Running() = true after Stop")
	}
	if resp := e.PlaceWager("anyone", SidePlayer, 1); resp.Accepted {
		t.Error("wager accepted on a stopped table")
	}
	if err := e.Start(); err != nil {
		t.Errorf("restart error = %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrEngineRunning) {
		t.Errorf("second Start() error = %v, want ErrEngineRunning", err)
	}
}

func TestEngine_RestartRefundsOpenWagers(t *testing.T) {
	e, clock, gw := newTestEngine(t)
	p := e.Connect()
	e.Start()
	if resp := e.PlaceWager(p.ID, SidePlayer, 100); !resp.Accepted {
		t.Fatalf("PlaceWager() rejected: %s", resp.Reason)
	}

	e.Stop()
	got, _ := e.Participant(p.ID)
	if got.Wager != nil || got.Balance != DEFAULT_BALANCE {
		t.Fatalf("after Stop: balance %d wager %+v, want refund", got.Balance, got.Wager)
	}

	if err := e.Start(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if id := e.Snapshot().RoundID; id != 2 {
		t.Errorf("RoundID after restart = %d, want 2", id)
	}
	clock.Advance(BETTING_SECONDS * time.Second)

	if len(gw.rounds) != 1 {
		t.Fatalf("settled rounds = %d, want 1", len(gw.rounds))
	}
	if s := gw.rounds[0].Settlement; s.Wagers != 0 {
		t.Errorf("round %d settled %d carried-over wagers", gw.rounds[0].RoundID, s.Wagers)
	}
}

func TestEngine_ExhaustedShoeHalts(t *testing.T) {
	shoe := NewStackedShoe([]Card{card(Ace), card(Ace), card(Ace)}, 1, testRand(1))
	shoe.threshold = 0
	e, clock, gw := newTestEngine(t, WithShoe(shoe))

	e.Start()
	clock.Advance(time.Minute)

	if err := e.Err(); !errors.Is(err, ErrShoeExhausted) {
		t.Fatalf("Err() = %v, want ErrShoeExhausted", err)
	}
	if e.Running() {
		t.Error("engine still running after exhaustion")
	}
	if len(gw.rounds) != 0 || gw.count(PhaseResult) != 0 {
		t.Error("halted round was settled")
	}
	if err := e.Start(); !errors.Is(err, ErrShoeExhausted) {
		t.Errorf("Start() after halt error = %v, want ErrShoeExhausted", err)
	}
}

func TestEngine_SnapshotIsACopy(t *testing.T) {
	e, clock, _ := newTestEngine(t)
	e.Start()
	clock.Advance(BETTING_SECONDS * time.Second)

	s := e.Snapshot()
	s.History[0] = "X"
	s.Hands.Player[0] = Card{}

	again := e.Snapshot()
	if again.History[0] == "X" || again.Hands.Player[0] == (Card{}) {
		t.Error("mutating a snapshot copy changed engine state")
	}
}
