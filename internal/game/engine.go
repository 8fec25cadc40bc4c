package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	BETTING_SECONDS = 20
	TICK_INTERVAL   = 1 * time.Second
	RESULT_DELAY    = 5000 * time.Millisecond
	HISTORY_LIMIT   = 20
)

var (
	ErrBettingClosed = errors.New("betting is closed")
	ErrEngineRunning = errors.New("engine already running")
)

type Config struct {
	Decks           int
	BettingSeconds  int
	ResultDelay     time.Duration
	StartingBalance int64
}

func DefaultConfig() Config {
	return Config{
		Decks:           DEFAULT_DECKS,
		BettingSeconds:  BETTING_SECONDS,
		ResultDelay:     RESULT_DELAY,
		StartingBalance: DEFAULT_BALANCE,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Decks <= 0 {
		c.Decks = d.Decks
	}
	if c.BettingSeconds <= 0 {
		c.BettingSeconds = d.BettingSeconds
	}
	if c.ResultDelay <= 0 {
		c.ResultDelay = d.ResultDelay
	}
	if c.StartingBalance <= 0 {
		c.StartingBalance = d.StartingBalance
	}
	return c
}

// TableState is everything one table owns: the shoe, the ledger and the
// visible snapshot. Only the engine holding it may touch it.
type TableState struct {
	shoe     *Shoe
	ledger   *Ledger
	snapshot RoundSnapshot
}

// Engine drives one table through BETTING -> DEALING -> RESULT -> BETTING.
// A single mutex serialises timer callbacks and inbound calls, so a wager
// either lands before the deal of its round or is rejected.
type Engine struct {
	cfg      Config
	gateway  Gateway
	recorder RoundRecorder
	clock    Clock
	rng      *rand.Rand
	logger   *zap.Logger

	mu      sync.Mutex
	state   TableState
	timer   Timer
	gen     uint64
	running bool
	err     error
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithShoe replaces the initial shoe, e.g. with a stacked one.
func WithShoe(s *Shoe) Option {
	return func(e *Engine) { e.state.shoe = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithRecorder(r RoundRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func NewEngine(cfg Config, gateway Gateway, opts ...Option) *Engine {
	if gateway == nil {
		gateway = nopGateway{}
	}
	e := &Engine{
		cfg:     cfg.withDefaults(),
		gateway: gateway,
		clock:   realClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = NewRand()
	}
	if e.state.shoe == nil {
		e.state.shoe = NewShoe(e.cfg.Decks, e.rng)
	}
	e.state.ledger = NewLedger(e.cfg.StartingBalance)
	e.state.snapshot = RoundSnapshot{Status: PhaseBetting, History: []string{}}
	return e
}

// Start opens the first betting window.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return e.err
	}
	if e.running {
		return ErrEngineRunning
	}
	e.running = true
	e.logger.Info("table started",
		zap.Int("decks", e.cfg.Decks),
		zap.Int("betting_seconds", e.cfg.BettingSeconds),
		zap.Duration("result_delay", e.cfg.ResultDelay),
	)
	e.startBetting()
	return nil
}

// Stop cancels the pending timer and refunds wagers of the interrupted
// round. The table can be started again and opens a new round.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	e.cancelTimer()
	e.refund()
	e.logger.Info("table stopped", zap.Int64("round_id", e.state.snapshot.RoundID))
}

func (e *Engine) refund() {
	r := e.state.ledger.Refund()
	if r.Wagers == 0 {
		return
	}
	e.logger.Info("wagers refunded",
		zap.Int64("round_id", e.state.snapshot.RoundID),
		zap.Int("wagers", r.Wagers),
		zap.Int64("amount", r.Paid),
	)
	e.gateway.PublishLedger(e.state.ledger.Participants())
}

// Err returns the fatal error that halted the table, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) Snapshot() RoundSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.snapshot.clone()
}

func (e *Engine) Participants() []Participant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ledger.Participants()
}

func (e *Engine) Participant(id string) (Participant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ledger.Get(id)
}

// Connect seats a new participant.
func (e *Engine) Connect() Participant {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.state.ledger.Join()
	e.logger.Info("participant joined",
		zap.String("participant_id", p.ID),
		zap.String("display_name", p.DisplayName),
		zap.Int("seated", e.state.ledger.Len()),
	)
	e.gateway.PublishLedger(e.state.ledger.Participants())
	return p
}

// Disconnect removes a participant. An outstanding wager is forfeited.
func (e *Engine) Disconnect(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.state.ledger.Leave(id)
	if !ok {
		return false
	}
	if p.Wager != nil {
		e.logger.Warn("participant left with open wager",
			zap.String("participant_id", id),
			zap.String("side", string(p.Wager.Side)),
			zap.Int64("amount", p.Wager.Amount),
		)
	}
	e.logger.Info("participant left", zap.String("participant_id", id), zap.Int("seated", e.state.ledger.Len()))
	e.gateway.PublishLedger(e.state.ledger.Participants())
	return true
}

func (e *Engine) SetDisplayName(id, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.state.ledger.Rename(id, name); err != nil {
		return err
	}
	e.gateway.PublishLedger(e.state.ledger.Participants())
	return nil
}

// PlaceWager books a wager for the current round. Rejections leave the
// ledger untouched and carry the reason in the response.
func (e *Engine) PlaceWager(id string, side Side, amount int64) WagerResponse {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp := WagerResponse{RoundID: e.state.snapshot.RoundID}
	if !e.running || e.state.snapshot.Status != PhaseBetting {
		p, ok := e.state.ledger.Get(id)
		if !ok {
			return reject(resp, ErrUnknownParticipant)
		}
		resp.Balance = p.Balance
		return reject(resp, ErrBettingClosed)
	}

	p, err := e.state.ledger.Accept(id, side, amount)
	resp.Balance = p.Balance
	if err != nil {
		return reject(resp, err)
	}

	resp.Accepted = true
	e.logger.Debug("wager accepted",
		zap.Int64("round_id", resp.RoundID),
		zap.String("participant_id", id),
		zap.String("side", string(side)),
		zap.Int64("amount", amount),
	)
	e.gateway.PublishLedger(e.state.ledger.Participants())
	return resp
}

func reject(resp WagerResponse, err error) WagerResponse {
	resp.Accepted = false
	resp.Reason = err.Error()
	resp.Err = err
	return resp
}

// schedule arms the single engine timer. Callbacks from a superseded
// schedule, or arriving after Stop, are dropped.
func (e *Engine) schedule(d time.Duration, f func()) {
	e.gen++
	gen := e.gen
	e.timer = e.clock.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.running || gen != e.gen {
			return
		}
		e.timer = nil
		f()
	})
}

func (e *Engine) cancelTimer() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) startBetting() {
	s := &e.state.snapshot
	s.RoundID++
	s.Status = PhaseBetting
	s.Timer = e.cfg.BettingSeconds
	s.Hands = Hands{}
	s.Scores = Scores{}
	s.Result = ""

	e.logger.Debug("betting open", zap.Int64("round_id", s.RoundID), zap.Int("timer", s.Timer))
	e.gateway.PublishSnapshot(s.clone())
	e.schedule(TICK_INTERVAL, e.tick)
}

func (e *Engine) tick() {
	s := &e.state.snapshot
	if s.Status != PhaseBetting {
		return
	}
	if s.Timer > 0 {
		s.Timer--
	}
	e.gateway.PublishTimer(s.Timer)
	if s.Timer > 0 {
		e.schedule(TICK_INTERVAL, e.tick)
		return
	}
	e.deal()
}

func (e *Engine) deal() {
	s := &e.state.snapshot
	s.Status = PhaseDealing

	if e.state.shoe.Prepare() {
		e.logger.Info("shoe reshuffled", zap.Int64("round_id", s.RoundID), zap.Int("cards", e.state.shoe.Len()))
	}
	res, err := DealRound(e.state.shoe)
	if err != nil {
		e.halt(err)
		return
	}

	s.Hands = Hands{Player: res.Player, Banker: res.Banker}
	s.Scores = Scores{Player: res.PlayerScore, Banker: res.BankerScore}
	s.Result = res.Result
	s.History = append([]string{res.Result.Code()}, s.History...)
	if len(s.History) > HISTORY_LIMIT {
		s.History = s.History[:HISTORY_LIMIT]
	}

	settlement := e.state.ledger.Settle(res.Result)

	e.gateway.PublishSnapshot(s.clone())
	s.Status = PhaseResult
	e.gateway.PublishSnapshot(s.clone())
	e.gateway.PublishLedger(e.state.ledger.Participants())

	e.logger.Info("round settled",
		zap.Int64("round_id", s.RoundID),
		zap.Stringer("player", res.Player),
		zap.Stringer("banker", res.Banker),
		zap.Int("player_score", res.PlayerScore),
		zap.Int("banker_score", res.BankerScore),
		zap.String("result", string(res.Result)),
		zap.Int("wagers", settlement.Wagers),
		zap.Int64("staked", settlement.Staked),
		zap.Int64("paid", settlement.Paid),
		zap.Int("shoe_remaining", e.state.shoe.Len()),
	)
	if e.recorder != nil {
		e.recorder.RecordRound(RoundSummary{
			RoundID:     s.RoundID,
			Result:      res.Result,
			PlayerCards: res.Player.clone(),
			BankerCards: res.Banker.clone(),
			PlayerScore: res.PlayerScore,
			BankerScore: res.BankerScore,
			Settlement:  settlement,
			SettledAt:   time.Now().UTC(),
		})
	}

	e.schedule(e.cfg.ResultDelay, e.startBetting)
}

// halt stops the table for good after an invariant violation.
func (e *Engine) halt(err error) {
	e.err = fmt.Errorf("round %d: %w", e.state.snapshot.RoundID, err)
	e.running = false
	e.cancelTimer()
	e.logger.Error("table halted", zap.Error(e.err))
	e.refund()
}
