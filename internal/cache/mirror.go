package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"baccarat/internal/game"
)

const (
	REDIS_KEY_SNAPSHOT = "baccarat:table:snapshot"
	REDIS_KEY_TIMER    = "baccarat:table:timer"
	REDIS_KEY_BALANCES = "baccarat:table:balances"
	REDIS_KEY_NAMES    = "baccarat:table:names"

	MIRROR_BUFFER  = 128
	MIRROR_TIMEOUT = 2 * time.Second
	TIMER_TTL      = 30 * time.Second
)

type mirrorEvent struct {
	snapshot     *game.RoundSnapshot
	timer        *int
	participants []game.Participant
}

// Mirror copies table state into redis so other processes can read it.
// Publishes are queued and written by Run; a full queue drops the update.
type Mirror struct {
	client *redis.Client
	events chan mirrorEvent
	logger *zap.Logger
}

func NewMirror(client *redis.Client, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		client: client,
		events: make(chan mirrorEvent, MIRROR_BUFFER),
		logger: logger.Named("mirror"),
	}
}

func (m *Mirror) PublishSnapshot(snapshot game.RoundSnapshot) {
	m.enqueue(mirrorEvent{snapshot: &snapshot})
}

func (m *Mirror) PublishTimer(seconds int) {
	m.enqueue(mirrorEvent{timer: &seconds})
}

func (m *Mirror) PublishLedger(participants []game.Participant) {
	if participants == nil {
		participants = []game.Participant{}
	}
	m.enqueue(mirrorEvent{participants: participants})
}

func (m *Mirror) enqueue(ev mirrorEvent) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("mirror queue full, dropping update")
	}
}

// Run writes queued updates until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			wctx, cancel := context.WithTimeout(ctx, MIRROR_TIMEOUT)
			if err := m.write(wctx, ev); err != nil {
				m.logger.Warn("mirror write failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (m *Mirror) write(ctx context.Context, ev mirrorEvent) error {
	switch {
	case ev.snapshot != nil:
		data, err := json.Marshal(ev.snapshot)
		if err != nil {
			return err
		}
		pipe := m.client.TxPipeline()
		pipe.Set(ctx, REDIS_KEY_SNAPSHOT, data, 0)
		pipe.Set(ctx, REDIS_KEY_TIMER, ev.snapshot.Timer, TIMER_TTL)
		_, err = pipe.Exec(ctx)
		return err

	case ev.timer != nil:
		return m.client.Set(ctx, REDIS_KEY_TIMER, *ev.timer, TIMER_TTL).Err()

	case ev.participants != nil:
		balances := make(map[string]interface{}, len(ev.participants))
		names := make(map[string]interface{}, len(ev.participants))
		for _, p := range ev.participants {
			balances[p.ID] = strconv.FormatInt(p.Balance, 10)
			names[p.ID] = p.DisplayName
		}
		pipe := m.client.TxPipeline()
		pipe.Del(ctx, REDIS_KEY_BALANCES, REDIS_KEY_NAMES)
		if len(ev.participants) > 0 {
			pipe.HSet(ctx, REDIS_KEY_BALANCES, balances)
			pipe.HSet(ctx, REDIS_KEY_NAMES, names)
		}
		_, err := pipe.Exec(ctx)
		return err
	}
	return nil
}

// LoadSnapshot reads the last mirrored snapshot.
func LoadSnapshot(ctx context.Context, client *redis.Client) (game.RoundSnapshot, error) {
	var s game.RoundSnapshot
	data, err := client.Get(ctx, REDIS_KEY_SNAPSHOT).Bytes()
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(data, &s)
	return s, err
}

// LoadBalances reads the mirrored balances keyed by participant id.
func LoadBalances(ctx context.Context, client *redis.Client) (map[string]int64, error) {
	raw, err := client.HGetAll(ctx, REDIS_KEY_BALANCES).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for id, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, nil
}

// MirrorStatus summarises the mirrored table for health reports.
func MirrorStatus(ctx context.Context, client *redis.Client) map[string]string {
	stats := make(map[string]string)

	snapshot, err := LoadSnapshot(ctx, client)
	if errors.Is(err, redis.Nil) {
		stats["mirror"] = "empty"
		return stats
	}
	if err != nil {
		stats["mirror"] = "error"
		stats["mirror_error"] = err.Error()
		return stats
	}

	balances, err := LoadBalances(ctx, client)
	if err != nil {
		stats["mirror"] = "error"
		stats["mirror_error"] = err.Error()
		return stats
	}

	stats["mirror"] = "ok"
	stats["mirror_round_id"] = strconv.FormatInt(snapshot.RoundID, 10)
	stats["mirror_phase"] = string(snapshot.Status)
	stats["mirror_seated"] = strconv.Itoa(len(balances))
	return stats
}
