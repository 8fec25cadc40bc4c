package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"baccarat/internal/game"
)

const (
	ARCHIVE_BUFFER  = 64
	ARCHIVE_TIMEOUT = 5 * time.Second
	MAX_ROUND_LIMIT = 200
)

// RoundRecord is one row of baccarat_rounds.
type RoundRecord struct {
	ID          int64     `json:"id"`
	RoundID     int64     `json:"round_id"`
	Result      game.Side `json:"result"`
	PlayerCards game.Hand `json:"player_cards"`
	BankerCards game.Hand `json:"banker_cards"`
	PlayerScore int       `json:"player_score"`
	BankerScore int       `json:"banker_score"`
	WagerCount  int       `json:"wager_count"`
	TotalStaked int64     `json:"total_staked"`
	TotalPaid   int64     `json:"total_paid"`
	SettledAt   time.Time `json:"settled_at"`
}

// RecordFromSummary converts the engine's round summary into a row.
func RecordFromSummary(s game.RoundSummary) RoundRecord {
	return RoundRecord{
		RoundID:     s.RoundID,
		Result:      s.Result,
		PlayerCards: s.PlayerCards,
		BankerCards: s.BankerCards,
		PlayerScore: s.PlayerScore,
		BankerScore: s.BankerScore,
		WagerCount:  s.Settlement.Wagers,
		TotalStaked: s.Settlement.Staked,
		TotalPaid:   s.Settlement.Paid,
		SettledAt:   s.SettledAt,
	}
}

func (s *service) SaveRound(ctx context.Context, r RoundRecord) error {
	player, err := json.Marshal(r.PlayerCards)
	if err != nil {
		return fmt.Errorf("encode player cards: %w", err)
	}
	banker, err := json.Marshal(r.BankerCards)
	if err != nil {
		return fmt.Errorf("encode banker cards: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO baccarat_rounds
			(round_id, result, player_cards, banker_cards, player_score, banker_score,
			 wager_count, total_staked, total_paid, settled_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7, $8, $9, $10)`,
		r.RoundID, string(r.Result), string(player), string(banker), r.PlayerScore, r.BankerScore,
		r.WagerCount, r.TotalStaked, r.TotalPaid, r.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert round %d: %w", r.RoundID, err)
	}
	return nil
}

func (s *service) RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error) {
	if limit <= 0 || limit > MAX_ROUND_LIMIT {
		limit = MAX_ROUND_LIMIT
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, result, player_cards, banker_cards, player_score, banker_score,
		       wager_count, total_staked, total_paid, settled_at
		FROM baccarat_rounds
		ORDER BY settled_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	rounds := []RoundRecord{}
	for rows.Next() {
		var (
			r              RoundRecord
			result         string
			player, banker []byte
		)
		if err := rows.Scan(&r.ID, &r.RoundID, &result, &player, &banker, &r.PlayerScore, &r.BankerScore,
			&r.WagerCount, &r.TotalStaked, &r.TotalPaid, &r.SettledAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.Result = game.Side(result)
		if err := json.Unmarshal(player, &r.PlayerCards); err != nil {
			return nil, fmt.Errorf("decode player cards of round %d: %w", r.RoundID, err)
		}
		if err := json.Unmarshal(banker, &r.BankerCards); err != nil {
			return nil, fmt.Errorf("decode banker cards of round %d: %w", r.RoundID, err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

func (s *service) PruneRounds(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM baccarat_rounds WHERE settled_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune rounds: %w", err)
	}
	return res.RowsAffected()
}

// roundSaver is the slice of Service the archive needs.
type roundSaver interface {
	SaveRound(ctx context.Context, round RoundRecord) error
}

// Archive receives settled rounds from the engine and writes them in the
// background so the engine never waits on postgres.
type Archive struct {
	store  roundSaver
	rounds chan game.RoundSummary
	logger *zap.Logger
}

func NewArchive(store roundSaver, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{
		store:  store,
		rounds: make(chan game.RoundSummary, ARCHIVE_BUFFER),
		logger: logger.Named("archive"),
	}
}

func (a *Archive) RecordRound(summary game.RoundSummary) {
	select {
	case a.rounds <- summary:
	default:
		a.logger.Warn("archive queue full, dropping round", zap.Int64("round_id", summary.RoundID))
	}
}

// Run drains queued rounds until ctx is cancelled.
func (a *Archive) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case summary := <-a.rounds:
			wctx, cancel := context.WithTimeout(ctx, ARCHIVE_TIMEOUT)
			if err := a.store.SaveRound(wctx, RecordFromSummary(summary)); err != nil {
				a.logger.Error("archive round", zap.Int64("round_id", summary.RoundID), zap.Error(err))
			}
			cancel()
		}
	}
}
