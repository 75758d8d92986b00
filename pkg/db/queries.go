package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrSessionIDRequired = errors.New("session_id is required")
	ErrNotFound          = errors.New("record not found")
)

// Queries provides journal reads and writes.
type Queries struct {
	db *sql.DB
}

// NewQueries creates a new Queries instance.
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// ----------------------------------------
// Session Queries
// ----------------------------------------

// InsertSession records the start of a session.
func (q *Queries) InsertSession(ctx context.Context, s Session) error {
	if s.ID == "" {
		return ErrSessionIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sessions (id, symbol, demo, dry_run, base_stake, daily_profit_target,
			daily_loss_limit, max_trades, initial_balance, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Symbol, boolToInt(s.Demo), boolToInt(s.DryRun), s.BaseStake, s.DailyProfitTarget,
		s.DailyLossLimit, s.MaxTrades, s.InitialBalance, s.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FinishSession stores the final outcome of a session.
func (q *Queries) FinishSession(ctx context.Context, id string, r SessionResult) error {
	if id == "" {
		return ErrSessionIDRequired
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE sessions
		SET stop_reason = ?, final_balance = ?, total_profit = ?, max_drawdown = ?, ended_at = ?
		WHERE id = ?
	`, r.StopReason, r.FinalBalance, r.TotalProfit, r.MaxDrawdown, r.EndedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession loads a session row by ID.
func (q *Queries) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionIDRequired
	}
	var (
		s            Session
		demo, dryRun int
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, symbol, demo, dry_run, base_stake, daily_profit_target, daily_loss_limit,
			max_trades, initial_balance, started_at, stop_reason, final_balance, total_profit,
			max_drawdown, ended_at
		FROM sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.Symbol, &demo, &dryRun, &s.BaseStake, &s.DailyProfitTarget,
		&s.DailyLossLimit, &s.MaxTrades, &s.InitialBalance, &s.StartedAt, &s.StopReason,
		&s.FinalBalance, &s.TotalProfit, &s.MaxDrawdown, &s.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.Demo = demo == 1
	s.DryRun = dryRun == 1
	return &s, nil
}

// ----------------------------------------
// Trade Queries
// ----------------------------------------

// InsertTradeQuery is the statement used by InsertTrade and by batched writers.
const InsertTradeQuery = `
	INSERT INTO trades (id, session_id, seq, direction, stake, profit, result, threshold,
		z_score, contract_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// TradeArgs returns the positional arguments for InsertTradeQuery.
func TradeArgs(t Trade) []any {
	return []any{t.ID, t.SessionID, t.Seq, t.Direction, t.Stake, t.Profit, t.Result,
		t.Threshold, t.ZScore, t.ContractID, t.CreatedAt.UTC()}
}

// InsertTrade appends one settled trade.
func (q *Queries) InsertTrade(ctx context.Context, t Trade) error {
	if t.SessionID == "" {
		return ErrSessionIDRequired
	}
	if _, err := q.db.ExecContext(ctx, InsertTradeQuery, TradeArgs(t)...); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades returns a session's trades in chronological order.
func (q *Queries) ListTrades(ctx context.Context, sessionID string) ([]Trade, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, session_id, seq, direction, stake, profit, result, threshold, z_score,
			COALESCE(contract_id, ''), created_at
		FROM trades
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Seq, &t.Direction, &t.Stake, &t.Profit,
			&t.Result, &t.Threshold, &t.ZScore, &t.ContractID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
