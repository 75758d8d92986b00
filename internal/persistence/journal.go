package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reversion-core/pkg/db"
)

// Journal is the write-only record of sessions and their trades.
// Trades are batched; session rows are written synchronously.
type Journal struct {
	queries *db.Queries
	writer  *BatchWriter
	onError func(err error, ops int)
}

// NewJournal wraps an opened, migrated database.
func NewJournal(database *db.Database, batchSize int, interval time.Duration) *Journal {
	return &Journal{
		queries: database.Queries(),
		writer:  NewBatchWriter(database.DB, batchSize, interval),
	}
}

// OnError registers the one callback that sees every trade record that
// failed to persist: rejected records (ops == 1) and failed batches.
// Call it before the first RecordTrade.
func (j *Journal) OnError(fn func(err error, ops int)) {
	j.onError = fn
	j.writer.OnError = fn
}

// StartSession records a session row.
func (j *Journal) StartSession(ctx context.Context, s db.Session) error {
	return j.queries.InsertSession(ctx, s)
}

// RecordTrade queues a trade for the next batch.
func (j *Journal) RecordTrade(t db.Trade) error {
	if t.SessionID == "" {
		return j.reject(db.ErrSessionIDRequired)
	}
	if err := j.writer.Write(WriteOp{Query: db.InsertTradeQuery, Args: db.TradeArgs(t)}); err != nil {
		err = fmt.Errorf("journal trade %s: %w", t.ID, err)
		if errors.Is(err, ErrBatchFailed) {
			// The inline flush already reported the whole batch.
			return err
		}
		return j.reject(err)
	}
	return nil
}

func (j *Journal) reject(err error) error {
	if j.onError != nil {
		j.onError(err, 1)
	}
	return err
}

// FinishSession flushes pending trades and stores the session outcome.
func (j *Journal) FinishSession(ctx context.Context, id string, r db.SessionResult) error {
	if err := j.writer.Flush(ctx); err != nil {
		return fmt.Errorf("flush before finish: %w", err)
	}
	return j.queries.FinishSession(ctx, id, r)
}

// Metrics exposes the batch writer counters.
func (j *Journal) Metrics() BatchWriterMetrics {
	return j.writer.GetMetrics()
}

// Close flushes and stops the background writer.
func (j *Journal) Close() error {
	return j.writer.Close()
}
