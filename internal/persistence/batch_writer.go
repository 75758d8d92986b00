package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"reversion-core/pkg/logger"
)

var (
	// ErrWriterClosed is returned by Write after Close.
	ErrWriterClosed = errors.New("batch writer closed")
	// ErrBatchFailed wraps every flush error. OnError has already seen it.
	ErrBatchFailed = errors.New("journal batch failed")
)

// WriteOp is one statement queued for the next batch.
type WriteOp struct {
	Query string
	Args  []any
}

// BatchWriter groups journal writes into transactions and flushes them
// on size or on a timer.
type BatchWriter struct {
	db       *sql.DB
	buffer   []WriteOp
	mu       sync.Mutex
	maxSize  int
	interval time.Duration
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
	log      zerolog.Logger

	// OnError is called with every failed batch; the batch is discarded.
	OnError func(err error, ops int)

	totalWrites   atomic.Uint64
	totalBatches  atomic.Uint64
	totalErrors   atomic.Uint64
	lastBatchSize atomic.Int64
	lastFlushUnix atomic.Int64
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
	Pending       int       `json:"pending"`
}

// NewBatchWriter starts a writer that flushes every interval or once maxSize ops are queued.
func NewBatchWriter(db *sql.DB, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:       db,
		buffer:   make([]WriteOp, 0, maxSize),
		maxSize:  maxSize,
		interval: interval,
		done:     make(chan struct{}),
		log:      logger.Component("journal"),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()
	return bw
}

// Write queues an operation.
func (bw *BatchWriter) Write(op WriteOp) error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrWriterClosed
	}
	bw.buffer = append(bw.buffer, op)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		return bw.Flush(context.Background())
	}
	return nil
}

// Flush writes all queued operations in one transaction.
func (bw *BatchWriter) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]WriteOp, 0, bw.maxSize)
	bw.mu.Unlock()

	err := bw.executeBatch(ctx, ops)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("%w: %w", ErrBatchFailed, err)
	if bw.OnError != nil {
		bw.OnError(err, len(ops))
	}
	return err
}

func (bw *BatchWriter) executeBatch(ctx context.Context, ops []WriteOp) error {
	bw.totalWrites.Add(uint64(len(ops)))
	bw.totalBatches.Add(1)
	bw.lastBatchSize.Store(int64(len(ops)))
	bw.lastFlushUnix.Store(time.Now().UnixNano())

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		bw.totalErrors.Add(1)
		return fmt.Errorf("begin journal batch: %w", err)
	}

	for _, op := range ops {
		if _, err := tx.ExecContext(ctx, op.Query, op.Args...); err != nil {
			_ = tx.Rollback()
			bw.totalErrors.Add(1)
			return fmt.Errorf("journal batch of %d rolled back: %w", len(ops), err)
		}
	}

	if err := tx.Commit(); err != nil {
		bw.totalErrors.Add(1)
		return fmt.Errorf("commit journal batch: %w", err)
	}

	bw.log.Debug().Int("ops", len(ops)).Msg("journal batch flushed")
	return nil
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(context.Background()); err != nil {
				bw.log.Warn().Err(err).Msg("background journal flush failed")
			}
		case <-bw.done:
			if err := bw.Flush(context.Background()); err != nil {
				bw.log.Warn().Err(err).Msg("final journal flush failed")
			}
			return
		}
	}
}

// Pending returns the number of queued operations.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// GetMetrics returns counters for the reporting API.
func (bw *BatchWriter) GetMetrics() BatchWriterMetrics {
	m := BatchWriterMetrics{
		TotalWrites:   bw.totalWrites.Load(),
		TotalBatches:  bw.totalBatches.Load(),
		TotalErrors:   bw.totalErrors.Load(),
		LastBatchSize: int(bw.lastBatchSize.Load()),
		Pending:       bw.Pending(),
	}
	if ns := bw.lastFlushUnix.Load(); ns > 0 {
		m.LastFlushTime = time.Unix(0, ns)
	}
	return m
}

// Close stops the flusher after a final flush. Safe to call more than once.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return nil
	}
	bw.closed = true
	bw.mu.Unlock()

	close(bw.done)
	bw.wg.Wait()
	return nil
}
