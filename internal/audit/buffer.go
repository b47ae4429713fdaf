// Package audit implements the buffered append-only writer for
// model.AuditRecord: every tool invocation is appended in memory and
// flushed to the store in batches, bounding write amplification under load
// (spec.md §3 "AuditRecord", §4.8 "audit_trim").
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/storage"
	"github.com/kioku-ai/kioku/internal/telemetry"
)

// maxBufferCapacity bounds buffered records to prevent unbounded memory
// growth if the store falls behind.
const maxBufferCapacity = 50_000

// ErrBufferDraining is returned by Append once Drain has been called.
var ErrBufferDraining = errors.New("audit: buffer is draining")

// ErrBufferAtCapacity is returned by Append when the buffer is full.
var ErrBufferAtCapacity = errors.New("audit: buffer at capacity")

// Buffer accumulates AuditRecords in memory and flushes them to storage on
// a timer or when the batch size threshold is reached.
type Buffer struct {
	store        *storage.Store
	logger       *slog.Logger
	maxBatch     int
	flushTimeout time.Duration

	mu      sync.Mutex
	records []model.AuditRecord

	dropped  atomic.Int64
	draining atomic.Bool

	started    atomic.Bool
	drainOnce  sync.Once
	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc
	drainCh    chan context.Context
}

// NewBuffer builds a Buffer flushing to store in batches of maxBatch, or
// every flushTimeout, whichever comes first.
func NewBuffer(store *storage.Store, logger *slog.Logger, maxBatch int, flushTimeout time.Duration) *Buffer {
	return &Buffer{
		store: store, logger: logger, maxBatch: maxBatch, flushTimeout: flushTimeout,
		flushCh: make(chan struct{}, 1), done: make(chan struct{}), drainCh: make(chan context.Context, 1),
	}
}

// Start launches the background flush loop. Safe to call once; later calls
// are no-ops.
func (b *Buffer) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		b.logger.Warn("audit: buffer Start called more than once, ignoring")
		return
	}
	b.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	b.cancelLoop = cancel
	go b.flushLoop(loopCtx)
}

// Append queues a record for the next flush.
func (b *Buffer) Append(record model.AuditRecord) error {
	if b.draining.Load() {
		b.dropped.Add(1)
		return ErrBufferDraining
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) >= maxBufferCapacity {
		b.dropped.Add(1)
		return fmt.Errorf("%w (%d records buffered)", ErrBufferAtCapacity, len(b.records))
	}
	record.CreatedAt = time.Now().UTC()
	b.records = append(b.records, record)
	if len(b.records) >= b.maxBatch {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *Buffer) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(b.flushTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			var drainCtx context.Context
			select {
			case drainCtx = <-b.drainCh:
			default:
			}
			if drainCtx == nil {
				var cancel context.CancelFunc
				drainCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
			}
			if err := b.flushOnce(drainCtx); err != nil {
				b.logger.Warn("audit: final flush incomplete", "error", err, "remaining", b.Len())
			}
			close(b.done)
			return
		case <-ticker.C:
			_ = b.flushOnce(ctx)
		case <-b.flushCh:
			_ = b.flushOnce(ctx)
		}
	}
}

// FlushNow blocks until the current buffer is durably written or ctx
// expires.
func (b *Buffer) FlushNow(ctx context.Context) error {
	return b.flushOnce(ctx)
}

func (b *Buffer) flushOnce(ctx context.Context) error {
	b.mu.Lock()
	if len(b.records) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := make([]model.AuditRecord, len(b.records))
	copy(batch, b.records)
	b.mu.Unlock()

	if err := b.store.InsertAuditRecords(ctx, batch); err != nil {
		b.logger.Error("audit: flush failed", "error", err, "batch_size", len(batch))
		return err
	}

	b.mu.Lock()
	if len(b.records) >= len(batch) {
		b.records = b.records[len(batch):]
	} else {
		b.records = nil
	}
	b.mu.Unlock()
	return nil
}

// Drain stops accepting new records, flushes what remains, and waits for
// the flush loop to exit. Idempotent.
func (b *Buffer) Drain(ctx context.Context) {
	b.drainOnce.Do(func() {
		b.draining.Store(true)
		sendCtx, sendCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		select {
		case b.drainCh <- ctx:
		case <-sendCtx.Done():
			b.logger.Warn("audit: drain context channel busy, flush will use fallback timeout")
		}
		sendCancel()
		if b.cancelLoop != nil {
			b.cancelLoop()
		}
	})
	select {
	case <-b.done:
	case <-ctx.Done():
		b.logger.Warn("audit: drain timed out waiting for flush loop")
	}
}

func (b *Buffer) registerMetrics() {
	meter := telemetry.Meter("kioku/audit")
	_, _ = meter.Int64ObservableGauge("kioku.audit.buffer_depth",
		metric.WithDescription("Number of audit records queued for flush"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(b.Len()))
			return nil
		}),
	)
	_, _ = meter.Int64ObservableGauge("kioku.audit.dropped_total",
		metric.WithDescription("Audit records rejected at ingress due to capacity or shutdown draining"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(b.dropped.Load())
			return nil
		}),
	)
}

// Len returns the current number of buffered, unflushed records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
