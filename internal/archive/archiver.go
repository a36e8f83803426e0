package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/wsbridge/internal/router"
	"github.com/rickgao/wsbridge/internal/wire"
)

// Config holds archiver batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		FlushInterval: 1 * time.Second,
	}
}

// Metrics contains archiver counters.
type Metrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
}

// envelopeRow is the database representation of one envelope.
type envelopeRow struct {
	ArchivedAt    int64 // µs since epoch
	Kind          string
	Topic         string
	CorrelationID string
	Timestamp     int64 // sender timestamp, ms since epoch
	Payload       []byte
}

// batchConn is the slice of pgxpool.Pool the archiver writes through.
type batchConn interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Archiver consumes envelopes from the router's archive buffer and
// writes them to the envelopes table in batches.
type Archiver struct {
	cfg    Config
	logger *slog.Logger

	// Input from the Message Router
	input *router.GrowableBuffer[wire.Envelope]

	// Database
	db batchConn

	// Batching
	batch   []envelopeRow
	batchMu sync.Mutex

	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// New creates an Archiver reading from input and writing to db.
func New(cfg Config, input *router.GrowableBuffer[wire.Envelope], db *pgxpool.Pool, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archiver{
		cfg:    cfg,
		logger: logger,
		input:  input,
		batch:  make([]envelopeRow, 0, cfg.BatchSize),
	}
	if db != nil {
		a.db = db
	}
	return a
}

// Start begins consuming envelopes and writing to the database.
func (a *Archiver) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.flushTicker = time.NewTicker(a.cfg.FlushInterval)

	a.wg.Add(1)
	go a.consumeLoop()

	a.wg.Add(1)
	go a.flushLoop()

	a.logger.Info("archiver started",
		"batch_size", a.cfg.BatchSize,
		"flush_interval", a.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the archiver, flushing what remains.
func (a *Archiver) Stop(ctx context.Context) error {
	a.logger.Info("stopping archiver")

	if a.cancel != nil {
		a.cancel()
	}
	if a.flushTicker != nil {
		a.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("archiver stopped")
	case <-ctx.Done():
		a.logger.Warn("archiver stop timed out")
	}

	// Final flush on the caller's context; a.ctx is already cancelled.
	a.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (a *Archiver) Stats() Metrics {
	a.batchMu.Lock()
	defer a.batchMu.Unlock()
	return a.metrics
}

// consumeLoop drains the input buffer and accumulates batches.
func (a *Archiver) consumeLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		default:
			envs := a.input.DrainTo(a.cfg.BatchSize)
			if len(envs) == 0 {
				// Buffer empty, wait a bit before trying again
				select {
				case <-a.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			for _, env := range envs {
				a.handleEnvelope(env)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (a *Archiver) flushLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.flushTicker.C:
			a.flush(a.ctx)
		}
	}
}

// handleEnvelope transforms and adds an envelope to the batch.
func (a *Archiver) handleEnvelope(env wire.Envelope) {
	row := a.transform(env)

	a.batchMu.Lock()
	a.batch = append(a.batch, row)
	shouldFlush := len(a.batch) >= a.cfg.BatchSize
	a.batchMu.Unlock()

	if shouldFlush {
		a.flush(a.ctx)
	}
}

// transform converts an envelope to its row representation.
func (a *Archiver) transform(env wire.Envelope) envelopeRow {
	var payload []byte
	if len(env.Payload) > 0 {
		payload = []byte(env.Payload)
	}
	return envelopeRow{
		ArchivedAt:    time.Now().UnixMicro(),
		Kind:          env.Kind,
		Topic:         env.Topic,
		CorrelationID: env.CorrelationID,
		Timestamp:     env.Timestamp,
		Payload:       payload,
	}
}

// flush writes the current batch to the database.
func (a *Archiver) flush(ctx context.Context) {
	if a.db == nil {
		return
	}

	a.batchMu.Lock()
	if len(a.batch) == 0 {
		a.batchMu.Unlock()
		return
	}

	// Take ownership of the current batch
	batch := a.batch
	a.batch = make([]envelopeRow, 0, a.cfg.BatchSize)
	a.batchMu.Unlock()

	start := time.Now()

	if err := a.batchInsert(ctx, batch); err != nil {
		a.logger.Error("batch insert failed", "error", err, "count", len(batch))
		a.batchMu.Lock()
		a.metrics.Errors++
		a.batchMu.Unlock()
		return
	}

	a.batchMu.Lock()
	a.metrics.Inserts += int64(len(batch))
	a.metrics.Flushes++
	a.batchMu.Unlock()

	a.logger.Debug("flushed envelopes",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (a *Archiver) batchInsert(ctx context.Context, rows []envelopeRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO envelopes (archived_at, kind, topic, correlation_id, ts, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.ArchivedAt, r.Kind, r.Topic, r.CorrelationID, r.Timestamp, r.Payload)
	}

	results := a.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
