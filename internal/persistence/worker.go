package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"PerpEngine/internal/event"
	"PerpEngine/internal/observability"
)

// Worker drains engine events into Postgres in batches. It implements
// event.Sink: Publish never blocks the engine, so under sustained overload
// events can be dropped from the buffer and counted. The write path itself
// never drops: failed flushes retry with backoff until they succeed or the
// worker shuts down.
type Worker struct {
	writer       *EventLogWriter
	ch           chan event.Envelope
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewWorker(db *sql.DB, bufferSize, batchSize int, flushTimeout time.Duration, log zerolog.Logger, metrics *observability.Metrics) *Worker {
	if bufferSize <= 0 {
		bufferSize = 8192
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushTimeout <= 0 {
		flushTimeout = 10 * time.Millisecond
	}
	return &Worker{
		writer:       NewEventLogWriter(db),
		ch:           make(chan event.Envelope, bufferSize),
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
		metrics:      metrics,
	}
}

// Publish implements event.Sink.
func (w *Worker) Publish(ev event.Envelope) {
	select {
	case w.ch <- ev:
	default:
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("buffer_full").Inc()
		}
		w.log.Error().Uint64("sequence", ev.Sequence).Msg("persist buffer full, event dropped")
	}
}

// Run batches incoming events and flushes on batch size or timeout. Blocks
// until ctx is cancelled; remaining events are flushed on the way out.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]EventRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drainInto(&batch)
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Int("events", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case ev := <-w.ch:
			row, err := RowFromEnvelope(ev)
			if err != nil {
				if w.metrics != nil {
					w.metrics.PersistErrors.WithLabelValues("marshal").Inc()
				}
				w.log.Error().Err(err).Msg("drop unmarshalable event")
				continue
			}
			batch = append(batch, row)

			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// drainInto empties whatever is left in the buffer without blocking.
func (w *Worker) drainInto(batch *[]EventRow) {
	for {
		select {
		case ev := <-w.ch:
			row, err := RowFromEnvelope(ev)
			if err != nil {
				continue
			}
			*batch = append(*batch, row)
		default:
			return
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds.
// On ctx cancellation one final attempt runs with a background context so a
// transient outage during shutdown does not lose the batch.
func (w *Worker) flushWithRetry(ctx context.Context, batch []EventRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("events", len(batch)).Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			return
		}
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []EventRow) error {
	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteBatch(ctx, tx, batch); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.PersistWrites.Add(float64(len(batch)))
	}
	return nil
}

// Writer exposes the underlying writer for read-path consumers.
func (w *Worker) Writer() *EventLogWriter {
	return w.writer
}
