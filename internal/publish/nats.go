package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PerpEngine/internal/event"
	"PerpEngine/internal/observability"
)

// StreamName holds all outbound engine events.
const StreamName = "PERP_ENGINE_EVENTS"

// SubjectPrefix is completed as perp.engine.events.{event_type}.{market_index}.
const SubjectPrefix = "perp.engine.events"

// JetStreamPublisher is the slice of jetstream.JetStream the publisher needs.
// Narrowed so tests can substitute a fake.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher buffers engine events and publishes them to NATS JetStream.
// Publish never blocks the engine: when the buffer is full the event is
// dropped and counted. Consumers detect gaps via the envelope sequence and
// can re-read the event log.
type Publisher struct {
	js      JetStreamPublisher
	ch      chan event.Envelope
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewPublisher(js JetStreamPublisher, bufferSize int, log zerolog.Logger, metrics *observability.Metrics) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &Publisher{
		js:      js,
		ch:      make(chan event.Envelope, bufferSize),
		log:     log,
		metrics: metrics,
	}
}

// Publish implements event.Sink. Non-blocking: drops when the buffer is full.
func (p *Publisher) Publish(ev event.Envelope) {
	select {
	case p.ch <- ev:
	default:
		if p.metrics != nil {
			p.metrics.PublishDrops.Inc()
		}
		p.log.Warn().Uint64("sequence", ev.Sequence).Str("type", string(ev.Type)).
			Msg("publish buffer full, event dropped")
	}
}

// Run drains the buffer until ctx is cancelled. Publish failures are logged
// and skipped; the event log in Postgres remains the durable record.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.ch:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, ev); err != nil {
				p.log.Warn().Err(err).Uint64("sequence", ev.Sequence).Msg("outbound publish failed")
				continue
			}
			if p.metrics != nil {
				p.metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev event.Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.%d", SubjectPrefix, ev.Type, ev.MarketIndex)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// Connect dials NATS and returns the JetStream context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}
	return nc, js, nil
}

// EnsureEventStream creates or updates the outbound events stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create event stream: %w", err)
	}
	return nil
}
