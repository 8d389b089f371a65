package publish_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PerpEngine/internal/event"
	"PerpEngine/internal/publish"
)

type fakeJetStream struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, payload)
	return &jetstream.PubAck{Stream: publish.StreamName, Sequence: uint64(len(f.subjects))}, nil
}

func (f *fakeJetStream) published() ([]string, [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subjects...), append([][]byte(nil), f.payloads...)
}

func TestPublisherSubjectsAndPayload(t *testing.T) {
	js := &fakeJetStream{}
	p := publish.NewPublisher(js, 16, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Publish(event.Envelope{Sequence: 1, Type: event.TypeOrderFilled, MarketIndex: 0, Ts: 1000})
	p.Publish(event.Envelope{Sequence: 2, Type: event.TypeLiquidation, MarketIndex: 3, Ts: 1001})

	deadline := time.After(2 * time.Second)
	for {
		subjects, _ := js.published()
		if len(subjects) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("published %d events, want 2", len(subjects))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	subjects, payloads := js.published()
	if subjects[0] != "perp.engine.events.order_filled.0" {
		t.Errorf("subject = %q", subjects[0])
	}
	if subjects[1] != "perp.engine.events.liquidation.3" {
		t.Errorf("subject = %q", subjects[1])
	}

	var env event.Envelope
	if err := json.Unmarshal(payloads[1], &env); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if env.Sequence != 2 || env.Type != event.TypeLiquidation || env.MarketIndex != 3 {
		t.Errorf("round-tripped envelope = %+v", env)
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	// No Run loop draining: the buffer fills and overflow is dropped, never
	// blocking the caller.
	p := publish.NewPublisher(&fakeJetStream{}, 2, zerolog.Nop(), nil)

	doneCh := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.Publish(event.Envelope{Sequence: uint64(i)})
		}
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
}
