package persistence

import (
	"encoding/json"
	"testing"

	"PerpEngine/internal/event"
)

func TestRowFromEnvelope(t *testing.T) {
	env := event.Envelope{
		Sequence:    42,
		Type:        event.TypeOrderFilled,
		MarketIndex: 3,
		Ts:          1_700_000_000,
		Payload: event.OrderFilled{
			Source: "amm",
			Price:  150_000_000,
			Base:   1_000_000_000,
			Quote:  150_000_000,
		},
	}

	row, err := RowFromEnvelope(env)
	if err != nil {
		t.Fatalf("RowFromEnvelope: %v", err)
	}
	if row.Sequence != 42 || row.EventType != "order_filled" || row.MarketIndex != 3 || row.Ts != 1_700_000_000 {
		t.Errorf("row = %+v", row)
	}

	var payload event.OrderFilled
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Source != "amm" || payload.Price != 150_000_000 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestExtractVersion(t *testing.T) {
	cases := map[string]string{
		"000001_event_log.up.sql": "000001",
		"000002_indexes.down.sql": "000002",
		"noversion.sql":           "noversion.sql",
	}
	for in, want := range cases {
		if got := extractVersion(in); got != want {
			t.Errorf("extractVersion(%q) = %q, want %q", in, got, want)
		}
	}
}
