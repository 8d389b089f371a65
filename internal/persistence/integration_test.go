package persistence_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"PerpEngine/internal/event"
	"PerpEngine/internal/persistence"
	"PerpEngine/internal/testutil"
)

func TestEventLogRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	writer := persistence.NewEventLogWriter(db)

	rows := make([]persistence.EventRow, 0, 3)
	for seq := uint64(1); seq <= 3; seq++ {
		row, err := persistence.RowFromEnvelope(event.Envelope{
			Sequence:    seq,
			Type:        event.TypeOrderPlaced,
			MarketIndex: 0,
			Ts:          1_700_000_000 + int64(seq),
			Payload:     event.OrderPlaced{Direction: "long", OrderType: "limit"},
		})
		if err != nil {
			t.Fatalf("row from envelope: %v", err)
		}
		rows = append(rows, row)
	}

	writeBatch := func() {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		if err := writer.WriteBatch(ctx, tx, rows); err != nil {
			tx.Rollback()
			t.Fatalf("write batch: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	writeBatch()
	writeBatch() // replay must be idempotent

	got, err := writer.LoadEventsFrom(ctx, 2, 10)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d events from seq 2, want 2", len(got))
	}
	if got[0].Sequence != 2 || got[1].Sequence != 3 {
		t.Errorf("sequences = %d, %d", got[0].Sequence, got[1].Sequence)
	}
}
