package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/models"
)

type memWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (m *memWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		panic("publish without deadline")
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *memWriter) Close() error { m.closed = true; return nil }

func TestPublishKeysByDriver(t *testing.T) {
	loc, rides := &memWriter{}, &memWriter{}
	p := &KafkaProducer{locations: loc, rides: rides}
	ctx := context.Background()

	if err := p.PublishLocation(ctx, models.Driver{ID: "d1", Loc: models.Location{Lat: 1, Lon: 2}}); err != nil {
		t.Fatalf("publish location: %v", err)
	}
	if err := p.PublishRideBooked(ctx, models.RideBooked{RideID: "r1", DriverID: "d9"}); err != nil {
		t.Fatalf("publish ride: %v", err)
	}

	if len(loc.msgs) != 1 || string(loc.msgs[0].Key) != "d1" {
		t.Fatalf("unexpected location messages %+v", loc.msgs)
	}
	if len(rides.msgs) != 1 || string(rides.msgs[0].Key) != "d9" {
		t.Fatalf("unexpected ride messages %+v", rides.msgs)
	}
	var ev models.RideBooked
	if err := json.Unmarshal(rides.msgs[0].Value, &ev); err != nil || ev.RideID != "r1" {
		t.Fatalf("unexpected payload %s: %v", rides.msgs[0].Value, err)
	}

	if err := p.Close(); err != nil || !loc.closed || !rides.closed {
		t.Fatalf("expected both writers closed")
	}
}
