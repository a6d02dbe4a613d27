package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/models"
)

const publishTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes driver positions and booked rides.
type KafkaProducer struct {
	locations messageWriter
	rides     messageWriter
}

func NewKafkaProducer(brokers []string, locationTopic, rideTopic string) *KafkaProducer {
	return &KafkaProducer{
		locations: &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: locationTopic, Balancer: &kafka.LeastBytes{}},
		rides:     &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: rideTopic, Balancer: &kafka.Hash{}},
	}
}

func (k *KafkaProducer) PublishLocation(ctx context.Context, d models.Driver) error {
	return publish(ctx, k.locations, d.ID, d)
}

// PublishRideBooked keys by driver so a driver's bookings stay ordered.
func (k *KafkaProducer) PublishRideBooked(ctx context.Context, ev models.RideBooked) error {
	return publish(ctx, k.rides, ev.DriverID, ev)
}

func publish(ctx context.Context, w messageWriter, key string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (k *KafkaProducer) Close() error {
	err := k.locations.Close()
	if rerr := k.rides.Close(); err == nil {
		err = rerr
	}
	return err
}
