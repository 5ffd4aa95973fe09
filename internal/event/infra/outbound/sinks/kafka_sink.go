package sinks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/domain"
	"github.com/davicafu/doorbell/internal/live"
	"github.com/davicafu/doorbell/shared/utils"
)

const (
	sendAttempts = 3
	sendDelay    = 100 * time.Millisecond
)

// messageWriter es la parte de *kafka.Writer que usa el sink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink reenvía cada notificación a un topic; la clave es el id del evento
// para que un mismo evento caiga siempre en la misma partición.
type KafkaSink struct {
	writer messageWriter
	log    *zap.Logger
}

var _ live.Transport = (*KafkaSink)(nil)

func NewKafkaSink(brokers []string, topic string, log *zap.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSink{writer: w, log: log}
}

func (s *KafkaSink) Send(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(n.PartitionKey()),
		Value: data,
	}

	err = utils.Retry(ctx, sendAttempts, sendDelay, func() error {
		return s.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		s.log.Error("Error publishing to Kafka", zap.String("event_id", n.Event.ID), zap.Error(err))
		return err
	}

	s.log.Debug("Notification published to Kafka", zap.String("event_id", n.Event.ID))
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
