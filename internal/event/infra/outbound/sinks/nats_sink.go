package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/domain"
	"github.com/davicafu/doorbell/internal/live"
	"github.com/davicafu/doorbell/shared/utils"
)

const DefaultNATSSubject = "doorbell.events"

type natsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSSink publica las notificaciones en JSON en <subject>.<kind>.
type NATSSink struct {
	conn    natsConn
	subject string
	log     *zap.Logger
}

var _ live.Transport = (*NATSSink)(nil)

func NewNATSSink(url, subject string, log *zap.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("doorbell"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return newNATSSink(nc, subject, log), nil
}

func newNATSSink(conn natsConn, subject string, log *zap.Logger) *NATSSink {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSSink{conn: conn, subject: subject, log: log}
}

func (s *NATSSink) Send(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	subject := s.subject + "." + string(n.Event.Kind)

	err = utils.Retry(ctx, sendAttempts, sendDelay, func() error {
		return s.conn.Publish(subject, data)
	})
	if err != nil {
		s.log.Error("Error publishing to NATS", zap.String("subject", subject), zap.Error(err))
	}
	return err
}

func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
