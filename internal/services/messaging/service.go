// Package messaging is the worker's NATS connection: detection events go out
// through Publish, telemetry readings come back through Request and the
// pipeline stats responder is registered with Serve.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/logging"
)

type Service struct {
	conn   *nats.Conn
	cfg    *config.Config
	logger zerolog.Logger
}

func NewService(cfg *config.Config) (*Service, error) {
	logger := logging.NewServiceLogger(cfg, "messaging")

	opts := []nats.Option{
		nats.Name(cfg.WorkerID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DrainTimeout(cfg.ShutdownTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.NatsURL, err)
	}

	logger.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	return &Service{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Publish sends the JSON encoding of data. It does not wait for delivery.
func (s *Service) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Request sends data to subject and waits for a single reply or ctx to end.
func (s *Service) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := s.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Serve answers requests on subject with the JSON encoding of handler's result.
// Messages without a reply subject are ignored.
func (s *Service) Serve(subject string, handler func(data []byte) (interface{}, error)) (*nats.Subscription, error) {
	return s.conn.Subscribe(subject, func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		result, err := handler(msg.Data)
		if err != nil {
			result = map[string]string{"error": err.Error()}
		}
		payload, err := json.Marshal(result)
		if err != nil {
			s.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to encode NATS reply")
			return
		}
		if err := msg.Respond(payload); err != nil {
			s.logger.Debug().Err(err).Str("subject", subject).Msg("Failed to send NATS reply")
		}
	})
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Shutdown drains subscriptions and pending publishes. If ctx ends first the
// connection is closed immediately.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
		return nil
	}
	for !s.conn.IsClosed() {
		select {
		case <-ctx.Done():
			s.logger.Warn().Msg("NATS drain timed out, closing")
			s.conn.Close()
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	return nil
}
