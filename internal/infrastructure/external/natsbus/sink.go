// Package natsbus publishes workflow notifications to NATS for downstream
// notification services.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/domain/entity"
)

// DefaultSubjectPrefix is used when no prefix is configured
const DefaultSubjectPrefix = "notifications.trip"

// FlushWithContext requires a deadline
const defaultFlushTimeout = 5 * time.Second

// Config holds NATS connection settings
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
}

// Message is the JSON document published for each notification
type Message struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	BookingID string    `json:"booking_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

// publisher is satisfied by *nats.Conn
type publisher interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Sink publishes notifications on "<prefix>.<type>"
type Sink struct {
	conn   publisher
	prefix string
	logger *zap.Logger
}

// Connect dials NATS with reconnect handling logged through logger
func Connect(cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	name := cfg.Name
	if name == "" {
		name = "trip-approval"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	logger.Info("NATS connection established", zap.String("url", cfg.URL))
	return conn, nil
}

// NewSink creates a sink publishing through conn
func NewSink(conn *nats.Conn, prefix string, logger *zap.Logger) *Sink {
	return newSink(conn, prefix, logger)
}

func newSink(conn publisher, prefix string, logger *zap.Logger) *Sink {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Sink{conn: conn, prefix: prefix, logger: logger}
}

// Name identifies the sink in logs
func (s *Sink) Name() string {
	return "nats"
}

// Subject returns the subject a notification type is published on
func (s *Sink) Subject(t entity.NotificationType) string {
	return s.prefix + "." + strings.ToLower(string(t))
}

// Send publishes one notification and flushes so broker errors surface to the caller
func (s *Sink) Send(ctx context.Context, userID, bookingID string, t entity.NotificationType, title, message string) error {
	data, err := json.Marshal(Message{
		Type:      string(t),
		UserID:    userID,
		BookingID: bookingID,
		Title:     title,
		Body:      message,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("nats: encode message: %w", err)
	}

	subject := s.Subject(t)
	if err := s.conn.Publish(subject, data); err != nil {
		s.logger.Warn("Failed to publish notification",
			zap.String("subject", subject),
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("nats: publish %s: %w", subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats: flush %s: %w", subject, err)
	}
	return nil
}
