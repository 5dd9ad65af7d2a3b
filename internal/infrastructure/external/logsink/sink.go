// Package logsink writes notifications to the structured log. It is the
// default sink in development.
package logsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/domain/entity"
)

// Sink logs every notification at info level
type Sink struct {
	logger *zap.Logger
}

// New creates a log sink
func New(logger *zap.Logger) *Sink {
	return &Sink{logger: logger.Named("notification")}
}

func (s *Sink) Name() string {
	return "log"
}

func (s *Sink) Send(ctx context.Context, userID, bookingID string, t entity.NotificationType, title, message string) error {
	s.logger.Info(title,
		zap.String("user_id", userID),
		zap.String("booking_id", bookingID),
		zap.String("type", string(t)),
		zap.String("message", message))
	return nil
}
