package notify

import (
	"context"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
)

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, msg models.Notification) {
	n.logger.Info("notification",
		zap.Int64("user_id", msg.UserID),
		zap.Int64("station_id", msg.StationID),
		zap.String("type", msg.Type),
		zap.String("message", msg.Message),
	)
}
