package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"chargeslot/backend/services/booking-service/internal/models"
)

func TestLogNotifierWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	notifier.Notify(context.Background(), models.Notification{
		UserID:  7,
		Type:    models.NotifyWalletCredited,
		Message: "wallet topped up",
	})

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(7), fields["user_id"])
	assert.Equal(t, models.NotifyWalletCredited, fields["type"])
}
