package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/pubsub/memory"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversEnvelope(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.GetDefaultConfig()
	ps := memory.NewPubSub(logger.NewNoopLogger())
	p := NewEventPublisher(ps, cfg, logger.NewNoopLogger())
	defer p.Close()

	messages, err := ps.Subscribe(ctx, cfg.Events.Topic)
	require.NoError(t, err)

	event := types.NewEvent(types.EventAlertRaised, "tenant_1", map[string]any{"type": "THRESHOLD_70"})
	require.NoError(t, p.Publish(ctx, event))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, "tenant_1", msg.Metadata.Get("tenant_id"))
		assert.Equal(t, string(types.EventAlertRaised), msg.Metadata.Get("event_name"))

		var got types.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "THRESHOLD_70", got.Payload["type"])
	case <-ctx.Done():
		t.Fatal("event was not delivered")
	}
}
