package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"servicelines-be/internal/pkg/logger"
	"servicelines-be/pkg/events"
	pktNats "servicelines-be/pkg/nats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	subject, durable string
	handler          pktNats.EventHandler
}

func (f *fakeSubscriber) Subscribe(_ context.Context, subject, durable string, handler pktNats.EventHandler) error {
	f.subject, f.durable, f.handler = subject, durable, handler
	return nil
}

func TestEventAuditRelaysToSession(t *testing.T) {
	sub := &fakeSubscriber{}
	sink := &sinkRecorder{}
	svc := NewEventAuditService(sub, sink, logger.NewNopLogger())
	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, pktNats.SubjectPattern, sub.subject)
	assert.Equal(t, auditDurable, sub.durable)

	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := sub.handler(context.Background(), events.BaseEvent{
		Type:       events.TypePipelineFailed,
		Data:       map[string]interface{}{"session_id": "sess", "stage": "types", "reason": "backend down"},
		OccurredAt: occurred,
	})
	require.NoError(t, err)

	sent := sink.get("sess")
	require.Len(t, sent, 1)
	var msg eventMessage
	require.NoError(t, json.Unmarshal([]byte(sent[0]), &msg))
	assert.Equal(t, EventMessageType, msg.Type)
	assert.Equal(t, events.TypePipelineFailed, msg.Event)
	assert.Equal(t, "types", msg.Data["stage"])
	assert.True(t, msg.OccurredAt.Equal(occurred))
}

func TestEventAuditIgnoresUnknownAndAnonymous(t *testing.T) {
	sub := &fakeSubscriber{}
	sink := &sinkRecorder{}
	require.NoError(t, NewEventAuditService(sub, sink, logger.NewNopLogger()).Start(context.Background()))

	require.NoError(t, sub.handler(context.Background(), events.BaseEvent{
		Type: "SOMETHING_ELSE",
		Data: map[string]interface{}{"session_id": "sess"},
	}))
	require.NoError(t, sub.handler(context.Background(), events.BaseEvent{
		Type: events.TypePipelineCompleted,
		Data: map[string]interface{}{"query": "repair pumps"},
	}))
	assert.Empty(t, sink.get("sess"))
}
