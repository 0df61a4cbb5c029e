package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"servicelines-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (s *sinkRecorder) Send(sessionID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][]string)
	}
	s.sent[sessionID] = append(s.sent[sessionID], string(data))
}

func (s *sinkRecorder) get(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent[sessionID]...)
}

func TestConsumerForwardsBySession(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &sinkRecorder{}
	require.NoError(t, NewConsumerService(pubSub, UpdateTopic, sink, logger.NewNopLogger()).Consume(ctx))

	first := message.NewMessage(watermill.NewUUID(), []byte(`{"n":1}`))
	first.Metadata.Set(MetadataSessionID, "sess")
	orphan := message.NewMessage(watermill.NewUUID(), []byte(`{"n":2}`))
	second := message.NewMessage(watermill.NewUUID(), []byte(`{"n":3}`))
	second.Metadata.Set(MetadataSessionID, "sess")

	require.NoError(t, pubSub.Publish(UpdateTopic, first))
	require.NoError(t, pubSub.Publish(UpdateTopic, orphan))
	require.NoError(t, pubSub.Publish(UpdateTopic, second))

	require.Eventually(t, func() bool { return len(sink.get("sess")) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`{"n":1}`, `{"n":3}`}, sink.get("sess"))
	assert.Empty(t, sink.get(""))
}
