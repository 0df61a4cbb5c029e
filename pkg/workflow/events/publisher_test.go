package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"servicelines-be/internal/pkg/logger"
	pkgEvents "servicelines-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []pkgEvents.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e pkgEvents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestNatsPublisherPayloads(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewNatsPublisher(rec, logger.NewNopLogger())
	ctx := context.Background()

	p.PublishPipelineCompleted(ctx, "s1", "t1", "repair pumps", 2, 0)
	p.PublishPipelineFailed(ctx, "s1", "t1", "repair pumps", "types", "upstream 502")
	p.PublishRegenerationCompleted(ctx, "s1", "t1", "repair pumps [Enhanced with: x]", 1, 1, 1)

	require.Len(t, rec.events, 3)
	assert.Equal(t, pkgEvents.TypePipelineCompleted, rec.events[0].EventType())
	assert.Equal(t, 2, rec.events[0].Payload()["classes"])
	assert.Equal(t, "types", rec.events[1].Payload()["stage"])
	assert.Equal(t, 1, rec.events[2].Payload()["failed"])
	assert.Contains(t, rec.events[2].Payload(), "occurred_at")
}

func TestNatsPublisherIsNilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNatsPublisher(nil, logger.NewNopLogger()).PublishPipelineCompleted(context.Background(), "s", "t", "q", 1, 0)
		var p *NatsPublisher
		p.PublishPipelineFailed(context.Background(), "s", "t", "q", "types", "x")
	})

	failing := NewNatsPublisher(&recordingPublisher{err: errors.New("nats down")}, logger.NewNopLogger())
	assert.NotPanics(t, func() {
		failing.PublishRegenerationCompleted(context.Background(), "s", "t", "q", 0, 1, 1)
	})
}
