package events

import (
	"context"
	"time"

	"servicelines-be/internal/pkg/logger"
	pkgEvents "servicelines-be/pkg/events"
)

// EventPublisher is satisfied by *nats.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event pkgEvents.Event) error
}

// Publisher abstracts lifecycle events of pipeline runs.
type Publisher interface {
	PublishPipelineCompleted(ctx context.Context, sessionID, threadID, query string, classes, versionIndex int)
	PublishPipelineFailed(ctx context.Context, sessionID, threadID, query, stage, reason string)
	PublishRegenerationCompleted(ctx context.Context, sessionID, threadID, query string, regenerated, failed, versionIndex int)
}

type NatsPublisher struct {
	publisher EventPublisher
	logger    logger.ILogger
}

// NewNatsPublisher wraps publisher; a nil publisher turns every call into a
// no-op.
func NewNatsPublisher(publisher EventPublisher, logger logger.ILogger) *NatsPublisher {
	return &NatsPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *NatsPublisher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if p == nil || p.publisher == nil {
		return
	}

	now := time.Now()
	data["occurred_at"] = now
	evt := pkgEvents.BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: now,
	}

	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.logger.Error("WORKFLOW", "Failed to publish "+eventType+" event", map[string]interface{}{"error": err.Error()})
	}
}

func (p *NatsPublisher) PublishPipelineCompleted(ctx context.Context, sessionID, threadID, query string, classes, versionIndex int) {
	p.publish(ctx, pkgEvents.TypePipelineCompleted, map[string]interface{}{
		"session_id":    sessionID,
		"thread_id":     threadID,
		"query":         query,
		"classes":       classes,
		"version_index": versionIndex,
	})
}

func (p *NatsPublisher) PublishPipelineFailed(ctx context.Context, sessionID, threadID, query, stage, reason string) {
	p.publish(ctx, pkgEvents.TypePipelineFailed, map[string]interface{}{
		"session_id": sessionID,
		"thread_id":  threadID,
		"query":      query,
		"stage":      stage,
		"reason":     reason,
	})
}

func (p *NatsPublisher) PublishRegenerationCompleted(ctx context.Context, sessionID, threadID, query string, regenerated, failed, versionIndex int) {
	p.publish(ctx, pkgEvents.TypeRegenerationCompleted, map[string]interface{}{
		"session_id":    sessionID,
		"thread_id":     threadID,
		"query":         query,
		"regenerated":   regenerated,
		"failed":        failed,
		"version_index": versionIndex,
	})
}
