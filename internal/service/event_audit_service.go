package service

import (
	"context"
	"encoding/json"
	"time"

	"servicelines-be/internal/pkg/logger"
	"servicelines-be/pkg/events"
	pktNats "servicelines-be/pkg/nats"
)

const (
	auditModule      = "EventAudit"
	auditDurable     = "servicelines-audit"
	EventMessageType = "workflow_event"
)

// EventSubscriber is satisfied by *nats.Subscriber.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error
}

type eventMessage struct {
	Type       string                 `json:"type"`
	Event      string                 `json:"event"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// EventAuditService writes pipeline lifecycle events to the log and relays
// them to the websocket connections of the originating session.
type EventAuditService struct {
	subscriber EventSubscriber
	delivery   UpdateSink
	logger     logger.ILogger
}

func NewEventAuditService(sub EventSubscriber, delivery UpdateSink, log logger.ILogger) *EventAuditService {
	return &EventAuditService{
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

// Start subscribes to every lifecycle event with a durable consumer.
func (s *EventAuditService) Start(ctx context.Context) error {
	if err := s.subscriber.Subscribe(ctx, pktNats.SubjectPattern, auditDurable, s.handleEvent); err != nil {
		s.logger.Error(auditModule, "Failed to start event subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info(auditModule, "Listening to "+pktNats.SubjectPattern, nil)
	return nil
}

func (s *EventAuditService) handleEvent(_ context.Context, event events.Event) error {
	payload := event.Payload()
	details := map[string]interface{}{"type": event.EventType()}
	for _, key := range []string{"session_id", "thread_id", "query", "stage", "reason", "version_index"} {
		if v, ok := payload[key]; ok {
			details[key] = v
		}
	}

	switch event.EventType() {
	case events.TypePipelineFailed:
		s.logger.Warn(auditModule, "Pipeline run failed", details)
	case events.TypePipelineCompleted, events.TypeRegenerationCompleted:
		s.logger.Info(auditModule, "Pipeline event", details)
	default:
		s.logger.Debug(auditModule, "Ignoring unknown event", details)
		return nil
	}

	sessionID, _ := payload["session_id"].(string)
	if sessionID == "" || s.delivery == nil {
		return nil
	}
	data, err := json.Marshal(eventMessage{
		Type:       EventMessageType,
		Event:      event.EventType(),
		Data:       payload,
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		// Malformed payloads would fail again on redelivery.
		s.logger.Error(auditModule, "Failed to encode event", map[string]interface{}{"error": err.Error()})
		return nil
	}
	s.delivery.Send(sessionID, data)
	return nil
}
