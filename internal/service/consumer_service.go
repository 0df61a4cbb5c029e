package service

import (
	"context"

	"servicelines-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// UpdateSink delivers an encoded update to the connections of a session.
// *websocket.Hub satisfies it.
type UpdateSink interface {
	Send(sessionID string, data []byte)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	sink      UpdateSink
	logger    logger.ILogger
}

// NewConsumerService moves workflow updates from the in-process bus to the
// websocket hub.
func NewConsumerService(pubSub *gochannel.GoChannel, topicName string, sink UpdateSink, log logger.ILogger) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		sink:      sink,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	sessionID := msg.Metadata.Get(MetadataSessionID)
	if sessionID == "" {
		cs.logger.Warn("Consumer", "Dropping update without session id", map[string]interface{}{"uuid": msg.UUID})
		msg.Ack()
		return
	}
	cs.sink.Send(sessionID, msg.Payload)
	msg.Ack()
}
