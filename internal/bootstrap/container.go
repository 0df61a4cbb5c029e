package bootstrap

import (
	"context"
	"fmt"
	"time"

	"servicelines-be/internal/config"
	"servicelines-be/internal/controller"
	"servicelines-be/internal/handler"
	"servicelines-be/internal/pkg/logger"
	"servicelines-be/internal/repository/contract"
	"servicelines-be/internal/repository/implementation"
	"servicelines-be/internal/repository/memory"
	"servicelines-be/internal/service"
	"servicelines-be/internal/websocket"
	"servicelines-be/pkg/attachment"
	pktNats "servicelines-be/pkg/nats"
	"servicelines-be/pkg/pipeline"
	"servicelines-be/pkg/pipeline/dedup"
	"servicelines-be/pkg/pipeline/mock"
	"servicelines-be/pkg/pipeline/remote"
	"servicelines-be/pkg/store"
	workflowEvents "servicelines-be/pkg/workflow/events"
	"servicelines-be/pkg/workflow/orchestrator"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const janitorInterval = 15 * time.Minute

type Container struct {
	Logger logger.ILogger

	// Controllers
	WorkflowController   controller.IWorkflowController
	ThreadController     controller.IThreadController
	AttachmentController controller.IAttachmentController

	// Services
	SessionService  service.ISessionService
	WorkflowService service.IWorkflowService

	// Background Services (Exposed for main.go to run)
	ConsumerService   service.IConsumerService
	EventAuditService *service.EventAuditService // nil without NATS
	StoreJanitor      *service.StoreJanitor      // nil unless the store keeps expired rows

	// WebSockets
	StreamHandler *handler.StreamHandler
	WebSocketHub  *websocket.Hub

	closers []func()
}

// NewContainer wires every dependency. db is only required for the postgres
// store backend.
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	c := &Container{}

	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	c.Logger = sysLogger

	// 2. Event Bus (orchestrator updates -> websocket hub)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Infrastructure
	// Redis (optional)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to parse Redis URL, using it as an address", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// NATS (optional)
	var eventPublisher workflowEvents.EventPublisher
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect NATS publisher", map[string]interface{}{"error": err.Error()})
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect NATS subscriber", map[string]interface{}{"error": err.Error()})
		} else {
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	// Session storage
	kvRepo, err := newKVRepository(cfg, db, rdb)
	if err != nil {
		return nil, err
	}
	if purger, ok := kvRepo.(service.ExpiredPurger); ok {
		c.StoreJanitor = service.NewStoreJanitor(purger, janitorInterval, sysLogger)
	}
	sessionStore := store.NewSession(kvRepo, sysLogger)

	// Pipeline backend
	client, err := newPipelineClient(cfg.Pipeline, sysLogger)
	if err != nil {
		return nil, err
	}
	dedupKey, err := dedup.ParseStrategy(cfg.Workflow.DedupStrategy)
	if err != nil {
		return nil, err
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.StreamLogFilePath)
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger)

	// 4. Services
	c.SessionService = service.NewSessionService(cfg.Session.Secret, cfg.Session.TTL)
	c.WorkflowService = service.NewWorkflowService(
		client,
		sessionStore,
		pubSub,
		workflowEvents.NewNatsPublisher(eventPublisher, sysLogger),
		sysLogger,
		service.WorkflowServiceConfig{
			Orchestrator: orchestrator.Config{
				RevealPacing:     cfg.Workflow.RevealPacing,
				DedupKey:         dedupKey,
				RegenConcurrency: cfg.Workflow.RegenConcurrency,
				StrictSelection:  cfg.Workflow.SelectionStrict,
			},
			WorkspaceTTL: cfg.Workflow.WorkspaceTTL,
		},
	)
	c.ConsumerService = service.NewConsumerService(pubSub, service.UpdateTopic, c.WebSocketHub, wsLogger)
	if natsSub != nil {
		c.EventAuditService = service.NewEventAuditService(natsSub, c.WebSocketHub, sysLogger)
	}

	// 5. Controllers & Handlers
	c.WorkflowController = controller.NewWorkflowController(c.WorkflowService, c.SessionService)
	c.ThreadController = controller.NewThreadController(c.WorkflowService, c.SessionService)
	c.AttachmentController = controller.NewAttachmentController(attachment.PlainTextExtractor{}, c.SessionService)
	c.StreamHandler = handler.NewStreamHandler(c.SessionService, c.WebSocketHub, wsLogger)

	return c, nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}

func newKVRepository(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (contract.KVRepository, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory, "":
		return memory.NewKVRepository(cfg.Store.TTL), nil
	case config.StoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("STORE_BACKEND=redis requires REDIS_URL")
		}
		return implementation.NewRedisKVRepository(rdb, cfg.Store.TTL), nil
	case config.StorePostgres:
		if db == nil {
			return nil, fmt.Errorf("STORE_BACKEND=postgres requires DB_CONNECTION_STRING")
		}
		return implementation.NewGormKVRepository(db, cfg.Store.TTL), nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
}

func newPipelineClient(cfg config.PipelineConfig, log logger.ILogger) (pipeline.Client, error) {
	switch cfg.Client {
	case config.PipelineMock, "":
		log.Info("Bootstrap", "Using simulated pipeline backend", map[string]interface{}{"delay": cfg.MockDelay.String()})
		return mock.NewClient(cfg.MockDelay), nil
	case config.PipelineHTTP:
		log.Info("Bootstrap", "Using remote pipeline backend", map[string]interface{}{"base_url": cfg.BaseURL})
		return remote.NewClient(cfg.BaseURL, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unknown PIPELINE_CLIENT %q", cfg.Client)
}
