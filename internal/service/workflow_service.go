package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"servicelines-be/internal/dto"
	"servicelines-be/internal/pkg/logger"
	"servicelines-be/pkg/attachment"
	"servicelines-be/pkg/chat/thread"
	"servicelines-be/pkg/pipeline"
	"servicelines-be/pkg/store"
	workflowEvents "servicelines-be/pkg/workflow/events"
	"servicelines-be/pkg/workflow/orchestrator"
	"servicelines-be/pkg/workflow/selection"
	"servicelines-be/pkg/workflow/version"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/patrickmn/go-cache"
)

const workflowModule = "WorkflowService"

type IWorkflowService interface {
	State(ctx context.Context, sessionID string) (*dto.WorkflowStateResponse, error)
	Submit(ctx context.Context, sessionID string, req *dto.SubmitRequest) (*dto.SubmitResponse, error)
	Regenerate(ctx context.Context, sessionID string, req *dto.RegenerateRequest) error
	SetSelected(ctx context.Context, sessionID string, index int, req *dto.SelectionRequest) error
	SetChoice(ctx context.Context, sessionID string, index int, req *dto.ChoiceRequest) error
	SetCarousel(ctx context.Context, sessionID string, index int, req *dto.CarouselRequest) error
	Review(ctx context.Context, sessionID string) (*dto.ReviewResponse, error)
	Versions(ctx context.Context, sessionID string) (*dto.VersionsResponse, error)
	SwitchVersion(ctx context.Context, sessionID string, index int) (*version.Version, error)
	Threads(ctx context.Context, sessionID string) (*dto.ThreadListResponse, error)
	CreateThread(ctx context.Context, sessionID string) (*dto.ThreadListResponse, error)
	SelectThread(ctx context.Context, sessionID, threadID string) (*dto.ThreadListResponse, error)
	DeleteThread(ctx context.Context, sessionID, threadID string) (*dto.ThreadListResponse, error)
	// Shutdown waits for every background run of every cached workspace.
	Shutdown()
}

type WorkflowServiceConfig struct {
	Orchestrator orchestrator.Config
	WorkspaceTTL time.Duration
}

type workflowService struct {
	client    pipeline.Client
	store     *store.Session
	publisher message.Publisher
	events    workflowEvents.Publisher
	logger    logger.ILogger
	cfg       WorkflowServiceConfig

	mu         sync.Mutex
	workspaces *cache.Cache
}

// NewWorkflowService builds the per-session workflow entry point. publisher
// may be nil when no update stream is wired.
func NewWorkflowService(
	client pipeline.Client,
	sessionStore *store.Session,
	publisher message.Publisher,
	events workflowEvents.Publisher,
	log logger.ILogger,
	cfg WorkflowServiceConfig,
) IWorkflowService {
	ttl := cfg.WorkspaceTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	if events == nil {
		events = workflowEvents.NewNatsPublisher(nil, log)
	}
	return &workflowService{
		client:     client,
		store:      sessionStore,
		publisher:  publisher,
		events:     events,
		logger:     log,
		cfg:        cfg,
		workspaces: cache.New(ttl, 10*time.Minute),
	}
}

// workspace returns the cached workspace of sessionID, restoring it from the
// session store on first use. Every access extends its lifetime.
func (s *workflowService) workspace(ctx context.Context, sessionID string) *workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.workspaces.Get(sessionID); ok {
		ws := v.(*workspace)
		s.workspaces.SetDefault(sessionID, ws)
		return ws
	}

	ws := &workspace{
		sessionID: sessionID,
		threads:   thread.NewManager(),
		store:     s.store,
		publisher: s.publisher,
		events:    s.events,
		logger:    s.logger,
	}
	ws.orch = orchestrator.New(s.client, ws, s.logger, s.cfg.Orchestrator, ws)
	ws.restore(ctx)

	s.workspaces.SetDefault(sessionID, ws)
	return ws
}

func (s *workflowService) State(ctx context.Context, sessionID string) (*dto.WorkflowStateResponse, error) {
	ws := s.workspace(ctx, sessionID)
	current, _ := ws.threadIDs()
	return &dto.WorkflowStateResponse{
		ThreadID: current,
		State:    ws.orch.State(),
	}, nil
}

func (s *workflowService) Submit(ctx context.Context, sessionID string, req *dto.SubmitRequest) (*dto.SubmitResponse, error) {
	ws := s.workspace(ctx, sessionID)
	query := attachment.ComposeQuery(req.Query, req.AttachmentText)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if err := ws.orch.Submit(ctx, query); err != nil {
		return nil, err
	}

	threadID := ws.threads.CurrentID()
	if err := ws.threads.UpdateTitle(threadID, req.Query); err != nil {
		s.logger.Warn(workflowModule, "Failed to update thread title", map[string]interface{}{
			"session_id": sessionID,
			"thread_id":  threadID,
			"error":      err.Error(),
		})
	}
	ws.persistLocked(ctx)

	s.logger.Info(workflowModule, "Query submitted", map[string]interface{}{
		"session_id":     sessionID,
		"thread_id":      threadID,
		"has_attachment": strings.TrimSpace(req.AttachmentText) != "",
	})
	return &dto.SubmitResponse{ThreadID: threadID, Query: query}, nil
}

func (s *workflowService) Regenerate(ctx context.Context, sessionID string, req *dto.RegenerateRequest) error {
	ws := s.workspace(ctx, sessionID)
	return ws.orch.Regenerate(ctx, req.Indices, req.Instruction)
}

func (s *workflowService) SetSelected(ctx context.Context, sessionID string, index int, req *dto.SelectionRequest) error {
	return s.workspace(ctx, sessionID).orch.SetSelected(index, req.Selected)
}

func (s *workflowService) SetChoice(ctx context.Context, sessionID string, index int, req *dto.ChoiceRequest) error {
	choice, err := selection.ParseChoice(req.Choice)
	if err != nil {
		return err
	}
	return s.workspace(ctx, sessionID).orch.SetChoice(index, choice)
}

func (s *workflowService) SetCarousel(ctx context.Context, sessionID string, index int, req *dto.CarouselRequest) error {
	return s.workspace(ctx, sessionID).orch.SetCarousel(index, req.Position)
}

func (s *workflowService) Review(ctx context.Context, sessionID string) (*dto.ReviewResponse, error) {
	items := s.workspace(ctx, sessionID).orch.Review()
	if items == nil {
		items = []selection.ReviewItem{}
	}
	return &dto.ReviewResponse{Items: items}, nil
}

func (s *workflowService) Versions(ctx context.Context, sessionID string) (*dto.VersionsResponse, error) {
	versions, current := s.workspace(ctx, sessionID).orch.Versions()
	return &dto.VersionsResponse{Versions: versions, CurrentIndex: current}, nil
}

func (s *workflowService) SwitchVersion(ctx context.Context, sessionID string, index int) (*version.Version, error) {
	v, err := s.workspace(ctx, sessionID).orch.SwitchVersion(index)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *workflowService) Threads(ctx context.Context, sessionID string) (*dto.ThreadListResponse, error) {
	ws := s.workspace(ctx, sessionID)
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.threadList(), nil
}

// CreateThread adds a thread and switches to it.
func (s *workflowService) CreateThread(ctx context.Context, sessionID string) (*dto.ThreadListResponse, error) {
	ws := s.workspace(ctx, sessionID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	t := ws.threads.Create()
	if _, err := ws.threads.Select(t.ID); err != nil {
		return nil, err
	}
	ws.syncCurrentLocked()
	ws.orch.Reset()
	ws.persistLocked(ctx)

	s.logger.Info(workflowModule, "Thread created", map[string]interface{}{
		"session_id": sessionID,
		"thread_id":  t.ID,
	})
	return ws.threadList(), nil
}

func (s *workflowService) SelectThread(ctx context.Context, sessionID, threadID string) (*dto.ThreadListResponse, error) {
	ws := s.workspace(ctx, sessionID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	changed, err := ws.threads.Select(threadID)
	if err != nil {
		return nil, err
	}
	if changed {
		ws.syncCurrentLocked()
		ws.orch.Reset()
		ws.persistLocked(ctx)
	}
	return ws.threadList(), nil
}

func (s *workflowService) DeleteThread(ctx context.Context, sessionID, threadID string) (*dto.ThreadListResponse, error) {
	ws := s.workspace(ctx, sessionID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	switched, err := ws.threads.Delete(threadID)
	if err != nil {
		return nil, err
	}
	if switched {
		ws.syncCurrentLocked()
		ws.orch.Reset()
	}
	ws.persistLocked(ctx)

	s.logger.Info(workflowModule, "Thread deleted", map[string]interface{}{
		"session_id": sessionID,
		"thread_id":  threadID,
		"switched":   switched,
	})
	return ws.threadList(), nil
}

func (s *workflowService) Shutdown() {
	s.mu.Lock()
	items := s.workspaces.Items()
	s.mu.Unlock()

	for _, item := range items {
		item.Object.(*workspace).orch.Wait()
	}
}
