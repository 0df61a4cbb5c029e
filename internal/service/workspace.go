package service

import (
	"context"
	"encoding/json"
	"sync"

	"servicelines-be/internal/dto"
	"servicelines-be/internal/pkg/logger"
	"servicelines-be/pkg/chat/thread"
	"servicelines-be/pkg/pipeline"
	"servicelines-be/pkg/store"
	workflowEvents "servicelines-be/pkg/workflow/events"
	"servicelines-be/pkg/workflow/orchestrator"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	UpdateTopic       = "workflow.updates"
	MetadataSessionID = "session_id"
	UpdateMessageType = "workflow_update"
)

// workspace is the server-side state of one browser session: its threads
// and the live orchestrator session.
type workspace struct {
	sessionID string
	orch      *orchestrator.Orchestrator
	threads   *thread.Manager
	store     *store.Session
	publisher message.Publisher
	events    workflowEvents.Publisher
	logger    logger.ILogger

	// mu guards threads. It may be held while calling into orch.
	mu sync.Mutex

	// metaMu guards the fields below; OnUpdate takes only metaMu because it
	// runs inside orchestrator emissions.
	metaMu      sync.Mutex
	currentID   string
	runThreadID string
}

func (w *workspace) restore(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	threads, _ := w.store.LoadThreads(ctx, w.sessionID)
	current, _ := w.store.LoadCurrentChat(ctx, w.sessionID)
	w.threads.Restore(threads, current)
	if _, created := w.threads.EnsureCurrent(); created || current != w.threads.CurrentID() {
		w.persistLocked(ctx)
	}
	w.syncCurrentLocked()

	if versions, ok := w.store.LoadVariants(ctx, w.sessionID); ok {
		w.orch.RestoreVersions(versions)
		w.logger.Info(workflowModule, "Workspace restored", map[string]interface{}{
			"session_id": w.sessionID,
			"versions":   len(versions),
		})
	}
}

func (w *workspace) persistLocked(ctx context.Context) {
	threads, current := w.threads.Snapshot()
	w.store.SaveThreads(ctx, w.sessionID, threads)
	w.store.SaveCurrentChat(ctx, w.sessionID, current)
}

func (w *workspace) syncCurrentLocked() {
	w.metaMu.Lock()
	w.currentID = w.threads.CurrentID()
	w.metaMu.Unlock()
}

func (w *workspace) threadIDs() (current, run string) {
	w.metaMu.Lock()
	defer w.metaMu.Unlock()
	return w.currentID, w.runThreadID
}

// RecordHistory appends item to the thread the run was started from.
func (w *workspace) RecordHistory(ctx context.Context, item thread.HistoryItem) error {
	current, target := w.threadIDs()
	if target == "" {
		target = current
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.threads.AppendHistory(target, item); err != nil {
		return err
	}
	w.persistLocked(ctx)
	return nil
}

func (w *workspace) OnUpdate(u orchestrator.Update) {
	ctx := context.Background()

	w.metaMu.Lock()
	if u.Kind == orchestrator.KindRunStarted || u.Kind == orchestrator.KindRegenerationStarted {
		w.runThreadID = w.currentID
	}
	threadID := w.runThreadID
	if threadID == "" {
		threadID = w.currentID
	}
	w.metaMu.Unlock()

	w.forward(threadID, u)

	switch u.Kind {
	case orchestrator.KindRunStarted, orchestrator.KindSessionReset:
		w.store.ClearVariants(ctx, w.sessionID)
	case orchestrator.KindVersionCreated:
		versions, _ := w.orch.Versions()
		w.store.SaveVariants(ctx, w.sessionID, versions)
	case orchestrator.KindRunCompleted:
		w.events.PublishPipelineCompleted(ctx, w.sessionID, threadID, u.State.Run.Query,
			len(u.State.Run.ServiceClasses), u.State.CurrentVersion)
	case orchestrator.KindRunFailed:
		stage := ""
		if u.Stage >= 0 && u.Stage < len(pipeline.Stages) {
			stage = string(pipeline.Stages[u.Stage])
		}
		w.events.PublishPipelineFailed(ctx, w.sessionID, threadID, u.State.Run.Query, stage, u.State.LastError)
	case orchestrator.KindRegenerationCompleted:
		if summary := u.State.LastRegeneration; summary != nil {
			w.events.PublishRegenerationCompleted(ctx, w.sessionID, threadID, summary.Query,
				summary.Regenerated, summary.Failed, summary.VersionIndex)
		}
	}
}

func (w *workspace) forward(threadID string, u orchestrator.Update) {
	if w.publisher == nil {
		return
	}
	payload, err := json.Marshal(dto.WorkflowUpdateMessage{
		Type:      UpdateMessageType,
		SessionID: w.sessionID,
		ThreadID:  threadID,
		Update:    u,
	})
	if err != nil {
		w.logger.Error(workflowModule, "Failed to encode workflow update", map[string]interface{}{
			"session_id": w.sessionID,
			"kind":       string(u.Kind),
			"error":      err.Error(),
		})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataSessionID, w.sessionID)
	if err := w.publisher.Publish(UpdateTopic, msg); err != nil {
		w.logger.Warn(workflowModule, "Failed to publish workflow update", map[string]interface{}{
			"session_id": w.sessionID,
			"kind":       string(u.Kind),
			"error":      err.Error(),
		})
	}
}

func (w *workspace) threadList() *dto.ThreadListResponse {
	current := w.threads.CurrentID()
	list := w.threads.List()
	res := &dto.ThreadListResponse{
		Threads:   make([]dto.ThreadResponse, 0, len(list)),
		CurrentID: current,
	}
	for _, t := range list {
		res.Threads = append(res.Threads, dto.ThreadResponse{Thread: t, Current: t.ID == current})
	}
	return res
}
