package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"servicelines-be/internal/dto"
	"servicelines-be/internal/pkg/logger"
	"servicelines-be/internal/repository/contract"
	"servicelines-be/internal/repository/memory"
	"servicelines-be/pkg/apperr"
	"servicelines-be/pkg/pipeline"
	"servicelines-be/pkg/pipeline/mock"
	"servicelines-be/pkg/store"
	"servicelines-be/pkg/workflow/orchestrator"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	kind        string
	threadID    string
	query       string
	count       int
	failed      int
	versionIdx  int
	stage       string
	failMessage string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) add(e recordedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeEvents) all() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

func (f *fakeEvents) PublishPipelineCompleted(_ context.Context, _, threadID, query string, classes, versionIndex int) {
	f.add(recordedEvent{kind: "completed", threadID: threadID, query: query, count: classes, versionIdx: versionIndex})
}

func (f *fakeEvents) PublishPipelineFailed(_ context.Context, _, threadID, query, stage, reason string) {
	f.add(recordedEvent{kind: "failed", threadID: threadID, query: query, stage: stage, failMessage: reason})
}

func (f *fakeEvents) PublishRegenerationCompleted(_ context.Context, _, threadID, query string, regenerated, failed, versionIndex int) {
	f.add(recordedEvent{kind: "regenerated", threadID: threadID, query: query, count: regenerated, failed: failed, versionIdx: versionIndex})
}

type serviceFixture struct {
	svc    IWorkflowService
	repo   contract.KVRepository
	client *mock.Client
	events *fakeEvents
}

func newServiceFixture(t *testing.T, repo contract.KVRepository, pub *gochannel.GoChannel) serviceFixture {
	t.Helper()
	if repo == nil {
		repo = memory.NewKVRepository(time.Hour)
	}
	log := logger.NewNopLogger()
	client := mock.NewClient(0)
	events := &fakeEvents{}

	cfg := WorkflowServiceConfig{WorkspaceTTL: time.Hour}
	var svc IWorkflowService
	if pub != nil {
		svc = NewWorkflowService(client, store.NewSession(repo, log), pub, events, log, cfg)
	} else {
		svc = NewWorkflowService(client, store.NewSession(repo, log), nil, events, log, cfg)
	}
	t.Cleanup(svc.Shutdown)
	return serviceFixture{svc: svc, repo: repo, client: client, events: events}
}

func TestWorkflowSubmitCompletesAndPersists(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	res, err := f.svc.Submit(ctx, "sess", &dto.SubmitRequest{Query: "repair pumps"})
	require.NoError(t, err)
	assert.Equal(t, "repair pumps", res.Query)
	f.svc.Shutdown()

	state, err := f.svc.State(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, res.ThreadID, state.ThreadID)
	assert.True(t, state.State.Complete)
	assert.Len(t, state.State.Run.ServiceClasses, 3)
	assert.Equal(t, 1, state.State.VersionCount)

	threads, err := f.svc.Threads(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, threads.Threads, 1)
	assert.Equal(t, "repair pumps", threads.Threads[0].Title)
	assert.True(t, threads.Threads[0].HasSubmittedPrompt)
	require.Len(t, threads.Threads[0].PipelineHistory, 1)
	assert.Equal(t, "repair pumps", threads.Threads[0].PipelineHistory[0].Query)

	variants, ok := store.NewSession(f.repo, nil).LoadVariants(ctx, "sess")
	require.True(t, ok)
	assert.Len(t, variants, 1)

	evts := f.events.all()
	require.Len(t, evts, 1)
	assert.Equal(t, "completed", evts[0].kind)
	assert.Equal(t, res.ThreadID, evts[0].threadID)
	assert.Equal(t, 3, evts[0].count)
	assert.Equal(t, 0, evts[0].versionIdx)
}

func TestWorkflowSubmitAppendsAttachment(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	res, err := f.svc.Submit(ctx, "sess", &dto.SubmitRequest{Query: "repair pumps", AttachmentText: "Pump P-101 leaks"})
	require.NoError(t, err)
	f.svc.Shutdown()

	assert.Equal(t, "repair pumps\n\nAttached file content:\nPump P-101 leaks", res.Query)
	calls := f.client.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, pipeline.CategoriesRequest{Text: res.Query}, calls[0].Payload)

	threads, err := f.svc.Threads(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "repair pumps", threads.Threads[0].Title)
}

func TestWorkflowRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewKVRepository(time.Hour)

	first := newServiceFixture(t, repo, nil)
	_, err := first.svc.Submit(ctx, "sess", &dto.SubmitRequest{Query: "repair pumps"})
	require.NoError(t, err)
	first.svc.Shutdown()
	require.NoError(t, first.svc.Regenerate(ctx, "sess", &dto.RegenerateRequest{Indices: []int{0}, Instruction: "make it shorter"}))
	first.svc.Shutdown()

	second := newServiceFixture(t, repo, nil)
	state, err := second.svc.State(ctx, "sess")
	require.NoError(t, err)
	assert.True(t, state.State.Complete)
	assert.Equal(t, "repair pumps", state.State.Run.Query)
	assert.Equal(t, 2, state.State.VersionCount)
	assert.Equal(t, 1, state.State.CurrentVersion)
	assert.Equal(t, []int{0, 1, 2, 3}, state.State.Run.CompletedStages)
	assert.Contains(t, state.State.Run.TextGenerations[0].New, "(make it shorter)")

	threads, err := second.svc.Threads(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, threads.Threads, 1)
	assert.Len(t, threads.Threads[0].PipelineHistory, 2)
	assert.Equal(t, "repair pumps [Enhanced with: make it shorter]", threads.Threads[0].PipelineHistory[0].Query)
}

func TestWorkflowThreadSwitchResetsSession(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	first, err := f.svc.Submit(ctx, "sess", &dto.SubmitRequest{Query: "repair pumps"})
	require.NoError(t, err)
	f.svc.Shutdown()

	created, err := f.svc.CreateThread(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, created.Threads, 2)
	assert.NotEqual(t, first.ThreadID, created.CurrentID)

	state, err := f.svc.State(ctx, "sess")
	require.NoError(t, err)
	assert.False(t, state.State.Complete)
	assert.Empty(t, state.State.Run.ServiceClasses)
	assert.Equal(t, 0, state.State.VersionCount)

	_, ok := store.NewSession(f.repo, nil).LoadVariants(ctx, "sess")
	assert.False(t, ok)

	selected, err := f.svc.SelectThread(ctx, "sess", first.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, first.ThreadID, selected.CurrentID)

	deleted, err := f.svc.DeleteThread(ctx, "sess", first.ThreadID)
	require.NoError(t, err)
	require.Len(t, deleted.Threads, 1)
	assert.Equal(t, created.CurrentID, deleted.CurrentID)

	_, err = f.svc.DeleteThread(ctx, "sess", created.CurrentID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.SelectThread(ctx, "sess", "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWorkflowFailurePublishesEvent(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)
	f.client.On(pipeline.StageTypes, mock.Fail(errors.New("backend down")))

	_, err := f.svc.Submit(ctx, "sess", &dto.SubmitRequest{Query: "repair pumps"})
	require.NoError(t, err)
	f.svc.Shutdown()

	evts := f.events.all()
	require.Len(t, evts, 1)
	assert.Equal(t, "failed", evts[0].kind)
	assert.Equal(t, "types", evts[0].stage)
	assert.Contains(t, evts[0].failMessage, "backend down")

	threads, err := f.svc.Threads(ctx, "sess")
	require.NoError(t, err)
	assert.Empty(t, threads.Threads[0].PipelineHistory)
}

func TestWorkflowRegenerationEventCountsItems(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	_, err := f.svc.Submit(ctx, "sess", &dto.SubmitRequest{Query: "repair pumps"})
	require.NoError(t, err)
	f.svc.Shutdown()

	require.NoError(t, f.svc.Regenerate(ctx, "sess", &dto.RegenerateRequest{Indices: []int{0, 2}, Instruction: "mention seals"}))
	f.svc.Shutdown()

	evts := f.events.all()
	require.Len(t, evts, 2)
	assert.Equal(t, "regenerated", evts[1].kind)
	assert.Equal(t, 2, evts[1].count)
	assert.Equal(t, 0, evts[1].failed)
	assert.Equal(t, 1, evts[1].versionIdx)
	assert.Equal(t, "repair pumps [Enhanced with: mention seals]", evts[1].query)
}

func TestWorkflowRegenerationReportsFailures(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	_, err := f.svc.Submit(ctx, "sess", &dto.SubmitRequest{Query: "repair pumps"})
	require.NoError(t, err)
	f.svc.Shutdown()

	f.client.On(pipeline.StageGenerateText, mock.Fail(errors.New("backend timeout")))
	require.NoError(t, f.svc.Regenerate(ctx, "sess", &dto.RegenerateRequest{Indices: []int{1}, Instruction: "make it shorter"}))
	f.svc.Shutdown()

	evts := f.events.all()
	require.Len(t, evts, 2)
	assert.Equal(t, "regenerated", evts[1].kind)
	assert.Equal(t, 0, evts[1].count)
	assert.Equal(t, 1, evts[1].failed)
	assert.Equal(t, "repair pumps [Enhanced with: make it shorter]", evts[1].query)

	state, err := f.svc.State(ctx, "sess")
	require.NoError(t, err)
	summary := state.State.LastRegeneration
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Regenerated)
	assert.Equal(t, 1, summary.VersionIndex)
	assert.Equal(t, 2, state.State.VersionCount)
}

func TestWorkflowSelectionFlow(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	_, err := f.svc.Submit(ctx, "sess", &dto.SubmitRequest{Query: "repair pumps"})
	require.NoError(t, err)
	f.svc.Shutdown()

	require.NoError(t, f.svc.SetSelected(ctx, "sess", 1, &dto.SelectionRequest{Selected: true}))
	require.NoError(t, f.svc.SetChoice(ctx, "sess", 1, &dto.ChoiceRequest{Choice: "existing"}))
	require.NoError(t, f.svc.SetCarousel(ctx, "sess", 1, &dto.CarouselRequest{Position: 1}))

	review, err := f.svc.Review(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, review.Items, 1)
	assert.Equal(t, 1, review.Items[0].Index)

	err = f.svc.SetChoice(ctx, "sess", 0, &dto.ChoiceRequest{Choice: "maybe"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	versions, err := f.svc.Versions(ctx, "sess")
	require.NoError(t, err)
	assert.Len(t, versions.Versions, 1)
	_, err = f.svc.SwitchVersion(ctx, "sess", 4)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestWorkflowForwardsUpdates(t *testing.T) {
	ctx := context.Background()
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NopLogger{})
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(ctx, UpdateTopic)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		kinds []orchestrator.UpdateKind
		ids   []string
	)
	go func() {
		for msg := range messages {
			var m dto.WorkflowUpdateMessage
			if json.Unmarshal(msg.Payload, &m) == nil {
				mu.Lock()
				kinds = append(kinds, m.Update.Kind)
				ids = append(ids, msg.Metadata.Get(MetadataSessionID))
				mu.Unlock()
			}
			msg.Ack()
		}
	}()

	f := newServiceFixture(t, nil, pubSub)
	_, err = f.svc.Submit(ctx, "sess", &dto.SubmitRequest{Query: "repair pumps"})
	require.NoError(t, err)
	f.svc.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, kinds)
	assert.Equal(t, orchestrator.KindRunStarted, kinds[0])
	assert.Equal(t, orchestrator.KindRunCompleted, kinds[len(kinds)-1])
	assert.Contains(t, kinds, orchestrator.KindVersionCreated)
	for _, id := range ids {
		assert.Equal(t, "sess", id)
	}
}
