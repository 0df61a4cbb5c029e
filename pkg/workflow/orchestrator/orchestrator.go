// Package orchestrator drives the four-stage classification pipeline for one
// workspace and owns its live session: progressive reveal, per-item text
// generation, targeted regeneration, selection and version history.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"servicelines-be/internal/pkg/logger"
	"servicelines-be/pkg/apperr"
	"servicelines-be/pkg/chat/thread"
	"servicelines-be/pkg/pipeline"
	"servicelines-be/pkg/pipeline/dedup"
	"servicelines-be/pkg/workflow/version"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	module = "Orchestrator"

	DefaultRevealPacing     = 500 * time.Millisecond
	DefaultRegenConcurrency = 4
)

// HistoryRecorder receives an audit record after every completed run and
// regeneration. Errors are logged, never surfaced to the caller.
type HistoryRecorder interface {
	RecordHistory(ctx context.Context, item thread.HistoryItem) error
}

type Config struct {
	// RevealPacing is the delay before each service class is revealed.
	RevealPacing time.Duration
	// DedupKey defaults to dedup.ByClass.
	DedupKey dedup.KeyFunc
	// RegenConcurrency bounds in-flight regeneration requests.
	RegenConcurrency int
	// StrictSelection rejects a choice on an unselected item.
	StrictSelection bool
}

type Orchestrator struct {
	client    pipeline.Client
	recorder  HistoryRecorder
	logger    logger.ILogger
	cfg       Config
	tracer    trace.Tracer
	now       func() time.Time
	listeners []Listener

	// emitMu orders mutation+emission pairs; mu guards the session itself so
	// listeners can read state while an emission is in progress.
	emitMu  sync.Mutex
	mu      sync.Mutex
	session *Session

	wg sync.WaitGroup
}

func New(client pipeline.Client, recorder HistoryRecorder, log logger.ILogger, cfg Config, listeners ...Listener) *Orchestrator {
	if cfg.DedupKey == nil {
		cfg.DedupKey = dedup.ByClass
	}
	if cfg.RegenConcurrency <= 0 {
		cfg.RegenConcurrency = DefaultRegenConcurrency
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Orchestrator{
		client:    client,
		recorder:  recorder,
		logger:    log,
		cfg:       cfg,
		tracer:    otel.Tracer("servicelines-be/workflow/orchestrator"),
		now:       time.Now,
		listeners: listeners,
		session:   NewSession(cfg.StrictSelection),
	}
}

// AddListener registers l for every subsequent update.
func (o *Orchestrator) AddListener(l Listener) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Wait blocks until every background run started by Submit or Regenerate
// has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// State returns a deep copy of the live session.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.snapshot()
}

// Submit validates the query, resets the session and runs the pipeline in
// the background. The run outlives ctx cancellation but keeps its values.
func (o *Orchestrator) Submit(ctx context.Context, query string) error {
	epoch, query, err := o.begin(query)
	if err != nil {
		return err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_ = o.execute(context.WithoutCancel(ctx), epoch, query)
	}()
	return nil
}

// Run is the synchronous form of Submit. It returns a *StageError when a
// stage fails and ErrSuperseded when the session was reset mid-run.
func (o *Orchestrator) Run(ctx context.Context, query string) error {
	epoch, query, err := o.begin(query)
	if err != nil {
		return err
	}
	return o.execute(ctx, epoch, query)
}

func (o *Orchestrator) begin(query string) (uint64, string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, "", apperr.Validation("query must not be empty")
	}

	var epoch uint64
	_, err := o.apply(0, KindRunStarted, 0, -1, func(s *Session) error {
		if s.Running {
			return ErrBusy
		}
		s.Reset()
		s.Running = true
		s.Run.Query = query
		s.Run.CurrentStage = 0
		epoch = s.epoch
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return epoch, query, nil
}

func (o *Orchestrator) execute(ctx context.Context, epoch uint64, query string) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.Int("query.length", len(query))))
	defer span.End()

	o.logger.Info(module, "Pipeline run started", map[string]interface{}{"query": query})

	err := o.runStages(ctx, epoch, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *Orchestrator) runStages(ctx context.Context, epoch uint64, query string) error {
	// 1. Categories
	raw, err := o.invoke(ctx, pipeline.StageCategories, pipeline.CategoriesRequest{Text: query})
	var cats *pipeline.CategoriesResponse
	if err == nil {
		cats, err = pipeline.DecodeCategories(raw)
	}
	if err != nil {
		return o.fail(epoch, pipeline.StageCategories, err)
	}
	if !o.advance(epoch, 0, func(s *Session) {
		s.Responses[string(pipeline.StageCategories)] = raw
		s.Run.Categories = cats.LlmCat
	}) {
		return ErrSuperseded
	}

	// 2. Service types
	raw, err = o.invoke(ctx, pipeline.StageTypes, pipeline.TypesRequest{Text: query, Categories: cats.LlmCat})
	var types *pipeline.TypesResponse
	if err == nil {
		types, err = pipeline.DecodeTypes(raw)
	}
	if err != nil {
		return o.fail(epoch, pipeline.StageTypes, err)
	}
	if !o.advance(epoch, 1, func(s *Session) {
		s.Responses[string(pipeline.StageTypes)] = raw
		s.Run.ServiceTypes = types.LlmTypes
	}) {
		return ErrSuperseded
	}

	// 3. Service classes, deduplicated then revealed one by one
	raw, err = o.invoke(ctx, pipeline.StageClasses, pipeline.ClassesRequest{
		Text:       query,
		Categories: cats.LlmCat,
		Types:      types.LlmTypes,
	})
	var classesResp *pipeline.ClassesResponse
	if err == nil {
		classesResp, err = pipeline.DecodeClasses(raw)
	}
	if err != nil {
		return o.fail(epoch, pipeline.StageClasses, err)
	}
	classes := dedup.Dedupe(classesResp.LlmClass, o.cfg.DedupKey)
	recorded, err := json.Marshal(pipeline.ClassesResponse{LlmClass: classes, Status: classesResp.Status})
	if err != nil {
		return o.fail(epoch, pipeline.StageClasses, err)
	}

	ok, _ := o.apply(epoch, KindStageCompleted, 2, -1, func(s *Session) error {
		s.Responses[string(pipeline.StageClasses)] = recorded
		s.Run.ServiceClasses = []pipeline.ServiceClass{}
		s.Run.TextGenerations = []*pipeline.TextGeneration{}
		s.markCompleted(2)
		return nil
	})
	if !ok {
		return ErrSuperseded
	}

	for i, cls := range classes {
		if err := o.pace(ctx); err != nil {
			return o.fail(epoch, pipeline.StageClasses, err)
		}
		ok, _ := o.apply(epoch, KindItemRevealed, 2, i, func(s *Session) error {
			s.Run.ServiceClasses = append(s.Run.ServiceClasses, cls)
			s.Run.TextGenerations = append(s.Run.TextGenerations, nil)
			s.Carousel[i] = 0
			return nil
		})
		if !ok {
			return ErrSuperseded
		}
	}

	ok, _ = o.apply(epoch, KindStageStarted, 3, -1, func(s *Session) error {
		s.Run.CurrentStage = 3
		return nil
	})
	if !ok {
		return ErrSuperseded
	}

	// 4. Text generation, strictly in index order
	for i, cls := range classes {
		ok, _ := o.apply(epoch, KindItemGenerating, 3, i, func(s *Session) error {
			s.Generating[i] = true
			return nil
		})
		if !ok {
			return ErrSuperseded
		}

		raw, err := o.invoke(ctx, pipeline.StageGenerateText, pipeline.GenerateTextRequest{Text: query, ServiceClass: cls})
		var gen *pipeline.TextGeneration
		if err == nil {
			gen, err = pipeline.DecodeTextGeneration(raw)
		}
		if err != nil {
			return o.fail(epoch, pipeline.StageGenerateText, err)
		}

		ok, _ = o.apply(epoch, KindItemGenerated, 3, i, func(s *Session) error {
			s.Run.TextGenerations[i] = gen
			delete(s.Generating, i)
			s.Responses[generateTextKey(i)] = raw
			return nil
		})
		if !ok {
			return ErrSuperseded
		}
	}

	return o.complete(ctx, epoch)
}

func (o *Orchestrator) complete(ctx context.Context, epoch uint64) error {
	var (
		versionIndex int
		item         thread.HistoryItem
	)
	ok, _ := o.apply(epoch, KindStageCompleted, 3, -1, func(s *Session) error {
		s.markCompleted(3)
		s.Run.CurrentStage = IdleStage
		s.Complete = true
		s.Running = false

		versionIndex = s.Versions.Create(version.Version{
			ServiceClasses:  s.Run.ServiceClasses,
			TextGenerations: s.Run.TextGenerations,
			Query:           s.Run.Query,
			CreatedAt:       o.now(),
		})
		item = o.historyItem(s, s.Run.Query)
		return nil
	})
	if !ok {
		return ErrSuperseded
	}

	o.emit(KindVersionCreated, -1, versionIndex)
	o.record(ctx, item)
	o.emit(KindRunCompleted, -1, -1)

	o.logger.Info(module, "Pipeline run completed", map[string]interface{}{
		"classes": len(item.ServiceClasses),
		"version": versionIndex,
	})
	return nil
}

// advance marks stage complete, applies mutate and moves to the next stage.
func (o *Orchestrator) advance(epoch uint64, stage int, mutate func(s *Session)) bool {
	ok, _ := o.apply(epoch, KindStageCompleted, stage, -1, func(s *Session) error {
		mutate(s)
		s.markCompleted(stage)
		s.Run.CurrentStage = stage + 1
		return nil
	})
	return ok
}

func (o *Orchestrator) fail(epoch uint64, stage pipeline.Stage, err error) error {
	stageErr := &StageError{Stage: stage, Err: err}
	o.logger.Error(module, "Pipeline stage failed", map[string]interface{}{
		"stage": string(stage),
		"error": err.Error(),
	})

	ok, _ := o.apply(epoch, KindRunFailed, stage.Index(), -1, func(s *Session) error {
		s.Running = false
		s.LastError = stageErr.Error()
		s.Generating = make(map[int]bool)
		return nil
	})
	if !ok {
		return ErrSuperseded
	}
	return stageErr
}

func (o *Orchestrator) invoke(ctx context.Context, stage pipeline.Stage, payload any) (json.RawMessage, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	raw, err := o.client.Invoke(ctx, stage, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return raw, err
}

func (o *Orchestrator) pace(ctx context.Context) error {
	if o.cfg.RevealPacing <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.cfg.RevealPacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// apply runs mutate under the session lock and emits the resulting state.
// An error from mutate suppresses the update. A non-zero epoch that no longer
// matches the session turns the call into a no-op and reports false.
func (o *Orchestrator) apply(epoch uint64, kind UpdateKind, stage, index int, mutate func(s *Session) error) (bool, error) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	if epoch != 0 && epoch != o.session.epoch {
		o.mu.Unlock()
		return false, nil
	}
	if mutate != nil {
		if err := mutate(o.session); err != nil {
			o.mu.Unlock()
			return true, err
		}
	}
	u := Update{Kind: kind, Stage: stage, Index: index, State: o.session.snapshot()}
	o.mu.Unlock()

	o.notify(u)
	return true, nil
}

func (o *Orchestrator) emit(kind UpdateKind, stage, index int) {
	_, _ = o.apply(0, kind, stage, index, nil)
}

func (o *Orchestrator) notify(u Update) {
	for _, l := range o.listeners {
		l.OnUpdate(u)
	}
}

func (o *Orchestrator) historyItem(s *Session, query string) thread.HistoryItem {
	responses := make(map[string]json.RawMessage, len(s.Responses))
	for k, v := range s.Responses {
		responses[k] = append(json.RawMessage(nil), v...)
	}
	return thread.HistoryItem{
		ID:              uuid.NewString(),
		Timestamp:       o.now(),
		Query:           query,
		ServiceClasses:  pipeline.CloneClasses(s.Run.ServiceClasses),
		TextGenerations: pipeline.CloneGenerations(s.Run.TextGenerations),
		APIResponses:    responses,
	}
}

func (o *Orchestrator) record(ctx context.Context, item thread.HistoryItem) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordHistory(ctx, item); err != nil {
		o.logger.Warn(module, "Failed to record pipeline history", map[string]interface{}{
			"history_id": item.ID,
			"error":      err.Error(),
		})
	}
}

func generateTextKey(index int) string {
	return fmt.Sprintf("%s.%d", pipeline.StageGenerateText, index)
}
