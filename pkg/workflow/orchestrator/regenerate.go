package orchestrator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"servicelines-be/pkg/apperr"
	"servicelines-be/pkg/chat/thread"
	"servicelines-be/pkg/pipeline"
	"servicelines-be/pkg/workflow/version"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// RegenerationReport summarises one regeneration round.
type RegenerationReport struct {
	Requested    []int                    `json:"requested"`
	Regenerated  []int                    `json:"regenerated"`
	Failures     []*RegenerationItemError `json:"-"`
	VersionIndex int                      `json:"versionIndex"`
	Query        string                   `json:"query"`
}

type regenPlan struct {
	epoch       uint64
	query       string
	instruction string
	indices     []int
	classes     map[int]pipeline.ServiceClass
}

// EnhancedQuery is the query recorded on a regeneration version.
func EnhancedQuery(original, instruction string) string {
	return original + " [Enhanced with: " + instruction + "]"
}

// Regenerate validates the request and regenerates the given items in the
// background.
func (o *Orchestrator) Regenerate(ctx context.Context, indices []int, instruction string) error {
	plan, err := o.beginRegeneration(indices, instruction)
	if err != nil {
		return err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.executeRegeneration(context.WithoutCancel(ctx), plan)
	}()
	return nil
}

// RunRegeneration is the synchronous form of Regenerate. Individual item
// failures are reported, not returned; the error is non-nil only when the
// request is rejected or the session was reset underneath it.
func (o *Orchestrator) RunRegeneration(ctx context.Context, indices []int, instruction string) (RegenerationReport, error) {
	plan, err := o.beginRegeneration(indices, instruction)
	if err != nil {
		return RegenerationReport{}, err
	}
	return o.executeRegeneration(ctx, plan)
}

func (o *Orchestrator) beginRegeneration(indices []int, instruction string) (*regenPlan, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, apperr.Validation("instruction must not be empty")
	}
	if len(indices) == 0 {
		return nil, apperr.Validation("at least one item must be selected for regeneration")
	}

	var plan *regenPlan
	_, err := o.apply(0, KindRegenerationStarted, 3, -1, func(s *Session) error {
		if s.Running {
			return ErrBusy
		}
		if !s.Complete {
			return apperr.Validation("no completed pipeline run to regenerate")
		}

		seen := make(map[int]bool, len(indices))
		p := &regenPlan{
			epoch:       s.epoch,
			query:       s.Run.Query,
			instruction: instruction,
			classes:     make(map[int]pipeline.ServiceClass, len(indices)),
		}
		for _, idx := range indices {
			if idx < 0 || idx >= len(s.Run.ServiceClasses) || idx >= len(s.Run.TextGenerations) {
				return apperr.Validation("regeneration index out of range")
			}
			if seen[idx] {
				continue
			}
			seen[idx] = true
			p.indices = append(p.indices, idx)
			p.classes[idx] = s.Run.ServiceClasses[idx]
		}
		sort.Ints(p.indices)

		s.Running = true
		s.LastError = ""
		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (o *Orchestrator) executeRegeneration(ctx context.Context, plan *regenPlan) (RegenerationReport, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.regenerate", trace.WithAttributes(
		attribute.Int("items", len(plan.indices)),
	))
	defer span.End()

	o.logger.Info(module, "Regeneration started", map[string]interface{}{
		"indices":     plan.indices,
		"instruction": plan.instruction,
	})

	var (
		mu          sync.Mutex
		regenerated []int
		failures    []*RegenerationItemError
	)

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.RegenConcurrency)
	for _, idx := range plan.indices {
		idx := idx
		cls := plan.classes[idx]
		g.Go(func() error {
			ok, _ := o.apply(plan.epoch, KindItemRegenerating, 3, idx, func(s *Session) error {
				s.Regenerating[idx] = true
				return nil
			})
			if !ok {
				return nil
			}

			raw, err := o.invoke(ctx, pipeline.StageGenerateText, pipeline.GenerateTextRequest{
				Text:             plan.query,
				ServiceClass:     cls,
				ExtraInstruction: plan.instruction,
			})
			var gen *pipeline.TextGeneration
			if err == nil {
				gen, err = pipeline.DecodeTextGeneration(raw)
			}

			if err != nil {
				itemErr := &RegenerationItemError{Index: idx, Err: err}
				o.logger.Error(module, "Item regeneration failed", map[string]interface{}{
					"index": idx,
					"error": err.Error(),
				})
				mu.Lock()
				failures = append(failures, itemErr)
				mu.Unlock()

				o.apply(plan.epoch, KindItemRegenFailed, 3, idx, func(s *Session) error {
					delete(s.Regenerating, idx)
					return nil
				})
				return nil
			}

			applied, _ := o.apply(plan.epoch, KindItemRegenerated, 3, idx, func(s *Session) error {
				s.Run.TextGenerations[idx] = gen
				delete(s.Regenerating, idx)
				s.Responses[generateTextKey(idx)] = raw
				return nil
			})
			if applied {
				mu.Lock()
				regenerated = append(regenerated, idx)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Ints(regenerated)
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })

	report := RegenerationReport{
		Requested:   plan.indices,
		Regenerated: regenerated,
		Failures:    failures,
		Query:       EnhancedQuery(plan.query, plan.instruction),
	}

	var item thread.HistoryItem
	ok, _ := o.apply(plan.epoch, KindRegenerationCompleted, 3, -1, func(s *Session) error {
		s.Running = false
		s.Regenerating = make(map[int]bool)
		report.VersionIndex = s.Versions.Create(version.Version{
			ServiceClasses:  s.Run.ServiceClasses,
			TextGenerations: s.Run.TextGenerations,
			Query:           report.Query,
			CreatedAt:       o.now(),
		})
		s.LastRegeneration = &RegenerationSummary{
			Query:        report.Query,
			Regenerated:  len(regenerated),
			Failed:       len(failures),
			VersionIndex: report.VersionIndex,
		}
		item = o.historyItem(s, report.Query)
		return nil
	})
	if !ok {
		return report, ErrSuperseded
	}

	o.emit(KindVersionCreated, -1, report.VersionIndex)
	o.record(ctx, item)

	o.logger.Info(module, "Regeneration completed", map[string]interface{}{
		"regenerated": len(regenerated),
		"failed":      len(failures),
		"version":     report.VersionIndex,
	})
	return report, nil
}
