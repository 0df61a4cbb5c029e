package orchestrator

import (
	"encoding/json"
	"sort"

	"servicelines-be/pkg/pipeline"
	"servicelines-be/pkg/workflow/selection"
	"servicelines-be/pkg/workflow/version"
)

// IdleStage is the CurrentStage value when no stage is running.
const IdleStage = -1

// PipelineRun is the per-submission aggregate. TextGenerations holds one slot
// per revealed class; a nil slot has not been generated yet.
type PipelineRun struct {
	Query           string                     `json:"query"`
	Categories      []string                   `json:"categories"`
	ServiceTypes    pipeline.ServiceTypes      `json:"serviceTypes"`
	ServiceClasses  []pipeline.ServiceClass    `json:"serviceClasses"`
	TextGenerations []*pipeline.TextGeneration `json:"textGenerations"`
	CompletedStages []int                      `json:"completedStages"`
	CurrentStage    int                        `json:"currentStage"`
}

// Session is the whole live state of one workspace: the run, per-item
// progress flags, carousel positions, selection and version history.
type Session struct {
	Run          PipelineRun
	Complete     bool
	Running      bool
	LastError    string
	Generating   map[int]bool
	Regenerating map[int]bool
	Carousel     map[int]int
	Responses    map[string]json.RawMessage
	Versions     *version.Manager
	Selection    *selection.Model

	// LastRegeneration is nil until a regeneration round completes.
	LastRegeneration *RegenerationSummary

	completed [4]bool
	epoch     uint64
}

func NewSession(strictSelection bool) *Session {
	s := &Session{
		Versions:  version.NewManager(),
		Selection: selection.NewModel(strictSelection),
	}
	s.Reset()
	return s
}

// Reset returns the session to its zero state. Any run started before the
// reset is superseded and can no longer write to the session.
func (s *Session) Reset() {
	s.Run = PipelineRun{CurrentStage: IdleStage}
	s.Complete = false
	s.Running = false
	s.LastError = ""
	s.Generating = make(map[int]bool)
	s.Regenerating = make(map[int]bool)
	s.Carousel = make(map[int]int)
	s.Responses = make(map[string]json.RawMessage)
	s.Versions.Reset()
	s.Selection.Reset()
	s.LastRegeneration = nil
	s.completed = [4]bool{}
	s.epoch++
}

func (s *Session) markCompleted(stage int) {
	s.completed[stage] = true
	s.Run.CompletedStages = s.completedStages()
}

func (s *Session) completedStages() []int {
	out := []int{}
	for i, done := range s.completed {
		if done {
			out = append(out, i)
		}
	}
	return out
}

// project replaces the live result view with a version's contents.
func (s *Session) project(v version.Version) {
	s.Run.ServiceClasses = v.ServiceClasses
	s.Run.TextGenerations = v.TextGenerations
	s.Carousel = make(map[int]int, len(v.ServiceClasses))
	for i := range v.ServiceClasses {
		s.Carousel[i] = 0
	}
}

func (s *Session) reviewSource() selection.Source {
	return selection.Source{
		ServiceClasses:  s.Run.ServiceClasses,
		TextGenerations: s.Run.TextGenerations,
		Carousel:        s.Carousel,
	}
}

// RegenerationSummary counts the outcome of one regeneration round.
type RegenerationSummary struct {
	Query        string `json:"query"`
	Regenerated  int    `json:"regenerated"`
	Failed       int    `json:"failed"`
	VersionIndex int    `json:"versionIndex"`
}

// State is a deep copy of a Session safe to hand to other goroutines.
type State struct {
	Run            PipelineRun                `json:"run"`
	Complete       bool                       `json:"complete"`
	Running        bool                       `json:"running"`
	LastError      string                     `json:"lastError,omitempty"`
	Generating     []int                      `json:"generating"`
	Regenerating   []int                      `json:"regenerating"`
	Carousel       map[int]int                `json:"carousel"`
	Selection      map[int]selection.Entry    `json:"selection"`
	Responses      map[string]json.RawMessage `json:"apiResponses"`
	VersionCount   int                        `json:"versionCount"`
	CurrentVersion int                        `json:"currentVersion"`

	LastRegeneration *RegenerationSummary `json:"lastRegeneration,omitempty"`
}

func (s *Session) snapshot() State {
	run := s.Run
	run.Categories = append([]string(nil), s.Run.Categories...)
	run.ServiceTypes = pipeline.ServiceTypes{ServiceTypes: append([]pipeline.ServiceType(nil), s.Run.ServiceTypes.ServiceTypes...)}
	run.ServiceClasses = pipeline.CloneClasses(s.Run.ServiceClasses)
	run.TextGenerations = pipeline.CloneGenerations(s.Run.TextGenerations)
	run.CompletedStages = s.completedStages()

	carousel := make(map[int]int, len(s.Carousel))
	for k, v := range s.Carousel {
		carousel[k] = v
	}
	responses := make(map[string]json.RawMessage, len(s.Responses))
	for k, v := range s.Responses {
		responses[k] = append(json.RawMessage(nil), v...)
	}

	var lastRegen *RegenerationSummary
	if s.LastRegeneration != nil {
		summary := *s.LastRegeneration
		lastRegen = &summary
	}

	return State{
		Run:            run,
		Complete:       s.Complete,
		Running:        s.Running,
		LastError:      s.LastError,
		Generating:     sortedKeys(s.Generating),
		Regenerating:   sortedKeys(s.Regenerating),
		Carousel:       carousel,
		Selection:      s.Selection.Entries(),
		Responses:      responses,
		VersionCount:   s.Versions.Len(),
		CurrentVersion: s.Versions.CurrentIndex(),

		LastRegeneration: lastRegen,
	}
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}
