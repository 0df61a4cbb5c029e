package thread

import (
	"encoding/json"
	"time"

	"servicelines-be/pkg/pipeline"
)

const (
	DefaultTitle = "New Chat"

	// MaxHistory bounds each thread's pipeline history.
	MaxHistory = 10

	// MaxTitleLength is measured in runes, before the ellipsis.
	MaxTitleLength = 50
)

// Thread is one independent conversation context.
type Thread struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	CreatedAt          time.Time     `json:"createdAt"`
	LastActivity       time.Time     `json:"lastActivity"`
	PipelineHistory    []HistoryItem `json:"pipelineHistory"`
	HasSubmittedPrompt bool          `json:"hasSubmittedPrompt"`
}

// HistoryItem is an audit record of one completed run or regeneration.
type HistoryItem struct {
	ID              string                     `json:"id"`
	Timestamp       time.Time                  `json:"timestamp"`
	Query           string                     `json:"query"`
	ServiceClasses  []pipeline.ServiceClass    `json:"serviceClasses"`
	TextGenerations []*pipeline.TextGeneration `json:"textGenerations"`
	APIResponses    map[string]json.RawMessage `json:"apiResponses"`
}

func (h HistoryItem) Clone() HistoryItem {
	out := h
	out.ServiceClasses = pipeline.CloneClasses(h.ServiceClasses)
	out.TextGenerations = pipeline.CloneGenerations(h.TextGenerations)
	if h.APIResponses != nil {
		out.APIResponses = make(map[string]json.RawMessage, len(h.APIResponses))
		for k, v := range h.APIResponses {
			out.APIResponses[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	out := *t
	out.PipelineHistory = make([]HistoryItem, len(t.PipelineHistory))
	for i, h := range t.PipelineHistory {
		out.PipelineHistory[i] = h.Clone()
	}
	return &out
}

// TruncateTitle shortens query to MaxTitleLength runes plus "...".
func TruncateTitle(query string) string {
	r := []rune(query)
	if len(r) <= MaxTitleLength {
		return query
	}
	return string(r[:MaxTitleLength]) + "..."
}
