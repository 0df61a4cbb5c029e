package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
)

// Stage identifies one step of the classification pipeline.
type Stage string

const (
	StageCategories   Stage = "categories"
	StageTypes        Stage = "types"
	StageClasses      Stage = "classes"
	StageGenerateText Stage = "generate-text"
)

// Stages lists the pipeline steps in execution order. The position of a
// stage in this slice is its stage index.
var Stages = []Stage{StageCategories, StageTypes, StageClasses, StageGenerateText}

// Index returns the position of s in Stages, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.Index() >= 0 }

// Client defines the contract for any pipeline backend, simulated or remote.
type Client interface {
	// Invoke runs one stage with the given payload and returns the raw JSON
	// response. Transport and logical failures are returned as errors.
	Invoke(ctx context.Context, stage Stage, payload any) (json.RawMessage, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, stage Stage, payload any) (json.RawMessage, error)

func (f ClientFunc) Invoke(ctx context.Context, stage Stage, payload any) (json.RawMessage, error) {
	return f(ctx, stage, payload)
}

// --- Request payloads ---

type CategoriesRequest struct {
	Text string `json:"text"`
}

type TypesRequest struct {
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
}

type ClassesRequest struct {
	Text       string       `json:"text"`
	Categories []string     `json:"categories"`
	Types      ServiceTypes `json:"types"`
}

type GenerateTextRequest struct {
	Text             string       `json:"text"`
	ServiceClass     ServiceClass `json:"serviceClass"`
	ExtraInstruction string       `json:"extraInstruction,omitempty"`
}

// StatusError reports a response whose status field signals failure.
type StatusError struct {
	Stage  Stage
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stage %s returned status %q", e.Stage, e.Status)
}

// CheckStatus accepts an empty status as well as "success" and "ok".
func CheckStatus(stage Stage, status string) error {
	switch status {
	case "", "success", "ok", "OK", "SUCCESS":
		return nil
	}
	return &StatusError{Stage: stage, Status: status}
}
