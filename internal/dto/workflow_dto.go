package dto

import (
	"time"

	"servicelines-be/pkg/chat/thread"
	"servicelines-be/pkg/workflow/orchestrator"
	"servicelines-be/pkg/workflow/selection"
	"servicelines-be/pkg/workflow/version"
)

type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SubmitRequest struct {
	Query          string `json:"query" validate:"required,max=20000"`
	AttachmentText string `json:"attachment_text"`
}

type SubmitResponse struct {
	ThreadID string `json:"thread_id"`
	Query    string `json:"query"`
}

type RegenerateRequest struct {
	Indices     []int  `json:"indices" validate:"required,min=1"`
	Instruction string `json:"instruction" validate:"required"`
}

type SelectionRequest struct {
	Selected bool `json:"selected"`
}

type ChoiceRequest struct {
	Choice string `json:"choice" validate:"required,oneof=existing new"`
}

type CarouselRequest struct {
	Position int `json:"position" validate:"min=0"`
}

type WorkflowStateResponse struct {
	ThreadID string             `json:"thread_id"`
	State    orchestrator.State `json:"state"`
}

type ReviewResponse struct {
	Items []selection.ReviewItem `json:"items"`
}

type VersionsResponse struct {
	Versions     []version.Version `json:"versions"`
	CurrentIndex int               `json:"current_index"`
}

type ThreadResponse struct {
	*thread.Thread
	Current bool `json:"current"`
}

type ThreadListResponse struct {
	Threads   []ThreadResponse `json:"threads"`
	CurrentID string           `json:"current_id"`
}

// WorkflowUpdateMessage is pushed to websocket clients of a session.
type WorkflowUpdateMessage struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id"`
	ThreadID  string              `json:"thread_id"`
	Update    orchestrator.Update `json:"update"`
}

type AttachmentResponse struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}
