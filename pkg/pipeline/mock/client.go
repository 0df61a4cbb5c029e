package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"servicelines-be/pkg/pipeline"
)

// Responder produces the response for one stage invocation.
type Responder func(payload any) (any, error)

// Client simulates the pipeline backend: every call waits Delay and then
// answers from the canned responders.
type Client struct {
	Delay time.Duration

	mu         sync.Mutex
	responders map[pipeline.Stage]Responder
	calls      []Call
}

// Call records one invocation, in order.
type Call struct {
	Stage   pipeline.Stage
	Payload any
}

var _ pipeline.Client = (*Client)(nil)

// NewClient returns a simulated backend preloaded with the default fixtures.
func NewClient(delay time.Duration) *Client {
	c := &Client{
		Delay:      delay,
		responders: make(map[pipeline.Stage]Responder),
	}
	for stage, r := range DefaultResponders() {
		c.responders[stage] = r
	}
	return c
}

// On replaces the responder for stage.
func (c *Client) On(stage pipeline.Stage, r Responder) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responders[stage] = r
	return c
}

// Calls returns a copy of the invocations seen so far.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsFor counts invocations of one stage.
func (c *Client) CallsFor(stage pipeline.Stage) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Stage == stage {
			n++
		}
	}
	return n
}

func (c *Client) Invoke(ctx context.Context, stage pipeline.Stage, payload any) (json.RawMessage, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Stage: stage, Payload: payload})
	r, ok := c.responders[stage]
	c.mu.Unlock()

	if c.Delay > 0 {
		timer := time.NewTimer(c.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if !ok {
		return nil, fmt.Errorf("mock: no responder for stage %s", stage)
	}
	out, err := r(payload)
	if err != nil {
		return nil, err
	}
	if raw, ok := out.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("mock: marshal %s response: %w", stage, err)
	}
	return raw, nil
}

// Static returns a responder that always answers v.
func Static(v any) Responder {
	return func(any) (any, error) { return v, nil }
}

// Fail returns a responder that always rejects with err.
func Fail(err error) Responder {
	return func(any) (any, error) { return nil, err }
}
