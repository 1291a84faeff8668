package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-kira/pkg/listener"
)

// Expectation waits for the first event of a type that satisfies a predicate.
// Register it before dispatching the command whose reply it waits for.
type Expectation struct {
	ch      chan Event
	cancel  listener.Cancel
	timeout time.Duration
}

// Expect starts listening for an event. A nil match accepts any event of the type.
func (c *Client) Expect(eventType string, match func(Event) bool) *Expectation {
	e := &Expectation{
		ch:      make(chan Event, 1),
		timeout: c.cfg.AwaitTimeout,
	}
	e.cancel = c.OnEventType(eventType, func(ev Event) {
		if match != nil && !match(ev) {
			return
		}
		select {
		case e.ch <- ev:
		default:
		}
	})
	return e
}

// Wait blocks until the event arrives, the timeout elapses (ErrDeliveryTimeout),
// or ctx is done. The listener is removed on every path.
func (e *Expectation) Wait(ctx context.Context) (Event, error) {
	defer e.cancel()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case ev := <-e.ch:
		return ev, nil
	case <-timer.C:
		return Event{}, ErrDeliveryTimeout
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Cancel stops listening without waiting.
func (e *Expectation) Cancel() { e.cancel() }

// CallRequest is the data of an outgoing "call" message.
type CallRequest struct {
	ID    string          `json:"id"`
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// CallReturn is the data of an incoming "return" message.
type CallReturn struct {
	ID     string          `json:"id"`
	Output json.RawMessage `json:"output"`
}

// Call dispatches a tool invocation to the robot and awaits the "return"
// carrying the same id.
func (c *Client) Call(ctx context.Context, tool string, input json.RawMessage) (json.RawMessage, error) {
	req := CallRequest{ID: uuid.NewString(), Tool: tool, Input: input}
	if len(req.Input) == 0 {
		req.Input = json.RawMessage("{}")
	}

	exp := c.Expect(TypeReturn, func(ev Event) bool {
		var ret CallReturn
		return ev.Decode(&ret) == nil && ret.ID == req.ID
	})

	if err := c.Send(ctx, TypeCall, req); err != nil {
		exp.Cancel()
		return nil, fmt.Errorf("events: dispatch %s: %w", tool, err)
	}

	ev, err := exp.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("events: tool %q did not return: %w", tool, err)
	}

	var ret CallReturn
	if err := ev.Decode(&ret); err != nil {
		return nil, fmt.Errorf("events: decode return: %w", err)
	}
	return ret.Output, nil
}

// Notify dispatches a tool invocation without waiting for a reply.
func (c *Client) Notify(ctx context.Context, tool string, input json.RawMessage) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return c.Send(ctx, TypeCall, CallRequest{ID: uuid.NewString(), Tool: tool, Input: input})
}
