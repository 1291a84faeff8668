package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teslashibe/go-kira/pkg/events"
)

// Dispatcher sends tool invocations to the robot. *events.Client satisfies it.
type Dispatcher interface {
	Call(ctx context.Context, tool string, input json.RawMessage) (json.RawMessage, error)
	Notify(ctx context.Context, tool string, input json.RawMessage) error
}

// RemoteSpec declares a tool that runs on the robot side.
type RemoteSpec struct {
	Name        string
	Description string
	Props       []Prop

	// WaitForReturn awaits the correlated return event and hands its output
	// to the model. Without it the call resolves to {"success":true} at once.
	WaitForReturn bool
}

const fireAndForgetResult = `{"success":true}`

// RemoteTool builds a Tool that dispatches through d.
func RemoteTool(d Dispatcher, spec RemoteSpec) Tool {
	return Tool{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  Schema(spec.Props...),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			if !spec.WaitForReturn {
				if err := d.Notify(ctx, spec.Name, args); err != nil {
					return "", err
				}
				return fireAndForgetResult, nil
			}

			out, err := d.Call(ctx, spec.Name, args)
			if errors.Is(err, events.ErrDeliveryTimeout) {
				return "", fmt.Errorf("%w: %s", ErrToolReturnTimeout, spec.Name)
			}
			if err != nil {
				return "", err
			}
			if len(out) == 0 {
				return "null", nil
			}
			return string(out), nil
		},
	}
}

// RemoteTools builds one Tool per spec.
func RemoteTools(d Dispatcher, specs ...RemoteSpec) []Tool {
	tools := make([]Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, RemoteTool(d, s))
	}
	return tools
}

var _ Dispatcher = (*events.Client)(nil)
