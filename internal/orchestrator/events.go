package orchestrator

import (
	"google.golang.org/adk/session"

	"conductor/internal/workflow"
	"conductor/pkg/errors"
)

// EventType classifies a stream event for consumers (console renderer,
// API surfaces).
type EventType string

const (
	// EventText is a text chunk from a model response. Partial marks
	// streaming fragments; the closing chunk repeats the full text with
	// Partial false.
	EventText EventType = "text"
	// EventToolCall is a model-initiated tool invocation.
	EventToolCall EventType = "tool_call"
	// EventToolResult carries a tool's response back to the model.
	EventToolResult EventType = "tool_result"
	// EventFinal marks the workflow's final response.
	EventFinal EventType = "final"
	// EventError carries a structured error envelope; it is always the
	// last event on a stream.
	EventError EventType = "error"
)

// Event is one observable step of a workflow run, flattened from the
// runtime's event stream into plain data.
type Event struct {
	Type     EventType
	Author   string
	Text     string
	Partial  bool
	ToolName string
	ToolArgs map[string]interface{}
	ToolResp map[string]interface{}
	Envelope *errors.Envelope
}

// flatten interprets one runtime event into zero or more stream events.
// A single runtime event may carry text and several function calls and
// responses in its parts.
func flatten(ev *session.Event) []Event {
	if ev == nil || ev.LLMResponse.Content == nil {
		return nil
	}

	var out []Event
	text := ""

	for _, part := range ev.LLMResponse.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			out = append(out, Event{
				Type:     EventToolCall,
				Author:   ev.Author,
				ToolName: part.FunctionCall.Name,
				ToolArgs: part.FunctionCall.Args,
			})
		}
		if part.FunctionResponse != nil {
			out = append(out, Event{
				Type:     EventToolResult,
				Author:   ev.Author,
				ToolName: part.FunctionResponse.Name,
				ToolResp: part.FunctionResponse.Response,
			})
		}
	}

	if text != "" {
		eventType := EventText
		if ev.TurnComplete && ev.IsFinalResponse() {
			eventType = EventFinal
		}
		out = append(out, Event{
			Type:    eventType,
			Author:  ev.Author,
			Text:    text,
			Partial: ev.LLMResponse.Partial,
		})
	}

	return out
}

// mapEnvelope renders any error reaching the manager boundary as a
// structured envelope. Raw internal error text is logged, not surfaced.
func mapEnvelope(err error) errors.Envelope {
	switch {
	case isConfigError(err):
		return errors.NewEnvelope(errors.KindUser, "invalid_config", "The workflow configuration is invalid: "+err.Error(), 0)
	case errors.Is(err, errors.ErrUnauthorized) || errors.Is(err, errors.ErrForbidden):
		return errors.NewEnvelope(errors.KindPolicy, "unauthorized", "The configured credentials were rejected.", 0)
	case errors.Is(err, errors.ErrNotFound):
		return errors.NewEnvelope(errors.KindUser, "not_found", "The requested resource does not exist.", 0)
	case errors.Is(err, errors.ErrInvalidInput):
		return errors.NewEnvelope(errors.KindUser, "invalid_input", "The request was invalid. Check the workflow configuration and inputs.", 0)
	case errors.Is(err, errors.ErrRateLimited):
		return errors.NewEnvelope(errors.KindNetwork, "rate_limited", "A remote service is rate limiting requests. Try again shortly.", 5000)
	case errors.Is(err, errors.ErrTimeout):
		return errors.NewEnvelope(errors.KindNetwork, "timeout", "The operation timed out.", 2000)
	case errors.Is(err, errors.ErrUnavailable):
		return errors.NewEnvelope(errors.KindNetwork, "unavailable", "A remote service is unavailable. Try again shortly.", 2000)
	default:
		return errors.NewEnvelope(errors.KindTool, "execution_failed", "The workflow failed during execution.", 0)
	}
}

// isConfigError reports whether err stems from workflow validation rather
// than execution. Validation detail is safe to show to the caller.
func isConfigError(err error) bool {
	var (
		dup   *workflow.DuplicateNameError
		agent *workflow.UnknownAgentError
		tool  *workflow.UnknownToolError
		cycle *workflow.CyclicReferenceError
		field *workflow.FieldError
	)
	return errors.As(err, &dup) ||
		errors.As(err, &agent) ||
		errors.As(err, &tool) ||
		errors.As(err, &cycle) ||
		errors.As(err, &field)
}
