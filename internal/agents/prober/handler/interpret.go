package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go-probe-agent/pkg/data"
	"go-probe-agent/pkg/models"
	"go-probe-agent/pkg/tools"
)

const diagnosticExcerpt = 200

type ActionKind int

const (
	Unparseable ActionKind = iota
	Invoke
	Finish
)

func (k ActionKind) String() string {
	switch k {
	case Invoke:
		return "invoke"
	case Finish:
		return "finish"
	default:
		return "unparseable"
	}
}

// Action is the normalized reading of one model turn.
type Action struct {
	Kind ActionKind

	// Invoke, and Finish when it came from the finish tool.
	Invocation models.ToolInvocation
	// Embedded is set when the invocation was read from the message text
	// rather than from a structured tool call.
	Embedded bool
	// Skipped holds structured calls beyond the first; they are not executed.
	Skipped []llms.ToolCall

	// Finish
	Status models.Status
	Reason string
	Proof  string

	// Unparseable
	Diagnostic string
}

// Interpret turns a raw completion choice into exactly one Action. It never
// fails: anything it cannot read becomes Unparseable with a diagnostic.
func Interpret(choice *llms.ContentChoice, step int) Action {
	if choice == nil {
		return Action{Kind: Unparseable, Diagnostic: "empty response"}
	}

	if len(choice.ToolCalls) > 0 {
		return fromToolCall(choice.ToolCalls[0], choice.ToolCalls[1:])
	}

	content := strings.TrimSpace(choice.Content)
	if content == "" {
		return Action{Kind: Unparseable, Diagnostic: "empty response"}
	}

	match, err := data.ExtractJSON(content)
	switch {
	case errors.Is(err, data.ErrNoJSON):
		if turnCompleted(choice.StopReason) {
			return Action{
				Kind:   Finish,
				Status: models.StatusFailed,
				Reason: fmt.Sprintf("%s: %s", models.ReasonNoToolCall, data.Excerpt(content, diagnosticExcerpt)),
			}
		}
		return Action{Kind: Unparseable, Diagnostic: "no tool call in response: " + data.Excerpt(content, diagnosticExcerpt)}
	case err != nil:
		return Action{Kind: Unparseable, Diagnostic: "malformed json: " + data.Excerpt(content, diagnosticExcerpt)}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(match), &obj); err != nil {
		return Action{Kind: Unparseable, Diagnostic: "malformed json: " + data.Excerpt(match, diagnosticExcerpt)}
	}
	return fromEmbedded(obj, step)
}

func turnCompleted(stopReason string) bool {
	switch strings.ToLower(stopReason) {
	case "stop", "end_turn", "eos":
		return true
	}
	return false
}

func fromToolCall(tc llms.ToolCall, rest []llms.ToolCall) Action {
	if tc.FunctionCall == nil || tc.FunctionCall.Name == "" {
		return Action{Kind: Unparseable, Diagnostic: "tool call without a function name", Skipped: rest}
	}
	args, err := decodeArguments(tc.FunctionCall.Arguments)
	if err != nil {
		return Action{
			Kind:       Unparseable,
			Diagnostic: fmt.Sprintf("invalid arguments for %s: %s", tc.FunctionCall.Name, data.Excerpt(tc.FunctionCall.Arguments, diagnosticExcerpt)),
			Skipped:    rest,
		}
	}
	inv := models.ToolInvocation{ID: tc.ID, Name: tc.FunctionCall.Name, Arguments: args}
	return fromInvocation(inv, false, rest)
}

// fromEmbedded accepts {"tool_call": {...}}, a bare {"name", "arguments"}
// object, {"finish": {...}} and a bare {"status", "reason"} verdict.
func fromEmbedded(obj map[string]any, step int) Action {
	id := fmt.Sprintf("embedded-%d", step)

	if call, ok := obj["tool_call"].(map[string]any); ok {
		if inv, ok := invocationFrom(call, id); ok {
			return fromInvocation(inv, true, nil)
		}
		return Action{Kind: Unparseable, Diagnostic: "tool_call without name or with invalid arguments"}
	}
	if inv, ok := invocationFrom(obj, id); ok {
		return fromInvocation(inv, true, nil)
	}
	if fin, ok := obj["finish"].(map[string]any); ok {
		return finishFrom(models.ToolInvocation{ID: id, Name: string(tools.Finish), Arguments: fin}, true)
	}
	if _, ok := obj["status"].(string); ok {
		return finishFrom(models.ToolInvocation{ID: id, Name: string(tools.Finish), Arguments: obj}, true)
	}
	return Action{Kind: Unparseable, Diagnostic: "json without tool_call"}
}

func invocationFrom(call map[string]any, id string) (models.ToolInvocation, bool) {
	name, _ := call["name"].(string)
	if name == "" {
		return models.ToolInvocation{}, false
	}
	raw, ok := call["arguments"]
	if !ok {
		raw = call["args"]
	}
	args, err := argumentsFrom(raw)
	if err != nil {
		return models.ToolInvocation{}, false
	}
	if callID, ok := call["id"].(string); ok && callID != "" {
		id = callID
	}
	return models.ToolInvocation{ID: id, Name: name, Arguments: args}, true
}

func fromInvocation(inv models.ToolInvocation, embedded bool, rest []llms.ToolCall) Action {
	if inv.Name == string(tools.Finish) {
		a := finishFrom(inv, embedded)
		a.Skipped = rest
		return a
	}
	return Action{Kind: Invoke, Invocation: inv, Embedded: embedded, Skipped: rest}
}

func finishFrom(inv models.ToolInvocation, embedded bool) Action {
	status, _ := inv.Arguments["status"].(string)
	reason := strings.TrimSpace(inv.Arg("reason"))
	if reason == "" {
		reason = models.ReasonDefaultFinish
	}
	return Action{
		Kind:       Finish,
		Invocation: inv,
		Embedded:   embedded,
		Status:     models.ParseStatus(strings.ToLower(strings.TrimSpace(status))),
		Reason:     reason,
		Proof:      strings.TrimSpace(inv.Arg("proof")),
	}
}

// argumentsFrom accepts an object, a JSON-encoded object string, or nothing.
func argumentsFrom(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		return decodeArguments(v)
	default:
		return nil, fmt.Errorf("arguments of type %T", raw)
	}
}

func decodeArguments(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return map[string]any{}, nil
	}
	args := map[string]any{}
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, err
	}
	return args, nil
}
