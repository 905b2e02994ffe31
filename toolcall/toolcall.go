package toolcall

import (
	"encoding/json"
	"strings"

	"github.com/effective-security/toolrouter/pkg/llmutils"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "toolcall")

// ActionUseTool is the action of the {"action":"use_tool","tool":name} shape
const ActionUseTool = "use_tool"

// ToolCall is one of UseTool, DirectTool or NoTool
type ToolCall interface {
	isToolCall()
}

// UseTool is {"action":"use_tool","tool":name,"arguments":{...}}
type UseTool struct {
	Name string
	Args map[string]any
}

// DirectTool is {"action":name,"arguments":{...}} or {"action":name}
type DirectTool struct {
	Name string
	Args map[string]any
}

// NoTool is a conversational answer
type NoTool struct {
	Text string
	// Reason is set when the text looked like JSON but was not a valid tool call
	Reason string
}

func (UseTool) isToolCall()    {}
func (DirectTool) isToolCall() {}
func (NoTool) isToolCall()     {}

// Invocation returns the tool name and arguments of the call,
// ok is false for NoTool.
func Invocation(tc ToolCall) (name string, args map[string]any, ok bool) {
	switch c := tc.(type) {
	case UseTool:
		return c.Name, c.Args, true
	case DirectTool:
		return c.Name, c.Args, true
	}
	return "", nil, false
}

// Parse returns the tool call requested by the model response.
// Template-style doubled braces and missing closing braces are repaired;
// any text that is not one of the accepted shapes is NoTool.
func Parse(text string) ToolCall {
	original := strings.TrimSpace(text)

	// well-formed JSON is taken as is, braces are repaired only when it does not decode
	obj, reason := wellFormedObject(original), ""
	if obj == nil {
		obj, reason = decodeObject(llmutils.NormalizeBraces(original))
	}
	if obj == nil {
		if reason != "" {
			logger.KV(xlog.DEBUG,
				"status", "not_tool_call",
				"reason", reason,
			)
		}
		return NoTool{Text: original, Reason: reason}
	}

	action, hasAction := obj["action"]
	if !hasAction {
		return NoTool{Text: original, Reason: "no action"}
	}
	actionName, _ := action.(string)
	if actionName == "" || actionName == "undefined" {
		logger.KV(xlog.WARNING,
			"status", "invalid_action",
			"action", action,
		)
		return NoTool{Text: original, Reason: "invalid action"}
	}

	args, _ := obj["arguments"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	if actionName == ActionUseTool {
		name, _ := obj["tool"].(string)
		if name == "" || name == "undefined" {
			return NoTool{Text: original, Reason: "invalid tool name"}
		}
		return UseTool{Name: name, Args: args}
	}
	return DirectTool{Name: actionName, Args: args}
}

func wellFormedObject(text string) map[string]any {
	var obj map[string]any
	if json.Unmarshal([]byte(text), &obj) == nil && obj != nil {
		return obj
	}
	slice, ok := llmutils.ObjectSlice(text)
	if !ok {
		return nil
	}
	obj = nil
	if json.Unmarshal([]byte(slice), &obj) == nil {
		return obj
	}
	return nil
}

func decodeObject(text string) (map[string]any, string) {
	part, ok := llmutils.CloseBraces(text)
	if !ok {
		return nil, ""
	}

	var v any
	err := json.Unmarshal([]byte(part), &v)
	if err != nil {
		slice, ok := llmutils.ObjectSlice(text)
		if !ok {
			return nil, "invalid JSON: " + err.Error()
		}
		if err = json.Unmarshal([]byte(slice), &v); err != nil {
			return nil, "invalid JSON: " + err.Error()
		}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, "not a JSON object"
	}
	return obj, ""
}
