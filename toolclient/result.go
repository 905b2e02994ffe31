package toolclient

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidInput is returned for a nil, empty, non-string or "undefined" tool name,
	// or for arguments that are not a key-value map. Such calls never reach the network.
	ErrInvalidInput = errors.New("invalid tool call input")
	// ErrToolNotFound is returned when the name does not resolve to a registered tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrTransport is returned when the tool backend cannot be reached or replies with a non-200 status.
	ErrTransport = errors.New("tool backend failure")
	// ErrToolFailed is returned when the tool backend reports an error in the response body.
	ErrToolFailed = errors.New("tool reported an error")
)

// MethodFallback marks results produced by the fallback call
const MethodFallback = "fallback"

// Result of a tool call
type Result struct {
	Success          bool     `json:"success"`
	Result           any      `json:"result,omitempty"`
	Error            string   `json:"error,omitempty"`
	ToolName         string   `json:"tool_name,omitempty"`
	OriginalToolName string   `json:"original_tool_name,omitempty"`
	EndpointUsed     string   `json:"endpoint_used,omitempty"`
	Method           string   `json:"method,omitempty"`
	Suggestions      []string `json:"suggestions,omitempty"`
	AvailableTools   []string `json:"available_tools,omitempty"`
	StatusCode       int      `json:"status_code,omitempty"`
	ResponseText     string   `json:"response_text,omitempty"`

	// Err is the categorized failure, use errors.Is with the package errors
	Err error `json:"-"`
}

func failure(err error, toolName string) *Result {
	return &Result{
		Success:  false,
		Error:    err.Error(),
		ToolName: toolName,
		Err:      err,
	}
}
