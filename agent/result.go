package agent

import (
	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/entities"
	"github.com/effective-security/toolrouter/toolclient"
)

// Processing modes
const (
	ModeSingle = "single"
	ModeMemory = "memory"
	ModeChain  = "chain"
)

// NotInitialized is the response of the Agent before a successful Initialize
const NotInitialized = "Agent not initialized. Please check connections."

// Result is the outcome of a processed query
type Result struct {
	Response          string `json:"response"`
	FormattedResponse string `json:"formatted_response,omitempty"`
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	// ErrorInfo describes a recovered failure, such as a response that is not a valid tool call
	ErrorInfo string `json:"error_info,omitempty"`

	ToolUsed       string             `json:"tool_used,omitempty"`
	ToolArguments  map[string]any     `json:"tool_arguments,omitempty"`
	ToolResult     *toolclient.Result `json:"tool_result,omitempty"`
	RawLLMResponse string             `json:"raw_llm_response,omitempty"`
	// ToolData is the tool call record kept in the conversation memory
	ToolData *ToolData `json:"tool_data,omitempty"`

	ExecutionTime      float64            `json:"execution_time"`
	ChunksProcessed    int                `json:"chunks_processed,omitempty"`
	EntitiesExtracted  *entities.Entities `json:"entities_extracted,omitempty"`
	RelevantCategories []string           `json:"relevant_categories,omitempty"`
	SelectedTools      []string           `json:"selected_tools,omitempty"`
	ConversationID     string             `json:"conversation_id,omitempty"`

	ChainingUsed       *bool                 `json:"chaining_used,omitempty"`
	ComplexityScore    int                   `json:"complexity_score,omitempty"`
	ChainStepsExecuted int                   `json:"chain_steps_executed,omitempty"`
	SuccessfulSteps    int                   `json:"successful_steps,omitempty"`
	ChainResults       []*chainer.StepResult `json:"chain_results,omitempty"`
	Method             string                `json:"method,omitempty"`

	Status *Status `json:"status,omitempty"`
}

// ToolData is the record of a tool call
type ToolData struct {
	ToolName         string            `json:"tool_name"`
	Arguments        map[string]any    `json:"arguments"`
	Result           any               `json:"result,omitempty"`
	Success          bool              `json:"success"`
	Error            string            `json:"error,omitempty"`
	ExecutionDetails *ExecutionDetails `json:"execution_details,omitempty"`
}

// ExecutionDetails describes how the tool was called
type ExecutionDetails struct {
	EndpointUsed     string `json:"endpoint_used,omitempty"`
	Method           string `json:"method,omitempty"`
	OriginalToolName string `json:"original_tool_name,omitempty"`
}

// Status of the Agent and its backends
type Status struct {
	Initialized         bool   `json:"agent_initialized"`
	ToolBackend         bool   `json:"tool_backend_connected"`
	Generation          bool   `json:"generation_connected"`
	Tools               int    `json:"tools_count"`
	ToolBackendURL      string `json:"tool_backend_url"`
	GenerationURL       string `json:"generation_url"`
	Model               string `json:"model"`
	RegistryFingerprint string `json:"registry_fingerprint"`
	LastToolError       string `json:"last_tool_error,omitempty"`
	LastGenerationError string `json:"last_generation_error,omitempty"`
}
