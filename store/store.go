package store

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when the conversation does not exist
var ErrNotFound = errors.New("conversation not found")

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation turn
type Message struct {
	Role              string          `json:"role"`
	Content           string          `json:"content"`
	Timestamp         time.Time       `json:"timestamp"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	RawToolData       json.RawMessage `json:"raw_tool_data,omitempty"`
	ExtractedEntities *ToolEntities   `json:"extracted_entities,omitempty"`
}

// Summary describes the tool usage of the conversation
type Summary struct {
	TotalToolCalls    int      `json:"total_tool_calls"`
	ToolsUsed         []string `json:"tools_used"`
	EntitiesCollected []string `json:"entities_collected"`
}

// Conversation is a copy of the stored conversation
type Conversation struct {
	ID          string     `json:"conversation_id"`
	Messages    []*Message `json:"messages"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUpdated time.Time  `json:"last_updated"`
	Summary     Summary    `json:"tool_data_summary"`
}

// Turn is a message reduced to role and content
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Criteria filters stored tool data.
// Empty fields are not checked.
type Criteria struct {
	ToolName    string `json:"tool_name,omitempty"`
	EntityValue string `json:"entity_value,omitempty"`
}

// Match is a message that matched the search Criteria
type Match struct {
	Timestamp         time.Time       `json:"timestamp"`
	MessageContent    string          `json:"message_content"`
	RawToolData       json.RawMessage `json:"raw_tool_data"`
	ExtractedEntities *ToolEntities   `json:"extracted_entities,omitempty"`
}

// ToolDataEntry is the tool data of a single message
type ToolDataEntry struct {
	Timestamp         time.Time       `json:"timestamp"`
	ToolUsed          string          `json:"tool_used,omitempty"`
	RawData           json.RawMessage `json:"raw_data"`
	ExtractedEntities *ToolEntities   `json:"extracted_entities,omitempty"`
}

// ToolData is the tool data collected in the conversation
type ToolData struct {
	ConversationID     string                 `json:"conversation_id"`
	Summary            Summary                `json:"summary"`
	DetailedData       []*ToolDataEntry       `json:"detailed_data"`
	AggregatedEntities map[string][]EntityRef `json:"aggregated_entities"`
}

// ConversationStore keeps conversations in memory
type ConversationStore interface {
	// Append adds the message to the conversation, the conversation is created on first use
	Append(id, role, content string, opts ...AppendOption)
	// Recall returns the latest turns that fit in maxTokens, in chronological order
	Recall(id string, maxTokens int) []Turn
	// Summary returns a one-line summary of recent turns,
	// empty if the conversation has less than 3 messages
	Summary(id string) string
	// Search returns messages with tool data that match the criteria
	Search(id string, criteria Criteria) []*Match
	// ToolData returns the collected tool data, optionally limited to the entity types
	ToolData(id string, entityTypes ...string) (*ToolData, error)
	// Entities returns the entities aggregated over the conversation
	Entities(id string) (map[string][]EntityRef, *Summary, error)
	// RebuildEntities derives the entities again from the stored tool data,
	// and returns the number of updated messages
	RebuildEntities(id string) (int, error)
	// Conversation returns a copy of the conversation
	Conversation(id string) (*Conversation, error)
	// List returns conversation IDs, most recently updated first
	List() []string
	// Delete removes the conversation
	Delete(id string) error
}

// AppendOption is a function that modifies the appended message
type AppendOption func(*Message)

// WithMetadata sets the message metadata
func WithMetadata(md map[string]any) AppendOption {
	return func(m *Message) {
		m.Metadata = md
	}
}

// WithRawToolData sets the raw tool data of the message.
// Entities are derived from the data unless WithExtractedEntities is provided.
func WithRawToolData(raw json.RawMessage) AppendOption {
	return func(m *Message) {
		m.RawToolData = raw
	}
}

// WithExtractedEntities sets the entities of the tool data
func WithExtractedEntities(e *ToolEntities) AppendOption {
	return func(m *Message) {
		m.ExtractedEntities = e
	}
}
