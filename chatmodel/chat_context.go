package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
	"github.com/google/uuid"
)

// ChatContext carries the conversation and request identity of a query
type ChatContext interface {
	// ConversationID returns the conversation the query belongs to
	ConversationID() string
	// RequestID returns the id of the inbound request
	RequestID() string
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	conversationID string
	requestID      string
	metadata       sync.Map
}

func (c *chatContext) ConversationID() string {
	return c.conversationID
}

func (c *chatContext) RequestID() string {
	return c.requestID
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext returns ChatContext,
// empty ids are generated.
func NewChatContext(conversationID, requestID string) ChatContext {
	return &chatContext{
		conversationID: values.StringsCoalesce(conversationID, NewConversationID()),
		requestID:      values.StringsCoalesce(requestID, NewRequestID()),
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// GetConversationID retrieves the conversation ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetConversationID(ctx context.Context) string {
	if v := GetChatContext(ctx); v != nil {
		return v.ConversationID()
	}
	return ""
}

// MustConversationID returns the conversation ID from the context,
// or an error if the context has no ChatContext.
func MustConversationID(ctx context.Context) (string, error) {
	v := GetChatContext(ctx)
	if v == nil {
		return "", errors.New("chat context not found")
	}
	return v.ConversationID(), nil
}

// NewConversationID generates a new conversation ID using the flake ID generator.
func NewConversationID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}

// NewRequestID generates a new request ID
func NewRequestID() string {
	return uuid.NewString()
}
