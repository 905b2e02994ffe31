package agent

import (
	"context"

	"github.com/effective-security/toolrouter/toolclient"
	"github.com/effective-security/toolrouter/tools"
)

//go:generate mockgen -source=invoker.go -destination=../mocks/mockagent/invoker_mock.gen.go -package mockagent

// ToolInvoker executes and resolves tools of the tool backend
type ToolInvoker interface {
	// BaseURL returns the tool backend URL
	BaseURL() string
	// Health checks the tool backend
	Health(ctx context.Context) error
	// Refresh reloads the tool registry
	Refresh(ctx context.Context) (int, error)
	// Registry returns the tool registry
	Registry() *tools.Registry
	// Resolve maps a possibly misspelled tool name to a registered one
	Resolve(name string) (string, bool)
	// Execute calls the tool
	Execute(ctx context.Context, name any, args any) *toolclient.Result
}

var _ ToolInvoker = (*toolclient.Client)(nil)
