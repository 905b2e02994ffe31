package agent

import (
	"context"

	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/pkg/llmutils"
	"github.com/effective-security/toolrouter/selector"
	"github.com/effective-security/toolrouter/store"
	"github.com/effective-security/x/values"
)

// processChain executes the steps and keeps both turns in the conversation
func (a *Agent) processChain(ctx context.Context, sel *selector.Result, query, conversationID string, steps []*chainer.Step) *Result {
	id := values.StringsCoalesce(conversationID, DefaultConversationID)
	if a.cfg.MemoryEnabled {
		a.cfg.Store.Append(id, store.RoleUser, query)
	}

	cr := a.chainer.Execute(ctx, query, steps, sel)
	for _, step := range cr.ChainResults {
		a.cfg.CallbackHandler.OnChainStep(ctx, step)
	}

	res := &Result{
		Response:           cr.Response,
		FormattedResponse:  llmutils.MarkdownToHTML(cr.Response),
		Success:            cr.Success,
		Error:              cr.Error,
		EntitiesExtracted:  sel.Entities,
		RelevantCategories: sel.RelevantCategories,
		SelectedTools:      sel.ToolNames(),
		ConversationID:     id,
		ChainStepsExecuted: cr.ChainStepsExecuted,
		SuccessfulSteps:    cr.SuccessfulSteps,
		ChainResults:       cr.ChainResults,
		Method:             cr.Method,
	}

	if a.cfg.MemoryEnabled {
		a.cfg.Store.Append(id, store.RoleAssistant, cr.Response, store.WithMetadata(map[string]any{
			"method":               cr.Method,
			"chain_steps_executed": cr.ChainStepsExecuted,
			"successful_steps":     cr.SuccessfulSteps,
		}))
	}
	return res
}
