package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/chatmodel"
	"github.com/effective-security/toolrouter/entities"
	"github.com/effective-security/toolrouter/store"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/sahilm/fuzzy"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SelfTestQuery is the query used by the self test to exercise the tool selection
const SelfTestQuery = "Show me recent sports news from last week"

// SelfTestPrompt is the query used by the self test to exercise the Agent
const SelfTestPrompt = "Hello, are you working?"

// MessageRequired is returned for requests without a message
const MessageRequired = "Message is required"

// ChatRequest is the body of the chat and the analyze routes
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// SearchRequest is the body of the memory search route
type SearchRequest struct {
	Criteria store.Criteria `json:"criteria"`
}

// HealthResponse is the body of the health route
type HealthResponse struct {
	Service             string        `json:"service"`
	Status              *agent.Status `json:"status"`
	Initialized         bool          `json:"initialized"`
	Timestamp           time.Time     `json:"timestamp"`
	ToolsAvailable      []string      `json:"tools_available"`
	MemoryConversations int           `json:"memory_conversations"`
}

// StatusResponse is the body of the status route
type StatusResponse struct {
	*agent.Status
	ConversationCount int  `json:"conversation_count"`
	MemoryEnabled     bool `json:"memory_enabled"`
	ChainingEnabled   bool `json:"chaining_enabled"`
}

// InitializeResponse is the body of the initialize route
type InitializeResponse struct {
	Success bool          `json:"success"`
	Status  *agent.Status `json:"status"`
	Message string        `json:"message"`
}

// SelectedTool describes a selected tool in the analysis
type SelectedTool struct {
	Score       int    `json:"score"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// AnalyzeResponse is the body of the analyze route
type AnalyzeResponse struct {
	Query              string                                        `json:"query"`
	EntitiesExtracted  *entities.Entities                            `json:"entities_extracted"`
	RelevantCategories []string                                      `json:"relevant_categories"`
	SelectedTools      *orderedmap.OrderedMap[string, *SelectedTool] `json:"selected_tools"`
	OptimizedContext   string                                        `json:"optimized_context"`
	ToolCount          int                                           `json:"tool_count"`
	ChainAnalysis      *chainer.Analysis                             `json:"chain_analysis"`
}

// ToolInfo describes a registered tool
type ToolInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

// CategoryInfo describes a tool category with its registered tools
type CategoryInfo struct {
	Description string      `json:"description"`
	Keywords    []string    `json:"keywords"`
	Entities    []string    `json:"entities"`
	Tools       []*ToolInfo `json:"tools"`
}

// ToolsResponse is the body of the tools route
type ToolsResponse struct {
	ToolsByCategory      *orderedmap.OrderedMap[string, *CategoryInfo] `json:"tools_by_category"`
	TotalTools           int                                           `json:"total_tools"`
	Categories           []string                                      `json:"categories"`
	ToolBackendConnected bool                                          `json:"tool_backend_connected"`
	// Query and Matches are set when the tools are filtered
	Query   string   `json:"query,omitempty"`
	Matches []string `json:"matches,omitempty"`
}

// RefreshResponse is the body of the tools refresh route
type RefreshResponse struct {
	Success    bool     `json:"success"`
	ToolsCount int      `json:"tools_count"`
	Tools      []string `json:"tools"`
}

// SearchResponse is the body of the memory search route
type SearchResponse struct {
	ConversationID string         `json:"conversation_id"`
	SearchCriteria store.Criteria `json:"search_criteria"`
	Results        []*store.Match `json:"results"`
	Count          int            `json:"count"`
}

// EntitiesResponse is the body of the memory entities route
type EntitiesResponse struct {
	ConversationID string                       `json:"conversation_id"`
	EntityType     string                       `json:"entity_type,omitempty"`
	Entities       map[string][]store.EntityRef `json:"entities"`
	Summary        *store.Summary               `json:"summary"`
}

// RebuildResponse is the body of the memory rebuild route
type RebuildResponse struct {
	ConversationID string `json:"conversation_id"`
	RebuiltCount   int    `json:"rebuilt_count"`
	Message        string `json:"message"`
}

// ConversationsResponse is the body of the conversations route
type ConversationsResponse struct {
	Conversations []string `json:"conversations"`
	Count         int      `json:"count"`
}

// SelfTestResponse is the body of the self test route
type SelfTestResponse struct {
	ToolBackendHealth bool               `json:"tool_backend_health"`
	Generation        bool               `json:"generation"`
	Extraction        bool               `json:"nlp_extraction"`
	TestEntities      *entities.Entities `json:"test_entities"`
	TestToolsSelected []string           `json:"test_tools_selected"`
	ToolsCount        int                `json:"tools_count"`
	// AgentTest is set when both backends are healthy
	AgentTest    *bool  `json:"agent_test,omitempty"`
	TestResponse string `json:"test_response,omitempty"`
}

// IndexResponse is the body of the index route
type IndexResponse struct {
	Service   string   `json:"service"`
	Endpoints []string `json:"endpoints"`
}

var endpoints = []string{
	"GET /health",
	"GET /status",
	"POST /initialize",
	"POST /test",
	"POST /chat",
	"POST /chat/memory",
	"POST /chat/chain",
	"POST /analyze",
	"GET /tools",
	"POST /tools/refresh",
	"GET /memory/conversations",
	"GET /memory/conversations/{id}",
	"DELETE /memory/conversations/{id}",
	"GET /memory/tool-data/{id}",
	"POST /memory/search/{id}",
	"GET /memory/entities/{id}",
	"POST /memory/rebuild-entities/{id}",
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, &IndexResponse{
		Service:   ServiceName,
		Endpoints: endpoints,
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	st := s.agent.Status()
	writeJSON(w, http.StatusOK, &HealthResponse{
		Service:             ServiceName,
		Status:              st,
		Initialized:         st.Initialized,
		Timestamp:           time.Now().UTC(),
		ToolsAvailable:      s.agent.Registry().Names(),
		MemoryConversations: len(s.agent.Store().List()),
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	cfg := s.agent.Config()
	writeJSON(w, http.StatusOK, &StatusResponse{
		Status:            s.agent.Status(),
		ConversationCount: len(s.agent.Store().List()),
		MemoryEnabled:     cfg.MemoryEnabled,
		ChainingEnabled:   cfg.ChainingEnabled,
	})
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request) {
	ok := s.agent.Initialize(r.Context())
	res := &InitializeResponse{
		Success: ok,
		Status:  s.agent.Status(),
		Message: "Agent initialized successfully",
	}
	if !ok {
		res.Message = "Initialization failed"
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) selfTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res := new(SelfTestResponse)
	res.ToolBackendHealth, res.Generation = s.agent.Probe(ctx)

	sel := s.agent.Selector().Select(SelfTestQuery)
	res.Extraction = true
	res.TestEntities = sel.Entities
	res.TestToolsSelected = sel.ToolNames()
	res.ToolsCount = s.agent.Registry().Len()

	if res.ToolBackendHealth && res.Generation {
		chatCtx := chatmodel.NewChatContext("", requestID(r))
		result := s.agent.Process(chatmodel.WithChatContext(ctx, chatCtx), SelfTestPrompt)
		res.AgentTest = &result.Success
		res.TestResponse = result.Response
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeChat(w http.ResponseWriter, r *http.Request) (*ChatRequest, bool) {
	req := new(ChatRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, MessageRequired)
		return nil, false
	}
	return req, true
}

func (s *Server) chat(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChat(w, r)
		if !ok {
			return
		}

		conversationID := req.ConversationID
		if mode != agent.ModeSingle {
			conversationID = values.StringsCoalesce(conversationID, agent.DefaultConversationID)
		}
		chatCtx := chatmodel.NewChatContext(conversationID, requestID(r))
		ctx := chatmodel.WithChatContext(r.Context(), chatCtx)

		if s.scratchpad != nil {
			s.scratchpad.StartRun(ctx)
			defer func() {
				stats, _ := s.scratchpad.EndRun(ctx)
				if stats != nil {
					logger.ContextKV(ctx, xlog.DEBUG,
						"status", "run_ended",
						"conversation", stats.ConversationID,
						"request_id", stats.RequestID,
						"tools_calls", stats.ToolsCalls,
						"generation_calls", stats.GenerationCalls,
						"duration", stats.Duration.String(),
					)
				}
			}()
		}

		var res *agent.Result
		switch mode {
		case agent.ModeMemory:
			res = s.agent.ProcessWithMemory(ctx, req.Message, conversationID)
		case agent.ModeChain:
			res = s.agent.ProcessWithChaining(ctx, req.Message, conversationID)
		default:
			res = s.agent.Process(ctx, req.Message)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}

	an := s.agent.Analyze(req.Message)
	selected := orderedmap.New[string, *SelectedTool]()
	for pair := an.Selection.SelectedTools.Oldest(); pair != nil; pair = pair.Next() {
		selected.Set(pair.Key, &SelectedTool{
			Score:       pair.Value.Score,
			Category:    pair.Value.Category,
			Description: pair.Value.Tool.Description,
		})
	}

	writeJSON(w, http.StatusOK, &AnalyzeResponse{
		Query:              an.Query,
		EntitiesExtracted:  an.Selection.Entities,
		RelevantCategories: an.Selection.RelevantCategories,
		SelectedTools:      selected,
		OptimizedContext:   an.Context,
		ToolCount:          an.Selection.ToolCount,
		ChainAnalysis:      an.Chain,
	})
}

// toolNames implements fuzzy.Source
type toolNames []string

func (s toolNames) String(i int) string {
	return strings.ToLower(s[i])
}

func (s toolNames) Len() int {
	return len(s)
}

// tools lists the registered tools by category,
// the optional q parameter filters the tools by fuzzy match of the name.
func (s *Server) tools(w http.ResponseWriter, r *http.Request) {
	reg := s.agent.Registry()
	names := reg.Names()

	res := &ToolsResponse{
		ToolsByCategory:      orderedmap.New[string, *CategoryInfo](),
		TotalTools:           len(names),
		ToolBackendConnected: s.agent.Status().ToolBackend,
	}

	var matched map[string]bool
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		res.Query = q
		matched = make(map[string]bool)
		for _, m := range fuzzy.FindFrom(strings.ToLower(q), toolNames(names)) {
			matched[names[m.Index]] = true
			res.Matches = append(res.Matches, names[m.Index])
		}
	}

	for _, cat := range s.agent.Selector().Categorizer().Taxonomy().Categories {
		res.Categories = append(res.Categories, cat.Name)
		info := &CategoryInfo{
			Description: "Tools for " + strings.ReplaceAll(cat.Name, "_", " "),
			Keywords:    append([]string{}, cat.Keywords...),
			Entities:    append([]string{}, cat.EntityFields...),
			Tools:       []*ToolInfo{},
		}
		for _, name := range cat.Tools {
			d, ok := reg.Get(name)
			if !ok || (matched != nil && !matched[name]) {
				continue
			}
			params := []string{}
			for _, p := range slices.Concat(d.RequiredParams(), d.OptionalParams()) {
				params = append(params, p.Name)
			}
			info.Tools = append(info.Tools, &ToolInfo{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			})
		}
		res.ToolsByCategory.Set(cat.Name, info)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) refreshTools(w http.ResponseWriter, r *http.Request) {
	names, err := s.agent.RefreshTools(r.Context())
	if err != nil {
		logger.ContextKV(r.Context(), xlog.ERROR, "status", "refresh_failed", "err", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &RefreshResponse{
		Success:    true,
		ToolsCount: len(names),
		Tools:      names,
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) conversations(w http.ResponseWriter, _ *http.Request) {
	list := s.agent.Store().List()
	writeJSON(w, http.StatusOK, &ConversationsResponse{
		Conversations: list,
		Count:         len(list),
	})
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.agent.Store().Conversation(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.agent.Store().Delete(id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &ConversationsResponse{
		Conversations: []string{id},
		Count:         1,
	})
}

// toolData returns the tool data of the conversation,
// entity_types may be repeated or comma separated.
func (s *Server) toolData(w http.ResponseWriter, r *http.Request) {
	var types []string
	for _, v := range r.URL.Query()["entity_types"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	data, err := s.agent.Store().ToolData(r.PathValue("id"), types...)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	req := new(SearchRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id := r.PathValue("id")
	results := s.agent.Store().Search(id, req.Criteria)
	if results == nil {
		results = []*store.Match{}
	}
	writeJSON(w, http.StatusOK, &SearchResponse{
		ConversationID: id,
		SearchCriteria: req.Criteria,
		Results:        results,
		Count:          len(results),
	})
}

// entities returns the aggregated entities of the conversation,
// the optional type parameter limits them to one entity type.
func (s *Server) entities(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	all, summary, err := s.agent.Store().Entities(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	res := &EntitiesResponse{
		ConversationID: id,
		EntityType:     r.URL.Query().Get("type"),
		Entities:       all,
		Summary:        summary,
	}
	if res.EntityType != "" {
		res.Entities = map[string][]store.EntityRef{
			res.EntityType: append([]store.EntityRef{}, all[res.EntityType]...),
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) rebuildEntities(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	count, err := s.agent.Store().RebuildEntities(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &RebuildResponse{
		ConversationID: id,
		RebuiltCount:   count,
		Message:        fmt.Sprintf("Rebuilt entities for %d messages", count),
	})
}
