package store

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/effective-security/toolrouter/pkg/metricskey"
	"github.com/effective-security/toolrouter/promptbreaker"
	"github.com/effective-security/xlog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "store")

// Default limits of the memory store
const (
	DefaultMaxConversations = 100
	DefaultMaxMessages      = 50
)

// Option is a function that modifies the store Config.
type Option func(*Config)

// Config of the memory store
type Config struct {
	MaxConversations int
	MaxMessages      int
	// CharsPerToken is the divisor of the recall token estimate
	CharsPerToken int
}

// WithLimits overrides non-zero limits
func WithLimits(maxConversations, maxMessages int) Option {
	return func(c *Config) {
		if maxConversations > 0 {
			c.MaxConversations = maxConversations
		}
		if maxMessages > 0 {
			c.MaxMessages = maxMessages
		}
	}
}

// WithCharsPerToken sets the divisor of the recall token estimate,
// it should match the prompt breaker setting.
func WithCharsPerToken(n int) Option {
	return func(c *Config) {
		c.CharsPerToken = n
	}
}

type conversation struct {
	id          string
	messages    []*Message
	createdAt   time.Time
	lastUpdated time.Time
	summary     Summary
	// seq orders conversations by the last update
	seq uint64
}

type inMemory struct {
	cfg     Config
	mu      sync.RWMutex
	storage map[string]*conversation
	seq     uint64
}

// NewMemoryStore returns in-memory ConversationStore
func NewMemoryStore(opts ...Option) ConversationStore {
	cfg := Config{
		MaxConversations: DefaultMaxConversations,
		MaxMessages:      DefaultMaxMessages,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &inMemory{
		cfg:     cfg,
		storage: make(map[string]*conversation),
	}
}

func (m *inMemory) Append(id, role, content string, opts ...AppendOption) {
	now := time.Now()
	msg := &Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	for _, opt := range opts {
		opt(msg)
	}

	hasData := hasToolData(msg.RawToolData)
	if hasData {
		if tool, ok := msg.Metadata["tool_used"].(string); ok && tool != "" && !gjson.GetBytes(msg.RawToolData, "tool_name").Exists() {
			if stamped, err := sjson.SetBytes(msg.RawToolData, "tool_name", tool); err == nil {
				msg.RawToolData = stamped
			}
		}
		if msg.ExtractedEntities == nil {
			msg.ExtractedEntities = ExtractEntities(msg.RawToolData)
		}
	} else {
		msg.RawToolData = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.storage[id]
	if c == nil {
		c = &conversation{
			id:        id,
			createdAt: now,
		}
		m.storage[id] = c
	}

	c.messages = append(c.messages, msg)
	c.lastUpdated = now
	m.seq++
	c.seq = m.seq

	if hasData && role == RoleAssistant {
		c.updateSummary(msg)
	}

	c.trim(m.cfg.MaxMessages)
	m.evict()
}

func (c *conversation) updateSummary(msg *Message) {
	c.summary.TotalToolCalls++
	if tool := gjson.GetBytes(msg.RawToolData, "tool_name").String(); tool != "" && !slices.Contains(c.summary.ToolsUsed, tool) {
		c.summary.ToolsUsed = append(c.summary.ToolsUsed, tool)
	}
	for _, typ := range msg.ExtractedEntities.Collected() {
		if !slices.Contains(c.summary.EntitiesCollected, typ) {
			c.summary.EntitiesCollected = append(c.summary.EntitiesCollected, typ)
		}
	}
}

// trim keeps system messages and the last max non-system messages
func (c *conversation) trim(max int) {
	if len(c.messages) <= max {
		return
	}
	var system, other []*Message
	for _, msg := range c.messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			other = append(other, msg)
		}
	}
	if len(other) > max {
		other = other[len(other)-max:]
	}
	c.messages = append(system, other...)
}

// evict removes least recently updated conversations above the limit,
// must be called under the lock
func (m *inMemory) evict() {
	over := len(m.storage) - m.cfg.MaxConversations
	if over <= 0 {
		return
	}
	list := make([]*conversation, 0, len(m.storage))
	for _, c := range m.storage {
		list = append(list, c)
	}
	slices.SortFunc(list, func(a, b *conversation) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	for _, c := range list[:over] {
		delete(m.storage, c.id)
		metricskey.StatsConversationsEvicted.IncrCounter(1, "memory")
		logger.KV(xlog.DEBUG,
			"status", "evicted",
			"conversation", c.id,
			"messages", len(c.messages),
		)
	}
}

func (m *inMemory) Recall(id string, maxTokens int) []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.storage[id]
	if c == nil {
		return nil
	}

	var res []Turn
	total := 0
	for i := len(c.messages) - 1; i >= 0; i-- {
		msg := c.messages[i]
		tokens := promptbreaker.EstimateTokens(msg.Content, m.cfg.CharsPerToken)
		if total+tokens > maxTokens {
			break
		}
		res = append(res, Turn{Role: msg.Role, Content: msg.Content})
		total += tokens
	}
	slices.Reverse(res)
	return res
}

func (m *inMemory) Summary(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.storage[id]
	if c == nil || len(c.messages) < 3 {
		return ""
	}

	recent := c.messages
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	var points []string
	for _, msg := range recent {
		switch msg.Role {
		case RoleUser:
			if len(msg.Content) > 20 {
				points = append(points, "User asked: "+prefix(msg.Content, 100)+"...")
			}
		case RoleAssistant:
			if tool, ok := msg.Metadata["tool_used"].(string); ok && tool != "" {
				points = append(points, "Used tool: "+tool)
			}
		}
	}
	return strings.Join(points, " | ")
}

func (m *inMemory) Search(id string, criteria Criteria) []*Match {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.storage[id]
	if c == nil {
		return nil
	}

	var res []*Match
	for _, msg := range c.messages {
		if len(msg.RawToolData) == 0 {
			continue
		}
		if criteria.ToolName != "" && gjson.GetBytes(msg.RawToolData, "tool_name").String() != criteria.ToolName {
			continue
		}
		if criteria.EntityValue != "" && !msg.ExtractedEntities.HasValue(criteria.EntityValue) {
			continue
		}
		res = append(res, &Match{
			Timestamp:         msg.Timestamp,
			MessageContent:    msg.Content,
			RawToolData:       msg.RawToolData,
			ExtractedEntities: msg.ExtractedEntities,
		})
	}
	return res
}

func (m *inMemory) ToolData(id string, entityTypes ...string) (*ToolData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.storage[id]
	if c == nil {
		return nil, ErrNotFound
	}

	res := &ToolData{
		ConversationID:     id,
		Summary:            c.summary.clone(),
		DetailedData:       []*ToolDataEntry{},
		AggregatedEntities: map[string][]EntityRef{},
	}
	for _, msg := range c.messages {
		if len(msg.RawToolData) == 0 {
			continue
		}
		res.DetailedData = append(res.DetailedData, &ToolDataEntry{
			Timestamp:         msg.Timestamp,
			ToolUsed:          gjson.GetBytes(msg.RawToolData, "tool_name").String(),
			RawData:           msg.RawToolData,
			ExtractedEntities: msg.ExtractedEntities,
		})
	}
	res.AggregatedEntities = c.aggregate(entityTypes)
	return res, nil
}

func (m *inMemory) Entities(id string) (map[string][]EntityRef, *Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.storage[id]
	if c == nil {
		return nil, nil, ErrNotFound
	}
	summary := c.summary.clone()
	return c.aggregate(nil), &summary, nil
}

func (c *conversation) aggregate(entityTypes []string) map[string][]EntityRef {
	res := map[string][]EntityRef{}
	for _, msg := range c.messages {
		if msg.ExtractedEntities == nil {
			continue
		}
		for _, typ := range EntityTypes {
			if typ == EntityCounts || (len(entityTypes) > 0 && !slices.Contains(entityTypes, typ)) {
				continue
			}
			res[typ] = append(res[typ], msg.ExtractedEntities.List(typ)...)
		}
	}
	return res
}

func (m *inMemory) RebuildEntities(id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.storage[id]
	if c == nil {
		return 0, ErrNotFound
	}

	count := 0
	c.summary.EntitiesCollected = nil
	for _, msg := range c.messages {
		if len(msg.RawToolData) == 0 {
			continue
		}
		msg.ExtractedEntities = ExtractEntities(msg.RawToolData)
		count++
		if msg.Role != RoleAssistant {
			continue
		}
		for _, typ := range msg.ExtractedEntities.Collected() {
			if !slices.Contains(c.summary.EntitiesCollected, typ) {
				c.summary.EntitiesCollected = append(c.summary.EntitiesCollected, typ)
			}
		}
	}
	return count, nil
}

func (m *inMemory) Conversation(id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.storage[id]
	if c == nil {
		return nil, ErrNotFound
	}
	messages := make([]*Message, len(c.messages))
	for i, msg := range c.messages {
		cp := *msg
		messages[i] = &cp
	}
	return &Conversation{
		ID:          c.id,
		Messages:    messages,
		CreatedAt:   c.createdAt,
		LastUpdated: c.lastUpdated,
		Summary:     c.summary.clone(),
	}, nil
}

func (m *inMemory) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*conversation, 0, len(m.storage))
	for _, c := range m.storage {
		list = append(list, c)
	}
	slices.SortFunc(list, func(a, b *conversation) int {
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})
	ids := make([]string, len(list))
	for i, c := range list {
		ids[i] = c.id
	}
	return ids
}

func (m *inMemory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.storage[id]; !ok {
		return ErrNotFound
	}
	delete(m.storage, id)
	logger.KV(xlog.DEBUG, "status", "deleted", "conversation", id)
	return nil
}

func (s Summary) clone() Summary {
	return Summary{
		TotalToolCalls:    s.TotalToolCalls,
		ToolsUsed:         append([]string{}, s.ToolsUsed...),
		EntitiesCollected: append([]string{}, s.EntitiesCollected...),
	}
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

