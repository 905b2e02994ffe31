package store_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const toolResult = `{
	"result": {
		"articles": [
			{"id":"a1","title":"Tesla wins","url":"http://example.com/a1","author":"Jane Doe","published_at":"2024-01-01","tags":["ev"]}
		],
		"total": 1
	},
	"success": true
}`

func Test_MemoryStore(t *testing.T) {
	st := store.NewMemoryStore()

	_, err := st.Conversation("missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Empty(t, st.Recall("missing", 100))
	assert.Empty(t, st.Summary("missing"))
	assert.Empty(t, st.Search("missing", store.Criteria{}))
	_, err = st.ToolData("missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, _, err = st.Entities("missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = st.RebuildEntities("missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	st.Append("chat1", store.RoleUser, "Hello")
	st.Append("chat1", store.RoleAssistant, "Hi there!", store.WithMetadata(map[string]any{"tool_used": nil}))
	st.Append("chat2", store.RoleUser, gofakeit.Word())

	c, err := st.Conversation("chat1")
	require.NoError(t, err)
	assert.Equal(t, "chat1", c.ID)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "Hello", c.Messages[0].Content)
	assert.Equal(t, store.RoleAssistant, c.Messages[1].Role)
	assert.False(t, c.LastUpdated.Before(c.CreatedAt))
	assert.Nil(t, c.Messages[1].RawToolData)
	assert.Equal(t, 0, c.Summary.TotalToolCalls)

	assert.Equal(t, []string{"chat2", "chat1"}, st.List())

	// copy is not affected by later changes
	st.Append("chat1", store.RoleUser, "more")
	assert.Len(t, c.Messages, 2)

	require.NoError(t, st.Delete("chat1"))
	assert.Equal(t, []string{"chat2"}, st.List())
	err = st.Delete("chat1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestTrim(t *testing.T) {
	st := store.NewMemoryStore(store.WithLimits(10, 3))
	st.Append("c", store.RoleSystem, "system prompt")
	for i := range 5 {
		st.Append("c", store.RoleUser, fmt.Sprintf("message %d", i))
	}

	c, err := st.Conversation("c")
	require.NoError(t, err)
	var contents []string
	for _, m := range c.Messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"system prompt", "message 2", "message 3", "message 4"}, contents)
}

func TestEvict(t *testing.T) {
	st := store.NewMemoryStore(store.WithLimits(2, 0))
	st.Append("a", store.RoleUser, "1")
	st.Append("b", store.RoleUser, "2")
	st.Append("c", store.RoleUser, "3")
	assert.Equal(t, []string{"c", "b"}, st.List())

	st.Append("b", store.RoleUser, "4")
	st.Append("d", store.RoleUser, "5")
	assert.Equal(t, []string{"d", "b"}, st.List())

	_, err := st.Conversation("c")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRecall(t *testing.T) {
	st := store.NewMemoryStore()
	first := strings.Repeat("a", 40)
	second := strings.Repeat("b", 80)
	third := strings.Repeat("c", 40)
	st.Append("c", store.RoleUser, first)
	st.Append("c", store.RoleAssistant, second)
	st.Append("c", store.RoleUser, third)

	turns := st.Recall("c", 30)
	assert.Equal(t, []store.Turn{
		{Role: store.RoleAssistant, Content: second},
		{Role: store.RoleUser, Content: third},
	}, turns)

	assert.Len(t, st.Recall("c", 40), 3)
	assert.Len(t, st.Recall("c", 9), 0)

	t.Run("chars per token", func(t *testing.T) {
		st := store.NewMemoryStore(store.WithCharsPerToken(2))
		st.Append("c", store.RoleUser, first)
		st.Append("c", store.RoleAssistant, second)
		st.Append("c", store.RoleUser, third)

		assert.Equal(t, []store.Turn{{Role: store.RoleUser, Content: third}}, st.Recall("c", 30))
		assert.Len(t, st.Recall("c", 80), 3)
	})
}

func TestSummary(t *testing.T) {
	st := store.NewMemoryStore()
	question := "Show me recent sports news please"
	st.Append("c", store.RoleUser, question)
	st.Append("c", store.RoleAssistant, "Here are the articles", store.WithMetadata(map[string]any{"tool_used": "find_articles"}))
	assert.Empty(t, st.Summary("c"))

	st.Append("c", store.RoleUser, "thanks")
	assert.Equal(t, "User asked: "+question+"... | Used tool: find_articles", st.Summary("c"))

	long := strings.Repeat("x", 150)
	st.Append("c", store.RoleUser, long)
	assert.True(t, strings.HasSuffix(st.Summary("c"), "User asked: "+strings.Repeat("x", 100)+"..."))
}

func TestToolData(t *testing.T) {
	st := store.NewMemoryStore()
	st.Append("c", store.RoleUser, "news about Tesla")
	st.Append("c", store.RoleAssistant, "Tesla wins",
		store.WithMetadata(map[string]any{"tool_used": "find_articles_by_entity", "chunks_processed": 1}),
		store.WithRawToolData(json.RawMessage(toolResult)),
	)
	// empty tool data is not stored
	st.Append("c", store.RoleAssistant, "nothing", store.WithRawToolData(json.RawMessage(`{}`)))
	// user messages do not change the summary
	st.Append("c", store.RoleUser, "raw", store.WithRawToolData(json.RawMessage(`{"tool_name":"other","result":{"id":"u1"}}`)))

	c, err := st.Conversation("c")
	require.NoError(t, err)
	require.Len(t, c.Messages, 4)
	assert.Nil(t, c.Messages[2].RawToolData)
	assert.Equal(t, "find_articles_by_entity", gjson.GetBytes(c.Messages[1].RawToolData, "tool_name").String())

	assert.Equal(t, store.Summary{
		TotalToolCalls:    1,
		ToolsUsed:         []string{"find_articles_by_entity"},
		EntitiesCollected: []string{"ids", "names", "titles", "urls", "dates", "authors", "counts"},
	}, c.Summary)

	data, err := st.ToolData("c")
	require.NoError(t, err)
	assert.Equal(t, "c", data.ConversationID)
	require.Len(t, data.DetailedData, 2)
	assert.Equal(t, "find_articles_by_entity", data.DetailedData[0].ToolUsed)
	assert.Equal(t, "other", data.DetailedData[1].ToolUsed)
	assert.Len(t, data.AggregatedEntities[store.EntityIDs], 2)

	data, err = st.ToolData("c", store.EntityAuthors)
	require.NoError(t, err)
	assert.Equal(t, map[string][]store.EntityRef{
		store.EntityAuthors: {{Key: "author", Value: "Jane Doe", Path: "articles[0].author"}},
	}, data.AggregatedEntities)

	entities, summary, err := st.Entities("c")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalToolCalls)
	assert.Len(t, entities[store.EntityTitles], 1)
	assert.NotContains(t, entities, store.EntityCounts)

	t.Run("search", func(t *testing.T) {
		assert.Len(t, st.Search("c", store.Criteria{}), 2)
		assert.Len(t, st.Search("c", store.Criteria{ToolName: "find_articles_by_entity"}), 1)
		assert.Len(t, st.Search("c", store.Criteria{EntityValue: "a1"}), 1)
		assert.Len(t, st.Search("c", store.Criteria{EntityValue: "u1"}), 1)
		assert.Empty(t, st.Search("c", store.Criteria{ToolName: "other", EntityValue: "a1"}))
		assert.Empty(t, st.Search("c", store.Criteria{EntityValue: "zzz"}))

		m := st.Search("c", store.Criteria{ToolName: "find_articles_by_entity", EntityValue: "Jane Doe"})
		require.Len(t, m, 1)
		assert.Equal(t, "Tesla wins", m[0].MessageContent)
	})

	t.Run("rebuild", func(t *testing.T) {
		n, err := st.RebuildEntities("c")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestRebuildEntities_Summary(t *testing.T) {
	st := store.NewMemoryStore()
	st.Append("c", store.RoleAssistant, "Tesla wins",
		store.WithRawToolData(json.RawMessage(toolResult)),
		store.WithExtractedEntities(&store.ToolEntities{}),
	)

	c, err := st.Conversation("c")
	require.NoError(t, err)
	assert.Empty(t, c.Summary.EntitiesCollected)

	n, err := st.RebuildEntities("c")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err = st.Conversation("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"ids", "names", "titles", "urls", "dates", "authors", "counts"}, c.Summary.EntitiesCollected)
	assert.Equal(t, 1, c.Summary.TotalToolCalls)
}

func TestExtractEntities(t *testing.T) {
	e := store.ExtractEntities([]byte(toolResult))
	assert.Equal(t, []store.EntityRef{{Key: "id", Value: "a1", Path: "articles[0].id"}}, e.IDs)
	assert.Equal(t, []store.EntityRef{{Key: "title", Value: "Tesla wins", Path: "articles[0].title"}}, e.Names)
	assert.Equal(t, e.Names, e.Titles)
	assert.Equal(t, map[string]int{"articles_count": 1, "articles[0].tags_count": 1}, e.Counts)
	assert.Equal(t, []store.EntityRef{
		{Key: "articles", Type: "array", Path: "articles"},
		{Key: "id", Type: "string", Path: "articles[0].id"},
		{Key: "title", Type: "string", Path: "articles[0].title"},
		{Key: "url", Type: "string", Path: "articles[0].url"},
		{Key: "author", Type: "string", Path: "articles[0].author"},
		{Key: "published_at", Type: "string", Path: "articles[0].published_at"},
		{Key: "tags", Type: "array", Path: "articles[0].tags"},
		{Key: "total", Type: "number", Path: "total"},
	}, e.Keys)
	assert.True(t, e.HasValue("http://example.com/a1"))
	assert.False(t, e.HasValue("articles"))

	t.Run("top level list", func(t *testing.T) {
		e := store.ExtractEntities([]byte(`{"result":[{"Key":7,"Source":"wire"},{"name":null}]}`))
		assert.Equal(t, map[string]int{"_count": 2}, e.Counts)
		assert.Equal(t, []store.EntityRef{{Key: "Key", Value: float64(7), Path: "[0].Key"}}, e.IDs)
		assert.Equal(t, []store.EntityRef{{Key: "Source", Value: "wire", Path: "[0].Source"}}, e.Sources)
		assert.Equal(t, []store.EntityRef{{Key: "name", Path: "[1].name"}}, e.Names)
		assert.True(t, e.HasValue("7"))
		assert.Equal(t, []string{"ids", "names", "sources", "counts"}, e.Collected())
	})
	t.Run("no result", func(t *testing.T) {
		for _, raw := range []string{`{"success":false}`, `{"result":null}`, `{"result":[]}`, `not json`} {
			e := store.ExtractEntities([]byte(raw))
			assert.Empty(t, e.Collected(), raw)
			assert.Empty(t, e.Keys, raw)
		}
	})
}

func TestConcurrentAppend(t *testing.T) {
	st := store.NewMemoryStore(store.WithLimits(5, 10))
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i%8)
			for range 20 {
				st.Append(id, store.RoleUser, gofakeit.Word())
				_ = st.Recall(id, 100)
				_ = st.Summary(id)
			}
		}(i)
	}
	wg.Wait()

	ids := st.List()
	assert.Len(t, ids, 5)
	for _, id := range ids {
		c, err := st.Conversation(id)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(c.Messages), 10)
	}
}
