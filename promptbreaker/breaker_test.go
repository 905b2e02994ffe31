package promptbreaker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/effective-security/toolrouter/promptbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, promptbreaker.EstimateTokens("", 4))
	assert.Equal(t, 2, promptbreaker.EstimateTokens("123456789", 4))
	assert.Equal(t, 3, promptbreaker.EstimateTokens("123456789", 3))
	assert.Equal(t, 2, promptbreaker.EstimateTokens("123456789", 0))

	b := promptbreaker.New(promptbreaker.WithCharsPerToken(2))
	assert.Equal(t, 4, b.EstimateTokens("123456789"))
	assert.Equal(t, promptbreaker.DefaultMaxChunkTokens, b.MaxChunkTokens())
}

func TestBreak_SingleChunk(t *testing.T) {
	b := promptbreaker.New()
	for range 20 {
		prompt := sentence(20)
		chunks := b.Break(prompt, "ctx")
		require.Len(t, chunks, 1)
		assert.Equal(t, promptbreaker.Chunk{
			ID:          0,
			Content:     prompt,
			Context:     "ctx",
			IsFinal:     true,
			TotalChunks: 1,
		}, chunks[0])
	}

	chunks := b.Break("Show me recent sports news", "")
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsFinal)
}

func TestBreak_Reconstruct(t *testing.T) {
	tcases := []struct {
		name   string
		budget int
		prompt string
	}{
		{"paragraphs", 50, paragraphs(8, 6)},
		{"one long paragraph", 30, paragraph(12, 10)},
		{"words only", 5, strings.Repeat("lorem ipsum dolor ", 40)},
		{"huge word", 3, "short " + strings.Repeat("x", 100) + " tail words here"},
		{"mixed", 40, paragraphs(3, 2) + "\n\n" + paragraph(15, 12)},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			b := promptbreaker.New(promptbreaker.WithMaxChunkTokens(tc.budget))
			chunks := b.Break(tc.prompt, "base")
			require.NotEmpty(t, chunks)

			var parts []string
			for i, c := range chunks {
				assert.Equal(t, i, c.ID)
				assert.Equal(t, len(chunks), c.TotalChunks)
				assert.Equal(t, i == len(chunks)-1, c.IsFinal)
				if i == 0 {
					assert.Equal(t, "base", c.Context)
				} else {
					assert.Equal(t, fmt.Sprintf("base\n\nPrevious context: Processing part %d of %d of a larger query.", i+1, len(chunks)), c.Context)
				}
				if len(strings.Fields(c.Content)) > 1 {
					assert.LessOrEqual(t, b.EstimateTokens(c.Content), tc.budget, c.Content)
				}
				parts = append(parts, c.Content)
			}
			assert.Equal(t, strings.Fields(tc.prompt), strings.Fields(strings.Join(parts, " ")))
		})
	}
}

func TestBreak_ParagraphBoundaries(t *testing.T) {
	p1 := strings.Repeat("a", 60)
	p2 := strings.Repeat("b", 60)
	p3 := strings.Repeat("c", 60)
	b := promptbreaker.New(promptbreaker.WithMaxChunkTokens(35))

	chunks := b.Break(p1+"\n\n"+p2+"\n\n"+p3, "")
	require.Len(t, chunks, 2)
	assert.Equal(t, p1+"\n\n"+p2, chunks[0].Content)
	assert.Equal(t, p3, chunks[1].Content)
}

func TestBreak_Sentences(t *testing.T) {
	b := promptbreaker.New(promptbreaker.WithMaxChunkTokens(8))
	chunks := b.Break("First sentence is here. Second one follows! Is this the third? Yes it is.", "")
	var contents []string
	for _, c := range chunks {
		contents = append(contents, c.Content)
	}
	assert.Equal(t, []string{
		"First sentence is here.",
		"Second one follows!",
		"Is this the third? Yes it is.",
	}, contents)
}

func paragraphs(n, sentences int) string {
	var list []string
	for range n {
		list = append(list, paragraph(sentences, 8))
	}
	return strings.Join(list, "\n\n")
}

func paragraph(sentences, words int) string {
	list := make([]string, sentences)
	for i := range list {
		list[i] = sentence(words)
	}
	return strings.Join(list, " ")
}

func sentence(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = gofakeit.Word()
	}
	return strings.Join(words, " ") + "."
}
