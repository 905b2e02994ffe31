package promptbreaker

import (
	"fmt"
	"strings"
	"unicode"
)

// Defaults
const (
	DefaultMaxChunkTokens = 2000
	DefaultCharsPerToken  = 4
)

// Chunk is a token-budgeted slice of a prompt
type Chunk struct {
	ID          int    `json:"chunk_id"`
	Content     string `json:"content"`
	Context     string `json:"context"`
	IsFinal     bool   `json:"is_final"`
	TotalChunks int    `json:"total_chunks"`
}

// Option is a function that modifies the breaker Config.
type Option func(*Config)

// Config of the breaker
type Config struct {
	MaxChunkTokens int
	CharsPerToken  int
}

// WithMaxChunkTokens sets the token budget of a chunk
func WithMaxChunkTokens(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxChunkTokens = n
		}
	}
}

// WithCharsPerToken sets the divisor of the token estimate
func WithCharsPerToken(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.CharsPerToken = n
		}
	}
}

// Breaker splits prompts into chunks
type Breaker struct {
	cfg Config
}

// New returns Breaker
func New(opts ...Option) *Breaker {
	cfg := Config{
		MaxChunkTokens: DefaultMaxChunkTokens,
		CharsPerToken:  DefaultCharsPerToken,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Breaker{cfg: cfg}
}

// MaxChunkTokens returns the chunk budget
func (b *Breaker) MaxChunkTokens() int {
	return b.cfg.MaxChunkTokens
}

// EstimateTokens approximates the token count as the byte length divided
// by the configured characters per token. It is not a tokenizer.
func (b *Breaker) EstimateTokens(text string) int {
	return EstimateTokens(text, b.cfg.CharsPerToken)
}

// EstimateTokens returns len(text)/charsPerToken, with 4 used for non-positive divisors
func EstimateTokens(text string, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return len(text) / charsPerToken
}

// Break returns a single final chunk when the prompt and context fit the budget,
// otherwise the prompt is split by paragraphs, then sentences, then words.
// Chunks after the first carry a note about their position in the context.
func (b *Breaker) Break(prompt, context string) []Chunk {
	if b.EstimateTokens(prompt+context) <= b.cfg.MaxChunkTokens {
		return []Chunk{{
			ID:          0,
			Content:     prompt,
			Context:     context,
			IsFinal:     true,
			TotalChunks: 1,
		}}
	}

	pieces := b.split(prompt, levelParagraph)
	if len(pieces) == 0 {
		pieces = []string{prompt}
	}

	total := len(pieces)
	chunks := make([]Chunk, 0, total)
	for i, p := range pieces {
		ctx := context
		if i > 0 {
			ctx += fmt.Sprintf("\n\nPrevious context: Processing part %d of %d of a larger query.", i+1, total)
		}
		chunks = append(chunks, Chunk{
			ID:          i,
			Content:     p,
			Context:     ctx,
			IsFinal:     i == total-1,
			TotalChunks: total,
		})
	}
	return chunks
}

type level int

const (
	levelParagraph level = iota
	levelSentence
	levelWord
)

var separators = map[level]string{
	levelParagraph: "\n\n",
	levelSentence:  " ",
	levelWord:      " ",
}

// split accumulates pieces of the level into a buffer, flushing it when the next piece
// would exceed the budget. A piece that alone exceeds the budget is split at the next level,
// a single word is never split.
func (b *Breaker) split(text string, lvl level) []string {
	var pieces []string
	switch lvl {
	case levelParagraph:
		pieces = strings.Split(text, "\n\n")
	case levelSentence:
		pieces = splitSentences(text)
	default:
		pieces = strings.Fields(text)
	}

	sep := separators[lvl]
	var chunks []string
	var buf string
	flush := func() {
		if s := strings.TrimSpace(buf); s != "" {
			chunks = append(chunks, s)
		}
		buf = ""
	}

	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		if b.EstimateTokens(piece) > b.cfg.MaxChunkTokens {
			flush()
			if lvl == levelWord {
				chunks = append(chunks, piece)
			} else {
				chunks = append(chunks, b.split(piece, lvl+1)...)
			}
			continue
		}
		candidate := piece
		if buf != "" {
			candidate = buf + sep + piece
		}
		if b.EstimateTokens(candidate) > b.cfg.MaxChunkTokens {
			flush()
			buf = piece
		} else {
			buf = candidate
		}
	}
	flush()
	return chunks
}

// splitSentences splits after '.', '!' or '?' followed by whitespace
func splitSentences(text string) []string {
	var res []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(".!?", runes[i]) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		res = append(res, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		res = append(res, string(runes[start:]))
	}
	return res
}
