package rag

// Wire types for the three upstream calls. Field names follow the upstream
// JSON contracts exactly; internal code never leaks these past the service.

type embeddingRequest struct {
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type searchRequest struct {
	Vector searchVector `json:"vector"`
	Select string       `json:"select"`
}

type searchVector struct {
	Value  []float64 `json:"value"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

type searchResponse struct {
	Value []searchDoc `json:"value"`
}

type searchDoc struct {
	Content string  `json:"content"`
	Score   float64 `json:"@search.score"`
	ID      string  `json:"id"`
}

// ChatMessage is a single turn of the completion prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage completionUsage `json:"usage"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Passage is one retrieved document snippet, in relevance order.
type Passage struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
}

// TokenUsage aggregates the token accounting for one answered query.
type TokenUsage struct {
	// ContextTokens is the local estimate for the prompt after budgeting.
	ContextTokens int `json:"context_tokens"`

	// Prompt/completion/total counts come from the completion service and
	// are authoritative when present.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	Answer         string     `json:"answer"`
	Passages       []Passage  `json:"passages"`
	Usage          TokenUsage `json:"usage"`
	QueryTruncated bool       `json:"query_truncated"`
}
