package models

// ChatRequest is the body of POST /api/v1/chat/{client_id}
type ChatRequest struct {
	Query string `json:"query" validate:"required"`
}

// SourceDocument is one retrieved passage included in the answer
type SourceDocument struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
}

// ChatUsage reports token accounting for one answered query
type ChatUsage struct {
	ContextTokens    int `json:"context_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the successful answer payload
type ChatResponse struct {
	Answer         string           `json:"answer"`
	Sources        []SourceDocument `json:"sources"`
	Usage          ChatUsage        `json:"usage"`
	QueryTruncated bool             `json:"query_truncated"`
	ElapsedMs      int64            `json:"elapsed_ms"`
}

// ClientsResponse lists the configured client ids
type ClientsResponse struct {
	Clients []string `json:"clients"`
}
