package tokens

import (
	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken is the conservative fallback ratio when no exact tokenizer
// is available for the model.
const charsPerToken = 4

// Estimator counts tokens for a piece of text.
type Estimator interface {
	Count(text string) int
}

// tiktokenEstimator counts exactly using the model's BPE encoding.
type tiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

func (e *tiktokenEstimator) Count(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

// heuristicEstimator approximates one token per four characters.
type heuristicEstimator struct{}

func (heuristicEstimator) Count(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	t := n / charsPerToken
	if t == 0 {
		return 1
	}
	return t
}

// Budgeter trims retrieved passages to fit a model's input budget. The
// estimator is chosen once at construction: the exact tokenizer when the
// model's encoding resolves, the character heuristic otherwise. Trim behaves
// identically either way, only precision degrades.
type Budgeter struct {
	estimator Estimator
	exact     bool
}

// NewBudgeter creates a budgeter for the given model. An empty or unknown
// model falls back to the character heuristic.
func NewBudgeter(model string) *Budgeter {
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return &Budgeter{estimator: &tiktokenEstimator{enc: enc}, exact: true}
		}
	}
	return &Budgeter{estimator: heuristicEstimator{}}
}

// NewBudgeterWithEstimator creates a budgeter around an explicit estimator.
// Used by tests.
func NewBudgeterWithEstimator(est Estimator) *Budgeter {
	return &Budgeter{estimator: est}
}

// Exact reports whether the exact tokenizer backs this budgeter.
func (b *Budgeter) Exact() bool {
	return b.exact
}

// Count estimates tokens for a single text.
func (b *Budgeter) Count(text string) int {
	return b.estimator.Count(text)
}

// TrimResult is the outcome of a Trim call.
type TrimResult struct {
	// Kept is how many leading passages fit the budget.
	Kept int

	// Query is the possibly truncated query text.
	Query string

	// QueryTruncated reports the last-resort degradation where even zero
	// passages exceeded the budget and the query itself was cut.
	QueryTruncated bool

	// PromptTokens is the estimated total for preamble + query + kept
	// passages.
	PromptTokens int
}

// Trim keeps the longest prefix of passages (relevance order) such that
// preamble + query + prefix fits maxTokens. When the preamble and query
// alone exceed the budget, the query is truncated character-based as a last
// resort and the result reports the degradation. Pure function of its
// inputs.
func (b *Budgeter) Trim(passages []string, preamble, query string, maxTokens int) TrimResult {
	res := TrimResult{Query: query}

	base := b.estimator.Count(preamble)
	queryTokens := b.estimator.Count(query)

	if base+queryTokens > maxTokens {
		budget := maxTokens - base
		if budget < 1 {
			budget = 1
		}
		res.Query = truncateToTokens(query, budget)
		res.QueryTruncated = true
		queryTokens = b.estimator.Count(res.Query)
	}

	total := base + queryTokens
	for _, p := range passages {
		cost := b.estimator.Count(p)
		if total+cost > maxTokens {
			break
		}
		total += cost
		res.Kept++
	}

	res.PromptTokens = total
	return res
}

// truncateToTokens keeps the head of text, sized by the character
// heuristic. The head carries the question's intent, so it wins over the
// tail.
func truncateToTokens(text string, maxTokens int) string {
	runes := []rune(text)
	keep := maxTokens * charsPerToken
	if len(runes) <= keep {
		return text
	}
	return string(runes[:keep])
}
