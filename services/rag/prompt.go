package rag

import "strings"

const systemPreamble = "You are a helpful assistant. Answer the question using only the provided context. If the context does not contain the answer, say that you do not know."

// noContextMarker stands in for the context block when search returned
// nothing, so the model is told explicitly instead of being handed an empty
// string.
const noContextMarker = "No relevant documents found."

// BuildMessages assembles the completion prompt from the budgeted passages
// and the (possibly truncated) query. Passages are embedded verbatim in
// relevance order.
func BuildMessages(passages []Passage, query string) []ChatMessage {
	var context string
	if len(passages) == 0 {
		context = noContextMarker
	} else {
		parts := make([]string, len(passages))
		for i, p := range passages {
			parts[i] = p.Content
		}
		context = strings.Join(parts, "\n\n")
	}

	return []ChatMessage{
		{Role: "system", Content: systemPreamble},
		{Role: "user", Content: "Context:\n" + context},
		{Role: "user", Content: "Question: " + query},
	}
}
