package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// SimpleLLMReranker asks the completion model to order candidate context
// snippets by relevance. Used when assembling retrieval contexts for the
// prompt layer; similarity search itself never depends on it.
type SimpleLLMReranker struct {
	LLM LLMClient
}

func NewSimpleLLMReranker(client LLMClient) *SimpleLLMReranker {
	return &SimpleLLMReranker{LLM: client}
}

var indexPattern = regexp.MustCompile(`\d+`)

func (r *SimpleLLMReranker) Rank(ctx context.Context, query string, docs []string) ([]int, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) == 1 {
		return []int{0}, nil
	}

	docList := ""
	for i, d := range docs {
		content := d
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		docList += fmt.Sprintf("[%d] %s\n", i, content)
	}

	prompt := fmt.Sprintf(`You are a search relevance optimization system.
Query: %s

Documents:
%s

Rank the documents above based on their relevance to the query.
Output ONLY the indices of the documents in order of relevance, separated by commas.
Example: 2, 0, 1`, query, docList)

	response, err := r.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	matches := indexPattern.FindAllString(response, -1)
	seen := make(map[int]bool, len(docs))
	var order []int
	for _, m := range matches {
		idx, err := strconv.Atoi(m)
		if err != nil || idx < 0 || idx >= len(docs) || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	// Anything the model forgot keeps its original position at the tail.
	for i := range docs {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order, nil
}
