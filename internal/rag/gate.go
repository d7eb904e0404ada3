package rag

import "github.com/kindred-finance/kindred/internal/models"

// Default gate thresholds over cosine distance (lower is closer).
const (
	DefaultContextThreshold   = 0.85
	DefaultWebSearchThreshold = 0.75
)

// Gate decides, from retrieval distances alone, whether a query is on-topic
// for the knowledge base and whether a web search should supplement it.
type Gate struct {
	// ContextThreshold: the best match must be strictly below it for the
	// query to count as contextual.
	ContextThreshold float64
	// WebSearchThreshold: when every match is above it, the knowledge base
	// has nothing useful and a web search is warranted.
	WebSearchThreshold float64
}

// NewGate returns a gate with the default thresholds.
func NewGate() Gate {
	return Gate{
		ContextThreshold:   DefaultContextThreshold,
		WebSearchThreshold: DefaultWebSearchThreshold,
	}
}

// IsContextual reports whether the best retrieved passage is close enough to
// treat the query as on-topic. No passages means not contextual.
func (g Gate) IsContextual(passages []models.RetrievedPassage) bool {
	if len(passages) == 0 {
		return false
	}
	best := passages[0].Distance
	for _, p := range passages[1:] {
		if p.Distance < best {
			best = p.Distance
		}
	}
	return best < g.ContextThreshold
}

// NeedsWebSearch reports whether retrieval came back empty or uniformly weak.
func (g Gate) NeedsWebSearch(passages []models.RetrievedPassage) bool {
	if len(passages) == 0 {
		return true
	}
	for _, p := range passages {
		if p.Distance <= g.WebSearchThreshold {
			return false
		}
	}
	return true
}
