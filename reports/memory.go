package reports

import (
	"context"
	"sort"
	"strings"
	"sync"

	guardowl "github.com/guardowl/guardowl"
)

// MemoryStore is an in-memory report store for development and tests.
// Semantic queries rank by token overlap rather than embeddings, which
// is crude but deterministic.
type MemoryStore struct {
	mu      sync.RWMutex
	reports []guardowl.Report
}

// NewMemoryStore creates a store seeded with the given reports.
func NewMemoryStore(reports []guardowl.Report) *MemoryStore {
	s := &MemoryStore{}
	s.reports = append(s.reports, reports...)
	return s
}

// Add appends reports to the store.
func (s *MemoryStore) Add(reports ...guardowl.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, reports...)
}

// Count returns the number of stored reports.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports), nil
}

// Get returns reports whose metadata matches the filter, up to limit.
func (s *MemoryStore) Get(ctx context.Context, filter *guardowl.Filter, limit int) ([]guardowl.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []guardowl.Report
	for _, report := range s.reports {
		if filter != nil && !filter.Matches(report.Metadata) {
			continue
		}
		matched = append(matched, report)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// Query ranks reports by token overlap with the query text, after
// applying the optional metadata filter.
func (s *MemoryStore) Query(ctx context.Context, text string, filter *guardowl.Filter, k int) ([]guardowl.ScoredReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queryTokens := tokenize(text)

	var scored []guardowl.ScoredReport
	for _, report := range s.reports {
		if filter != nil && !filter.Matches(report.Metadata) {
			continue
		}
		scored = append(scored, guardowl.ScoredReport{
			Report:   report,
			Distance: 1 - overlap(queryTokens, tokenize(report.Text)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Distance < scored[j].Distance
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:()\"'")
		if word != "" {
			tokens[word] = true
		}
	}
	return tokens
}

// overlap returns the fraction of query tokens present in the document.
func overlap(query, doc map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	shared := 0
	for token := range query {
		if doc[token] {
			shared++
		}
	}
	return float64(shared) / float64(len(query))
}
