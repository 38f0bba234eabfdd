package sqlparse

import "sync"

// DefaultMemoLimit bounds the parse memo. When the map fills up it is
// reset wholesale; re-parsing is cheap and deterministic, so losing the
// memo only costs a little work.
const DefaultMemoLimit = 1024

// Parser memoizes structural analysis by exact query text.
type Parser struct {
	mu    sync.RWMutex
	memo  map[string]StructureSummary
	limit int
}

func NewParser() *Parser {
	return &Parser{
		memo:  make(map[string]StructureSummary),
		limit: DefaultMemoLimit,
	}
}

// Parse returns the structural summary for query, computing and caching
// it on first sight. Safe for concurrent use: two goroutines racing on
// the same text both compute the same summary, and the second insert is
// an idempotent overwrite.
func (p *Parser) Parse(query string) StructureSummary {
	p.mu.RLock()
	s, ok := p.memo[query]
	p.mu.RUnlock()
	if ok {
		return s
	}

	s = analyze(query)

	p.mu.Lock()
	if len(p.memo) >= p.limit {
		p.memo = make(map[string]StructureSummary, p.limit)
	}
	p.memo[query] = s
	p.mu.Unlock()

	return s
}

// Invalidate drops every memoized summary.
func (p *Parser) Invalidate() {
	p.mu.Lock()
	p.memo = make(map[string]StructureSummary)
	p.mu.Unlock()
}

// MemoSize reports how many summaries are currently cached.
func (p *Parser) MemoSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.memo)
}
