package domain

// SearchResult is one scored hit returned by the search engine.
// It is ephemeral; only the page store holds the durable record.
type SearchResult struct {
	ID      string
	Score   float64
	Title   string
	Content string
}

// SearchFilters narrows a search.
type SearchFilters struct {
	// TitleOnly restricts matching to the title field.
	TitleOnly bool

	// MinScore excludes hits scoring below this value. Applied after the
	// underlying search, not used to short-circuit it.
	MinScore float64
}

// SearchEngine is the capability set the sync orchestrator requires from a
// full-text index. The production implementation is wiki.Index (Bleve);
// tests substitute an in-memory fake.
type SearchEngine interface {
	// BuildIndex bulk-loads pages into a fresh index with a single commit.
	BuildIndex(pages []Page) error

	// Upsert replaces any existing document with the same ID.
	Upsert(page Page) error

	// UpsertBatch applies Upsert semantics to every page in one commit.
	// An empty batch succeeds and changes nothing.
	UpsertBatch(pages []Page) error

	// Delete removes the document with the given ID, if present.
	Delete(id string) error

	// Search returns up to limit hits over title and content, ordered by
	// descending score.
	Search(query string, limit int) ([]SearchResult, error)

	// SearchWithFilters is Search with filters applied.
	SearchWithFilters(query string, limit int, filters SearchFilters) ([]SearchResult, error)

	// Close releases the index handle.
	Close() error
}
