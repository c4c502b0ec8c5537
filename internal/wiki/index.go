package wiki

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/mcp-lore-server/internal/domain"
)

// QueryParseError indicates the query text itself is malformed. Callers can
// branch on it to report "invalid search" instead of a system error.
type QueryParseError struct {
	Query string
	Err   error
}

func (e *QueryParseError) Error() string {
	return fmt.Sprintf("invalid query %q: %v", e.Query, e.Err)
}

func (e *QueryParseError) Unwrap() error {
	return e.Err
}

// Index is the Bleve-backed search index over page titles and content.
// It implements domain.SearchEngine. Mutations are serialized; the
// underlying index format does not support concurrent writer sessions.
type Index struct {
	index bleve.Index
	mu    sync.Mutex
}

// CreateIndexMapping creates the Bleve index mapping for page documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Title and content - analyzed for full-text search
	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = true
	docMapping.AddFieldMappingsAt(domain.PageFieldTitle, titleField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	docMapping.AddFieldMappingsAt(domain.PageFieldContent, contentField)

	// ID - stored but not indexed (the document ID carries identity)
	idField := bleve.NewTextFieldMapping()
	idField.Index = false
	idField.Store = true
	idField.IncludeInAll = false
	docMapping.AddFieldMappingsAt(domain.PageFieldID, idField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// OpenIndex opens an existing index or creates a new one at path.
func OpenIndex(path string) (*Index, error) {
	index, err := bleve.Open(path)
	if err == nil {
		return &Index{index: index}, nil
	}

	index, err = bleve.New(path, CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Index{index: index}, nil
}

// Close releases the index handle.
func (i *Index) Close() error {
	return i.index.Close()
}

// DocCount returns the number of indexed documents.
func (i *Index) DocCount() (uint64, error) {
	return i.index.DocCount()
}

// indexDoc is the document shape handed to Bleve.
type indexDoc struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func toIndexDoc(page domain.Page) indexDoc {
	return indexDoc{ID: page.ID, Title: page.Title, Content: page.Content}
}

// BuildIndex bulk-loads pages into a fresh index and commits once at the
// end. Subsequent searches on this handle observe the new data.
func (i *Index) BuildIndex(pages []domain.Page) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.index.NewBatch()
	for _, page := range pages {
		if err := batch.Index(page.ID, toIndexDoc(page)); err != nil {
			return fmt.Errorf("failed to add page %q to batch: %w", page.ID, err)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("batch index failed: %w", err)
	}
	return nil
}

// Upsert replaces any existing document with the same ID, then adds the new
// version. Without the delete step, stale and fresh versions of the same
// page would coexist and both be returned by queries.
func (i *Index) Upsert(page domain.Page) error {
	return i.UpsertBatch([]domain.Page{page})
}

// UpsertBatch applies delete-then-add per page in a single commit.
// An empty batch succeeds and leaves the index unchanged.
func (i *Index) UpsertBatch(pages []domain.Page) error {
	if len(pages) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.index.NewBatch()
	for _, page := range pages {
		batch.Delete(page.ID)
		if err := batch.Index(page.ID, toIndexDoc(page)); err != nil {
			return fmt.Errorf("failed to add page %q to batch: %w", page.ID, err)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("batch upsert failed: %w", err)
	}
	return nil
}

// Delete removes the document with the given ID, if present.
func (i *Index) Delete(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.index.Delete(id); err != nil {
		return fmt.Errorf("failed to delete page %q: %w", id, err)
	}
	return nil
}

// Search returns up to limit hits over title and content, ordered by
// descending score.
func (i *Index) Search(queryStr string, limit int) ([]domain.SearchResult, error) {
	return i.SearchWithFilters(queryStr, limit, domain.SearchFilters{})
}

// SearchWithFilters is Search restricted by the given filters. TitleOnly
// limits matching to the title field; MinScore drops low-scoring hits after
// the underlying search.
func (i *Index) SearchWithFilters(queryStr string, limit int, filters domain.SearchFilters) ([]domain.SearchResult, error) {
	searchQuery, err := buildQuery(queryStr, filters.TitleOnly)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	req.Fields = []string{domain.PageFieldTitle, domain.PageFieldContent}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if hit.Score < filters.MinScore {
			continue
		}
		result := domain.SearchResult{ID: hit.ID, Score: hit.Score}
		if title, ok := hit.Fields[domain.PageFieldTitle].(string); ok {
			result.Title = title
		}
		if content, ok := hit.Fields[domain.PageFieldContent].(string); ok {
			result.Content = content
		}
		results = append(results, result)
	}

	return results, nil
}

// buildQuery constructs the Bleve query. The raw string is validated with
// Bleve's query-string parser first so malformed syntax surfaces as a
// QueryParseError rather than an engine error.
func buildQuery(queryStr string, titleOnly bool) (query.Query, error) {
	if err := validateQuerySyntax(queryStr); err != nil {
		return nil, err
	}

	titleQuery := bleve.NewMatchQuery(queryStr)
	titleQuery.SetField(domain.PageFieldTitle)
	titleQuery.SetBoost(2.0)

	if titleOnly {
		return titleQuery, nil
	}

	contentQuery := bleve.NewMatchQuery(queryStr)
	contentQuery.SetField(domain.PageFieldContent)

	return bleve.NewDisjunctionQuery(titleQuery, contentQuery), nil
}

func validateQuerySyntax(queryStr string) error {
	if queryStr == "" {
		return &QueryParseError{Query: queryStr, Err: fmt.Errorf("query cannot be empty")}
	}
	if _, err := query.NewQueryStringQuery(queryStr).Parse(); err != nil {
		return &QueryParseError{Query: queryStr, Err: err}
	}
	return nil
}
