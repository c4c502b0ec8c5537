package domain

// Page represents one extracted wiki page.
// It is the record persisted in the page store and mirrored into the
// search index; Page identity is the document's path relative to the
// mirror root, which is stable across syncs.
type Page struct {
	// ID uniquely identifies the page. Derived from SourcePath and never
	// regenerated for the same document.
	ID string `json:"id"`

	// Title is the display title. May be empty when the document carries
	// no recognizable heading.
	Title string `json:"title"`

	// SourcePath is the document path relative to the mirror root.
	// Used for diffing and diagnostics only.
	SourcePath string `json:"source_path"`

	// URL is the externally resolvable canonical address of the page.
	URL string `json:"url"`

	// Content is the cleaned, whitespace-normalized page text.
	Content string `json:"content"`
}

// NewPage creates a Page whose ID is the document's relative path.
func NewPage(sourcePath, title, url, content string) Page {
	return Page{
		ID:         sourcePath,
		Title:      title,
		SourcePath: sourcePath,
		URL:        url,
		Content:    content,
	}
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	PageFieldID      = "id"
	PageFieldTitle   = "title"
	PageFieldContent = "content"
)
