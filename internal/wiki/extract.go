package wiki

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sha1n/mcp-lore-server/internal/domain"
)

// Extraction failure reasons. Each is per-document and non-fatal to a batch.
const (
	ReasonReadFailed    = "read failed"
	ReasonParseFailed   = "html parse failed"
	ReasonNoEditLink    = "no edit link found"
	ReasonMissingHref   = "edit link missing href attribute"
	ReasonUnexpectedRef = "unexpected href format"
)

// ExtractError reports why one document could not be turned into a page.
type ExtractError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Path, e.Reason)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Skipped records one document left out of a batch and why.
type Skipped struct {
	Path   string
	Reason string
}

// Extractor turns raw wiki documents into Page records. It holds no state;
// every method is safe for concurrent use.
type Extractor struct {
	// SiteName is the heading prefix token stripped from titles, e.g. "nLab".
	SiteName string

	// SiteBaseURL is the public prefix canonical URLs are rewritten to,
	// e.g. "https://ncatlab.org/nlab/show/".
	SiteBaseURL string

	// EditPathPrefix is the href prefix the edit link must carry,
	// e.g. "/nlab/edit/".
	EditPathPrefix string

	// Progress, when set, is invoked at most once per progressInterval
	// extracted pages during ExtractTree.
	Progress func(extracted int)
}

// progressInterval bounds the rate of batch progress callbacks.
const progressInterval = 1000

// selectors for the wiki's rendered page structure
const (
	titleSelector    = "h1#pageName"
	siteNameSelector = "span.webName"
	contentSelector  = "div#revision"
	editLinkSelector = "a#edit"
)

// ExtractFile parses one document and returns its Page record. The page ID
// is the document path relative to mirrorRoot. A missing title or content
// region degrades to an empty string; a missing or malformed edit link fails
// the document with an *ExtractError.
func (x *Extractor) ExtractFile(documentPath, mirrorRoot string) (domain.Page, error) {
	relPath, err := filepath.Rel(mirrorRoot, documentPath)
	if err != nil {
		return domain.Page{}, &ExtractError{Path: documentPath, Reason: ReasonReadFailed, Err: err}
	}
	relPath = filepath.ToSlash(relPath)

	f, err := os.Open(documentPath)
	if err != nil {
		return domain.Page{}, &ExtractError{Path: relPath, Reason: ReasonReadFailed, Err: err}
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return domain.Page{}, &ExtractError{Path: relPath, Reason: ReasonParseFailed, Err: err}
	}

	title := x.extractTitle(doc)

	content := x.extractContent(doc)
	if content == "" {
		slog.Warn("Document has no content region", "path", relPath)
	}

	url, err := x.extractURL(doc, relPath)
	if err != nil {
		return domain.Page{}, err
	}

	return domain.NewPage(relPath, title, url, content), nil
}

// extractTitle locates the page heading, strips the site-name prefix token
// and trims. Falls back to the empty string; never fails the extraction.
func (x *Extractor) extractTitle(doc *goquery.Document) string {
	heading := doc.Find(titleSelector).First()
	if heading.Length() == 0 {
		return ""
	}

	title := collapseWhitespace(heading.Text())
	if x.SiteName != "" {
		title = strings.TrimSpace(strings.TrimPrefix(title, x.SiteName))
	}
	return title
}

// extractContent concatenates all text nodes of the content region with
// consecutive whitespace collapsed to single spaces. An absent region yields
// the empty string.
func (x *Extractor) extractContent(doc *goquery.Document) string {
	region := doc.Find(contentSelector).First()
	if region.Length() == 0 {
		return ""
	}
	return collapseWhitespace(region.Text())
}

// extractURL reads the edit affordance's target, validates it against the
// expected prefix and rewrites it into the public canonical URL.
func (x *Extractor) extractURL(doc *goquery.Document, relPath string) (string, error) {
	link := doc.Find(editLinkSelector).First()
	if link.Length() == 0 {
		return "", &ExtractError{Path: relPath, Reason: ReasonNoEditLink}
	}

	href, ok := link.Attr("href")
	if !ok {
		return "", &ExtractError{Path: relPath, Reason: ReasonMissingHref}
	}

	pageName, ok := strings.CutPrefix(href, x.EditPathPrefix)
	if !ok {
		return "", &ExtractError{Path: relPath, Reason: ReasonUnexpectedRef, Err: fmt.Errorf("href %q", href)}
	}

	return x.SiteBaseURL + pageName, nil
}

// ExtractTree extracts every eligible document under root independently.
// Documents that fail extraction are accumulated into the skip list; one
// bad document never aborts the batch. The returned error covers walk
// failures only.
func (x *Extractor) ExtractTree(root string) ([]domain.Page, []Skipped, error) {
	var pages []domain.Page
	var skipped []Skipped

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			// The mirror's own bookkeeping is not content.
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(path, ".html") {
			return nil
		}

		page, extractErr := x.ExtractFile(path, root)
		if extractErr != nil {
			reason := extractErr.Error()
			var ee *ExtractError
			if errors.As(extractErr, &ee) {
				reason = ee.Reason
			}
			skipped = append(skipped, Skipped{Path: relOrSelf(path, root), Reason: reason})
			slog.Warn("Skipping document", "path", path, "reason", reason)
			return nil
		}

		pages = append(pages, page)
		if x.Progress != nil && len(pages)%progressInterval == 0 {
			x.Progress(len(pages))
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking mirror tree: %w", err)
	}

	return pages, skipped, nil
}

func relOrSelf(path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// collapseWhitespace reduces all runs of whitespace, including newlines, to
// single spaces and trims the ends.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
