package wiki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sha1n/mcp-lore-server/internal/config"
	"github.com/sha1n/mcp-lore-server/internal/domain"
)

const (
	// LockFilename is the name of the sync lock file
	LockFilename = "sync.lock"

	// MirrorDirname holds the local working copy of the content tree
	MirrorDirname = "mirror"

	// StoreFilename is the page store file
	StoreFilename = "pages.db"

	// IndexDirname is the search index directory
	IndexDirname = "index.bleve"
)

// ErrNotReady indicates a query arrived before initialization completed.
var ErrNotReady = errors.New("wiki is still initializing")

// PageHit is one hydrated search result surfaced to the query-facing API.
type PageHit struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Service coordinates the mirror, the extractor, the page store and the
// search index. It owns the decision of when each store is written and in
// what order: the page store always absorbs a page set before the search
// index does, so a reader resolving a hit by ID never finds a hit with no
// backing record.
type Service struct {
	settings  *config.WikiSettings
	git       *GitClient
	extractor *Extractor
	status    *StatusReporter
	lock      *FileLock

	mu         sync.RWMutex
	store      *PageStore
	engine     domain.SearchEngine
	bootstrap  bool
	storeReady bool
	indexReady bool
	lastRev    string
	skipped    int
}

// NewService creates a wiki service rooted at the settings' base directory.
func NewService(settings *config.WikiSettings, status *StatusReporter) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}

	if err := os.MkdirAll(settings.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	extractor := &Extractor{
		SiteName:       settings.SiteName,
		SiteBaseURL:    settings.SiteBaseURL,
		EditPathPrefix: settings.EditPathPrefix,
	}
	extractor.Progress = func(extracted int) {
		status.Emit(StageExtracting, fmt.Sprintf("extracted %d pages", extracted))
	}

	return &Service{
		settings:  settings,
		git:       NewGitClient(),
		extractor: extractor,
		status:    status,
		lock:      NewFileLock(filepath.Join(settings.BaseDir, LockFilename)),
	}, nil
}

func (s *Service) mirrorDir() string {
	return filepath.Join(s.settings.BaseDir, MirrorDirname)
}

func (s *Service) storePath() string {
	return filepath.Join(s.settings.BaseDir, StoreFilename)
}

func (s *Service) indexPath() string {
	return filepath.Join(s.settings.BaseDir, IndexDirname)
}

// Initialize runs the first sync pass: clone or update the mirror, extract
// the corpus and load both stores. It is intended to run on a background
// goroutine; queries answer ErrNotReady until it completes. There is no
// cancellation of an in-flight pass beyond process termination.
func (s *Service) Initialize(ctx context.Context) error {
	acquired, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		// Another instance is syncing the same base dir; wait our turn.
		slog.Info("Another instance is syncing, waiting for completion")
		if err := s.lock.Lock(s.settings.SyncTimeout); err != nil {
			return fmt.Errorf("failed to acquire sync lock: %w", err)
		}
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Error("Failed to release sync lock", "error", err)
		}
	}()

	if err := s.openStores(); err != nil {
		s.status.Emit(StageError, err.Error())
		return err
	}

	if err := s.syncPass(ctx); err != nil {
		s.status.Emit(StageError, err.Error())
		return err
	}

	s.status.Emit(StageReady, "wiki is ready")
	return nil
}

// Resync runs an incremental sync pass on an initialized service. A failed
// pass leaves the previous ready state serving; readers never observe a
// half-updated result set.
func (s *Service) Resync(ctx context.Context) error {
	if !s.IsReady() {
		return ErrNotReady
	}

	acquired, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("another sync pass is already running")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Error("Failed to release sync lock", "error", err)
		}
	}()

	if err := s.syncPass(ctx); err != nil {
		s.status.Emit(StageError, err.Error())
		return err
	}

	s.status.Emit(StageReady, "wiki is ready")
	return nil
}

// openStores opens the page store and the search index, deciding between
// bootstrap and incremental mode based on whether both already exist.
func (s *Service) openStores() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		return nil
	}

	s.bootstrap = bootstrapNeeded(s.storePath(), s.indexPath())
	if s.bootstrap {
		// A surviving artifact from a partial loss has nothing left to
		// reconcile against; a bulk rebuild must start from empty stores
		// or entries for vanished pages would outlive the rebuild.
		if err := os.Remove(s.storePath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear stale page store: %w", err)
		}
		if err := os.RemoveAll(s.indexPath()); err != nil {
			return fmt.Errorf("failed to clear stale index: %w", err)
		}
	}

	store, err := OpenPageStore(s.storePath())
	if err != nil {
		return err
	}

	index, err := OpenIndex(s.indexPath())
	if err != nil {
		_ = store.Close()
		return err
	}

	s.store = store
	s.engine = index
	return nil
}

// bootstrapNeeded reports whether either durable path was missing before
// the stores were opened (first run or partial loss: full rebuild).
func bootstrapNeeded(storePath, indexPath string) bool {
	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		return true
	}
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return true
	}
	return false
}

// syncPass is one full pipeline run: mirror sync, extraction, page store
// write, index write, cursor advance. The sync cursor is persisted only
// after both stores absorbed the page set, so a crash mid-pass leaves a
// stale cursor and the next run re-applies the same idempotent writes.
func (s *Service) syncPass(ctx context.Context) error {
	s.mu.RLock()
	bootstrap := s.bootstrap
	s.mu.RUnlock()

	s.status.Emit(StageSyncing, "synchronizing mirror")
	slog.Info("Synchronizing mirror", "url", s.settings.MirrorURL)
	syncRes, err := s.git.Sync(ctx, s.settings.MirrorURL, s.mirrorDir())
	if err != nil {
		return fmt.Errorf("mirror sync failed: %w", err)
	}
	slog.Info("Mirror synchronized", "state", syncRes.State.String(), "rev", syncRes.NewRev)

	cursor, err := s.readCursor()
	if err != nil {
		return err
	}

	if !bootstrap && cursor == syncRes.NewRev {
		slog.Info("Stores already reflect current revision", "rev", cursor)
		s.mu.Lock()
		s.storeReady = true
		s.indexReady = true
		s.lastRev = cursor
		s.mu.Unlock()
		return nil
	}

	s.status.Emit(StageExtracting, "extracting pages")
	pages, skipped, err := s.extractor.ExtractTree(s.mirrorDir())
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	slog.Info("Extraction complete", "pages", len(pages), "skipped", len(skipped))

	// Paths that vanished between the cursor revision and now have no
	// counterpart in the extracted set; their index entries must go.
	var removedIDs []string
	if !bootstrap && cursor != "" {
		removedIDs, err = s.removedPageIDs(ctx, cursor, syncRes.NewRev)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Page store first: a search hit must always have a backing record.
	s.status.Emit(StageStoring, fmt.Sprintf("storing %d pages", len(pages)))
	if err := s.store.PutBatch(pages); err != nil {
		return err
	}
	s.storeReady = true

	s.status.Emit(StageIndexing, fmt.Sprintf("indexing %d pages", len(pages)))
	if bootstrap {
		err = s.engine.BuildIndex(pages)
	} else {
		err = s.engine.UpsertBatch(pages)
	}
	if err != nil {
		return err
	}

	for _, id := range removedIDs {
		if err := s.engine.Delete(id); err != nil {
			return err
		}
	}
	s.indexReady = true

	if err := s.store.SetMetadata(MetaSyncCursor, []byte(syncRes.NewRev)); err != nil {
		return fmt.Errorf("failed to advance sync cursor: %w", err)
	}

	s.lastRev = syncRes.NewRev
	s.skipped = len(skipped)
	s.bootstrap = false
	return nil
}

// readCursor returns the last fully-absorbed revision, or empty when no
// pass has ever completed.
func (s *Service) readCursor() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, err := s.store.GetMetadata(MetaSyncCursor)
	if err != nil {
		return "", fmt.Errorf("failed to read sync cursor: %w", err)
	}
	return string(value), nil
}

// removedPageIDs lists page IDs whose documents were deleted between the
// two revisions. Full re-extraction upserts everything that still exists;
// deletions are the one change it cannot see.
func (s *Service) removedPageIDs(ctx context.Context, fromRev, toRev string) ([]string, error) {
	changed, err := s.git.ChangedFiles(ctx, s.mirrorDir(), fromRev, toRev)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, relPath := range changed {
		if filepath.Ext(relPath) != ".html" {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.mirrorDir(), relPath)); os.IsNotExist(err) {
			removed = append(removed, filepath.ToSlash(relPath))
		}
	}
	return removed, nil
}

// IsReady reports whether both stores have absorbed a full page set.
func (s *Service) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storeReady && s.indexReady
}

// Search runs a query and hydrates the hits into display records from the
// page store. Concurrent searches are allowed; they exclude sync passes.
func (s *Service) Search(query string) ([]PageHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.storeReady || !s.indexReady {
		return nil, ErrNotReady
	}

	results, err := s.engine.Search(query, s.settings.MaxResults)
	if err != nil {
		return nil, err
	}

	hits := make([]PageHit, 0, len(results))
	for _, res := range results {
		page, ok, err := s.store.Get(res.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Write ordering makes this unreachable; guard anyway.
			slog.Warn("Search hit without backing record", "id", res.ID)
			continue
		}
		hits = append(hits, PageHit{Title: res.Title, URL: page.URL})
	}

	return hits, nil
}

// Status describes the service for the status tool.
type Status struct {
	Ready        bool
	LastRevision string
	SkippedPages int
}

// CurrentStatus returns a snapshot of readiness and last-sync details.
func (s *Service) CurrentStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Ready:        s.storeReady && s.indexReady,
		LastRevision: s.lastRev,
		SkippedPages: s.skipped,
	}
}

// SetGitClient allows injecting a custom git client for testing.
func (s *Service) SetGitClient(client *GitClient) {
	s.git = client
}

// SetSearchEngine allows injecting a fake engine for testing.
func (s *Service) SetSearchEngine(engine domain.SearchEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

// Close releases both store handles.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close index: %w", err))
		}
		s.engine = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
		s.store = nil
	}

	s.storeReady = false
	s.indexReady = false
	return errors.Join(errs...)
}
