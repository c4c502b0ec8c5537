package wiki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var (
	// ErrDivergedHistory indicates the local mirror history is not a prefix
	// of the fetched remote history. Only fast-forward merges are supported;
	// a diverged mirror requires manual intervention.
	ErrDivergedHistory = errors.New("local mirror history diverged from remote")

	// ErrMirrorCorrupt indicates the local mirror path exists but cannot be
	// used as a git repository. It is surfaced, never silently recreated.
	ErrMirrorCorrupt = errors.New("local mirror is not a usable git repository")
)

// MirrorBranch is the well-known local branch the mirror tracks.
const MirrorBranch = "master"

// MergeState classifies the outcome of a mirror sync.
type MergeState int

const (
	// MergeStateCloned means the mirror did not exist and was cloned fresh.
	MergeStateCloned MergeState = iota

	// MergeStateUpToDate means the fetch brought nothing new.
	MergeStateUpToDate

	// MergeStateFastForwarded means the local ref was advanced to the
	// fetched commit and the working tree force-checked-out to match.
	MergeStateFastForwarded
)

func (s MergeState) String() string {
	switch s {
	case MergeStateCloned:
		return "cloned"
	case MergeStateUpToDate:
		return "up-to-date"
	case MergeStateFastForwarded:
		return "fast-forwarded"
	default:
		return "unknown"
	}
}

// SyncResult reports the revisions before and after a sync pass so the
// orchestrator can compute a changed-path set.
type SyncResult struct {
	// PreviousRev is empty on first clone.
	PreviousRev string
	NewRev      string
	State       MergeState
}

// CommandExecutor abstracts command execution for testing.
type CommandExecutor interface {
	// Run executes a command and returns its standard output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor executes commands using os/exec.
type DefaultExecutor struct{}

// Run executes a command and returns its standard output.
func (e *DefaultExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Include stderr in error message for debugging
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// GitClient maintains the local mirror of the remote content tree.
type GitClient struct {
	executor CommandExecutor
}

// NewGitClient creates a new GitClient with the default command executor.
func NewGitClient() *GitClient {
	return &GitClient{
		executor: &DefaultExecutor{},
	}
}

// NewGitClientWithExecutor creates a GitClient with a custom executor (for testing).
func NewGitClientWithExecutor(executor CommandExecutor) *GitClient {
	return &GitClient{
		executor: executor,
	}
}

// Sync brings the mirror at localPath in line with the remote at url.
// A missing localPath triggers a full clone; an existing one is fetched and
// fast-forwarded. A mirror whose history diverged from the remote is left
// untouched and reported with ErrDivergedHistory.
func (g *GitClient) Sync(ctx context.Context, url, localPath string) (*SyncResult, error) {
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		return g.cloneMirror(ctx, url, localPath)
	}
	return g.updateMirror(ctx, localPath)
}

func (g *GitClient) cloneMirror(ctx context.Context, url, localPath string) (*SyncResult, error) {
	if err := g.Clone(ctx, url, localPath); err != nil {
		return nil, err
	}

	// Establish the well-known local branch at the fetched history and
	// make it current.
	if _, err := g.executor.Run(ctx, localPath, "git", "checkout", "-B", MirrorBranch); err != nil {
		return nil, fmt.Errorf("git checkout -B %s failed: %w", MirrorBranch, err)
	}

	rev, err := g.HeadCommit(ctx, localPath)
	if err != nil {
		return nil, err
	}

	return &SyncResult{NewRev: rev, State: MergeStateCloned}, nil
}

func (g *GitClient) updateMirror(ctx context.Context, localPath string) (*SyncResult, error) {
	if !g.IsGitRepository(ctx, localPath) {
		return nil, fmt.Errorf("%w: %s", ErrMirrorCorrupt, localPath)
	}

	prev, err := g.HeadCommit(ctx, localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMirrorCorrupt, err)
	}

	if err := g.Fetch(ctx, localPath); err != nil {
		return nil, err
	}

	fetched, err := g.FetchHead(ctx, localPath)
	if err != nil {
		return nil, err
	}

	if fetched == prev {
		return &SyncResult{PreviousRev: prev, NewRev: prev, State: MergeStateUpToDate}, nil
	}

	if !g.IsAncestor(ctx, localPath, prev, fetched) {
		return nil, fmt.Errorf("%w: local %s, remote %s", ErrDivergedHistory, prev, fetched)
	}

	// Local history is a strict prefix of remote: advance the ref and
	// force-checkout the working tree to match.
	if _, err := g.executor.Run(ctx, localPath, "git", "reset", "--hard", fetched); err != nil {
		return nil, fmt.Errorf("git reset failed: %w", err)
	}

	return &SyncResult{PreviousRev: prev, NewRev: fetched, State: MergeStateFastForwarded}, nil
}

// Clone performs a full clone of the repository. The history is kept so
// later syncs can diff revisions.
func (g *GitClient) Clone(ctx context.Context, url, destDir string) error {
	_, err := g.executor.Run(ctx, "", "git", "clone", url, destDir)
	if err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}

// Fetch fetches the latest changes from origin. Transport failures are
// surfaced to the caller; no internal retry.
func (g *GitClient) Fetch(ctx context.Context, repoDir string) error {
	_, err := g.executor.Run(ctx, repoDir, "git", "fetch", "origin")
	if err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// HeadCommit returns the current HEAD commit SHA.
func (g *GitClient) HeadCommit(ctx context.Context, repoDir string) (string, error) {
	output, err := g.executor.Run(ctx, repoDir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// FetchHead returns the commit SHA the last fetch brought in.
func (g *GitClient) FetchHead(ctx context.Context, repoDir string) (string, error) {
	output, err := g.executor.Run(ctx, repoDir, "git", "rev-parse", "FETCH_HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse FETCH_HEAD failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsAncestor reports whether ancestor is reachable from descendant, i.e.
// the local history is a prefix of the remote one.
func (g *GitClient) IsAncestor(ctx context.Context, repoDir, ancestor, descendant string) bool {
	_, err := g.executor.Run(ctx, repoDir, "git", "merge-base", "--is-ancestor", ancestor, descendant)
	return err == nil
}

// ChangedFiles returns the list of files changed between two commits.
// Returns file paths relative to the repository root.
func (g *GitClient) ChangedFiles(ctx context.Context, repoDir, fromCommit, toCommit string) ([]string, error) {
	output, err := g.executor.Run(ctx, repoDir, "git", "diff",
		"--name-only",
		fromCommit+".."+toCommit,
	)
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")

	// Filter empty lines
	var files []string
	for _, line := range lines {
		if line != "" {
			files = append(files, line)
		}
	}

	return files, nil
}

// IsGitRepository checks if the given directory is a git repository.
func (g *GitClient) IsGitRepository(ctx context.Context, dir string) bool {
	_, err := g.executor.Run(ctx, dir, "git", "rev-parse", "--git-dir")
	return err == nil
}
