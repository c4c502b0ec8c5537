package wiki

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupportedOS indicates no known URL handler exists for this platform.
var ErrUnsupportedOS = errors.New("no URL handler for this operating system")

// Opener launches the OS default handler for a URL. The handler command is
// platform-specific; its non-zero exit is reported distinctly from the
// absence of any handler.
type Opener struct {
	executor CommandExecutor
	goos     string
}

// NewOpener creates an Opener for the current platform.
func NewOpener() *Opener {
	return &Opener{executor: &DefaultExecutor{}, goos: runtime.GOOS}
}

// NewOpenerWithExecutor creates an Opener with a custom executor and
// platform name (for testing).
func NewOpenerWithExecutor(executor CommandExecutor, goos string) *Opener {
	return &Opener{executor: executor, goos: goos}
}

// Open hands the URL to the OS default handler and waits for the launcher
// command to exit.
func (o *Opener) Open(ctx context.Context, url string) error {
	var name string
	var args []string

	switch o.goos {
	case "darwin":
		name, args = "open", []string{url}
	case "linux":
		name, args = "xdg-open", []string{url}
	case "windows":
		name, args = "cmd", []string{"/c", "start", "", url}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOS, o.goos)
	}

	if _, err := o.executor.Run(ctx, "", name, args...); err != nil {
		return fmt.Errorf("URL handler failed: %w", err)
	}
	return nil
}
