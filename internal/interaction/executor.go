// Package interaction performs single, timed user actions against
// resolved elements.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/browser"
)

// ErrInteractionTimeout means the target never became able to receive the
// action within the action's timeout.
var ErrInteractionTimeout = errors.New("interaction timed out")

// DefaultTimeout applies when Perform is given no timeout.
const DefaultTimeout = 5 * time.Second

// Kind is the type of user action.
type Kind string

const (
	Click  Kind = "click"
	Focus  Kind = "focus"
	Wait   Kind = "wait"
	Upload Kind = "upload"
	// Screenshot captures the page rather than acting on an element. The
	// scenario runner handles it; Perform rejects it.
	Screenshot Kind = "screenshot"
)

// ParseKind accepts the lowercase action names.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Click, Focus, Wait, Upload, Screenshot:
		return k, nil
	case "":
		return Click, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// NeedsElement reports whether the action targets an element.
func (k Kind) NeedsElement() bool {
	return k == Click || k == Focus || k == Upload
}

// Action is one thing to do to an element.
type Action struct {
	Kind Kind
	// Files are the paths an Upload sets. A leading ~ is expanded.
	Files []string
	// Duration is how long a Wait pauses.
	Duration time.Duration
}

func (a Action) String() string {
	switch a.Kind {
	case Wait:
		return fmt.Sprintf("wait %s", a.Duration)
	case Upload:
		return fmt.Sprintf("upload %s", strings.Join(a.Files, ", "))
	default:
		return string(a.Kind)
	}
}

// Executor runs actions. It keeps no state between calls.
type Executor struct {
	logger *zap.Logger
	poll   time.Duration
}

func NewExecutor(logger *zap.Logger, pollInterval time.Duration) *Executor {
	if pollInterval <= 0 {
		pollInterval = browser.DefaultPollInterval
	}
	return &Executor{logger: logger.Named("interaction"), poll: pollInterval}
}

// Perform carries out a on el within timeout. Element actions are retried
// while the element is not yet interactable; when timeout runs out first
// the error wraps ErrInteractionTimeout and the last reason seen.
func (e *Executor) Perform(ctx context.Context, el browser.Element, a Action, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch a.Kind {
	case Wait:
		return browser.Sleep(ctx, a.Duration)
	case Click, Focus, Upload:
	default:
		return fmt.Errorf("action %q cannot be performed on an element", a.Kind)
	}
	if el == nil {
		return fmt.Errorf("%s requires an element", a.Kind)
	}

	do, err := e.operation(el, a)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	attempts := 0
	var lastErr error
	err = browser.Poll(opCtx, e.poll, func(ctx context.Context) (bool, error) {
		attempts++
		err := do(ctx)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, browser.ErrNotInteractable), errors.Is(err, browser.ErrDetached):
			lastErr = err
			return false, nil
		case ctx.Err() != nil:
			return false, ctx.Err()
		default:
			return false, err
		}
	})

	logger := e.logger.With(
		zap.String("action", a.String()),
		zap.String("element", el.Describe()),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(start)))
	switch {
	case err == nil:
		logger.Debug("Action performed.")
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		logger.Debug("Action timed out.", zap.NamedError("last_error", lastErr))
		if lastErr != nil {
			return fmt.Errorf("%w: %s on %s after %s: %w", ErrInteractionTimeout, a, el.Describe(), timeout, lastErr)
		}
		return fmt.Errorf("%w: %s on %s after %s", ErrInteractionTimeout, a, el.Describe(), timeout)
	default:
		return fmt.Errorf("%s on %s failed: %w", a, el.Describe(), err)
	}
}

func (e *Executor) operation(el browser.Element, a Action) (func(context.Context) error, error) {
	switch a.Kind {
	case Click:
		return el.Click, nil
	case Focus:
		return el.Focus, nil
	default:
		if len(a.Files) == 0 {
			return nil, errors.New("upload requires at least one file")
		}
		paths, err := ExpandPaths(a.Files)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return el.SetFiles(ctx, paths) }, nil
	}
}

// ExpandPaths expands a leading ~ in each path and checks that every path
// names an existing regular file, so a bad upload fails the same way on
// every provider.
func ExpandPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		expanded, err := homedir.Expand(p)
		if err != nil {
			return nil, fmt.Errorf("failed to expand path %q: %w", p, err)
		}
		info, err := os.Stat(expanded)
		if err != nil {
			return nil, fmt.Errorf("upload file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("upload file %s is a directory", expanded)
		}
		out = append(out, expanded)
	}
	return out, nil
}
