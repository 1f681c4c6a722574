// Package frames lists a page's frame tree and picks the frame a step
// targets.
package frames

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/browser"
)

// ErrNoFrame is returned when no frame satisfies a Target.
var ErrNoFrame = errors.New("no frame matches target")

// FrameSet is a page's frames at one instant: main frame first, then
// nested frames depth first in document order.
type FrameSet []browser.Frame

// Main returns the main frame, or nil for an empty set.
func (fs FrameSet) Main() browser.Frame {
	if len(fs) == 0 {
		return nil
	}
	return fs[0]
}

// TargetKind tells how a Target picks its frame.
type TargetKind int

const (
	TargetMain TargetKind = iota
	TargetIndex
	TargetName
	TargetURL
)

// Target selects one frame of a FrameSet. The zero value is the main frame.
type Target struct {
	Kind  TargetKind
	Index int
	// Value is the frame name for TargetName and a URL substring for TargetURL.
	Value string
}

func Main() Target               { return Target{Kind: TargetMain} }
func ByIndex(i int) Target       { return Target{Kind: TargetIndex, Index: i} }
func ByName(name string) Target  { return Target{Kind: TargetName, Value: name} }
func ByURL(substr string) Target { return Target{Kind: TargetURL, Value: substr} }

func (t Target) String() string {
	switch t.Kind {
	case TargetIndex:
		return "index=" + strconv.Itoa(t.Index)
	case TargetName:
		return "name=" + t.Value
	case TargetURL:
		return "url=" + t.Value
	default:
		return "main"
	}
}

// ParseTarget reads "main", "index=N", "name=X" or "url=X". An empty string
// is the main frame.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "main" {
		return Main(), nil
	}
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return Target{}, fmt.Errorf("invalid frame target %q: want main, index=N, name=X or url=X", s)
	}
	switch key {
	case "index":
		i, err := strconv.Atoi(value)
		if err != nil || i < 0 {
			return Target{}, fmt.Errorf("invalid frame index %q", value)
		}
		return ByIndex(i), nil
	case "name":
		if value == "" {
			return Target{}, errors.New("frame name must not be empty")
		}
		return ByName(value), nil
	case "url":
		if value == "" {
			return Target{}, errors.New("frame url substring must not be empty")
		}
		return ByURL(value), nil
	default:
		return Target{}, fmt.Errorf("unknown frame target kind %q", key)
	}
}

// MarshalText and UnmarshalText let targets appear as plain strings in
// scenario files.
func (t Target) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Target) UnmarshalText(b []byte) error {
	parsed, err := ParseTarget(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Resolver enumerates frames. Nothing is cached between calls.
type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger.Named("frames")}
}

// List returns every frame of page, detached and cross-origin ones included.
func (r *Resolver) List(ctx context.Context, page browser.Page) (FrameSet, error) {
	frames, err := page.Frames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	r.logger.Debug("Listed frames.", zap.Int("count", len(frames)))
	return FrameSet(frames), nil
}

// Select returns the frame t designates.
func (r *Resolver) Select(ctx context.Context, page browser.Page, t Target) (browser.Frame, error) {
	if t.Kind == TargetMain {
		f, err := page.MainFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("main frame unavailable: %w", err)
		}
		return f, nil
	}

	fs, err := r.List(ctx, page)
	if err != nil {
		return nil, err
	}
	switch t.Kind {
	case TargetIndex:
		if t.Index >= 0 && t.Index < len(fs) {
			return fs[t.Index], nil
		}
	case TargetName:
		for _, f := range fs {
			if f.Name() == t.Value {
				return f, nil
			}
		}
	case TargetURL:
		for _, f := range fs {
			if strings.Contains(f.URL(), t.Value) {
				return f, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s among %d frames", ErrNoFrame, t, len(fs))
}
