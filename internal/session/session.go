// Package session owns the lifetime of the browser resources a single
// scenario run uses: one process, one isolated context and one page.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/browser"
	"github.com/xkilldash9x/lancet/internal/config"
)

// ErrAcquisition wraps every failure to bring a session up.
var ErrAcquisition = errors.New("session acquisition failed")

// teardownTimeout bounds each release step. Release runs detached from the
// caller's context so it still happens after a cancellation.
const teardownTimeout = 15 * time.Second

// Options is everything Acquire needs to build a session.
type Options struct {
	Launch  browser.LaunchOptions
	Context browser.ContextOptions
	// DefaultTimeout bounds page operations that carry no deadline of their own.
	DefaultTimeout time.Duration
}

// OptionsFromConfig maps the browser and timeout settings onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	vp := browser.Viewport{Width: cfg.Browser.Viewport.Width, Height: cfg.Browser.Viewport.Height}
	return Options{
		Launch: browser.LaunchOptions{
			Headless:  cfg.Browser.Headless,
			ExecPath:  cfg.Browser.ExecPath,
			RemoteURL: cfg.Browser.RemoteURL,
			Args:      append([]string(nil), cfg.Browser.Args...),
			Viewport:  vp,
			Timeout:   cfg.Browser.LaunchTimeout,
		},
		Context: browser.ContextOptions{
			Viewport:  vp,
			UserAgent: cfg.Browser.UserAgent,
		},
		DefaultTimeout: cfg.Timeouts.Default,
	}
}

// Session is a browser process, an isolated context inside it, and one
// page. Releasing it invalidates every handle derived from it.
type Session struct {
	ID      string
	Browser browser.Browser
	Context browser.Context
	Page    browser.Page

	once     sync.Once
	released bool
	mu       sync.Mutex
}

// Released reports whether Release has run for s.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Manager acquires and releases sessions against a provider.
type Manager struct {
	provider browser.Provider
	opts     Options
	logger   *zap.Logger
}

func NewManager(provider browser.Provider, opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		provider: provider,
		opts:     opts,
		logger:   logger.Named("session"),
	}
}

// Acquire launches a browser, opens an isolated context with the default
// timeout applied, and opens one page in it. Whatever was created before a
// failure is released before Acquire returns.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	s := &Session{ID: uuid.NewString()}
	logger := m.logger.With(zap.String("session_id", s.ID), zap.String("provider", m.provider.Name()))
	logger.Debug("Acquiring session.")

	// Step 1: the browser process (or a remote attachment).
	b, err := m.provider.Launch(ctx, m.opts.Launch)
	if err != nil {
		return nil, fmt.Errorf("%w: launch browser: %w", ErrAcquisition, err)
	}
	s.Browser = b

	// Step 2: an isolated context. Cookies and storage never cross sessions.
	bc, err := b.NewContext(ctx, m.opts.Context)
	if err != nil {
		m.Release(ctx, s)
		return nil, fmt.Errorf("%w: create browser context: %w", ErrAcquisition, err)
	}
	s.Context = bc
	bc.SetDefaultTimeout(m.opts.DefaultTimeout)

	// Step 3: exactly one page per session.
	page, err := bc.NewPage(ctx)
	if err != nil {
		m.Release(ctx, s)
		return nil, fmt.Errorf("%w: open page: %w", ErrAcquisition, err)
	}
	s.Page = page

	logger.Info("Session acquired.")
	return s, nil
}

// Release closes the context and then the browser. Teardown errors are
// logged, never returned. Releasing nil or an already released session is
// a no-op.
func (m *Manager) Release(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	s.once.Do(func() {
		logger := m.logger.With(zap.String("session_id", s.ID))
		base := browser.Detach(ctx)

		if s.Context != nil {
			closeCtx, cancel := context.WithTimeout(base, teardownTimeout)
			if err := s.Context.Close(closeCtx); err != nil {
				logger.Warn("Failed to close browser context.", zap.Error(err))
			}
			cancel()
		}
		if s.Browser != nil {
			closeCtx, cancel := context.WithTimeout(base, teardownTimeout)
			if err := s.Browser.Close(closeCtx); err != nil {
				logger.Warn("Failed to close browser.", zap.Error(err))
			}
			cancel()
		}

		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
		logger.Debug("Session released.")
	})
}

// With acquires a session, runs fn with it and releases it on every exit
// path, panics included.
func (m *Manager) With(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	s, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer m.Release(ctx, s)
	return fn(ctx, s)
}
