// File: internal/scenario/runner.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/browser"
	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/frames"
	"github.com/xkilldash9x/lancet/internal/interaction"
	"github.com/xkilldash9x/lancet/internal/locator"
	"github.com/xkilldash9x/lancet/internal/readiness"
	"github.com/xkilldash9x/lancet/internal/session"
)

// Defaults used when Options leaves a field at zero.
const (
	DefaultNavigationTimeout = 10 * time.Second
	DefaultAssertionTimeout  = 3 * time.Second
)

// captureTimeout bounds failure evidence collection. It runs detached from
// the run's context so a canceled run still leaves evidence.
const captureTimeout = 15 * time.Second

// Sessions hands out browser sessions. *session.Manager implements it.
type Sessions interface {
	Acquire(ctx context.Context) (*session.Session, error)
	Release(ctx context.Context, s *session.Session)
}

// ArtifactSink stores evidence from a run.
type ArtifactSink interface {
	// Capture saves whatever the page can give up after a failure and
	// returns the written paths.
	Capture(ctx context.Context, scenario, runID string, page browser.Page) ([]string, error)
	SaveScreenshot(ctx context.Context, scenario, runID, name string, png []byte) (string, error)
}

// Options tunes a Runner.
type Options struct {
	BaseURL           string
	NavigationTimeout time.Duration
	ReadinessTimeout  time.Duration
	StepTimeout       time.Duration
	AssertionTimeout  time.Duration
	// SettleDelay is the pause before each step that sets none. Zero disables it.
	SettleDelay  time.Duration
	PollInterval time.Duration
	// Hold applies to scenarios that set none.
	Hold time.Duration
	// SkipHold disables every hold, including the ones scenarios set.
	SkipHold bool
}

// OptionsFromConfig maps the target, timeout and runner settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:           cfg.Target.URL,
		NavigationTimeout: cfg.Timeouts.Navigation,
		ReadinessTimeout:  cfg.Timeouts.Readiness,
		StepTimeout:       cfg.Timeouts.Step,
		AssertionTimeout:  cfg.Timeouts.Assertion,
		SettleDelay:       cfg.Runner.SettleDelay,
		PollInterval:      cfg.Runner.PollInterval,
		Hold:              cfg.Runner.Hold,
	}
}

func (o *Options) applyDefaults() {
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = DefaultNavigationTimeout
	}
	if o.ReadinessTimeout <= 0 {
		o.ReadinessTimeout = readiness.DefaultTimeout
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = interaction.DefaultTimeout
	}
	if o.AssertionTimeout <= 0 {
		o.AssertionTimeout = DefaultAssertionTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = browser.DefaultPollInterval
	}
}

// RunnerOption configures optional collaborators.
type RunnerOption func(*Runner)

// WithArtifacts stores failure evidence and screenshot steps in sink.
func WithArtifacts(sink ArtifactSink) RunnerOption {
	return func(r *Runner) { r.artifacts = sink }
}

// Runner drives scenarios through their states. A Runner holds no per-run
// state, so one may serve several goroutines.
type Runner struct {
	sessions  Sessions
	waiter    *readiness.Waiter
	locator   *locator.Resolver
	executor  *interaction.Executor
	artifacts ArtifactSink
	opts      Options
	logger    *zap.Logger
}

func NewRunner(sessions Sessions, opts Options, logger *zap.Logger, options ...RunnerOption) *Runner {
	opts.applyDefaults()
	logger = logger.Named("runner")
	fr := frames.NewResolver(logger)
	r := &Runner{
		sessions: sessions,
		waiter:   readiness.NewWaiter(fr, logger),
		locator:  locator.NewResolver(fr, logger),
		executor: interaction.NewExecutor(logger, opts.PollInterval),
		opts:     opts,
		logger:   logger,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Run executes sc once and returns its outcome. The session is released on
// every path out, panics included.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (out Outcome) {
	out = Outcome{
		Scenario:   sc.Name,
		ScenarioID: sc.ID,
		RunID:      uuid.NewString(),
		Started:    time.Now(),
	}
	logger := r.logger.With(zap.String("scenario", sc.Label()), zap.String("run_id", out.RunID))
	var sess *session.Session

	// Cleanup runs on every exit path, including a panic anywhere below.
	// A recovered panic is recorded as a failure before the session is
	// released, so the artifacts still see the live page.
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Scenario run panicked.", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			r.failed(ctx, logger, &out, sc, sess, &Error{
				Code:    CodeInternalError,
				Step:    -1,
				Message: fmt.Sprintf("panic: %v", rec),
			})
		}
		r.enter(logger, &out, StateCleanup)
		r.sessions.Release(ctx, sess)
		r.enter(logger, &out, StateDone)
		out.Duration = time.Since(out.Started)
		r.logOutcome(logger, &out)
	}()

	r.enter(logger, &out, StateInitializing)
	if sc.Assertion.SuspectPolarity {
		msg := fmt.Sprintf("assertion expects %s to be %s; the expectation may be inverted",
			sc.Assertion.Locator, sc.Assertion.Polarity)
		logger.Warn("Suspicious assertion polarity.", zap.String("detail", msg))
		out.warn(msg)
	}

	// -- Initializing --
	s, err := r.sessions.Acquire(ctx)
	if err != nil {
		// A canceled run is not the browser's fault; report it as internal.
		e := &Error{Code: CodeAcquisitionFailure, Step: -1, Message: "could not acquire a browser session", Err: err}
		if ctx.Err() != nil {
			e = &Error{Code: CodeInternalError, Step: -1, Message: "run canceled before a session was acquired", Err: ctx.Err()}
		}
		r.failed(ctx, logger, &out, sc, nil, e)
		return out
	}
	sess = s
	out.SessionID = s.ID
	logger = logger.With(zap.String("session_id", s.ID))

	// -- Navigating --
	// Navigation failures are fatal; readiness problems are only recorded.
	r.enter(logger, &out, StateNavigating)
	if e := r.navigate(ctx, logger, &out, sc, s); e != nil {
		r.failed(ctx, logger, &out, sc, s, e)
		return out
	}

	// -- RunningSteps --
	// Steps run strictly in order and the first failure ends the run.
	r.enter(logger, &out, StateRunningSteps)
	for i, step := range sc.Steps {
		res, e := r.runStep(ctx, logger, &out, sc, s, i, step)
		out.Steps = append(out.Steps, res)
		if e != nil {
			r.failed(ctx, logger, &out, sc, s, e)
			return out
		}
	}

	// -- Asserting --
	r.enter(logger, &out, StateAsserting)
	if e := r.assert(ctx, s, sc.Assertion); e != nil {
		r.failed(ctx, logger, &out, sc, s, e)
		return out
	}
	out.Status = StatusPassed
	r.enter(logger, &out, StatePassed)

	// Keep a passing session open for a moment, as a human tester would
	// look at the result. Cancellation cuts the hold short.
	if d := r.hold(sc); d > 0 {
		logger.Debug("Holding session open.", zap.Duration("hold", d))
		_ = browser.Sleep(ctx, d)
	}
	return out
}

func (r *Runner) enter(logger *zap.Logger, out *Outcome, s State) {
	out.enter(s)
	logger.Debug("Entered state.", zap.String("state", string(s)))
}

func (r *Runner) navigate(ctx context.Context, logger *zap.Logger, out *Outcome, sc *Scenario, s *session.Session) *Error {
	target, err := r.targetURL(sc)
	if err != nil {
		return &Error{Code: CodeNavigationFailure, Step: -1, Message: "invalid target URL", Err: err}
	}

	timeout := sc.NavigationTimeout
	if timeout <= 0 {
		timeout = r.opts.NavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	err = s.Page.Goto(navCtx, target)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return &Error{Code: CodeInternalError, Step: -1, Message: "run canceled during navigation", Err: ctx.Err()}
		}
		return &Error{Code: CodeNavigationFailure, Step: -1, Message: "could not load " + target, Err: err}
	}
	logger.Info("Navigated.", zap.String("url", target))

	rt := sc.ReadinessTimeout
	if rt <= 0 {
		rt = r.opts.ReadinessTimeout
	}
	rep := r.waiter.AwaitAll(ctx, s.Page, rt)
	out.Readiness = summarize(rep)
	if !rep.AllReady() {
		logger.Debug("Not every document reached readiness.",
			zap.Int("documents", out.Readiness.Documents),
			zap.Int("ready", out.Readiness.Ready),
			zap.NamedError("list_error", rep.ListErr))
	}
	return nil
}

// targetURL resolves the scenario URL against the configured base.
func (r *Runner) targetURL(sc *Scenario) (string, error) {
	if sc.URL == "" {
		if r.opts.BaseURL == "" {
			return "", errors.New("no target URL configured")
		}
		return r.opts.BaseURL, nil
	}
	ref, err := url.Parse(sc.URL)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() || r.opts.BaseURL == "" {
		return ref.String(), nil
	}
	base, err := url.Parse(r.opts.BaseURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (r *Runner) runStep(ctx context.Context, logger *zap.Logger, out *Outcome, sc *Scenario, s *session.Session, i int, step Step) (StepResult, *Error) {
	start := time.Now()
	res := StepResult{Index: i, Intent: step.label(), Action: step.Action.String()}
	if step.Action.Kind.NeedsElement() {
		res.Locator = step.Locator.String()
	}
	logger = logger.With(zap.Int("step", i+1), zap.String("intent", res.Intent))

	err := r.doStep(ctx, logger, out, sc, s, step)
	res.Elapsed = time.Since(start)
	if err != nil {
		e := stepError(i, step, err)
		res.Error = err.Error()
		return res, e
	}
	logger.Debug("Step completed.", zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (r *Runner) doStep(ctx context.Context, logger *zap.Logger, out *Outcome, sc *Scenario, s *session.Session, step Step) error {
	settle := r.opts.SettleDelay
	if step.Settle != nil {
		settle = *step.Settle
	}
	if err := browser.Sleep(ctx, settle); err != nil {
		return fmt.Errorf("interrupted while settling: %w", err)
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.opts.StepTimeout
	}

	switch step.Action.Kind {
	case interaction.Wait:
		return r.executor.Perform(ctx, nil, step.Action, timeout)
	case interaction.Screenshot:
		return r.screenshot(ctx, logger, out, sc, s, step, timeout)
	}

	el, err := r.locator.ResolveIn(ctx, s.Page, step.Locator)
	if err != nil {
		return err
	}
	return r.executor.Perform(ctx, el, step.Action, timeout)
}

func (r *Runner) screenshot(ctx context.Context, logger *zap.Logger, out *Outcome, sc *Scenario, s *session.Session, step Step, timeout time.Duration) error {
	shotCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	png, err := s.Page.Screenshot(shotCtx)
	if errors.Is(err, browser.ErrUnsupported) {
		out.warn("screenshot step skipped: provider cannot capture screenshots")
		logger.Warn("Provider cannot capture screenshots; skipping step.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if r.artifacts == nil {
		logger.Debug("No artifact sink configured; screenshot discarded.")
		return nil
	}
	name := step.Name
	if name == "" {
		name = fmt.Sprintf("step-%d", len(out.Steps)+1)
	}
	p, err := r.artifacts.SaveScreenshot(ctx, sc.Name, out.RunID, name, png)
	if err != nil {
		return fmt.Errorf("save screenshot: %w", err)
	}
	out.Artifacts = append(out.Artifacts, p)
	return nil
}

// assert polls until the element's visibility matches the expected
// polarity or the timeout runs out. An unresolvable element counts as not
// visible.
func (r *Runner) assert(ctx context.Context, s *session.Session, a Assertion) *Error {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = r.opts.AssertionTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	want := a.Polarity != Absent
	err := browser.Poll(actx, r.opts.PollInterval, func(ctx context.Context) (bool, error) {
		return r.visible(ctx, s.Page, a.Locator) == want, nil
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return &Error{Code: CodeInternalError, Step: -1, Message: "run canceled during assertion", Err: ctx.Err()}
	case errors.Is(err, context.DeadlineExceeded):
		msg := a.Description
		if msg == "" {
			msg = fmt.Sprintf("expected %s to be %s within %s", a.Locator, a.Polarity, timeout)
		}
		return &Error{Code: CodeAssertionMismatch, Step: -1, Message: msg}
	default:
		return &Error{Code: CodeInternalError, Step: -1, Message: "assertion could not be evaluated", Err: err}
	}
}

func (r *Runner) visible(ctx context.Context, page browser.Page, loc locator.Locator) bool {
	el, err := r.locator.ResolveIn(ctx, page, loc)
	if err != nil {
		return false
	}
	ok, err := el.IsVisible(ctx)
	return err == nil && ok
}

func (r *Runner) hold(sc *Scenario) time.Duration {
	if r.opts.SkipHold {
		return 0
	}
	if sc.Hold != nil {
		return *sc.Hold
	}
	return r.opts.Hold
}

// failed records the failure, enters the Failed state and collects evidence
// while the session is still alive.
func (r *Runner) failed(ctx context.Context, logger *zap.Logger, out *Outcome, sc *Scenario, s *session.Session, e *Error) {
	out.fail(e)
	r.enter(logger, out, StateFailed)
	if s == nil || s.Page == nil {
		return
	}
	for _, c := range s.Page.Console() {
		logger.Debug("Page console.", zap.String("level", c.Level), zap.String("text", c.Text))
	}
	if r.artifacts == nil {
		return
	}
	capCtx, cancel := context.WithTimeout(browser.Detach(ctx), captureTimeout)
	defer cancel()
	paths, err := r.artifacts.Capture(capCtx, sc.Name, out.RunID, s.Page)
	if err != nil {
		logger.Warn("Failed to capture failure artifacts.", zap.Error(err))
	}
	out.Artifacts = append(out.Artifacts, paths...)
}

func (r *Runner) logOutcome(logger *zap.Logger, out *Outcome) {
	fields := []zap.Field{
		zap.String("status", string(out.Status)),
		zap.Duration("duration", out.Duration),
		zap.Int("steps_run", len(out.Steps)),
	}
	if out.Passed() {
		logger.Info("Scenario passed.", fields...)
		return
	}
	fields = append(fields, zap.String("code", string(out.Code)), zap.String("reason", out.Reason))
	logger.Warn("Scenario failed.", fields...)
}
