// cmd/run.go
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/artifacts"
	"github.com/xkilldash9x/lancet/internal/engine"
	"github.com/xkilldash9x/lancet/internal/reporting"
	"github.com/xkilldash9x/lancet/internal/scenario"
	"github.com/xkilldash9x/lancet/internal/session"
)

// ErrScenariosFailed is returned by run when any scenario did not pass.
var ErrScenariosFailed = errors.New("scenarios failed")

func newRunCmd(a *app) *cobra.Command {
	var noHold bool

	runCmd := &cobra.Command{
		Use:   "run [scenario|file|dir...]",
		Short: "Run built-in or file based scenarios",
		Long: `Run executes scenarios, each in its own browser session, and exits non-zero
when any of them fails. Arguments are built-in scenario names or IDs (see
"lancet list"), scenario YAML files, or directories of them. With no
arguments every built-in scenario runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger := a.cfg, a.logger

			scs, err := scenario.Select(args)
			if err != nil {
				return err
			}
			if len(scs) == 0 {
				return errors.New("no scenarios selected")
			}

			provider, err := session.NewProvider(cfg.Browser.Provider, logger)
			if err != nil {
				return err
			}
			manager := session.NewManager(provider, session.OptionsFromConfig(cfg), logger)

			opts := scenario.OptionsFromConfig(cfg)
			opts.SkipHold = noHold
			var runnerOpts []scenario.RunnerOption
			if cfg.Artifacts.Enabled {
				w, err := artifacts.New(cfg.Artifacts.Dir, logger)
				if err != nil {
					return err
				}
				runnerOpts = append(runnerOpts, scenario.WithArtifacts(w))
			}
			runner := scenario.NewRunner(manager, opts, logger, runnerOpts...)

			reporter, err := buildReporters(cmd.OutOrStdout(), a, logger)
			if err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			_, sum := engine.New(runner, cfg.Runner.Concurrency, logger).RunAll(ctx, scs, func(o scenario.Outcome) {
				if err := reporter.Write(&o); err != nil {
					logger.Warn("Failed to write outcome to report.", zap.Error(err))
				}
				for _, w := range o.Warnings {
					fmt.Fprintf(stderr, "warning: %s: %s\n", o.Scenario, w)
				}
				if !o.Passed() {
					fmt.Fprintf(stderr, "%s: %s\n", o.Scenario, o.Reason)
				}
			})
			if err := reporter.Close(); err != nil {
				return fmt.Errorf("failed to finalize reports: %w", err)
			}

			if ctx.Err() != nil {
				return fmt.Errorf("%w: run interrupted: %w", ErrScenariosFailed, ctx.Err())
			}
			if !sum.OK() {
				return fmt.Errorf("%w: %d of %d did not pass", ErrScenariosFailed, sum.Total-sum.Passed, sum.Total)
			}
			return nil
		},
	}

	f := runCmd.Flags()
	f.StringP("target", "t", "", "base URL of the application under test (overrides config/env)")
	f.String("provider", "", `browser provider: "cdp" or "static" (overrides config/env)`)
	f.Bool("headless", true, "run the browser without a window (overrides config/env)")
	f.String("exec-path", "", "browser executable (overrides config/env)")
	f.String("remote-url", "", "attach to a running browser's DevTools endpoint (overrides config/env)")
	f.IntP("concurrency", "j", 0, "scenarios run in parallel, each in its own session (overrides config/env)")
	f.Duration("settle", 0, "pause before each step that sets none (overrides config/env)")
	f.String("artifacts-dir", "", "where failure artifacts are written (overrides config/env)")
	f.String("json", "", "write a JSON report to this file (overrides config/env)")
	f.String("junit", "", "write a JUnit XML report to this file (overrides config/env)")
	f.BoolVar(&noHold, "no-hold", false, "close sessions as soon as a scenario passes")
	return runCmd
}

// buildReporters always prints to out and adds the file reports the
// configuration asks for.
func buildReporters(out io.Writer, a *app, logger *zap.Logger) (reporting.Reporter, error) {
	text, err := reporting.NewWithWriter("text", reporting.NopCloser(out), Version, logger)
	if err != nil {
		return nil, err
	}
	multi := reporting.Multi{text}
	files := []struct{ format, path string }{
		{"json", a.cfg.Report.JSON},
		{"junit", a.cfg.Report.JUnit},
	}
	for _, rf := range files {
		if rf.path == "" {
			continue
		}
		r, err := reporting.New(rf.format, rf.path, Version, logger)
		if err != nil {
			_ = multi.Close()
			return nil, err
		}
		multi = append(multi, r)
	}
	return multi, nil
}
