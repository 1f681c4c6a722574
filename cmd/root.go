// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/observability"
)

// Exit codes returned by ExitCode.
const (
	ExitOK       = 0
	ExitFailures = 1
	ExitError    = 2
)

// flagKeys maps command line flags onto configuration keys. Flags only
// override the config file and environment when they are set explicitly.
var flagKeys = map[string]string{
	"log-level":     "logger.level",
	"log-format":    "logger.format",
	"log-file":      "logger.log_file",
	"provider":      "browser.provider",
	"headless":      "browser.headless",
	"exec-path":     "browser.exec_path",
	"remote-url":    "browser.remote_url",
	"target":        "target.url",
	"concurrency":   "runner.concurrency",
	"settle":        "runner.settle_delay",
	"artifacts-dir": "artifacts.dir",
	"json":          "report.json",
	"junit":         "report.junit",
}

// app carries what PersistentPreRunE builds for the subcommands.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCommand builds a fresh command tree. Each call is independent, so
// flags never leak between invocations.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "lancet",
		Short: "lancet drives a real browser through end-to-end UI scenarios.",
		Long: `lancet runs scripted UI scenarios against a web application: it opens an
isolated browser session, navigates to the target, performs each step and
checks the final state of the page.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.Sync()
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "lancet version %s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./lancet.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn or error (overrides config/env)")
	pf.String("log-format", "", "log format: console or json (overrides config/env)")
	pf.String("log-file", "", "also write JSON logs to this rotating file (overrides config/env)")

	rootCmd.AddCommand(newRunCmd(a), newListCmd(a), newVersionCmd())
	return rootCmd
}

// initialize reads configuration from defaults, file, environment and
// flags, in rising precedence, then builds the logger.
func (a *app) initialize(cmd *cobra.Command) error {
	v := a.v
	config.SetDefaults(v)

	if a.cfgFile != "" {
		p, err := homedir.Expand(a.cfgFile)
		if err != nil {
			return err
		}
		v.SetConfigFile(p)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("lancet")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LANCET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = observability.New(cfg.Logger, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
	observability.SetLogger(a.logger)
	if used := v.ConfigFileUsed(); used != "" {
		a.logger.Debug("Loaded config file.", zap.String("path", used))
	}
	return nil
}

// Execute runs the command line in args against a fresh command tree and
// prints any error to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return err
}

// ExitCode maps an Execute error to a process exit code: scenario failures
// are 1, any other error is 2.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrScenariosFailed):
		return ExitFailures
	default:
		return ExitError
	}
}
