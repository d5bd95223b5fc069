// Command selfheal generates Playwright tests from scenario intent and repairs
// them when they fail against the live target application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"selfheal/internal/config"
	"selfheal/internal/logging"
	"selfheal/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app carries state shared by every command once flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string

	cfg    *config.Config
	level  logging.Level
	logger *zap.Logger
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		if a.logger != nil {
			a.logger.Error("pipeline failed", zap.Error(err))
		}
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "selfheal [scenario]",
		Short: "Generate and self-heal Playwright tests",
		Long: `selfheal turns a natural-language scenario into a Playwright test, runs it
against the target application and repairs it with the model when it fails.

Run without a scenario to list the available scenarios. A scenario named
after a subcommand (suite, generate-all, list, show, run) is run with
"selfheal run <scenario>".`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return a.list()
			}
			return a.runScenario(cmd.Context(), args[0])
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultFile, "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log verbosity 0 (none) to 5 (verbose); overrides LOG_LEVEL")

	root.AddCommand(
		&cobra.Command{
			Use:   "run [scenario]",
			Short: "Run one scenario through the pipeline",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runScenario(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "suite",
			Short: "Run every scenario through the pipeline and print a report",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runSuite(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "generate-all",
			Short: "Generate a fresh test for every scenario",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.generateAll(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List available scenarios grouped by category",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.list()
			},
		},
		&cobra.Command{
			Use:   "show [scenario]",
			Short: "Render a scenario's intent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.show(args[0])
			},
		},
	)
	return root
}

// init loads configuration and builds the logger.
func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	raw := cfg.Logging.Level
	if a.logLevel != "" {
		raw = a.logLevel
	}
	level, levelErr := logging.ParseLevel(raw)
	a.level = level
	a.logger = logging.New(level, zapcore.Lock(zapcore.AddSync(a.stderr)))

	if levelErr != nil {
		a.logger.Warn("invalid log level, using default", zap.Error(levelErr))
	}
	for _, w := range cfg.Warnings {
		a.logger.Warn(w)
	}
	return nil
}

func (a *app) list() error {
	catalog := a.catalog()
	groups, err := catalog.Grouped()
	if err != nil {
		return err
	}
	fmt.Fprint(a.stdout, pipeline.RenderListing(groups, catalog.Root()))
	return nil
}

func (a *app) show(name string) error {
	intent, err := a.catalog().Intent(name)
	if err != nil {
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err == nil {
		if out, rerr := renderer.Render("# " + name + "\n\n" + intent); rerr == nil {
			fmt.Fprint(a.stdout, out)
			return nil
		}
	}
	fmt.Fprintf(a.stdout, "%s\n\n%s\n", name, intent)
	return nil
}

func (a *app) runScenario(ctx context.Context, name string) error {
	svc, err := a.services()
	if err != nil {
		return err
	}
	return svc.pipeline.Run(ctx, name)
}

func (a *app) runSuite(ctx context.Context) error {
	svc, err := a.services()
	if err != nil {
		return err
	}
	report, err := svc.suite.Run(ctx)
	if errors.Is(err, pipeline.ErrEmptyCatalog) {
		fmt.Fprintf(a.stderr, "No scenarios found in %s\n%s\n", svc.catalog.Root(), pipeline.ExpectedLayout)
		return err
	}
	if len(report.Results) > 0 {
		a.writeDashboard()
		fmt.Fprint(a.stdout, pipeline.RenderReport(report))
	}
	if err != nil {
		return err
	}
	if report.Failed() > 0 {
		return fmt.Errorf("suite failed: %s", report)
	}
	return nil
}

// writeDashboard renders the failure dashboard. A failure here never fails
// the suite.
func (a *app) writeDashboard() {
	out := filepath.Join(a.cfg.Paths.AgentLogs, pipeline.DashboardFile)
	written, err := pipeline.WriteDashboard(a.cfg.Paths.Results, out)
	switch {
	case err != nil:
		a.logger.Warn("failed to write dashboard", zap.Error(err))
	case written:
		a.logger.Info("dashboard written", zap.String("path", out))
	}
}

func (a *app) generateAll(ctx context.Context) error {
	svc, err := a.services()
	if err != nil {
		return err
	}
	created, err := svc.suite.GenerateAll(ctx)
	if errors.Is(err, pipeline.ErrEmptyCatalog) {
		fmt.Fprintf(a.stderr, "No scenarios found in %s\n%s\n", svc.catalog.Root(), pipeline.ExpectedLayout)
	}
	if err != nil {
		return err
	}
	a.logger.Info("bulk generation finished", zap.Int("created", created))
	return nil
}
