// Package sandbox judges candidate test code by running it in isolation
// against the live target. Each run stages a scenario-namespaced spec file and
// run configuration, invokes the single-file runner, classifies the exit
// status and removes everything it staged before returning.
package sandbox

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"selfheal/internal/tactile"
)

//go:embed templates/playwright.config.ts.tmpl
var configTemplate string

// colorless disables runner color output so captured text is deterministic.
var colorless = []string{"FORCE_COLOR=0", "NO_COLOR=1"}

// ValidationOutcome is the verdict of one isolated run. Diagnostic is empty
// only when Passed is true.
type ValidationOutcome struct {
	Passed     bool
	Diagnostic string
}

// Config controls where files are staged and how the runner is invoked.
type Config struct {
	// ProjectRoot is the runner's working directory.
	ProjectRoot string
	// StagingDir holds ephemeral files. Relative paths resolve against ProjectRoot.
	StagingDir string
	// RunnerBin launches the test runner (usually "npx").
	RunnerBin string
	// BaseURL is written into the run configuration.
	BaseURL string
	// Timeout bounds a single run. Zero uses the executor default.
	Timeout time.Duration
	// DumpCode logs the full candidate before each run.
	DumpCode bool
}

// DefaultConfig returns the layout used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ProjectRoot: ".",
		StagingDir:  ".playwright-staging",
		RunnerBin:   "npx",
		BaseURL:     "http://localhost:3000",
		Timeout:     5 * time.Minute,
	}
}

// Sandbox validates candidates through a tactile.Executor.
type Sandbox struct {
	cfg  Config
	exec tactile.Executor
	log  *zap.Logger
}

// New creates a Sandbox. Empty config fields take DefaultConfig values.
func New(cfg Config, exec tactile.Executor, log *zap.Logger) *Sandbox {
	def := DefaultConfig()
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = def.ProjectRoot
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = def.StagingDir
	}
	if cfg.RunnerBin == "" {
		cfg.RunnerBin = def.RunnerBin
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sandbox{cfg: cfg, exec: exec, log: log.Named("sandbox")}
}

// StagingDir returns the absolute staging directory.
func (s *Sandbox) StagingDir() string {
	dir := s.cfg.StagingDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.cfg.ProjectRoot, dir)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// StagingPaths returns the spec file and run configuration staged for a
// scenario. Both names carry the scenario identity.
func (s *Sandbox) StagingPaths(scenario string) (specFile, configFile string) {
	name := fileSafe(scenario)
	dir := s.StagingDir()
	return filepath.Join(dir, name+".validate.spec.ts"),
		filepath.Join(dir, "playwright.config."+name+".ts")
}

// Validate sanitizes code, runs it against the target and classifies the
// result. A failing test is reported through the outcome; the error return is
// reserved for staging and launcher failures. Staged files are removed on
// every path.
func (s *Sandbox) Validate(ctx context.Context, code, scenario string) (ValidationOutcome, error) {
	specFile, configFile := s.StagingPaths(scenario)
	defer s.cleanup(specFile, configFile)

	s.logCandidate(scenario, code)

	if err := os.MkdirAll(filepath.Dir(specFile), 0o755); err != nil {
		return ValidationOutcome{}, fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(specFile, []byte(Sanitize(code)), 0o644); err != nil {
		return ValidationOutcome{}, fmt.Errorf("stage candidate: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(s.renderConfig(specFile)), 0o644); err != nil {
		return ValidationOutcome{}, fmt.Errorf("stage run config: %w", err)
	}

	s.log.Debug("executing validation", zap.String("scenario", scenario), zap.String("config", configFile))
	result, err := s.exec.Execute(ctx, tactile.Command{
		Binary:           s.cfg.RunnerBin,
		Arguments:        []string{"playwright", "test", "--config=" + configFile},
		WorkingDirectory: s.cfg.ProjectRoot,
		Environment:      colorless,
		Timeout:          s.cfg.Timeout,
	})
	if err != nil {
		return ValidationOutcome{}, fmt.Errorf("launch runner: %w", err)
	}
	if result.IsError() {
		return ValidationOutcome{}, fmt.Errorf("launch runner: %s", result.Error)
	}

	if !result.Killed && result.ExitCode == 0 {
		s.log.Info("validation passed", zap.String("scenario", scenario), zap.Duration("duration", result.Duration))
		return ValidationOutcome{Passed: true}, nil
	}

	output := StripANSI(result.Output())
	if result.Killed {
		output += "\nTest run killed: " + result.KillReason
	}
	if strings.Contains(output, "No tests found") {
		s.log.Error("candidate has no runnable test structure",
			zap.String("scenario", scenario), zap.String("file", specFile))
	}
	s.log.Warn("validation failed",
		zap.String("scenario", scenario),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("killed", result.Killed))
	s.log.Debug("validation output", zap.String("output", output))

	diagnostic := ExtractDiagnostic(output)
	if diagnostic == "" {
		diagnostic = fmt.Sprintf("test runner exited with code %d and no output", result.ExitCode)
	}
	return ValidationOutcome{Passed: false, Diagnostic: diagnostic}, nil
}

// RunArtifact runs a committed artifact with the list reporter, color on and
// output streamed to w.
func (s *Sandbox) RunArtifact(ctx context.Context, path string, w io.Writer) (ValidationOutcome, error) {
	s.log.Info("running existing test", zap.String("file", path))
	result, err := s.exec.Execute(ctx, tactile.Command{
		Binary:           s.cfg.RunnerBin,
		Arguments:        []string{"playwright", "test", path, "--project=chromium", "--reporter=list"},
		WorkingDirectory: s.cfg.ProjectRoot,
		Environment:      []string{"FORCE_COLOR=1"},
		Timeout:          s.cfg.Timeout,
		Stream:           w,
	})
	if err != nil {
		return ValidationOutcome{}, fmt.Errorf("launch runner: %w", err)
	}
	if result.IsError() {
		return ValidationOutcome{}, fmt.Errorf("launch runner: %s", result.Error)
	}
	if !result.Killed && result.ExitCode == 0 {
		return ValidationOutcome{Passed: true}, nil
	}
	diagnostic := ExtractDiagnostic(result.Output())
	if diagnostic == "" {
		diagnostic = fmt.Sprintf("test runner exited with code %d", result.ExitCode)
	}
	return ValidationOutcome{Diagnostic: diagnostic}, nil
}

func (s *Sandbox) renderConfig(specFile string) string {
	return strings.NewReplacer(
		"{{RUN_ID}}", uuid.NewString(),
		"{{TEST_FILE_PATH}}", jsString(specFile),
		"{{BASE_URL}}", jsString(s.cfg.BaseURL),
	).Replace(configTemplate)
}

func (s *Sandbox) cleanup(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to remove staged file", zap.String("file", p), zap.Error(err))
		}
	}
}

func (s *Sandbox) logCandidate(scenario, code string) {
	s.log.Debug("candidate code",
		zap.String("scenario", scenario),
		zap.Int("length", len(code)),
		zap.Bool("has_import", strings.Contains(code, "import")),
		zap.Bool("has_test", strings.Contains(code, "test(")),
		zap.Bool("has_expect", strings.Contains(code, "expect")))
	if s.cfg.DumpCode {
		s.log.Debug("--- CODE START ---\n" + code + "\n--- CODE END ---")
	}
}

// jsString escapes s for a single-quoted TypeScript literal.
func jsString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// fileSafe maps a scenario name onto a single path segment.
func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
