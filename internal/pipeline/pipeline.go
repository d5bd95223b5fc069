// Package pipeline drives one scenario end to end: resolve it, wait for the
// target, generate when no artifact exists, run the artifact, and repair it
// when the run fails. Suite repeats that for every catalog scenario, one at a
// time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"selfheal/internal/agent"
	"selfheal/internal/browser"
	"selfheal/internal/sandbox"
	"selfheal/internal/scenario"
)

// ErrMissingScenario is returned when a scenario is neither in the catalog
// nor backed by an existing artifact.
var ErrMissingScenario = errors.New("scenario not found")

// Catalog resolves scenarios.
type Catalog interface {
	Find(name string) (scenario.Scenario, error)
	List() ([]scenario.Scenario, error)
}

// Artifacts locates committed tests.
type Artifacts interface {
	FinalPath(name, category string) string
	Exists(path string) bool
	Locate(name string) (string, bool)
}

// Runner runs a committed test.
type Runner interface {
	RunArtifact(ctx context.Context, path string, w io.Writer) (sandbox.ValidationOutcome, error)
}

// Generator produces a first candidate.
type Generator interface {
	Run(ctx context.Context, scenario, url string) (agent.DiscoveryResult, error)
}

// Repairer runs the repair loop.
type Repairer interface {
	Heal(ctx context.Context, artifactPath, scenario, url string) (agent.Result, error)
	HealFromCode(ctx context.Context, code, scenario, url, category, initialErr string) (agent.Result, error)
}

// WaitFunc blocks until the target answers or gives up.
type WaitFunc func(ctx context.Context, url string) error

// TargetWaiter returns a WaitFunc backed by browser.WaitForTarget.
func TargetWaiter(retries int, interval time.Duration, log *zap.Logger) WaitFunc {
	return func(ctx context.Context, url string) error {
		return browser.WaitForTarget(ctx, url, retries, interval, log)
	}
}

// Options wires a Pipeline.
type Options struct {
	Catalog   Catalog
	Artifacts Artifacts
	Runner    Runner
	Discovery Generator
	Healer    Repairer
	Wait      WaitFunc
	AppURL    string
	// Output receives the streamed runner output of artifact runs.
	Output io.Writer
	Log    *zap.Logger
}

// Pipeline processes a single scenario.
type Pipeline struct {
	opts Options
	log  *zap.Logger
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Wait == nil {
		opts.Wait = func(context.Context, string) error { return nil }
	}
	return &Pipeline{opts: opts, log: log.Named("pipeline")}
}

// Run processes scenario name. A nil error means the scenario's test passes,
// either as found or after generation or repair.
func (p *Pipeline) Run(ctx context.Context, name string) error {
	p.log.Info("starting pipeline", zap.String("scenario", name))

	path, err := p.resolve(name)
	if err != nil {
		return err
	}

	if err := p.opts.Wait(ctx, p.opts.AppURL); err != nil {
		return fmt.Errorf("target not ready: %w", err)
	}

	if !p.opts.Artifacts.Exists(path) {
		path, err = p.generate(ctx, name)
		if err != nil {
			return err
		}
	} else {
		p.log.Info("using existing test", zap.String("path", path))
	}

	p.log.Info("running test", zap.String("scenario", name), zap.String("path", path))
	verdict, err := p.opts.Runner.RunArtifact(ctx, path, p.opts.Output)
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	if verdict.Passed {
		p.log.Info("test passed", zap.String("scenario", name))
		return nil
	}

	p.log.Warn("test failed, starting self-healing",
		zap.String("scenario", name),
		zap.String("diagnostic", verdict.Diagnostic))
	res, err := p.opts.Healer.Heal(ctx, path, name, p.opts.AppURL)
	if err != nil {
		return err
	}
	p.log.Info("self-healing successful",
		zap.String("scenario", name),
		zap.Int("attempts", len(res.Attempts)))
	return nil
}

// resolve returns the artifact path for name. A scenario missing from the
// catalog is only usable when an artifact for it already exists.
func (p *Pipeline) resolve(name string) (string, error) {
	sc, err := p.opts.Catalog.Find(name)
	if err == nil {
		return p.opts.Artifacts.FinalPath(name, sc.Category), nil
	}
	if !errors.Is(err, scenario.ErrNotFound) {
		return "", err
	}

	p.log.Warn("scenario not in catalog, looking for an existing test", zap.String("scenario", name))
	if path, ok := p.opts.Artifacts.Locate(name); ok {
		return path, nil
	}
	p.log.Error("no scenario and no existing test", zap.String("scenario", name))
	return "", fmt.Errorf("%w: %s", ErrMissingScenario, name)
}

func (p *Pipeline) generate(ctx context.Context, name string) (string, error) {
	p.log.Info("test not found, generating fresh test", zap.String("scenario", name))
	res, err := p.opts.Discovery.Run(ctx, name, p.opts.AppURL)
	if err != nil {
		return "", fmt.Errorf("discovery: %w", err)
	}
	if res.Valid {
		p.log.Info("test generated", zap.String("path", res.ArtifactPath))
		return res.ArtifactPath, nil
	}

	diagnostic := res.Diagnostic
	if diagnostic == "" {
		diagnostic = "Unknown validation error"
	}
	p.log.Warn("initial generation failed, passing to healer", zap.String("scenario", name))
	healed, err := p.opts.Healer.HealFromCode(ctx, res.Code, name, p.opts.AppURL, res.Category, diagnostic)
	if err != nil {
		return "", err
	}
	p.log.Info("test healed and saved", zap.String("path", healed.ArtifactPath))
	return healed.ArtifactPath, nil
}
