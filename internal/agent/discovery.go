package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"selfheal/internal/artifact"
	"selfheal/internal/llm"
)

// DiscoveryStage tags thoughts recorded during first generation.
const DiscoveryStage = "DISCOVERY"

// DiscoveryResult is the outcome of a single-attempt generation.
type DiscoveryResult struct {
	Code       string
	Valid      bool
	Diagnostic string
	// Category is the resolved scenario category, artifact.GeneralCategory
	// when the scenario is not in the catalog.
	Category     string
	ArtifactPath string
}

// Discovery generates a first candidate for a scenario.
type Discovery struct {
	deps Deps
	log  *zap.Logger
}

// NewDiscovery creates a Discovery.
func NewDiscovery(deps Deps) *Discovery {
	return &Discovery{deps: deps, log: deps.logger().Named("discovery")}
}

// Run snapshots the target once, generates once and validates once. A
// passing candidate is committed to its final path; a failing one is returned
// with its diagnostic for the Healer to continue from. The error return is for
// system failures only.
func (d *Discovery) Run(ctx context.Context, scenario, url string) (DiscoveryResult, error) {
	category := artifact.GeneralCategory
	if c, ok := d.deps.Scenarios.Category(scenario); ok && c != "" {
		category = c
	}
	result := DiscoveryResult{
		Category:     category,
		ArtifactPath: d.deps.Store.FinalPath(scenario, category),
	}

	d.log.Info("navigating to target", zap.String("url", url))
	snap, err := d.deps.Snapshots.Capture(ctx, url)
	if err != nil {
		return result, fmt.Errorf("capture snapshot: %w", err)
	}

	prompt, err := d.deps.Prompts.Discovery(scenario, snap.HTML)
	if err != nil {
		return result, fmt.Errorf("build prompt: %w", err)
	}

	d.log.Info("generating initial test", zap.String("scenario", scenario))
	raw, err := d.deps.Backend.Generate(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return result, fmt.Errorf("generate: %w", err)
	}
	result.Code = d.deps.Extractor.Extract(raw, scenario, DiscoveryStage)

	verdict, err := d.deps.Validator.Validate(ctx, result.Code, scenario)
	if err != nil {
		return result, fmt.Errorf("validate: %w", err)
	}
	if !verdict.Passed {
		d.log.Warn("discovery validation failed",
			zap.String("scenario", scenario),
			zap.String("diagnostic", verdict.Diagnostic))
		result.Diagnostic = verdict.Diagnostic
		return result, nil
	}

	if err := d.deps.Store.Commit(result.ArtifactPath, result.Code); err != nil {
		return result, err
	}
	result.Valid = true
	d.log.Info("fresh test saved",
		zap.String("category", category),
		zap.String("path", result.ArtifactPath))
	return result, nil
}
