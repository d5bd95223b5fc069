package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"selfheal/internal/llm"
)

// ErrRetryExhausted is returned when every attempt failed.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// DefaultMaxAttempts is used when NewHealer gets a non-positive budget.
const DefaultMaxAttempts = 3

// Result describes a finished repair run.
type Result struct {
	Success      bool
	State        State
	Attempts     []Attempt
	History      []string
	ArtifactPath string
	// Code is the committed candidate on success, the last candidate otherwise.
	Code string
}

// Healer is the bounded repair loop.
type Healer struct {
	deps        Deps
	maxAttempts int
	log         *zap.Logger
}

// NewHealer creates a Healer allowing maxAttempts attempts per run.
func NewHealer(deps Deps, maxAttempts int) *Healer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Healer{deps: deps, maxAttempts: maxAttempts, log: deps.logger().Named("healer")}
}

// MaxAttempts returns the attempt budget.
func (h *Healer) MaxAttempts() int { return h.maxAttempts }

// Heal repairs the artifact at artifactPath, starting from its current
// content.
func (h *Healer) Heal(ctx context.Context, artifactPath, scenario, url string) (Result, error) {
	code, err := h.deps.Store.Load(artifactPath)
	if err != nil {
		return Result{ArtifactPath: artifactPath}, err
	}
	// A temp file left by an interrupted run is not a candidate.
	if err := h.deps.Store.Remove(h.deps.Store.TempPath(scenario)); err != nil {
		return Result{ArtifactPath: artifactPath}, err
	}
	return h.run(ctx, scenario, url, artifactPath, code, &History{})
}

// HealFromCode continues from a discovery candidate that failed its first
// validation. initialErr, when set, becomes the first history entry.
func (h *Healer) HealFromCode(ctx context.Context, code, scenario, url, category, initialErr string) (Result, error) {
	history := &History{}
	if initialErr != "" {
		history.Append("Initial generation failed: " + initialErr)
	}
	return h.run(ctx, scenario, url, h.deps.Store.FinalPath(scenario, category), code, history)
}

func (h *Healer) run(ctx context.Context, scenario, url, finalPath, code string, history *History) (Result, error) {
	tempPath := h.deps.Store.TempPath(scenario)
	result := Result{ArtifactPath: finalPath, State: StateGenerate}

	for n := 1; n <= h.maxAttempts; n++ {
		h.log.Info("repair attempt",
			zap.String("scenario", scenario),
			zap.Int("attempt", n),
			zap.Int("max_attempts", h.maxAttempts))

		attempt := h.attempt(ctx, n, scenario, url, code, history.Entries())
		if attempt.Code != "" {
			code = attempt.Code
		}
		if attempt.Outcome.Kind == OutcomePassed {
			if err := h.deps.Store.Promote(tempPath, finalPath); err != nil {
				attempt.Outcome = SystemError(err)
			}
		}
		result.Attempts = append(result.Attempts, attempt)

		switch attempt.Outcome.Kind {
		case OutcomePassed:
			h.log.Info("repair succeeded",
				zap.String("scenario", scenario),
				zap.Int("attempt", n),
				zap.String("path", finalPath))
			result.Success = true
			result.State = StateSuccess
			result.History = history.Entries()
			result.Code = code
			return result, nil
		case OutcomeValidationFailed:
			h.log.Warn("attempt failed validation",
				zap.String("scenario", scenario),
				zap.Int("attempt", n),
				zap.String("diagnostic", attempt.Outcome.Diagnostic))
		case OutcomeSystemError:
			h.log.Error("attempt hit a system error",
				zap.String("scenario", scenario),
				zap.Int("attempt", n),
				zap.Error(attempt.Outcome.Cause))
		}
		history.Append(attempt.Outcome.HistoryEntry(n))
		result.State = StateRetry
	}

	if err := h.deps.Store.Remove(tempPath); err != nil {
		h.log.Warn("failed to remove temp artifact", zap.String("path", tempPath), zap.Error(err))
	}
	h.log.Error("all repair attempts failed",
		zap.String("scenario", scenario),
		zap.Int("attempts", h.maxAttempts))
	result.State = StateExhausted
	result.History = history.Entries()
	result.Code = code
	return result, fmt.Errorf("%w: %s after %d attempts", ErrRetryExhausted, scenario, h.maxAttempts)
}

// attempt runs one cycle. The snapshot session is closed inside Capture, so
// nothing browser-side is open by the time validation starts.
func (h *Healer) attempt(ctx context.Context, n int, scenario, url, base string, history []string) Attempt {
	a := Attempt{Index: n}

	snap, err := h.deps.Snapshots.Capture(ctx, url)
	if err != nil {
		a.Outcome = SystemError(fmt.Errorf("capture snapshot: %w", err))
		return a
	}

	a.Prompt, err = h.deps.Prompts.Heal(scenario, snap.HTML, base, history)
	if err != nil {
		a.Outcome = SystemError(fmt.Errorf("build prompt: %w", err))
		return a
	}

	a.Response, err = h.deps.Backend.Generate(ctx, llm.Request{Prompt: a.Prompt})
	if err != nil {
		a.Outcome = SystemError(fmt.Errorf("generate: %w", err))
		return a
	}

	a.Code = h.deps.Extractor.Extract(a.Response, scenario, fmt.Sprintf("HEAL_ATTEMPT_%d", n))
	if _, err := h.deps.Store.WriteTemp(scenario, a.Code); err != nil {
		a.Outcome = SystemError(err)
		return a
	}

	verdict, err := h.deps.Validator.Validate(ctx, a.Code, scenario)
	switch {
	case err != nil:
		a.Outcome = SystemError(fmt.Errorf("validate: %w", err))
	case verdict.Passed:
		a.Outcome = Passed()
	default:
		a.Outcome = ValidationFailed(verdict.Diagnostic)
	}
	return a
}
