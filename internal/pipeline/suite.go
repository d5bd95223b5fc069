package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"selfheal/internal/scenario"
)

// ErrEmptyCatalog is returned when there are no scenarios to process.
var ErrEmptyCatalog = errors.New("no scenarios found")

// maxErrorLen bounds the error excerpt kept per failed scenario.
const maxErrorLen = 80

// ScenarioRunner processes one scenario.
type ScenarioRunner interface {
	Run(ctx context.Context, name string) error
}

// Status is a scenario verdict in a suite report.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// ScenarioResult is one line of a suite report.
type ScenarioResult struct {
	Scenario string
	// Category is scenario.RootGroup for top-level scenarios.
	Category string
	Status   Status
	// Error is the first line of the failure, bounded.
	Error string
}

// Report collects suite results in processing order.
type Report struct {
	StartedAt time.Time
	Results   []ScenarioResult
}

// Passed returns the number of passing scenarios.
func (r Report) Passed() int { return r.count(StatusPass) }

// Failed returns the number of failing scenarios.
func (r Report) Failed() int { return r.count(StatusFail) }

func (r Report) count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Suite processes every catalog scenario sequentially. Scenarios are never
// run concurrently.
type Suite struct {
	catalog   Catalog
	runner    ScenarioRunner
	discovery Generator
	appURL    string
	log       *zap.Logger
}

// NewSuite creates a Suite.
func NewSuite(catalog Catalog, runner ScenarioRunner, discovery Generator, appURL string, log *zap.Logger) *Suite {
	if log == nil {
		log = zap.NewNop()
	}
	return &Suite{
		catalog:   catalog,
		runner:    runner,
		discovery: discovery,
		appURL:    appURL,
		log:       log.Named("suite"),
	}
}

func (s *Suite) scenarios() ([]scenario.Scenario, error) {
	all, err := s.catalog.List()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrEmptyCatalog
	}
	return all, nil
}

// Run processes every scenario through the pipeline. A failing scenario is
// recorded and does not stop the suite; the error return is for an empty or
// unreadable catalog.
func (s *Suite) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: time.Now()}
	all, err := s.scenarios()
	if err != nil {
		return report, err
	}
	s.log.Info("starting suite", zap.Int("scenarios", len(all)))

	for _, sc := range all {
		category := sc.Category
		if category == "" {
			category = scenario.RootGroup
		}
		s.log.Info("processing scenario", zap.String("category", category), zap.String("scenario", sc.Name))

		res := ScenarioResult{Scenario: sc.Name, Category: category, Status: StatusPass}
		if err := s.runner.Run(ctx, sc.Name); err != nil {
			res.Status = StatusFail
			res.Error = firstLine(err.Error())
			s.log.Error("scenario failed", zap.String("scenario", sc.Name), zap.Error(err))
		}
		report.Results = append(report.Results, res)

		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}
	return report, nil
}

// GenerateAll runs a single discovery pass for every scenario. Failures are
// logged and counted; the returned count is the number of scenarios whose
// first candidate passed validation.
func (s *Suite) GenerateAll(ctx context.Context) (int, error) {
	all, err := s.scenarios()
	if err != nil {
		return 0, err
	}
	s.log.Info("starting bulk generation", zap.Int("scenarios", len(all)))

	created := 0
	for _, sc := range all {
		s.log.Info("generating", zap.String("scenario", sc.Name))
		res, err := s.discovery.Run(ctx, sc.Name, s.appURL)
		switch {
		case err != nil:
			s.log.Error("generation failed", zap.String("scenario", sc.Name), zap.Error(err))
		case !res.Valid:
			s.log.Warn("generated test failed validation",
				zap.String("scenario", sc.Name),
				zap.String("diagnostic", res.Diagnostic))
		default:
			created++
			s.log.Info("created", zap.String("scenario", sc.Name), zap.String("path", res.ArtifactPath))
		}
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
	}
	return created, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "Unknown error"
	}
	r := []rune(s)
	if len(r) > maxErrorLen {
		return string(r[:maxErrorLen])
	}
	return s
}

// String summarizes the counts.
func (r Report) String() string {
	return fmt.Sprintf("%d/%d passed, %d/%d failed", r.Passed(), len(r.Results), r.Failed(), len(r.Results))
}
