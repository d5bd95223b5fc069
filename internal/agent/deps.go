// Package agent holds the two generation paths: Discovery produces a first
// candidate with a single attempt, and Healer runs the bounded repair loop
// that re-snapshots, re-prompts with the accumulated failure history and
// re-validates until a candidate passes or the attempt budget is spent.
package agent

import (
	"context"

	"go.uber.org/zap"

	"selfheal/internal/browser"
	"selfheal/internal/llm"
	"selfheal/internal/sandbox"
)

// Extractor turns a raw backend response into candidate code.
type Extractor interface {
	Extract(raw, scenario, stage string) string
}

// Prompter builds discovery and repair prompts.
type Prompter interface {
	Discovery(name, html string) (string, error)
	Heal(name, html, code string, history []string) (string, error)
}

// Validator judges a candidate in isolation.
type Validator interface {
	Validate(ctx context.Context, code, scenario string) (sandbox.ValidationOutcome, error)
}

// Resolver looks up scenario categories.
type Resolver interface {
	Category(name string) (string, bool)
}

// Store commits artifacts.
type Store interface {
	FinalPath(name, category string) string
	TempPath(name string) string
	Load(path string) (string, error)
	WriteTemp(name, code string) (string, error)
	Promote(tempPath, finalPath string) error
	Commit(finalPath, code string) error
	Remove(path string) error
}

// Deps are the collaborators shared by Discovery and Healer.
type Deps struct {
	Snapshots browser.Snapshotter
	Backend   llm.Backend
	Extractor Extractor
	Prompts   Prompter
	Validator Validator
	Store     Store
	Scenarios Resolver
	Log       *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
