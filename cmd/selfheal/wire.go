package main

import (
	"selfheal/internal/agent"
	"selfheal/internal/artifact"
	"selfheal/internal/browser"
	"selfheal/internal/extract"
	"selfheal/internal/llm"
	"selfheal/internal/logging"
	"selfheal/internal/pipeline"
	"selfheal/internal/prompt"
	"selfheal/internal/sandbox"
	"selfheal/internal/scenario"
	"selfheal/internal/tactile"
)

type services struct {
	catalog  *scenario.Catalog
	pipeline *pipeline.Pipeline
	suite    *pipeline.Suite
}

func (a *app) catalog() *scenario.Catalog {
	return scenario.NewCatalog(a.cfg.Paths.Scenarios, a.logger)
}

// services builds the generation stack. The backend is constructed here so an
// unusable model configuration fails before any scenario work starts.
func (a *app) services() (*services, error) {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := llm.New(cfg.LLMBackendConfig())
	if err != nil {
		return nil, err
	}

	catalog := a.catalog()
	store := artifact.NewStore(cfg.Paths.Tests, a.logger)

	sbCfg := sandbox.DefaultConfig()
	sbCfg.StagingDir = cfg.Paths.Staging
	sbCfg.RunnerBin = cfg.Runner.Bin
	sbCfg.BaseURL = cfg.AppURL
	sbCfg.Timeout = cfg.GetRunnerTimeout()
	sbCfg.DumpCode = a.level.Verbose()
	sb := sandbox.New(sbCfg, tactile.NewDirectExecutor(a.logger), a.logger)

	brCfg := browser.DefaultConfig()
	brCfg.Bin = cfg.Browser.Bin
	brCfg.DebuggerURL = cfg.Browser.DebuggerURL
	brCfg.Headless = cfg.Browser.Headless

	deps := agent.Deps{
		Snapshots: browser.NewSnapshotter(brCfg, a.logger),
		Backend:   backend,
		Extractor: extract.New(logging.NewThoughtLog(cfg.Paths.AgentLogs, a.logger), a.logger),
		Prompts:   prompt.NewBuilder(prompt.Templates(cfg.Paths.Prompts), catalog, a.logger),
		Validator: sb,
		Store:     store,
		Scenarios: catalog,
		Log:       a.logger,
	}
	discovery := agent.NewDiscovery(deps)
	healer := agent.NewHealer(deps, cfg.Healer.MaxRetries)

	p := pipeline.New(pipeline.Options{
		Catalog:   catalog,
		Artifacts: store,
		Runner:    sb,
		Discovery: discovery,
		Healer:    healer,
		Wait:      pipeline.TargetWaiter(cfg.Wait.Retries, cfg.GetWaitInterval(), a.logger),
		AppURL:    cfg.AppURL,
		Output:    a.stdout,
		Log:       a.logger,
	})

	return &services{
		catalog:  catalog,
		pipeline: p,
		suite:    pipeline.NewSuite(catalog, p, discovery, cfg.AppURL, a.logger),
	}, nil
}
