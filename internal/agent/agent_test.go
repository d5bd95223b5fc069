package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"selfheal/internal/artifact"
	"selfheal/internal/browser"
	"selfheal/internal/extract"
	"selfheal/internal/llm"
	"selfheal/internal/sandbox"
	"selfheal/internal/tactile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func candidate(n int) string {
	return fmt.Sprintf("import { test, expect } from '@playwright/test';\n\n"+
		"test('attempt %d', async ({ page }) => {\n"+
		"  await page.goto('/profile');\n"+
		"  await expect(page.locator('#save-status')).toBeVisible();\n"+
		"});", n)
}

func fenced(code string) string {
	return "Here is the fix:\n```typescript\n" + code + "\n```"
}

// fakeSnapshots hands out numbered snapshots and tracks open sessions.
type fakeSnapshots struct {
	mu     sync.Mutex
	calls  int
	active int
	errs   map[int]error
}

func (f *fakeSnapshots) Capture(_ context.Context, url string) (browser.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.active++
	defer func() { f.active-- }()
	if err := f.errs[f.calls]; err != nil {
		return browser.Snapshot{}, err
	}
	return browser.Snapshot{URL: url, HTML: fmt.Sprintf("<html>snapshot %d</html>", f.calls), CapturedAt: time.Now()}, nil
}

func (f *fakeSnapshots) open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type fakeBackend struct {
	responses []string
	errs      map[int]error
	requests  []llm.Request
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(_ context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	n := len(f.requests)
	if err := f.errs[n]; err != nil {
		return "", err
	}
	if n > len(f.responses) {
		return "", fmt.Errorf("unexpected generate call %d", n)
	}
	return f.responses[n-1], nil
}

type healCall struct {
	HTML    string
	Code    string
	History []string
}

type recordingPrompter struct {
	discovery []string
	heals     []healCall
}

func (p *recordingPrompter) Discovery(name, html string) (string, error) {
	p.discovery = append(p.discovery, html)
	return "discover " + name, nil
}

func (p *recordingPrompter) Heal(name, html, code string, history []string) (string, error) {
	p.heals = append(p.heals, healCall{HTML: html, Code: code, History: history})
	return fmt.Sprintf("heal %s #%d", name, len(p.heals)), nil
}

// scriptedValidator returns verdicts in order and checks that no browser
// session is open while validating.
type scriptedValidator struct {
	t         *testing.T
	snapshots *fakeSnapshots
	verdicts  []sandbox.ValidationOutcome
	errs      map[int]error
	codes     []string
}

func (v *scriptedValidator) Validate(_ context.Context, code, _ string) (sandbox.ValidationOutcome, error) {
	v.codes = append(v.codes, code)
	if v.snapshots != nil {
		assert.Zero(v.t, v.snapshots.open(), "browser session open during validation")
	}
	n := len(v.codes)
	if err := v.errs[n]; err != nil {
		return sandbox.ValidationOutcome{}, err
	}
	if n > len(v.verdicts) {
		return sandbox.ValidationOutcome{Diagnostic: "no verdict scripted"}, nil
	}
	return v.verdicts[n-1], nil
}

type mapResolver map[string]string

func (m mapResolver) Category(name string) (string, bool) {
	c, ok := m[name]
	return c, ok
}

func fail(diag string) sandbox.ValidationOutcome {
	return sandbox.ValidationOutcome{Diagnostic: diag}
}

var pass = sandbox.ValidationOutcome{Passed: true}

type fixture struct {
	deps      Deps
	store     *artifact.Store
	snapshots *fakeSnapshots
	backend   *fakeBackend
	prompts   *recordingPrompter
	validator *scriptedValidator
}

func newFixture(t *testing.T, responses []string, verdicts ...sandbox.ValidationOutcome) *fixture {
	t.Helper()
	f := &fixture{
		store:     artifact.NewStore(t.TempDir(), nil),
		snapshots: &fakeSnapshots{},
		backend:   &fakeBackend{responses: responses},
		prompts:   &recordingPrompter{},
	}
	f.validator = &scriptedValidator{t: t, snapshots: f.snapshots, verdicts: verdicts}
	f.deps = Deps{
		Snapshots: f.snapshots,
		Backend:   f.backend,
		Extractor: extract.New(nil, nil),
		Prompts:   f.prompts,
		Validator: f.validator,
		Store:     f.store,
		Scenarios: mapResolver{"profile-update": "users/profile"},
	}
	return f
}

func assertNoTempFiles(t *testing.T, root string) {
	t.Helper()
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() {
			assert.NotRegexp(t, `(\.temp\.spec\.ts|\.tmp-.*)$`, d.Name(), "leftover ephemeral file %s", path)
		}
		return nil
	})
}

func TestHealFromCodeSucceedsOnSecondAttempt(t *testing.T) {
	f := newFixture(t,
		[]string{fenced(candidate(1)), fenced(candidate(2))},
		fail("Timed out waiting for selector '#save-status'"),
		pass,
	)
	h := NewHealer(f.deps, 3)

	res, err := h.HealFromCode(context.Background(), candidate(0), "profile-update", "http://app", "users/profile", "locator not found")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StateSuccess, res.State)
	require.Len(t, res.Attempts, 2)

	final := f.store.FinalPath("profile-update", "users/profile")
	assert.Equal(t, final, res.ArtifactPath)
	got, err := f.store.Load(final)
	require.NoError(t, err)
	assert.Equal(t, candidate(2), got)
	assert.Equal(t, candidate(2), res.Code)

	want := []string{
		"Initial generation failed: locator not found",
		"Attempt 1 failed with error: Timed out waiting for selector '#save-status'",
	}
	if diff := cmp.Diff(want, res.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	assertNoTempFiles(t, f.store.Root())
}

func TestHealExhaustsBudget(t *testing.T) {
	const n = 3
	f := newFixture(t,
		[]string{fenced(candidate(1)), fenced(candidate(2)), fenced(candidate(3))},
		fail("one"), fail("two"), fail("three"),
	)
	final := f.store.FinalPath("profile-update", "users/profile")
	require.NoError(t, f.store.Commit(final, candidate(0)))

	res, err := NewHealer(f.deps, n).Heal(context.Background(), final, "profile-update", "http://app")
	require.ErrorIs(t, err, ErrRetryExhausted)
	assert.False(t, res.Success)
	assert.Equal(t, StateExhausted, res.State)
	assert.Len(t, res.Attempts, n)
	assert.Len(t, res.History, n)

	got, err := f.store.Load(final)
	require.NoError(t, err)
	assert.Equal(t, candidate(0), got, "final artifact untouched on exhaustion")
	assertNoTempFiles(t, f.store.Root())
}

func TestHistoryGrowsOneEntryPerAttempt(t *testing.T) {
	f := newFixture(t,
		[]string{fenced(candidate(1)), fenced(candidate(2)), fenced(candidate(3)), fenced(candidate(4))},
		fail("d1"), fail("d2"), fail("d3"), pass,
	)
	final := f.store.FinalPath("profile-update", "users/profile")
	require.NoError(t, f.store.Commit(final, candidate(0)))

	_, err := NewHealer(f.deps, 4).Heal(context.Background(), final, "profile-update", "http://app")
	require.NoError(t, err)

	require.Len(t, f.prompts.heals, 4)
	all := []string{
		"Attempt 1 failed with error: d1",
		"Attempt 2 failed with error: d2",
		"Attempt 3 failed with error: d3",
	}
	for k, call := range f.prompts.heals {
		if diff := cmp.Diff(all[:k], call.History); diff != "" {
			t.Errorf("attempt %d history mismatch (-want +got):\n%s", k+1, diff)
		}
	}
}

func TestEachAttemptUsesFreshSnapshotAndLatestCandidate(t *testing.T) {
	f := newFixture(t,
		[]string{fenced(candidate(1)), fenced(candidate(2))},
		fail("x"), pass,
	)
	final := f.store.FinalPath("profile-update", "users/profile")
	require.NoError(t, f.store.Commit(final, candidate(0)))

	_, err := NewHealer(f.deps, 3).Heal(context.Background(), final, "profile-update", "http://app")
	require.NoError(t, err)

	assert.Equal(t, 2, f.snapshots.calls)
	require.Len(t, f.prompts.heals, 2)
	assert.Equal(t, "<html>snapshot 1</html>", f.prompts.heals[0].HTML)
	assert.Equal(t, "<html>snapshot 2</html>", f.prompts.heals[1].HTML)
	assert.Equal(t, candidate(0), f.prompts.heals[0].Code, "heal starts from the artifact")
	assert.Equal(t, candidate(1), f.prompts.heals[1].Code, "next attempt builds on the last candidate")
}

func TestSystemErrorsConsumeAttempts(t *testing.T) {
	f := newFixture(t, []string{fenced(candidate(2)), fenced(candidate(3))}, pass)
	f.snapshots.errs = map[int]error{1: errors.New("chrome crashed")}
	f.backend.errs = map[int]error{1: errors.New("503 overloaded")}

	res, err := NewHealer(f.deps, 3).HealFromCode(context.Background(), candidate(0), "profile-update", "http://app", "users/profile", "")
	require.NoError(t, err)
	require.Len(t, res.Attempts, 3)

	assert.Equal(t, OutcomeSystemError, res.Attempts[0].Outcome.Kind)
	assert.Equal(t, OutcomeSystemError, res.Attempts[1].Outcome.Kind)
	assert.Equal(t, OutcomePassed, res.Attempts[2].Outcome.Kind)
	assert.Empty(t, res.Attempts[0].Code)

	want := []string{
		"System error: capture snapshot: chrome crashed",
		"System error: generate: 503 overloaded",
	}
	if diff := cmp.Diff(want, res.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	got, err := f.store.Load(res.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, candidate(3), got)
}

func TestValidatorErrorIsSystemError(t *testing.T) {
	f := newFixture(t, []string{fenced(candidate(1)), fenced(candidate(2))}, pass, pass)
	f.validator.errs = map[int]error{1: errors.New("npx: not found")}

	res, err := NewHealer(f.deps, 2).HealFromCode(context.Background(), "", "profile-update", "http://app", "users/profile", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"System error: validate: npx: not found"}, res.History)
}

func TestHealMissingArtifact(t *testing.T) {
	f := newFixture(t, nil)
	_, err := NewHealer(f.deps, 3).Heal(context.Background(), f.store.FinalPath("nope", ""), "nope", "http://app")
	require.Error(t, err)
	assert.Zero(t, f.snapshots.calls)
}

func TestHealRemovesStaleTemp(t *testing.T) {
	f := newFixture(t, []string{fenced(candidate(1))}, pass)
	final := f.store.FinalPath("profile-update", "users/profile")
	require.NoError(t, f.store.Commit(final, candidate(0)))
	_, err := f.store.WriteTemp("profile-update", "stale leftovers")
	require.NoError(t, err)

	_, err = NewHealer(f.deps, 1).Heal(context.Background(), final, "profile-update", "http://app")
	require.NoError(t, err)
	assert.Equal(t, candidate(0), f.prompts.heals[0].Code)
}

func TestDefaultMaxAttempts(t *testing.T) {
	assert.Equal(t, DefaultMaxAttempts, NewHealer(Deps{}, 0).MaxAttempts())
}

func TestOutcomeHistoryEntry(t *testing.T) {
	assert.Equal(t, "Attempt 2 failed with error: boom", ValidationFailed("boom").HistoryEntry(2))
	assert.Equal(t, "System error: offline", SystemError(errors.New("offline")).HistoryEntry(5))
	assert.Empty(t, Passed().HistoryEntry(1))
	assert.Equal(t, "validation_failed", OutcomeValidationFailed.String())
	assert.Equal(t, "EXHAUSTED", StateExhausted.String())
}

// runnerScript answers sandbox runs in order.
type runnerScript struct {
	results []*tactile.ExecutionResult
	calls   int
}

func (r *runnerScript) Execute(context.Context, tactile.Command) (*tactile.ExecutionResult, error) {
	r.calls++
	return r.results[r.calls-1], nil
}

func TestHealFromCodeThroughSandboxLeavesNoEphemeralFiles(t *testing.T) {
	f := newFixture(t, []string{fenced(candidate(1)), fenced(candidate(2))})
	runner := &runnerScript{results: []*tactile.ExecutionResult{
		{Success: true, ExitCode: 1, Stdout: "  ✘  1 attempt 1\n    Timed out waiting for selector '#save-status'\n"},
		{Success: true, ExitCode: 0},
	}}
	root := t.TempDir()
	sb := sandbox.New(sandbox.Config{ProjectRoot: root}, runner, nil)
	f.deps.Validator = sb

	res, err := NewHealer(f.deps, 3).HealFromCode(context.Background(), candidate(0), "profile-update", "http://app", "users/profile", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Attempt 1 failed with error: ✘  1 attempt 1\n    Timed out waiting for selector '#save-status'"}, res.History)

	entries, err := os.ReadDir(sb.StagingDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assertNoTempFiles(t, f.store.Root())
}

func TestDiscoveryCommitsPassingCandidate(t *testing.T) {
	f := newFixture(t, []string{fenced(candidate(1))}, pass)

	res, err := NewDiscovery(f.deps).Run(context.Background(), "profile-update", "http://app")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "users/profile", res.Category)
	assert.Equal(t, 1, f.snapshots.calls)
	assert.Equal(t, "discover profile-update", f.backend.requests[0].Prompt)

	got, err := f.store.Load(res.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, candidate(1), got)
}

func TestDiscoveryFailureDoesNotRetryOrCommit(t *testing.T) {
	f := newFixture(t, []string{fenced(candidate(1))}, fail("expected visible"))

	res, err := NewDiscovery(f.deps).Run(context.Background(), "checkout", "http://app")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "expected visible", res.Diagnostic)
	assert.Equal(t, artifact.GeneralCategory, res.Category)
	assert.Equal(t, candidate(1), res.Code)
	assert.Len(t, f.backend.requests, 1)
	assert.False(t, f.store.Exists(res.ArtifactPath))
}

func TestDiscoverySystemError(t *testing.T) {
	f := newFixture(t, nil)
	f.snapshots.errs = map[int]error{1: errors.New("launch chrome: no binary")}

	_, err := NewDiscovery(f.deps).Run(context.Background(), "profile-update", "http://app")
	require.ErrorContains(t, err, "capture snapshot")
	assert.Empty(t, f.backend.requests)
}
