package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// workspace points every path setting at a temp dir and returns it.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SCENARIOS_PATH", filepath.Join(dir, "scenarios"))
	t.Setenv("TESTS_PATH", filepath.Join(dir, "tests"))
	t.Setenv("STAGING_DIR", filepath.Join(dir, "staging"))
	t.Setenv("AGENT_LOGS_PATH", filepath.Join(dir, "agent-logs"))
	t.Setenv("LOG_LEVEL", "0")
	t.Setenv("LOGS", "")
	t.Setenv("PROMPTS_PATH", "")
	return dir
}

func writeScenario(t *testing.T, dir, rel, body string) {
	t.Helper()
	path := filepath.Join(dir, "scenarios", rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListWithoutScenarioArgument(t *testing.T) {
	dir := workspace(t)
	writeScenario(t, dir, "users/profile/profile-update.txt", "Update the profile.")
	writeScenario(t, dir, "login.md", "Log in.")

	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"root/", "• login", "users/profile/", "• profile-update"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "root/") > strings.Index(out, "users/profile/") {
		t.Errorf("categories not sorted:\n%s", out)
	}
}

func TestListEmptyCatalogShowsLayout(t *testing.T) {
	workspace(t)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"list"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "Expected layout:") {
		t.Fatalf("expected layout hint, got:\n%s", stdout.String())
	}
}

func TestGhostFeatureExitsOne(t *testing.T) {
	dir := workspace(t)
	writeScenario(t, dir, "login.txt", "Log in.")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY", "test-key")
	// A readiness probe here would fail; the run must stop before it.
	t.Setenv("APP_URL", "http://127.0.0.1:1")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"ghost-feature"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "scenario not found: ghost-feature") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "tests")); !os.IsNotExist(err) {
		t.Errorf("tests dir should not be created, stat err = %v", err)
	}
}

func TestRunSubcommandReachesShadowedScenario(t *testing.T) {
	dir := workspace(t)
	writeScenario(t, dir, "login.txt", "Log in.")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("APP_URL", "http://127.0.0.1:1")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"run", "suite"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "scenario not found: suite") {
		t.Fatalf("expected the pipeline to look up scenario %q, stderr: %s", "suite", stderr.String())
	}
}

func TestUnknownProviderExitsOne(t *testing.T) {
	workspace(t)
	t.Setenv("LLM_PROVIDER", "claude")
	t.Setenv("LLM_API_KEY", "k")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"anything"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "invalid LLM provider") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

func TestSuiteEmptyCatalogExitsOne(t *testing.T) {
	workspace(t)
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("LLM_API_KEY", "k")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"suite"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "login.txt") {
		t.Fatalf("expected layout hint in stderr: %s", stderr.String())
	}
}

func TestShowRendersIntent(t *testing.T) {
	dir := workspace(t)
	writeScenario(t, dir, "sales/report.md", "Open the **monthly** sales report.")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"show", "report"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "monthly") {
		t.Fatalf("intent not rendered: %s", stdout.String())
	}
}

func TestTooManyArgs(t *testing.T) {
	workspace(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"a", "b"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
