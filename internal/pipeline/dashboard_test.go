package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

// resultsTree mimics the runner's per-test output folders.
func resultsTree(t *testing.T) (root, results string) {
	t.Helper()
	root = t.TempDir()
	results = filepath.Join(root, "test-results")
	writeFile(t, filepath.Join(results, "login-chromium", "test-failed-1.png"))
	writeFile(t, filepath.Join(results, "login-chromium", "video.webm"))
	writeFile(t, filepath.Join(results, "login-chromium", "trace.zip"))
	writeFile(t, filepath.Join(results, "profile-update-retry1", "video.webm"))
	writeFile(t, filepath.Join(results, ".last-run.json"))
	return root, results
}

func TestCollectDashboardPairsMedia(t *testing.T) {
	root, results := resultsTree(t)

	got, err := CollectDashboard(results, filepath.Join(root, "agent-logs"))
	require.NoError(t, err)

	want := []DashboardEntry{
		{
			Scenario:   "login",
			Folder:     "login-chromium",
			Screenshot: "../test-results/login-chromium/test-failed-1.png",
			Video:      "../test-results/login-chromium/video.webm",
		},
		{
			Scenario: "profile",
			Folder:   "profile-update-retry1",
			Video:    "../test-results/profile-update-retry1/video.webm",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDashboard(t *testing.T) {
	root, results := resultsTree(t)
	out := filepath.Join(root, "agent-logs", DashboardFile)

	written, err := WriteDashboard(results, out)
	require.NoError(t, err)
	require.True(t, written)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "Scenario: login")
	assert.Contains(t, html, `src="../test-results/login-chromium/test-failed-1.png"`)
	assert.Contains(t, html, `src="../test-results/profile-update-retry1/video.webm"`)
	assert.Equal(t, 1, strings.Count(html, "No screenshot recorded."))
	assert.NotContains(t, html, "trace.zip")
}

func TestWriteDashboardWithoutResults(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "agent-logs", DashboardFile)

	written, err := WriteDashboard(filepath.Join(root, "test-results"), out)
	require.NoError(t, err)
	assert.False(t, written)
	_, err = os.Stat(filepath.Dir(out))
	assert.True(t, os.IsNotExist(err), "nothing should be created")
}

func TestDashboardEscapesFolderNames(t *testing.T) {
	root := t.TempDir()
	results := filepath.Join(root, "test-results")
	writeFile(t, filepath.Join(results, "<script>-x", "shot.png"))
	out := filepath.Join(root, "agent-logs", DashboardFile)

	_, err := WriteDashboard(results, out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Scenario: <script>")
	assert.Contains(t, string(data), "Scenario: &lt;script&gt;")
}
