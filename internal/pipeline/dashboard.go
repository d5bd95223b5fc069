package pipeline

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DashboardFile is the dashboard file name inside the agent log directory.
const DashboardFile = "dashboard.html"

//go:embed templates/dashboard.html.tmpl
var dashboardFS embed.FS

var dashboardTmpl = template.Must(template.ParseFS(dashboardFS, "templates/dashboard.html.tmpl"))

// DashboardEntry is one runner result folder. Screenshot and Video are links
// relative to the dashboard file and empty when the folder has none.
type DashboardEntry struct {
	Scenario   string
	Folder     string
	Screenshot string
	Video      string
}

// CollectDashboard pairs the first .png and .webm in each folder of
// resultsDir. A missing resultsDir yields no entries.
func CollectDashboard(resultsDir, dashboardDir string) ([]DashboardEntry, error) {
	folders, err := os.ReadDir(resultsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read results dir: %w", err)
	}

	var entries []DashboardEntry
	for _, folder := range folders {
		if !folder.IsDir() {
			continue
		}
		dir := filepath.Join(resultsDir, folder.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}

		entry := DashboardEntry{
			Scenario: strings.SplitN(folder.Name(), "-", 2)[0],
			Folder:   folder.Name(),
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			switch filepath.Ext(f.Name()) {
			case ".png":
				if entry.Screenshot == "" {
					entry.Screenshot = relLink(dashboardDir, filepath.Join(dir, f.Name()))
				}
			case ".webm":
				if entry.Video == "" {
					entry.Video = relLink(dashboardDir, filepath.Join(dir, f.Name()))
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func relLink(from, target string) string {
	if rel, err := filepath.Rel(from, target); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(target)
}

// WriteDashboard renders the failure dashboard for resultsDir to out. It
// reports false without writing anything when resultsDir does not exist.
func WriteDashboard(resultsDir, out string) (bool, error) {
	if _, err := os.Stat(resultsDir); os.IsNotExist(err) {
		return false, nil
	}
	entries, err := CollectDashboard(resultsDir, filepath.Dir(out))
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false, fmt.Errorf("create dashboard dir: %w", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return false, fmt.Errorf("create dashboard: %w", err)
	}
	defer f.Close()

	data := struct {
		GeneratedAt time.Time
		Entries     []DashboardEntry
	}{time.Now(), entries}
	if err := dashboardTmpl.Execute(f, data); err != nil {
		return false, fmt.Errorf("render dashboard: %w", err)
	}
	return true, f.Close()
}
