package pipeline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"selfheal/internal/scenario"
)

// ExpectedLayout is printed when the scenario tree is empty.
const ExpectedLayout = `Expected layout:
  src/prompts/scenarios/
  ├── sales/
  │   ├── reports/
  │   │   └── monthly.txt
  │   └── dashboard.txt
  └── users/
      └── auth/
          └── login.txt`

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2196F3")).
			Bold(true)

	groupStyle = lipgloss.NewStyle().
			Bold(true)

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8BC34A"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e53935"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d6dae0")).
			Italic(true)
)

// RenderReport formats a suite report grouped by category, in the order
// categories were first seen.
func RenderReport(r Report) string {
	var b strings.Builder
	rule := strings.Repeat("=", 42)

	b.WriteString(headerStyle.Render(rule) + "\n")
	b.WriteString(headerStyle.Render("FINAL REPORT - "+r.StartedAt.Format("2006-01-02 15:04:05")) + "\n")
	b.WriteString(headerStyle.Render(rule) + "\n")

	var order []string
	byCategory := map[string][]ScenarioResult{}
	for _, res := range r.Results {
		if _, seen := byCategory[res.Category]; !seen {
			order = append(order, res.Category)
		}
		byCategory[res.Category] = append(byCategory[res.Category], res)
	}

	for _, category := range order {
		b.WriteString("\n" + groupStyle.Render("Context: "+category) + "\n")
		for _, res := range byCategory[category] {
			status := passStyle.Render(string(res.Status))
			if res.Status == StatusFail {
				status = failStyle.Render(string(res.Status))
			}
			fmt.Fprintf(&b, "  %-25s : %s\n", res.Scenario, status)
			if res.Status == StatusFail && res.Error != "" {
				b.WriteString(mutedStyle.Render("     └─ Error: "+res.Error) + "\n")
			}
		}
	}

	total := len(r.Results)
	b.WriteString("\n" + headerStyle.Render(rule) + "\n")
	fmt.Fprintf(&b, "Passed: %d/%d\n", r.Passed(), total)
	fmt.Fprintf(&b, "Failed: %d/%d\n", r.Failed(), total)
	b.WriteString(headerStyle.Render(rule) + "\n")
	return b.String()
}

// RenderListing formats the available scenarios grouped by category. An empty
// listing shows the expected directory layout instead.
func RenderListing(groups []scenario.Group, root string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Available scenarios:") + "\n\n")

	if len(groups) == 0 {
		fmt.Fprintf(&b, "  No scenarios found in %s\n", root)
		for _, line := range strings.Split(ExpectedLayout, "\n") {
			b.WriteString("  " + line + "\n")
		}
		return b.String()
	}

	for _, g := range groups {
		b.WriteString(groupStyle.Render(g.Category+"/") + "\n")
		for _, name := range g.Names {
			b.WriteString("   • " + name + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
