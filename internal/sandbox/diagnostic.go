package sandbox

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxDiagnosticLen bounds the excerpt stored in failure history.
	MaxDiagnosticLen = 4000

	// TailLines is the fallback excerpt size when no failed-test block is found.
	TailLines = 20

	truncatedSuffix = "\n... (truncated)"
)

var (
	ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

	// A failed test line followed by its indented detail lines.
	failedTestRe = regexp.MustCompile(`[×✘]\s+[^\n]+(?:\n\s+.*)+`)
)

// StripANSI removes terminal color sequences and carriage returns.
func StripANSI(s string) string {
	return strings.ReplaceAll(ansiRe.ReplaceAllString(s, ""), "\r", "")
}

// ExtractDiagnostic picks the most relevant excerpt of runner output: the
// first failed-test block when present, otherwise the last TailLines
// non-empty lines. The result is bounded by MaxDiagnosticLen.
func ExtractDiagnostic(output string) string {
	clean := StripANSI(output)
	if block := failedTestRe.FindString(clean); block != "" {
		return bound(strings.TrimSpace(block))
	}

	var lines []string
	for _, line := range strings.Split(clean, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > TailLines {
		lines = lines[len(lines)-TailLines:]
	}
	return bound(strings.TrimSpace(strings.Join(lines, "\n")))
}

func bound(s string) string {
	if len(s) <= MaxDiagnosticLen {
		return s
	}
	cut := MaxDiagnosticLen - len(truncatedSuffix)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}
