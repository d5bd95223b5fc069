package sandbox

import "regexp"

// RemovedMarker replaces every sanitized statement.
const RemovedMarker = "// Intentionally removed for validation"

// Exploratory assertions on failure wording and comments flagging a
// deliberately broken test. Each pattern is confined to a single line and the
// marker itself matches none of them, which keeps Sanitize idempotent.
var sanitizePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)await expect\(page\.locator\(['"]text=.*failed.*['"]\)\)\.toBeVisible\(\);`),
	regexp.MustCompile(`(?i)await expect\(page\.locator\(['"]text=.*error.*['"]\)\)\.toBeVisible\(\);`),
	regexp.MustCompile(`(?i)await expect\(page\.locator\(['"]text=.*non-existent.*['"]\)\)\.toBeVisible\(\);`),
	regexp.MustCompile(`(?i)//.*intentionally.*fail.*`),
	regexp.MustCompile(`(?i)//.*broken.*test.*`),
}

var blankRunRe = regexp.MustCompile(`\n\s*\n\s*\n`)

// Sanitize removes self-defeating assertions from candidate code before it is
// staged, then collapses runs of blank lines.
func Sanitize(code string) string {
	out := code
	for _, re := range sanitizePatterns {
		out = re.ReplaceAllLiteralString(out, RemovedMarker)
	}
	return blankRunRe.ReplaceAllLiteralString(out, "\n\n")
}
