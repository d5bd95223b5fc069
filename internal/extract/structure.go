package extract

import (
	"regexp"
	"strings"
)

// FrameworkImport is the import line every generated test needs.
const FrameworkImport = "import { test, expect } from '@playwright/test';"

var (
	commentRe        = regexp.MustCompile(`(?s)//[^\n]*|/\*.*?\*/`)
	frameworkImport  = regexp.MustCompile(`(?s)\bimport\b[^;]*?\bfrom\s*['"]@playwright/test['"]`)
	testEntryRe      = regexp.MustCompile("test\\(\\s*['\"`]")
	describeEntryRe  = regexp.MustCompile(`test\.describe\(`)
	singleQuoteRunes = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

	// A whole import statement, which may span lines. Dynamic import() is not
	// a statement and stays in the body.
	importStmtRe = regexp.MustCompile(`(?m)^[ \t]*import(?:\s|\{)[^;'"]*?['"][^'"\n]*['"][ \t]*;?`)
)

// HasFrameworkImport reports whether code imports the test framework,
// ignoring commented-out imports.
func HasFrameworkImport(code string) bool {
	return frameworkImport.MatchString(commentRe.ReplaceAllString(code, ""))
}

// HasTestEntry reports whether code invokes a test or describe block.
func HasTestEntry(code string) bool {
	clean := commentRe.ReplaceAllString(code, "")
	return testEntryRe.MatchString(clean) || describeEntryRe.MatchString(clean)
}

// EnsureTestStructure guarantees code is at minimum a single runnable test.
//
//   - import and test entry present: returned unchanged
//   - test entry present, import missing: the framework import is prepended
//   - no test entry: import statements are hoisted whole and the remaining
//     body is indented inside a test named after the scenario
//
// Applying it to its own output is a no-op.
func EnsureTestStructure(code, scenario string) string {
	hasImport := HasFrameworkImport(code)
	hasEntry := HasTestEntry(code)

	switch {
	case hasImport && hasEntry:
		return code
	case hasEntry:
		return FrameworkImport + "\n\n" + code
	}

	var imports []string
	var body strings.Builder
	last := 0
	for _, loc := range importStmtRe.FindAllStringIndex(code, -1) {
		body.WriteString(code[last:loc[0]])
		imports = append(imports, strings.TrimSpace(code[loc[0]:loc[1]]))
		last = loc[1]
	}
	body.WriteString(code[last:])

	var b strings.Builder
	if !hasImport {
		b.WriteString(FrameworkImport)
		b.WriteString("\n")
	}
	for _, imp := range imports {
		b.WriteString(imp)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString("test('")
	b.WriteString(singleQuoteRunes.Replace(scenario))
	b.WriteString(" test', async ({ page }) => {\n")
	b.WriteString(indent(strings.Trim(body.String(), "\n"), "  "))
	b.WriteString("\n});\n")
	return b.String()
}

// indent prefixes every non-blank line with pad. Blank lines stay empty.
func indent(s, pad string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = pad + line
	}
	return strings.Join(lines, "\n")
}
