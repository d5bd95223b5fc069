// Package prompt assembles the discovery and repair prompts sent to the
// generative backend from the scenario intent, the live page markup and, for
// repairs, the current code and failure history.
package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"go.uber.org/zap"

	"selfheal/internal/scenario"
)

// NoHistory is used in repair prompts before any attempt has failed.
const NoHistory = "No previous attempts failed yet."

// IntentSource resolves scenario intent text.
type IntentSource interface {
	Intent(name string) (string, error)
}

// Builder renders prompts from a template filesystem.
type Builder struct {
	templates fs.FS
	intents   IntentSource
	log       *zap.Logger
}

// NewBuilder creates a Builder. templates is usually Templates(dir).
func NewBuilder(templates fs.FS, intents IntentSource, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{templates: templates, intents: intents, log: log.Named("prompt")}
}

// Discovery builds the first-generation prompt. The markup is embedded as a
// JSON string.
func (b *Builder) Discovery(name, html string) (string, error) {
	tmpl, err := b.read(DiscoveryTemplate)
	if err != nil {
		return "", err
	}
	base, err := b.read(BaseTemplate)
	if err != nil {
		return "", err
	}
	guidelines, err := b.read(GuidelinesTemplate)
	if err != nil {
		return "", err
	}
	intent, err := b.intent(name)
	if err != nil {
		return "", err
	}
	encoded, err := encodeMarkup(html)
	if err != nil {
		return "", err
	}

	return render(tmpl,
		"{{BASE_PROMPT}}", base,
		"{{INTENT}}", intent,
		"{{GUIDELINES}}", guidelines,
		"{{HTML}}", encoded,
	), nil
}

// Heal builds a repair prompt. history is rendered one entry per line, in
// order.
func (b *Builder) Heal(name, html, code string, history []string) (string, error) {
	tmpl, err := b.read(HealTemplate)
	if err != nil {
		return "", err
	}
	guidelines, err := b.read(GuidelinesTemplate)
	if err != nil {
		return "", err
	}
	intent, err := b.intent(name)
	if err != nil {
		return "", err
	}

	historyText := NoHistory
	if len(history) > 0 {
		historyText = strings.Join(history, "\n")
	}

	return render(tmpl,
		"{{INTENT}}", intent,
		"{{OLD_CODE}}", code,
		"{{HISTORY}}", historyText,
		"{{HTML}}", html,
		"{{GUIDELINES}}", guidelines,
	), nil
}

// GenericIntent is used for scenarios missing from the catalog.
func GenericIntent(name string) string {
	return fmt.Sprintf("Test scenario: %s\nPlease generate a Playwright test for this functionality.", name)
}

func (b *Builder) intent(name string) (string, error) {
	if b.intents == nil {
		return GenericIntent(name), nil
	}
	text, err := b.intents.Intent(name)
	if errors.Is(err, scenario.ErrNotFound) {
		b.log.Warn("scenario not found, using generic intent", zap.String("scenario", name))
		return GenericIntent(name), nil
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// encodeMarkup renders html as a JSON string without escaping markup
// characters.
func encodeMarkup(html string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(html); err != nil {
		return "", fmt.Errorf("encode markup: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func (b *Builder) read(name string) (string, error) {
	data, err := fs.ReadFile(b.templates, name)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	return string(data), nil
}

// render substitutes placeholders in a single pass, so placeholder text
// inside substituted values is left alone.
func render(tmpl string, oldnew ...string) string {
	return strings.TrimSpace(strings.NewReplacer(oldnew...).Replace(tmpl))
}
