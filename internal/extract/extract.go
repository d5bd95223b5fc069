// Package extract turns raw generative-backend responses into candidate test
// source. Extraction never fails: ambiguous responses fall through to the
// structure guarantee, which always yields a single runnable test.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ThoughtSink receives model reasoning found in structured responses.
type ThoughtSink interface {
	Record(scenario, stage, reasoning string) error
}

// Envelope is the structured response shape {"reasoning": "...", "code": "..."}.
type Envelope struct {
	Reasoning string
	Code      string
}

// fencedBlockRe matches a fence with an optional language tag line. Without a
// line break after the opening backticks the whole span is the body.
var fencedBlockRe = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+.#-]*[ \\t]*\\r?\\n)?(.*?)```")

// FencedBlock returns the body of the first fenced code block in s.
func FencedBlock(s string) (string, bool) {
	if m := fencedBlockRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// ParseEnvelope parses s as a structured record. ok is false when s is not a
// JSON object.
func ParseEnvelope(s string) (env Envelope, ok bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return Envelope{}, false
	}
	if r, isStr := fields["reasoning"].(string); isStr {
		env.Reasoning = r
	}
	if c, isStr := fields["code"].(string); isStr {
		env.Code = c
	}
	return env, true
}

// looksStructured reports whether s still resembles a record after a failed parse.
func looksStructured(s string) bool {
	return strings.HasPrefix(s, "{")
}

// CodeField pulls the quoted value of a "code" key out of text that is not
// valid JSON, honoring backslash escapes inside the value.
func CodeField(s string) (string, bool) {
	rest := s
	for {
		idx := strings.Index(rest, `"code"`)
		if idx < 0 {
			return "", false
		}
		rest = rest[idx+len(`"code"`):]

		after := strings.TrimLeft(rest, " \t\r\n")
		if !strings.HasPrefix(after, ":") {
			continue
		}
		after = strings.TrimLeft(after[1:], " \t\r\n")
		if !strings.HasPrefix(after, `"`) {
			continue
		}

		body, closed := scanQuoted(after[1:])
		if !closed {
			return "", false
		}
		return strings.TrimSpace(unescape(body)), true
	}
}

// scanQuoted returns everything up to the first unescaped double quote.
func scanQuoted(s string) (string, bool) {
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			return s[:i], true
		}
	}
	return "", false
}

// unescape resolves the literal escape sequences models emit inside a code value.
func unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case '/':
			b.WriteByte('/')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Extractor applies the extraction chain and the structure guarantee.
type Extractor struct {
	thoughts ThoughtSink
	log      *zap.Logger
}

// New creates an Extractor. thoughts may be nil.
func New(thoughts ThoughtSink, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{thoughts: thoughts, log: log}
}

// Extract returns candidate test code for scenario from a raw response.
// stage tags any reasoning written to the thought log (DISCOVERY, HEAL_ATTEMPT_n).
func (e *Extractor) Extract(raw, scenario, stage string) string {
	content := strings.TrimSpace(raw)

	if body, ok := FencedBlock(content); ok {
		content = body
	}

	if looksStructured(content) {
		if env, ok := ParseEnvelope(content); ok {
			if env.Reasoning != "" && e.thoughts != nil {
				if err := e.thoughts.Record(scenario, stage, env.Reasoning); err != nil {
					e.log.Warn("failed to record agent thoughts", zap.Error(err))
				}
			}
			if env.Code != "" {
				content = strings.TrimSpace(env.Code)
			}
		} else if code, ok := CodeField(content); ok {
			e.log.Debug("structured response did not parse, recovered code field",
				zap.String("scenario", scenario), zap.String("stage", stage))
			content = code
		}
	}

	guaranteed := EnsureTestStructure(content, scenario)
	if guaranteed != content {
		e.log.Warn("code missing test structure, added minimal wrapper",
			zap.String("scenario", scenario), zap.String("stage", stage))
	}
	return guaranteed
}
