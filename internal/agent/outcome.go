package agent

import "fmt"

// OutcomeKind classifies one attempt.
type OutcomeKind int

const (
	// OutcomePassed means the candidate passed isolated validation.
	OutcomePassed OutcomeKind = iota
	// OutcomeValidationFailed means the candidate ran and failed.
	OutcomeValidationFailed
	// OutcomeSystemError means the attempt could not be judged: browser,
	// backend, staging or commit failure.
	OutcomeSystemError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePassed:
		return "passed"
	case OutcomeValidationFailed:
		return "validation_failed"
	case OutcomeSystemError:
		return "system_error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one attempt. Diagnostic is set only for
// OutcomeValidationFailed and Cause only for OutcomeSystemError.
type Outcome struct {
	Kind       OutcomeKind
	Diagnostic string
	Cause      error
}

// Passed returns a passing outcome.
func Passed() Outcome { return Outcome{Kind: OutcomePassed} }

// ValidationFailed returns a failed-validation outcome.
func ValidationFailed(diagnostic string) Outcome {
	return Outcome{Kind: OutcomeValidationFailed, Diagnostic: diagnostic}
}

// SystemError returns a system-error outcome.
func SystemError(cause error) Outcome {
	return Outcome{Kind: OutcomeSystemError, Cause: cause}
}

// HistoryEntry renders the failure history line for attempt n. Passing
// outcomes have no entry.
func (o Outcome) HistoryEntry(n int) string {
	switch o.Kind {
	case OutcomeValidationFailed:
		return fmt.Sprintf("Attempt %d failed with error: %s", n, o.Diagnostic)
	case OutcomeSystemError:
		return fmt.Sprintf("System error: %v", o.Cause)
	default:
		return ""
	}
}

// Attempt is one generate and validate cycle. Code is empty when the attempt
// failed before a candidate was extracted.
type Attempt struct {
	Index    int
	Prompt   string
	Response string
	Code     string
	Outcome  Outcome
}

// History is the ordered failure history of one repair run. Entries are only
// ever appended.
type History struct {
	entries []string
}

// Append adds an entry.
func (h *History) Append(entry string) {
	h.entries = append(h.entries, entry)
}

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy of the entries in chronological order.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// State is a position in the repair state machine.
type State int

const (
	StateGenerate State = iota
	StateValidate
	StateRetry
	StateSuccess
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateGenerate:
		return "GENERATE"
	case StateValidate:
		return "VALIDATE"
	case StateRetry:
		return "RETRY"
	case StateSuccess:
		return "SUCCESS"
	case StateExhausted:
		return "EXHAUSTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
