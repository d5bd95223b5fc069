package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ThoughtsFile is the file name of the thought log inside its directory.
const ThoughtsFile = "thoughts.log"

// ThoughtLog is the append-only record of reasoning emitted by the model
// alongside generated code. Entries are never rewritten.
type ThoughtLog struct {
	mu    sync.Mutex
	dir   string
	runID string
	log   *zap.Logger
	now   func() time.Time
}

// NewThoughtLog creates a thought log rooted at dir. The directory is created
// on first write. Every entry written through the returned log carries the
// same run id.
func NewThoughtLog(dir string, log *zap.Logger) *ThoughtLog {
	if log == nil {
		log = zap.NewNop()
	}
	return &ThoughtLog{
		dir:   dir,
		runID: uuid.NewString(),
		log:   log,
		now:   time.Now,
	}
}

// Path returns the thought log file path.
func (t *ThoughtLog) Path() string {
	return filepath.Join(t.dir, ThoughtsFile)
}

// RunID returns the id tagging this process's entries.
func (t *ThoughtLog) RunID() string {
	return t.runID
}

// Record appends one reasoning entry tagged with scenario and stage.
func (t *ThoughtLog) Record(scenario, stage, reasoning string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create thought log dir: %w", err)
	}

	f, err := os.OpenFile(t.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open thought log: %w", err)
	}
	defer f.Close()

	entry := fmt.Sprintf("[%s] [Scenario: %s] [Action: %s] [Run: %s]\nREASONING: %s\n%s\n",
		t.now().UTC().Format(time.RFC3339), scenario, stage, t.runID, reasoning, strings.Repeat("-", 50))
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append thought log: %w", err)
	}

	t.log.Info("agent thoughts",
		zap.String("scenario", scenario),
		zap.String("stage", stage),
		zap.String("run", t.runID),
		zap.String("reasoning", reasoning))
	return nil
}
