package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benschubert/wast/pkg/logger"
)

// runLog is the aggregate, append-only transcript of one pipeline
// invocation, written to cache_path/logs/<run-id>.log. The run ID is a
// generated uuid rather than a timestamp so concurrent invocations against
// the same cache_path (e.g. two terminals) never collide on the file name.
type runLog struct {
	mu   sync.Mutex
	file *os.File
}

// newRunLog creates logsDir if necessary and opens a fresh log file named
// after a freshly generated run ID. A failure to open the file is logged and
// degrades to a no-op runLog, since the aggregate log is a diagnostic
// convenience, not something any step's correctness depends on.
func newRunLog(logsDir string) *runLog {
	runID := uuid.New().String()
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		logger.Get().Warnf("could not create %s: %v", logsDir, err)
		return &runLog{}
	}

	path := filepath.Join(logsDir, runID+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Get().Warnf("could not open run log %s: %v", path, err)
		return &runLog{}
	}
	rl := &runLog{file: f}
	rl.writef("run %s started", runID)
	return rl
}

func (rl *runLog) writef(format string, args ...interface{}) {
	if rl == nil || rl.file == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	fmt.Fprintf(rl.file, "%s %s\n", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

func (rl *runLog) close() {
	if rl == nil || rl.file == nil {
		return
	}
	_ = rl.file.Close()
}
