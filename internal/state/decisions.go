package state

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sparkst/qralph/internal/filelock"
)

// AppendDecision appends one timestamped, control-character-scrubbed line to
// a project's decisions.log under an exclusive lock on the file descriptor,
// grounded on qralph-pipeline.py::_log_decision. Refuses to follow a
// symlinked path.
func AppendDecision(path, message string) error {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%s is a symlink, refusing to append", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening decisions log: %w", err)
	}
	defer f.Close()

	unlock, err := filelock.LockFile(f)
	if err != nil {
		return fmt.Errorf("locking decisions log: %w", err)
	}
	defer unlock()

	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), scrubControlChars(message))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("appending decisions log: %w", err)
	}
	return nil
}

func scrubControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return -1
		}
		return r
	}, s)
}
