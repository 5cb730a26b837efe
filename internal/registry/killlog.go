package registry

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sparkst/qralph/internal/filelock"
)

// appendKillLog appends one timestamped, control-character-scrubbed line to
// process-kills.log under an exclusive lock on the file descriptor.
// Grounded on process-monitor.py::_log_action; shares its locked-append
// shape with internal/state.AppendDecision via the same internal/filelock
// primitive.
func appendKillLog(path, message string) {
	if path == "" {
		return
	}
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		fmt.Fprintf(os.Stderr, "warning: refusing to write to symlink: %s\n", path)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to open kill log: %v\n", err)
		return
	}
	defer f.Close()

	unlock, err := filelock.LockFile(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to lock kill log: %v\n", err)
		return
	}
	defer unlock()

	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), scrubControlChars(message))
	if _, err := f.WriteString(line); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to append kill log: %v\n", err)
	}
}

func scrubControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return -1
		}
		return r
	}, s)
}
