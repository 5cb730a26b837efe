package registry

import (
	"fmt"
	"time"
)

// killProcess sends SIGTERM, polls for up to 5 seconds, then sends SIGKILL
// if the process is still alive. It verifies process identity first when
// expectedType is non-empty, refusing the kill on a mismatch (treated as
// evidence of PID reuse). Grounded on process-monitor.py::_kill_process.
func killProcess(killLogPath string, pid int, expectedType string) bool {
	if expectedType != "" && !verifyProcessIdentity(pid, expectedType) {
		appendKillLog(killLogPath, fmt.Sprintf("SKIP PID %d: process identity mismatch (expected %s)", pid, expectedType))
		return false
	}

	if err := sendTerminate(pid); err != nil {
		appendKillLog(killLogPath, fmt.Sprintf("KILL PID %d already dead before SIGTERM", pid))
		return true
	}
	appendKillLog(killLogPath, fmt.Sprintf("KILL SIGTERM sent to PID %d", pid))

	for i := 0; i < 50; i++ {
		if !isPIDAlive(pid) {
			appendKillLog(killLogPath, fmt.Sprintf("KILL PID %d terminated after SIGTERM", pid))
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := sendKill(pid); err != nil {
		appendKillLog(killLogPath, fmt.Sprintf("KILL PID %d died between SIGTERM and SIGKILL", pid))
		return true
	}
	appendKillLog(killLogPath, fmt.Sprintf("KILL SIGKILL sent to PID %d (SIGTERM timeout)", pid))

	return !isPIDAlive(pid)
}

// processAgeSeconds returns a process's age given its recorded spawned_at
// RFC3339 timestamp, or 0 if it cannot be parsed.
func processAgeSeconds(spawnedAt string) float64 {
	spawned, err := time.Parse(time.RFC3339, spawnedAt)
	if err != nil {
		return 0
	}
	return time.Since(spawned).Seconds()
}
