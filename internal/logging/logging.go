// Package logging provides the single stderr structured logger used across
// qralph. Primary command output is always the single JSON object on stdout
// required by SPEC_FULL.md §6; this logger never writes to stdout.
package logging

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	once   sync.Once
	logger hclog.Logger
)

// Get returns the process-wide stderr logger, creating it on first use.
func Get() hclog.Logger {
	once.Do(func() {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:       "qralph",
			Output:     os.Stderr,
			Level:      hclog.Info,
			JSONFormat: false,
		})
	})
	return logger
}

var windowsLockWarningOnce sync.Once

// WarnWeakenedLocking emits the one-time startup warning SPEC_FULL.md's
// resolution of Open Question 3 requires when advisory locking degrades to
// a no-op on a non-Unix platform.
func WarnWeakenedLocking() {
	windowsLockWarningOnce.Do(func() {
		Get().Warn("advisory file locking is unavailable on this platform; " +
			"state and registry read-modify-write cycles are no longer " +
			"cross-process safe")
	})
}
