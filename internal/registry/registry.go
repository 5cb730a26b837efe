// Package registry tracks child processes spawned during a run, identifies
// and kills genuine orphans, and refuses to kill anything it cannot
// positively identify. Grounded in full on process-monitor.py.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sparkst/qralph/internal/filelock"
	"github.com/sparkst/qralph/internal/state"
)

func decodeRegistry(data []byte, r *Registry) error {
	return json.Unmarshal(data, r)
}

// Lock is the registry's own type-level witness, distinct from
// state.Lock so a lock obtained for one domain can't be mistaken for the
// other's. Wraps the same internal/filelock primitive.
type Lock struct {
	handle *filelock.Handle
}

// Acquire takes an exclusive advisory lock on the registry's sibling
// ".lock" file, held across a full read-modify-write cycle.
func Acquire(ctx context.Context, lockPath string) (*Lock, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	h, err := filelock.Acquire(lockPath)
	if err != nil {
		return nil, fmt.Errorf("acquiring registry lock: %w", err)
	}
	return &Lock{handle: h}, nil
}

// Release is idempotent.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.handle.Release()
}

// DefaultGracePeriods are the built-in per-type grace periods (seconds)
// before a dead-parent process is considered an orphan, per SPEC_FULL.md
// §4.6 and the §3.1 process-registry table.
var DefaultGracePeriods = map[string]int{
	"node":       1800,
	"vitest":     1800,
	"claude":     3600,
	"team-agent": 1800,
	"default":    900,
}

// ProcessEntry is one registered spawned process.
type ProcessEntry struct {
	PID       int    `json:"pid"`
	Type      string `json:"type"`
	SpawnedAt string `json:"spawned_at"`
	Purpose   string `json:"purpose"`
}

// Registry is the persisted process-registry.json shape.
type Registry struct {
	SessionID         string         `json:"session_id"`
	ProjectID         string         `json:"project_id"`
	ParentPID         int            `json:"parent_pid"`
	SpawnedProcesses  []ProcessEntry `json:"spawned_processes"`
	GracePeriods      map[string]int `json:"grace_periods"`
}

// Load reads the registry at path, defaulting to a fresh registry owned by
// the current process if the file is absent or unreadable.
func Load(path string) *Registry {
	var r Registry
	data, err := os.ReadFile(path)
	if err == nil {
		if decodeErr := decodeRegistry(data, &r); decodeErr == nil {
			applyDefaults(&r)
			return &r
		}
	}
	return newDefault()
}

func newDefault() *Registry {
	return &Registry{
		SessionID:        time.Now().UTC().Format(time.RFC3339Nano),
		ParentPID:        os.Getpid(),
		SpawnedProcesses: []ProcessEntry{},
		GracePeriods:     copyGracePeriods(DefaultGracePeriods),
	}
}

func applyDefaults(r *Registry) {
	if r.GracePeriods == nil {
		r.GracePeriods = copyGracePeriods(DefaultGracePeriods)
	}
	if r.SpawnedProcesses == nil {
		r.SpawnedProcesses = []ProcessEntry{}
	}
}

func copyGracePeriods(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Save atomically persists the registry using the same symlink-guarded
// write primitive the state store uses.
func Save(lock *Lock, r *Registry, path string) error {
	if lock == nil {
		panic("registry.Save called without holding the registry lock")
	}
	return state.SafeWriteJSON(path, r)
}

// GracePeriod resolves the grace period for a process type, falling back
// to "default" then the built-in default.
func (r *Registry) GracePeriod(procType string) int {
	if seconds, ok := r.GracePeriods[procType]; ok {
		return seconds
	}
	if seconds, ok := r.GracePeriods["default"]; ok {
		return seconds
	}
	return DefaultGracePeriods["default"]
}

// Register appends a spawned-process entry, rejecting registration if the
// caller is not verified to be pid's parent. Must be called holding lock.
func Register(lock *Lock, r *Registry, path string, pid int, procType, purpose string) error {
	if lock == nil {
		panic("registry.Register called without holding the registry lock")
	}
	if !verifyPIDOwnership(pid) {
		return fmt.Errorf("PID %d not owned by caller (ppid mismatch)", pid)
	}
	r.SpawnedProcesses = append(r.SpawnedProcesses, ProcessEntry{
		PID:       pid,
		Type:      procType,
		SpawnedAt: time.Now().UTC().Format(time.RFC3339),
		Purpose:   purpose,
	})
	return Save(lock, r, path)
}
