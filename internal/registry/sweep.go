package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sparkst/qralph/internal/breaker"
)

// ProcessStatus describes one process's sweep-time disposition.
type ProcessStatus struct {
	PID        int     `json:"pid"`
	Type       string  `json:"type"`
	Purpose    string  `json:"purpose"`
	AgeSeconds float64 `json:"age_seconds,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Killed     bool    `json:"killed,omitempty"`
}

// SweepResult is the sweep report, grounded on process-monitor.py::cmd_sweep.
type SweepResult struct {
	Alive                  []ProcessStatus `json:"alive"`
	Dead                   []ProcessStatus `json:"dead"`
	Killed                 []ProcessStatus `json:"killed"`
	Warned                 []ProcessStatus `json:"warned"`
	DryRun                 bool            `json:"dry_run"`
	OrphanCount            int             `json:"orphan_count"`
	CircuitBreakerTripped  bool            `json:"circuit_breaker_tripped,omitempty"`
	CircuitBreakerMessage  string          `json:"circuit_breaker_message,omitempty"`
}

// Sweep walks every registered pid: dead ones are dropped, alive-and-past-
// grace ones (with a dead parent, or when force is set) are killed (or
// reported, under dry_run), everything else is left alone. On 3+ orphans it
// writes PAUSE to controlPath (the project's CONTROL.md), tripping the
// circuit breaker described in SPEC_FULL.md §4.5. Must run under lock; r is
// saved in place unless dryRun.
func Sweep(lock *Lock, r *Registry, registryPath, killLogPath, controlPath string, dryRun, force bool) (SweepResult, error) {
	if lock == nil {
		panic("registry.Sweep called without holding the registry lock")
	}

	result := SweepResult{DryRun: dryRun}

	pidsToProbe := make([]int, 0, len(r.SpawnedProcesses)+1)
	if r.ParentPID != 0 {
		pidsToProbe = append(pidsToProbe, r.ParentPID)
	}
	for _, proc := range r.SpawnedProcesses {
		pidsToProbe = append(pidsToProbe, proc.PID)
	}
	liveness := probeLiveness(pidsToProbe)

	// A parent_pid of 0 means no recorded parent, which counts as dead.
	parentAlive := false
	if r.ParentPID != 0 {
		parentAlive = liveness[r.ParentPID]
	}

	var remaining []ProcessEntry
	orphanCount := 0

	for _, proc := range r.SpawnedProcesses {
		if !liveness[proc.PID] {
			result.Dead = append(result.Dead, ProcessStatus{PID: proc.PID, Type: proc.Type, Purpose: proc.Purpose})
			appendKillLog(killLogPath, fmt.Sprintf("SWEEP PID %d already dead (type=%s)", proc.PID, proc.Type))
			continue
		}

		age := processAgeSeconds(proc.SpawnedAt)
		grace := float64(r.GracePeriod(proc.Type))
		pastGrace := age > grace
		isOrphan := (!parentAlive || force) && pastGrace

		if !isOrphan {
			result.Alive = append(result.Alive, ProcessStatus{PID: proc.PID, Type: proc.Type, Purpose: proc.Purpose, AgeSeconds: roundSeconds(age)})
			remaining = append(remaining, proc)
			continue
		}

		orphanCount++
		if dryRun {
			result.Warned = append(result.Warned, ProcessStatus{
				PID: proc.PID, Type: proc.Type, Purpose: proc.Purpose,
				AgeSeconds: roundSeconds(age), Reason: "orphan (dry-run)",
			})
			appendKillLog(killLogPath, fmt.Sprintf("WARN DRY-RUN would kill PID %d (orphan, age=%.0fs, grace=%.0fs)", proc.PID, age, grace))
			remaining = append(remaining, proc)
			continue
		}

		if !verifyProcessIdentity(proc.PID, proc.Type) {
			appendKillLog(killLogPath, fmt.Sprintf("SKIP PID %d: identity changed (possible PID reuse), not killing", proc.PID))
			remaining = append(remaining, proc)
			continue
		}
		killed := killProcess(killLogPath, proc.PID, proc.Type)
		result.Killed = append(result.Killed, ProcessStatus{
			PID: proc.PID, Type: proc.Type, Purpose: proc.Purpose,
			AgeSeconds: roundSeconds(age), Killed: killed,
		})
		if !killed {
			remaining = append(remaining, proc)
		}
	}

	result.OrphanCount = orphanCount

	if !dryRun {
		r.SpawnedProcesses = remaining
		if err := Save(lock, r, registryPath); err != nil {
			return result, err
		}
	}

	if orphanCount >= OrphanThreshold && r.ProjectID != "" {
		if !dryRun {
			writePauseToControl(controlPath)
			appendKillLog(killLogPath, fmt.Sprintf("CIRCUIT_BREAKER tripped for project %s: %d orphans detected", r.ProjectID, orphanCount))
		}
		result.CircuitBreakerTripped = true
		result.CircuitBreakerMessage = fmt.Sprintf(
			"Circuit breaker tripped: %d orphans detected for project %s. PAUSE written to CONTROL.md.",
			orphanCount, r.ProjectID,
		)
	}

	return result, nil
}

// probeLiveness checks every pid's liveness concurrently, since each check
// shells out to `ps`. Grounded on the teacher's runner.go parallel-phase
// goroutine dispatch, using golang.org/x/sync/errgroup in place of its raw
// goroutine+WaitGroup plumbing.
func probeLiveness(pids []int) map[int]bool {
	result := make(map[int]bool, len(pids))
	var mu sync.Mutex
	var g errgroup.Group
	for _, pid := range pids {
		g.Go(func() error {
			alive := isPIDAlive(pid)
			mu.Lock()
			result[pid] = alive
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// OrphanThreshold mirrors internal/breaker.OrphanCircuitBreakerThreshold;
// kept as its own named constant here since registry must not import
// breaker's state-lock-gated Check/Update for this unrelated trip check.
const OrphanThreshold = breaker.OrphanCircuitBreakerThreshold

func writePauseToControl(controlPath string) {
	if controlPath == "" {
		return
	}
	if _, err := os.Stat(filepath.Dir(controlPath)); err != nil {
		// The project directory doesn't exist; nothing to pause.
		return
	}
	_ = os.WriteFile(controlPath, []byte("PAUSE\n# Circuit breaker tripped: 3+ orphan processes detected\n"), 0600)
}

func roundSeconds(s float64) float64 {
	return float64(int64(s + 0.5))
}
