package registry

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func testLock(t *testing.T, dir string) *Lock {
	t.Helper()
	lock, err := Acquire(context.Background(), filepath.Join(dir, "registry.lock"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { lock.Release() })
	return lock
}

func TestLoadMissingFileReturnsDefaultsWithSelfAsParent(t *testing.T) {
	dir := t.TempDir()
	r := Load(filepath.Join(dir, "does-not-exist.json"))
	if r.ParentPID != os.Getpid() {
		t.Fatalf("parent_pid = %d, want %d", r.ParentPID, os.Getpid())
	}
	if r.SpawnedProcesses == nil {
		t.Fatal("expected a non-nil empty process slice")
	}
	if r.GracePeriods["default"] != DefaultGracePeriods["default"] {
		t.Fatal("expected built-in default grace periods")
	}
}

func TestGracePeriodFallsBackToDefault(t *testing.T) {
	r := newDefault()
	if got := r.GracePeriod("unknown-type"); got != DefaultGracePeriods["default"] {
		t.Fatalf("GracePeriod(unknown) = %d, want %d", got, DefaultGracePeriods["default"])
	}
	if got := r.GracePeriod("node"); got != DefaultGracePeriods["node"] {
		t.Fatalf("GracePeriod(node) = %d, want %d", got, DefaultGracePeriods["node"])
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "process-registry.json")
	lock := testLock(t, dir)

	r := newDefault()
	r.ProjectID = "0001-test"
	r.SpawnedProcesses = append(r.SpawnedProcesses, ProcessEntry{PID: 123, Type: "node", Purpose: "dev server"})
	if err := Save(lock, r, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := Load(path)
	if loaded.ProjectID != "0001-test" {
		t.Fatalf("project_id = %q, want 0001-test", loaded.ProjectID)
	}
	if len(loaded.SpawnedProcesses) != 1 || loaded.SpawnedProcesses[0].PID != 123 {
		t.Fatalf("spawned_processes = %+v", loaded.SpawnedProcesses)
	}
}

func TestSweepDropsDeadProcesses(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "process-registry.json")
	killLogPath := filepath.Join(dir, "process-kills.log")
	lock := testLock(t, dir)

	r := newDefault()
	r.ParentPID = os.Getpid()
	// A pid essentially guaranteed to be dead in any test sandbox.
	r.SpawnedProcesses = []ProcessEntry{{PID: 999999, Type: "", Purpose: "stale"}}

	result, err := Sweep(lock, r, registryPath, killLogPath, filepath.Join(dir, "CONTROL.md"), false, false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(result.Dead) != 1 {
		t.Fatalf("expected 1 dead process, got %+v", result.Dead)
	}
	if len(r.SpawnedProcesses) != 0 {
		t.Fatalf("expected dead process removed from registry, got %+v", r.SpawnedProcesses)
	}
}

func TestSweepOrphanKilledWhenParentDeadAndPastGrace(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "process-registry.json")
	killLogPath := filepath.Join(dir, "process-kills.log")
	lock := testLock(t, dir)

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn test child process: %v", err)
	}
	// Reap the child as soon as it exits, so a killed child does not linger
	// as a zombie that kill(pid, 0) still reports alive.
	waitDone := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(waitDone)
	}()
	defer func() {
		_ = cmd.Process.Kill()
		<-waitDone
	}()

	r := newDefault()
	r.ParentPID = 0 // treated as dead: no parent to check
	r.GracePeriods["default"] = 0
	r.SpawnedProcesses = []ProcessEntry{{
		PID:       cmd.Process.Pid,
		Type:      "",
		SpawnedAt: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
		Purpose:   "test child",
	}}

	result, err := Sweep(lock, r, registryPath, killLogPath, filepath.Join(dir, "CONTROL.md"), false, false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.OrphanCount != 1 {
		t.Fatalf("orphan_count = %d, want 1", result.OrphanCount)
	}
	if len(result.Killed) != 1 || !result.Killed[0].Killed {
		t.Fatalf("expected the child to be reported killed, got %+v", result.Killed)
	}
}

func TestSweepDryRunDoesNotMutateRegistry(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "process-registry.json")
	killLogPath := filepath.Join(dir, "process-kills.log")
	lock := testLock(t, dir)

	r := newDefault()
	r.ParentPID = 0
	r.GracePeriods["default"] = 0
	r.SpawnedProcesses = []ProcessEntry{{
		PID:       os.Getpid(),
		Type:      "",
		SpawnedAt: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
		Purpose:   "self (always alive)",
	}}

	result, err := Sweep(lock, r, registryPath, killLogPath, filepath.Join(dir, "CONTROL.md"), true, false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(result.Warned) != 1 {
		t.Fatalf("expected 1 dry-run warning, got %+v", result.Warned)
	}
	if len(r.SpawnedProcesses) != 1 {
		t.Fatal("dry-run must not remove the entry from the in-memory registry")
	}
	if _, err := os.Stat(registryPath); !os.IsNotExist(err) {
		t.Fatal("dry-run must not write the registry file")
	}
}

func TestSweepTripsCircuitBreakerAtThreeOrphans(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "process-registry.json")
	killLogPath := filepath.Join(dir, "process-kills.log")
	controlPath := filepath.Join(dir, "projects", "0001-test", "CONTROL.md")
	if err := os.MkdirAll(filepath.Dir(controlPath), 0755); err != nil {
		t.Fatal(err)
	}
	lock := testLock(t, dir)

	r := newDefault()
	r.ProjectID = "0001-test"
	r.ParentPID = 0
	r.GracePeriods["default"] = 0
	for i := 0; i < 3; i++ {
		r.SpawnedProcesses = append(r.SpawnedProcesses, ProcessEntry{
			PID:       999990 + i, // dead pids
			Type:      "",
			SpawnedAt: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
			Purpose:   "stale",
		})
	}

	result, err := Sweep(lock, r, registryPath, killLogPath, controlPath, false, true)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	// All three pids are dead, so they count as "dead" not "orphan" —
	// orphan requires aliveness. Re-run with live pids instead.
	_ = result

	cmds := make([]*exec.Cmd, 3)
	r2 := newDefault()
	r2.ProjectID = "0001-test"
	r2.ParentPID = 0
	r2.GracePeriods["default"] = 0
	for i := range cmds {
		cmd := exec.Command("sleep", "30")
		if err := cmd.Start(); err != nil {
			t.Skipf("cannot spawn test child process: %v", err)
		}
		cmds[i] = cmd
		r2.SpawnedProcesses = append(r2.SpawnedProcesses, ProcessEntry{
			PID:       cmd.Process.Pid,
			Type:      "",
			SpawnedAt: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
			Purpose:   "test child",
		})
	}
	defer func() {
		for _, cmd := range cmds {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	}()

	result2, err := Sweep(lock, r2, registryPath, killLogPath, controlPath, false, true)
	if err != nil {
		t.Fatalf("Sweep (2nd): %v", err)
	}
	if !result2.CircuitBreakerTripped {
		t.Fatalf("expected circuit breaker to trip at 3 orphans, got %+v", result2)
	}
	data, err := os.ReadFile(controlPath)
	if err != nil {
		t.Fatalf("expected CONTROL.md to be written: %v", err)
	}
	if string(data[:5]) != "PAUSE" {
		t.Fatalf("CONTROL.md = %q, want PAUSE prefix", data)
	}
}

func TestCleanupRejectsProjectIDMismatch(t *testing.T) {
	dir := t.TempDir()
	lock := testLock(t, dir)
	r := newDefault()
	r.ProjectID = "0001-test"

	result, err := Cleanup(lock, r, filepath.Join(dir, "registry.json"), filepath.Join(dir, "kills.log"), "0002-other")
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.Status != "no_match" {
		t.Fatalf("status = %q, want no_match", result.Status)
	}
}

func TestStatusReportsSelfAlive(t *testing.T) {
	r := newDefault()
	r.SpawnedProcesses = []ProcessEntry{{PID: os.Getpid(), Type: "", Purpose: "self"}}
	report := Status(r)
	if report.ProcessCount != 1 {
		t.Fatalf("process_count = %d, want 1", report.ProcessCount)
	}
	if !report.Processes[0].Alive {
		t.Fatal("expected self pid to be reported alive")
	}
}
