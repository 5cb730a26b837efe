package registry

import "fmt"

// CleanupResult reports the outcome of Cleanup.
type CleanupResult struct {
	Status      string          `json:"status"`
	ProjectID   string          `json:"project_id"`
	KilledCount int             `json:"killed_count,omitempty"`
	Killed      []ProcessStatus `json:"killed,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// Cleanup kills every still-live registered process belonging to projectID,
// using the same identity-verification discipline as Sweep, then clears the
// registry's process list. Grounded on process-monitor.py::cmd_cleanup.
func Cleanup(lock *Lock, r *Registry, registryPath, killLogPath, projectID string) (CleanupResult, error) {
	if lock == nil {
		panic("registry.Cleanup called without holding the registry lock")
	}

	if r.ProjectID != projectID {
		return CleanupResult{
			Status:  "no_match",
			Message: fmt.Sprintf("registry project_id %q does not match %q", r.ProjectID, projectID),
		}, nil
	}

	var killed []ProcessStatus
	for _, proc := range r.SpawnedProcesses {
		if !isPIDAlive(proc.PID) {
			appendKillLog(killLogPath, fmt.Sprintf("CLEANUP PID %d already dead", proc.PID))
			continue
		}
		success := killProcess(killLogPath, proc.PID, proc.Type)
		killed = append(killed, ProcessStatus{PID: proc.PID, Type: proc.Type, Killed: success})
	}

	r.SpawnedProcesses = nil
	if err := Save(lock, r, registryPath); err != nil {
		return CleanupResult{}, err
	}
	appendKillLog(killLogPath, fmt.Sprintf("CLEANUP project %s: killed %d processes", projectID, len(killed)))

	return CleanupResult{
		Status:      "cleaned",
		ProjectID:   projectID,
		KilledCount: len(killed),
		Killed:      killed,
	}, nil
}
