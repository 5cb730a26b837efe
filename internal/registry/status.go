package registry

// ProcessStatusReport is one process's liveness snapshot for `registry status`.
type ProcessStatusReport struct {
	PID        int     `json:"pid"`
	Type       string  `json:"type"`
	Purpose    string  `json:"purpose"`
	Alive      bool    `json:"alive"`
	AgeSeconds float64 `json:"age_seconds"`
}

// StatusReport is the full `registry status` response.
type StatusReport struct {
	SessionID    string                `json:"session_id"`
	ProjectID    string                `json:"project_id"`
	ParentPID    int                   `json:"parent_pid"`
	ParentAlive  bool                  `json:"parent_alive"`
	ProcessCount int                   `json:"process_count"`
	Processes    []ProcessStatusReport `json:"processes"`
}

// Status reports every registered process's current liveness and age,
// without mutating the registry. Grounded on process-monitor.py::cmd_status.
func Status(r *Registry) StatusReport {
	report := StatusReport{
		SessionID:   r.SessionID,
		ProjectID:   r.ProjectID,
		ParentPID:   r.ParentPID,
		ParentAlive: r.ParentPID != 0 && isPIDAlive(r.ParentPID),
	}
	for _, proc := range r.SpawnedProcesses {
		report.Processes = append(report.Processes, ProcessStatusReport{
			PID:        proc.PID,
			Type:       proc.Type,
			Purpose:    proc.Purpose,
			Alive:      isPIDAlive(proc.PID),
			AgeSeconds: roundSeconds(processAgeSeconds(proc.SpawnedAt)),
		})
	}
	report.ProcessCount = len(report.Processes)
	return report
}
