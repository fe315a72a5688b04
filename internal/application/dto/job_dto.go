package dto

import "github.com/LuAM-Lu/electrocaja/internal/domain/entity"

// JobStatusResponse estado del registro de tareas programadas.
type JobStatusResponse struct {
	Initialized bool                  `json:"initialized"`
	TotalJobs   int                   `json:"total_jobs"`
	Jobs        []entity.ScheduledJob `json:"jobs"`
}

// JobRunResponse resultado de una ejecución (manual o programada).
type JobRunResponse struct {
	Job      string `json:"job"`
	Success  bool   `json:"success"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}
