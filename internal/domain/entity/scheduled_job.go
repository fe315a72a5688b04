package entity

import "time"

// ScheduledJob estado observable de una tarea programada (solo observabilidad, no reglas de negocio).
type ScheduledJob struct {
	Name           string     `json:"name"`
	CronExpression string     `json:"cronExpression"`
	Scheduled      bool       `json:"scheduled"`
	Running        bool       `json:"running"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	LastResult     any        `json:"lastResult,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	Runs           int64      `json:"runs"`
	Failures       int64      `json:"failures"`
}
