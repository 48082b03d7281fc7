package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// JobRun is the operational record of one crawl-job execution
type JobRun struct {
	ID            string     `json:"id" db:"id"` // uuid
	JobName       string     `json:"job_name" db:"job_name"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	TargetsFound  int        `json:"targets_found" db:"targets_found"`
	Analyzed      int        `json:"analyzed" db:"analyzed"`
	Opportunities int        `json:"opportunities" db:"opportunities"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
	ErrorMessage  string     `json:"error_message" db:"error_message"`
}

// JobStats is the per-job aggregate the ops store maintains across runs
type JobStats struct {
	JobName           string     `json:"job_name" db:"job_name"`
	LastRunAt         *time.Time `json:"last_run_at" db:"last_run_at"`
	LastRunStatus     string     `json:"last_run_status" db:"last_run_status"`
	TotalRuns         int        `json:"total_runs" db:"total_runs"`
	TotalAnalyzed     int        `json:"total_analyzed" db:"total_analyzed"`
	TotalOpportunity  int        `json:"total_opportunities" db:"total_opportunities"`
	SuccessRate       float64    `json:"success_rate" db:"success_rate"`
	AvgRunDurationSec int        `json:"avg_run_duration_sec" db:"avg_run_duration_sec"`
}
