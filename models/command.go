package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdAnalyzeNow CommandType = "analyze_now"
	CmdRunJob     CommandType = "run_job"
	CmdSweepNow   CommandType = "sweep_now"
	CmdReportNow  CommandType = "report_now"
	CmdClearCache CommandType = "clear_cache"
	CmdPause      CommandType = "pause"
	CmdResume     CommandType = "resume"
)

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Username string `json:"username,omitempty"`
	Job      string `json:"job,omitempty"`
}
