package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"gramscout/models"
)

// OpsStore is the operational sidecar database: run history, mirrored logs,
// control commands from the dashboard, per-job aggregates and worker
// heartbeats. It is always SQLite, regardless of where analyses live, so the
// TUI can attach to a single local file.
type OpsStore struct {
	db *sql.DB
}

func NewOpsStore(dbPath string) (*OpsStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &OpsStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *OpsStore) Close() error {
	return s.db.Close()
}

func (s *OpsStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		job_name TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		targets_found INTEGER,
		analyzed INTEGER,
		opportunities INTEGER,
		errors_count INTEGER,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS crawl_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		job_name TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS job_stats (
		job_name TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_runs INTEGER,
		total_analyzed INTEGER,
		total_opportunities INTEGER,
		success_rate REAL,
		avg_run_duration_sec INTEGER
	);

	CREATE TABLE IF NOT EXISTS heartbeats (
		component TEXT PRIMARY KEY,
		last_seen DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON crawl_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON crawl_runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_job ON crawl_runs(job_name, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Runs and logs
// =============================================================================

// CreateRun records the start of a job execution. The run gets a fresh UUID
// unless the caller set one.
func (s *OpsStore) CreateRun(run *models.JobRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO crawl_runs (id, job_name, started_at, status, targets_found,
			analyzed, opportunities, errors_count, error_message)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0, '')`,
		run.ID, run.JobName, run.StartedAt, run.Status)
	return err
}

func (s *OpsStore) UpdateRun(run *models.JobRun) error {
	_, err := s.db.Exec(`
		UPDATE crawl_runs SET finished_at = ?, status = ?, targets_found = ?,
			analyzed = ?, opportunities = ?, errors_count = ?, error_message = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.TargetsFound, run.Analyzed,
		run.Opportunities, run.ErrorsCount, run.ErrorMessage, run.ID)
	return err
}

func (s *OpsStore) Log(runID *string, level models.LogLevel, message, jobName string) error {
	_, err := s.db.Exec(`
		INSERT INTO crawl_logs (run_id, timestamp, level, message, job_name)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, jobName)
	return err
}

func (s *OpsStore) RecentRuns(limit int) ([]models.JobRun, error) {
	rows, err := s.db.Query(`
		SELECT id, job_name, started_at, finished_at, status, targets_found,
			analyzed, opportunities, errors_count, error_message
		FROM crawl_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.JobRun
	for rows.Next() {
		var run models.JobRun
		var errMsg sql.NullString
		if err := rows.Scan(&run.ID, &run.JobName, &run.StartedAt, &run.FinishedAt,
			&run.Status, &run.TargetsFound, &run.Analyzed, &run.Opportunities,
			&run.ErrorsCount, &errMsg); err != nil {
			return nil, err
		}
		run.ErrorMessage = errMsg.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *OpsStore) RecentLogs(limit int) ([]models.CrawlLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, job_name
		FROM crawl_logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.CrawlLog
	for rows.Next() {
		var entry models.CrawlLog
		var jobName sql.NullString
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Timestamp,
			&entry.Level, &entry.Message, &jobName); err != nil {
			return nil, err
		}
		entry.JobName = jobName.String
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// =============================================================================
// Job stats
// =============================================================================

// UpdateJobStats recomputes the aggregate row for one job from its run
// history. Called after every run so the dashboard reads a single row instead
// of scanning crawl_runs.
func (s *OpsStore) UpdateJobStats(jobName string) error {
	_, err := s.db.Exec(`
		INSERT INTO job_stats (job_name, last_run_at, last_run_status, total_runs,
			total_analyzed, total_opportunities, success_rate, avg_run_duration_sec)
		SELECT
			?,
			(SELECT started_at FROM crawl_runs WHERE job_name = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT status FROM crawl_runs WHERE job_name = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT COUNT(*) FROM crawl_runs WHERE job_name = ?),
			(SELECT COALESCE(SUM(analyzed), 0) FROM crawl_runs WHERE job_name = ?),
			(SELECT COALESCE(SUM(opportunities), 0) FROM crawl_runs WHERE job_name = ?),
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM crawl_runs WHERE job_name = ?),
			(SELECT AVG(CAST((julianday(finished_at) - julianday(started_at)) * 86400 AS INTEGER))
				FROM crawl_runs WHERE job_name = ? AND finished_at IS NOT NULL)
		ON CONFLICT(job_name) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_runs = excluded.total_runs,
			total_analyzed = excluded.total_analyzed,
			total_opportunities = excluded.total_opportunities,
			success_rate = excluded.success_rate,
			avg_run_duration_sec = excluded.avg_run_duration_sec`,
		jobName, jobName, jobName, jobName, jobName, jobName, jobName, jobName)
	return err
}

func (s *OpsStore) GetJobStats(jobName string) (*models.JobStats, error) {
	row := s.db.QueryRow(`
		SELECT job_name, last_run_at, last_run_status, total_runs, total_analyzed,
			total_opportunities, success_rate, avg_run_duration_sec
		FROM job_stats WHERE job_name = ?`, jobName)

	var stats models.JobStats
	var status sql.NullString
	var successRate sql.NullFloat64
	var avgDuration sql.NullInt64
	err := row.Scan(&stats.JobName, &stats.LastRunAt, &status, &stats.TotalRuns,
		&stats.TotalAnalyzed, &stats.TotalOpportunity, &successRate, &avgDuration)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stats.LastRunStatus = status.String
	stats.SuccessRate = successRate.Float64
	stats.AvgRunDurationSec = int(avgDuration.Int64)
	return &stats, nil
}

// =============================================================================
// Commands
// =============================================================================

// SendCommand queues a control command for the scheduler. params may be nil.
func (s *OpsStore) SendCommand(command models.CommandType, params interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO commands (command, params) VALUES (?, ?)`,
		command, string(data))
	return err
}

func (s *OpsStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *OpsStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *OpsStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// =============================================================================
// Heartbeats
// =============================================================================

func (s *OpsStore) Heartbeat(component string) error {
	_, err := s.db.Exec(`
		INSERT INTO heartbeats (component, last_seen) VALUES (?, ?)
		ON CONFLICT(component) DO UPDATE SET last_seen = excluded.last_seen`,
		component, time.Now())
	return err
}

func (s *OpsStore) LastHeartbeat(component string) (time.Time, error) {
	var lastSeen time.Time
	err := s.db.QueryRow(`
		SELECT last_seen FROM heartbeats WHERE component = ?`, component).Scan(&lastSeen)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return lastSeen, err
}
