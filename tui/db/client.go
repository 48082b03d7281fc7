package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Client reads the same databases the daemon writes: the analyzer store
// (Postgres or a SQLite file, picked by connection string like the daemon
// does) and the ops sidecar, which is always a local SQLite file. Commands
// are written to the sidecar; the scheduler polls them from there.
type Client struct {
	pg   *pgxpool.Pool // analyzer store when DATABASE_URL is postgres://
	lite *sql.DB       // analyzer store when DATABASE_URL is a file path
	ops  *sql.DB       // runs, logs, commands, heartbeats
	ctx  context.Context
}

type Lead struct {
	ID               int64
	Username         string
	FullName         string
	Followers        int
	EngagementRate   float64
	PostingFrequency string
	GrowthPotential  string
	OpportunityScore float64
	Issues           []string
	Recommendations  []string
	Contacted        bool
	Converted        bool
	Notes            string
	AnalyzedAt       time.Time
}

type ScorePoint struct {
	Score      float64
	AnalyzedAt time.Time
}

type Job struct {
	ID            int64
	Name          string
	Frequency     string
	City          string
	Category      string
	MinScore      float64
	IsActive      bool
	LastRun       *time.Time
	NextRun       *time.Time
	ProfilesFound int
	Monitored     []string
}

type JobStat struct {
	JobName            string
	LastRunAt          *time.Time
	LastRunStatus      string
	TotalRuns          int
	TotalAnalyzed      int
	TotalOpportunities int
	SuccessRate        float64
	AvgRunDurationSec  int
}

type CrawlRun struct {
	ID            string
	JobName       string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Status        string
	TargetsFound  int
	Analyzed      int
	Opportunities int
	ErrorsCount   int
	ErrorMessage  string
}

type CrawlLog struct {
	ID        int64
	RunID     *string
	Timestamp time.Time
	Level     string
	Message   string
	JobName   string
}

type Totals struct {
	Profiles   int
	Analyses   int
	Businesses int
	ActiveJobs int
}

func New(databaseURL, opsPath string) (*Client, error) {
	ctx := context.Background()
	c := &Client{ctx: ctx}

	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		c.pg = pool
	} else {
		lite, err := sql.Open("sqlite", databaseURL)
		if err != nil {
			return nil, err
		}
		c.lite = lite
	}

	ops, err := sql.Open("sqlite", opsPath)
	if err != nil {
		if c.pg != nil {
			c.pg.Close()
		}
		if c.lite != nil {
			c.lite.Close()
		}
		return nil, err
	}
	c.ops = ops

	return c, nil
}

func (c *Client) Close() error {
	if c.pg != nil {
		c.pg.Close()
	}
	if c.lite != nil {
		c.lite.Close()
	}
	return c.ops.Close()
}

// The daemon's SQLite driver stores time.Time as text with an offset;
// CURRENT_TIMESTAMP defaults store bare UTC seconds.
var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	for _, layout := range sqliteTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func decodeList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	_ = json.Unmarshal(raw, &list)
	return list
}

// =============================================================================
// Analyzer store
// =============================================================================

func (c *Client) scalar(query string, dest *int) error {
	if c.pg != nil {
		return c.pg.QueryRow(c.ctx, query).Scan(dest)
	}
	return c.lite.QueryRow(query).Scan(dest)
}

func (c *Client) GetTotals() (Totals, error) {
	var t Totals
	if err := c.scalar(`SELECT COUNT(*) FROM profiles`, &t.Profiles); err != nil {
		return t, err
	}
	if err := c.scalar(`SELECT COUNT(*) FROM analyses`, &t.Analyses); err != nil {
		return t, err
	}
	if err := c.scalar(`SELECT COUNT(*) FROM businesses`, &t.Businesses); err != nil {
		return t, err
	}
	if err := c.scalar(`SELECT COUNT(*) FROM crawl_jobs WHERE is_active = TRUE`, &t.ActiveJobs); err != nil {
		return t, err
	}
	return t, nil
}

// GetLeads returns the latest analysis per username, best score first.
func (c *Client) GetLeads(limit, offset int, minScore float64, uncontactedOnly bool) ([]Lead, error) {
	if c.pg != nil {
		return c.leadsPG(limit, offset, minScore, uncontactedOnly)
	}
	return c.leadsSQLite(limit, offset, minScore, uncontactedOnly)
}

func (c *Client) leadsPG(limit, offset int, minScore float64, uncontactedOnly bool) ([]Lead, error) {
	query := `
		SELECT id, username, full_name, followers, engagement_rate,
			posting_frequency, growth_potential, opportunity_score,
			issues, recommendations, contacted, converted_to_client,
			notes, analyzed_at
		FROM (
			SELECT DISTINCT ON (username) *
			FROM analyses
			ORDER BY username, analyzed_at DESC, id DESC
		) latest
		WHERE opportunity_score >= $1`
	if uncontactedOnly {
		query += ` AND NOT contacted`
	}
	query += ` ORDER BY opportunity_score DESC, id ASC LIMIT $2 OFFSET $3`

	rows, err := c.pg.Query(c.ctx, query, minScore, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var l Lead
		var issues, recs []byte
		err := rows.Scan(&l.ID, &l.Username, &l.FullName, &l.Followers, &l.EngagementRate,
			&l.PostingFrequency, &l.GrowthPotential, &l.OpportunityScore,
			&issues, &recs, &l.Contacted, &l.Converted, &l.Notes, &l.AnalyzedAt)
		if err != nil {
			return nil, err
		}
		l.Issues = decodeList(issues)
		l.Recommendations = decodeList(recs)
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (c *Client) leadsSQLite(limit, offset int, minScore float64, uncontactedOnly bool) ([]Lead, error) {
	query := `
		SELECT id, username, full_name, followers, engagement_rate,
			posting_frequency, growth_potential, opportunity_score,
			issues, recommendations, contacted, converted_to_client,
			notes, analyzed_at
		FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY username ORDER BY analyzed_at DESC, id DESC) AS rn
			FROM analyses
		)
		WHERE rn = 1 AND opportunity_score >= ?`
	if uncontactedOnly {
		query += ` AND NOT contacted`
	}
	query += ` ORDER BY opportunity_score DESC, id ASC LIMIT ? OFFSET ?`

	rows, err := c.lite.Query(query, minScore, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var l Lead
		var issues, recs []byte
		var analyzedAt string
		err := rows.Scan(&l.ID, &l.Username, &l.FullName, &l.Followers, &l.EngagementRate,
			&l.PostingFrequency, &l.GrowthPotential, &l.OpportunityScore,
			&issues, &recs, &l.Contacted, &l.Converted, &l.Notes, &analyzedAt)
		if err != nil {
			return nil, err
		}
		l.Issues = decodeList(issues)
		l.Recommendations = decodeList(recs)
		l.AnalyzedAt = parseTime(analyzedAt)
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (c *Client) LeadCount(minScore float64, uncontactedOnly bool) (int, error) {
	filter := ""
	if uncontactedOnly {
		filter = ` AND NOT contacted`
	}

	var count int
	if c.pg != nil {
		query := `
			SELECT COUNT(*) FROM (
				SELECT DISTINCT ON (username) opportunity_score, contacted
				FROM analyses
				ORDER BY username, analyzed_at DESC, id DESC
			) latest
			WHERE opportunity_score >= $1` + filter
		err := c.pg.QueryRow(c.ctx, query, minScore).Scan(&count)
		return count, err
	}

	query := `
		SELECT COUNT(*) FROM (
			SELECT opportunity_score, contacted, ROW_NUMBER() OVER (
				PARTITION BY username ORDER BY analyzed_at DESC, id DESC) AS rn
			FROM analyses
		)
		WHERE rn = 1 AND opportunity_score >= ?` + filter
	err := c.lite.QueryRow(query, minScore).Scan(&count)
	return count, err
}

func (c *Client) GetLeadHistory(username string) ([]ScorePoint, error) {
	if c.pg != nil {
		rows, err := c.pg.Query(c.ctx, `
			SELECT opportunity_score, analyzed_at FROM analyses
			WHERE username = $1 ORDER BY analyzed_at DESC, id DESC LIMIT 20`, username)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var points []ScorePoint
		for rows.Next() {
			var p ScorePoint
			if err := rows.Scan(&p.Score, &p.AnalyzedAt); err != nil {
				return nil, err
			}
			points = append(points, p)
		}
		return points, rows.Err()
	}

	rows, err := c.lite.Query(`
		SELECT opportunity_score, analyzed_at FROM analyses
		WHERE username = ? ORDER BY analyzed_at DESC, id DESC LIMIT 20`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []ScorePoint
	for rows.Next() {
		var p ScorePoint
		var analyzedAt string
		if err := rows.Scan(&p.Score, &analyzedAt); err != nil {
			return nil, err
		}
		p.AnalyzedAt = parseTime(analyzedAt)
		points = append(points, p)
	}
	return points, rows.Err()
}

func (c *Client) GetJobs() ([]Job, error) {
	if c.pg != nil {
		return c.jobsPG()
	}
	return c.jobsSQLite()
}

func (c *Client) jobsPG() ([]Job, error) {
	rows, err := c.pg.Query(c.ctx, `
		SELECT id, name, frequency, location_city, business_category,
			min_opportunity_score, is_active, last_run, next_run,
			profiles_found, monitored
		FROM crawl_jobs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var monitored []byte
		err := rows.Scan(&j.ID, &j.Name, &j.Frequency, &j.City, &j.Category,
			&j.MinScore, &j.IsActive, &j.LastRun, &j.NextRun, &j.ProfilesFound, &monitored)
		if err != nil {
			return nil, err
		}
		j.Monitored = decodeList(monitored)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (c *Client) jobsSQLite() ([]Job, error) {
	rows, err := c.lite.Query(`
		SELECT id, name, frequency, location_city, business_category,
			min_opportunity_score, is_active, last_run, next_run,
			profiles_found, monitored
		FROM crawl_jobs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var monitored []byte
		var lastRun, nextRun sql.NullString
		err := rows.Scan(&j.ID, &j.Name, &j.Frequency, &j.City, &j.Category,
			&j.MinScore, &j.IsActive, &lastRun, &nextRun, &j.ProfilesFound, &monitored)
		if err != nil {
			return nil, err
		}
		j.LastRun = parseTimePtr(lastRun)
		j.NextRun = parseTimePtr(nextRun)
		j.Monitored = decodeList(monitored)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// =============================================================================
// Ops sidecar
// =============================================================================

func (c *Client) GetJobStats() ([]JobStat, error) {
	rows, err := c.ops.Query(`
		SELECT job_name, last_run_at, last_run_status, total_runs, total_analyzed,
			total_opportunities, success_rate, avg_run_duration_sec
		FROM job_stats ORDER BY job_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []JobStat
	for rows.Next() {
		var s JobStat
		var lastRun, status sql.NullString
		var successRate sql.NullFloat64
		var avgDur sql.NullInt64
		err := rows.Scan(&s.JobName, &lastRun, &status, &s.TotalRuns, &s.TotalAnalyzed,
			&s.TotalOpportunities, &successRate, &avgDur)
		if err != nil {
			return nil, err
		}
		s.LastRunAt = parseTimePtr(lastRun)
		s.LastRunStatus = status.String
		s.SuccessRate = successRate.Float64
		s.AvgRunDurationSec = int(avgDur.Int64)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (c *Client) GetRecentRuns(limit int) ([]CrawlRun, error) {
	rows, err := c.ops.Query(`
		SELECT id, job_name, started_at, finished_at, status, targets_found,
			analyzed, opportunities, errors_count, error_message
		FROM crawl_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []CrawlRun
	for rows.Next() {
		var r CrawlRun
		var started string
		var finished, errMsg sql.NullString
		err := rows.Scan(&r.ID, &r.JobName, &started, &finished, &r.Status,
			&r.TargetsFound, &r.Analyzed, &r.Opportunities, &r.ErrorsCount, &errMsg)
		if err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTimePtr(finished)
		r.ErrorMessage = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (c *Client) GetRecentLogs(limit int, level *string) ([]CrawlLog, error) {
	query := `
		SELECT id, run_id, timestamp, level, message, job_name
		FROM crawl_logs`
	var args []interface{}
	if level != nil && *level != "ALL" {
		query += ` WHERE UPPER(level) = UPPER(?)`
		args = append(args, *level)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.ops.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []CrawlLog
	for rows.Next() {
		var l CrawlLog
		var ts string
		var runID, jobName sql.NullString
		if err := rows.Scan(&l.ID, &runID, &ts, &l.Level, &l.Message, &jobName); err != nil {
			return nil, err
		}
		l.Timestamp = parseTime(ts)
		if runID.Valid {
			id := runID.String
			l.RunID = &id
		}
		l.JobName = jobName.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (c *Client) LastHeartbeat(component string) (time.Time, error) {
	var lastSeen sql.NullString
	err := c.ops.QueryRow(`
		SELECT last_seen FROM heartbeats WHERE component = ?`, component).Scan(&lastSeen)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if !lastSeen.Valid {
		return time.Time{}, nil
	}
	return parseTime(lastSeen.String), nil
}

// =============================================================================
// Commands
// =============================================================================

// SendCommand queues a control command for the scheduler. params may be nil.
func (c *Client) SendCommand(command string, params interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = c.ops.Exec(`
		INSERT INTO commands (command, params) VALUES (?, ?)`, command, string(data))
	return err
}

func (c *Client) AnalyzeNow(username string) error {
	return c.SendCommand("analyze_now", map[string]string{"username": username})
}

func (c *Client) RunJob(name string) error {
	return c.SendCommand("run_job", map[string]string{"job": name})
}

func (c *Client) SweepNow() error {
	return c.SendCommand("sweep_now", nil)
}

func (c *Client) ReportNow() error {
	return c.SendCommand("report_now", nil)
}

func (c *Client) ClearCache() error {
	return c.SendCommand("clear_cache", nil)
}

func (c *Client) Pause() error {
	return c.SendCommand("pause", nil)
}

func (c *Client) Resume() error {
	return c.SendCommand("resume", nil)
}
