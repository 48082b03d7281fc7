package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gramscout/models"
)

// SQLiteRepository is the zero-setup analysis store. It mirrors the
// Postgres repository exactly, so a deployment can start on a local file
// and move to a server later without touching callers.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() {
	r.db.Close()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id INTEGER PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		full_name TEXT DEFAULT '',
		biography TEXT DEFAULT '',
		followers INTEGER DEFAULT 0,
		following INTEGER DEFAULT 0,
		total_posts INTEGER DEFAULT 0,
		is_verified BOOLEAN DEFAULT FALSE,
		is_business BOOLEAN DEFAULT FALSE,
		fingerprint TEXT DEFAULT '',
		first_crawled DATETIME,
		last_crawled DATETIME
	);

	CREATE TABLE IF NOT EXISTS analyses (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL,
		full_name TEXT DEFAULT '',
		followers INTEGER DEFAULT 0,
		following INTEGER DEFAULT 0,
		posts INTEGER DEFAULT 0,
		is_business BOOLEAN DEFAULT FALSE,
		engagement_rate REAL DEFAULT 0,
		avg_likes REAL DEFAULT 0,
		avg_comments REAL DEFAULT 0,
		posting_frequency TEXT DEFAULT '',
		avg_posting_interval_days REAL DEFAULT 0,
		last_post_days INTEGER DEFAULT 0,
		growth_potential TEXT DEFAULT '',
		opportunity_score REAL DEFAULT 0,
		issues JSON,
		recommendations JSON,
		contacted BOOLEAN DEFAULT FALSE,
		contacted_date DATETIME,
		response_received BOOLEAN DEFAULT FALSE,
		converted_to_client BOOLEAN DEFAULT FALSE,
		conversion_date DATETIME,
		notes TEXT DEFAULT '',
		analyzed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS businesses (
		id INTEGER PRIMARY KEY,
		business_name TEXT NOT NULL,
		category TEXT DEFAULT '',
		city TEXT DEFAULT '',
		area TEXT DEFAULT '',
		state TEXT DEFAULT '',
		pincode TEXT DEFAULT '',
		instagram_username TEXT DEFAULT '',
		is_active BOOLEAN DEFAULT TRUE,
		last_analyzed DATETIME,
		current_score REAL,
		analysis_count INTEGER DEFAULT 0,
		discovered_at DATETIME,
		last_updated DATETIME,
		UNIQUE(business_name, city)
	);

	CREATE TABLE IF NOT EXISTS crawl_jobs (
		id INTEGER PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		location_city TEXT DEFAULT '',
		location_area TEXT DEFAULT '',
		pincode TEXT DEFAULT '',
		business_category TEXT DEFAULT '',
		frequency TEXT DEFAULT 'weekly',
		min_opportunity_score REAL DEFAULT 5.0,
		is_active BOOLEAN DEFAULT TRUE,
		last_run DATETIME,
		next_run DATETIME,
		profiles_found INTEGER DEFAULT 0,
		monitored JSON,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_username ON analyses(username, analyzed_at);
	CREATE INDEX IF NOT EXISTS idx_analyses_score ON analyses(opportunity_score);
	CREATE INDEX IF NOT EXISTS idx_businesses_city ON businesses(city);
	CREATE INDEX IF NOT EXISTS idx_businesses_username ON businesses(instagram_username);
	`
	_, err := r.db.Exec(schema)
	return err
}

// =============================================================================
// Profiles
// =============================================================================

func (r *SQLiteRepository) UpsertProfile(ctx context.Context, snap *models.ProfileSnapshot, fingerprint string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (username, full_name, biography, followers, following, total_posts,
			is_verified, is_business, fingerprint, first_crawled, last_crawled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			full_name = COALESCE(NULLIF(excluded.full_name, ''), full_name),
			biography = COALESCE(NULLIF(excluded.biography, ''), biography),
			followers = excluded.followers,
			following = excluded.following,
			total_posts = excluded.total_posts,
			is_verified = excluded.is_verified,
			is_business = excluded.is_business,
			fingerprint = COALESCE(NULLIF(excluded.fingerprint, ''), fingerprint),
			last_crawled = excluded.last_crawled`,
		snap.Username, snap.FullName, snap.Biography, snap.Followers, snap.Following,
		snap.TotalPosts, snap.IsVerified, snap.IsBusiness, fingerprint, now, now)
	return err
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, username string) (*models.ProfileSummary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, biography, followers, following, total_posts,
			is_verified, is_business, fingerprint, first_crawled, last_crawled
		FROM profiles WHERE username = ?`, username)

	var p models.ProfileSummary
	err := row.Scan(&p.ID, &p.Username, &p.FullName, &p.Biography, &p.Followers, &p.Following,
		&p.TotalPosts, &p.IsVerified, &p.IsBusiness, &p.Fingerprint, &p.FirstCrawled, &p.LastCrawled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// Analyses
// =============================================================================

const sqliteAnalysisColumns = `id, username, full_name, followers, following, posts, is_business,
	engagement_rate, avg_likes, avg_comments, posting_frequency, avg_posting_interval_days,
	last_post_days, growth_potential, opportunity_score, issues, recommendations,
	contacted, contacted_date, response_received, converted_to_client, conversion_date,
	notes, analyzed_at`

func (r *SQLiteRepository) AppendAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	issues, err := json.Marshal(rec.Issues)
	if err != nil {
		return err
	}
	recs, err := json.Marshal(rec.Recommendations)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO analyses (username, full_name, followers, following, posts, is_business,
			engagement_rate, avg_likes, avg_comments, posting_frequency,
			avg_posting_interval_days, last_post_days, growth_potential, opportunity_score,
			issues, recommendations, contacted, contacted_date, response_received,
			converted_to_client, conversion_date, notes, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Username, rec.FullName, rec.Followers, rec.Following, rec.Posts, rec.IsBusiness,
		rec.EngagementRate, rec.AverageLikes, rec.AverageComments, rec.PostingFrequency,
		rec.AvgIntervalDays, rec.LastPostDays, rec.GrowthPotential, rec.OpportunityScore,
		string(issues), string(recs), rec.Contacted, rec.ContactedDate, rec.ResponseReceived,
		rec.ConvertedToClient, rec.ConversionDate, rec.Notes, rec.AnalyzedAt)
	if err != nil {
		return err
	}
	rec.ID, err = result.LastInsertId()
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysisSQLite(row rowScanner) (*models.AnalysisRecord, error) {
	var rec models.AnalysisRecord
	var issues, recs sql.NullString
	err := row.Scan(
		&rec.ID, &rec.Username, &rec.FullName, &rec.Followers, &rec.Following, &rec.Posts,
		&rec.IsBusiness, &rec.EngagementRate, &rec.AverageLikes, &rec.AverageComments,
		&rec.PostingFrequency, &rec.AvgIntervalDays, &rec.LastPostDays, &rec.GrowthPotential,
		&rec.OpportunityScore, &issues, &recs, &rec.Contacted, &rec.ContactedDate,
		&rec.ResponseReceived, &rec.ConvertedToClient, &rec.ConversionDate, &rec.Notes, &rec.AnalyzedAt,
	)
	if err != nil {
		return nil, err
	}
	if issues.Valid {
		json.Unmarshal([]byte(issues.String), &rec.Issues)
	}
	if recs.Valid {
		json.Unmarshal([]byte(recs.String), &rec.Recommendations)
	}
	return &rec, nil
}

func (r *SQLiteRepository) collectAnalyses(ctx context.Context, query string, args ...interface{}) ([]models.AnalysisRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysisSQLite(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) TopOpportunities(ctx context.Context, minScore float64, limit int) ([]models.AnalysisRecord, error) {
	query := `
		SELECT ` + sqliteAnalysisColumns + ` FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY username ORDER BY analyzed_at DESC, id DESC) AS rn
			FROM analyses
		) WHERE rn = 1 AND opportunity_score >= ?
		ORDER BY opportunity_score DESC, id ASC
		LIMIT ?`

	return r.collectAnalyses(ctx, query, minScore, limit)
}

func (r *SQLiteRepository) History(ctx context.Context, username string, limit int) ([]models.AnalysisRecord, error) {
	query := `
		SELECT ` + sqliteAnalysisColumns + ` FROM analyses
		WHERE username = ?
		ORDER BY analyzed_at DESC, id DESC
		LIMIT ?`

	return r.collectAnalyses(ctx, query, username, limit)
}

func (r *SQLiteRepository) DigestCandidates(ctx context.Context, minScore float64, since time.Time, limit int) ([]models.AnalysisRecord, error) {
	query := `
		SELECT ` + sqliteAnalysisColumns + ` FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY username ORDER BY analyzed_at DESC, id DESC) AS rn
			FROM analyses
		) WHERE rn = 1 AND opportunity_score >= ? AND analyzed_at >= ? AND contacted = FALSE
		ORDER BY opportunity_score DESC, id ASC
		LIMIT ?`

	return r.collectAnalyses(ctx, query, minScore, since, limit)
}

func (r *SQLiteRepository) MarkContacted(ctx context.Context, username, notes string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE analyses SET
			contacted = TRUE,
			contacted_date = ?,
			notes = COALESCE(NULLIF(?, ''), notes)
		WHERE id = (
			SELECT id FROM analyses WHERE username = ?
			ORDER BY analyzed_at DESC, id DESC LIMIT 1
		)`, now, notes, username)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (r *SQLiteRepository) MarkConverted(ctx context.Context, username, notes string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE analyses SET
			converted_to_client = TRUE,
			conversion_date = ?,
			notes = COALESCE(NULLIF(?, ''), notes)
		WHERE id = (
			SELECT id FROM analyses WHERE username = ?
			ORDER BY analyzed_at DESC, id DESC LIMIT 1
		)`, now, notes, username)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// =============================================================================
// Businesses
// =============================================================================

const sqliteBusinessColumns = `id, business_name, category, city, area, state, pincode,
	instagram_username, is_active, last_analyzed, current_score, analysis_count,
	discovered_at, last_updated`

func (r *SQLiteRepository) UpsertBusiness(ctx context.Context, b *models.Business) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO businesses (business_name, category, city, area, state, pincode,
			instagram_username, is_active, discovered_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(business_name, city) DO UPDATE SET
			category = COALESCE(NULLIF(excluded.category, ''), category),
			area = COALESCE(NULLIF(excluded.area, ''), area),
			state = COALESCE(NULLIF(excluded.state, ''), state),
			pincode = COALESCE(NULLIF(excluded.pincode, ''), pincode),
			instagram_username = COALESCE(NULLIF(excluded.instagram_username, ''), instagram_username),
			is_active = excluded.is_active,
			last_updated = excluded.last_updated`,
		b.Name, b.Category, b.City, b.Area, b.State, b.Pincode,
		b.InstagramUsername, b.IsActive, b.DiscoveredAt, b.DiscoveredAt)
	if err != nil {
		return err
	}
	return r.db.QueryRowContext(ctx,
		`SELECT id FROM businesses WHERE business_name = ? AND city = ?`,
		b.Name, b.City).Scan(&b.ID)
}

func (r *SQLiteRepository) SearchBusinesses(ctx context.Context, f models.BusinessFilter) ([]models.Business, error) {
	query := `SELECT ` + sqliteBusinessColumns + ` FROM businesses WHERE is_active = TRUE`
	var args []interface{}

	if f.City != "" {
		query += " AND city LIKE ?"
		args = append(args, "%"+f.City+"%")
	}
	if f.Area != "" {
		query += " AND area LIKE ?"
		args = append(args, "%"+f.Area+"%")
	}
	if f.Pincode != "" {
		query += " AND pincode = ?"
		args = append(args, f.Pincode)
	}
	if f.Category != "" {
		query += " AND category LIKE ?"
		args = append(args, "%"+f.Category+"%")
	}
	query += " ORDER BY business_name"

	return r.collectBusinesses(ctx, query, args...)
}

func (r *SQLiteRepository) BusinessesNeedingAnalysis(ctx context.Context, cutoff time.Time, limit int) ([]models.Business, error) {
	query := `
		SELECT ` + sqliteBusinessColumns + ` FROM businesses
		WHERE is_active = TRUE AND instagram_username <> ''
			AND (last_analyzed IS NULL OR last_analyzed < ?)
		ORDER BY last_analyzed NULLS FIRST
		LIMIT ?`

	return r.collectBusinesses(ctx, query, cutoff, limit)
}

func (r *SQLiteRepository) TouchBusinessAnalysis(ctx context.Context, username string, score float64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE businesses SET
			last_analyzed = ?,
			current_score = ?,
			analysis_count = analysis_count + 1,
			last_updated = ?
		WHERE instagram_username = ?`, now, score, now, username)
	return err
}

func (r *SQLiteRepository) collectBusinesses(ctx context.Context, query string, args ...interface{}) ([]models.Business, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var businesses []models.Business
	for rows.Next() {
		var b models.Business
		if err := rows.Scan(
			&b.ID, &b.Name, &b.Category, &b.City, &b.Area, &b.State, &b.Pincode,
			&b.InstagramUsername, &b.IsActive, &b.LastAnalyzed, &b.CurrentScore,
			&b.AnalysisCount, &b.DiscoveredAt, &b.LastUpdated,
		); err != nil {
			return nil, err
		}
		businesses = append(businesses, b)
	}
	return businesses, rows.Err()
}

// =============================================================================
// Crawl Jobs
// =============================================================================

const sqliteJobColumns = `id, name, location_city, location_area, pincode, business_category,
	frequency, min_opportunity_score, is_active, last_run, next_run, profiles_found,
	monitored, created_at, updated_at`

func (r *SQLiteRepository) SeedJob(ctx context.Context, job *models.CrawlJob) error {
	monitored, err := json.Marshal(job.Monitored)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO crawl_jobs (name, location_city, location_area, pincode, business_category,
			frequency, min_opportunity_score, is_active, monitored, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			location_city = excluded.location_city,
			location_area = excluded.location_area,
			pincode = excluded.pincode,
			business_category = excluded.business_category,
			frequency = excluded.frequency,
			min_opportunity_score = excluded.min_opportunity_score,
			is_active = excluded.is_active,
			monitored = excluded.monitored,
			updated_at = excluded.updated_at`,
		job.Name, job.LocationCity, job.LocationArea, job.Pincode, job.BusinessCategory,
		job.Frequency, job.MinOpportunityScore, job.IsActive, string(monitored),
		job.CreatedAt, job.CreatedAt)
	if err != nil {
		return err
	}
	return r.db.QueryRowContext(ctx,
		`SELECT id FROM crawl_jobs WHERE name = ?`, job.Name).Scan(&job.ID)
}

func (r *SQLiteRepository) ListActiveJobs(ctx context.Context) ([]models.CrawlJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM crawl_jobs WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.CrawlJob
	for rows.Next() {
		var job models.CrawlJob
		var monitored sql.NullString
		if err := rows.Scan(
			&job.ID, &job.Name, &job.LocationCity, &job.LocationArea, &job.Pincode,
			&job.BusinessCategory, &job.Frequency, &job.MinOpportunityScore, &job.IsActive,
			&job.LastRun, &job.NextRun, &job.ProfilesFound, &monitored,
			&job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if monitored.Valid {
			json.Unmarshal([]byte(monitored.String), &job.Monitored)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobRun(ctx context.Context, jobID int64, lastRun *time.Time, nextRun time.Time, profilesFound *int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE crawl_jobs SET
			last_run = COALESCE(?, last_run),
			next_run = ?,
			profiles_found = COALESCE(?, profiles_found),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, lastRun, nextRun, profilesFound, jobID)
	return err
}

// =============================================================================
// Stats
// =============================================================================

func (r *SQLiteRepository) Stats(ctx context.Context) (*models.RepoStats, error) {
	var s models.RepoStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM analyses),
			(SELECT COUNT(*) FROM businesses),
			(SELECT COUNT(*) FROM crawl_jobs WHERE is_active = TRUE)`).Scan(
		&s.TotalProfiles, &s.TotalAnalyses, &s.TotalBusinesses, &s.ActiveJobs)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
