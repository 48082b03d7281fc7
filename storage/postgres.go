package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gramscout/models"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	repo := &PostgresRepository{pool: pool}
	if err := repo.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return repo, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	var one int
	return r.pool.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

func (r *PostgresRepository) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		full_name TEXT DEFAULT '',
		biography TEXT DEFAULT '',
		followers INT DEFAULT 0,
		following INT DEFAULT 0,
		total_posts INT DEFAULT 0,
		is_verified BOOLEAN DEFAULT FALSE,
		is_business BOOLEAN DEFAULT FALSE,
		fingerprint TEXT DEFAULT '',
		first_crawled TIMESTAMPTZ NOT NULL,
		last_crawled TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analyses (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		full_name TEXT DEFAULT '',
		followers INT DEFAULT 0,
		following INT DEFAULT 0,
		posts INT DEFAULT 0,
		is_business BOOLEAN DEFAULT FALSE,
		engagement_rate DOUBLE PRECISION DEFAULT 0,
		avg_likes DOUBLE PRECISION DEFAULT 0,
		avg_comments DOUBLE PRECISION DEFAULT 0,
		posting_frequency TEXT DEFAULT '',
		avg_posting_interval_days DOUBLE PRECISION DEFAULT 0,
		last_post_days INT DEFAULT 0,
		growth_potential TEXT DEFAULT '',
		opportunity_score DOUBLE PRECISION DEFAULT 0,
		issues JSONB DEFAULT '[]',
		recommendations JSONB DEFAULT '[]',
		contacted BOOLEAN DEFAULT FALSE,
		contacted_date TIMESTAMPTZ,
		response_received BOOLEAN DEFAULT FALSE,
		converted_to_client BOOLEAN DEFAULT FALSE,
		conversion_date TIMESTAMPTZ,
		notes TEXT DEFAULT '',
		analyzed_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_username ON analyses(username);
	CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON analyses(analyzed_at);
	CREATE INDEX IF NOT EXISTS idx_analyses_score ON analyses(opportunity_score);

	CREATE TABLE IF NOT EXISTS businesses (
		id BIGSERIAL PRIMARY KEY,
		business_name TEXT NOT NULL,
		category TEXT DEFAULT '',
		city TEXT DEFAULT '',
		area TEXT DEFAULT '',
		state TEXT DEFAULT '',
		pincode TEXT DEFAULT '',
		instagram_username TEXT DEFAULT '',
		is_active BOOLEAN DEFAULT TRUE,
		last_analyzed TIMESTAMPTZ,
		current_score DOUBLE PRECISION,
		analysis_count INT DEFAULT 0,
		discovered_at TIMESTAMPTZ NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL,
		UNIQUE (business_name, city)
	);

	CREATE TABLE IF NOT EXISTS crawl_jobs (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		location_city TEXT DEFAULT '',
		location_area TEXT DEFAULT '',
		pincode TEXT DEFAULT '',
		business_category TEXT DEFAULT '',
		frequency TEXT DEFAULT 'weekly',
		min_opportunity_score DOUBLE PRECISION DEFAULT 5.0,
		is_active BOOLEAN DEFAULT TRUE,
		last_run TIMESTAMPTZ,
		next_run TIMESTAMPTZ,
		profiles_found INT DEFAULT 0,
		monitored JSONB DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`

	_, err := r.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Profiles
// =============================================================================

func (r *PostgresRepository) UpsertProfile(ctx context.Context, snap *models.ProfileSnapshot, fingerprint string, now time.Time) error {
	query := `
		INSERT INTO profiles (
			username, full_name, biography, followers, following, total_posts,
			is_verified, is_business, fingerprint, first_crawled, last_crawled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (username) DO UPDATE SET
			full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), profiles.full_name),
			biography = COALESCE(NULLIF(EXCLUDED.biography, ''), profiles.biography),
			followers = EXCLUDED.followers,
			following = EXCLUDED.following,
			total_posts = EXCLUDED.total_posts,
			is_verified = EXCLUDED.is_verified,
			is_business = EXCLUDED.is_business,
			fingerprint = COALESCE(NULLIF(EXCLUDED.fingerprint, ''), profiles.fingerprint),
			last_crawled = EXCLUDED.last_crawled`

	_, err := r.pool.Exec(ctx, query,
		snap.Username, snap.FullName, snap.Biography, snap.Followers, snap.Following,
		snap.TotalPosts, snap.IsVerified, snap.IsBusiness, fingerprint, now,
	)
	return err
}

func (r *PostgresRepository) GetProfile(ctx context.Context, username string) (*models.ProfileSummary, error) {
	query := `
		SELECT id, username, full_name, biography, followers, following, total_posts,
			is_verified, is_business, fingerprint, first_crawled, last_crawled
		FROM profiles WHERE username = $1`

	var p models.ProfileSummary
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&p.ID, &p.Username, &p.FullName, &p.Biography, &p.Followers, &p.Following,
		&p.TotalPosts, &p.IsVerified, &p.IsBusiness, &p.Fingerprint, &p.FirstCrawled, &p.LastCrawled,
	)
	if err == pgx.ErrNoRows {
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

const analysisColumns = `id, username, full_name, followers, following, posts, is_business,
	engagement_rate, avg_likes, avg_comments, posting_frequency, avg_posting_interval_days,
	last_post_days, growth_potential, opportunity_score, issues, recommendations,
	contacted, contacted_date, response_received, converted_to_client, conversion_date,
	notes, analyzed_at`

func (r *PostgresRepository) AppendAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	issues, err := json.Marshal(rec.Issues)
	if err != nil {
		return err
	}
	recs, err := json.Marshal(rec.Recommendations)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analyses (
			username, full_name, followers, following, posts, is_business,
			engagement_rate, avg_likes, avg_comments, posting_frequency,
			avg_posting_interval_days, last_post_days, growth_potential,
			opportunity_score, issues, recommendations, contacted, contacted_date,
			response_received, converted_to_client, conversion_date, notes, analyzed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23
		)
		RETURNING id`

	return r.pool.QueryRow(ctx, query,
		rec.Username, rec.FullName, rec.Followers, rec.Following, rec.Posts, rec.IsBusiness,
		rec.EngagementRate, rec.AverageLikes, rec.AverageComments, rec.PostingFrequency,
		rec.AvgIntervalDays, rec.LastPostDays, rec.GrowthPotential,
		rec.OpportunityScore, issues, recs, rec.Contacted, rec.ContactedDate,
		rec.ResponseReceived, rec.ConvertedToClient, rec.ConversionDate, rec.Notes, rec.AnalyzedAt,
	).Scan(&rec.ID)
}

func scanAnalysisPG(row pgx.Row) (*models.AnalysisRecord, error) {
	var rec models.AnalysisRecord
	var issues, recs []byte
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
	if len(issues) > 0 {
		json.Unmarshal(issues, &rec.Issues)
	}
	if len(recs) > 0 {
		json.Unmarshal(recs, &rec.Recommendations)
	}
	return &rec, nil
}

func (r *PostgresRepository) collectAnalyses(ctx context.Context, query string, args ...interface{}) ([]models.AnalysisRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysisPG(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// TopOpportunities returns one record per username (the latest by
// analyzed_at), filtered and ordered by score. Equal scores keep insertion
// order.
func (r *PostgresRepository) TopOpportunities(ctx context.Context, minScore float64, limit int) ([]models.AnalysisRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT DISTINCT ON (username) %s
			FROM analyses
			ORDER BY username, analyzed_at DESC, id DESC
		) latest
		WHERE opportunity_score >= $1
		ORDER BY opportunity_score DESC, id ASC
		LIMIT $2`, analysisColumns, analysisColumns)

	return r.collectAnalyses(ctx, query, minScore, limit)
}

func (r *PostgresRepository) History(ctx context.Context, username string, limit int) ([]models.AnalysisRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM analyses
		WHERE username = $1
		ORDER BY analyzed_at DESC, id DESC
		LIMIT $2`, analysisColumns)

	return r.collectAnalyses(ctx, query, username, limit)
}

// DigestCandidates returns recent, not-yet-contacted latest records at or
// above minScore, best first.
func (r *PostgresRepository) DigestCandidates(ctx context.Context, minScore float64, since time.Time, limit int) ([]models.AnalysisRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT DISTINCT ON (username) %s
			FROM analyses
			ORDER BY username, analyzed_at DESC, id DESC
		) latest
		WHERE opportunity_score >= $1 AND analyzed_at >= $2 AND NOT contacted
		ORDER BY opportunity_score DESC, id ASC
		LIMIT $3`, analysisColumns, analysisColumns)

	return r.collectAnalyses(ctx, query, minScore, since, limit)
}

func (r *PostgresRepository) MarkContacted(ctx context.Context, username, notes string, now time.Time) (bool, error) {
	query := `
		UPDATE analyses SET
			contacted = TRUE,
			contacted_date = $3,
			notes = COALESCE(NULLIF($2, ''), notes)
		WHERE id = (
			SELECT id FROM analyses WHERE username = $1
			ORDER BY analyzed_at DESC, id DESC LIMIT 1
		)`

	tag, err := r.pool.Exec(ctx, query, username, notes, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) MarkConverted(ctx context.Context, username, notes string, now time.Time) (bool, error) {
	query := `
		UPDATE analyses SET
			converted_to_client = TRUE,
			conversion_date = $3,
			notes = COALESCE(NULLIF($2, ''), notes)
		WHERE id = (
			SELECT id FROM analyses WHERE username = $1
			ORDER BY analyzed_at DESC, id DESC LIMIT 1
		)`

	tag, err := r.pool.Exec(ctx, query, username, notes, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// =============================================================================
// Businesses
// =============================================================================

const businessColumns = `id, business_name, category, city, area, state, pincode,
	instagram_username, is_active, last_analyzed, current_score, analysis_count,
	discovered_at, last_updated`

func (r *PostgresRepository) UpsertBusiness(ctx context.Context, b *models.Business) error {
	query := `
		INSERT INTO businesses (
			business_name, category, city, area, state, pincode, instagram_username,
			is_active, discovered_at, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (business_name, city) DO UPDATE SET
			category = COALESCE(NULLIF(EXCLUDED.category, ''), businesses.category),
			area = COALESCE(NULLIF(EXCLUDED.area, ''), businesses.area),
			state = COALESCE(NULLIF(EXCLUDED.state, ''), businesses.state),
			pincode = COALESCE(NULLIF(EXCLUDED.pincode, ''), businesses.pincode),
			instagram_username = COALESCE(NULLIF(EXCLUDED.instagram_username, ''), businesses.instagram_username),
			is_active = EXCLUDED.is_active,
			last_updated = EXCLUDED.last_updated
		RETURNING id`

	return r.pool.QueryRow(ctx, query,
		b.Name, b.Category, b.City, b.Area, b.State, b.Pincode, b.InstagramUsername,
		b.IsActive, b.DiscoveredAt,
	).Scan(&b.ID)
}

func (r *PostgresRepository) SearchBusinesses(ctx context.Context, f models.BusinessFilter) ([]models.Business, error) {
	query := fmt.Sprintf(`SELECT %s FROM businesses WHERE is_active = TRUE`, businessColumns)
	var args []interface{}
	n := 1

	if f.City != "" {
		query += fmt.Sprintf(" AND city ILIKE $%d", n)
		args = append(args, "%"+f.City+"%")
		n++
	}
	if f.Area != "" {
		query += fmt.Sprintf(" AND area ILIKE $%d", n)
		args = append(args, "%"+f.Area+"%")
		n++
	}
	if f.Pincode != "" {
		query += fmt.Sprintf(" AND pincode = $%d", n)
		args = append(args, f.Pincode)
		n++
	}
	if f.Category != "" {
		query += fmt.Sprintf(" AND category ILIKE $%d", n)
		args = append(args, "%"+f.Category+"%")
		n++
	}
	query += " ORDER BY business_name"

	return r.collectBusinesses(ctx, query, args...)
}

func (r *PostgresRepository) BusinessesNeedingAnalysis(ctx context.Context, cutoff time.Time, limit int) ([]models.Business, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM businesses
		WHERE is_active = TRUE AND instagram_username <> ''
			AND (last_analyzed IS NULL OR last_analyzed < $1)
		ORDER BY last_analyzed NULLS FIRST
		LIMIT $2`, businessColumns)

	return r.collectBusinesses(ctx, query, cutoff, limit)
}

func (r *PostgresRepository) TouchBusinessAnalysis(ctx context.Context, username string, score float64, now time.Time) error {
	query := `
		UPDATE businesses SET
			last_analyzed = $2,
			current_score = $3,
			analysis_count = analysis_count + 1,
			last_updated = $2
		WHERE instagram_username = $1`

	_, err := r.pool.Exec(ctx, query, username, now, score)
	return err
}

func (r *PostgresRepository) collectBusinesses(ctx context.Context, query string, args ...interface{}) ([]models.Business, error) {
	rows, err := r.pool.Query(ctx, query, args...)
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

const jobColumns = `id, name, location_city, location_area, pincode, business_category,
	frequency, min_opportunity_score, is_active, last_run, next_run, profiles_found,
	monitored, created_at, updated_at`

// SeedJob inserts or refreshes a job definition by name. Run bookkeeping
// (last_run, next_run, profiles_found) is preserved across reseeds.
func (r *PostgresRepository) SeedJob(ctx context.Context, job *models.CrawlJob) error {
	monitored, err := json.Marshal(job.Monitored)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO crawl_jobs (
			name, location_city, location_area, pincode, business_category,
			frequency, min_opportunity_score, is_active, monitored, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (name) DO UPDATE SET
			location_city = EXCLUDED.location_city,
			location_area = EXCLUDED.location_area,
			pincode = EXCLUDED.pincode,
			business_category = EXCLUDED.business_category,
			frequency = EXCLUDED.frequency,
			min_opportunity_score = EXCLUDED.min_opportunity_score,
			is_active = EXCLUDED.is_active,
			monitored = EXCLUDED.monitored,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	return r.pool.QueryRow(ctx, query,
		job.Name, job.LocationCity, job.LocationArea, job.Pincode, job.BusinessCategory,
		job.Frequency, job.MinOpportunityScore, job.IsActive, monitored, job.CreatedAt,
	).Scan(&job.ID)
}

func (r *PostgresRepository) ListActiveJobs(ctx context.Context) ([]models.CrawlJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM crawl_jobs WHERE is_active = TRUE ORDER BY id`, jobColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.CrawlJob
	for rows.Next() {
		var job models.CrawlJob
		var monitored []byte
		if err := rows.Scan(
			&job.ID, &job.Name, &job.LocationCity, &job.LocationArea, &job.Pincode,
			&job.BusinessCategory, &job.Frequency, &job.MinOpportunityScore, &job.IsActive,
			&job.LastRun, &job.NextRun, &job.ProfilesFound, &monitored,
			&job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(monitored) > 0 {
			json.Unmarshal(monitored, &job.Monitored)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJobRun advances a job's schedule. lastRun and profilesFound stay
// untouched when nil, which is how a failed run gets a retry delay without
// being recorded as completed.
func (r *PostgresRepository) UpdateJobRun(ctx context.Context, jobID int64, lastRun *time.Time, nextRun time.Time, profilesFound *int) error {
	query := `
		UPDATE crawl_jobs SET
			last_run = COALESCE($2, last_run),
			next_run = $3,
			profiles_found = COALESCE($4, profiles_found),
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, jobID, lastRun, nextRun, profilesFound)
	return err
}

// =============================================================================
// Stats
// =============================================================================

func (r *PostgresRepository) Stats(ctx context.Context) (*models.RepoStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM analyses),
			(SELECT COUNT(*) FROM businesses),
			(SELECT COUNT(*) FROM crawl_jobs WHERE is_active = TRUE)`

	var s models.RepoStats
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.TotalProfiles, &s.TotalAnalyses, &s.TotalBusinesses, &s.ActiveJobs,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
