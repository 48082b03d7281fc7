// Package storage persists profiles, analyses, businesses and crawl jobs.
// Two interchangeable backends exist: Postgres for server deployments and
// SQLite for single-machine use. A separate ops store (always SQLite) records
// run history, logs and control commands.
package storage

import (
	"context"
	"strings"
	"time"

	"gramscout/models"
)

// Repository is the analysis store contract. Both backends implement it with
// identical semantics: lookups return (nil, nil) when nothing matches, and
// "latest per username" always means newest analyzed_at with id as the
// tie-break.
type Repository interface {
	UpsertProfile(ctx context.Context, snap *models.ProfileSnapshot, fingerprint string, now time.Time) error
	GetProfile(ctx context.Context, username string) (*models.ProfileSummary, error)

	AppendAnalysis(ctx context.Context, rec *models.AnalysisRecord) error
	TopOpportunities(ctx context.Context, minScore float64, limit int) ([]models.AnalysisRecord, error)
	History(ctx context.Context, username string, limit int) ([]models.AnalysisRecord, error)
	DigestCandidates(ctx context.Context, minScore float64, since time.Time, limit int) ([]models.AnalysisRecord, error)
	MarkContacted(ctx context.Context, username, notes string, now time.Time) (bool, error)
	MarkConverted(ctx context.Context, username, notes string, now time.Time) (bool, error)

	UpsertBusiness(ctx context.Context, b *models.Business) error
	SearchBusinesses(ctx context.Context, f models.BusinessFilter) ([]models.Business, error)
	BusinessesNeedingAnalysis(ctx context.Context, cutoff time.Time, limit int) ([]models.Business, error)
	TouchBusinessAnalysis(ctx context.Context, username string, score float64, now time.Time) error

	SeedJob(ctx context.Context, job *models.CrawlJob) error
	ListActiveJobs(ctx context.Context) ([]models.CrawlJob, error)
	UpdateJobRun(ctx context.Context, jobID int64, lastRun *time.Time, nextRun time.Time, profilesFound *int) error

	Stats(ctx context.Context) (*models.RepoStats, error)
	Ping(ctx context.Context) error
	Close()
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
)

// Open selects a backend from the connection string: postgres:// and
// postgresql:// URLs get the pool-backed store, anything else is treated as
// a SQLite file path.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return NewPostgresRepository(ctx, databaseURL)
	}
	return NewSQLiteRepository(databaseURL)
}
