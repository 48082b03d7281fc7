package workers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gramscout/cache"
	"gramscout/config"
	"gramscout/models"
	"gramscout/services"
	"gramscout/source"
)

type fakeSource struct {
	mu       sync.Mutex
	profiles map[string]*models.ProfileSnapshot
	errs     map[string]error
	fetches  map[string]int
}

func (f *fakeSource) ID() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, username string) (*models.ProfileSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[username]++
	if err, ok := f.errs[username]; ok {
		return nil, err
	}
	snap, ok := f.profiles[username]
	if !ok {
		return nil, source.ErrNotFound
	}
	return snap, nil
}

type fakeRepo struct {
	stale []models.Business
}

func (r *fakeRepo) UpsertProfile(ctx context.Context, snap *models.ProfileSnapshot, fingerprint string, now time.Time) error {
	return nil
}

func (r *fakeRepo) GetProfile(ctx context.Context, username string) (*models.ProfileSummary, error) {
	return nil, nil
}

func (r *fakeRepo) AppendAnalysis(ctx context.Context, rec *models.AnalysisRecord) error { return nil }

func (r *fakeRepo) TopOpportunities(ctx context.Context, minScore float64, limit int) ([]models.AnalysisRecord, error) {
	return nil, nil
}

func (r *fakeRepo) History(ctx context.Context, username string, limit int) ([]models.AnalysisRecord, error) {
	return nil, nil
}

func (r *fakeRepo) DigestCandidates(ctx context.Context, minScore float64, since time.Time, limit int) ([]models.AnalysisRecord, error) {
	return nil, nil
}

func (r *fakeRepo) MarkContacted(ctx context.Context, username, notes string, now time.Time) (bool, error) {
	return false, nil
}

func (r *fakeRepo) MarkConverted(ctx context.Context, username, notes string, now time.Time) (bool, error) {
	return false, nil
}

func (r *fakeRepo) UpsertBusiness(ctx context.Context, b *models.Business) error { return nil }

func (r *fakeRepo) SearchBusinesses(ctx context.Context, f models.BusinessFilter) ([]models.Business, error) {
	return nil, nil
}

func (r *fakeRepo) BusinessesNeedingAnalysis(ctx context.Context, cutoff time.Time, limit int) ([]models.Business, error) {
	return r.stale, nil
}

func (r *fakeRepo) TouchBusinessAnalysis(ctx context.Context, username string, score float64, now time.Time) error {
	return nil
}

func (r *fakeRepo) SeedJob(ctx context.Context, job *models.CrawlJob) error { return nil }

func (r *fakeRepo) ListActiveJobs(ctx context.Context) ([]models.CrawlJob, error) { return nil, nil }

func (r *fakeRepo) UpdateJobRun(ctx context.Context, jobID int64, lastRun *time.Time, nextRun time.Time, profilesFound *int) error {
	return nil
}

func (r *fakeRepo) Stats(ctx context.Context) (*models.RepoStats, error) {
	return &models.RepoStats{}, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }

func (r *fakeRepo) Close() {}

func TestBacklogProcessBatch(t *testing.T) {
	now := time.Now()
	src := &fakeSource{
		profiles: map[string]*models.ProfileSnapshot{
			"cafe_tokri": {
				Username:   "cafe_tokri",
				Followers:  5000,
				IsBusiness: true,
				Posts: []models.PostSample{
					{Likes: 20, Comments: 1, TakenAt: now.Add(-10 * 24 * time.Hour)},
					{Likes: 22, Comments: 1, TakenAt: now.Add(-20 * 24 * time.Hour)},
					{Likes: 18, Comments: 1, TakenAt: now.Add(-30 * 24 * time.Hour)},
				},
			},
		},
		errs:    map[string]error{"down_cafe": errors.New("timeout")},
		fetches: map[string]int{},
	}
	repo := &fakeRepo{
		stale: []models.Business{
			{Name: "Cafe Tokri", InstagramUsername: "cafe_tokri"},
			{Name: "No Handle Bakery"},
			{Name: "Down Cafe", InstagramUsername: "down_cafe"},
		},
	}
	analysis := services.NewAnalysisService(&config.AnalyzerConfig{
		CacheTTL:      time.Hour,
		MaxConcurrent: 1,
		BatchLimit:    50,
	}, src, repo, cache.New())

	var mu sync.Mutex
	var logged []string
	w := NewBacklogWorker(repo, analysis, 6.0, time.Millisecond)
	w.SetLogger(func(level models.LogLevel, source, message string) {
		mu.Lock()
		defer mu.Unlock()
		logged = append(logged, message)
	})

	w.processBatch(context.Background(), 7*24*time.Hour, 10)

	if src.fetches["cafe_tokri"] != 1 {
		t.Fatalf("expected 1 fetch for cafe_tokri, got %d", src.fetches["cafe_tokri"])
	}
	if len(logged) != 1 {
		t.Fatalf("expected 1 summary log, got %v", logged)
	}
	if !strings.Contains(logged[0], "1 analyzed, 1 opportunities") {
		t.Fatalf("unexpected summary %q", logged[0])
	}
	if !strings.Contains(logged[0], "1 failed") {
		t.Fatalf("expected failure count in summary, got %q", logged[0])
	}
}

func TestBacklogEmptyBatchIsQuiet(t *testing.T) {
	repo := &fakeRepo{}
	analysis := services.NewAnalysisService(&config.AnalyzerConfig{
		CacheTTL:      time.Hour,
		MaxConcurrent: 1,
		BatchLimit:    50,
	}, &fakeSource{profiles: map[string]*models.ProfileSnapshot{}, fetches: map[string]int{}}, repo, cache.New())

	w := NewBacklogWorker(repo, analysis, 6.0, time.Millisecond)
	called := false
	w.SetLogger(func(level models.LogLevel, source, message string) { called = true })

	w.processBatch(context.Background(), 7*24*time.Hour, 10)
	if called {
		t.Fatalf("expected no summary for empty batch")
	}
}
