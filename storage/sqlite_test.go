package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gramscout/models"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo
}

func testRecord(username string, score float64, at time.Time) *models.AnalysisRecord {
	return &models.AnalysisRecord{
		Username:         username,
		FullName:         "Test Account",
		Followers:        1200,
		Following:        300,
		Posts:            40,
		EngagementRate:   1.25,
		AverageLikes:     12.0,
		AverageComments:  3.0,
		PostingFrequency: models.FrequencyWeekly,
		AvgIntervalDays:  6.5,
		LastPostDays:     3,
		GrowthPotential:  models.GrowthMedium,
		OpportunityScore: score,
		Issues:           []string{"Low engagement rate - needs content strategy improvement"},
		Recommendations:  []string{"Post consistently 3-4 times per week"},
		AnalyzedAt:       at,
	}
}

func TestUpsertProfile_KeepsNamesOnEmptyUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	snap := &models.ProfileSnapshot{
		Username:   "cafe_tokri",
		FullName:   "Cafe Tokri",
		Biography:  "Coffee and books",
		Followers:  800,
		IsBusiness: true,
	}
	if err := repo.UpsertProfile(ctx, snap, "abc123", now); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Fallback sources return bare counts without names.
	bare := &models.ProfileSnapshot{Username: "cafe_tokri", Followers: 950}
	if err := repo.UpsertProfile(ctx, bare, "", now.Add(time.Hour)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	p, err := repo.GetProfile(ctx, "cafe_tokri")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p == nil {
		t.Fatalf("expected profile, got nil")
	}
	if p.FullName != "Cafe Tokri" {
		t.Fatalf("expected full name preserved, got %q", p.FullName)
	}
	if p.Followers != 950 {
		t.Fatalf("expected followers 950, got %d", p.Followers)
	}
	if p.Fingerprint != "abc123" {
		t.Fatalf("expected fingerprint preserved, got %q", p.Fingerprint)
	}
	if !p.LastCrawled.After(p.FirstCrawled) {
		t.Fatalf("expected last_crawled to advance")
	}
}

func TestGetProfile_MissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	p, err := repo.GetProfile(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil for missing profile, got %+v", p)
	}
}

func TestTopOpportunities_LatestPerUsername(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Older analysis scored high, newer one low: only the newer row counts.
	if err := repo.AppendAnalysis(ctx, testRecord("improved_cafe", 8.5, base)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.AppendAnalysis(ctx, testRecord("improved_cafe", 3.0, base.Add(48*time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.AppendAnalysis(ctx, testRecord("quiet_salon", 7.0, base.Add(time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.AppendAnalysis(ctx, testRecord("busy_gym", 6.0, base.Add(2*time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}

	top, err := repo.TopOpportunities(ctx, 5.0, 10)
	if err != nil {
		t.Fatalf("top opportunities: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 records, got %d", len(top))
	}
	if top[0].Username != "quiet_salon" || top[0].OpportunityScore != 7.0 {
		t.Fatalf("expected quiet_salon 7.0 first, got %s %.1f", top[0].Username, top[0].OpportunityScore)
	}
	if top[1].Username != "busy_gym" {
		t.Fatalf("expected busy_gym second, got %s", top[1].Username)
	}
	if len(top[0].Issues) != 1 {
		t.Fatalf("expected issues to round-trip, got %v", top[0].Issues)
	}
}

func TestTopOpportunities_EqualScoresKeepInsertionOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, name := range []string{"first_in", "second_in", "third_in"} {
		if err := repo.AppendAnalysis(ctx, testRecord(name, 6.5, base)); err != nil {
			t.Fatalf("append %s: %v", name, err)
		}
	}

	top, err := repo.TopOpportunities(ctx, 1.0, 10)
	if err != nil {
		t.Fatalf("top opportunities: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 records, got %d", len(top))
	}
	for i, want := range []string{"first_in", "second_in", "third_in"} {
		if top[i].Username != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, top[i].Username)
		}
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		rec := testRecord("cafe_tokri", 5.0+float64(i), base.Add(time.Duration(i)*24*time.Hour))
		if err := repo.AppendAnalysis(ctx, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history, err := repo.History(ctx, "cafe_tokri", 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 records, got %d", len(history))
	}
	if history[0].OpportunityScore != 8.0 {
		t.Fatalf("expected newest first with score 8.0, got %.1f", history[0].OpportunityScore)
	}
	if history[2].OpportunityScore != 6.0 {
		t.Fatalf("expected score 6.0 last, got %.1f", history[2].OpportunityScore)
	}
}

func TestMarkContacted_UpdatesLatestRowOnly(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.AppendAnalysis(ctx, testRecord("cafe_tokri", 6.0, base)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.AppendAnalysis(ctx, testRecord("cafe_tokri", 7.0, base.Add(24*time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}

	ok, err := repo.MarkContacted(ctx, "cafe_tokri", "sent intro DM", base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("mark contacted: %v", err)
	}
	if !ok {
		t.Fatalf("expected update to report success")
	}

	history, err := repo.History(ctx, "cafe_tokri", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !history[0].Contacted {
		t.Fatalf("expected latest row contacted")
	}
	if history[0].Notes != "sent intro DM" {
		t.Fatalf("expected notes on latest row, got %q", history[0].Notes)
	}
	if history[0].ContactedDate == nil {
		t.Fatalf("expected contacted_date set")
	}
	if history[1].Contacted {
		t.Fatalf("expected older row untouched")
	}
}

func TestMarkContacted_UnknownUsername(t *testing.T) {
	repo := newTestRepo(t)

	ok, err := repo.MarkContacted(context.Background(), "ghost_account", "", time.Now())
	if err != nil {
		t.Fatalf("mark contacted: %v", err)
	}
	if ok {
		t.Fatalf("expected false for unknown username")
	}
}

func TestMarkConverted_PreservesNotesOnEmpty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rec := testRecord("cafe_tokri", 6.0, base)
	rec.Notes = "warm lead"
	if err := repo.AppendAnalysis(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	ok, err := repo.MarkConverted(ctx, "cafe_tokri", "", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("mark converted: %v", err)
	}
	if !ok {
		t.Fatalf("expected update to report success")
	}

	history, err := repo.History(ctx, "cafe_tokri", 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !history[0].ConvertedToClient {
		t.Fatalf("expected converted flag set")
	}
	if history[0].Notes != "warm lead" {
		t.Fatalf("expected existing notes preserved, got %q", history[0].Notes)
	}
}

func TestDigestCandidates_FiltersContactedAndStale(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.AppendAnalysis(ctx, testRecord("fresh_lead", 8.0, base)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.AppendAnalysis(ctx, testRecord("old_lead", 9.0, base.Add(-14*24*time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.AppendAnalysis(ctx, testRecord("contacted_lead", 8.5, base)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := repo.MarkContacted(ctx, "contacted_lead", "", base); err != nil {
		t.Fatalf("mark contacted: %v", err)
	}
	if err := repo.AppendAnalysis(ctx, testRecord("weak_lead", 3.0, base)); err != nil {
		t.Fatalf("append: %v", err)
	}

	candidates, err := repo.DigestCandidates(ctx, 6.0, base.Add(-7*24*time.Hour), 20)
	if err != nil {
		t.Fatalf("digest candidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Username != "fresh_lead" {
		t.Fatalf("expected fresh_lead, got %s", candidates[0].Username)
	}
}

func TestBusinessSearchAndTouch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	businesses := []models.Business{
		{Name: "Cafe Tokri", Category: "cafe", City: "Pune", Area: "Aundh", Pincode: "411007", InstagramUsername: "cafe_tokri", IsActive: true, DiscoveredAt: now},
		{Name: "Iron Temple Gym", Category: "gym", City: "Pune", Area: "Baner", Pincode: "411045", InstagramUsername: "iron_temple", IsActive: true, DiscoveredAt: now},
		{Name: "Blue Door Cafe", Category: "cafe", City: "Mumbai", Area: "Bandra", Pincode: "400050", InstagramUsername: "", IsActive: true, DiscoveredAt: now},
	}
	for i := range businesses {
		if err := repo.UpsertBusiness(ctx, &businesses[i]); err != nil {
			t.Fatalf("upsert %s: %v", businesses[i].Name, err)
		}
		if businesses[i].ID == 0 {
			t.Fatalf("expected id assigned for %s", businesses[i].Name)
		}
	}

	cafes, err := repo.SearchBusinesses(ctx, models.BusinessFilter{City: "pune", Category: "cafe"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(cafes) != 1 || cafes[0].Name != "Cafe Tokri" {
		t.Fatalf("expected Cafe Tokri only, got %+v", cafes)
	}

	pending, err := repo.BusinessesNeedingAnalysis(ctx, now, 10)
	if err != nil {
		t.Fatalf("needing analysis: %v", err)
	}
	// Blue Door has no handle and is excluded.
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	if err := repo.TouchBusinessAnalysis(ctx, "cafe_tokri", 7.5, now); err != nil {
		t.Fatalf("touch: %v", err)
	}
	pending, err = repo.BusinessesNeedingAnalysis(ctx, now, 10)
	if err != nil {
		t.Fatalf("needing analysis: %v", err)
	}
	if len(pending) != 1 || pending[0].InstagramUsername != "iron_temple" {
		t.Fatalf("expected iron_temple pending, got %+v", pending)
	}

	cafes, err = repo.SearchBusinesses(ctx, models.BusinessFilter{Pincode: "411007"})
	if err != nil {
		t.Fatalf("search by pincode: %v", err)
	}
	if len(cafes) != 1 {
		t.Fatalf("expected 1 match by pincode, got %d", len(cafes))
	}
	if cafes[0].CurrentScore == nil || *cafes[0].CurrentScore != 7.5 {
		t.Fatalf("expected current score 7.5, got %v", cafes[0].CurrentScore)
	}
	if cafes[0].AnalysisCount != 1 {
		t.Fatalf("expected analysis count 1, got %d", cafes[0].AnalysisCount)
	}
}

func TestSeedJob_PreservesRunBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	job := &models.CrawlJob{
		Name:                "pune-cafes",
		LocationCity:        "Pune",
		BusinessCategory:    "cafe",
		Frequency:           models.FreqWeekly,
		MinOpportunityScore: 5.0,
		IsActive:            true,
		Monitored:           []string{"cafe_tokri"},
		CreatedAt:           now,
	}
	if err := repo.SeedJob(ctx, job); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if job.ID == 0 {
		t.Fatalf("expected job id assigned")
	}

	lastRun := now.Add(time.Hour)
	found := 4
	if err := repo.UpdateJobRun(ctx, job.ID, &lastRun, lastRun.Add(7*24*time.Hour), &found); err != nil {
		t.Fatalf("update run: %v", err)
	}

	// Reseeding from config must not wipe the run history.
	reseed := &models.CrawlJob{
		Name:                "pune-cafes",
		LocationCity:        "Pune",
		BusinessCategory:    "cafe",
		Frequency:           models.FreqWeekly,
		MinOpportunityScore: 6.5,
		IsActive:            true,
		Monitored:           []string{"cafe_tokri", "blue_door"},
		CreatedAt:           now.Add(48 * time.Hour),
	}
	if err := repo.SeedJob(ctx, reseed); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if reseed.ID != job.ID {
		t.Fatalf("expected same job id, got %d and %d", job.ID, reseed.ID)
	}

	jobs, err := repo.ListActiveJobs(ctx)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	got := jobs[0]
	if got.MinOpportunityScore != 6.5 {
		t.Fatalf("expected threshold updated to 6.5, got %.1f", got.MinOpportunityScore)
	}
	if len(got.Monitored) != 2 {
		t.Fatalf("expected 2 monitored handles, got %v", got.Monitored)
	}
	if got.LastRun == nil || !got.LastRun.Equal(lastRun) {
		t.Fatalf("expected last_run preserved, got %v", got.LastRun)
	}
	if got.ProfilesFound != 4 {
		t.Fatalf("expected profiles_found preserved, got %d", got.ProfilesFound)
	}
}

func TestUpdateJobRun_NilKeepsLastRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	job := &models.CrawlJob{Name: "retry-job", Frequency: models.FreqDaily, IsActive: true, CreatedAt: now}
	if err := repo.SeedJob(ctx, job); err != nil {
		t.Fatalf("seed: %v", err)
	}

	lastRun := now
	found := 7
	if err := repo.UpdateJobRun(ctx, job.ID, &lastRun, now.Add(24*time.Hour), &found); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// A failed run pushes next_run without claiming a completion.
	retryAt := now.Add(10 * time.Minute)
	if err := repo.UpdateJobRun(ctx, job.ID, nil, retryAt, nil); err != nil {
		t.Fatalf("backoff update: %v", err)
	}

	jobs, err := repo.ListActiveJobs(ctx)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	got := jobs[0]
	if got.LastRun == nil || !got.LastRun.Equal(lastRun) {
		t.Fatalf("expected last_run unchanged, got %v", got.LastRun)
	}
	if got.NextRun == nil || !got.NextRun.Equal(retryAt) {
		t.Fatalf("expected next_run %v, got %v", retryAt, got.NextRun)
	}
	if got.ProfilesFound != 7 {
		t.Fatalf("expected profiles_found unchanged, got %d", got.ProfilesFound)
	}
}

func TestStats_Counts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.UpsertProfile(ctx, &models.ProfileSnapshot{Username: "a"}, "", now); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	if err := repo.AppendAnalysis(ctx, testRecord("a", 5.0, now)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.AppendAnalysis(ctx, testRecord("a", 6.0, now.Add(time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}
	inactive := &models.CrawlJob{Name: "paused", Frequency: models.FreqWeekly, IsActive: false, CreatedAt: now}
	if err := repo.SeedJob(ctx, inactive); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalProfiles != 1 {
		t.Fatalf("expected 1 profile, got %d", stats.TotalProfiles)
	}
	if stats.TotalAnalyses != 2 {
		t.Fatalf("expected 2 analyses, got %d", stats.TotalAnalyses)
	}
	if stats.ActiveJobs != 0 {
		t.Fatalf("expected 0 active jobs, got %d", stats.ActiveJobs)
	}
}
