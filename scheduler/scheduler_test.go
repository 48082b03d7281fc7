package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gramscout/cache"
	"gramscout/config"
	"gramscout/models"
	"gramscout/services"
	"gramscout/source"
	"gramscout/storage"
)

type fakeSource struct {
	mu       sync.Mutex
	profiles map[string]*models.ProfileSnapshot
	errs     map[string]error
	fetches  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		profiles: map[string]*models.ProfileSnapshot{},
		errs:     map[string]error{},
		fetches:  map[string]int{},
	}
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

func (f *fakeSource) fetchCount(username string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[username]
}

// jobRunUpdate records one UpdateJobRun call so tests can inspect the
// scheduling bookkeeping the scheduler writes back.
type jobRunUpdate struct {
	jobID         int64
	lastRun       *time.Time
	nextRun       time.Time
	profilesFound *int
}

type fakeRepo struct {
	mu         sync.Mutex
	jobs       []models.CrawlJob
	businesses []models.Business
	searchErr  error
	updates    []jobRunUpdate
	candidates []models.AnalysisRecord
}

func (r *fakeRepo) UpsertProfile(ctx context.Context, snap *models.ProfileSnapshot, fingerprint string, now time.Time) error {
	return nil
}

func (r *fakeRepo) GetProfile(ctx context.Context, username string) (*models.ProfileSummary, error) {
	return nil, nil
}

func (r *fakeRepo) AppendAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	rec.ID = 1
	return nil
}

func (r *fakeRepo) TopOpportunities(ctx context.Context, minScore float64, limit int) ([]models.AnalysisRecord, error) {
	return nil, nil
}

func (r *fakeRepo) History(ctx context.Context, username string, limit int) ([]models.AnalysisRecord, error) {
	return nil, nil
}

func (r *fakeRepo) DigestCandidates(ctx context.Context, minScore float64, since time.Time, limit int) ([]models.AnalysisRecord, error) {
	return r.candidates, nil
}

func (r *fakeRepo) MarkContacted(ctx context.Context, username, notes string, now time.Time) (bool, error) {
	return false, nil
}

func (r *fakeRepo) MarkConverted(ctx context.Context, username, notes string, now time.Time) (bool, error) {
	return false, nil
}

func (r *fakeRepo) UpsertBusiness(ctx context.Context, b *models.Business) error { return nil }

func (r *fakeRepo) SearchBusinesses(ctx context.Context, f models.BusinessFilter) ([]models.Business, error) {
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	return r.businesses, nil
}

func (r *fakeRepo) BusinessesNeedingAnalysis(ctx context.Context, cutoff time.Time, limit int) ([]models.Business, error) {
	return nil, nil
}

func (r *fakeRepo) TouchBusinessAnalysis(ctx context.Context, username string, score float64, now time.Time) error {
	return nil
}

func (r *fakeRepo) SeedJob(ctx context.Context, job *models.CrawlJob) error { return nil }

func (r *fakeRepo) ListActiveJobs(ctx context.Context) ([]models.CrawlJob, error) {
	return r.jobs, nil
}

func (r *fakeRepo) UpdateJobRun(ctx context.Context, jobID int64, lastRun *time.Time, nextRun time.Time, profilesFound *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, jobRunUpdate{jobID, lastRun, nextRun, profilesFound})
	return nil
}

func (r *fakeRepo) Stats(ctx context.Context) (*models.RepoStats, error) {
	return &models.RepoStats{}, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }

func (r *fakeRepo) Close() {}

func (r *fakeRepo) lastUpdate(t *testing.T) jobRunUpdate {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		t.Fatalf("expected an UpdateJobRun call")
	}
	return r.updates[len(r.updates)-1]
}

func weakSnapshot(username string, now time.Time) *models.ProfileSnapshot {
	return &models.ProfileSnapshot{
		Username:   username,
		Followers:  5000,
		IsBusiness: true,
		Posts: []models.PostSample{
			{Likes: 20, Comments: 1, TakenAt: now.Add(-10 * 24 * time.Hour)},
			{Likes: 22, Comments: 1, TakenAt: now.Add(-20 * 24 * time.Hour)},
			{Likes: 18, Comments: 1, TakenAt: now.Add(-30 * 24 * time.Hour)},
		},
	}
}

func healthySnapshot(username string, now time.Time) *models.ProfileSnapshot {
	return &models.ProfileSnapshot{
		Username:  username,
		Followers: 800,
		Posts: []models.PostSample{
			{Likes: 50, Comments: 10, TakenAt: now.Add(-24 * time.Hour)},
			{Likes: 48, Comments: 12, TakenAt: now.Add(-48 * time.Hour)},
			{Likes: 52, Comments: 9, TakenAt: now.Add(-72 * time.Hour)},
		},
	}
}

func newTestScheduler(t *testing.T, src source.Source, repo *fakeRepo) *Scheduler {
	t.Helper()
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{
			CheckInterval:    time.Hour,
			RequestInterval:  time.Millisecond,
			DailyCrawlTime:   "09:00",
			WeeklyReportDay:  "monday",
			WeeklyReportTime: "08:00",
		},
		Analyzer: config.AnalyzerConfig{
			CacheTTL:            24 * time.Hour,
			MaxConcurrent:       3,
			BatchLimit:          50,
			MinOpportunityScore: 5.0,
		},
		Reports: config.ReportsConfig{DigestMinScore: 6.0, DigestRangeDays: 7},
	}

	ops, err := storage.NewOpsStore(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("open ops store: %v", err)
	}
	t.Cleanup(func() { ops.Close() })

	analysis := services.NewAnalysisService(&cfg.Analyzer, src, repo, cache.New())
	digest := services.NewDigestService(&cfg.Reports, t.TempDir(), repo, nil)
	return New(cfg, repo, ops, analysis, digest)
}

func latestRun(t *testing.T, ops *storage.OpsStore) models.JobRun {
	t.Helper()
	runs, err := ops.RecentRuns(1)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) == 0 {
		t.Fatalf("expected a run record")
	}
	return runs[0]
}

func TestRunJob_CompletesAndSchedulesNext(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.profiles["weak_lead"] = weakSnapshot("weak_lead", now)
	src.profiles["healthy_lead"] = healthySnapshot("healthy_lead", now)
	repo := &fakeRepo{}
	s := newTestScheduler(t, src, repo)

	job := &models.CrawlJob{
		ID:                  7,
		Name:                "jaipur-cafes",
		Frequency:           models.FreqWeekly,
		MinOpportunityScore: 6.0,
		Monitored:           []string{"@Weak_Lead", "healthy_lead"},
	}
	s.runJob(context.Background(), job)

	upd := repo.lastUpdate(t)
	if upd.jobID != 7 {
		t.Fatalf("expected update for job 7, got %d", upd.jobID)
	}
	if upd.lastRun == nil {
		t.Fatalf("expected last run to be set")
	}
	wantNext := upd.lastRun.Add(7 * 24 * time.Hour)
	if !upd.nextRun.Equal(wantNext) {
		t.Fatalf("expected next run %v, got %v", wantNext, upd.nextRun)
	}
	if upd.profilesFound == nil || *upd.profilesFound != 2 {
		t.Fatalf("expected 2 profiles found, got %v", upd.profilesFound)
	}

	run := latestRun(t, s.ops)
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if run.TargetsFound != 2 || run.Analyzed != 2 {
		t.Fatalf("expected 2 targets analyzed, got targets=%d analyzed=%d", run.TargetsFound, run.Analyzed)
	}
	if run.Opportunities != 1 {
		t.Fatalf("expected 1 opportunity above 6.0, got %d", run.Opportunities)
	}
	if run.FinishedAt == nil {
		t.Fatalf("expected finished timestamp")
	}
}

func TestRunJob_PerProfileErrorsDoNotFailRun(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.profiles["weak_lead"] = weakSnapshot("weak_lead", now)
	src.errs["down_lead"] = &source.ConnectionError{Op: "profile fetch", Err: errors.New("timeout")}
	repo := &fakeRepo{}
	s := newTestScheduler(t, src, repo)

	job := &models.CrawlJob{
		ID:                  1,
		Name:                "mixed",
		Frequency:           models.FreqDaily,
		MinOpportunityScore: 6.0,
		Monitored:           []string{"down_lead", "weak_lead"},
	}
	s.runJob(context.Background(), job)

	run := latestRun(t, s.ops)
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if run.ErrorsCount != 1 {
		t.Fatalf("expected 1 error counted, got %d", run.ErrorsCount)
	}
	if run.Analyzed != 1 {
		t.Fatalf("expected 1 analyzed, got %d", run.Analyzed)
	}
}

func TestRunJob_TargetFailureBacksOff(t *testing.T) {
	repo := &fakeRepo{searchErr: errors.New("db gone")}
	s := newTestScheduler(t, newFakeSource(), repo)

	before := time.Now()
	job := &models.CrawlJob{ID: 3, Name: "filtered", Frequency: models.FreqWeekly}
	s.runJob(context.Background(), job)

	upd := repo.lastUpdate(t)
	if upd.lastRun != nil {
		t.Fatalf("expected last run untouched on failure, got %v", upd.lastRun)
	}
	if upd.profilesFound != nil {
		t.Fatalf("expected profiles found untouched on failure")
	}
	delay := upd.nextRun.Sub(before)
	if delay < 9*time.Minute || delay > 11*time.Minute {
		t.Fatalf("expected retry in ~10m, got %s", delay)
	}

	run := latestRun(t, s.ops)
	if run.Status != models.RunStatusFailed {
		t.Fatalf("expected failed run, got %s", run.Status)
	}
	if run.ErrorMessage == "" {
		t.Fatalf("expected error message on failed run")
	}
}

func TestResolveTargets_MonitoredSkipsInvalid(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestScheduler(t, newFakeSource(), repo)

	job := &models.CrawlJob{
		Name:      "monitored",
		Monitored: []string{"@Cafe_Tokri", "not a handle!", "https://instagram.com/second"},
	}
	targets, err := s.resolveTargets(context.Background(), job)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"cafe_tokri", "second"}
	if len(targets) != len(want) {
		t.Fatalf("expected %d targets, got %v", len(want), targets)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("expected target %q at %d, got %q", want[i], i, targets[i])
		}
	}
}

func TestResolveTargets_BusinessFilterSkipsHandleless(t *testing.T) {
	repo := &fakeRepo{
		businesses: []models.Business{
			{Name: "Cafe Tokri", InstagramUsername: "cafe_tokri"},
			{Name: "No Handle Bakery"},
		},
	}
	s := newTestScheduler(t, newFakeSource(), repo)

	job := &models.CrawlJob{Name: "filtered", LocationCity: "Jaipur"}
	targets, err := s.resolveTargets(context.Background(), job)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(targets) != 1 || targets[0] != "cafe_tokri" {
		t.Fatalf("expected [cafe_tokri], got %v", targets)
	}
}

func TestCheckJobs_RunsOnlyDue(t *testing.T) {
	now := time.Now()
	future := now.Add(48 * time.Hour)
	src := newFakeSource()
	src.profiles["due_lead"] = weakSnapshot("due_lead", now)
	src.profiles["idle_lead"] = weakSnapshot("idle_lead", now)
	repo := &fakeRepo{
		jobs: []models.CrawlJob{
			{ID: 1, Name: "due", Frequency: models.FreqDaily, Monitored: []string{"due_lead"}},
			{ID: 2, Name: "idle", Frequency: models.FreqDaily, NextRun: &future, Monitored: []string{"idle_lead"}},
		},
	}
	s := newTestScheduler(t, src, repo)

	s.checkJobs(context.Background())

	if src.fetchCount("due_lead") != 1 {
		t.Fatalf("expected due job to run, got %d fetches", src.fetchCount("due_lead"))
	}
	if src.fetchCount("idle_lead") != 0 {
		t.Fatalf("expected idle job to wait, got %d fetches", src.fetchCount("idle_lead"))
	}
	if len(repo.updates) != 1 || repo.updates[0].jobID != 1 {
		t.Fatalf("expected one update for job 1, got %+v", repo.updates)
	}
}

func TestRunSweep_ForcesRefetchAndDedups(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.profiles["cafe_tokri"] = weakSnapshot("cafe_tokri", now)
	src.profiles["second"] = healthySnapshot("second", now)
	repo := &fakeRepo{
		jobs: []models.CrawlJob{
			{ID: 1, Name: "a", Monitored: []string{"cafe_tokri", "second"}},
			{ID: 2, Name: "b", Monitored: []string{"@Cafe_Tokri"}},
		},
	}
	s := newTestScheduler(t, src, repo)

	// Prime the cache; the sweep must bypass it.
	if _, err := s.analysis.AnalyzeProfile(context.Background(), "cafe_tokri", false); err != nil {
		t.Fatalf("prime: %v", err)
	}

	s.runSweep(context.Background())

	if src.fetchCount("cafe_tokri") != 2 {
		t.Fatalf("expected sweep to refetch cached handle, got %d fetches", src.fetchCount("cafe_tokri"))
	}
	if src.fetchCount("second") != 1 {
		t.Fatalf("expected 1 fetch for second, got %d", src.fetchCount("second"))
	}

	run := latestRun(t, s.ops)
	if run.JobName != sweepRunName {
		t.Fatalf("expected sweep run, got %s", run.JobName)
	}
	if run.TargetsFound != 2 {
		t.Fatalf("expected 2 deduped targets, got %d", run.TargetsFound)
	}
	if run.Opportunities != 2 {
		t.Fatalf("expected both handles at or above 5.0, got %d", run.Opportunities)
	}
}

func TestHandleCommand(t *testing.T) {
	now := time.Now()
	src := newFakeSource()
	src.profiles["cafe_tokri"] = weakSnapshot("cafe_tokri", now)
	repo := &fakeRepo{}
	s := newTestScheduler(t, src, repo)

	if err := s.ops.SendCommand(models.CmdPause, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.ops.SendCommand(models.CmdAnalyzeNow, models.CommandParams{Username: "cafe_tokri"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	s.pollCommands(context.Background())

	if !s.paused {
		t.Fatalf("expected pause command to set paused")
	}
	if src.fetchCount("cafe_tokri") != 1 {
		t.Fatalf("expected analyze_now to fetch, got %d", src.fetchCount("cafe_tokri"))
	}

	pending, err := s.ops.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected all commands processed, %d left", len(pending))
	}

	if err := s.ops.SendCommand(models.CmdResume, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	s.pollCommands(context.Background())
	if s.paused {
		t.Fatalf("expected resume command to clear paused")
	}
}

func TestHandleCommand_UnknownJob(t *testing.T) {
	s := newTestScheduler(t, newFakeSource(), &fakeRepo{})

	cmd := &models.Command{Command: models.CmdRunJob, Params: []byte(`{"job":"nope"}`)}
	if err := s.handleCommand(context.Background(), cmd); err == nil {
		t.Fatalf("expected error for unknown job")
	}
}

func TestDailySpec(t *testing.T) {
	tests := []struct {
		clock   string
		want    string
		wantErr bool
	}{
		{"09:00", "0 9 * * *", false},
		{"23:59", "59 23 * * *", false},
		{"7:30", "30 7 * * *", false},
		{"24:00", "", true},
		{"09:60", "", true},
		{"морнинг", "", true},
		{"0900", "", true},
	}
	for _, tt := range tests {
		got, err := dailySpec(tt.clock)
		if tt.wantErr {
			if err == nil {
				t.Errorf("dailySpec(%q): expected error", tt.clock)
			}
			continue
		}
		if err != nil {
			t.Errorf("dailySpec(%q): %v", tt.clock, err)
			continue
		}
		if got != tt.want {
			t.Errorf("dailySpec(%q) = %q, want %q", tt.clock, got, tt.want)
		}
	}
}

func TestWeeklySpec(t *testing.T) {
	got, err := weeklySpec("Monday", "08:00")
	if err != nil {
		t.Fatalf("weeklySpec: %v", err)
	}
	if got != "0 8 * * 1" {
		t.Fatalf("expected 0 8 * * 1, got %q", got)
	}

	got, err = weeklySpec("sunday", "18:30")
	if err != nil {
		t.Fatalf("weeklySpec: %v", err)
	}
	if got != "30 18 * * 0" {
		t.Fatalf("expected 30 18 * * 0, got %q", got)
	}

	if _, err := weeklySpec("funday", "08:00"); err == nil {
		t.Fatalf("expected error for unknown weekday")
	}
}
