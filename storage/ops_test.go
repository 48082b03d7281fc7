package storage

import (
	"path/filepath"
	"testing"
	"time"

	"gramscout/models"
)

func newTestOps(t *testing.T) *OpsStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ops.db")
	store, err := NewOpsStore(path)
	if err != nil {
		t.Fatalf("open ops store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := newTestOps(t)
	started := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	run := &models.JobRun{
		JobName:   "pune-cafes",
		StartedAt: started,
		Status:    models.RunStatusRunning,
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.ID == "" {
		t.Fatalf("expected run id assigned")
	}

	finished := started.Add(3 * time.Minute)
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	run.TargetsFound = 5
	run.Analyzed = 4
	run.Opportunities = 2
	run.ErrorsCount = 1
	if err := store.UpdateRun(run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.ID != run.ID {
		t.Fatalf("expected run id %s, got %s", run.ID, got.ID)
	}
	if got.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Analyzed != 4 || got.Opportunities != 2 {
		t.Fatalf("expected counters 4/2, got %d/%d", got.Analyzed, got.Opportunities)
	}
	if got.FinishedAt == nil {
		t.Fatalf("expected finished_at set")
	}
}

func TestJobStatsAggregation(t *testing.T) {
	store := newTestOps(t)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	completed := base.Add(2 * time.Minute)
	first := &models.JobRun{JobName: "pune-cafes", StartedAt: base, Status: models.RunStatusRunning}
	if err := store.CreateRun(first); err != nil {
		t.Fatalf("create run: %v", err)
	}
	first.FinishedAt = &completed
	first.Status = models.RunStatusCompleted
	first.Analyzed = 3
	first.Opportunities = 1
	if err := store.UpdateRun(first); err != nil {
		t.Fatalf("update run: %v", err)
	}

	second := &models.JobRun{JobName: "pune-cafes", StartedAt: base.Add(24 * time.Hour), Status: models.RunStatusRunning}
	if err := store.CreateRun(second); err != nil {
		t.Fatalf("create run: %v", err)
	}
	failedAt := second.StartedAt.Add(time.Minute)
	second.FinishedAt = &failedAt
	second.Status = models.RunStatusFailed
	second.ErrorMessage = "profile fetch: rate limited"
	if err := store.UpdateRun(second); err != nil {
		t.Fatalf("update run: %v", err)
	}

	if err := store.UpdateJobStats("pune-cafes"); err != nil {
		t.Fatalf("update stats: %v", err)
	}
	stats, err := store.GetJobStats("pune-cafes")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats == nil {
		t.Fatalf("expected stats row")
	}
	if stats.TotalRuns != 2 {
		t.Fatalf("expected 2 runs, got %d", stats.TotalRuns)
	}
	if stats.TotalAnalyzed != 3 {
		t.Fatalf("expected 3 analyzed, got %d", stats.TotalAnalyzed)
	}
	if stats.SuccessRate != 0.5 {
		t.Fatalf("expected success rate 0.5, got %.2f", stats.SuccessRate)
	}
	if stats.LastRunStatus != string(models.RunStatusFailed) {
		t.Fatalf("expected failed as last status, got %s", stats.LastRunStatus)
	}
}

func TestGetJobStats_MissingReturnsNil(t *testing.T) {
	store := newTestOps(t)

	stats, err := store.GetJobStats("never-ran")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected nil for missing job, got %+v", stats)
	}
}

func TestCommandQueue(t *testing.T) {
	store := newTestOps(t)

	if err := store.SendCommand(models.CmdAnalyzeNow, models.CommandParams{Username: "cafe_tokri"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := store.SendCommand(models.CmdClearCache, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	cmds, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 pending commands, got %d", len(cmds))
	}

	params, err := store.ParseCommandParams(&cmds[0])
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	if params.Username != "cafe_tokri" {
		t.Fatalf("expected username param, got %q", params.Username)
	}

	// nil params serialize as JSON null and parse to empty.
	params, err = store.ParseCommandParams(&cmds[1])
	if err != nil {
		t.Fatalf("parse nil params: %v", err)
	}
	if params.Username != "" || params.Job != "" {
		t.Fatalf("expected empty params, got %+v", params)
	}

	if err := store.MarkCommandProcessed(cmds[0].ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	cmds, err = store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending after processing: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected 1 pending command, got %d", len(cmds))
	}
	if cmds[0].Command != models.CmdClearCache {
		t.Fatalf("expected clear_cache pending, got %s", cmds[0].Command)
	}
}

func TestHeartbeat(t *testing.T) {
	store := newTestOps(t)

	last, err := store.LastHeartbeat("scheduler")
	if err != nil {
		t.Fatalf("last heartbeat: %v", err)
	}
	if !last.IsZero() {
		t.Fatalf("expected zero time before first beat, got %v", last)
	}

	if err := store.Heartbeat("scheduler"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	last, err = store.LastHeartbeat("scheduler")
	if err != nil {
		t.Fatalf("last heartbeat: %v", err)
	}
	if last.IsZero() {
		t.Fatalf("expected heartbeat recorded")
	}

	if err := store.Heartbeat("scheduler"); err != nil {
		t.Fatalf("second heartbeat: %v", err)
	}
}
