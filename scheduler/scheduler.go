// Package scheduler drives the recurring work: the due-job ticker, the
// fixed-time cron entries (daily sweep, weekly digest) and the command queue
// written by the TUI. All scheduled analyses run sequentially on one control
// goroutine; only the interactive batch path fans out.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"gramscout/analyzer"
	"gramscout/config"
	"gramscout/identity"
	"gramscout/models"
	"gramscout/ratelimit"
	"gramscout/services"
	"gramscout/storage"
	"gramscout/vpn"
)

const (
	commandPollInterval = 2 * time.Second
	failureBackoff      = 10 * time.Minute
	sweepRunName        = "daily-sweep"
)

type Scheduler struct {
	cfg      *config.Config
	repo     storage.Repository
	ops      *storage.OpsStore
	analysis *services.AnalysisService
	digest   *services.DigestService
	vpn      *vpn.Client

	cron     *cron.Cron
	stopCh   chan struct{}
	sweepCh  chan struct{}
	reportCh chan struct{}
	paused   bool
}

func New(cfg *config.Config, repo storage.Repository, ops *storage.OpsStore, analysis *services.AnalysisService, digest *services.DigestService) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		repo:     repo,
		ops:      ops,
		analysis: analysis,
		digest:   digest,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
		sweepCh:  make(chan struct{}, 1),
		reportCh: make(chan struct{}, 1),
	}
}

// SetVPN enables location rotation before each job run
func (s *Scheduler) SetVPN(v *vpn.Client) {
	s.vpn = v
}

func (s *Scheduler) Start(ctx context.Context) error {
	daily, err := dailySpec(s.cfg.Scheduler.DailyCrawlTime)
	if err != nil {
		return fmt.Errorf("daily crawl time: %w", err)
	}
	weekly, err := weeklySpec(s.cfg.Scheduler.WeeklyReportDay, s.cfg.Scheduler.WeeklyReportTime)
	if err != nil {
		return fmt.Errorf("weekly report time: %w", err)
	}

	// Cron fires on its own goroutine; hand the work to the control loop so
	// scheduled analyses never interleave.
	if _, err := s.cron.AddFunc(daily, func() { s.signal(s.sweepCh) }); err != nil {
		return fmt.Errorf("register daily sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(weekly, func() { s.signal(s.reportCh) }); err != nil {
		return fmt.Errorf("register weekly digest: %w", err)
	}
	s.cron.Start()

	log.Printf("Scheduler started: check every %s, sweep %q, digest %q",
		s.cfg.Scheduler.CheckInterval, daily, weekly)

	go s.loop(ctx)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	checkTicker := time.NewTicker(s.cfg.Scheduler.CheckInterval)
	defer checkTicker.Stop()
	cmdTicker := time.NewTicker(commandPollInterval)
	defer cmdTicker.Stop()

	// Catch up on anything that came due while the daemon was down.
	s.checkJobs(ctx)

	for {
		select {
		case <-checkTicker.C:
			if !s.paused {
				s.checkJobs(ctx)
			}
		case <-cmdTicker.C:
			s.pollCommands(ctx)
		case <-s.sweepCh:
			if !s.paused {
				s.runSweep(ctx)
			}
		case <-s.reportCh:
			s.runReport(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// =============================================================================
// Job runs
// =============================================================================

func (s *Scheduler) checkJobs(ctx context.Context) {
	jobs, err := s.repo.ListActiveJobs(ctx)
	if err != nil {
		log.Printf("Error listing jobs: %v", err)
		return
	}

	now := time.Now()
	for i := range jobs {
		if !jobs[i].Due(now) {
			continue
		}
		s.runJob(ctx, &jobs[i])
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *models.CrawlJob) {
	if s.vpn != nil {
		if err := s.vpn.Rotate(ctx); err != nil {
			log.Printf("Warning: VPN rotation failed: %v", err)
		}
	}

	run := &models.JobRun{JobName: job.Name, StartedAt: time.Now(), Status: models.RunStatusRunning}
	if err := s.ops.CreateRun(run); err != nil {
		log.Printf("Warning: failed to create run record: %v", err)
	}
	s.log(run, models.LogLevelInfo, fmt.Sprintf("Starting job %s", job.Name))

	targets, err := s.resolveTargets(ctx, job)
	if err != nil {
		s.failRun(ctx, job, run, fmt.Errorf("resolve targets: %w", err))
		return
	}
	run.TargetsFound = len(targets)
	if len(targets) == 0 {
		s.log(run, models.LogLevelWarn, fmt.Sprintf("Job %s matched no targets", job.Name))
	}

	limiter := ratelimit.New(s.cfg.Scheduler.RequestInterval)
	analyzed := 0
	opportunities := 0

	for _, username := range targets {
		select {
		case <-s.stopCh:
			s.failRun(ctx, job, run, errors.New("interrupted by shutdown"))
			return
		default:
		}

		if err := limiter.Wait(ctx); err != nil {
			s.failRun(ctx, job, run, err)
			return
		}

		rec, err := s.analysis.AnalyzeProfile(ctx, username, false)
		if err != nil {
			run.ErrorsCount++
			if errors.Is(err, analyzer.ErrInsufficientData) {
				s.log(run, models.LogLevelWarn, fmt.Sprintf("Skipping %s: insufficient data", username))
			} else {
				s.log(run, models.LogLevelError, fmt.Sprintf("Analyze %s: %v", username, err))
			}
			continue
		}

		analyzed++
		if rec.OpportunityScore >= job.MinOpportunityScore {
			opportunities++
			s.log(run, models.LogLevelInfo,
				fmt.Sprintf("Opportunity: %s scored %.1f", username, rec.OpportunityScore))
		}
	}

	now := time.Now()
	next := now.Add(job.Period())
	found := analyzed
	if err := s.repo.UpdateJobRun(ctx, job.ID, &now, next, &found); err != nil {
		log.Printf("Warning: failed to update job schedule: %v", err)
	}

	run.Analyzed = analyzed
	run.Opportunities = opportunities
	s.finishRun(run, models.RunStatusCompleted, "")
	s.log(run, models.LogLevelInfo,
		fmt.Sprintf("Job %s completed: %d targets, %d analyzed, %d opportunities",
			job.Name, run.TargetsFound, analyzed, opportunities))
}

// resolveTargets picks the job's handles: the explicit monitored list when
// present, otherwise stored businesses matching the job's location filter.
func (s *Scheduler) resolveTargets(ctx context.Context, job *models.CrawlJob) ([]string, error) {
	if len(job.Monitored) > 0 {
		var targets []string
		for _, raw := range job.Monitored {
			username, err := identity.NormalizeHandle(raw)
			if err != nil {
				log.Printf("Warning: job %s: skipping invalid handle %q", job.Name, raw)
				continue
			}
			targets = append(targets, username)
		}
		return targets, nil
	}

	filter := models.BusinessFilter{
		City:     job.LocationCity,
		Area:     job.LocationArea,
		Pincode:  job.Pincode,
		Category: job.BusinessCategory,
	}
	businesses, err := s.repo.SearchBusinesses(ctx, filter)
	if err != nil {
		return nil, err
	}

	var targets []string
	for _, b := range businesses {
		if b.InstagramUsername == "" {
			continue
		}
		targets = append(targets, b.InstagramUsername)
	}
	return targets, nil
}

// failRun records a whole-run failure and schedules a retry instead of
// pushing the job out a full period.
func (s *Scheduler) failRun(ctx context.Context, job *models.CrawlJob, run *models.JobRun, cause error) {
	s.log(run, models.LogLevelError, fmt.Sprintf("Job %s failed: %v", job.Name, cause))
	if err := s.repo.UpdateJobRun(ctx, job.ID, nil, time.Now().Add(failureBackoff), nil); err != nil {
		log.Printf("Warning: failed to schedule retry: %v", err)
	}
	s.finishRun(run, models.RunStatusFailed, cause.Error())
}

func (s *Scheduler) finishRun(run *models.JobRun, status models.RunStatus, errMsg string) {
	now := time.Now()
	run.FinishedAt = &now
	run.Status = status
	run.ErrorMessage = errMsg
	if err := s.ops.UpdateRun(run); err != nil {
		log.Printf("Warning: failed to update run record: %v", err)
	}
	if err := s.ops.UpdateJobStats(run.JobName); err != nil {
		log.Printf("Warning: failed to update job stats: %v", err)
	}
}

func (s *Scheduler) log(run *models.JobRun, level models.LogLevel, message string) {
	log.Printf("[%s] %s", level, message)
	var runID *string
	if run.ID != "" {
		runID = &run.ID
	}
	if err := s.ops.Log(runID, level, message, run.JobName); err != nil {
		log.Printf("Warning: failed to mirror log: %v", err)
	}
}

// =============================================================================
// Daily sweep and weekly digest
// =============================================================================

// runSweep re-analyzes the union of all monitored handles, bypassing the
// cache so every handle gets a fresh record for the day.
func (s *Scheduler) runSweep(ctx context.Context) {
	jobs, err := s.repo.ListActiveJobs(ctx)
	if err != nil {
		log.Printf("Error listing jobs for sweep: %v", err)
		return
	}

	seen := map[string]bool{}
	var targets []string
	for _, job := range jobs {
		for _, raw := range job.Monitored {
			username, err := identity.NormalizeHandle(raw)
			if err != nil {
				continue
			}
			if !seen[username] {
				seen[username] = true
				targets = append(targets, username)
			}
		}
	}

	run := &models.JobRun{JobName: sweepRunName, StartedAt: time.Now(), Status: models.RunStatusRunning}
	if err := s.ops.CreateRun(run); err != nil {
		log.Printf("Warning: failed to create sweep run record: %v", err)
	}
	run.TargetsFound = len(targets)
	s.log(run, models.LogLevelInfo, fmt.Sprintf("Daily sweep: %d handles", len(targets)))

	limiter := ratelimit.New(s.cfg.Scheduler.RequestInterval)
	for _, username := range targets {
		select {
		case <-s.stopCh:
			s.finishRun(run, models.RunStatusFailed, "interrupted by shutdown")
			return
		default:
		}
		if err := limiter.Wait(ctx); err != nil {
			s.finishRun(run, models.RunStatusFailed, err.Error())
			return
		}

		rec, err := s.analysis.AnalyzeProfile(ctx, username, true)
		if err != nil {
			run.ErrorsCount++
			s.log(run, models.LogLevelWarn, fmt.Sprintf("Sweep %s: %v", username, err))
			continue
		}
		run.Analyzed++
		if rec.OpportunityScore >= s.cfg.Analyzer.MinOpportunityScore {
			run.Opportunities++
		}
	}

	s.finishRun(run, models.RunStatusCompleted, "")
	s.log(run, models.LogLevelInfo,
		fmt.Sprintf("Sweep completed: %d analyzed, %d opportunities", run.Analyzed, run.Opportunities))
}

func (s *Scheduler) runReport(ctx context.Context) {
	report, err := s.digest.Generate(ctx, time.Now())
	if err != nil {
		log.Printf("Error generating digest: %v", err)
		s.ops.Log(nil, models.LogLevelError, fmt.Sprintf("Digest failed: %v", err), "")
		return
	}
	msg := fmt.Sprintf("Digest %s: %d candidates, %d rendered", report.ID, report.Candidates, len(report.Leads))
	log.Println(msg)
	s.ops.Log(nil, models.LogLevelInfo, msg, "")
}

// =============================================================================
// Command queue
// =============================================================================

func (s *Scheduler) pollCommands(ctx context.Context) {
	cmds, err := s.ops.GetPendingCommands()
	if err != nil {
		log.Printf("Error getting commands: %v", err)
		return
	}

	for i := range cmds {
		log.Printf("Processing command: %s", cmds[i].Command)
		if err := s.handleCommand(ctx, &cmds[i]); err != nil {
			log.Printf("Command error: %v", err)
		}
		if err := s.ops.MarkCommandProcessed(cmds[i].ID); err != nil {
			log.Printf("Error marking command processed: %v", err)
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := s.ops.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case models.CmdAnalyzeNow:
		if params.Username == "" {
			return errors.New("analyze_now requires a username")
		}
		rec, err := s.analysis.AnalyzeProfile(ctx, params.Username, true)
		if err != nil {
			return err
		}
		log.Printf("Analyzed %s: score %.1f", rec.Username, rec.OpportunityScore)
		return nil
	case models.CmdRunJob:
		job, err := s.findJob(ctx, params.Job)
		if err != nil {
			return err
		}
		s.runJob(ctx, job)
		return nil
	case models.CmdSweepNow:
		s.runSweep(ctx)
		return nil
	case models.CmdReportNow:
		s.runReport(ctx)
		return nil
	case models.CmdClearCache:
		n := s.analysis.ClearCache()
		log.Printf("Cache cleared: %d entries", n)
		return nil
	case models.CmdPause:
		s.paused = true
		log.Println("Scheduler paused")
		return nil
	case models.CmdResume:
		s.paused = false
		log.Println("Scheduler resumed")
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

// RunJobNow runs one job by name immediately, outside its schedule.
func (s *Scheduler) RunJobNow(ctx context.Context, name string) error {
	job, err := s.findJob(ctx, name)
	if err != nil {
		return err
	}
	s.runJob(ctx, job)
	return nil
}

func (s *Scheduler) findJob(ctx context.Context, name string) (*models.CrawlJob, error) {
	if name == "" {
		return nil, errors.New("run_job requires a job name")
	}
	jobs, err := s.repo.ListActiveJobs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].Name == name {
			return &jobs[i], nil
		}
	}
	return nil, fmt.Errorf("unknown job: %s", name)
}

// =============================================================================
// Cron specs
// =============================================================================

var dayNumbers = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

func dailySpec(clock string) (string, error) {
	h, m, err := parseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func weeklySpec(day, clock string) (string, error) {
	h, m, err := parseClock(clock)
	if err != nil {
		return "", err
	}
	dow, ok := dayNumbers[strings.ToLower(day)]
	if !ok {
		return "", fmt.Errorf("unknown weekday %q", day)
	}
	return fmt.Sprintf("%d %d * * %d", m, h, dow), nil
}

func parseClock(clock string) (int, int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", clock)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", clock)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return h, m, nil
}
