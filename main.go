package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gramscout/cache"
	"gramscout/config"
	"gramscout/httputil"
	"gramscout/logging"
	"gramscout/models"
	"gramscout/scheduler"
	"gramscout/services"
	"gramscout/source"
	"gramscout/storage"
	"gramscout/vpn"
	"gramscout/workers"
)

var (
	analyzeHandle = flag.String("analyze", "", "Analyze one handle and exit")
	batchHandles  = flag.String("batch", "", "Analyze a comma-separated list of handles and exit")
	force         = flag.Bool("force", false, "Bypass the result cache for -analyze")
	minScore      = flag.Float64("min-score", 0, "Score filter for -batch and -opportunities")
	listTop       = flag.Bool("opportunities", false, "List top opportunities and exit")
	limit         = flag.Int("limit", 10, "Row limit for -opportunities and -history")
	historyFor    = flag.String("history", "", "Show analysis history for a handle and exit")
	contactHandle = flag.String("contact", "", "Mark a handle as contacted and exit")
	convertHandle = flag.String("convert", "", "Mark a handle as converted and exit")
	notes         = flag.String("notes", "", "Notes for -contact / -convert")
	runJobName    = flag.String("job", "", "Run one crawl job by name and exit")
	reportNow     = flag.Bool("report", false, "Generate the digest now and exit")
	healthCheck   = flag.Bool("health", false, "Print health status and exit")
	showStats     = flag.Bool("stats", false, "Print store and cache stats and exit")
	exportHandle  = flag.String("export", "", "Analyze a handle, write a JSON report and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting gramscout...")

	ctx := context.Background()

	repo, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open analysis store: %v", err)
	}
	defer repo.Close()
	log.Printf("Analysis store: %s", maskConnectionString(cfg.DatabaseURL))

	ops, err := storage.NewOpsStore(cfg.OpsDBPath)
	if err != nil {
		log.Fatalf("Failed to open ops store: %v", err)
	}
	defer ops.Close()
	log.Printf("Ops database: %s", cfg.OpsDBPath)

	clients := httputil.NewClients(&cfg.Source)
	if cfg.Source.Proxy != "" {
		log.Printf("Proxy: %s", cfg.Source.Proxy)
	}

	src := source.New(&cfg.Source, clients)
	log.Printf("Profile source: %s", src.ID())

	analysis := services.NewAnalysisService(&cfg.Analyzer, src, repo, cache.New())

	var uploader *storage.ReportUploader
	if cfg.Reports.S3Bucket != "" {
		uploader, err = storage.NewReportUploader(ctx, storage.S3Config{
			Bucket:          cfg.Reports.S3Bucket,
			Region:          cfg.Reports.S3Region,
			Endpoint:        cfg.Reports.S3Endpoint,
			AccessKeyID:     cfg.Reports.S3AccessKey,
			SecretAccessKey: cfg.Reports.S3SecretKey,
		})
		if err != nil {
			log.Printf("Warning: report uploads disabled: %v", err)
			uploader = nil
		}
	}
	digest := services.NewDigestService(&cfg.Reports, cfg.ExportDir, repo, uploader)

	seedStores(ctx, cfg, repo)

	sched := scheduler.New(cfg, repo, ops, analysis, digest)
	if cfg.ExpressVPN.AutoConnect {
		sched.SetVPN(vpn.New(&vpn.Config{
			ActivationCode: cfg.ExpressVPN.ActivationCode,
			AutoConnect:    cfg.ExpressVPN.AutoConnect,
			Region:         cfg.ExpressVPN.Region,
		}))
		log.Println("VPN rotation enabled")
	}

	if runOneShot(ctx, cfg, analysis, digest, sched) {
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	} else {
		log.Println("Scheduler disabled, daemon will only serve heartbeats")
	}

	heartbeat := workers.NewHeartbeatWorker(ops, "scheduler")
	go heartbeat.Run(ctx, 30*time.Second)
	log.Println("Heartbeat worker started")

	backlog := workers.NewBacklogWorker(repo, analysis, cfg.Analyzer.MinOpportunityScore, cfg.Scheduler.RequestInterval)
	backlog.SetLogger(workers.OpsLogger(ops))
	go backlog.Run(ctx, 7*24*time.Hour, 10, time.Hour)
	log.Println("Backlog worker started")

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	if cfg.Scheduler.Enabled {
		sched.Stop()
	}
	log.Println("Goodbye!")
}

// runOneShot dispatches the one-shot flags. Returns false when no flag asked
// for anything, which means daemon mode.
func runOneShot(ctx context.Context, cfg *config.Config, analysis *services.AnalysisService, digest *services.DigestService, sched *scheduler.Scheduler) bool {
	switch {
	case *analyzeHandle != "":
		rec, err := analysis.AnalyzeProfile(ctx, *analyzeHandle, *force)
		if err != nil {
			log.Fatalf("Analyze failed: %v", err)
		}
		printJSON(rec)
	case *batchHandles != "":
		handles := splitHandles(*batchHandles)
		if len(handles) == 0 {
			log.Fatalf("No handles in -batch")
		}
		printJSON(analysis.AnalyzeBatch(ctx, handles, *minScore))
	case *listTop:
		threshold := *minScore
		if threshold == 0 {
			threshold = cfg.Analyzer.MinOpportunityScore
		}
		recs, err := analysis.TopOpportunities(ctx, threshold, *limit)
		if err != nil {
			log.Fatalf("Opportunities query failed: %v", err)
		}
		printJSON(recs)
	case *historyFor != "":
		recs, err := analysis.History(ctx, *historyFor, *limit)
		if err != nil {
			log.Fatalf("History query failed: %v", err)
		}
		printJSON(recs)
	case *contactHandle != "":
		found, err := analysis.MarkContacted(ctx, *contactHandle, *notes)
		if err != nil {
			log.Fatalf("Mark contacted failed: %v", err)
		}
		if !found {
			log.Fatalf("No analyses for %s", *contactHandle)
		}
		log.Printf("Marked %s contacted", *contactHandle)
	case *convertHandle != "":
		found, err := analysis.MarkConverted(ctx, *convertHandle, *notes)
		if err != nil {
			log.Fatalf("Mark converted failed: %v", err)
		}
		if !found {
			log.Fatalf("No analyses for %s", *convertHandle)
		}
		log.Printf("Marked %s converted", *convertHandle)
	case *runJobName != "":
		if err := sched.RunJobNow(ctx, *runJobName); err != nil {
			log.Fatalf("Job failed: %v", err)
		}
	case *reportNow:
		report, err := digest.Generate(ctx, time.Now())
		if err != nil {
			log.Fatalf("Digest failed: %v", err)
		}
		printJSON(report)
	case *healthCheck:
		printJSON(analysis.Health(ctx))
	case *showStats:
		stats, err := analysis.Stats(ctx)
		if err != nil {
			log.Fatalf("Stats query failed: %v", err)
		}
		printJSON(struct {
			Store *models.RepoStats   `json:"store"`
			Cache services.CacheStats `json:"cache"`
		}{stats, analysis.CacheStats()})
	case *exportHandle != "":
		path, err := analysis.ExportAnalysis(ctx, *exportHandle, cfg.ExportDir)
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		log.Printf("Report written to %s", path)
	default:
		return false
	}
	return true
}

// seedStores upserts YAML job and business definitions so edits take effect
// on restart without touching run bookkeeping.
func seedStores(ctx context.Context, cfg *config.Config, repo storage.Repository) {
	jobSeeds, err := config.LoadJobSeeds(cfg.JobsDir)
	if err != nil {
		log.Printf("Warning: job seeds unavailable: %v", err)
	}
	for _, seed := range jobSeeds {
		job := &models.CrawlJob{
			Name:                seed.Name,
			Frequency:           seed.Frequency,
			IsActive:            seed.Active,
			MinOpportunityScore: seed.MinOpportunityScore,
			LocationCity:        seed.LocationCity,
			LocationArea:        seed.LocationArea,
			Pincode:             seed.Pincode,
			BusinessCategory:    seed.BusinessCategory,
			Monitored:           seed.Monitor,
		}
		if err := repo.SeedJob(ctx, job); err != nil {
			log.Printf("Warning: failed to seed job %s: %v", seed.Name, err)
		}
	}
	if len(jobSeeds) > 0 {
		log.Printf("Seeded %d crawl jobs", len(jobSeeds))
	}

	businessSeeds, err := config.LoadBusinessSeeds(cfg.BusinessesDir)
	if err != nil {
		log.Printf("Warning: business seeds unavailable: %v", err)
	}
	for i := range businessSeeds {
		seed := businessSeeds[i]
		b := &models.Business{
			Name:              seed.Name,
			Category:          seed.Category,
			City:              seed.City,
			Area:              seed.Area,
			State:             seed.State,
			Pincode:           seed.Pincode,
			InstagramUsername: seed.InstagramUsername,
			IsActive:          true,
		}
		if err := repo.UpsertBusiness(ctx, b); err != nil {
			log.Printf("Warning: failed to seed business %s: %v", seed.Name, err)
		}
	}
	if len(businessSeeds) > 0 {
		log.Printf("Seeded %d businesses", len(businessSeeds))
	}
}

func splitHandles(raw string) []string {
	var handles []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			handles = append(handles, trimmed)
		}
	}
	return handles
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Encode failed: %v", err)
	}
	fmt.Println(string(data))
}

// maskConnectionString masks the password in a connection string for logging
func maskConnectionString(connStr string) string {
	start := strings.Index(connStr, "://")
	if start < 0 {
		return connStr
	}
	start += 3

	rest := connStr[start:]
	atIdx := strings.Index(rest, "@")
	if atIdx < 0 {
		return connStr
	}
	colonIdx := strings.Index(rest[:atIdx], ":")
	if colonIdx < 0 {
		return connStr
	}
	return connStr[:start+colonIdx+1] + "****" + rest[atIdx:]
}
