package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gramscout/analyzer"
	"gramscout/cache"
	"gramscout/config"
	"gramscout/identity"
	"gramscout/models"
	"gramscout/source"
	"gramscout/storage"
)

// AnalysisService runs the fetch-compute-assess-persist pipeline and exposes
// the read views over stored analyses. It is shared by the CLI one-shots and
// the scheduler.
type AnalysisService struct {
	cfg    *config.AnalyzerConfig
	source source.Source
	repo   storage.Repository
	cache  *cache.Cache
}

// NewAnalysisService creates a new AnalysisService
func NewAnalysisService(cfg *config.AnalyzerConfig, src source.Source, repo storage.Repository, c *cache.Cache) *AnalysisService {
	return &AnalysisService{
		cfg:    cfg,
		source: src,
		repo:   repo,
		cache:  c,
	}
}

// AnalyzeProfile analyzes one handle. Results younger than the cache TTL are
// returned without a fetch unless force is set. The returned record is cached
// even when persistence fails; storage problems are logged, not propagated.
func (s *AnalysisService) AnalyzeProfile(ctx context.Context, rawHandle string, force bool) (*models.AnalysisRecord, error) {
	username, err := identity.NormalizeHandle(rawHandle)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !force {
		if rec, computedAt, ok := s.cache.Get(username); ok && now.Sub(computedAt) < s.cfg.CacheTTL {
			return rec, nil
		}
	}

	snap, err := s.source.Fetch(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", username, err)
	}

	rec, err := analyzer.Analyze(snap, now)
	if err != nil {
		return nil, err
	}

	s.cache.Put(username, rec, now)
	s.persist(ctx, snap, rec, now)
	return rec, nil
}

func (s *AnalysisService) persist(ctx context.Context, snap *models.ProfileSnapshot, rec *models.AnalysisRecord, now time.Time) {
	fingerprint := identity.Fingerprint(snap)
	if err := s.repo.UpsertProfile(ctx, snap, fingerprint, now); err != nil {
		log.Printf("Warning: failed to upsert profile %s: %v", snap.Username, err)
	}
	if err := s.repo.AppendAnalysis(ctx, rec); err != nil {
		log.Printf("Warning: failed to store analysis for %s: %v", snap.Username, err)
	}
	if err := s.repo.TouchBusinessAnalysis(ctx, snap.Username, rec.OpportunityScore, now); err != nil {
		log.Printf("Warning: failed to update business row for %s: %v", snap.Username, err)
	}
}

// BatchError is one failed handle inside a batch response
type BatchError struct {
	Username string `json:"username"`
	Error    string `json:"error"`
}

// BatchResult aggregates a batch run. Successful counts the records that
// cleared the score threshold, not every record produced.
type BatchResult struct {
	Requested  int                     `json:"requested"`
	Successful int                     `json:"successful"`
	Failed     []BatchError            `json:"failed,omitempty"`
	Records    []models.AnalysisRecord `json:"analyses"`
}

// AnalyzeBatch analyzes up to BatchLimit handles on a bounded worker pool.
// Per-handle failures land in the result, never abort the batch. Records at
// or above minScore come back sorted best first.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, rawHandles []string, minScore float64) *BatchResult {
	if len(rawHandles) > s.cfg.BatchLimit {
		rawHandles = rawHandles[:s.cfg.BatchLimit]
	}

	result := &BatchResult{Requested: len(rawHandles)}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var records []models.AnalysisRecord

	workers := s.cfg.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	handles := make(chan string)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for handle := range handles {
				rec, err := s.AnalyzeProfile(ctx, handle, false)
				mu.Lock()
				if err != nil {
					result.Failed = append(result.Failed, BatchError{Username: handle, Error: err.Error()})
				} else {
					records = append(records, *rec)
				}
				mu.Unlock()
			}
		}()
	}

	for _, handle := range rawHandles {
		handles <- handle
	}
	close(handles)
	wg.Wait()

	for _, rec := range records {
		if rec.OpportunityScore >= minScore {
			result.Records = append(result.Records, rec)
		}
	}
	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].OpportunityScore > result.Records[j].OpportunityScore
	})
	result.Successful = len(result.Records)

	return result
}

// =============================================================================
// Read views
// =============================================================================

func (s *AnalysisService) TopOpportunities(ctx context.Context, minScore float64, limit int) ([]models.AnalysisRecord, error) {
	return s.repo.TopOpportunities(ctx, minScore, limit)
}

func (s *AnalysisService) History(ctx context.Context, rawHandle string, limit int) ([]models.AnalysisRecord, error) {
	username, err := identity.NormalizeHandle(rawHandle)
	if err != nil {
		return nil, err
	}
	return s.repo.History(ctx, username, limit)
}

func (s *AnalysisService) MarkContacted(ctx context.Context, rawHandle, notes string) (bool, error) {
	username, err := identity.NormalizeHandle(rawHandle)
	if err != nil {
		return false, err
	}
	return s.repo.MarkContacted(ctx, username, notes, time.Now())
}

func (s *AnalysisService) MarkConverted(ctx context.Context, rawHandle, notes string) (bool, error) {
	username, err := identity.NormalizeHandle(rawHandle)
	if err != nil {
		return false, err
	}
	return s.repo.MarkConverted(ctx, username, notes, time.Now())
}

// =============================================================================
// Cache, health, stats
// =============================================================================

func (s *AnalysisService) ClearCache() int {
	return s.cache.Clear()
}

// CacheStats reports cache contents with the payload size converted to MB
type CacheStats struct {
	CachedProfiles int      `json:"cached_profiles"`
	Profiles       []string `json:"profiles"`
	TotalSizeMB    float64  `json:"total_size_mb"`
}

func (s *AnalysisService) CacheStats() CacheStats {
	stats := s.cache.Stats()
	mb := float64(stats.SizeBytes) / (1024 * 1024)
	return CacheStats{
		CachedProfiles: stats.Entries,
		Profiles:       stats.Identifiers,
		TotalSizeMB:    math.Round(mb*100) / 100,
	}
}

// HealthStatus is the liveness summary for the CLI probe and heartbeat worker
type HealthStatus struct {
	Status            string `json:"status"`
	DatabaseConnected bool   `json:"database_connected"`
	CacheSize         int    `json:"cache_size"`
}

func (s *AnalysisService) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		CacheSize: s.cache.Stats().Entries,
	}
	if err := s.repo.Ping(ctx); err != nil {
		log.Printf("Warning: database ping failed: %v", err)
		status.Status = "degraded"
	} else {
		status.DatabaseConnected = true
	}
	return status
}

func (s *AnalysisService) Stats(ctx context.Context) (*models.RepoStats, error) {
	return s.repo.Stats(ctx)
}

// =============================================================================
// Export
// =============================================================================

// ExportAnalysis writes one analysis as indented JSON under dir and returns
// the file path. The analysis itself goes through the normal cached pipeline.
func (s *AnalysisService) ExportAnalysis(ctx context.Context, rawHandle, dir string) (string, error) {
	rec, err := s.AnalyzeProfile(ctx, rawHandle, false)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s_analysis_%s.json", rec.Username, time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
