package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"gramscout/models"
	"gramscout/ratelimit"
	"gramscout/services"
	"gramscout/storage"
)

// BacklogWorker re-analyzes seeded businesses that no crawl job has visited
// recently: rows never analyzed, or whose last analysis is older than the
// stale cutoff. It trails the scheduler rather than replacing it.
type BacklogWorker struct {
	repo            storage.Repository
	analysis        *services.AnalysisService
	minScore        float64
	requestInterval time.Duration
	triggerCh       chan struct{}
	logFunc         LogFunc
}

func NewBacklogWorker(repo storage.Repository, analysis *services.AnalysisService, minScore float64, requestInterval time.Duration) *BacklogWorker {
	return &BacklogWorker{
		repo:            repo,
		analysis:        analysis,
		minScore:        minScore,
		requestInterval: requestInterval,
		triggerCh:       make(chan struct{}, 1),
		logFunc:         NoOpLogger,
	}
}

func (w *BacklogWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *BacklogWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the backlog worker loop
func (w *BacklogWorker) Run(ctx context.Context, staleDuration time.Duration, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Backlog worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, staleDuration, batchSize)
		case <-w.triggerCh:
			log.Println("Backlog worker triggered manually")
			w.processBatch(ctx, staleDuration, batchSize)
		}
	}
}

func (w *BacklogWorker) processBatch(ctx context.Context, staleDuration time.Duration, batchSize int) {
	cutoff := time.Now().Add(-staleDuration)
	businesses, err := w.repo.BusinessesNeedingAnalysis(ctx, cutoff, batchSize)
	if err != nil {
		log.Printf("Backlog: query error: %v", err)
		return
	}

	if len(businesses) == 0 {
		return
	}

	log.Printf("Backlog: %d stale businesses", len(businesses))

	limiter := ratelimit.New(w.requestInterval)
	var analyzed, failed, opportunities int
	for i := range businesses {
		b := &businesses[i]
		if b.InstagramUsername == "" {
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			log.Printf("Backlog worker stopping: %v", err)
			return
		}

		rec, err := w.analysis.AnalyzeProfile(ctx, b.InstagramUsername, false)
		if err != nil {
			log.Printf("Backlog: failed %s: %v", b.InstagramUsername, err)
			failed++
			continue
		}

		analyzed++
		if rec.OpportunityScore >= w.minScore {
			opportunities++
			log.Printf("Backlog: opportunity %s scored %.1f", b.InstagramUsername, rec.OpportunityScore)
		}
	}

	if analyzed > 0 || failed > 0 {
		msg := fmt.Sprintf("Backlog pass: %d analyzed, %d opportunities", analyzed, opportunities)
		if failed > 0 {
			msg += fmt.Sprintf(", %d failed", failed)
		}
		log.Println(msg)
		w.logFunc(models.LogLevelInfo, "backlog", msg)
	}
}
