// Package analyzer turns a profile snapshot into engagement metrics and an
// outreach assessment. All functions are pure: identical inputs always
// produce identical outputs.
package analyzer

import (
	"math"
	"time"

	"gramscout/models"
)

const (
	recentPostWindow     = 12
	defaultIntervalDays  = 30.0
	lastPostSentinelDays = 999
)

// ComputeMetrics derives the engagement metrics for a snapshot. Posts must
// be ordered newest-first; only the most recent recentPostWindow samples
// count. now anchors the days-since-last-post calculation.
func ComputeMetrics(snap *models.ProfileSnapshot, now time.Time) models.Metrics {
	posts := snap.Posts
	if len(posts) > recentPostWindow {
		posts = posts[:recentPostWindow]
	}

	var likes, comments int
	for _, p := range posts {
		likes += p.Likes
		comments += p.Comments
	}
	var avgLikes, avgComments float64
	if len(posts) > 0 {
		avgLikes = float64(likes) / float64(len(posts))
		avgComments = float64(comments) / float64(len(posts))
	}

	var engagement float64
	if snap.Followers > 0 {
		engagement = (avgLikes + avgComments) / float64(snap.Followers) * 100
	}

	interval := defaultIntervalDays
	if len(posts) >= 2 {
		var gapDays int
		for i := 0; i < len(posts)-1; i++ {
			gapDays += int(posts[i].TakenAt.Sub(posts[i+1].TakenAt) / (24 * time.Hour))
		}
		interval = float64(gapDays) / float64(len(posts)-1)
	}

	lastPost := lastPostSentinelDays
	if len(posts) > 0 {
		lastPost = int(now.Sub(posts[0].TakenAt) / (24 * time.Hour))
	}

	return models.Metrics{
		Followers:       snap.Followers,
		Following:       snap.Following,
		TotalPosts:      snap.TotalPosts,
		EngagementRate:  round2(engagement),
		AverageLikes:    round1(avgLikes),
		AverageComments: round1(avgComments),
		PostingFreq:     frequencyLabel(interval),
		AvgIntervalDays: round1(interval),
		LastPostDays:    lastPost,
	}
}

func frequencyLabel(intervalDays float64) string {
	switch {
	case intervalDays <= 1.5:
		return models.FrequencyDaily
	case intervalDays <= 4:
		return models.FrequencyFewWeekly
	case intervalDays <= 9:
		return models.FrequencyWeekly
	default:
		return models.FrequencyIrregular
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
