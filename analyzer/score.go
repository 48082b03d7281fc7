package analyzer

import (
	"errors"
	"fmt"
	"time"

	"gramscout/models"
)

// ErrInsufficientData is returned when a snapshot carries no post samples,
// so no meaningful metrics can be derived.
var ErrInsufficientData = errors.New("insufficient data for analysis")

const (
	baseScore          = 5.0
	maxIssues          = 5
	maxRecommendations = 6
)

// Analyze runs the full metrics and assessment pipeline for one snapshot.
func Analyze(snap *models.ProfileSnapshot, now time.Time) (*models.AnalysisRecord, error) {
	if len(snap.Posts) == 0 {
		return nil, ErrInsufficientData
	}
	m := ComputeMetrics(snap, now)
	a := Assess(m, snap.IsBusiness)
	return models.NewAnalysisRecord(snap, m, a, now), nil
}

// Assess maps metrics to issues, recommendations, a growth tier and the
// opportunity score. Issue order is fixed so reports stay comparable
// between runs.
func Assess(m models.Metrics, isBusiness bool) models.Assessment {
	var issues []string
	if m.EngagementRate < 2.0 {
		issues = append(issues, "Low engagement rate - audience not interacting with content")
	}
	if m.AvgIntervalDays > 5 {
		issues = append(issues, "Inconsistent posting schedule - losing audience interest")
	}
	if m.LastPostDays > 7 {
		issues = append(issues, fmt.Sprintf("Inactive account - last post was %d days ago", m.LastPostDays))
	}
	if float64(m.Following) > float64(m.Followers)*1.5 {
		issues = append(issues, "Following too many accounts compared to followers")
	}
	if m.AverageComments < m.AverageLikes*0.02 {
		issues = append(issues, "Very low comment-to-like ratio - weak community engagement")
	}
	if m.TotalPosts < 50 {
		issues = append(issues, "Limited content library - not enough posts to attract followers")
	}
	if len(issues) > maxIssues {
		issues = issues[:maxIssues]
	}

	var recs []string
	if m.EngagementRate < 3.0 {
		recs = append(recs, "Implement strategic hashtag research and use 20-30 relevant hashtags per post")
	}
	if m.AvgIntervalDays > 3 {
		recs = append(recs, "Establish consistent posting schedule - aim for 4-5 posts per week minimum")
	}
	if m.AverageComments < m.AverageLikes*0.05 {
		recs = append(recs, "Create content that encourages conversation - ask questions, run polls, engage with comments")
	}
	if m.LastPostDays > 3 {
		recs = append(recs, "Resume regular posting immediately to re-engage dormant audience")
	}
	recs = append(recs,
		"Analyze top-performing posts and replicate successful content themes",
		"Optimize posting times based on when followers are most active",
		"Invest in high-quality visual content - use professional photography/videography",
	)
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}

	var growth string
	switch {
	case m.EngagementRate < 1.5 && m.AvgIntervalDays > 7:
		growth = models.GrowthLow
	case m.EngagementRate < 3.0 || m.AvgIntervalDays > 4:
		growth = models.GrowthMedium
	default:
		growth = models.GrowthHigh
	}

	score := baseScore
	if m.EngagementRate < 2.0 {
		score += 1.5
	}
	if m.AvgIntervalDays > 5 {
		score += 1.5
	}
	if m.LastPostDays > 7 {
		score += 1.0
	}
	// An established account performing poorly is the strongest pitch.
	if m.Followers > 1000 && m.EngagementRate < 2.5 {
		score += 1.0
	}
	if isBusiness {
		score += 0.5
	}
	// Round before clamping; reordering shifts results at the boundaries.
	score = round1(score)
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}

	return models.Assessment{
		Issues:           issues,
		Recommendations:  recs,
		GrowthPotential:  growth,
		OpportunityScore: score,
	}
}
