package analyzer

import (
	"errors"
	"reflect"
	"testing"

	"gramscout/models"
)

func TestAnalyze_EstablishedLowEngagement(t *testing.T) {
	// 1001 followers, 2000 following, 5 posts averaging 5 likes and 0.2
	// comments, posted every 12 days, silent for 10 days.
	snap := snapshotFixture(1001, 2000, 5, false,
		[]int{5, 5, 5, 5, 5}, []int{1, 0, 0, 0, 0}, 12, 10)

	rec, err := Analyze(snap, testNow)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if rec.EngagementRate != 0.52 {
		t.Fatalf("expected engagement rate 0.52, got %v", rec.EngagementRate)
	}
	if rec.AverageLikes != 5.0 || rec.AverageComments != 0.2 {
		t.Fatalf("expected averages 5.0/0.2, got %v/%v", rec.AverageLikes, rec.AverageComments)
	}
	if rec.AvgIntervalDays != 12.0 {
		t.Fatalf("expected interval 12.0, got %v", rec.AvgIntervalDays)
	}
	if rec.LastPostDays != 10 {
		t.Fatalf("expected last post 10 days ago, got %d", rec.LastPostDays)
	}
	if rec.PostingFrequency != models.FrequencyIrregular {
		t.Fatalf("expected irregular frequency, got %q", rec.PostingFrequency)
	}
	if rec.GrowthPotential != models.GrowthLow {
		t.Fatalf("expected low growth potential, got %q", rec.GrowthPotential)
	}
	// 5 base + 1.5 engagement + 1.5 interval + 1 inactivity + 1 established
	// account bonus = 10.0.
	if rec.OpportunityScore != 10.0 {
		t.Fatalf("expected score 10.0, got %v", rec.OpportunityScore)
	}

	wantIssues := []string{
		"Low engagement rate - audience not interacting with content",
		"Inconsistent posting schedule - losing audience interest",
		"Inactive account - last post was 10 days ago",
		"Following too many accounts compared to followers",
		"Limited content library - not enough posts to attract followers",
	}
	if !reflect.DeepEqual(rec.Issues, wantIssues) {
		t.Fatalf("unexpected issues: %v", rec.Issues)
	}
	if len(rec.Recommendations) != 6 {
		t.Fatalf("expected 6 recommendations, got %d", len(rec.Recommendations))
	}
	if rec.Recommendations[0] != "Implement strategic hashtag research and use 20-30 relevant hashtags per post" {
		t.Fatalf("unexpected first recommendation: %s", rec.Recommendations[0])
	}
	if rec.Username != "studio_fit" {
		t.Fatalf("expected username studio_fit, got %s", rec.Username)
	}
	if !rec.AnalyzedAt.Equal(testNow) {
		t.Fatalf("expected analyzed_at %v, got %v", testNow, rec.AnalyzedAt)
	}
}

func TestAssess_FollowerBonusBoundary(t *testing.T) {
	snap := snapshotFixture(1000, 2000, 5, false,
		[]int{5, 5, 5, 5, 5}, []int{1, 0, 0, 0, 0}, 12, 10)

	m := ComputeMetrics(snap, testNow)
	a := Assess(m, false)
	// The established-account bonus requires strictly more than 1000
	// followers, so this lands one point lower.
	if a.OpportunityScore != 9.0 {
		t.Fatalf("expected score 9.0 at exactly 1000 followers, got %v", a.OpportunityScore)
	}
}

func TestAssess_HealthyProfile(t *testing.T) {
	snap := snapshotFixture(500, 300, 80, false,
		[]int{30, 25, 35, 30}, []int{4, 3, 5, 4}, 2, 1)

	m := ComputeMetrics(snap, testNow)
	a := Assess(m, false)
	if a.OpportunityScore != 5.0 {
		t.Fatalf("expected base score 5.0, got %v", a.OpportunityScore)
	}
	if a.GrowthPotential != models.GrowthHigh {
		t.Fatalf("expected high growth potential, got %q", a.GrowthPotential)
	}
	if len(a.Issues) != 0 {
		t.Fatalf("expected no issues, got %v", a.Issues)
	}
	if len(a.Recommendations) != 3 {
		t.Fatalf("expected only the 3 standing recommendations, got %d", len(a.Recommendations))
	}
}

func TestAssess_CapsListsAndClampsScore(t *testing.T) {
	// Every issue and recommendation rule fires at once.
	snap := snapshotFixture(10000, 20000, 10, true,
		[]int{100, 100, 100, 100, 100}, []int{1, 1, 1, 1, 1}, 12, 10)

	m := ComputeMetrics(snap, testNow)
	a := Assess(m, true)
	if len(a.Issues) != 5 {
		t.Fatalf("expected issues capped at 5, got %d", len(a.Issues))
	}
	if a.Issues[4] != "Very low comment-to-like ratio - weak community engagement" {
		t.Fatalf("unexpected fifth issue: %s", a.Issues[4])
	}
	if len(a.Recommendations) != 6 {
		t.Fatalf("expected recommendations capped at 6, got %d", len(a.Recommendations))
	}
	if a.Recommendations[5] != "Optimize posting times based on when followers are most active" {
		t.Fatalf("unexpected sixth recommendation: %s", a.Recommendations[5])
	}
	// 5 + 1.5 + 1.5 + 1 + 1 + 0.5 = 10.5, clamped to 10.
	if a.OpportunityScore != 10.0 {
		t.Fatalf("expected score clamped to 10.0, got %v", a.OpportunityScore)
	}

	again := Assess(m, true)
	if !reflect.DeepEqual(a, again) {
		t.Fatalf("assessment not deterministic: %+v vs %+v", a, again)
	}
}

func TestAnalyze_InsufficientData(t *testing.T) {
	snap := snapshotFixture(100, 100, 0, false, nil, nil, 0, 0)

	rec, err := Analyze(snap, testNow)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no record on insufficient data, got %+v", rec)
	}
}
