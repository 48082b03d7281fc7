package models

import "time"

// Growth potential tiers
const (
	GrowthLow    = "low"
	GrowthMedium = "medium"
	GrowthHigh   = "high"
)

// Posting frequency labels
const (
	FrequencyDaily     = "daily"
	FrequencyFewWeekly = "2-3 times/week"
	FrequencyWeekly    = "weekly"
	FrequencyIrregular = "irregular"
)

// Metrics holds the derived engagement and cadence numbers for one snapshot
type Metrics struct {
	Followers       int     `json:"followers"`
	Following       int     `json:"following"`
	TotalPosts      int     `json:"total_posts"`
	EngagementRate  float64 `json:"engagement_rate"` // percent, 2dp
	AverageLikes    float64 `json:"average_likes"`   // 1dp
	AverageComments float64 `json:"average_comments"`
	PostingFreq     string  `json:"posting_frequency"`
	AvgIntervalDays float64 `json:"avg_posting_interval_days"`
	LastPostDays    int     `json:"last_post_days"`
}

// Assessment is the scorer's verdict on a profile
type Assessment struct {
	Issues           []string `json:"issues"`          // at most 5
	Recommendations  []string `json:"recommendations"` // at most 6
	GrowthPotential  string   `json:"growth_potential"`
	OpportunityScore float64  `json:"opportunity_score"` // 1.0..10.0
}

// AnalysisRecord is one append-only analysis row. Immutable once written
// except for the contact/conversion fields.
type AnalysisRecord struct {
	ID                int64      `json:"id" db:"id"`
	Username          string     `json:"username" db:"username"`
	FullName          string     `json:"full_name" db:"full_name"`
	Followers         int        `json:"followers" db:"followers"`
	Following         int        `json:"following" db:"following"`
	Posts             int        `json:"posts" db:"posts"`
	IsBusiness        bool       `json:"is_business" db:"is_business"`
	EngagementRate    float64    `json:"engagement_rate" db:"engagement_rate"`
	AverageLikes      float64    `json:"average_likes" db:"average_likes"`
	AverageComments   float64    `json:"average_comments" db:"average_comments"`
	PostingFrequency  string     `json:"posting_frequency" db:"posting_frequency"`
	AvgIntervalDays   float64    `json:"avg_posting_interval_days" db:"avg_posting_interval_days"`
	LastPostDays      int        `json:"last_post_days" db:"last_post_days"`
	GrowthPotential   string     `json:"growth_potential" db:"growth_potential"`
	OpportunityScore  float64    `json:"opportunity_score" db:"opportunity_score"`
	Issues            []string   `json:"issues" db:"issues"`
	Recommendations   []string   `json:"recommendations" db:"recommendations"`
	Contacted         bool       `json:"contacted" db:"contacted"`
	ContactedDate     *time.Time `json:"contacted_date" db:"contacted_date"`
	ResponseReceived  bool       `json:"response_received" db:"response_received"`
	ConvertedToClient bool       `json:"converted_to_client" db:"converted_to_client"`
	ConversionDate    *time.Time `json:"conversion_date" db:"conversion_date"`
	Notes             string     `json:"notes" db:"notes"`
	AnalyzedAt        time.Time  `json:"analyzed_at" db:"analyzed_at"`
}

// NewAnalysisRecord assembles a record from a snapshot and its analysis output
func NewAnalysisRecord(snap *ProfileSnapshot, m Metrics, a Assessment, analyzedAt time.Time) *AnalysisRecord {
	return &AnalysisRecord{
		Username:         snap.Username,
		FullName:         snap.FullName,
		Followers:        m.Followers,
		Following:        m.Following,
		Posts:            m.TotalPosts,
		IsBusiness:       snap.IsBusiness,
		EngagementRate:   m.EngagementRate,
		AverageLikes:     m.AverageLikes,
		AverageComments:  m.AverageComments,
		PostingFrequency: m.PostingFreq,
		AvgIntervalDays:  m.AvgIntervalDays,
		LastPostDays:     m.LastPostDays,
		GrowthPotential:  a.GrowthPotential,
		OpportunityScore: a.OpportunityScore,
		Issues:           a.Issues,
		Recommendations:  a.Recommendations,
		AnalyzedAt:       analyzedAt,
	}
}
