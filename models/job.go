package models

import "time"

// Crawl frequencies
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
)

// CrawlJob is a recurring crawl definition. Target selection is either the
// explicit Monitored list or a filter over stored businesses.
type CrawlJob struct {
	ID                  int64      `json:"id" db:"id"`
	Name                string     `json:"name" db:"name"`
	LocationCity        string     `json:"location_city" db:"location_city"`
	LocationArea        string     `json:"location_area" db:"location_area"`
	Pincode             string     `json:"pincode" db:"pincode"`
	BusinessCategory    string     `json:"business_category" db:"business_category"`
	Frequency           string     `json:"frequency" db:"frequency"`
	MinOpportunityScore float64    `json:"min_opportunity_score" db:"min_opportunity_score"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	LastRun             *time.Time `json:"last_run" db:"last_run"`
	NextRun             *time.Time `json:"next_run" db:"next_run"`
	ProfilesFound       int        `json:"profiles_found" db:"profiles_found"`
	Monitored           []string   `json:"usernames_to_monitor" db:"usernames_to_monitor"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// Period returns the interval between runs. Unrecognized frequencies fall
// back to weekly.
func (j *CrawlJob) Period() time.Duration {
	switch j.Frequency {
	case FreqDaily:
		return 24 * time.Hour
	case FreqMonthly:
		return 30 * 24 * time.Hour
	case FreqWeekly:
		return 7 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// Due reports whether the job should run: never ran, or next_run has passed
func (j *CrawlJob) Due(now time.Time) bool {
	return j.NextRun == nil || !j.NextRun.After(now)
}
