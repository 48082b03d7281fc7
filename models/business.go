package models

import "time"

// Business is a directory entry that may carry a profile handle worth
// crawling. Rows are seeded from config and updated after each analysis.
type Business struct {
	ID                int64      `json:"id" db:"id"`
	Name              string     `json:"business_name" db:"business_name"`
	Category          string     `json:"category" db:"category"`
	City              string     `json:"city" db:"city"`
	Area              string     `json:"area" db:"area"`
	State             string     `json:"state" db:"state"`
	Pincode           string     `json:"pincode" db:"pincode"`
	InstagramUsername string     `json:"instagram_username" db:"instagram_username"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	LastAnalyzed      *time.Time `json:"last_analyzed" db:"last_analyzed"`
	CurrentScore      *float64   `json:"current_opportunity_score" db:"current_opportunity_score"`
	AnalysisCount     int        `json:"analysis_count" db:"analysis_count"`
	DiscoveredAt      time.Time  `json:"discovered_at" db:"discovered_at"`
	LastUpdated       time.Time  `json:"last_updated" db:"last_updated"`
}

// BusinessFilter narrows business lookups. City, area and category match
// partially, pincode exactly; empty fields are ignored.
type BusinessFilter struct {
	City     string
	Area     string
	Pincode  string
	Category string
}

// Empty reports whether the filter matches everything
func (f BusinessFilter) Empty() bool {
	return f.City == "" && f.Area == "" && f.Pincode == "" && f.Category == ""
}
