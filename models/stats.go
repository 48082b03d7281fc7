package models

// RepoStats counts what the analysis store currently holds.
type RepoStats struct {
	TotalProfiles   int `json:"total_profiles"`
	TotalAnalyses   int `json:"total_analyses"`
	TotalBusinesses int `json:"total_businesses"`
	ActiveJobs      int `json:"active_jobs"`
}
