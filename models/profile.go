package models

import "time"

// PostSample carries the engagement numbers of one recent post
type PostSample struct {
	Likes    int       `json:"likes"`
	Comments int       `json:"comments"`
	TakenAt  time.Time `json:"taken_at"`
	IsVideo  bool      `json:"is_video"`
}

// ProfileSnapshot is the transient result of one profile fetch.
// Posts are ordered newest first and capped at 12 by the source.
type ProfileSnapshot struct {
	Username      string       `json:"username"`
	FullName      string       `json:"full_name"`
	Biography     string       `json:"biography"`
	Followers     int          `json:"followers"`
	Following     int          `json:"following"`
	TotalPosts    int          `json:"total_posts"`
	IsVerified    bool         `json:"is_verified"`
	IsBusiness    bool         `json:"is_business"`
	Category      string       `json:"category"`
	ProfilePicURL string       `json:"profile_pic_url"`
	Posts         []PostSample `json:"recent_posts"`
	FetchedAt     time.Time    `json:"fetched_at"`
}

// ProfileSummary is the persistent one-row-per-handle profile record
type ProfileSummary struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	FullName     string    `json:"full_name" db:"full_name"`
	Biography    string    `json:"biography" db:"biography"`
	Followers    int       `json:"followers" db:"followers"`
	Following    int       `json:"following" db:"following"`
	TotalPosts   int       `json:"total_posts" db:"total_posts"`
	IsVerified   bool      `json:"is_verified" db:"is_verified"`
	IsBusiness   bool      `json:"is_business" db:"is_business"`
	Fingerprint  string    `json:"fingerprint" db:"fingerprint"`
	FirstCrawled time.Time `json:"first_crawled" db:"first_crawled"`
	LastCrawled  time.Time `json:"last_crawled" db:"last_crawled"`
}
