package source

import (
	"strings"
	"time"

	"gramscout/models"
)

// profileUser is the platform's graphql user object. Both the web API and
// the JSON embedded in profile pages use this shape.
type profileUser struct {
	Username          string `json:"username"`
	FullName          string `json:"full_name"`
	Biography         string `json:"biography"`
	IsVerified        bool   `json:"is_verified"`
	IsBusinessAccount bool   `json:"is_business_account"`
	CategoryName      string `json:"category_name"`
	ProfilePicURL     string `json:"profile_pic_url_hd"`
	EdgeFollowedBy    struct {
		Count int `json:"count"`
	} `json:"edge_followed_by"`
	EdgeFollow struct {
		Count int `json:"count"`
	} `json:"edge_follow"`
	EdgeTimelineMedia struct {
		Count int `json:"count"`
		Edges []struct {
			Node struct {
				IsVideo          bool  `json:"is_video"`
				TakenAtTimestamp int64 `json:"taken_at_timestamp"`
				EdgeLikedBy      struct {
					Count int `json:"count"`
				} `json:"edge_liked_by"`
				EdgeMediaPreviewLike struct {
					Count int `json:"count"`
				} `json:"edge_media_preview_like"`
				EdgeMediaToComment struct {
					Count int `json:"count"`
				} `json:"edge_media_to_comment"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_owner_to_timeline_media"`
}

type sharedData struct {
	EntryData struct {
		ProfilePage []struct {
			Graphql struct {
				User *profileUser `json:"user"`
			} `json:"graphql"`
		} `json:"ProfilePage"`
	} `json:"entry_data"`
}

const recentPostLimit = 12

func buildSnapshot(u *profileUser, fetchedAt time.Time) *models.ProfileSnapshot {
	snap := &models.ProfileSnapshot{
		Username:      u.Username,
		FullName:      u.FullName,
		Biography:     u.Biography,
		Followers:     u.EdgeFollowedBy.Count,
		Following:     u.EdgeFollow.Count,
		TotalPosts:    u.EdgeTimelineMedia.Count,
		IsVerified:    u.IsVerified,
		IsBusiness:    u.IsBusinessAccount,
		Category:      u.CategoryName,
		ProfilePicURL: u.ProfilePicURL,
		FetchedAt:     fetchedAt,
	}

	edges := u.EdgeTimelineMedia.Edges
	if len(edges) > recentPostLimit {
		edges = edges[:recentPostLimit]
	}
	for _, e := range edges {
		likes := e.Node.EdgeLikedBy.Count
		if likes == 0 {
			likes = e.Node.EdgeMediaPreviewLike.Count
		}
		snap.Posts = append(snap.Posts, models.PostSample{
			Likes:    likes,
			Comments: e.Node.EdgeMediaToComment.Count,
			TakenAt:  time.Unix(e.Node.TakenAtTimestamp, 0).UTC(),
			IsVideo:  e.Node.IsVideo,
		})
	}
	return snap
}

// parseCompactCount reads counts the platform renders for humans:
// "1,234", "10.5k", "2m".
func parseCompactCount(s string) int {
	s = strings.TrimSpace(s)
	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"), strings.HasSuffix(s, "K"):
		multiplier = 1_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "m"), strings.HasSuffix(s, "M"):
		multiplier = 1_000_000
		s = s[:len(s)-1]
	}

	var whole, frac int
	var fracDigits int
	inFrac := false
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			if inFrac {
				frac = frac*10 + int(c-'0')
				fracDigits++
			} else {
				whole = whole*10 + int(c-'0')
			}
		case c == '.':
			inFrac = true
		}
	}

	value := float64(whole)
	if fracDigits > 0 {
		div := 1.0
		for i := 0; i < fracDigits; i++ {
			div *= 10
		}
		value += float64(frac) / div
	}
	return int(value * multiplier)
}

// parseMetaCounts extracts follower/following/post counts from the page's
// og:description, e.g. "1,234 Followers, 567 Following, 89 Posts - ...".
func parseMetaCounts(desc string) (followers, following, posts int, ok bool) {
	fields := strings.Fields(desc)
	for i := 0; i < len(fields)-1; i++ {
		switch {
		case strings.HasPrefix(fields[i+1], "Followers"):
			followers = parseCompactCount(fields[i])
			ok = true
		case strings.HasPrefix(fields[i+1], "Following"):
			following = parseCompactCount(fields[i])
		case strings.HasPrefix(fields[i+1], "Posts"):
			posts = parseCompactCount(fields[i])
		}
	}
	return followers, following, posts, ok
}
