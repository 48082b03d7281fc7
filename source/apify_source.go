package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"gramscout/config"
	"gramscout/httputil"
	"gramscout/models"
)

const (
	apifyAPIBase     = "https://api.apify.com/v2"
	apifyPollTimeout = 15 * time.Minute
	apifyPollDelay   = 10 * time.Second
)

// ApifySource delegates fetching to a hosted Apify actor. Expensive and
// slow per profile, but needs no session or proxy management on our side.
type ApifySource struct {
	cfg    *config.SourceConfig
	client *http.Client
}

func NewApifySource(cfg *config.SourceConfig, clients *httputil.Clients) *ApifySource {
	return &ApifySource{cfg: cfg, client: clients.API}
}

func (s *ApifySource) ID() string {
	return "apify"
}

func (s *ApifySource) Fetch(ctx context.Context, username string) (*models.ProfileSnapshot, error) {
	if s.cfg.ApifyKey == "" {
		return nil, fmt.Errorf("APIFY_API_KEY not set")
	}

	runID, err := s.startRun(ctx, username)
	if err != nil {
		return nil, connErr("apify start", err)
	}
	log.Printf("Apify run started: %s (actor: %s)", runID, s.cfg.ApifyActor)

	datasetID, err := s.waitForRun(ctx, runID)
	if err != nil {
		return nil, connErr("apify run", err)
	}

	return s.fetchProfileItem(ctx, datasetID, username)
}

func (s *ApifySource) startRun(ctx context.Context, username string) (string, error) {
	input := map[string]interface{}{
		"usernames":    []string{username},
		"resultsLimit": recentPostLimit,
	}
	body, _ := json.Marshal(input)

	url := fmt.Sprintf("%s/acts/%s/runs?token=%s", apifyAPIBase, s.cfg.ApifyActor, s.cfg.ApifyKey)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("apify start run failed %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Data.ID, nil
}

func (s *ApifySource) waitForRun(ctx context.Context, runID string) (string, error) {
	url := fmt.Sprintf("%s/actor-runs/%s?token=%s", apifyAPIBase, runID, s.cfg.ApifyKey)
	deadline := time.Now().Add(apifyPollTimeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return "", err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			time.Sleep(apifyPollDelay)
			continue
		}

		var result struct {
			Data struct {
				Status           string `json:"status"`
				DefaultDatasetID string `json:"defaultDatasetId"`
			} `json:"data"`
		}
		json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()

		switch result.Data.Status {
		case "SUCCEEDED":
			return result.Data.DefaultDatasetID, nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return "", fmt.Errorf("run %s: %s", runID, result.Data.Status)
		}

		time.Sleep(apifyPollDelay)
	}

	return "", fmt.Errorf("timeout waiting for run %s", runID)
}

func (s *ApifySource) fetchProfileItem(ctx context.Context, datasetID, username string) (*models.ProfileSnapshot, error) {
	url := fmt.Sprintf("%s/datasets/%s/items?token=%s&format=json", apifyAPIBase, datasetID, s.cfg.ApifyKey)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, connErr("apify dataset", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, connErr("apify dataset", fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	var items []apifyProfileItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}

	item := items[0]
	if item.Error != "" {
		return nil, ErrNotFound
	}
	return item.toSnapshot(time.Now().UTC()), nil
}

type apifyProfileItem struct {
	Username             string `json:"username"`
	FullName             string `json:"fullName"`
	Biography            string `json:"biography"`
	FollowersCount       int    `json:"followersCount"`
	FollowsCount         int    `json:"followsCount"`
	PostsCount           int    `json:"postsCount"`
	Verified             bool   `json:"verified"`
	IsBusinessAccount    bool   `json:"isBusinessAccount"`
	BusinessCategoryName string `json:"businessCategoryName"`
	ProfilePicURL        string `json:"profilePicUrlHD"`
	Error                string `json:"error"`
	LatestPosts          []struct {
		Type          string    `json:"type"`
		LikesCount    int       `json:"likesCount"`
		CommentsCount int       `json:"commentsCount"`
		Timestamp     time.Time `json:"timestamp"`
	} `json:"latestPosts"`
}

func (item *apifyProfileItem) toSnapshot(fetchedAt time.Time) *models.ProfileSnapshot {
	snap := &models.ProfileSnapshot{
		Username:      item.Username,
		FullName:      item.FullName,
		Biography:     item.Biography,
		Followers:     item.FollowersCount,
		Following:     item.FollowsCount,
		TotalPosts:    item.PostsCount,
		IsVerified:    item.Verified,
		IsBusiness:    item.IsBusinessAccount,
		Category:      item.BusinessCategoryName,
		ProfilePicURL: item.ProfilePicURL,
		FetchedAt:     fetchedAt,
	}

	posts := item.LatestPosts
	if len(posts) > recentPostLimit {
		posts = posts[:recentPostLimit]
	}
	for _, p := range posts {
		snap.Posts = append(snap.Posts, models.PostSample{
			Likes:    p.LikesCount,
			Comments: p.CommentsCount,
			TakenAt:  p.Timestamp.UTC(),
			IsVideo:  p.Type == "Video",
		})
	}
	return snap
}
