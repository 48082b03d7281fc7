package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"gramscout/config"
	"gramscout/httputil"
	"gramscout/models"
)

const profilePageBase = "https://www.instagram.com/"

// HTMLSource scrapes the public profile page. It prefers the JSON blob the
// platform embeds for its own hydration; when that is missing it falls
// back to the og: meta tags, which carry counts but no post samples.
type HTMLSource struct {
	cfg    *config.SourceConfig
	client *http.Client
}

func NewHTMLSource(cfg *config.SourceConfig, clients *httputil.Clients) *HTMLSource {
	return &HTMLSource{cfg: cfg, client: clients.Source}
}

func (s *HTMLSource) ID() string {
	return "html"
}

func (s *HTMLSource) Fetch(ctx context.Context, username string) (*models.ProfileSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", profilePageBase+username+"/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if s.cfg.SessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: s.cfg.SessionID})
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, connErr("page fetch", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return nil, connErr("page fetch", fmt.Errorf("login wall (status %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, connErr("page fetch", fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse profile page: %w", err)
	}
	return s.parseProfileDocument(doc, username)
}

func (s *HTMLSource) parseProfileDocument(doc *goquery.Document, username string) (*models.ProfileSnapshot, error) {
	if user := findEmbeddedUser(doc); user != nil {
		return buildSnapshot(user, time.Now().UTC()), nil
	}

	// Fallback: counts only. The analyzer will reject the snapshot if the
	// page exposes no post samples, which is the honest answer here.
	desc, exists := doc.Find(`meta[property="og:description"]`).Attr("content")
	if !exists {
		return nil, fmt.Errorf("profile page for %s has no parseable data", username)
	}
	followers, following, posts, ok := parseMetaCounts(desc)
	if !ok {
		return nil, fmt.Errorf("profile page for %s has no parseable data", username)
	}

	snap := &models.ProfileSnapshot{
		Username:   username,
		Followers:  followers,
		Following:  following,
		TotalPosts: posts,
		FetchedAt:  time.Now().UTC(),
	}
	if title, exists := doc.Find(`meta[property="og:title"]`).Attr("content"); exists {
		snap.FullName = strings.TrimSpace(strings.SplitN(title, "(", 2)[0])
	}
	return snap, nil
}

func findEmbeddedUser(doc *goquery.Document) *profileUser {
	var user *profileUser
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(text, "edge_owner_to_timeline_media") {
			return true
		}
		blob := text
		if idx := strings.Index(blob, "window._sharedData = "); idx >= 0 {
			blob = blob[idx+len("window._sharedData = "):]
			blob = strings.TrimSuffix(strings.TrimSpace(blob), ";")
		}

		var data sharedData
		if err := json.Unmarshal([]byte(blob), &data); err == nil {
			for _, page := range data.EntryData.ProfilePage {
				if page.Graphql.User != nil {
					user = page.Graphql.User
					return false
				}
			}
		}

		// Newer page builds ship the same user object without the
		// _sharedData wrapper.
		var direct struct {
			Graphql struct {
				User *profileUser `json:"user"`
			} `json:"graphql"`
		}
		if err := json.Unmarshal([]byte(blob), &direct); err == nil && direct.Graphql.User != nil {
			user = direct.Graphql.User
			return false
		}
		return true
	})
	return user
}
