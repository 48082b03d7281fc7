package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"gramscout/config"
	"gramscout/models"
)

// BrowserSource drives a real Chromium profile page visit and captures the
// profile payload the page requests for its own hydration. Slowest backend
// but the hardest to block. The browser profile persists under
// browser_data, so a manual login survives restarts.
type BrowserSource struct {
	cfg         *config.SourceConfig
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	mu          sync.Mutex
	initialized bool
}

func NewBrowserSource(cfg *config.SourceConfig) *BrowserSource {
	return &BrowserSource{cfg: cfg}
}

func (s *BrowserSource) ID() string {
	return "browser"
}

func (s *BrowserSource) Fetch(ctx context.Context, username string) (*models.ProfileSnapshot, error) {
	if err := s.ensureBrowser(); err != nil {
		return nil, connErr("browser start", err)
	}

	page, err := s.context.NewPage()
	if err != nil {
		return nil, connErr("browser page", err)
	}
	defer page.Close()

	s.setupProfileIntercept(page)

	profileURL := profilePageBase + username + "/"
	log.Printf("Browser: navigating to %s", profileURL)
	_, err = page.Goto(profileURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		log.Printf("Browser: navigation error (continuing): %v", err)
	}

	humanDelay(1500, 3000)
	simulateHumanBehavior(page)
	handleConsent(page)

	body, err := s.waitForProfilePayload(ctx, page, username)
	if err != nil {
		return nil, err
	}

	var result webProfileResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode intercepted payload: %w", err)
	}
	if result.Data.User == nil {
		return nil, ErrNotFound
	}
	return buildSnapshot(result.Data.User, time.Now().UTC()), nil
}

func (s *BrowserSource) ensureBrowser() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	var err error
	s.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	cwd, _ := os.Getwd()
	userDataDir := filepath.Join(cwd, "browser_data")
	s.context, err = s.pw.Chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(false),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.initialized = true
	return nil
}

func (s *BrowserSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.context != nil {
		s.context.Close()
	}
	if s.pw != nil {
		s.pw.Stop()
	}
	s.initialized = false
}

func (s *BrowserSource) setupProfileIntercept(page playwright.Page) {
	page.OnResponse(func(response playwright.Response) {
		if strings.Contains(response.URL(), "web_profile_info") && response.Status() == 200 {
			go func() {
				body, err := response.Body()
				if err != nil || len(body) < 100 {
					return
				}
				page.Evaluate(fmt.Sprintf(`window.__profilePayload = %q`, string(body)))
				log.Printf("Browser: intercepted profile payload: %d bytes", len(body))
			}()
		}
	})
}

func (s *BrowserSource) waitForProfilePayload(ctx context.Context, page playwright.Page, username string) ([]byte, error) {
	for i := 0; i < 20; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page.WaitForTimeout(500)

		result, _ := page.Evaluate(`window.__profilePayload`)
		if str, ok := result.(string); ok && str != "" {
			return []byte(str), nil
		}

		content, _ := page.Content()
		if trigger := detectChallenge(content); trigger != "" {
			return nil, connErr("browser fetch", fmt.Errorf("challenge page: %s", trigger))
		}
		if strings.Contains(content, "Sorry, this page isn't available.") {
			return nil, ErrNotFound
		}
	}
	return nil, connErr("browser fetch", fmt.Errorf("no profile payload captured for %s", username))
}

func detectChallenge(content string) string {
	triggers := []string{
		"Suspicious Login Attempt",
		"challenge_required",
		"Help us confirm it's you",
		"Log in to continue",
	}
	for _, t := range triggers {
		if strings.Contains(content, t) {
			return t
		}
	}
	return ""
}

func handleConsent(page playwright.Page) {
	consentSelectors := []string{
		"button:has-text('Allow all cookies')",
		"button:has-text('Accept All')",
		"button:has-text('Accept')",
		"button[class*='consent']",
	}

	for _, selector := range consentSelectors {
		btn := page.Locator(selector).First()
		if visible, _ := btn.IsVisible(); visible {
			log.Printf("Browser: clicking consent button: %s", selector)
			btn.Click()
			page.WaitForTimeout(2000)
			break
		}
	}
}

func simulateHumanBehavior(page playwright.Page) {
	page.Mouse().Move(float64(300+rand.Intn(400)), float64(200+rand.Intn(300)))
	page.WaitForTimeout(float64(200 + rand.Intn(300)))
	page.Mouse().Move(float64(400+rand.Intn(300)), float64(300+rand.Intn(200)))
	page.WaitForTimeout(float64(200 + rand.Intn(300)))

	scrollAmount := 100 + rand.Intn(300)
	page.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, scrollAmount))
}

func humanDelay(minMs, maxMs int) {
	delay := minMs + rand.Intn(maxMs-minMs)
	time.Sleep(time.Duration(delay) * time.Millisecond)
}
