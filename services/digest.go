package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"gramscout/config"
	"gramscout/models"
	"gramscout/storage"
)

const (
	digestCandidateLimit = 50
	digestRenderLimit    = 20
)

// DigestService builds the weekly lead digest: fresh, not-yet-contacted
// analyses above the digest threshold, rendered to JSON and HTML under the
// export dir and optionally pushed to S3.
type DigestService struct {
	cfg       *config.ReportsConfig
	exportDir string
	repo      storage.Repository
	uploader  *storage.ReportUploader
}

// NewDigestService creates a new DigestService. uploader may be nil when no
// bucket is configured.
func NewDigestService(cfg *config.ReportsConfig, exportDir string, repo storage.Repository, uploader *storage.ReportUploader) *DigestService {
	return &DigestService{
		cfg:       cfg,
		exportDir: exportDir,
		repo:      repo,
		uploader:  uploader,
	}
}

// DigestReport is the generated digest plus where it landed
type DigestReport struct {
	ID          string                  `json:"id"`
	GeneratedAt time.Time               `json:"generated_at"`
	RangeDays   int                     `json:"range_days"`
	MinScore    float64                 `json:"min_score"`
	Candidates  int                     `json:"candidates"`
	Leads       []models.AnalysisRecord `json:"leads"`
	JSONPath    string                  `json:"json_path,omitempty"`
	HTMLPath    string                  `json:"html_path,omitempty"`
	ReportURL   string                  `json:"report_url,omitempty"`
}

// Generate builds the digest for the window ending at now.
func (s *DigestService) Generate(ctx context.Context, now time.Time) (*DigestReport, error) {
	since := now.AddDate(0, 0, -s.cfg.DigestRangeDays)
	candidates, err := s.repo.DigestCandidates(ctx, s.cfg.DigestMinScore, since, digestCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("digest candidates: %w", err)
	}

	report := &DigestReport{
		ID:          uuid.NewString(),
		GeneratedAt: now,
		RangeDays:   s.cfg.DigestRangeDays,
		MinScore:    s.cfg.DigestMinScore,
		Candidates:  len(candidates),
		Leads:       candidates,
	}
	if len(report.Leads) > digestRenderLimit {
		report.Leads = report.Leads[:digestRenderLimit]
	}

	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, report); err != nil {
		return nil, fmt.Errorf("render digest: %w", err)
	}

	stamp := now.Format("20060102")
	htmlPath := filepath.Join(s.exportDir, fmt.Sprintf("digest_%s.html", stamp))
	if err := os.WriteFile(htmlPath, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("write digest html: %w", err)
	}
	report.HTMLPath = htmlPath

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	jsonPath := filepath.Join(s.exportDir, fmt.Sprintf("digest_%s.json", stamp))
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return nil, fmt.Errorf("write digest json: %w", err)
	}
	report.JSONPath = jsonPath

	if s.uploader != nil {
		key := fmt.Sprintf("digests/digest_%s.html", stamp)
		if err := s.uploader.Upload(ctx, key, bytes.NewReader(buf.Bytes()), "text/html; charset=utf-8"); err != nil {
			log.Printf("Warning: failed to upload digest: %v", err)
		} else {
			report.ReportURL = s.uploader.PublicURL(key)
			log.Printf("Digest uploaded: %s", report.ReportURL)
		}
	}

	return report, nil
}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Opportunity Digest {{.GeneratedAt.Format "2006-01-02"}}</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; margin: 2em; color: #222; }
h1 { font-size: 1.4em; }
.meta { color: #666; margin-bottom: 1.5em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #ddd; }
th { background: #f5f5f5; }
.score { font-weight: bold; }
.issue { color: #a33; font-size: 0.9em; }
</style>
</head>
<body>
<h1>Opportunity Digest</h1>
<p class="meta">Generated {{.GeneratedAt.Format "2006-01-02 15:04"}} &middot;
last {{.RangeDays}} days &middot; score &ge; {{printf "%.1f" .MinScore}} &middot;
{{.Candidates}} candidates, top {{len .Leads}} shown</p>
{{if .Leads}}
<table>
<tr>
<th>Handle</th><th>Score</th><th>Followers</th><th>Engagement</th>
<th>Posting</th><th>Growth</th><th>Top issue</th>
</tr>
{{range .Leads}}
<tr>
<td>@{{.Username}}</td>
<td class="score">{{printf "%.1f" .OpportunityScore}}</td>
<td>{{.Followers}}</td>
<td>{{printf "%.2f" .EngagementRate}}%</td>
<td>{{.PostingFrequency}}</td>
<td>{{.GrowthPotential}}</td>
<td class="issue">{{if .Issues}}{{index .Issues 0}}{{end}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>No uncontacted leads above the threshold this week.</p>
{{end}}
</body>
</html>
`))
