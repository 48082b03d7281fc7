package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// DatabaseURL selects the analysis store: postgres:// URLs go through
	// pgx, anything else is treated as a SQLite file path.
	DatabaseURL string
	OpsDBPath   string
	LogPath     string
	ExportDir   string

	Source     SourceConfig
	Scheduler  SchedulerConfig
	Analyzer   AnalyzerConfig
	Reports    ReportsConfig
	ExpressVPN ExpressVPNConfig

	JobsDir       string
	BusinessesDir string
}

type SourceConfig struct {
	Mode       string // api, html, browser, apify
	Proxy      string
	Timeout    time.Duration
	SessionID  string // platform session cookie, obtained out of band
	ApifyKey   string
	ApifyActor string
}

type SchedulerConfig struct {
	Enabled          bool
	CheckInterval    time.Duration
	RequestInterval  time.Duration // spacing between profiles in scheduled loops
	DailyCrawlTime   string        // HH:MM
	WeeklyReportDay  string        // monday..sunday
	WeeklyReportTime string        // HH:MM
}

type AnalyzerConfig struct {
	CacheTTL            time.Duration
	MaxConcurrent       int
	BatchLimit          int
	MinOpportunityScore float64
	AutoExportReports   bool
}

type ReportsConfig struct {
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	DigestMinScore  float64
	DigestRangeDays int
}

type ExpressVPNConfig struct {
	ActivationCode string
	AutoConnect    bool
	Region         string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", "analyzer.db"),
		OpsDBPath:   getEnv("OPS_DB_PATH", "ops.db"),
		LogPath:     getEnv("LOG_FILE", "crawler.log"),
		ExportDir:   getEnv("EXPORT_DIR", "exports"),
		Source: SourceConfig{
			Mode:       getEnv("SOURCE_MODE", "api"),
			Proxy:      os.Getenv("SOURCE_PROXY"),
			Timeout:    getEnvDuration("SOURCE_TIMEOUT", 30*time.Second),
			SessionID:  os.Getenv("IG_SESSION_ID"),
			ApifyKey:   os.Getenv("APIFY_API_KEY"),
			ApifyActor: getEnv("APIFY_ACTOR", "apify~instagram-profile-scraper"),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getEnvBool("SCHEDULER_ENABLED", true),
			CheckInterval:    getEnvDuration("CHECK_INTERVAL", 60*time.Second),
			RequestInterval:  time.Duration(getEnvInt("DELAY_BETWEEN_REQUESTS", 5)) * time.Second,
			DailyCrawlTime:   getEnv("DAILY_CRAWL_TIME", "09:00"),
			WeeklyReportDay:  getEnv("WEEKLY_REPORT_DAY", "monday"),
			WeeklyReportTime: getEnv("WEEKLY_REPORT_TIME", "08:00"),
		},
		Analyzer: AnalyzerConfig{
			CacheTTL:            getEnvDuration("CACHE_TTL", 24*time.Hour),
			MaxConcurrent:       getEnvInt("MAX_CONCURRENT_REQUESTS", 3),
			BatchLimit:          getEnvInt("BATCH_LIMIT", 50),
			MinOpportunityScore: getEnvFloat("MIN_OPPORTUNITY_SCORE", 5.0),
			AutoExportReports:   getEnvBool("AUTO_EXPORT_REPORTS", false),
		},
		Reports: ReportsConfig{
			S3Bucket:        os.Getenv("S3_BUCKET"),
			S3Region:        getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:      os.Getenv("S3_ENDPOINT"),
			S3AccessKey:     os.Getenv("S3_ACCESS_KEY_ID"),
			S3SecretKey:     os.Getenv("S3_SECRET_ACCESS_KEY"),
			DigestMinScore:  getEnvFloat("DIGEST_MIN_SCORE", 6.0),
			DigestRangeDays: getEnvInt("DIGEST_RANGE_DAYS", 7),
		},
		ExpressVPN: ExpressVPNConfig{
			ActivationCode: os.Getenv("EXPRESSVPN_ACTIVATION_CODE"),
			AutoConnect:    os.Getenv("EXPRESSVPN_AUTOCONNECT") == "true",
			Region:         getEnv("EXPRESSVPN_REGION", "smart"),
		},
		JobsDir:       getEnv("JOBS_DIR", "config/jobs"),
		BusinessesDir: getEnv("BUSINESSES_DIR", "config/businesses"),
	}

	return cfg, nil
}

// UsesPostgres reports whether DatabaseURL points at a Postgres server
// rather than a local SQLite file.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
