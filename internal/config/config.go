package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	SiteTitle string
	Timezone  string

	// Headless CMS
	CMSAPIURL      string
	CMSAccessToken string

	// Local content directory (alternative to the CMS)
	ContentDir     string
	ContentAPIKey  string
	MaxUploadBytes int64

	// Listing
	HomePageSize      int
	SidePostsPageSize int

	// Regeneration and sessions
	Revalidate  time.Duration
	SessionTTL  time.Duration
	CacheDBPath string

	// Reading time
	ReadingTimeMetric string
	ReadingWPM        int

	// Comments widget
	CommentsRepo      string
	CommentsIssueTerm string
	CommentsTheme     string

	// Static export
	ExportWorkers int
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory when one exists.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: load .env: %v\n", err)
	}

	cfg := Config{
		Port:      envOr("PORT", "3000"),
		SiteTitle: envOr("SITE_TITLE", "SpaceTraveling"),
		Timezone:  envOr("SITE_TIMEZONE", "America/Sao_Paulo"),

		CMSAPIURL:      os.Getenv("CMS_API_URL"),
		CMSAccessToken: os.Getenv("CMS_ACCESS_TOKEN"),

		ContentDir:     os.Getenv("CONTENT_DIR"),
		ContentAPIKey:  os.Getenv("CONTENT_API_KEY"),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10<<20),

		HomePageSize:      envInt("HOME_PAGE_SIZE", 1),
		SidePostsPageSize: envInt("SIDE_POSTS_PAGE_SIZE", 4),

		Revalidate:  envDuration("REVALIDATE", 10*time.Minute),
		SessionTTL:  envDuration("SESSION_TTL", 30*time.Minute),
		CacheDBPath: os.Getenv("CACHE_DB_PATH"),

		ReadingTimeMetric: envOr("READING_TIME_METRIC", "fragments"),
		ReadingWPM:        envInt("READING_WPM", 200),

		CommentsRepo:      os.Getenv("COMMENTS_REPO"),
		CommentsIssueTerm: envOr("COMMENTS_ISSUE_TERM", "pathname"),
		CommentsTheme:     envOr("COMMENTS_THEME", "github-dark"),

		ExportWorkers: envInt("EXPORT_WORKERS", 4),
	}

	if cfg.HomePageSize <= 0 {
		cfg.HomePageSize = 1
	}
	if cfg.SidePostsPageSize <= 0 {
		cfg.SidePostsPageSize = 4
	}
	if cfg.Revalidate <= 0 {
		cfg.Revalidate = 10 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.ReadingWPM <= 0 {
		cfg.ReadingWPM = 200
	}
	if cfg.ExportWorkers <= 0 {
		cfg.ExportWorkers = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	return cfg
}

func (c Config) Validate() error {
	if c.CMSAPIURL == "" && c.ContentDir == "" {
		return fmt.Errorf("one of CMS_API_URL or CONTENT_DIR is required")
	}
	if c.CMSAPIURL != "" && c.ContentDir != "" {
		return fmt.Errorf("CMS_API_URL and CONTENT_DIR are mutually exclusive")
	}
	switch c.ReadingTimeMetric {
	case "fragments", "words":
	default:
		return fmt.Errorf("READING_TIME_METRIC must be fragments or words, got %q", c.ReadingTimeMetric)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("SITE_TIMEZONE: %w", err)
	}
	return nil
}

// UsesLocalContent reports whether posts come from ContentDir.
func (c Config) UsesLocalContent() bool {
	return c.ContentDir != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
