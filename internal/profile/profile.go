package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the scheduling daemon.
type Profile struct {
	// Mode is one of "prod", "dev", "demo".
	Mode string
	// Addr is the bind address of the metrics endpoint.
	Addr string
	// Port is the port of the metrics endpoint.
	Port int
	// Data is the directory holding local state (sqlite database, exports).
	Data string
	// Driver is the storage driver: "sqlite" or "postgres".
	Driver string
	// DSN is the driver-specific data source name.
	DSN string
	// Version is the engine version stamped at startup.
	Version string

	// DefaultTimezone is the IANA zone assumed for schedules created
	// without one.
	DefaultTimezone string
	// SweepInterval is how often the background sweeper resyncs shops
	// against the store and regenerates export artifacts.
	SweepInterval time.Duration
	// WarmLoadLimit bounds how many shop indexes may load concurrently.
	WarmLoadLimit int
	// ReloadPerMinute throttles per-shop reloads triggered outside the
	// sweeper.
	ReloadPerMinute int
	// CacheTTL bounds staleness of cached store reads.
	CacheTTL time.Duration
	// ExportDir receives generated .ics/.rss marketing calendar files.
	// Empty disables export generation.
	ExportDir string
	// FeedBaseURL is the site URL stamped into generated RSS feeds.
	FeedBaseURL string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// MetricsAddr returns the listen address of the metrics endpoint.
func (p *Profile) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads engine tuning knobs from environment variables. Core
// settings (mode, driver, dsn, addr) come from flags via the CLI layer.
func (p *Profile) FromEnv() {
	p.DefaultTimezone = getEnvOrDefault("POPUPKIT_DEFAULT_TIMEZONE", "UTC")
	p.SweepInterval = time.Duration(getEnvOrDefaultInt("POPUPKIT_SWEEP_INTERVAL_SECONDS", 300)) * time.Second
	p.WarmLoadLimit = getEnvOrDefaultInt("POPUPKIT_WARM_LOAD_LIMIT", 3)
	p.ReloadPerMinute = getEnvOrDefaultInt("POPUPKIT_RELOAD_PER_MINUTE", 6)
	p.CacheTTL = time.Duration(getEnvOrDefaultInt("POPUPKIT_CACHE_TTL_SECONDS", 300)) * time.Second
	p.ExportDir = getEnvOrDefault("POPUPKIT_EXPORT_DIR", "")
	p.FeedBaseURL = getEnvOrDefault("POPUPKIT_FEED_BASE_URL", "")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "popupkit")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/popupkit"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("popupkit_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.DefaultTimezone == "" {
		p.DefaultTimezone = "UTC"
	} else if _, err := time.LoadLocation(p.DefaultTimezone); err != nil {
		slog.Warn("invalid default timezone, using UTC", "timezone", p.DefaultTimezone)
		p.DefaultTimezone = "UTC"
	}
	if p.SweepInterval <= 0 {
		p.SweepInterval = 5 * time.Minute
	}
	if p.WarmLoadLimit <= 0 {
		p.WarmLoadLimit = 3
	}
	if p.ReloadPerMinute <= 0 {
		p.ReloadPerMinute = 6
	}

	return nil
}
