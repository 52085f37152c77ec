package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"8080"`
	AppURL string `env:"APP_URL" default:"http://localhost:8080"`
	// AllowedOrigins lists extra browser origins (comma-separated) that may call the
	// API and open websocket connections, e.g. storefronts embedding the vote widget.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
	LogLevel       string `env:"LOG_LEVEL" default:"info"`
	LogFormat      string `env:"LOG_FORMAT" default:"text"`

	StoreBackend        string        `env:"STORE_BACKEND" default:"file"`
	LedgerPath          string        `env:"LEDGER_PATH" default:"data/votes.json"`
	LedgerHistoryLimit  int           `env:"LEDGER_HISTORY_LIMIT" default:"1000"`
	LedgerWriteAttempts int           `env:"LEDGER_WRITE_ATTEMPTS" default:"3"`
	LedgerWriteBackoff  time.Duration `env:"LEDGER_WRITE_BACKOFF" default:"50ms"`
	ProductIDs          string        `env:"PRODUCT_IDS"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	DBMaxConns          int           `env:"DB_MAX_CONNS" default:"10"`
	DBMinConns          int           `env:"DB_MIN_CONNS" default:"1"`
	RedisURL            string        `env:"REDIS_URL"`

	VoteRateLimit    int           `env:"VOTE_RATE_LIMIT" default:"10"`
	VoteRateWindow   time.Duration `env:"VOTE_RATE_WINDOW" default:"60s"`
	StatusRateLimit  int           `env:"STATUS_RATE_LIMIT" default:"120"`
	StatusRateWindow time.Duration `env:"STATUS_RATE_WINDOW" default:"60s"`

	StatusCacheTTL     time.Duration `env:"STATUS_CACHE_TTL" default:"30s"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" default:"1m"`

	HistoryPruneInterval time.Duration `env:"HISTORY_PRUNE_INTERVAL" default:"1m"`

	HTTPRatePerSecond float64 `env:"HTTP_RATE_PER_SECOND" default:"50"`
	HTTPRateBurst     int     `env:"HTTP_RATE_BURST" default:"100"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Catalog returns the static product ids configured for the file backend.
func (c *Config) Catalog() []string {
	var ids []string
	for part := range strings.SplitSeq(c.ProductIDs, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// OriginPolicy decides which browser origins may reach the API and websocket.
type OriginPolicy struct {
	origins        map[string]struct{}
	allowLocalhost bool
}

// Origins builds the policy from APP_URL and ALLOWED_ORIGINS. Outside production,
// localhost origins on any port are accepted too.
func (c *Config) Origins() OriginPolicy {
	p := OriginPolicy{origins: make(map[string]struct{}), allowLocalhost: !c.IsProduction()}
	if o, ok := normalizeOrigin(c.AppURL); ok {
		p.origins[o] = struct{}{}
	}
	for part := range strings.SplitSeq(c.AllowedOrigins, ",") {
		if o, ok := normalizeOrigin(strings.TrimSpace(part)); ok {
			p.origins[o] = struct{}{}
		}
	}
	return p
}

// Allows reports whether origin may connect. An empty origin means a same-origin or
// non-browser client.
func (p OriginPolicy) Allows(origin string) bool {
	if origin == "" {
		return true
	}
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if _, found := p.origins[normalized]; found {
		return true
	}
	if !p.allowLocalhost {
		return false
	}
	u, _ := url.Parse(normalized)
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

func normalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	switch cfg.StoreBackend {
	case BackendFile:
		if len(cfg.Catalog()) == 0 {
			return errors.New("PRODUCT_IDS is required when STORE_BACKEND=file")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
		if cfg.DBMaxConns <= 0 || cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
			return errors.New("DB_MIN_CONNS and DB_MAX_CONNS must satisfy 0 <= min <= max, max > 0")
		}
		if cfg.IsProduction() {
			if err := validateSSLMode(cfg.DatabaseURL); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendFile, BackendPostgres, cfg.StoreBackend)
	}

	positive := map[string]int{
		"LEDGER_HISTORY_LIMIT":  cfg.LedgerHistoryLimit,
		"LEDGER_WRITE_ATTEMPTS": cfg.LedgerWriteAttempts,
		"VOTE_RATE_LIMIT":       cfg.VoteRateLimit,
		"STATUS_RATE_LIMIT":     cfg.StatusRateLimit,
		"HTTP_RATE_BURST":       cfg.HTTPRateBurst,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	durations := map[string]time.Duration{
		"VOTE_RATE_WINDOW":       cfg.VoteRateWindow,
		"STATUS_RATE_WINDOW":     cfg.StatusRateWindow,
		"STATUS_CACHE_TTL":       cfg.StatusCacheTTL,
		"CACHE_SWEEP_INTERVAL":   cfg.CacheSweepInterval,
		"HISTORY_PRUNE_INTERVAL": cfg.HistoryPruneInterval,
	}
	for name, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	for part := range strings.SplitSeq(cfg.AllowedOrigins, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		if _, ok := normalizeOrigin(part); !ok {
			return fmt.Errorf("ALLOWED_ORIGINS entry %q is not a scheme://host origin", part)
		}
	}

	if cfg.HTTPRatePerSecond <= 0 {
		return errors.New("HTTP_RATE_PER_SECOND must be positive")
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
