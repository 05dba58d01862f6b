package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"merchantdispatch/internal/adapters/out/merchantapi"
	"merchantdispatch/internal/adapters/out/notify"
	"merchantdispatch/internal/core/application/coordinator"
	"merchantdispatch/internal/core/application/reconcile"
	"merchantdispatch/internal/core/domain/services"
	"merchantdispatch/internal/jobs"
	"merchantdispatch/internal/pkg/errs"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	APIBaseURL string
	APIToken   string
	PushURL    string
	PushToken  string
	// RoutingURL is optional; without it batch routes stay straight-line estimates.
	RoutingURL string

	RequestTimeout     time.Duration
	ProbeTimeout       time.Duration
	PollInterval       time.Duration
	Debounce           time.Duration
	RetryPrompt        time.Duration
	ClusterThresholdKm float64
	SpeedKmh           float64
	RouteMinInterval   time.Duration
	RouteMinMoveMeters float64
	FeedCapacity       int
}

// Lookup reads one variable; os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// LoadConfig loads .env when present and reads the configuration from the
// process environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return ParseConfig(os.LookupEnv)
}

// ParseConfig builds a Config, applying defaults for unset tunables. Every
// malformed value is reported, not just the first.
func ParseConfig(lookup Lookup) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		HTTPPort:   p.str("HTTP_PORT", "8080"),
		DBHost:     p.str("DB_HOST", "localhost"),
		DBPort:     p.str("DB_PORT", "5432"),
		DBUser:     p.str("DB_USER", ""),
		DBPassword: p.str("DB_PASSWORD", ""),
		DBName:     p.str("DB_NAME", ""),
		DBSslMode:  p.str("DB_SSLMODE", "disable"),

		APIBaseURL: p.url("API_BASE_URL", true),
		APIToken:   p.str("API_TOKEN", ""),
		PushURL:    p.url("PUSH_URL", true),
		PushToken:  p.str("PUSH_TOKEN", ""),
		RoutingURL: p.url("ROUTING_URL", false),

		RequestTimeout:     p.duration("REQUEST_TIMEOUT", merchantapi.DefaultTimeout),
		ProbeTimeout:       p.duration("PROBE_TIMEOUT", merchantapi.DefaultProbeTimeout),
		PollInterval:       p.duration("POLL_INTERVAL", jobs.DefaultPollInterval),
		Debounce:           p.duration("CONFIRM_DEBOUNCE", reconcile.DefaultDebounce),
		RetryPrompt:        p.duration("RETRY_PROMPT", coordinator.DefaultRetryPrompt),
		ClusterThresholdKm: p.float("CLUSTER_THRESHOLD_KM", services.DefaultClusterThresholdKm),
		SpeedKmh:           p.float("SPEED_KMH", services.DefaultSpeedKmh),
		RouteMinInterval:   p.duration("ROUTE_MIN_INTERVAL", services.DefaultRouteMinInterval),
		RouteMinMoveMeters: p.float("ROUTE_MIN_MOVE_METERS", services.DefaultRouteMinMoveMeters),
		FeedCapacity:       p.int("FEED_CAPACITY", notify.DefaultCapacity),
	}
	if cfg.DBName == "" {
		p.errList = append(p.errList, errs.NewValueIsRequiredError("DB_NAME"))
	}
	if err := errors.Join(p.errList...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DSN is the postgres connection string for gorm.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSslMode)
}

type parser struct {
	lookup  Lookup
	errList []error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) url(key string, required bool) string {
	v, ok := p.raw(key)
	if !ok {
		if required {
			p.errList = append(p.errList, errs.NewValueIsRequiredError(key))
		}
		return ""
	}
	u, err := url.Parse(v)
	if err != nil || !u.IsAbs() || u.Host == "" {
		p.errList = append(p.errList, errs.NewValueIsInvalidErrorWithCause(key, err))
		return ""
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.errList = append(p.errList, errs.NewValueIsInvalidErrorWithCause(key, err))
		return def
	}
	return d
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		p.errList = append(p.errList, errs.NewValueIsInvalidErrorWithCause(key, err))
		return def
	}
	return f
}

func (p *parser) int(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		p.errList = append(p.errList, errs.NewValueIsInvalidErrorWithCause(key, err))
		return def
	}
	return n
}
