package homepage

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-envparse"
	"github.com/hashicorp/go-multierror"

	"github.com/urdh/homepage/cache"
	"github.com/urdh/homepage/feeds"
	"github.com/urdh/homepage/security"
)

// Config is the process configuration, read from the environment.
type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the feeds RPC server

	LogLevel string
	LogJSON  bool

	GoodreadsAPIKey feeds.Secret
	LastFMAPIKey    feeds.Secret
	GitHubToken     feeds.Secret // optional

	CacheMaxEntries      int64 // zero keeps the unbounded in-memory store
	CacheCleanupInterval time.Duration

	TraceStdout bool

	MetricsAllow   []string
	TrustedProxies []string

	// GRPCAllow restricts RPC clients. Empty allows everyone.
	GRPCAllow []string
	GRPCRPS   float64
	GRPCBurst int
}

// DefaultConfig returns a Config with every optional setting at its default.
// The API keys are left empty.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:             "0.0.0.0:80",
		LogLevel:             "info",
		CacheCleanupInterval: cache.DefaultCleanupInterval,
		MetricsAllow:         append([]string(nil), security.DefaultPrivateCIDRs...),
		GRPCRPS:              10,
		GRPCBurst:            20,
	}
}

// LoadConfig reads the configuration from the environment. If envFile names
// an existing file its variables are merged in first; variables already set
// in the environment take precedence. A missing envFile is not an error.
func LoadConfig(envFile string) (*Config, error) {
	vars := map[string]string{}
	if envFile != "" {
		f, err := os.Open(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: %w", err)
		default:
			parsed, err := envparse.Parse(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", envFile, err)
			}
			vars = parsed
		}
	}

	return parseConfig(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	})
}

// parseConfig builds a Config from lookup, reporting every invalid or
// missing variable at once.
func parseConfig(lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()
	var errs *multierror.Error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	secret := func(key string, dst *feeds.Secret, required bool) {
		v, _ := lookup(key)
		if v == "" && required {
			errs = multierror.Append(errs, fmt.Errorf("missing %s", key))
		}
		*dst = feeds.Secret(v)
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int64) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				errs = multierror.Append(errs, fmt.Errorf("invalid %s: %q", key, v))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	cidrs := func(key string, dst *[]string) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		list := splitList(v)
		for _, c := range list {
			if _, err := netip.ParsePrefix(c); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
		}
		*dst = list
	}

	str("HOMEPAGE_HTTP_ADDR", &cfg.HTTPAddr)
	str("HOMEPAGE_GRPC_ADDR", &cfg.GRPCAddr)
	str("HOMEPAGE_LOG_LEVEL", &cfg.LogLevel)
	boolean("HOMEPAGE_LOG_JSON", &cfg.LogJSON)
	secret("GOODREADS_API_KEY", &cfg.GoodreadsAPIKey, true)
	secret("LASTFM_API_KEY", &cfg.LastFMAPIKey, true)
	secret("GITHUB_TOKEN", &cfg.GitHubToken, false)
	integer("HOMEPAGE_CACHE_MAX_ENTRIES", &cfg.CacheMaxEntries)
	duration("HOMEPAGE_CACHE_CLEANUP_INTERVAL", &cfg.CacheCleanupInterval)
	boolean("HOMEPAGE_TRACE_STDOUT", &cfg.TraceStdout)
	cidrs("HOMEPAGE_METRICS_ALLOW", &cfg.MetricsAllow)
	cidrs("HOMEPAGE_TRUSTED_PROXIES", &cfg.TrustedProxies)
	cidrs("HOMEPAGE_GRPC_ALLOW", &cfg.GRPCAllow)
	float("HOMEPAGE_GRPC_RPS", &cfg.GRPCRPS)

	burst := int64(cfg.GRPCBurst)
	integer("HOMEPAGE_GRPC_BURST", &burst)
	cfg.GRPCBurst = int(burst)

	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// splitList splits a comma or whitespace separated list.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}
