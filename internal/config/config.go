package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
		"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

const (
	settingsFile     = "config/setting.yaml"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/streamledger.yaml"
	dotEnvFile       = ".env"
	envPrefix        = "STREAMLEDGER_"
)

// Config describes runtime options for the daemon.
type Config struct {
	Environment     string
	AppName         string
	Debug           bool
	HTTPAddress     string
	ShutdownTimeout time.Duration

	// Storage
	DatabaseDriver    string // sqlite | pgx | postgres
	DatabaseURL       string
	SQLitePath        string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	SaveTimeout       time.Duration

	// Upstream
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIOrg          string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int
	LLMRequestTimeout  time.Duration
	RetryAttempts      int
	RetryBackoff       time.Duration
	FallbackTokenDelay time.Duration
	ResponseFormat     string

	// Access control
	APIKey             string
	CORSAllowedOrigins []string
	RateLimitEnabled   bool
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	// Logging
	LogJSON     bool
	LogLevel    string
	LogFile     string
	LogMaxBytes int64

	DefaultPageLimit int
	MaxPageLimit     int
}

// Load resolves configuration for the process rooted at root. Sources in
// increasing precedence: built-in defaults, config/setting.yaml, the active
// environment's config/<env>/streamledger.yaml, then process environment
// (STREAMLEDGER_<KEY> or bare <KEY>). A .env file in root fills environment
// variables that are not already set.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	if err := loadDotEnv(filepath.Join(root, dotEnvFile)); err != nil {
		return Config{}, err
	}
	settings, err := loadYAML(filepath.Join(root, settingsFile))
	if err != nil {
		return Config{}, err
	}
	env := firstNonEmpty(lookupEnv("environment"), settings["environment"], defaultEnv)
	envValues, err := loadYAML(filepath.Join(root, fmt.Sprintf(envConfigPattern, env)))
	if err != nil {
		return Config{}, err
	}

	merged := make(map[string]string)
	for k, v := range settings {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}
	l := &loader{merged: merged}

	cfg := Config{
		Environment:     env,
		AppName:         l.get("app_name", "streamledger"),
		Debug:           l.getBool("debug", false),
		HTTPAddress:     l.get("http_address", ":8000"),
		ShutdownTimeout: l.getDuration("shutdown_timeout", 10*time.Second),

		DatabaseDriver:    strings.ToLower(l.get("database_driver", "")),
		DatabaseURL:       l.get("database_url", ""),
		SQLitePath:        l.get("sqlite_path", DefaultSQLitePath()),
		DBMaxOpenConns:    l.getInt("db_max_open_conns", 20),
		DBMaxIdleConns:    l.getInt("db_max_idle_conns", 5),
		DBConnMaxLifetime: l.getDuration("db_conn_max_lifetime", 30*time.Minute),
		DBConnMaxIdleTime: l.getDuration("db_conn_max_idle_time", 5*time.Minute),
		SaveTimeout:       l.getDuration("save_timeout", 10*time.Second),

		OpenAIAPIKey:       l.get("openai_api_key", ""),
		OpenAIBaseURL:      l.get("openai_base_url", ""),
		OpenAIOrg:          l.get("openai_org", ""),
		LLMModel:           l.get("llm_model", "gpt-3.5-turbo"),
		LLMTemperature:     l.getFloat("llm_temperature", 0.7),
		LLMMaxTokens:       l.getInt("llm_max_tokens", 1000),
		LLMRequestTimeout:  l.getDuration("llm_request_timeout", 60*time.Second),
		RetryAttempts:      l.getInt("retry_attempts", 3),
		RetryBackoff:       l.getDuration("retry_backoff", 500*time.Millisecond),
		FallbackTokenDelay: l.getDuration("fallback_token_delay", 50*time.Millisecond),
		ResponseFormat:     strings.ToLower(l.get("response_format", "text")),

		APIKey:             l.get("api_key", ""),
		CORSAllowedOrigins: parseCSV(l.get("cors_allowed_origins", "*")),
		RateLimitEnabled:   l.getBool("rate_limit_enabled", true),
		RateLimitRequests:  l.getInt("rate_limit_requests", 60),
		RateLimitWindow:    time.Duration(l.getInt("rate_limit_window_seconds", 60)) * time.Second,

		LogJSON:     l.getBool("log_json", true),
		LogLevel:    strings.ToLower(l.get("log_level", "info")),
		LogFile:     l.get("log_file", ""),
		LogMaxBytes: int64(l.getInt("log_max_bytes", 0)),

		DefaultPageLimit: l.getInt("default_page_limit", 10),
		MaxPageLimit:     l.getInt("max_page_limit", 100),
	}
	if cfg.Debug && l.get("log_level", "") == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = postgresURLFromParts(l)
	}
	if err := errors.Join(l.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case "", "sqlite", "pgx", "postgres":
	default:
		errs = append(errs, fmt.Errorf("invalid database_driver %q", c.DatabaseDriver))
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("invalid llm_temperature %v: must be within [0, 2]", c.LLMTemperature))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("invalid llm_max_tokens %d: must be positive", c.LLMMaxTokens))
	}
	if c.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("invalid retry_attempts %d: must be positive", c.RetryAttempts))
	}
	switch c.ResponseFormat {
	case "text", "openai":
	default:
		errs = append(errs, fmt.Errorf("invalid response_format %q", c.ResponseFormat))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log_level %q", c.LogLevel))
	}
	if c.RateLimitEnabled && (c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0) {
		errs = append(errs, errors.New("invalid rate limit: rate_limit_requests and rate_limit_window_seconds must be positive"))
	}
	if c.MaxPageLimit <= 0 || c.DefaultPageLimit <= 0 || c.DefaultPageLimit > c.MaxPageLimit {
		errs = append(errs, fmt.Errorf("invalid page limits: default_page_limit %d, max_page_limit %d", c.DefaultPageLimit, c.MaxPageLimit))
	}
	return errors.Join(errs...)
}

// UpstreamConfigured reports whether a real provider credential is present.
func (c Config) UpstreamConfigured() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// DefaultSQLitePath is used when no database url is configured.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", "streamledger.db")
	}
	return filepath.Join(home, ".streamledger", "history.db")
}

type loader struct {
	merged map[string]string
	errs   []error
}

func (l *loader) get(key, fallback string) string {
	return strings.TrimSpace(firstNonEmpty(lookupEnv(key), l.merged[key], fallback))
}

func (l *loader) getInt(key string, fallback int) int {
	v := l.get(key, "")
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return fallback
	}
	return parsed
}

func (l *loader) getFloat(key string, fallback float64) float64 {
	v := l.get(key, "")
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return fallback
	}
	return parsed
}

func (l *loader) getBool(key string, fallback bool) bool {
	return parseOptionalBool(l.get(key, ""), fallback)
}

// getDuration accepts Go duration strings; a bare number is read as seconds.
func (l *loader) getDuration(key string, fallback time.Duration) time.Duration {
	v := l.get(key, "")
	if v == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return fallback
	}
	return parsed
}

func postgresURLFromParts(l *loader) string {
	host := l.get("postgres_host", "")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(l.get("postgres_user", "postgres"), l.get("postgres_password", "")),
		Host:   net.JoinHostPort(host, l.get("postgres_port", "5432")),
		Path:   "/" + l.get("postgres_db", "streamledger"),
	}
	if mode := l.get("postgres_sslmode", ""); mode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(mode)
	}
	return u.String()
}

func lookupEnv(key string) string {
	upper := strings.ToUpper(key)
	return firstNonEmpty(os.Getenv(envPrefix+upper), os.Getenv(upper))
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadYAML reads a YAML mapping into flat lower-case keys. Nested mappings
// are joined with "_", so rate_limit: {enabled: true} yields
// rate_limit_enabled. A missing file yields an empty map.
func loadYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[string]string)
	flatten("", raw, out)
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseCSV(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
