package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Memcache MemcacheConfig
	Batch    BatchConfig
	Filter   FilterConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	Driver            string
	Concurrency       int
	MaxPages          int
	HarvestDelayMin   time.Duration
	HarvestDelayMax   time.Duration
	DispatchDelayMin  time.Duration
	DispatchDelayMax  time.Duration
	WaitTimeout       time.Duration
	UserAgents        []string
	Proxies           []string
	ProxyCheckURL     string
	ProxyCheckTimeout time.Duration
	JobPollInterval   time.Duration
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	BlockImages    bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// DSN renders a postgres connection URL usable by pgx and golang-migrate.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
}

type MemcacheConfig struct {
	Addr string
	TTL  time.Duration
}

// Enabled reports whether the page cache should be used.
func (m MemcacheConfig) Enabled() bool {
	return m.Addr != ""
}

type BatchConfig struct {
	Size         int
	RandomCount  int
	OutputJSON   string
	OutputCSV    string
	ErrorLog     string
	ProgressFile string
	LinksFile    string
}

type FilterConfig struct {
	Query      string
	MinPrice   float64
	MaxPrice   float64
	MinRating  float64
	MinReviews int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. Values in a .env file in
// the working directory are applied first without overriding real
// environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Scraper: ScraperConfig{
			Driver:            getEnvOrDefault("SCRAPER_DRIVER", "playwright"),
			Concurrency:       getIntOrDefault("SCRAPER_CONCURRENCY", 4),
			MaxPages:          getIntOrDefault("SCRAPER_MAX_PAGES", 1),
			HarvestDelayMin:   getDurationOrDefault("SCRAPER_HARVEST_DELAY_MIN", 200*time.Millisecond),
			HarvestDelayMax:   getDurationOrDefault("SCRAPER_HARVEST_DELAY_MAX", 500*time.Millisecond),
			DispatchDelayMin:  getDurationOrDefault("SCRAPER_DISPATCH_DELAY_MIN", 100*time.Millisecond),
			DispatchDelayMax:  getDurationOrDefault("SCRAPER_DISPATCH_DELAY_MAX", 300*time.Millisecond),
			WaitTimeout:       getDurationOrDefault("SCRAPER_WAIT_TIMEOUT", 10*time.Second),
			UserAgents:        getStringSliceOrDefault("SCRAPER_USER_AGENTS", nil),
			Proxies:           getStringSliceOrDefault("SCRAPER_PROXIES", []string{}),
			ProxyCheckURL:     getEnvOrDefault("SCRAPER_PROXY_CHECK_URL", "https://www.wildberries.ru"),
			ProxyCheckTimeout: getDurationOrDefault("SCRAPER_PROXY_CHECK_TIMEOUT", 5*time.Second),
			JobPollInterval:   getDurationOrDefault("SCRAPER_JOB_POLL_INTERVAL", 5*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ru-RU,ru;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Moscow"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ru-RU"),
			BlockImages:    getBoolOrDefault("BROWSER_BLOCK_IMAGES", true),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "wb_deals"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:wb_deals"),
			Group:    getEnvOrDefault("REDIS_GROUP", "deal-notifier"),
		},
		Memcache: MemcacheConfig{
			Addr: getEnvOrDefault("MEMCACHE_ADDR", ""),
			TTL:  getDurationOrDefault("MEMCACHE_TTL", 30*time.Minute),
		},
		Batch: BatchConfig{
			Size:         getIntOrDefault("BATCH_SIZE", 1000),
			RandomCount:  getIntOrDefault("BATCH_RANDOM_COUNT", 100),
			OutputJSON:   getEnvOrDefault("BATCH_OUTPUT_JSON", "results.json"),
			OutputCSV:    getEnvOrDefault("BATCH_OUTPUT_CSV", "results.csv"),
			ErrorLog:     getEnvOrDefault("BATCH_ERROR_LOG", "errors.log"),
			ProgressFile: getEnvOrDefault("BATCH_PROGRESS_FILE", "progress.json"),
			LinksFile:    getEnvOrDefault("BATCH_LINKS_FILE", "links.json"),
		},
		Filter: FilterConfig{
			Query:      getEnvOrDefault("FILTER_QUERY", "маска для волос"),
			MinPrice:   getFloatOrDefault("FILTER_MIN_PRICE", 0),
			MaxPrice:   getFloatOrDefault("FILTER_MAX_PRICE", 100000),
			MinRating:  getFloatOrDefault("FILTER_MIN_RATING", 0),
			MinReviews: getIntOrDefault("FILTER_MIN_REVIEWS", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.Concurrency < 1 {
		return fmt.Errorf("SCRAPER_CONCURRENCY must be at least 1")
	}

	if c.Scraper.HarvestDelayMin > c.Scraper.HarvestDelayMax {
		return fmt.Errorf("SCRAPER_HARVEST_DELAY_MIN cannot be greater than SCRAPER_HARVEST_DELAY_MAX")
	}

	if c.Scraper.DispatchDelayMin > c.Scraper.DispatchDelayMax {
		return fmt.Errorf("SCRAPER_DISPATCH_DELAY_MIN cannot be greater than SCRAPER_DISPATCH_DELAY_MAX")
	}

	switch c.Scraper.Driver {
	case "playwright", "chromedp", "http":
	default:
		return fmt.Errorf("SCRAPER_DRIVER must be one of playwright, chromedp, http; got %q", c.Scraper.Driver)
	}

	if c.Scraper.MaxPages < -1 || c.Scraper.MaxPages == 0 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be positive or -1 for all pages")
	}

	if c.Batch.Size < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}

	if c.Filter.MinPrice < 0 || c.Filter.MaxPrice < 0 {
		return fmt.Errorf("FILTER_MIN_PRICE and FILTER_MAX_PRICE cannot be negative")
	}

	if c.Filter.MinPrice > c.Filter.MaxPrice {
		return fmt.Errorf("FILTER_MIN_PRICE cannot be greater than FILTER_MAX_PRICE")
	}

	if c.Filter.MinRating < 0 || c.Filter.MinRating > 5 {
		return fmt.Errorf("FILTER_MIN_RATING must be between 0 and 5")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
