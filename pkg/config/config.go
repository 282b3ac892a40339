package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for ttharvest
type Config struct {
	Platform      PlatformConfig     `yaml:"platform" json:"platform"`
	Cookies       CookiesConfig      `yaml:"cookies" json:"cookies"`
	Session       SessionConfig      `yaml:"session" json:"session"`
	Resolver      ResolverConfig     `yaml:"resolver" json:"resolver"`
	Extractor     ExtractorConfig    `yaml:"extractor" json:"extractor"`
	Pacing        PacingConfig       `yaml:"pacing" json:"pacing"`
	Storage       StorageConfig      `yaml:"storage" json:"storage"`
	Catalog       CatalogConfig      `yaml:"catalog" json:"catalog"`
	Scheduler     SchedulerConfig    `yaml:"scheduler" json:"scheduler"`
	Lock          LockConfig         `yaml:"lock" json:"lock"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Reports       ReportsConfig      `yaml:"reports" json:"reports"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// PlatformConfig describes the content platform
type PlatformConfig struct {
	BaseURL      string   `yaml:"base_url" json:"base_url" validate:"required,url"`
	CookieDomain string   `yaml:"cookie_domain" json:"cookie_domain" validate:"required"`
	AuthCookies  []string `yaml:"auth_cookies" json:"auth_cookies" validate:"min=1,dive,required"`
	UserAgent    string   `yaml:"user_agent" json:"user_agent"`
}

// CookiesConfig locates the exported cookie files
type CookiesConfig struct {
	Dir           string `yaml:"dir" json:"dir" validate:"required"`
	CurrentFile   string `yaml:"current_file" json:"current_file" validate:"required"`
	ArchivePrefix string `yaml:"archive_prefix" json:"archive_prefix"`
}

// SessionConfig controls browser-driven session refresh
type SessionConfig struct {
	StateDir           string        `yaml:"state_dir" json:"state_dir" validate:"required"`
	Encrypt            bool          `yaml:"encrypt" json:"encrypt"`
	AutoRefresh        bool          `yaml:"auto_refresh" json:"auto_refresh"`
	AllowInteractive   bool          `yaml:"allow_interactive" json:"allow_interactive"`
	ChromePath         string        `yaml:"chrome_path" json:"chrome_path"`
	HeadlessTimeout    time.Duration `yaml:"headless_timeout" json:"headless_timeout" validate:"gt=0"`
	InteractiveTimeout time.Duration `yaml:"interactive_timeout" json:"interactive_timeout" validate:"gt=0"`
	LoginTimeout       time.Duration `yaml:"login_timeout" json:"login_timeout" validate:"gt=0"`
	PollInterval       time.Duration `yaml:"poll_interval" json:"poll_interval" validate:"gt=0"`
}

// ResolverHost is one extractor configuration tried during handle resolution.
// An empty APIHostname with an empty Skip means the extractor defaults.
type ResolverHost struct {
	APIHostname string `yaml:"api_hostname" json:"api_hostname"`
	Skip        string `yaml:"skip" json:"skip"`
}

// ResolverConfig controls the handle resolution cache
type ResolverConfig struct {
	CacheFile string         `yaml:"cache_file" json:"cache_file" validate:"required"`
	BrokenTTL time.Duration  `yaml:"broken_ttl" json:"broken_ttl" validate:"gte=0"`
	Hosts     []ResolverHost `yaml:"hosts" json:"hosts" validate:"min=1"`
}

// ExtractorConfig controls the yt-dlp based strategies
type ExtractorConfig struct {
	Binary          string        `yaml:"binary" json:"binary" validate:"required"`
	PlaylistLimit   int           `yaml:"playlist_limit" json:"playlist_limit" validate:"min=1,max=50"`
	ListTimeout     time.Duration `yaml:"list_timeout" json:"list_timeout" validate:"gt=0"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout" validate:"gt=0"`
	AudioFormat     string        `yaml:"audio_format" json:"audio_format" validate:"required"`
	AudioQuality    string        `yaml:"audio_quality" json:"audio_quality" validate:"required"`
	AudioDir        string        `yaml:"audio_dir" json:"audio_dir" validate:"required"`
}

// PacingConfig holds the randomized delay windows
type PacingConfig struct {
	MinDelay      time.Duration `yaml:"min_delay" json:"min_delay" validate:"gte=0"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay" validate:"gte=0"`
	RateLimitMin  time.Duration `yaml:"rate_limit_min" json:"rate_limit_min" validate:"gte=0"`
	RateLimitMax  time.Duration `yaml:"rate_limit_max" json:"rate_limit_max" validate:"gte=0"`
	RetryMinDelay time.Duration `yaml:"retry_min_delay" json:"retry_min_delay" validate:"gte=0"`
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" json:"retry_max_delay" validate:"gte=0"`
}

// StorageConfig selects the record store
type StorageConfig struct {
	Driver   string         `yaml:"driver" json:"driver" validate:"oneof=postgres badger"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Badger   BadgerConfig   `yaml:"badger" json:"badger"`
}

// PostgresConfig holds connection settings shared by the record store and catalog
type PostgresConfig struct {
	DSN      string `yaml:"dsn" json:"dsn"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
	SSLMode  string `yaml:"sslmode" json:"sslmode"`
	MaxConns int32  `yaml:"max_conns" json:"max_conns" validate:"gte=0"`
	Table    string `yaml:"table" json:"table" validate:"required"`
}

// ConnString returns the DSN, building one from the discrete fields when unset
func (p PostgresConfig) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	if p.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(p.SSLMode)
	}
	return u.String()
}

// BadgerConfig locates the embedded record store
type BadgerConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SourceConfig is one statically configured tracked source
type SourceConfig struct {
	Handle string `yaml:"handle" json:"handle" validate:"required"`
	Name   string `yaml:"name" json:"name"`
}

// CatalogConfig selects where tracked sources come from
type CatalogConfig struct {
	Driver  string         `yaml:"driver" json:"driver" validate:"oneof=postgres static"`
	Table   string         `yaml:"table" json:"table"`
	Sources []SourceConfig `yaml:"sources" json:"sources" validate:"dive"`
}

// SchedulerConfig is the recurring-run trigger configuration
type SchedulerConfig struct {
	Type         string           `yaml:"type" json:"type" validate:"oneof=interval cron date"`
	Enabled      bool             `yaml:"enabled" json:"enabled"`
	Timezone     string           `yaml:"timezone" json:"timezone"`
	RunOnStartup bool             `yaml:"run_on_startup" json:"run_on_startup"`
	Settings     ScheduleSettings `yaml:"settings" json:"settings"`
}

// ScheduleSettings holds the per-type trigger fields
type ScheduleSettings struct {
	Interval IntervalSettings `yaml:"interval" json:"interval"`
	Cron     CronSettings     `yaml:"cron" json:"cron"`
	Date     DateSettings     `yaml:"date" json:"date"`
}

// IntervalSettings is a fixed period
type IntervalSettings struct {
	Hours   int `yaml:"hours" json:"hours" validate:"gte=0"`
	Minutes int `yaml:"minutes" json:"minutes" validate:"gte=0"`
	Seconds int `yaml:"seconds" json:"seconds" validate:"gte=0"`
}

// Duration returns the total period
func (i IntervalSettings) Duration() time.Duration {
	return time.Duration(i.Hours)*time.Hour +
		time.Duration(i.Minutes)*time.Minute +
		time.Duration(i.Seconds)*time.Second
}

// CronSettings are cron fields; empty fields take their defaults
type CronSettings struct {
	Hour      string `yaml:"hour" json:"hour"`
	Minute    string `yaml:"minute" json:"minute"`
	DayOfWeek string `yaml:"day_of_week" json:"day_of_week"`
}

// DateSettings is a single run
type DateSettings struct {
	RunDate string `yaml:"run_date" json:"run_date"`
}

// LockConfig selects single-instance enforcement
type LockConfig struct {
	Driver string        `yaml:"driver" json:"driver" validate:"oneof=file redis none"`
	Path   string        `yaml:"path" json:"path"`
	TTL    time.Duration `yaml:"ttl" json:"ttl" validate:"gt=0"`
	Redis  RedisConfig   `yaml:"redis" json:"redis"`
}

// RedisConfig holds the redis lock connection
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db" validate:"gte=0"`
	Key      string `yaml:"key" json:"key"`
}

// NotificationConfig holds desktop notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnFailure  bool `yaml:"on_failure" json:"on_failure"`
}

// ReportsConfig controls the per-run JSON report
type ReportsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level" validate:"oneof=debug info warn warning error"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultResolverHosts is the ordered list of extractor configurations tried
// when resolving a handle. The final empty entry uses the extractor defaults.
func DefaultResolverHosts() []ResolverHost {
	return []ResolverHost{
		{APIHostname: "api16-normal-c-useast1a.tiktokv.com", Skip: "web"},
		{APIHostname: "api22-normal-c-useast1a.tiktokv.com", Skip: "web"},
		{APIHostname: "api.tiktokv.com"},
		{},
	}
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL:      "https://www.tiktok.com",
			CookieDomain: "tiktok",
			AuthCookies:  []string{"sessionid", "sid_tt", "uid_tt"},
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		Cookies: CookiesConfig{
			Dir:           "cookies",
			CurrentFile:   "tiktok_refreshed.txt",
			ArchivePrefix: "tiktok",
		},
		Session: SessionConfig{
			StateDir:           "browser_state",
			AutoRefresh:        true,
			AllowInteractive:   true,
			HeadlessTimeout:    60 * time.Second,
			InteractiveTimeout: 120 * time.Second,
			LoginTimeout:       300 * time.Second,
			PollInterval:       2 * time.Second,
		},
		Resolver: ResolverConfig{
			CacheFile: filepath.Join("cache", "resolve_cache.json"),
			Hosts:     DefaultResolverHosts(),
		},
		Extractor: ExtractorConfig{
			Binary:          "yt-dlp",
			PlaylistLimit:   10,
			ListTimeout:     120 * time.Second,
			DownloadTimeout: 300 * time.Second,
			AudioFormat:     "mp3",
			AudioQuality:    "192K",
			AudioDir:        filepath.Join("downloads", "audio"),
		},
		Pacing: PacingConfig{
			MinDelay:      40 * time.Second,
			MaxDelay:      50 * time.Second,
			RateLimitMin:  5 * time.Minute,
			RateLimitMax:  15 * time.Minute,
			RetryMinDelay: 10 * time.Second,
			RetryMaxDelay: 20 * time.Second,
		},
		Storage: StorageConfig{
			Driver: "postgres",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				User:     "postgres",
				SSLMode:  "disable",
				MaxConns: 4,
				Table:    "yt_post",
			},
			Badger: BadgerConfig{
				Path: filepath.Join("data", "records"),
			},
		},
		Catalog: CatalogConfig{
			Driver: "postgres",
			Table:  "tt_group",
		},
		Scheduler: SchedulerConfig{
			Type:     "interval",
			Enabled:  true,
			Timezone: "Asia/Ho_Chi_Minh",
			Settings: ScheduleSettings{
				Interval: IntervalSettings{Hours: 1},
				Cron:     CronSettings{Hour: "*", Minute: "0", DayOfWeek: "*"},
			},
		},
		Lock: LockConfig{
			Driver: "file",
			Path:   "ttharvest.lock",
			TTL:    10 * time.Minute,
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "ttharvest:run-lock",
			},
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnFailure:  true,
		},
		Reports: ReportsConfig{
			Enabled: true,
			Dir:     "reports",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables. The DB_*
// variables are kept for deployments that predate the TTHARVEST_ prefix.
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	setString("DB_HOST", &c.Storage.Postgres.Host)
	setInt("DB_PORT", &c.Storage.Postgres.Port)
	setString("DB_NAME", &c.Storage.Postgres.Database)
	setString("DB_USER", &c.Storage.Postgres.User)
	setString("DB_PASSWORD", &c.Storage.Postgres.Password)
	setString("TTHARVEST_DATABASE_URL", &c.Storage.Postgres.DSN)

	setString("TTHARVEST_STORAGE_DRIVER", &c.Storage.Driver)
	setString("TTHARVEST_BADGER_PATH", &c.Storage.Badger.Path)
	setString("TTHARVEST_CATALOG_DRIVER", &c.Catalog.Driver)
	setString("TTHARVEST_COOKIES_DIR", &c.Cookies.Dir)
	setString("TTHARVEST_STATE_DIR", &c.Session.StateDir)
	setString("TTHARVEST_CHROME_PATH", &c.Session.ChromePath)
	setBool("TTHARVEST_AUTO_REFRESH", &c.Session.AutoRefresh)
	setString("TTHARVEST_YTDLP", &c.Extractor.Binary)
	setString("TTHARVEST_AUDIO_DIR", &c.Extractor.AudioDir)
	setString("TTHARVEST_TIMEZONE", &c.Scheduler.Timezone)
	setBool("TTHARVEST_SCHEDULER_ENABLED", &c.Scheduler.Enabled)
	setBool("TTHARVEST_RUN_ON_STARTUP", &c.Scheduler.RunOnStartup)
	setString("TTHARVEST_LOCK_DRIVER", &c.Lock.Driver)
	setString("TTHARVEST_REDIS_ADDR", &c.Lock.Redis.Addr)
	setString("TTHARVEST_REDIS_PASSWORD", &c.Lock.Redis.Password)
	setString("TTHARVEST_LOG_LEVEL", &c.Logging.Level)
	setString("TTHARVEST_LOG_FILE", &c.Logging.File)
	setBool("TTHARVEST_NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// ConfigLocations lists the files searched when no config path is given
func ConfigLocations() []string {
	home := os.Getenv("HOME")
	return []string{
		".ttharvest.yaml",
		".ttharvest.yml",
		filepath.Join(home, ".config", "ttharvest", "config.yaml"),
		filepath.Join(home, ".config", "ttharvest", "config.yml"),
		filepath.Join(home, ".ttharvest.yaml"),
	}
}

func findConfigFile() string {
	for _, loc := range ConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration. Struct tags cover single fields; the
// cross-field rules are checked here.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if c.Pacing.MinDelay > c.Pacing.MaxDelay {
		errs = append(errs, errors.New("pacing.min_delay must not exceed pacing.max_delay"))
	}
	if c.Pacing.RateLimitMin > c.Pacing.RateLimitMax {
		errs = append(errs, errors.New("pacing.rate_limit_min must not exceed pacing.rate_limit_max"))
	}
	if c.Pacing.RetryMinDelay > c.Pacing.RetryMaxDelay {
		errs = append(errs, errors.New("pacing.retry_min_delay must not exceed pacing.retry_max_delay"))
	}

	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if c.Scheduler.Type == "date" && c.Scheduler.Settings.Date.RunDate == "" {
		errs = append(errs, errors.New("scheduler.settings.date.run_date is required for date schedules"))
	}

	if c.Storage.Driver == "badger" && c.Storage.Badger.Path == "" {
		errs = append(errs, errors.New("storage.badger.path is required for the badger driver"))
	}
	if c.Catalog.Driver == "static" && len(c.Catalog.Sources) == 0 {
		errs = append(errs, errors.New("catalog.sources must not be empty for the static driver"))
	}
	if c.Catalog.Driver == "postgres" && c.Catalog.Table == "" {
		errs = append(errs, errors.New("catalog.table is required for the postgres driver"))
	}
	if c.Lock.Driver == "file" && c.Lock.Path == "" {
		errs = append(errs, errors.New("lock.path is required for the file driver"))
	}
	if c.Lock.Driver == "redis" && (c.Lock.Redis.Addr == "" || c.Lock.Redis.Key == "") {
		errs = append(errs, errors.New("lock.redis.addr and lock.redis.key are required for the redis driver"))
	}
	if c.Reports.Enabled && c.Reports.Dir == "" {
		errs = append(errs, errors.New("reports.dir is required when reports are enabled"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags applies flag values set on the command line
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["no-color"].(bool); ok {
		c.Logging.NoColor = v
	}
	if v, ok := flags["storage"].(string); ok && v != "" {
		c.Storage.Driver = v
	}
	if v, ok := flags["catalog"].(string); ok && v != "" {
		c.Catalog.Driver = v
	}
	if v, ok := flags["run-on-startup"].(bool); ok {
		c.Scheduler.RunOnStartup = v
	}
	if v, ok := flags["chrome-path"].(string); ok && v != "" {
		c.Session.ChromePath = v
	}
}

// Load loads configuration from all sources.
// Precedence: command line flags > environment > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".ttharvest.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
