package config

import (
	"time"
)

// Default configuration values.
const (
	defaultServiceName  = "ads-correlator"
	defaultServicePort  = 8097
	defaultVersion      = "0.1.0"
	defaultLoggingLevel = "info"
	defaultLoggingFmt   = "json"

	defaultDirectAPIURL     = "https://api.direct.yandex.com/json/v5"
	defaultDirectSandboxURL = "https://api-sandbox.direct.yandex.com/json/v5"
	defaultMetricaAPIURL    = "https://api-metrika.yandex.net"

	defaultRetryMaxAttempts = 3
	defaultRetryBaseDelayMS = 500
	defaultRetryMaxDelayS   = 8

	defaultCacheTTLSeconds = 300
	defaultCacheBackend    = "memory"
	defaultRedisAddr       = "localhost:6379"

	defaultExportMaxWaitS    = 60
	defaultExportPollDelayS  = 2
	defaultExportPollMaxS    = 10
	defaultExportRowBudget   = 20000
	defaultExportJobTTLHours = 24
	defaultDirectReportRows  = 200000
)

// Config holds the application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Logging  LoggingConfig  `yaml:"logging"`
	Direct   DirectConfig   `yaml:"direct"`
	Metrica  MetricaConfig  `yaml:"metrica"`
	Retry    RetryConfig    `yaml:"retry"`
	Cache    CacheConfig    `yaml:"cache"`
	Export   ExportConfig   `yaml:"export"`
	Accounts AccountsConfig `yaml:"accounts"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"ADS_CORRELATOR_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"           yaml:"debug"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// DirectConfig holds Yandex Direct API configuration.
type DirectConfig struct {
	Token          string  `env:"DIRECT_TOKEN"           yaml:"token"`
	ClientLogin    string  `env:"DIRECT_CLIENT_LOGIN"    yaml:"client_login"`
	APIURL         string  `env:"DIRECT_API_URL"         yaml:"api_url"`
	Sandbox        bool    `env:"DIRECT_SANDBOX"         yaml:"sandbox"`
	RPS            float64 `env:"DIRECT_RATE_LIMIT_RPS"  yaml:"rps"`
	AllowMutations bool    `env:"DIRECT_ALLOW_MUTATIONS" yaml:"allow_mutations"`
	ReportMaxRows  int     `yaml:"report_max_rows"`
}

// BaseURL returns the effective Direct API base URL, honoring sandbox mode.
func (d *DirectConfig) BaseURL() string {
	if d.Sandbox && d.APIURL == defaultDirectAPIURL {
		return defaultDirectSandboxURL
	}
	return d.APIURL
}

// MetricaConfig holds Yandex Metrica API configuration.
type MetricaConfig struct {
	Token          string  `env:"METRICA_TOKEN"          yaml:"token"`
	APIURL         string  `env:"METRICA_API_URL"        yaml:"api_url"`
	CounterID      int64   `env:"METRICA_COUNTER_ID"     yaml:"counter_id"`
	RPS            float64 `env:"METRICA_RATE_LIMIT_RPS" yaml:"rps"`
	ClickIDField   string  `yaml:"click_id_field"`
	StartURLField  string  `yaml:"start_url_field"`
	BannerField    string  `yaml:"banner_field"`
	LogsFields     string  `yaml:"logs_fields"`
	LogsSource     string  `yaml:"logs_source"`
	LogsDelimiter  string  `yaml:"logs_delimiter"`
}

// RetryConfig holds outbound retry configuration.
type RetryConfig struct {
	MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" yaml:"max_attempts"`
	BaseDelay   time.Duration `env:"RETRY_BASE_DELAY"   yaml:"base_delay"`
	MaxDelay    time.Duration `env:"RETRY_MAX_DELAY"    yaml:"max_delay"`
}

// CacheConfig holds response cache configuration.
// The cache is on by default; set Disabled to opt out.
type CacheConfig struct {
	Disabled bool          `env:"CACHE_DISABLED" yaml:"disabled"`
	TTL      time.Duration `env:"CACHE_TTL"      yaml:"ttl"`
	Backend  string        `env:"CACHE_BACKEND"  yaml:"backend"`
	Redis    RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection configuration for the cache backend.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"     yaml:"addr"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// ExportConfig holds Logs API export orchestration configuration.
type ExportConfig struct {
	MaxWait       time.Duration `env:"EXPORT_MAX_WAIT"   yaml:"max_wait"`
	PollBaseDelay time.Duration `yaml:"poll_base_delay"`
	PollMaxDelay  time.Duration `yaml:"poll_max_delay"`
	RowBudget     int           `env:"EXPORT_ROW_BUDGET" yaml:"row_budget"`
	JobTTL        time.Duration `yaml:"job_ttl"`
}

// AccountsConfig holds account registry configuration.
type AccountsConfig struct {
	RegistryPath string `env:"ACCOUNTS_FILE" yaml:"registry_path"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return load(path)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setLoggingDefaults(&cfg.Logging)
	setDirectDefaults(&cfg.Direct)
	setMetricaDefaults(&cfg.Metrica)
	setRetryDefaults(&cfg.Retry)
	setCacheDefaults(&cfg.Cache)
	setExportDefaults(&cfg.Export)
}

// setServiceDefaults applies default values to ServiceConfig.
func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
}

// setLoggingDefaults applies default values to LoggingConfig.
func setLoggingDefaults(log *LoggingConfig) {
	if log.Level == "" {
		log.Level = defaultLoggingLevel
	}
	if log.Format == "" {
		log.Format = defaultLoggingFmt
	}
}

// setDirectDefaults applies default values to DirectConfig.
func setDirectDefaults(d *DirectConfig) {
	if d.APIURL == "" {
		d.APIURL = defaultDirectAPIURL
	}
	if d.ReportMaxRows == 0 {
		d.ReportMaxRows = defaultDirectReportRows
	}
}

// setMetricaDefaults applies default values to MetricaConfig.
func setMetricaDefaults(m *MetricaConfig) {
	if m.APIURL == "" {
		m.APIURL = defaultMetricaAPIURL
	}
	if m.ClickIDField == "" {
		m.ClickIDField = "ym:s:yclid"
	}
	if m.StartURLField == "" {
		m.StartURLField = "ym:s:startURL"
	}
	if m.BannerField == "" {
		m.BannerField = "ym:s:lastDirectClickBanner"
	}
	if m.LogsFields == "" {
		m.LogsFields = "ym:s:dateTime,ym:s:startURL,ym:s:lastDirectClickBanner"
	}
	if m.LogsSource == "" {
		m.LogsSource = "visits"
	}
}

// setRetryDefaults applies default values to RetryConfig.
func setRetryDefaults(r *RetryConfig) {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = defaultRetryMaxAttempts
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = defaultRetryBaseDelayMS * time.Millisecond
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = defaultRetryMaxDelayS * time.Second
	}
}

// setCacheDefaults applies default values to CacheConfig.
func setCacheDefaults(c *CacheConfig) {
	if c.TTL == 0 {
		c.TTL = defaultCacheTTLSeconds * time.Second
	}
	if c.Backend == "" {
		c.Backend = defaultCacheBackend
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = defaultRedisAddr
	}
}

// setExportDefaults applies default values to ExportConfig.
func setExportDefaults(e *ExportConfig) {
	if e.MaxWait == 0 {
		e.MaxWait = defaultExportMaxWaitS * time.Second
	}
	if e.PollBaseDelay == 0 {
		e.PollBaseDelay = defaultExportPollDelayS * time.Second
	}
	if e.PollMaxDelay == 0 {
		e.PollMaxDelay = defaultExportPollMaxS * time.Second
	}
	if e.RowBudget == 0 {
		e.RowBudget = defaultExportRowBudget
	}
	if e.JobTTL == 0 {
		e.JobTTL = defaultExportJobTTLHours * time.Hour
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return &ValidationError{
			Field:   "cache.backend",
			Message: "must be one of: memory, redis",
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "retry.max_attempts",
			Message: "must be at least 1",
		}
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return &ValidationError{
			Field:   "retry.max_delay",
			Message: "must not be below retry.base_delay",
		}
	}
	return nil
}
