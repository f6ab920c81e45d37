package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	Addr           string // listen address, e.g. ":8080"
	ManagementAddr string // management listener for health and metrics (empty = disabled)
	DBPath         string // path to SQLite database file
	Domain         string // public base URL used to build share links, e.g. "https://inigma.example"
	TLS            bool
	CertFile       string
	KeyFile        string

	// Secret lifecycle tuning.
	DefaultTTLDays  int           // TTL applied when a create request omits one (0 = permanent)
	RetentionDays   int           // unclaimed secrets older than this are purged regardless of TTL
	CleanupInterval time.Duration // how often expired secrets are swept (0 = startup sweep only)
	PageSize        int           // default page size for secret listings

	// Database backups.
	BackupDir      string        // directory for database snapshots (empty = disabled)
	BackupInterval time.Duration // snapshot cadence (0 = on-demand via admin API only)
	BackupKeep     int           // snapshots to retain (0 = unlimited)

	// Rate limiting for mutating endpoints.
	RateLimitPerSec float64 // sustained requests per second per client IP (0 = disabled)
	RateLimitBurst  int     // burst allowance per client IP
	RateLimitKeys   int     // max tracked client IPs (0 = default)

	// CORS.
	AllowedOrigins string // comma-separated origins allowed to call the API (empty = same-origin only)

	// Admin.
	AdminSecret string // HMAC secret for admin endpoint tokens (empty = admin API disabled)

	// Tracing.
	OTelServiceName string // OpenTelemetry service name (empty = tracing disabled)

	// Logging.
	LogFormat string // "json" (default) or "text"
	AuditLogs bool   // enable audit logging (default true)
}

// fileConfig mirrors Config with optional fields for YAML overrides.
// Only keys present in the file are applied.
type fileConfig struct {
	Addr            *string        `yaml:"addr"`
	ManagementAddr  *string        `yaml:"management_addr"`
	DBPath          *string        `yaml:"db"`
	Domain          *string        `yaml:"domain"`
	TLS             *bool          `yaml:"tls"`
	CertFile        *string        `yaml:"cert"`
	KeyFile         *string        `yaml:"key"`
	DefaultTTLDays  *int           `yaml:"default_ttl_days"`
	RetentionDays   *int           `yaml:"retention_days"`
	CleanupInterval *time.Duration `yaml:"cleanup_interval"`
	PageSize        *int           `yaml:"page_size"`
	BackupDir       *string        `yaml:"backup_dir"`
	BackupInterval  *time.Duration `yaml:"backup_interval"`
	BackupKeep      *int           `yaml:"backup_keep"`
	RateLimitPerSec *float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  *int           `yaml:"rate_limit_burst"`
	RateLimitKeys   *int           `yaml:"rate_limit_keys"`
	AllowedOrigins  *string        `yaml:"allowed_origins"`
	AdminSecret     *string        `yaml:"admin_secret"`
	OTelServiceName *string        `yaml:"otel_service_name"`
	LogFormat       *string        `yaml:"log_format"`
	AuditLogs       *bool          `yaml:"audit_logs"`
}

func Parse() *Config {
	c := &Config{}
	var configFile string
	flag.StringVar(&configFile, "config", "", "optional YAML config file (flags set on the command line win)")
	flag.StringVar(&c.Addr, "addr", ":8080", "listen address")
	flag.StringVar(&c.ManagementAddr, "management-addr", "", "management listener for health and metrics (empty = disabled)")
	flag.StringVar(&c.DBPath, "db", "inigma.db", "SQLite database path")
	flag.StringVar(&c.Domain, "domain", "http://localhost:8080", "public base URL used in share links")
	flag.BoolVar(&c.TLS, "tls", false, "enable TLS")
	flag.StringVar(&c.CertFile, "cert", "", "TLS certificate file")
	flag.StringVar(&c.KeyFile, "key", "", "TLS key file")

	// Lifecycle flags.
	flag.IntVar(&c.DefaultTTLDays, "default-ttl-days", 30, "TTL in days when a create request omits one (0 = permanent)")
	flag.IntVar(&c.RetentionDays, "retention-days", 50, "purge unclaimed secrets older than this many days")
	flag.DurationVar(&c.CleanupInterval, "cleanup-interval", 24*time.Hour, "expired secret sweep interval (0 = startup sweep only)")
	flag.IntVar(&c.PageSize, "page-size", 10, "default page size for secret listings")

	// Backup flags.
	flag.StringVar(&c.BackupDir, "backup-dir", "", "directory for database snapshots (empty = disabled)")
	flag.DurationVar(&c.BackupInterval, "backup-interval", 24*time.Hour, "snapshot cadence (0 = on-demand via admin API only)")
	flag.IntVar(&c.BackupKeep, "backup-keep", 7, "snapshots to retain (0 = unlimited)")

	// Rate limit flags.
	flag.Float64Var(&c.RateLimitPerSec, "rate-limit", 5, "sustained mutating requests per second per client IP (0 = disabled)")
	flag.IntVar(&c.RateLimitBurst, "rate-limit-burst", 10, "burst allowance per client IP")
	flag.IntVar(&c.RateLimitKeys, "rate-limit-keys", 0, "max tracked client IPs (0 = default)")

	flag.StringVar(&c.AllowedOrigins, "allowed-origins", "", "comma-separated CORS origins (empty = same-origin only)")
	flag.StringVar(&c.AdminSecret, "admin-secret", "", "HMAC secret for admin endpoint tokens (empty = admin API disabled)")
	flag.StringVar(&c.OTelServiceName, "otel-service-name", "", "OpenTelemetry service name (empty = tracing disabled)")

	// Logging flags.
	flag.StringVar(&c.LogFormat, "log-format", "json", "log format: json or text")
	flag.BoolVar(&c.AuditLogs, "audit-logs", true, "enable structured audit logging")

	flag.Parse()

	if v := os.Getenv("INIGMA_CONFIG"); v != "" && configFile == "" {
		configFile = v
	}
	if configFile != "" {
		// Flags explicitly set on the command line take precedence over the file.
		setFlags := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
		if err := c.loadFile(configFile, setFlags); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config file %s: %v\n", configFile, err)
			os.Exit(1)
		}
	}

	// Allow env overrides.
	if v := os.Getenv("INIGMA_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("INIGMA_MANAGEMENT_ADDR"); v != "" {
		c.ManagementAddr = v
	}
	if v := os.Getenv("INIGMA_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("INIGMA_DOMAIN"); v != "" {
		c.Domain = v
	}
	if v := os.Getenv("INIGMA_DEFAULT_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultTTLDays = n
		}
	}
	if v := os.Getenv("INIGMA_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetentionDays = n
		}
	}
	if v := os.Getenv("INIGMA_CLEANUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CleanupInterval = d
		}
	}
	if v := os.Getenv("INIGMA_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PageSize = n
		}
	}
	if v := os.Getenv("INIGMA_BACKUP_DIR"); v != "" {
		c.BackupDir = v
	}
	if v := os.Getenv("INIGMA_BACKUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.BackupInterval = d
		}
	}
	if v := os.Getenv("INIGMA_BACKUP_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BackupKeep = n
		}
	}
	if v := os.Getenv("INIGMA_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimitPerSec = f
		}
	}
	if v := os.Getenv("INIGMA_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitBurst = n
		}
	}
	if v := os.Getenv("INIGMA_RATE_LIMIT_KEYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitKeys = n
		}
	}
	if v := os.Getenv("INIGMA_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = v
	}
	if v := os.Getenv("INIGMA_ADMIN_SECRET"); v != "" {
		c.AdminSecret = v
	}
	if v := os.Getenv("INIGMA_OTEL_SERVICE_NAME"); v != "" {
		c.OTelServiceName = v
	}
	if v := os.Getenv("INIGMA_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("INIGMA_AUDIT_LOGS"); v == "false" {
		c.AuditLogs = false
	}

	return c
}

// loadFile applies a YAML config file over c, skipping any field whose flag
// was set explicitly on the command line.
func (c *Config) loadFile(path string, setFlags map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	applyStr := func(flagName string, dst *string, src *string) {
		if src != nil && !setFlags[flagName] {
			*dst = *src
		}
	}
	applyInt := func(flagName string, dst *int, src *int) {
		if src != nil && !setFlags[flagName] {
			*dst = *src
		}
	}
	applyBool := func(flagName string, dst *bool, src *bool) {
		if src != nil && !setFlags[flagName] {
			*dst = *src
		}
	}

	applyStr("addr", &c.Addr, f.Addr)
	applyStr("management-addr", &c.ManagementAddr, f.ManagementAddr)
	applyStr("db", &c.DBPath, f.DBPath)
	applyStr("domain", &c.Domain, f.Domain)
	applyBool("tls", &c.TLS, f.TLS)
	applyStr("cert", &c.CertFile, f.CertFile)
	applyStr("key", &c.KeyFile, f.KeyFile)
	applyInt("default-ttl-days", &c.DefaultTTLDays, f.DefaultTTLDays)
	applyInt("retention-days", &c.RetentionDays, f.RetentionDays)
	if f.CleanupInterval != nil && !setFlags["cleanup-interval"] {
		c.CleanupInterval = *f.CleanupInterval
	}
	applyInt("page-size", &c.PageSize, f.PageSize)
	applyStr("backup-dir", &c.BackupDir, f.BackupDir)
	if f.BackupInterval != nil && !setFlags["backup-interval"] {
		c.BackupInterval = *f.BackupInterval
	}
	applyInt("backup-keep", &c.BackupKeep, f.BackupKeep)
	if f.RateLimitPerSec != nil && !setFlags["rate-limit"] {
		c.RateLimitPerSec = *f.RateLimitPerSec
	}
	applyInt("rate-limit-burst", &c.RateLimitBurst, f.RateLimitBurst)
	applyInt("rate-limit-keys", &c.RateLimitKeys, f.RateLimitKeys)
	applyStr("allowed-origins", &c.AllowedOrigins, f.AllowedOrigins)
	applyStr("admin-secret", &c.AdminSecret, f.AdminSecret)
	applyStr("otel-service-name", &c.OTelServiceName, f.OTelServiceName)
	applyStr("log-format", &c.LogFormat, f.LogFormat)
	applyBool("audit-logs", &c.AuditLogs, f.AuditLogs)

	return nil
}
