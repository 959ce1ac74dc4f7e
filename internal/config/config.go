package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig selects the store driver and its connection settings
type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // "postgres" or "sqlite"
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	SSLMode    string `yaml:"ssl_mode"`
	SQLitePath string `yaml:"sqlite_path"` // empty means in-memory
	MaxOpen    int    `yaml:"max_open_conns"`
	MaxIdle    int    `yaml:"max_idle_conns"`
}

// JWTConfig contains token verification settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text" or "color"
}

// UnpaidPolicy decides what happens to a cycle that is not fully collected.
type UnpaidPolicy string

const (
	// UnpaidBlock refuses payout and advance until every member has paid.
	UnpaidBlock UnpaidPolicy = "block"
	// UnpaidSkip lets the admin advance, recording a missed cycle for each
	// unpaid member; the recipient gets what was collected.
	UnpaidSkip UnpaidPolicy = "skip"
)

// EngineConfig tunes the ledger engine
type EngineConfig struct {
	LockTimeout          time.Duration `yaml:"lock_timeout"`
	MinMembersToActivate int           `yaml:"min_members_to_activate"`
	UnpaidPolicy         UnpaidPolicy  `yaml:"unpaid_policy"`
	RecentTransactions   int           `yaml:"recent_transactions"`
	UpcomingActivities   int           `yaml:"upcoming_activities"`
	SettlementTTL        time.Duration `yaml:"settlement_ttl"`
	JobConcurrency       int           `yaml:"job_concurrency"`
}

// SchedulerConfig contains cron schedule settings (with seconds, UTC)
type SchedulerConfig struct {
	ActivateGroups    string `yaml:"activate_groups"`
	MarkOverdue       string `yaml:"mark_overdue"`
	ExpireSettlements string `yaml:"expire_settlements"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("STORAGE_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}
	if val := os.Getenv("DB_SQLITE_PATH"); val != "" {
		c.Database.SQLitePath = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Engine
	if val := os.Getenv("UNPAID_POLICY"); val != "" {
		c.Engine.UnpaidPolicy = UnpaidPolicy(val)
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}

	// Database validation
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case "", "postgres":
		c.Database.Driver = "postgres"
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "sqlite":
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	// Log validation
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text", "color":
	default:
		return fmt.Errorf("unknown log format: %q", c.Log.Format)
	}

	// Engine defaults
	if c.Engine.LockTimeout == 0 {
		c.Engine.LockTimeout = 2 * time.Second
	}
	if c.Engine.MinMembersToActivate == 0 {
		c.Engine.MinMembersToActivate = 2
	}
	if c.Engine.MinMembersToActivate < 2 {
		return fmt.Errorf("min_members_to_activate must be at least 2")
	}
	switch c.Engine.UnpaidPolicy {
	case "":
		c.Engine.UnpaidPolicy = UnpaidBlock
	case UnpaidBlock, UnpaidSkip:
	default:
		return fmt.Errorf("unknown unpaid_policy: %q", c.Engine.UnpaidPolicy)
	}
	if c.Engine.RecentTransactions == 0 {
		c.Engine.RecentTransactions = 5
	}
	if c.Engine.UpcomingActivities == 0 {
		c.Engine.UpcomingActivities = 3
	}
	if c.Engine.SettlementTTL == 0 {
		c.Engine.SettlementTTL = 24 * time.Hour
	}
	if c.Engine.JobConcurrency == 0 {
		c.Engine.JobConcurrency = 4
	}

	// Scheduler defaults
	if c.Scheduler.ActivateGroups == "" {
		c.Scheduler.ActivateGroups = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.MarkOverdue == "" {
		c.Scheduler.MarkOverdue = "0 0 * * * *" // hourly
	}
	if c.Scheduler.ExpireSettlements == "" {
		c.Scheduler.ExpireSettlements = "0 15 * * * *" // hourly at :15
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
