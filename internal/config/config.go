// Package config loads service configuration from a YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/virtualgrid/moneyserver/pkg/logger"
)

type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Ledger    LedgerConfig         `yaml:"ledger"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Logging   logger.LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type LedgerConfig struct {
	// OriginServer identifies this grid in composite account IDs.
	OriginServer string `yaml:"origin_server"`
	// DefaultBalance is granted to accounts created on first login.
	DefaultBalance int64 `yaml:"default_balance"`
	// EnableForceTransfer allows region-initiated transfers without a
	// client session. Off unless the grid explicitly opts in.
	EnableForceTransfer bool `yaml:"enable_force_transfer"`
	// BankerAvatar is the only avatar allowed to mint money for itself.
	BankerAvatar string `yaml:"banker_avatar"`
	// EnableScriptSendMoney allows in-world scripts to move money when
	// they present the shared access key.
	EnableScriptSendMoney bool   `yaml:"enable_script_send_money"`
	ScriptAccessKey       string `yaml:"script_access_key"`
	ScriptIPAddress       string `yaml:"script_ip_address"`
	// DeadTime is how long a transaction may stay Pending before the
	// sweep fails it.
	DeadTime time.Duration `yaml:"dead_time"`
	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8008,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "moneyserver",
			Name:            "moneyserver",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Ledger: LedgerConfig{
			OriginServer:   "localhost:8008",
			DefaultBalance: 1000,
			DeadTime:       60 * time.Second,
			SweepInterval:  60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     50,
			Burst:   100,
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the config file at path (if non-empty) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envString("MONEY_DB_HOST", &cfg.Database.Host)
	envInt("MONEY_DB_PORT", &cfg.Database.Port)
	envString("MONEY_DB_USER", &cfg.Database.User)
	envString("MONEY_DB_PASSWORD", &cfg.Database.Password)
	envString("MONEY_DB_NAME", &cfg.Database.Name)
	envString("MONEY_SERVER_HOST", &cfg.Server.Host)
	envInt("MONEY_SERVER_PORT", &cfg.Server.Port)
	envString("MONEY_SCRIPT_ACCESS_KEY", &cfg.Ledger.ScriptAccessKey)
	envString("MONEY_BANKER_AVATAR", &cfg.Ledger.BankerAvatar)
	envString("MONEY_LOG_LEVEL", &cfg.Logging.Level)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Ledger.DefaultBalance < 0 {
		return fmt.Errorf("default balance must not be negative")
	}
	if c.Ledger.DeadTime <= 0 {
		return fmt.Errorf("dead time must be positive")
	}
	if c.Ledger.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Ledger.EnableScriptSendMoney && c.Ledger.ScriptAccessKey == "" {
		return fmt.Errorf("script send money enabled without an access key")
	}
	return nil
}
