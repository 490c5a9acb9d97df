package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultPath is the config file read when Load is given an empty path.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-dbconn.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`

	// Datasource selects the protocol and holds its connection settings
	Datasource DatasourceConfig `yaml:"datasource"`

	// Pool configures the connection manager
	Pool PoolConfig `yaml:"pool"`
}

// DatasourceConfig names the registered protocol and its connection settings.
type DatasourceConfig struct {
	Type string `yaml:"type" env:"DATASOURCE_TYPE" env-default:"clickhouse"`
	// SQLDriver selects the gateway: "pgx" for the native PostgreSQL gateway,
	// otherwise a database/sql driver name. The default "odbc" is only
	// compiled in with -tags odbc (or all_adapters); "sqlite" is always
	// available. "pgx" requires clickhouse.connection_string.
	SQLDriver  string           `yaml:"sql_driver" env:"DATASOURCE_SQL_DRIVER" env-default:"odbc"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig holds the ODBC connection settings for ClickHouse.
type ClickHouseConfig struct {
	Driver   string        `yaml:"driver" env:"CLICKHOUSE_ODBC_DRIVER" env-default:"/usr/local/lib/libclickhouseodbcw.so"`
	Host     string        `yaml:"host" env:"CLICKHOUSE_HOST" env-default:"localhost"`
	Port     int           `yaml:"port" env:"CLICKHOUSE_PORT" env-default:"8123"`
	Database string        `yaml:"database" env:"CLICKHOUSE_DATABASE" env-default:"default"`
	Username string        `yaml:"username" env:"CLICKHOUSE_USERNAME" env-default:""`
	Password string        `yaml:"-" env:"CLICKHOUSE_PASSWORD"` // Secret - not in YAML
	Timeout  time.Duration `yaml:"timeout" env:"CLICKHOUSE_TIMEOUT" env-default:"15s"`

	// ConnectionString, when set, is passed to the gateway verbatim.
	ConnectionString string `yaml:"-" env:"CLICKHOUSE_CONNECTION_STRING"` // May embed a password

	// Extra driver keys appended to the generated connection string.
	Extra map[string]string `yaml:"options"`
}

// PoolConfig holds connection manager settings.
type PoolConfig struct {
	// ConnectionTTLMinutes is how long idle connections are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"POOL_CONNECTION_TTL_MINUTES" env-default:"5"`
	// MaxConnectionsPerDatasource limits concurrent slots per datasource.
	MaxConnectionsPerDatasource int `yaml:"max_connections_per_datasource" env:"POOL_MAX_CONNECTIONS_PER_DATASOURCE" env-default:"10"`
	// ConnectRetries is the number of extra connect attempts for transient failures.
	ConnectRetries int `yaml:"connect_retries" env:"POOL_CONNECT_RETRIES" env-default:"3"`
}

// Load reads configuration from path (config.yaml when empty) with
// environment variable overrides. A .env file in the working directory is
// loaded first if present; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	c.Datasource.Type = strings.ToLower(strings.TrimSpace(c.Datasource.Type))
	if c.Datasource.Type == "" {
		return fmt.Errorf("datasource type is required")
	}
	if c.Datasource.SQLDriver == "" {
		return fmt.Errorf("datasource sql driver is required")
	}
	if c.Datasource.ClickHouse.Port <= 0 || c.Datasource.ClickHouse.Port > 65535 {
		return fmt.Errorf("clickhouse port out of range: %d", c.Datasource.ClickHouse.Port)
	}
	if c.Datasource.ClickHouse.Timeout < 0 {
		return fmt.Errorf("clickhouse timeout must not be negative")
	}
	if c.Pool.MaxConnectionsPerDatasource < 0 || c.Pool.ConnectionTTLMinutes < 0 || c.Pool.ConnectRetries < 0 {
		return fmt.Errorf("pool settings must not be negative")
	}
	return nil
}

// Options returns the settings as the option map accepted by
// clickhouse.FromMap and ConnectionManager.Execute.
func (c *ClickHouseConfig) Options() map[string]any {
	opts := map[string]any{
		"driver":   c.Driver,
		"host":     c.Host,
		"port":     c.Port,
		"database": c.Database,
		"username": c.Username,
		"password": c.Password,
		"timeout":  c.Timeout,
	}
	if c.ConnectionString != "" {
		opts["connection_string"] = c.ConnectionString
	}
	if len(c.Extra) > 0 {
		extra := make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			extra[k] = v
		}
		opts["options"] = extra
	}
	return opts
}
