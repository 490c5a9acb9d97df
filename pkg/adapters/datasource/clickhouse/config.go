package clickhouse

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/config"
)

// Config contains ClickHouse ODBC connection options.
type Config struct {
	Driver   string // path to the ODBC driver library
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Timeout  time.Duration

	// RawConnectionString, when set, replaces the generated string verbatim.
	RawConnectionString string

	// Extra are additional driver keys appended after the standard ones.
	Extra map[string]string
}

// DefaultDriver returns the default ODBC driver library path.
func DefaultDriver() string {
	return "/usr/local/lib/libclickhouseodbcw.so"
}

// DefaultHost returns the default server host.
func DefaultHost() string {
	return "localhost"
}

// DefaultPort returns the default ClickHouse HTTP port.
func DefaultPort() int {
	return 8123
}

// DefaultDatabase returns the default database name.
func DefaultDatabase() string {
	return "default"
}

// DefaultTimeout returns the connect and statement timeout used when none is configured.
func DefaultTimeout() time.Duration {
	return 15 * time.Second
}

// FromMap creates a Config from a generic config map. Every key is optional.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Driver:   DefaultDriver(),
		Host:     DefaultHost(),
		Port:     DefaultPort(),
		Database: DefaultDatabase(),
		Timeout:  DefaultTimeout(),
	}

	if driver, ok := config["driver"].(string); ok && driver != "" {
		cfg.Driver = driver
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	}

	if v, ok := config["port"]; ok && v != nil {
		port, err := cast.ToIntE(v) // JSON numbers arrive as float64
		if err != nil {
			return nil, fmt.Errorf("%w: port: %v", apperrors.ErrInvalidConfig, err)
		}
		if port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: port out of range: %d", apperrors.ErrInvalidConfig, port)
		}
		cfg.Port = port
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	}

	if username, ok := config["username"].(string); ok {
		cfg.Username = username
	} else if user, ok := config["user"].(string); ok {
		cfg.Username = user
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if v, ok := config["timeout"]; ok && v != nil {
		timeout, err := parseTimeout(v)
		if err != nil {
			return nil, fmt.Errorf("%w: timeout: %v", apperrors.ErrInvalidConfig, err)
		}
		cfg.Timeout = timeout
	}

	if connStr, ok := config["connection_string"].(string); ok {
		cfg.RawConnectionString = connStr
	}

	if v, ok := config["options"]; ok && v != nil {
		extra, err := cast.ToStringMapStringE(v)
		if err != nil {
			return nil, fmt.Errorf("%w: options: %v", apperrors.ErrInvalidConfig, err)
		}
		cfg.Extra = extra
	}

	return cfg, nil
}

// parseTimeout accepts a time.Duration, a duration string ("30s") or a
// number of seconds.
func parseTimeout(v any) (time.Duration, error) {
	var d time.Duration
	switch t := v.(type) {
	case time.Duration:
		d = t
	case string:
		if secs, err := strconv.Atoi(t); err == nil {
			d = time.Duration(secs) * time.Second
			break
		}
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return 0, err
		}
		d = parsed
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	if d == 0 {
		return DefaultTimeout(), nil
	}
	return d, nil
}

// timeoutSeconds renders the timeout for the TIMEOUT key, rounding up so a
// sub-second value never becomes 0.
func (c *Config) timeoutSeconds() int {
	secs := int(c.Timeout / time.Second)
	if c.Timeout%time.Second > 0 {
		secs++
	}
	if secs < 1 {
		return 1
	}
	return secs
}

// Options returns the ordered key/value pairs of the connection string.
// When running in Docker, localhost is resolved to host.docker.internal.
func (c *Config) Options() []datasource.Option {
	opts := []datasource.Option{
		{Key: "DRIVER", Value: c.Driver},
		{Key: "SERVER", Value: config.ResolveHostForDocker(c.Host)},
		{Key: "PORT", Value: strconv.Itoa(c.Port)},
		{Key: "USERNAME", Value: c.Username},
		{Key: "PASSWORD", Value: c.Password},
		{Key: "DATABASE", Value: c.Database},
		{Key: "TIMEOUT", Value: strconv.Itoa(c.timeoutSeconds())},
	}

	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts = append(opts, datasource.Option{Key: k, Value: c.Extra[k]})
	}
	return opts
}

// ConnectionString builds the `KEY=value;` string handed to the gateway.
func (c *Config) ConnectionString() string {
	if c.RawConnectionString != "" {
		return c.RawConnectionString
	}
	return FormatOptions(c.Options())
}

// FormatOptions joins options as KEY=value pairs, each terminated by ';'.
// Values containing ';' or '{' are wrapped in braces as ODBC requires.
func FormatOptions(opts []datasource.Option) string {
	var b strings.Builder
	for _, o := range opts {
		b.WriteString(o.Key)
		b.WriteByte('=')
		if strings.ContainsAny(o.Value, ";{}") {
			b.WriteByte('{')
			b.WriteString(strings.ReplaceAll(o.Value, "}", "}}"))
			b.WriteByte('}')
		} else {
			b.WriteString(o.Value)
		}
		b.WriteByte(';')
	}
	return b.String()
}
