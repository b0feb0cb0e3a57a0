package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const (
	minShortCodeLength = 6
	maxShortCodeLength = 8
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env        string    `yaml:"env"`
	Storage    string    `yaml:"storage"`
	ShortCode  ShortCode `yaml:"short_code"`
	HTTPServer `yaml:"http_server"`
	Postgres   `yaml:"postgres"`
	Redis      Redis `yaml:"redis"`
	Log        Log   `yaml:"log"`
}

type ShortCode struct {
	Length     int `yaml:"length"`
	MaxRetries int `yaml:"max_retries"`
}

var defaultShortCode = ShortCode{
	Length:     8,
	MaxRetries: 5,
}

type HTTPServer struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	DocsPath        string        `yaml:"docs_path"`
	CertFile        string        `yaml:"cert_file"`
	KeyFile         string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:            3000,
	ReadTimeout:     5 * time.Second,
	WriteTimeout:    10 * time.Second,
	IdleTimeout:     time.Minute,
	ShutdownTimeout: 10 * time.Second,
	MaxHeaderBytes:  1 << 20,
	AllowedOrigins:  []string{"https://*", "http://*"},
	DocsPath:        "./docs/swagger.yml",
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	ClickTimeout    time.Duration `yaml:"click_timeout"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
	QueryTimeout:    3 * time.Second,
	ClickTimeout:    2 * time.Second,
}

func (p *Postgres) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:     p.DB,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// Redis configures the optional target cache. An empty Addr disables it.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	TTL      time.Duration `yaml:"ttl"`
}

var defaultRedis = Redis{
	PoolSize: 10,
	TTL:      time.Hour,
}

func (r *Redis) Enabled() bool {
	return r.Addr != ""
}

type Log struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	Concise    bool   `yaml:"concise"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

var defaultLog = Log{
	Level:      "info",
	Concise:    true,
	MaxSizeMB:  100,
	MaxBackups: 3,
	MaxAgeDays: 28,
}

func (l *Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("unknown log level %q: %w", l.Level, err)
	}
	return level, nil
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	var cfg Config
	setDefaults(&cfg)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.Storage = StoragePostgres
	cfg.ShortCode = defaultShortCode
	cfg.HTTPServer = defaultHTTPServer
	cfg.HTTPServer.AllowedOrigins = append([]string(nil), defaultHTTPServer.AllowedOrigins...)
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
	cfg.Log = defaultLog
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, ErrInvalidConfig)
		}
		*dst = n
		return nil
	}

	setString("TINYLINK_ENV", &cfg.Env)
	setString("TINYLINK_STORAGE", &cfg.Storage)
	setString("POSTGRES_HOST", &cfg.Postgres.Host)
	setString("POSTGRES_USER", &cfg.Postgres.User)
	setString("POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("POSTGRES_DB", &cfg.Postgres.DB)
	setString("REDIS_ADDR", &cfg.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)

	if err := setInt("POSTGRES_PORT", &cfg.Postgres.Port); err != nil {
		return err
	}
	if err := setInt("HTTP_PORT", &cfg.HTTPServer.Port); err != nil {
		return err
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.Env {
	case EnvDev, EnvStage, EnvProd:
	default:
		return fmt.Errorf("unknown env %q: %w", c.Env, ErrInvalidConfig)
	}

	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q: %w", c.Storage, ErrInvalidConfig)
	}

	if c.ShortCode.Length < minShortCodeLength || c.ShortCode.Length > maxShortCodeLength {
		return fmt.Errorf("short_code.length must be between %d and %d: %w",
			minShortCodeLength, maxShortCodeLength, ErrInvalidConfig)
	}

	if c.ShortCode.MaxRetries <= 0 {
		return fmt.Errorf("short_code.max_retries must be positive: %w", ErrInvalidConfig)
	}

	if c.Postgres.QueryTimeout <= 0 || c.Postgres.ClickTimeout <= 0 {
		return fmt.Errorf("postgres timeouts must be positive: %w", ErrInvalidConfig)
	}

	if c.HTTPServer.Port <= 0 || c.HTTPServer.Port > 65535 {
		return fmt.Errorf("http_server.port out of range: %w", ErrInvalidConfig)
	}

	if c.Env == EnvProd && (c.HTTPServer.CertFile == "" || c.HTTPServer.KeyFile == "") {
		return fmt.Errorf("prod requires http_server.cert_file and key_file: %w", ErrInvalidConfig)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
