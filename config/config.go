// Package config loads the server configuration from YAML, .env and
// YUKYU_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Server struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         int           `mapstructure:"port" validate:"required|uint|min:1|max:65535"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	CORSOrigins  []string      `mapstructure:"corsOrigins"`
}

func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type Database struct {
	Driver       string        `mapstructure:"driver" validate:"required|in:sqlite,postgres"`
	DSN          string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int           `mapstructure:"maxOpenConns"`
	MaxIdleConns int           `mapstructure:"maxIdleConns"`
	ConnMaxLife  time.Duration `mapstructure:"connMaxLifetime"`
}

type Logger struct {
	Level  string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Format string `mapstructure:"format" validate:"required|in:console,json"`
}

type Scheduler struct {
	Enabled  bool   `mapstructure:"enabled"`
	ExpireAt string `mapstructure:"expireAt" validate:"required"`
	GrantAt  string `mapstructure:"grantAt" validate:"required"`
	Timezone string `mapstructure:"timezone" validate:"required"`
}

// Requests lists actors who may approve any leave request (HR, admins).
type Requests struct {
	Admins []string `mapstructure:"admins"`
}

type Cache struct {
	Enabled    bool `mapstructure:"enabled"`
	SizeMB     int  `mapstructure:"sizeMB"`
	TTLSeconds int  `mapstructure:"ttlSeconds"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
}

// Redis enables the scheduler's distributed lock when Addr is set.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lockTTL"`
}

// Kafka enables the audit event stream when Brokers is set.
type Kafka struct {
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	MaxAttempts int      `mapstructure:"maxAttempts"`
}

type Config struct {
	Path      string
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Logger    Logger    `mapstructure:"logger"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Cache     Cache     `mapstructure:"cache"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Redis     Redis     `mapstructure:"redis"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Requests  Requests  `mapstructure:"requests"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)
	v.SetDefault("server.corsOrigins", []string{"*"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/yukyu.db")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.expireAt", "00:00")
	v.SetDefault("scheduler.grantAt", "23:59")
	v.SetDefault("scheduler.timezone", "Asia/Tokyo")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.sizeMB", 8)
	v.SetDefault("cache.ttlSeconds", 300)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("database.maxOpenConns", 0)
	v.SetDefault("database.maxIdleConns", 0)
	v.SetDefault("database.connMaxLifetime", time.Duration(0))
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lockTTL", 10*time.Minute)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "yukyu.audit")
	v.SetDefault("kafka.maxAttempts", 3)
	v.SetDefault("requests.admins", []string{})
}

// Load reads path (optional), then .env, then YUKYU_* variables, and
// validates the result. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("YUKYU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		filename := filepath.Base(path)
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	conf.Path = path

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate runs the struct tag rules and the checks tags cannot express.
func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %w", v.Errors)
	}
	for name, clock := range map[string]string{"expireAt": c.Scheduler.ExpireAt, "grantAt": c.Scheduler.GrantAt} {
		if _, _, err := ParseClock(clock); err != nil {
			return fmt.Errorf("invalid config: scheduler.%s: %w", name, err)
		}
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid config: scheduler.timezone: %w", err)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("invalid config: kafka.topic is required when brokers are set")
	}
	return nil
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// Location returns the scheduler timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewLogger builds the root logger. w defaults to stderr.
func NewLogger(c Logger, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", "yukyu").Logger()
}
