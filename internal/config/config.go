package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/spf13/viper"
)

const envPrefix = "RELAY"

type (
	Config struct {
		Server  Server
		Storage Storage
		Redis   Redis
		Auth    Auth
		Relay   Relay
		Prekeys Prekeys
		Log     Log
	}

	Server struct {
		Addr           string
		ReadTimeout    time.Duration `mapstructure:"read_timeout"`
		WriteTimeout   time.Duration `mapstructure:"write_timeout"`
		IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
		AllowedOrigins []string      `mapstructure:"allowed_origins"`
		// SendBuffer is the per-session outbound queue length. A full queue
		// drops live pushes, the envelope stays persisted.
		SendBuffer int `mapstructure:"send_buffer"`
	}

	Storage struct {
		Driver   string
		DSN      string
		Database string
		Timeout  time.Duration
	}

	// Redis backs the unread inbox hints. An empty Addr disables it.
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	Auth struct {
		Secret     string
		TokenTTL   time.Duration `mapstructure:"token_ttl"`
		CookieName string        `mapstructure:"cookie_name"`
	}

	Relay struct {
		RequireContact bool `mapstructure:"require_contact"`
		MaxCiphertext  int  `mapstructure:"max_ciphertext"`
	}

	Prekeys struct {
		MaxBatch int `mapstructure:"max_batch"`
	}

	Log struct {
		Level       string
		Development bool
	}
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "localhost:9090")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.send_buffer", 64)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.database", "e2e_relay")
	v.SetDefault("storage.timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.cookie_name", "token")

	v.SetDefault("relay.require_contact", true)
	v.SetDefault("relay.max_ciphertext", 64<<10)

	v.SetDefault("prekeys.max_batch", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads an optional .env file, an optional YAML file at path and
// RELAY_* environment overrides, in increasing priority.
func Load(path string) (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "load %s", envFile)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config")
		}
	}

	return Parse(v)
}

func Parse(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres, DriverMongo:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Server.SendBuffer <= 0 {
		return errors.New("server.send_buffer must be positive")
	}
	if c.Relay.MaxCiphertext <= 0 {
		return errors.New("relay.max_ciphertext must be positive")
	}
	if c.Prekeys.MaxBatch <= 0 {
		return errors.New("prekeys.max_batch must be positive")
	}
	return nil
}

func (c *Config) CorsOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   c.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
}
