package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	t.Run("defaults with env secret", func(t *testing.T) {
		t.Setenv("RELAY_AUTH_SECRET", "s3cret")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", cfg.Auth.Secret)
		assert.Equal(t, DriverMemory, cfg.Storage.Driver)
		assert.Equal(t, 64, cfg.Server.SendBuffer)
		assert.True(t, cfg.Relay.RequireContact)
		assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	})

	t.Run("yaml file with env override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		yaml := "storage:\n  driver: postgres\n  dsn: postgres://localhost/relay\nrelay:\n  require_contact: false\nauth:\n  secret: from-file\n"
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
		t.Setenv("RELAY_AUTH_SECRET", "from-env")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
		assert.Equal(t, "postgres://localhost/relay", cfg.Storage.DSN)
		assert.False(t, cfg.Relay.RequireContact)
		assert.Equal(t, "from-env", cfg.Auth.Secret)
	})

	t.Run("dotenv file", func(t *testing.T) {
		envFile := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(envFile, []byte("RELAY_AUTH_SECRET=dotenv\n"), 0o600))
		t.Setenv("ENV_FILE", envFile)
		t.Cleanup(func() { os.Unsetenv("RELAY_AUTH_SECRET") })

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "dotenv", cfg.Auth.Secret)
	})
}

func TestValidate(t *testing.T) {
	base := func() *viper.Viper {
		v := viper.New()
		setDefaults(v)
		v.Set("auth.secret", "x")
		return v
	}

	t.Run("missing secret", func(t *testing.T) {
		v := base()
		v.Set("auth.secret", "")
		_, err := Parse(v)
		assert.ErrorContains(t, err, "auth.secret")
	})

	t.Run("unknown driver", func(t *testing.T) {
		v := base()
		v.Set("storage.driver", "sqlite")
		_, err := Parse(v)
		assert.ErrorContains(t, err, "unknown storage driver")
	})

	t.Run("mongo needs dsn", func(t *testing.T) {
		v := base()
		v.Set("storage.driver", DriverMongo)
		_, err := Parse(v)
		assert.ErrorContains(t, err, "storage.dsn")
	})

	t.Run("cors options follow origins", func(t *testing.T) {
		v := base()
		v.Set("server.allowed_origins", []string{"https://chat.example"})
		cfg, err := Parse(v)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://chat.example"}, cfg.CorsOptions().AllowedOrigins)
	})
}
