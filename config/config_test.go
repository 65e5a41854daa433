package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/pricing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "console-buyback", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, ":8080", cfg.App.Addr())
		assert.Equal(t, "./data/buyback.db", cfg.Database.Path)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "console", cfg.Log.Format)
		assert.Equal(t, "stdout", cfg.Log.Output)
		assert.Equal(t, pricing.NegativeClamp, cfg.Pricing.NegativePolicy)
		assert.Equal(t, core.Money(500), cfg.Buyback.SelfShipBonus)
		assert.True(t, cfg.Buyback.AutoCommit)
		assert.Equal(t, 5*time.Minute, cfg.Buyback.AutoCommitInterval)
		assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
		assert.Empty(t, cfg.HTTP.CORSAllowOrigins)
	})

	t.Run("loads values from file", func(t *testing.T) {
		path := writeConfig(t, `
[app]
port = "9000"

[database]
path = ":memory:"

[log]
level = "debug"
format = "json"

[pricing]
negative_policy = "reject"

[buyback]
self_ship_bonus = 0
auto_commit = false
auto_commit_interval = "30s"

[http]
read_timeout = "5s"
cors_allow_origins = ["http://localhost:3000"]
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, ":memory:", cfg.Database.Path)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, pricing.NegativeReject, cfg.Pricing.NegativePolicy)
		assert.Equal(t, core.Money(0), cfg.Buyback.SelfShipBonus, "explicit zero is kept")
		assert.False(t, cfg.Buyback.AutoCommit)
		assert.Equal(t, 30*time.Second, cfg.Buyback.AutoCommitInterval)
		assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.CORSAllowOrigins)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "[database]\npath = \"from-file.db\"\n")
		t.Setenv("BUYBACK_DATABASE_PATH", "from-env.db")
		t.Setenv("BUYBACK_BUYBACK_SELF_SHIP_BONUS", "800")
		t.Setenv("BUYBACK_PRICING_NEGATIVE_POLICY", "allow")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env.db", cfg.Database.Path)
		assert.Equal(t, core.Money(800), cfg.Buyback.SelfShipBonus)
		assert.Equal(t, pricing.NegativeAllow, cfg.Pricing.NegativePolicy)
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown negative policy", map[string]string{"BUYBACK_PRICING_NEGATIVE_POLICY": "round"}},
		{"unknown log level", map[string]string{"BUYBACK_LOG_LEVEL": "verbose"}},
		{"unknown log format", map[string]string{"BUYBACK_LOG_FORMAT": "xml"}},
		{"negative bonus", map[string]string{"BUYBACK_BUYBACK_SELF_SHIP_BONUS": "-1"}},
		{"memory database in production", map[string]string{"BUYBACK_APP_ENV": "production", "BUYBACK_DATABASE_PATH": ":memory:"}},
		{"wildcard cors in production", map[string]string{"BUYBACK_APP_ENV": "production", "BUYBACK_HTTP_CORS_ALLOW_ORIGINS": "*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
