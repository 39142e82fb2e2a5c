package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		t.Setenv("STOCKFLOW_JWT_SECRET", "dev-secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "stockflow", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "stockflow", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, IsolationSerializable, cfg.Database.Isolation)
		assert.Equal(t, 5, cfg.Database.MaxRetries)
		assert.Equal(t, 20*time.Millisecond, cfg.Database.RetryBackoff)
		assert.False(t, cfg.Redis.Enabled())
		assert.Equal(t, 30*time.Second, cfg.Idempotency.LockTTL)
		assert.Equal(t, 4, cfg.Event.Workers)
		assert.Equal(t, "stockflow", cfg.Telemetry.ServiceName)
		assert.False(t, cfg.Storage.Enabled)
	})

	t.Run("loads values from environment variables with STOCKFLOW prefix", func(t *testing.T) {
		t.Setenv("STOCKFLOW_JWT_SECRET", "dev-secret")
		t.Setenv("STOCKFLOW_APP_PORT", "9000")
		t.Setenv("STOCKFLOW_DATABASE_HOST", "db.internal")
		t.Setenv("STOCKFLOW_DATABASE_ISOLATION", "repeatable_read")
		t.Setenv("STOCKFLOW_DATABASE_MAX_RETRIES", "2")
		t.Setenv("STOCKFLOW_DATABASE_RETRY_BACKOFF", "50ms")
		t.Setenv("STOCKFLOW_REDIS_HOST", "cache.internal")
		t.Setenv("STOCKFLOW_IDEMPOTENCY_LOCK_TTL", "10s")
		t.Setenv("STOCKFLOW_EVENT_WORKERS", "8")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, IsolationRepeatableRead, cfg.Database.Isolation)
		assert.Equal(t, 2, cfg.Database.MaxRetries)
		assert.Equal(t, 50*time.Millisecond, cfg.Database.RetryBackoff)
		assert.True(t, cfg.Redis.Enabled())
		assert.Equal(t, "cache.internal:6379", cfg.Redis.Addr())
		assert.Equal(t, 10*time.Second, cfg.Idempotency.LockTTL)
		assert.Equal(t, 8, cfg.Event.Workers)
	})

	t.Run("rejects unknown isolation", func(t *testing.T) {
		t.Setenv("STOCKFLOW_JWT_SECRET", "dev-secret")
		t.Setenv("STOCKFLOW_DATABASE_ISOLATION", "read_uncommitted")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.isolation")
	})

	t.Run("requires a jwt secret", func(t *testing.T) {
		t.Setenv("STOCKFLOW_JWT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret")
	})
}

func validProduction() *Config {
	cfg := &Config{
		App:      AppConfig{Env: "production"},
		Database: DatabaseConfig{Password: "pw", SSLMode: "require"},
		JWT:      JWTConfig{Secret: testSecret},
	}
	applyDefaults(cfg)
	return cfg
}

func TestConfig_ProductionValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.JWT.Secret = "short" }, "jwt.secret"},
		{"no password", func(c *Config) { c.Database.Password = "" }, "database.password"},
		{"ssl disabled", func(c *Config) { c.Database.SSLMode = "disable" }, "database.sslmode"},
		{"weaker isolation", func(c *Config) { c.Database.Isolation = IsolationReadCommitted }, "serializable"},
		{"wildcard cors", func(c *Config) { c.HTTP.CORSAllowOrigins = []string{"*"} }, "cors_allow_origins"},
		{"open swagger", func(c *Config) { c.Swagger.Enabled = true }, "swagger"},
		{"swagger behind ip list", func(c *Config) {
			c.Swagger.Enabled = true
			c.Swagger.AllowedIPs = []string{"10.0.0.1"}
		}, ""},
		{"full sql in traces", func(c *Config) { c.Telemetry.DBLogFullSQL = true }, "db_log_full_sql"},
		{"storage without keys", func(c *Config) { c.Storage.Enabled = true }, "storage.access_key"},
		{"too many retries", func(c *Config) { c.Database.MaxRetries = 50 }, "max_retries"},
		{"sampling out of range", func(c *Config) { c.Telemetry.SamplingRatio = 1.5 }, "sampling_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validProduction()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/word", DBName: "stockflow", SSLMode: "require"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/stockflow?sslmode=require", d.DSN())
}
