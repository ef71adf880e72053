package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "pod-gateway", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "storefront", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.Equal(t, "jetprint", cfg.POD.Provider)
		assert.True(t, cfg.Fulfillment.Enabled)
		assert.True(t, cfg.Fulfillment.TrackingPollEnabled)
		assert.Equal(t, 15*time.Minute, cfg.Fulfillment.Interval)
		assert.Equal(t, 4, cfg.Fulfillment.Concurrency)
		assert.Equal(t, 5, cfg.Fulfillment.MaxAttempts)
		assert.Equal(t, 20*time.Second, cfg.Fulfillment.PartnerTimeout)
		assert.Equal(t, 30*time.Minute, cfg.Fulfillment.ReconcileGrace)

		assert.True(t, cfg.Webhook.WorkerEnabled)
		assert.Equal(t, 5, cfg.Webhook.MaxAttempts)
		assert.Equal(t, 1000, cfg.DebugLog.Capacity)
		assert.Equal(t, float64(5), cfg.POD.JetPrint.RateLimit)
	})

	t.Run("loads values from environment variables with POD prefix", func(t *testing.T) {
		t.Setenv("POD_APP_PORT", "9000")
		t.Setenv("POD_DATABASE_HOST", "testdb.local")
		t.Setenv("POD_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("POD_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("POD_POD_PROVIDER", "interestprint")
		t.Setenv("POD_POD_INTERESTPRINT_BASE_URL", "http://partner.local")
		t.Setenv("POD_FULFILLMENT_MAX_ATTEMPTS", "3")
		t.Setenv("POD_FULFILLMENT_ENABLED", "false")
		t.Setenv("POD_WEBHOOK_MAX_ATTEMPTS", "8")
		t.Setenv("POD_CRON_SECRET", "cron-secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, "interestprint", cfg.POD.Provider)
		assert.Equal(t, "http://partner.local", cfg.POD.ActivePartner().BaseURL)
		assert.Equal(t, 3, cfg.Fulfillment.MaxAttempts)
		assert.False(t, cfg.Fulfillment.Enabled)
		assert.Equal(t, 8, cfg.Webhook.MaxAttempts)
		assert.Equal(t, "cron-secret", cfg.Cron.Secret)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("POD_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("POD_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		t.Setenv("POD_POD_PROVIDER", "printful")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pod.provider")
	})

	t.Run("storage requires bucket when enabled", func(t *testing.T) {
		t.Setenv("POD_STORAGE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("POD_APP_ENV", "production")
		t.Setenv("POD_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("POD_CRON_SECRET", "this-is-a-very-secure-cron-secret-32chars")
		t.Setenv("POD_DATABASE_PASSWORD", "secure-password")
		t.Setenv("POD_ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires long cron secret", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("POD_CRON_SECRET", "short")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cron.secret must be at least 32 characters")
	})

	t.Run("requires long jwt secret", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("POD_JWT_SECRET", "short")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database password", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("POD_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("rejects wildcard CORS", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("POD_HTTP_CORS_ALLOW_ORIGINS", "*")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cors_allow_origins")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "user", Password: "pass@word#123", DBName: "db", SSLMode: "disable"}
		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestPODConfig_ActivePartner(t *testing.T) {
	p := PODConfig{
		Provider:      "jetprint",
		JetPrint:      PartnerConfig{BaseURL: "http://jet"},
		InterestPrint: PartnerConfig{BaseURL: "http://interest"},
	}
	assert.Equal(t, "http://jet", p.ActivePartner().BaseURL)
	p.Provider = "interestprint"
	assert.Equal(t, "http://interest", p.ActivePartner().BaseURL)
}
