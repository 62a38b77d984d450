package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setMpesaKeys() {
	viper.Set("mpesa.consumer_key", "key")
	viper.Set("mpesa.consumer_secret", "secret")
	viper.Set("mpesa.shortcode", "174379")
	viper.Set("mpesa.passkey", "passkey")
	viper.Set("mpesa.callback_url", "https://example.com/api/v1/mpesa/callback/")
	viper.Set("mpesa.callback_token", "tok123")
}

func TestLoadMpesaConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("sandbox by default", func(t *testing.T) {
		viper.Reset()
		setMpesaKeys()

		cfg := LoadMpesaConfig()
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, EnvironmentSandbox, cfg.Environment)
		assert.Equal(t, "https://sandbox.safaricom.co.ke", cfg.BaseURL)
		assert.Equal(t, "https://example.com/api/v1/mpesa/callback/tok123", cfg.CallbackEndpoint())
	})

	t.Run("production endpoint", func(t *testing.T) {
		viper.Reset()
		setMpesaKeys()
		viper.Set("mpesa.environment", "Production")

		cfg := LoadMpesaConfig()
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, "https://api.safaricom.co.ke", cfg.BaseURL)
	})

	t.Run("explicit base url wins", func(t *testing.T) {
		viper.Reset()
		setMpesaKeys()
		viper.Set("mpesa.base_url", "http://127.0.0.1:9999/")

		cfg := LoadMpesaConfig()
		assert.Equal(t, "http://127.0.0.1:9999", cfg.BaseURL)
	})

	t.Run("missing values are all reported", func(t *testing.T) {
		viper.Reset()
		viper.Set("mpesa.shortcode", "174379")

		err := LoadMpesaConfig().Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "MPESA_CONSUMER_KEY")
		assert.Contains(t, err.Error(), "MPESA_PASSKEY")
		assert.Contains(t, err.Error(), "MPESA_CALLBACK_TOKEN")
		assert.NotContains(t, err.Error(), "MPESA_BUSINESS_SHORT_CODE")
	})

	t.Run("unknown environment", func(t *testing.T) {
		viper.Reset()
		setMpesaKeys()
		viper.Set("mpesa.environment", "staging")

		err := LoadMpesaConfig().Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "MPESA_ENVIRONMENT")
	})
}

func TestLoadPaymentConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadPaymentConfig()
		assert.Equal(t, 15*time.Minute, cfg.ExpiryWindow)
		assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
		assert.Equal(t, 3, cfg.PushRateLimit)
		assert.Equal(t, int64(300), cfg.DefaultAmount)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("PAYMENT_EXPIRY_WINDOW", "2m")
		t.Setenv("PAYMENT_PUSH_RATE_LIMIT", "7")
		t.Setenv("PAYMENT_SWEEP_INTERVAL", "not-a-duration")

		cfg := LoadPaymentConfig()
		assert.Equal(t, 2*time.Minute, cfg.ExpiryWindow)
		assert.Equal(t, 7, cfg.PushRateLimit)
		assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	})
}

func TestPaymentConfigValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, LoadPaymentConfig().Validate())
	})

	t.Run("zero sweep interval", func(t *testing.T) {
		t.Setenv("PAYMENT_SWEEP_INTERVAL", "0s")

		err := LoadPaymentConfig().Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "PAYMENT_SWEEP_INTERVAL")
	})

	t.Run("negative values are all reported", func(t *testing.T) {
		t.Setenv("PAYMENT_EXPIRY_WINDOW", "-1m")
		t.Setenv("PAYMENT_PUSH_RATE_LIMIT", "-1")
		t.Setenv("PAYMENT_REPAIR_BATCH_SIZE", "0")

		err := LoadPaymentConfig().Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "PAYMENT_EXPIRY_WINDOW")
		assert.Contains(t, err.Error(), "PAYMENT_PUSH_RATE_LIMIT")
		assert.Contains(t, err.Error(), "PAYMENT_REPAIR_BATCH_SIZE")
	})

	t.Run("rate limit of zero disables limiting", func(t *testing.T) {
		t.Setenv("PAYMENT_PUSH_RATE_LIMIT", "0")
		assert.NoError(t, LoadPaymentConfig().Validate())
	})
}
