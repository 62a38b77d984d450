package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PaymentConfig holds the workflow tunables. None of them are required.
type PaymentConfig struct {
	ExpiryWindow       time.Duration
	SweepInterval      time.Duration
	RepairBatchSize    int
	PushRateLimit      int
	PushRateWindow     time.Duration
	StatusQueryTimeout time.Duration
	TokenRefreshMargin time.Duration
	DefaultAmount      int64
	TransactionDesc    string
}

func LoadPaymentConfig() *PaymentConfig {
	return &PaymentConfig{
		ExpiryWindow:       getEnvAsDuration("PAYMENT_EXPIRY_WINDOW", 15*time.Minute),
		SweepInterval:      getEnvAsDuration("PAYMENT_SWEEP_INTERVAL", 5*time.Minute),
		RepairBatchSize:    getEnvAsInt("PAYMENT_REPAIR_BATCH_SIZE", 100),
		PushRateLimit:      getEnvAsInt("PAYMENT_PUSH_RATE_LIMIT", 3),
		PushRateWindow:     getEnvAsDuration("PAYMENT_PUSH_RATE_WINDOW", 10*time.Minute),
		StatusQueryTimeout: getEnvAsDuration("MPESA_STATUS_QUERY_TIMEOUT", 5*time.Second),
		TokenRefreshMargin: getEnvAsDuration("MPESA_TOKEN_REFRESH_MARGIN", 60*time.Second),
		DefaultAmount:      int64(getEnvAsInt("PAYMENT_DEFAULT_AMOUNT", 300)),
		TransactionDesc:    getEnv("MPESA_TRANSACTION_DESC", "Registration Payment"),
	}
}

// Validate rejects tunables that would break the workflow at runtime, such as a
// zero sweep interval. A push rate limit of 0 disables limiting.
func (c *PaymentConfig) Validate() error {
	var problems []string

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"PAYMENT_EXPIRY_WINDOW", c.ExpiryWindow},
		{"PAYMENT_SWEEP_INTERVAL", c.SweepInterval},
		{"PAYMENT_PUSH_RATE_WINDOW", c.PushRateWindow},
		{"MPESA_STATUS_QUERY_TIMEOUT", c.StatusQueryTimeout},
		{"MPESA_TOKEN_REFRESH_MARGIN", c.TokenRefreshMargin},
	}
	for _, d := range durations {
		if d.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %s", d.key, d.value))
		}
	}

	if c.RepairBatchSize <= 0 {
		problems = append(problems, fmt.Sprintf("PAYMENT_REPAIR_BATCH_SIZE must be positive, got %d", c.RepairBatchSize))
	}
	if c.PushRateLimit < 0 {
		problems = append(problems, fmt.Sprintf("PAYMENT_PUSH_RATE_LIMIT must not be negative, got %d", c.PushRateLimit))
	}
	if c.DefaultAmount <= 0 {
		problems = append(problems, fmt.Sprintf("PAYMENT_DEFAULT_AMOUNT must be positive, got %d", c.DefaultAmount))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid payment configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
