package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"

	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"
)

// MpesaConfig holds the Daraja credentials and endpoints.
type MpesaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
	CallbackToken  string
	TimeoutURL     string
	Environment    string
	BaseURL        string
}

// BindMpesaEnv maps the Daraja environment variables onto viper keys.
func BindMpesaEnv() {
	viper.BindEnv("mpesa.consumer_key", "MPESA_CONSUMER_KEY")
	viper.BindEnv("mpesa.consumer_secret", "MPESA_CONSUMER_SECRET")
	viper.BindEnv("mpesa.shortcode", "MPESA_BUSINESS_SHORT_CODE")
	viper.BindEnv("mpesa.passkey", "MPESA_PASSKEY")
	viper.BindEnv("mpesa.callback_url", "MPESA_CALLBACK_URL")
	viper.BindEnv("mpesa.callback_token", "MPESA_CALLBACK_TOKEN")
	viper.BindEnv("mpesa.timeout_url", "MPESA_TIMEOUT_URL")
	viper.BindEnv("mpesa.environment", "MPESA_ENVIRONMENT")
	viper.BindEnv("mpesa.base_url", "MPESA_BASE_URL")
}

func LoadMpesaConfig() *MpesaConfig {
	viper.SetDefault("mpesa.environment", EnvironmentSandbox)

	cfg := &MpesaConfig{
		ConsumerKey:    viper.GetString("mpesa.consumer_key"),
		ConsumerSecret: viper.GetString("mpesa.consumer_secret"),
		ShortCode:      viper.GetString("mpesa.shortcode"),
		PassKey:        viper.GetString("mpesa.passkey"),
		CallbackURL:    viper.GetString("mpesa.callback_url"),
		CallbackToken:  viper.GetString("mpesa.callback_token"),
		TimeoutURL:     viper.GetString("mpesa.timeout_url"),
		Environment:    strings.ToLower(viper.GetString("mpesa.environment")),
		BaseURL:        viper.GetString("mpesa.base_url"),
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = sandboxBaseURL
		if cfg.Environment == EnvironmentProduction {
			cfg.BaseURL = productionBaseURL
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return cfg
}

// Validate reports every missing required value at once so startup fails
// with a complete list instead of at the first push.
func (c *MpesaConfig) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"MPESA_CONSUMER_KEY", c.ConsumerKey},
		{"MPESA_CONSUMER_SECRET", c.ConsumerSecret},
		{"MPESA_BUSINESS_SHORT_CODE", c.ShortCode},
		{"MPESA_PASSKEY", c.PassKey},
		{"MPESA_CALLBACK_URL", c.CallbackURL},
		{"MPESA_CALLBACK_TOKEN", c.CallbackToken},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required mpesa configuration: %s", strings.Join(missing, ", "))
	}

	if c.Environment != EnvironmentSandbox && c.Environment != EnvironmentProduction {
		return fmt.Errorf("invalid MPESA_ENVIRONMENT %q: must be %s or %s", c.Environment, EnvironmentSandbox, EnvironmentProduction)
	}

	return nil
}

// CallbackEndpoint is the URL handed to Daraja, with the secret path token appended.
func (c *MpesaConfig) CallbackEndpoint() string {
	return strings.TrimRight(c.CallbackURL, "/") + "/" + c.CallbackToken
}
