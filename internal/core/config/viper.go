package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. RL_VALIDATOR_API_PORT.
const EnvPrefix = "RL"

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller after LoadConfig returns.
func LoadConfig(configPath string) (*ValidatorAPIConfig, error) {
	v := viper.New()

	d := DefaultValidatorAPIConfig()
	v.SetDefault("validator_api.host", d.Host)
	v.SetDefault("validator_api.port", d.Port)
	v.SetDefault("validator_api.max_connections", d.MaxConnections)
	v.SetDefault("validator_api.request_timeout", d.RequestTimeout.String())
	v.SetDefault("validator_api.max_batch_size", d.MaxBatchSize)
	v.SetDefault("validator_api.data_dir", d.DataDir)
	v.SetDefault("validator_api.metrics_addr", d.MetricsAddr)
	v.SetDefault("validator_api.report_retention", d.ReportRetention.String())
	v.SetDefault("validator_api.prune_schedule", d.PruneSchedule)
	v.SetDefault("validator_api.rate_limit", d.RateLimit)
	v.SetDefault("validator_api.rate_burst", d.RateBurst)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only. Checked before env binding, otherwise
	// RL_HMAC_SECRET itself would satisfy IsSet("hmac_secret").
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &ValidatorAPIConfig{
		Host:           v.GetString("validator_api.host"),
		Port:           v.GetInt("validator_api.port"),
		MaxConnections: v.GetInt("validator_api.max_connections"),
		RequestTimeout: v.GetDuration("validator_api.request_timeout"),
		MaxBatchSize:   v.GetInt("validator_api.max_batch_size"),
		DataDir:        v.GetString("validator_api.data_dir"),
		MetricsAddr:    v.GetString("validator_api.metrics_addr"),

		ReportRetention: v.GetDuration("validator_api.report_retention"),
		PruneSchedule:   v.GetString("validator_api.prune_schedule"),

		RateLimit: v.GetFloat64("validator_api.rate_limit"),
		RateBurst: v.GetInt("validator_api.rate_burst"),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks port range and positive limits.
// Callers re-run it after applying CLI flag overrides.
func Validate(cfg *ValidatorAPIConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", cfg.MaxBatchSize)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if cfg.ReportRetention < 0 {
		return fmt.Errorf("report_retention must not be negative, got %v", cfg.ReportRetention)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %v", cfg.RateLimit)
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set, got %d", cfg.RateBurst)
	}
	return nil
}

func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("hmac_secret") || v.IsSet("validator_api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use %s environment variable)", SecretEnvVar)
	}
	return nil
}
