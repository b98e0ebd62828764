package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/mmk-jobpipe/config"
)

// InitLogger initializes the structured logger at the given level
// (debug, info, warn or error; anything else means info).
func InitLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig validates that at least one service is enabled and that
// the chosen backends can serve the enabled services.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	// In-process backends are not shared across processes.
	if cfg.QueueBackend == config.QueueBackendLocal && services[config.ServiceModeHTTP] != services[config.ServiceModeWorker] {
		return errors.New("local queue backend requires http and worker in the same process")
	}
	if cfg.StoreBackend == config.StoreBackendMemory && !services[config.ServiceModeWorker] {
		return errors.New("memory store backend requires the worker in the same process")
	}

	return nil
}

// GetEnabledServices returns a sorted list of enabled service names.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		// Return empty list on error - validation will catch this
		return []string{}
	}

	enabledServices := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			enabledServices = append(enabledServices, string(mode))
		}
	}
	slices.Sort(enabledServices)
	return enabledServices
}
