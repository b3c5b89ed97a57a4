package config

import (
	"os"
	"strings"
)

type Config struct {
	Storage   StorageConfig   `json:"storage"`
	Recipes   RecipesConfig   `json:"recipes"`
	Generator GeneratorConfig `json:"generator"`
	Telemetry TelemetryConfig `json:"telemetry"`
	// Supermarket is the default store used for price estimates.
	Supermarket string `json:"supermarket"`
}

type StorageConfig struct {
	Dir         string `json:"dir"`
	AccountName string `json:"account_name"`
	AccountKey  string `json:"-"`
	Container   string `json:"container"`
}

// RecipesConfig points at the hosted recipe bank. An empty URL means the
// embedded example recipes are used instead.
type RecipesConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"-"`
}

type GeneratorConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"-"`
}

type TelemetryConfig struct {
	Endpoint    string `json:"endpoint"`
	ServiceName string `json:"service_name"`
	Level       string `json:"level"`
	// LogToBlob appends JSON logs to the storage account as well.
	LogToBlob bool `json:"log_to_blob"`
}

func (t TelemetryConfig) Enabled() bool {
	return t.Endpoint != ""
}

func Load() (*Config, error) {
	config := &Config{
		Storage: StorageConfig{
			Dir:         getEnvOrDefault("DESPENSA_CACHE_DIR", "cache"),
			AccountName: os.Getenv("AZURE_STORAGE_ACCOUNT_NAME"),
			AccountKey:  os.Getenv("AZURE_STORAGE_PRIMARY_ACCOUNT_KEY"),
			Container:   getEnvOrDefault("DESPENSA_CONTAINER", "despensa"),
		},
		Recipes: RecipesConfig{
			URL:    strings.TrimRight(os.Getenv("RECIPES_API_URL"), "/"),
			APIKey: os.Getenv("RECIPES_API_KEY"),
		},
		Generator: GeneratorConfig{
			URL:    strings.TrimRight(os.Getenv("GENERATOR_URL"), "/"),
			APIKey: os.Getenv("GENERATOR_KEY"),
		},
		Telemetry: TelemetryConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: getEnvOrDefault("OTEL_SERVICE_NAME", "despensa"),
			Level:       getEnvOrDefault("DESPENSA_LOG_LEVEL", "info"),
			LogToBlob:   os.Getenv("DESPENSA_LOG_TO_BLOB") == "true",
		},
		Supermarket: getEnvOrDefault("DESPENSA_SUPERMARKET", "Mercadona"),
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
