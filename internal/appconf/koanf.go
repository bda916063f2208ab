package appconf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix marks generic overrides: RENTMAP_STOPS__CACHE_TTL -> stops.cache_ttl.
const envPrefix = "rentmap_"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/rentmap/config.yaml",
}

// Budapest, Deák Ferenc tér.
const (
	defaultCenterLat = 47.4979
	defaultCenterLon = 19.0402
)

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        4000,
			Env:         "development",
			ApiKeys:     []string{"test"},
			RateLimit:   100,
			CORSOrigins: []string{"*"},
			Timeout:     10 * time.Second,
		},
		Stops: StopsConfig{
			BaseURL:        "https://futar.bkk.hu/api/query/v1/ws/otp/api/where",
			CacheTTL:       20 * time.Minute,
			ReuseDistance:  300,
			Radius:         1000,
			MaxCount:       100,
			MinInterval:    800 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
			DefaultLat:     defaultCenterLat,
			DefaultLon:     defaultCenterLon,
		},
		Geocode: GeocodeConfig{
			BaseURL:           "https://nominatim.openstreetmap.org",
			UserAgent:         "RentMapApp/1.0",
			CountryCodes:      "hu",
			Limit:             8,
			RequestsPerSecond: 1,
		},
		Places: PlacesConfig{
			DBPath: "rentmap.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

// Load builds the Config from, in increasing priority: built-in defaults, an optional
// YAML file, and environment variables. A .env file in the working directory is read
// into the environment first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load without .env handling and with an explicit config file path.
// An empty path skips the file layer.
func LoadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings covers the variable names the browser build already used, so one .env
// file can serve both.
var envMappings = map[string]string{
	"port":                 "server.port",
	"env":                  "server.env",
	"api_keys":             "server.api_keys",
	"bkk_api_key":          "stops.api_key",
	"vite_bkk_api_key":     "stops.api_key",
	"bkk_api_url":          "stops.base_url",
	"vite_bkk_api_url":     "stops.base_url",
	"auth_jwt_secret":      "auth.jwt_secret",
	"supabase_jwt_secret":  "auth.jwt_secret",
	"places_db_path":       "places.db_path",
	"nominatim_url":        "geocode.base_url",
	"nominatim_user_agent": "geocode.user_agent",
	"log_level":            "logging.level",
	"log_format":           "logging.format",
	"otel_enabled":         "tracing.enabled",
	"otel_endpoint":        "tracing.endpoint",
}

func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	if strings.HasPrefix(key, envPrefix) {
		return strings.ReplaceAll(strings.TrimPrefix(key, envPrefix), "__", ".")
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped variables are skipped.
	return ""
}

var sliceConfigPaths = []string{
	"server.api_keys",
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice settings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
