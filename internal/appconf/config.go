package appconf

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingStopsAPIKey is returned by Validate when no key for the upstream stop API is configured.
var ErrMissingStopsAPIKey = errors.New("stops.api_key is required (set BKK_API_KEY)")

// ErrMissingJWTSecret is returned by Validate when the session token secret is not configured.
var ErrMissingJWTSecret = errors.New("auth.jwt_secret is required (set AUTH_JWT_SECRET)")

// Config holds all the configuration settings for the Application.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Stops   StopsConfig   `koanf:"stops"`
	Geocode GeocodeConfig `koanf:"geocode"`
	Places  PlacesConfig  `koanf:"places"`
	Auth    AuthConfig    `koanf:"auth"`
	Logging LoggingConfig `koanf:"logging"`
	Tracing TracingConfig `koanf:"tracing"`
}

type ServerConfig struct {
	Port        int           `koanf:"port"`
	Env         string        `koanf:"env"`
	ApiKeys     []string      `koanf:"api_keys"`
	RateLimit   int           `koanf:"rate_limit"` // requests per second per key
	CORSOrigins []string      `koanf:"cors_origins"`
	Timeout     time.Duration `koanf:"timeout"`
}

// StopsConfig configures the upstream stop API and the lookup cache in front of it.
type StopsConfig struct {
	BaseURL        string        `koanf:"base_url"`
	APIKey         string        `koanf:"api_key"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
	ReuseDistance  float64       `koanf:"reuse_distance"` // meters
	Radius         float64       `koanf:"radius"`         // meters
	MaxCount       int           `koanf:"max_count"`
	MinInterval    time.Duration `koanf:"min_interval"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	DefaultLat     float64       `koanf:"default_lat"`
	DefaultLon     float64       `koanf:"default_lon"`
}

type GeocodeConfig struct {
	BaseURL           string  `koanf:"base_url"`
	UserAgent         string  `koanf:"user_agent"`
	CountryCodes      string  `koanf:"country_codes"`
	Limit             int     `koanf:"limit"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

type PlacesConfig struct {
	DBPath string `koanf:"db_path"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Audience  string `koanf:"audience"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or text
}

type TracingConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Insecure bool   `koanf:"insecure"`
}

// Environment returns the parsed server.env value.
func (c *Config) Environment() Environment {
	return EnvFlagToEnvironment(c.Server.Env)
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Stops.APIKey == "" {
		errs = append(errs, ErrMissingStopsAPIKey)
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Stops.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("stops.cache_ttl must be positive, got %s", c.Stops.CacheTTL))
	}
	if c.Stops.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("stops.min_interval must not be negative, got %s", c.Stops.MinInterval))
	}

	return errors.Join(errs...)
}
