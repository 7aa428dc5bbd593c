// Package config loads server configuration from defaults, an optional YAML
// file, and NAV__-prefixed environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the complete server configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Google     GoogleConfig     `koanf:"google"`
	Geocoding  GeocodingConfig  `koanf:"geocoding"`
	Custom     CustomConfig     `koanf:"custom"`
	Parking    ParkingConfig    `koanf:"parking"`
	Navigation NavigationConfig `koanf:"navigation"`
	Cache      CacheConfig      `koanf:"cache"`
	Store      StoreConfig      `koanf:"store"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `koanf:"port"`
	CorsOrigins []string `koanf:"cors_origins"`
	AuthToken   string   `koanf:"auth_token"`
}

// GoogleConfig holds Routes API settings.
type GoogleConfig struct {
	APIKey string `koanf:"api_key"`
}

// GeocodingConfig holds Nominatim settings and search behavior.
type GeocodingConfig struct {
	BaseURL     string        `koanf:"base_url"`
	UserAgent   string        `koanf:"user_agent"`
	Debounce    time.Duration `koanf:"debounce"`
	ResultLimit int           `koanf:"result_limit"`
}

// CustomConfig holds the optional custom routing override. Routing prefers
// it over Google whenever BaseURL is set.
type CustomConfig struct {
	BaseURL string `koanf:"base_url"`
	Token   string `koanf:"token"`
}

// ParkingConfig holds the recommendation service endpoint.
type ParkingConfig struct {
	BaseURL string `koanf:"base_url"`
}

// NavigationConfig holds the live-navigation tuning knobs.
type NavigationConfig struct {
	OffRouteMeters     float64       `koanf:"off_route_meters"`
	RerouteMinInterval time.Duration `koanf:"reroute_min_interval"`
	JumpMeters         float64       `koanf:"jump_meters"`
	EtaRefreshInterval time.Duration `koanf:"eta_refresh_interval"`
	TrackMinInterval   time.Duration `koanf:"track_min_interval"`
	TrackMinDistance   float64       `koanf:"track_min_distance"`
}

// CacheConfig holds result caching settings. RedisAddr empty means the
// in-process cache.
type CacheConfig struct {
	TTL       time.Duration `koanf:"ttl"`
	RedisAddr string        `koanf:"redis_addr"`
}

// StoreConfig holds persistence settings. PostgresDSN empty means the
// in-memory store.
type StoreConfig struct {
	PostgresDSN string `koanf:"postgres_dsn"`
}

// envPrefix namespaces environment overrides, e.g. NAV__SERVER__PORT=9090.
const envPrefix = "NAV__"

// Default returns the configuration the server ships with.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CorsOrigins: []string{"*"},
		},
		Geocoding: GeocodingConfig{
			BaseURL:     "https://nominatim.openstreetmap.org",
			UserAgent:   "sparkpark-navigator/1.0",
			Debounce:    250 * time.Millisecond,
			ResultLimit: 8,
		},
		Navigation: NavigationConfig{
			OffRouteMeters:     80,
			RerouteMinInterval: 20 * time.Second,
			JumpMeters:         100,
			EtaRefreshInterval: 60 * time.Second,
			TrackMinInterval:   10 * time.Second,
			TrackMinDistance:   25,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// non-empty), then environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(confmap.Provider(defaultMap(defaults), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// defaultMap flattens the default struct into koanf's key space so that file
// and env layers override individual keys rather than whole sections.
func defaultMap(c *Config) map[string]interface{} {
	return map[string]interface{}{
		"server.port":                     c.Server.Port,
		"server.cors_origins":             c.Server.CorsOrigins,
		"server.auth_token":               c.Server.AuthToken,
		"google.api_key":                  c.Google.APIKey,
		"geocoding.base_url":              c.Geocoding.BaseURL,
		"geocoding.user_agent":            c.Geocoding.UserAgent,
		"geocoding.debounce":              c.Geocoding.Debounce,
		"geocoding.result_limit":          c.Geocoding.ResultLimit,
		"custom.base_url":                 c.Custom.BaseURL,
		"custom.token":                    c.Custom.Token,
		"parking.base_url":                c.Parking.BaseURL,
		"navigation.off_route_meters":     c.Navigation.OffRouteMeters,
		"navigation.reroute_min_interval": c.Navigation.RerouteMinInterval,
		"navigation.jump_meters":          c.Navigation.JumpMeters,
		"navigation.eta_refresh_interval": c.Navigation.EtaRefreshInterval,
		"navigation.track_min_interval":   c.Navigation.TrackMinInterval,
		"navigation.track_min_distance":   c.Navigation.TrackMinDistance,
		"cache.ttl":                       c.Cache.TTL,
		"cache.redis_addr":                c.Cache.RedisAddr,
		"store.postgres_dsn":              c.Store.PostgresDSN,
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Navigation.OffRouteMeters <= 0 {
		return fmt.Errorf("off_route_meters must be positive")
	}
	if c.Geocoding.ResultLimit <= 0 {
		return fmt.Errorf("result_limit must be positive")
	}
	return nil
}
