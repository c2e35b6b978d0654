// Package config loads the service configuration from defaults, an optional
// YAML file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every recognised option of the compliance service.
type Config struct {
	// GRPCPort is the port the compliance RPC server binds.
	GRPCPort int `yaml:"docker_port_grpc" validate:"min=1,max=65535"`
	// MetricsAddr is the HTTP address for /metrics; empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	GISHost string `yaml:"gis_host_grpc" validate:"required,hostname_rfc1123|ip"`
	GISPort int    `yaml:"gis_port_grpc" validate:"min=1,max=65535"`

	StorageBackend     string `yaml:"storage_backend" validate:"oneof=grpc postgres"`
	StorageHost        string `yaml:"storage_host_grpc" validate:"required_if=StorageBackend grpc"`
	StoragePort        int    `yaml:"storage_port_grpc" validate:"min=1,max=65535"`
	StorageDatabaseURL string `yaml:"storage_database_url" validate:"required_if=StorageBackend postgres"`

	RegionCode string `yaml:"region_code" validate:"required,oneof=us nl"`
	// AuthorityReviewSeconds is how long the in-process authority keeps a
	// request pending before approving it.
	AuthorityReviewSeconds int `yaml:"authority_review_seconds" validate:"min=0"`

	IntervalSecondsRefreshZones     int `yaml:"interval_seconds_refresh_zones" validate:"min=1"`
	IntervalSecondsRefreshWaypoints int `yaml:"interval_seconds_refresh_waypoints" validate:"min=1"`

	IntervalSecondsFlightReleases int `yaml:"interval_seconds_flight_releases" validate:"min=1"`
	FlightReleaseLookaheadSeconds int `yaml:"flight_release_lookahead_seconds" validate:"min=1"`
	IntervalSecondsFlightPlans    int `yaml:"interval_seconds_flight_plans" validate:"min=1"`
	FlightPlanLookaheadSeconds    int `yaml:"flight_plan_lookahead_seconds" validate:"min=1"`

	// DecisionMemorySize bounds how many decided or malformed flight plans a
	// reconciler remembers. It must be positive.
	DecisionMemorySize int `yaml:"decision_memory_size" validate:"min=1"`

	AMQPURL           string `yaml:"amqp_url" validate:"required,url"`
	TelemetryEncoding string `yaml:"telemetry_encoding" validate:"oneof=json msgpack"`

	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		GRPCPort:                        50051,
		MetricsAddr:                     ":9090",
		GISHost:                         "svc-gis",
		GISPort:                         50051,
		StorageBackend:                  "grpc",
		StorageHost:                     "svc-storage",
		StoragePort:                     50051,
		RegionCode:                      "us",
		IntervalSecondsRefreshZones:     30,
		IntervalSecondsRefreshWaypoints: 30,
		IntervalSecondsFlightReleases:   10,
		FlightReleaseLookaheadSeconds:   3600,
		IntervalSecondsFlightPlans:      30,
		FlightPlanLookaheadSeconds:      86400,
		DecisionMemorySize:              1024,
		TelemetryEncoding:               "json",
		LogLevel:                        "info",
		LogFormat:                       "text",
	}
}

// Load builds a Config from defaults, the YAML file at path (optional), a
// .env file in the working directory (optional) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"METRICS_ADDR":         &c.MetricsAddr,
		"GIS_HOST_GRPC":        &c.GISHost,
		"STORAGE_BACKEND":      &c.StorageBackend,
		"STORAGE_HOST_GRPC":    &c.StorageHost,
		"STORAGE_DATABASE_URL": &c.StorageDatabaseURL,
		"REGION_CODE":          &c.RegionCode,
		"AMQP__URL":            &c.AMQPURL,
		"TELEMETRY_ENCODING":   &c.TelemetryEncoding,
		"LOG_LEVEL":            &c.LogLevel,
		"LOG_FORMAT":           &c.LogFormat,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"DOCKER_PORT_GRPC":                   &c.GRPCPort,
		"GIS_PORT_GRPC":                      &c.GISPort,
		"STORAGE_PORT_GRPC":                  &c.StoragePort,
		"AUTHORITY_REVIEW_SECONDS":           &c.AuthorityReviewSeconds,
		"INTERVAL_SECONDS_REFRESH_ZONES":     &c.IntervalSecondsRefreshZones,
		"INTERVAL_SECONDS_REFRESH_WAYPOINTS": &c.IntervalSecondsRefreshWaypoints,
		"INTERVAL_SECONDS_FLIGHT_RELEASES":   &c.IntervalSecondsFlightReleases,
		"FLIGHT_RELEASE_LOOKAHEAD_SECONDS":   &c.FlightReleaseLookaheadSeconds,
		"INTERVAL_SECONDS_FLIGHT_PLANS":      &c.IntervalSecondsFlightPlans,
		"FLIGHT_PLAN_LOOKAHEAD_SECONDS":      &c.FlightPlanLookaheadSeconds,
		"DECISION_MEMORY_SIZE":               &c.DecisionMemorySize,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
		}
		*dst = n
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field and reports all failures at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// GRPCListenAddr is the address the RPC server binds.
func (c Config) GRPCListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(c.GRPCPort))
}

// GISAddr is the dial target of the geospatial service.
func (c Config) GISAddr() string {
	return net.JoinHostPort(c.GISHost, strconv.Itoa(c.GISPort))
}

// StorageAddr is the dial target of the record store.
func (c Config) StorageAddr() string {
	return net.JoinHostPort(c.StorageHost, strconv.Itoa(c.StoragePort))
}

func (c Config) RefreshZonesInterval() time.Duration {
	return time.Duration(c.IntervalSecondsRefreshZones) * time.Second
}

func (c Config) RefreshWaypointsInterval() time.Duration {
	return time.Duration(c.IntervalSecondsRefreshWaypoints) * time.Second
}

func (c Config) FlightReleaseInterval() time.Duration {
	return time.Duration(c.IntervalSecondsFlightReleases) * time.Second
}

func (c Config) FlightReleaseLookahead() time.Duration {
	return time.Duration(c.FlightReleaseLookaheadSeconds) * time.Second
}

func (c Config) FlightPlanInterval() time.Duration {
	return time.Duration(c.IntervalSecondsFlightPlans) * time.Second
}

func (c Config) FlightPlanLookahead() time.Duration {
	return time.Duration(c.FlightPlanLookaheadSeconds) * time.Second
}

func (c Config) AuthorityReview() time.Duration {
	return time.Duration(c.AuthorityReviewSeconds) * time.Second
}
