package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sigs.k8s.io/yaml"
)

// Store backends selectable with STUDIO_STORE.
const (
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// Config captures the settings of the studio admin service.
type Config struct {
	HTTPPort           int
	Store              string
	SQLiteDSN          string
	FirestoreProject   string
	Timezone           string
	BookingWindowWeeks int
	ReportMonths       int
	CascadeParallelism int
	LookupTTL          time.Duration
	LogLevel           string
}

// fileConfig mirrors Config in the optional YAML file. Durations are strings.
type fileConfig struct {
	HTTPPort           int    `json:"httpPort"`
	Store              string `json:"store"`
	SQLiteDSN          string `json:"sqliteDsn"`
	FirestoreProject   string `json:"firestoreProject"`
	Timezone           string `json:"timezone"`
	BookingWindowWeeks int    `json:"bookingWindowWeeks"`
	ReportMonths       int    `json:"reportMonths"`
	CascadeParallelism int    `json:"cascadeParallelism"`
	LookupTTL          string `json:"lookupTTL"`
	LogLevel           string `json:"logLevel"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTPPort:           8080,
		Store:              StoreMemory,
		SQLiteDSN:          "file:studio.db",
		Timezone:           "Europe/Rome",
		BookingWindowWeeks: 2,
		ReportMonths:       12,
		CascadeParallelism: 8,
		LookupTTL:          30 * time.Second,
		LogLevel:           "info",
	}
}

// Load parses configuration values from the current process environment.
//
// When STUDIO_CONFIG_FILE names a YAML file its values replace the defaults;
// environment variables override both. Every missing or invalid entry is
// reported in a single error.
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("STUDIO_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	positiveInt("STUDIO_HTTP_PORT", &cfg.HTTPPort, &invalid)
	positiveInt("STUDIO_BOOKING_WINDOW_WEEKS", &cfg.BookingWindowWeeks, &invalid)
	positiveInt("STUDIO_REPORT_MONTHS", &cfg.ReportMonths, &invalid)
	positiveInt("STUDIO_CASCADE_PARALLELISM", &cfg.CascadeParallelism, &invalid)

	if store := strings.TrimSpace(os.Getenv("STUDIO_STORE")); store != "" {
		cfg.Store = strings.ToLower(store)
	}
	switch cfg.Store {
	case StoreMemory, StoreSQLite, StoreFirestore:
	default:
		invalid = append(invalid, "STUDIO_STORE")
	}

	if dsn := strings.TrimSpace(os.Getenv("STUDIO_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if project := strings.TrimSpace(os.Getenv("STUDIO_FIRESTORE_PROJECT")); project != "" {
		cfg.FirestoreProject = project
	}
	if cfg.Store == StoreFirestore && cfg.FirestoreProject == "" {
		missing = append(missing, "STUDIO_FIRESTORE_PROJECT")
	}

	if tz := strings.TrimSpace(os.Getenv("STUDIO_TIMEZONE")); tz != "" {
		cfg.Timezone = tz
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		invalid = append(invalid, "STUDIO_TIMEZONE")
	}

	if ttlValue := strings.TrimSpace(os.Getenv("STUDIO_LOOKUP_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "STUDIO_LOOKUP_TTL")
		} else {
			cfg.LookupTTL = ttl
		}
	}

	if level := strings.TrimSpace(os.Getenv("STUDIO_LOG_LEVEL")); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "STUDIO_LOG_LEVEL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func positiveInt(key string, dst *int, invalid *[]string) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		*invalid = append(*invalid, key)
		return
	}
	*dst = n
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	invalid := make([]string, 0, 1)
	if file.HTTPPort != 0 {
		cfg.HTTPPort = file.HTTPPort
	}
	if file.Store != "" {
		cfg.Store = strings.ToLower(file.Store)
	}
	if file.SQLiteDSN != "" {
		cfg.SQLiteDSN = file.SQLiteDSN
	}
	if file.FirestoreProject != "" {
		cfg.FirestoreProject = file.FirestoreProject
	}
	if file.Timezone != "" {
		cfg.Timezone = file.Timezone
	}
	if file.BookingWindowWeeks != 0 {
		cfg.BookingWindowWeeks = file.BookingWindowWeeks
	}
	if file.ReportMonths != 0 {
		cfg.ReportMonths = file.ReportMonths
	}
	if file.CascadeParallelism != 0 {
		cfg.CascadeParallelism = file.CascadeParallelism
	}
	if file.LookupTTL != "" {
		ttl, err := time.ParseDuration(file.LookupTTL)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "lookupTTL")
		} else {
			cfg.LookupTTL = ttl
		}
	}
	if file.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(file.LogLevel)
	}
	if cfg.HTTPPort <= 0 || cfg.BookingWindowWeeks <= 0 || cfg.ReportMonths <= 0 || cfg.CascadeParallelism <= 0 {
		invalid = append(invalid, "numeric values must be positive")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid values in config file %s: %s", path, strings.Join(invalid, ", "))
	}
	return nil
}
