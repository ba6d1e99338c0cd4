// Package config loads turmeric's YAML configuration and validates the
// refresh intervals.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvcrn/turmeric/internal/credentials"
	"github.com/dvcrn/turmeric/internal/env"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultGroceriesRefresh is the grocery list interval in minutes
	DefaultGroceriesRefresh = 360
	// DefaultMealsRefresh is the meal plan interval in minutes
	DefaultMealsRefresh = 720

	MinRefresh = 1
	MaxRefresh = 1440

	DefaultPort = "9880"

	// PathEnv overrides the config file location
	PathEnv = "TURMERIC_CONFIG"
	// DefaultFile is the config file name within the config directory
	DefaultFile = "config.yaml"
)

var (
	// ErrInvalidRefresh means an interval is outside MinRefresh..MaxRefresh minutes
	ErrInvalidRefresh = errors.New("refresh interval out of range")
	// ErrMissingCredentials means neither the file nor any other source supplied credentials
	ErrMissingCredentials = credentials.ErrMissingCredentials
)

// Config is the contents of config.yaml. Intervals are minutes.
type Config struct {
	Email    string `yaml:"email,omitempty"`
	Password string `yaml:"password,omitempty"`
	// APIToken skips the login at startup when set
	APIToken string `yaml:"api_token,omitempty"`

	GroceriesRefresh int `yaml:"groceries_refresh"`
	MealsRefresh     int `yaml:"meals_refresh"`

	Port string `yaml:"port,omitempty"`
	// StatePath is a SQLite file for last-good payloads; empty keeps them in memory
	StatePath string `yaml:"state_path,omitempty"`

	BaseURL   string   `yaml:"base_url,omitempty"`
	LoginURLs []string `yaml:"login_urls,omitempty"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		GroceriesRefresh: DefaultGroceriesRefresh,
		MealsRefresh:     DefaultMealsRefresh,
		Port:             DefaultPort,
	}
}

// DefaultPath returns $TURMERIC_CONFIG, or config.yaml in the XDG config dir
func DefaultPath() string {
	if p, ok := env.Get(PathEnv); ok && p != "" {
		return p
	}
	return filepath.Join(credentials.ConfigDir(), DefaultFile)
}

// Load reads the config at path. A missing file yields Default(). Fields
// absent from the file keep their defaults; the result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	return cfg, nil
}

// Validate checks both refresh intervals
func (c *Config) Validate() error {
	var errs []error
	if err := validateRefresh("groceries_refresh", c.GroceriesRefresh); err != nil {
		errs = append(errs, err)
	}
	if err := validateRefresh("meals_refresh", c.MealsRefresh); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateRefresh checks one interval in minutes; usable as a flag validator
func ValidateRefresh(minutes int) error {
	return validateRefresh("refresh", minutes)
}

func validateRefresh(name string, minutes int) error {
	if minutes < MinRefresh || minutes > MaxRefresh {
		return fmt.Errorf("%w: %s must be between %d and %d minutes, got %d", ErrInvalidRefresh, name, MinRefresh, MaxRefresh, minutes)
	}
	return nil
}

// GroceriesInterval returns the grocery list interval
func (c *Config) GroceriesInterval() time.Duration {
	return time.Duration(c.GroceriesRefresh) * time.Minute
}

// MealsInterval returns the meal plan interval
func (c *Config) MealsInterval() time.Duration {
	return time.Duration(c.MealsRefresh) * time.Minute
}

// CredentialsFetcher returns a fetcher for the credentials in the file, or
// nil when the file has none.
func (c *Config) CredentialsFetcher() credentials.CredentialsFetcher {
	if c.Email == "" && c.Password == "" {
		return nil
	}
	return credentials.NewStaticCredentialsFetcher(c.Email, c.Password)
}
