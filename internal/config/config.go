// Package config loads puma.yaml and the JSON reference catalogs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory and
// then the home directory.
const FileName = "puma.yaml"

// Backend selections.
const (
	BackendEmbedded = "embedded"
	BackendRemote   = "remote"
	BackendAuto     = "auto"
)

// Environment overrides.
const (
	EnvDBPath       = "PUMA_DB_PATH"
	EnvBackend      = "PUMA_BACKEND"
	EnvWarehouseDSN = "PUMA_WAREHOUSE_DSN"
	EnvUser         = "PUMA_USER"
)

// DefaultClients are offered on the shift form when none are configured.
var DefaultClients = []string{"RTIO", "RTC", "FMG", "FMGX", "Roy Hill", "Other"}

// Config represents the application configuration.
type Config struct {
	DatabasePath    string        `yaml:"databasePath" validate:"required"`
	Backend         string        `yaml:"backend" validate:"required,oneof=embedded remote auto"`
	WarehouseDSN    string        `yaml:"warehouseDSN" validate:"required_if=Backend remote"`
	BusyTimeout     time.Duration `yaml:"busyTimeout" validate:"min=0"`
	RetryAttempts   int           `yaml:"retryAttempts" validate:"min=1,max=1000"`
	RetryBaseDelay  time.Duration `yaml:"retryBaseDelay" validate:"min=0"`
	VehicleCatalog  string        `yaml:"vehicleCatalog,omitempty"`
	ActivityCatalog string        `yaml:"activityCatalog,omitempty"`
	LogDir          string        `yaml:"logDir,omitempty"`
	Users           []string      `yaml:"users,omitempty" validate:"dive,required"`
	DefaultUser     string        `yaml:"defaultUser,omitempty"`
	Clients         []string      `yaml:"clients,omitempty" validate:"dive,required"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns the configuration used when no file is present. Paths
// live under ~/.puma.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".puma")
	return &Config{
		DatabasePath:    filepath.Join(dir, "puma.db"),
		Backend:         BackendEmbedded,
		BusyTimeout:     30 * time.Second,
		RetryAttempts:   30,
		RetryBaseDelay:  25 * time.Millisecond,
		VehicleCatalog:  filepath.Join(dir, "vehicles_catalog.json"),
		ActivityCatalog: filepath.Join(dir, "catalog.json"),
		LogDir:          filepath.Join(dir, "logs"),
		Users:           []string{"Operator"},
		Clients:         append([]string(nil), DefaultClients...),
	}, nil
}

// Load finds puma.yaml in the current directory, then the home directory,
// and applies environment overrides. A missing file is not an error; the
// defaults are used instead.
func Load() (*Config, error) {
	path, err := findConfigFile()
	if errors.Is(err, os.ErrNotExist) {
		cfg, err := Default()
		if err != nil {
			return nil, err
		}
		return finish(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}
	return LoadFromPath(path)
}

// LoadFromPath loads, overrides and validates the configuration at path.
// Fields the file leaves out keep their defaults, and relative paths in the
// file are resolved against its directory.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	base := filepath.Dir(path)
	for _, p := range []*string{&cfg.DatabasePath, &cfg.VehicleCatalog, &cfg.ActivityCatalog, &cfg.LogDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the PUMA_* variables that lookup finds.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDBPath); ok && strings.TrimSpace(v) != "" {
		cfg.DatabasePath = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvBackend); ok && strings.TrimSpace(v) != "" {
		cfg.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvWarehouseDSN); ok && strings.TrimSpace(v) != "" {
		cfg.WarehouseDSN = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvUser); ok && strings.TrimSpace(v) != "" {
		cfg.DefaultUser = strings.TrimSpace(v)
	}
}

// Validate validates the configuration struct.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// User returns the user to act as: the explicit value, else the configured
// default, else the first configured user.
func (c *Config) User(explicit string) string {
	if u := strings.TrimSpace(explicit); u != "" {
		return u
	}
	if c.DefaultUser != "" {
		return c.DefaultUser
	}
	if len(c.Users) > 0 {
		return c.Users[0]
	}
	return ""
}

// String renders the settings that matter for diagnostics. The warehouse DSN
// is reported only as set or unset.
func (c *Config) String() string {
	return fmt.Sprintf("backend=%s db=%s warehouse_dsn_set=%t retries=%d",
		c.Backend, c.DatabasePath, c.WarehouseDSN != "", c.RetryAttempts)
}

// findConfigFile searches for puma.yaml in the current directory and the
// home directory.
func findConfigFile() (string, error) {
	if _, err := os.Stat(FileName); err == nil {
		return FileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, FileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", os.ErrNotExist
}
