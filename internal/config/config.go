package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

const (
	FileName  = "afconfig"
	EnvPrefix = "AF"
)

var projectKeyRe = regexp.MustCompile(`^[a-z0-9]{3}$`)

var knownKeys = []string{"db", "project", "log_level", "telemetry"}

type Config struct {
	Path      string
	DBPath    string
	Project   string
	LogLevel  string
	Telemetry bool
}

// Discover walks up from startDir to the nearest afconfig file. It returns
// nil when there is none.
func Discover(startDir string) (*Config, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return parseFile(candidate)
		}
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", candidate, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Load discovers the config file, if any, and applies AF_* environment
// overrides on top of it.
func Load(startDir string) (*Config, error) {
	cfg, err := Discover(startDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &Config{}
	}

	v := newViper()
	if v.IsSet("db") {
		cfg.DBPath = v.GetString("db")
	}
	if v.IsSet("project") {
		if cfg.Project, err = projectKey(v.GetString("project")); err != nil {
			return nil, fmt.Errorf("invalid %s_PROJECT: %w", EnvPrefix, err)
		}
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("telemetry") {
		cfg.Telemetry = v.GetBool("telemetry")
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, k := range knownKeys {
		_ = v.BindEnv(k)
	}
	return v
}

func parseFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("dotenv")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	for _, key := range v.AllKeys() {
		if !slices.Contains(knownKeys, key) {
			return nil, fmt.Errorf("invalid %s: unsupported key %q", path, key)
		}
	}

	cfg := &Config{Path: path}
	if v.IsSet("db") {
		value := strings.TrimSpace(v.GetString("db"))
		if value == "" {
			return nil, fmt.Errorf("invalid %s: db cannot be empty", path)
		}
		if filepath.IsAbs(value) {
			cfg.DBPath = value
		} else {
			cfg.DBPath = filepath.Clean(filepath.Join(filepath.Dir(path), value))
		}
	}
	if v.IsSet("project") {
		key, err := projectKey(v.GetString("project"))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", path, err)
		}
		cfg.Project = key
	}
	cfg.LogLevel = v.GetString("log_level")
	cfg.Telemetry = v.GetBool("telemetry")
	return cfg, nil
}

func projectKey(value string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	if !projectKeyRe.MatchString(key) {
		return "", fmt.Errorf("project must be 3 lowercase alphanumeric chars, got %q", value)
	}
	return key, nil
}

// ValidProjectKey reports whether key is a well-formed project key.
func ValidProjectKey(key string) bool {
	return projectKeyRe.MatchString(key)
}
