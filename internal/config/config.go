// Package config loads askdb.toml and resolves named environments into
// concrete settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the config file looked up from the working directory upwards.
const FileName = "askdb.toml"

// EnvironmentConfig holds the settings of one environment. Zero values mean
// "not set" and fall through to the top-level settings, then the defaults.
type EnvironmentConfig struct {
	DatabaseURL    string   `toml:"database_url"`
	Model          string   `toml:"model"`
	FallbackModels []string `toml:"fallback_models"`
	MaxAttempts    int      `toml:"max_attempts"`
	QueryTimeout   string   `toml:"query_timeout"`
	RowCap         int      `toml:"row_cap"`
	MaxRows        int      `toml:"max_rows"`
	Answer         *bool    `toml:"answer"`
}

// Config is the parsed askdb.toml. Top-level settings apply to every environment.
type Config struct {
	DefaultEnvironment string `toml:"default_environment"`
	EnvironmentConfig
	Environments map[string]EnvironmentConfig `toml:"environments"`

	ConfigFilePath string `toml:"-"`
	// Getenv reads the process environment; nil means os.Getenv.
	Getenv func(string) string `toml:"-"`

	configDir  string
	projectDir string
}

// ConfigDir is the directory dotenv files are read from.
func (c *Config) ConfigDir() string {
	if c == nil {
		return ""
	}
	if c.configDir != "" {
		return c.configDir
	}
	if c.ConfigFilePath != "" {
		return filepath.Dir(c.ConfigFilePath)
	}
	return ""
}

// ProjectDir is the nearest project root above the working directory.
func (c *Config) ProjectDir() string {
	if c == nil {
		return ""
	}
	return c.projectDir
}

func (c *Config) getenv(key string) string {
	if c != nil && c.Getenv != nil {
		return c.Getenv(key)
	}
	return os.Getenv(key)
}

// LoadConfig looks for askdb.toml in the working directory and its parents,
// stopping at a project root. A missing file yields an empty Config.
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(startDir)
}

// LoadConfigFrom is LoadConfig starting at dir.
func LoadConfigFrom(startDir string) (*Config, error) {
	dir := startDir
	projectDir := ""
	for {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			config, err := readConfig(configPath)
			if err != nil {
				return nil, err
			}
			config.projectDir = projectRootFrom(dir)
			return config, nil
		}

		if isProjectRoot(dir) {
			projectDir = dir
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return &Config{projectDir: projectDir}, nil
}

func readConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("failed to parse %s at %d:%d: %w", path, row, col, err)
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	config.ConfigFilePath = path
	return &config, nil
}

func projectRootFrom(dir string) string {
	for {
		if isProjectRoot(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	for _, marker := range []string{".git", "go.mod", "package.json"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}
