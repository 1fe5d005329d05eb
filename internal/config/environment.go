package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvironmentName = "local"
	defaultDatabaseURL     = "chinook.db"
	defaultModel           = "gemini-2.0-flash"
	defaultMaxAttempts     = 3
	defaultQueryTimeout    = 10 * time.Second
	defaultRowCap          = 100
	defaultMaxRows         = 1000
)

var defaultFallbackModels = []string{"gemini-1.5-flash", "gemini-1.5-pro"}

// ResolvedEnvironment represents a fully-resolved environment with concrete values.
type ResolvedEnvironment struct {
	Name           string
	DatabaseURL    string
	APIKey         string
	Model          string
	FallbackModels []string
	MaxAttempts    int
	QueryTimeout   time.Duration
	RowCap         int
	MaxRows        int
	Answer         bool

	DotenvPath string
	FromConfig bool
	FromDotenv bool
}

// ResolveEnvironment resolves a named environment. Settings are layered:
// defaults, then top-level askdb.toml keys, then the [environments.<name>]
// table, then .env.<name>, then the process environment.
func ResolveEnvironment(config *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if config != nil && config.DefaultEnvironment != "" {
			envName = config.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	resolved := &ResolvedEnvironment{
		Name:           envName,
		DatabaseURL:    defaultDatabaseURL,
		Model:          defaultModel,
		FallbackModels: append([]string(nil), defaultFallbackModels...),
		MaxAttempts:    defaultMaxAttempts,
		QueryTimeout:   defaultQueryTimeout,
		RowCap:         defaultRowCap,
		MaxRows:        defaultMaxRows,
		Answer:         true,
	}

	var envExists bool
	if config != nil {
		if err := resolved.apply(config.EnvironmentConfig, "top-level settings"); err != nil {
			return nil, err
		}
		if envConfig, ok := config.Environments[envName]; ok {
			envExists = true
			resolved.FromConfig = true
			if err := resolved.apply(envConfig, "environment "+envName); err != nil {
				return nil, err
			}
		}
	}

	dotenvPath, err := findDotenv(config, ".env."+envName)
	if err != nil {
		return nil, err
	}
	resolved.DotenvPath = dotenvPath

	values := map[string]string{}
	if info, err := os.Stat(dotenvPath); err == nil && !info.IsDir() {
		values, err = godotenv.Read(dotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dotenvPath, err)
		}
		resolved.FromDotenv = true
	}
	resolved.applyVariables(values)

	process := map[string]string{}
	for _, key := range []string{"DATABASE_URL", "POSTGRES_URL", "SQLITE_DB_PATH", "LIBSQL_URL", "LIBSQL_AUTH_TOKEN", "GOOGLE_API_KEY", "GEMINI_API_KEY"} {
		if v := config.getenv(key); v != "" {
			process[key] = v
		}
	}
	resolved.applyVariables(process)

	if config != nil && len(config.Environments) > 0 && !envExists && !resolved.FromDotenv {
		return nil, fmt.Errorf("environment %q not defined in %s and %s not found", envName, FileName, dotenvPath)
	}

	return resolved, nil
}

// apply overlays the settings that are set in c.
func (r *ResolvedEnvironment) apply(c EnvironmentConfig, source string) error {
	if c.DatabaseURL != "" {
		r.DatabaseURL = c.DatabaseURL
	}
	if c.Model != "" {
		r.Model = c.Model
	}
	if c.FallbackModels != nil {
		r.FallbackModels = append([]string{}, c.FallbackModels...)
	}
	if c.QueryTimeout != "" {
		d, err := time.ParseDuration(c.QueryTimeout)
		if err != nil {
			return fmt.Errorf("invalid query_timeout %q in %s: %w", c.QueryTimeout, source, err)
		}
		if d <= 0 {
			return fmt.Errorf("query_timeout in %s must be positive, got %s", source, c.QueryTimeout)
		}
		r.QueryTimeout = d
	}
	for _, n := range []struct {
		key   string
		value int
		dst   *int
	}{
		{"max_attempts", c.MaxAttempts, &r.MaxAttempts},
		{"row_cap", c.RowCap, &r.RowCap},
		{"max_rows", c.MaxRows, &r.MaxRows},
	} {
		if n.value < 0 {
			return fmt.Errorf("%s in %s must be positive, got %d", n.key, source, n.value)
		}
		if n.value > 0 {
			*n.dst = n.value
		}
	}
	if c.Answer != nil {
		r.Answer = *c.Answer
	}
	return nil
}

// applyVariables overlays connection and credential variables. A generic
// DATABASE_URL wins over the driver-specific ones.
func (r *ResolvedEnvironment) applyVariables(values map[string]string) {
	switch {
	case values["DATABASE_URL"] != "":
		r.DatabaseURL = values["DATABASE_URL"]
	case values["POSTGRES_URL"] != "":
		r.DatabaseURL = values["POSTGRES_URL"]
	case values["SQLITE_DB_PATH"] != "":
		r.DatabaseURL = values["SQLITE_DB_PATH"]
	case values["LIBSQL_URL"] != "":
		r.DatabaseURL = values["LIBSQL_URL"]
		if token := values["LIBSQL_AUTH_TOKEN"]; token != "" {
			r.DatabaseURL = fmt.Sprintf("%s?authToken=%s", values["LIBSQL_URL"], token)
		}
	}

	if v := values["GOOGLE_API_KEY"]; v != "" {
		r.APIKey = v
	} else if v := values["GEMINI_API_KEY"]; v != "" {
		r.APIKey = v
	}
}

// findDotenv returns the dotenv path next to the config file, falling back
// to the project root when only that one exists.
func findDotenv(config *Config, fileName string) (string, error) {
	baseDir := config.ConfigDir()
	projectDir := config.ProjectDir()
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}

	path := fileName
	if baseDir != "" {
		path = filepath.Join(baseDir, fileName)
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to access %s: %w", path, err)
		}
		if projectDir != "" && projectDir != baseDir {
			altPath := filepath.Join(projectDir, fileName)
			if altInfo, altErr := os.Stat(altPath); altErr == nil && !altInfo.IsDir() {
				return altPath, nil
			}
		}
	}
	return path, nil
}
