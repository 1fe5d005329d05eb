package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const exampleConfig = `default_environment = "staging"
model = "gemini-2.0-flash"
row_cap = 50

[environments.staging]
database_url = "postgres://askdb@staging/music"
max_attempts = 5
query_timeout = "30s"
fallback_models = ["gemini-1.5-pro"]
answer = false`

// compareConfigPaths compares two paths, resolving symlinks
func compareConfigPaths(t *testing.T, expected, actual string) {
	t.Helper()

	expectedResolved, err := filepath.EvalSymlinks(expected)
	if err != nil {
		expectedResolved = expected
	}
	actualResolved, err := filepath.EvalSymlinks(actual)
	if err != nil {
		actualResolved = actual
	}

	if expectedResolved != actualResolved {
		t.Errorf("Expected ConfigFilePath=%q, got %q", expectedResolved, actualResolved)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// changeToDir changes to a directory and returns a cleanup function
func changeToDir(t *testing.T, dir string) func() {
	t.Helper()

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change to directory %q: %v", dir, err)
	}

	return func() {
		if _, err := os.Stat(originalDir); err == nil {
			if err := os.Chdir(originalDir); err != nil {
				t.Logf("Failed to restore working directory: %v", err)
			}
		}
	}
}

func TestLoadConfigInCurrentDirectory(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, FileName)
	writeFile(t, configPath, exampleConfig)

	cleanup := changeToDir(t, tempDir)
	defer cleanup()

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if config.DefaultEnvironment != "staging" {
		t.Errorf("Expected default_environment=staging, got %q", config.DefaultEnvironment)
	}
	if config.Model != "gemini-2.0-flash" || config.RowCap != 50 {
		t.Errorf("Expected top-level settings, got %+v", config.EnvironmentConfig)
	}

	staging, ok := config.Environments["staging"]
	if !ok {
		t.Fatalf("Expected staging environment, got %v", config.Environments)
	}
	answer := false
	want := EnvironmentConfig{
		DatabaseURL:    "postgres://askdb@staging/music",
		MaxAttempts:    5,
		QueryTimeout:   "30s",
		FallbackModels: []string{"gemini-1.5-pro"},
		Answer:         &answer,
	}
	if diff := cmp.Diff(want, staging); diff != "" {
		t.Errorf("Environment mismatch (-want +got):\n%s", diff)
	}

	compareConfigPaths(t, configPath, config.ConfigFilePath)
}

func TestLoadConfigInParentDirectory(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, FileName)
	writeFile(t, configPath, exampleConfig)

	subDir := filepath.Join(tempDir, "subdir", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	config, err := LoadConfigFrom(subDir)
	if err != nil {
		t.Fatalf("LoadConfigFrom returned error: %v", err)
	}
	if _, ok := config.Environments["staging"]; !ok {
		t.Errorf("Expected staging environment, got %v", config.Environments)
	}
	compareConfigPaths(t, configPath, config.ConfigFilePath)
	compareConfigPaths(t, tempDir, config.ConfigDir())
}

func TestLoadConfigNoFileReturnsEmpty(t *testing.T) {
	t.Parallel()

	config, err := LoadConfigFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfigFrom returned error: %v", err)
	}
	if config.Environments != nil {
		t.Errorf("Expected empty environments, got %v", config.Environments)
	}
	if config.ConfigFilePath != "" {
		t.Errorf("Expected empty ConfigFilePath, got %q", config.ConfigFilePath)
	}
}

func TestLoadConfigStopsAtProjectRoot(t *testing.T) {
	tests := []struct {
		name   string
		marker string
	}{
		{"git", ".git/HEAD"},
		{"go module", "go.mod"},
		{"node package", "package.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parentDir := t.TempDir()
			writeFile(t, filepath.Join(parentDir, FileName), `[environments.local]
database_url = "parent.db"`)

			projectDir := filepath.Join(parentDir, "project")
			writeFile(t, filepath.Join(projectDir, tt.marker), "")
			subDir := filepath.Join(projectDir, "src", "components")
			if err := os.MkdirAll(subDir, 0o755); err != nil {
				t.Fatalf("Failed to create subdirectory: %v", err)
			}

			config, err := LoadConfigFrom(subDir)
			if err != nil {
				t.Fatalf("LoadConfigFrom returned error: %v", err)
			}
			if config.Environments != nil {
				t.Errorf("Expected the search to stop at the project root, got %v", config.Environments)
			}
			compareConfigPaths(t, projectDir, config.ProjectDir())
		})
	}
}

func TestLoadConfigPrefersProjectConfig(t *testing.T) {
	t.Parallel()

	parentDir := t.TempDir()
	writeFile(t, filepath.Join(parentDir, FileName), `database_url = "parent.db"`)
	projectDir := filepath.Join(parentDir, "project")
	writeFile(t, filepath.Join(projectDir, ".git", "HEAD"), "")
	projectConfig := filepath.Join(projectDir, FileName)
	writeFile(t, projectConfig, `database_url = "project.db"`)

	config, err := LoadConfigFrom(filepath.Join(projectDir))
	if err != nil {
		t.Fatalf("LoadConfigFrom returned error: %v", err)
	}
	if config.DatabaseURL != "project.db" {
		t.Errorf("Expected database_url=project.db, got %q", config.DatabaseURL)
	}
	compareConfigPaths(t, projectConfig, config.ConfigFilePath)
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	writeFile(t, filepath.Join(tempDir, FileName), `test = "test" invalid syntax`)

	_, err := LoadConfigFrom(tempDir)
	if err == nil {
		t.Fatal("Expected error for invalid TOML, got nil")
	}
	if !strings.Contains(err.Error(), "askdb.toml at 1:") {
		t.Errorf("Expected a positioned TOML parse error, got: %v", err)
	}
}

func TestLoadConfigEmptyFile(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, FileName)
	writeFile(t, configPath, "")

	config, err := LoadConfigFrom(tempDir)
	if err != nil {
		t.Fatalf("LoadConfigFrom returned error for empty file: %v", err)
	}
	if config.Environments != nil {
		t.Errorf("Expected empty environments, got %v", config.Environments)
	}
	compareConfigPaths(t, configPath, config.ConfigFilePath)
}

func TestIsProjectRoot(t *testing.T) {
	tests := []struct {
		name   string
		marker string
		want   bool
	}{
		{"git", ".git/config", true},
		{"go.mod", "go.mod", true},
		{"package.json", "package.json", true},
		{"no markers", "README.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tempDir := t.TempDir()
			writeFile(t, filepath.Join(tempDir, tt.marker), "")
			if got := isProjectRoot(tempDir); got != tt.want {
				t.Errorf("isProjectRoot() = %v, want %v", got, tt.want)
			}
		})
	}
}
