package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Unsetenv("WEATHER_API_KEY")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when no WEATHER_API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("Load() error = %v, want message containing WEATHER_API_KEY", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Unsetenv("WEATHER_API_KEY")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\n")
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	savedEnv := os.Getenv("ENV_NAME")
	os.Setenv("ENV_NAME", "nonexistent")
	defer func() {
		os.Setenv("ENV_NAME", savedEnv)
	}()

	origWd, _ := os.Getwd()
	os.Chdir(t.TempDir())
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") && !strings.Contains(err.Error(), "config file") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, "weather_api:\n  timeout: \"2s\"\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if !strings.Contains(cfg.WeatherHistoryURL, "past-weather.ashx") {
		t.Errorf("WeatherHistoryURL = %q, want past-weather endpoint default", cfg.WeatherHistoryURL)
	}
	if cfg.WeatherCity != "Seoul" {
		t.Errorf("WeatherCity = %q, want Seoul", cfg.WeatherCity)
	}
	if cfg.ForecastHorizonDays != 14 {
		t.Errorf("ForecastHorizonDays = %d, want 14", cfg.ForecastHorizonDays)
	}
	if cfg.CacheBackend != "file" {
		t.Errorf("CacheBackend = %q, want file", cfg.CacheBackend)
	}
	if cfg.CacheFilePath != "data/cache.csv" {
		t.Errorf("CacheFilePath = %q, want data/cache.csv", cfg.CacheFilePath)
	}
	if cfg.ModelLambda != 1.0 {
		t.Errorf("ModelLambda = %v, want 1.0", cfg.ModelLambda)
	}
	if !cfg.PrimeCache {
		t.Error("PrimeCache = false, want true by default")
	}
	want := time.Date(2008, 7, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.HistoryEarliestDate.Equal(want) {
		t.Errorf("HistoryEarliestDate = %v, want %v", cfg.HistoryEarliestDate, want)
	}
}

func TestLoad_EmptyDurationFallsBackToDefault(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	emptyDurationYAML := `
server:
  port: "8080"
weather_api:
  timeout: ""
request:
  timeout: "45s"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, emptyDurationYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 10*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 10s default for empty duration", cfg.WeatherAPITimeout)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	invalidDurationYAML := minimalEnvYAML + `
cache:
  memcached:
    ttl: "invalid"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, invalidDurationYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MemcachedTTL != 24*time.Hour {
		t.Errorf("MemcachedTTL = %v, want 24h default for invalid duration", cfg.MemcachedTTL)
	}
}

func TestLoad_InvalidEarliestDate(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	badDateYAML := `
weather_api:
  timeout: "2s"
  history_earliest_date: "01/07/2008"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, badDateYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for malformed history_earliest_date, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "history_earliest_date") {
		t.Errorf("Load() error = %v, want message about history_earliest_date", err)
	}
}

func TestLoad_InvalidCacheBackend(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	badBackendYAML := minimalEnvYAML + `
cache:
  backend: "redis"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, badBackendYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for unsupported cache backend, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "cache.backend") {
		t.Errorf("Load() error = %v, want message about cache.backend", err)
	}
}

func TestLoad_RequestTimeoutRaisedAboveProviderTimeout(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	tightTimeoutYAML := `
weather_api:
  timeout: "20s"
request:
  timeout: "5s"
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, tightTimeoutYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		t.Errorf("RequestTimeout = %v, want above provider timeout %v", cfg.RequestTimeout, cfg.WeatherAPITimeout)
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Unsetenv("WEATHER_API_KEY")
	defer func() {
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "not valid: yaml: [[[")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid secrets YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse") && !strings.Contains(err.Error(), "secrets") {
		t.Errorf("Load() error = %v, want message about parse or secrets", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, "not: valid: yaml: [[[")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid config YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse") && !strings.Contains(err.Error(), "config") {
		t.Errorf("Load() error = %v, want message about parse or config", err)
	}
}

func TestLoad_ModelSettings(t *testing.T) {
	savedKey := os.Getenv("WEATHER_API_KEY")
	os.Setenv("WEATHER_API_KEY", "test-key-1234567890")
	defer func() {
		os.Unsetenv("WEATHER_API_KEY")
		if savedKey != "" {
			os.Setenv("WEATHER_API_KEY", savedKey)
		}
	}()

	modelYAML := minimalEnvYAML + `
model:
  dataset_path: "testdata/rentals.csv"
  lambda: 0.5
  prime_cache: false
`
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, modelYAML)
	writeSecretsFile(t, dir, "weather_api_key: key\n")
	os.Chdir(dir)
	defer os.Chdir(origWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatasetPath != "testdata/rentals.csv" {
		t.Errorf("DatasetPath = %q, want testdata/rentals.csv", cfg.DatasetPath)
	}
	if cfg.ModelLambda != 0.5 {
		t.Errorf("ModelLambda = %v, want 0.5", cfg.ModelLambda)
	}
	if cfg.PrimeCache {
		t.Error("PrimeCache = true, want false when disabled in config")
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  timeout: "2s"
request:
  timeout: "30s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}
