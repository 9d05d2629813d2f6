// Package config provides centralized configuration management for fuelsync.
// It loads configuration from an optional YAML file and environment variables
// with sensible defaults, and validates all settings on startup to fail fast
// on misconfiguration.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Tableau TableauConfig `yaml:"tableau"`
	Files   FilesConfig   `yaml:"files"`
	API     APIConfig     `yaml:"api"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
	Stub    StubConfig    `yaml:"stub"`
}

// TableauConfig holds Tableau Cloud export settings.
// None of these are required at load time; the export step validates them.
type TableauConfig struct {
	// Server is the Tableau Cloud base URL, e.g. https://prod-useast-b.online.tableau.com
	Server string `env:"TABLEAU_SERVER" yaml:"server"`

	// SiteID is the site content URL used at sign-in
	SiteID string `env:"TABLEAU_SITE_ID" yaml:"site_id"`

	// TokenName is the personal access token name
	TokenName string `env:"TABLEAU_TOKEN_NAME" yaml:"token_name"`

	// TokenValue is the personal access token secret
	TokenValue string `env:"TABLEAU_TOKEN_VALUE" yaml:"token_value"`

	// WorkbookID is the LUID of the workbook that owns the exported view
	WorkbookID string `env:"WORKBOOK_ID" yaml:"workbook_id"`

	// ViewID is the LUID of the "BASE DE DADOS" view
	ViewID string `env:"VIEW_ID" yaml:"view_id"`

	// APIVersion is the REST API version segment (default: 3.21)
	APIVersion string `env:"TABLEAU_API_VERSION" default:"3.21" yaml:"api_version"`

	// Timeout bounds each REST call (default: 60s)
	Timeout time.Duration `env:"TABLEAU_TIMEOUT" default:"60s" yaml:"timeout"`
}

// FilesConfig holds local file locations.
type FilesConfig struct {
	// OutputDir receives both the exported CSV and the reshaped XLSX (default: output)
	OutputDir string `env:"OUTPUT_DIR" default:"output" yaml:"output_dir"`

	// OriginalName is the exported CSV file name (default: BASE_DE_DADOS.csv)
	OriginalName string `env:"NAME_FILE_ORIGINAL" default:"BASE_DE_DADOS.csv" yaml:"original_name"`

	// ProcessedName is the reshaped XLSX file name (default: ANALISE_DE_PEDIDOS.xlsx)
	ProcessedName string `env:"NAME_FILE_PROCESSED" default:"ANALISE_DE_PEDIDOS.xlsx" yaml:"processed_name"`
}

// APIConfig holds fuel API upload settings.
type APIConfig struct {
	// Enabled turns the upload step on (default: false)
	Enabled bool `env:"ENABLE_API_UPLOAD" default:"false" yaml:"enabled"`

	// URL is the API base URL
	URL string `env:"COMBUSTIVEL_API_URL" yaml:"url"`

	// Token is the bearer token presented on every request
	Token string `env:"COMBUSTIVEL_API_TOKEN" yaml:"token"`

	// UploadRoute is appended to URL for uploads
	UploadRoute string `env:"API_UPLOAD_ROUTE" default:"/importacao-excel/upload" yaml:"upload_route"`

	// StatusRoute is appended to URL for upload status lookups
	StatusRoute string `env:"API_STATUS_ROUTE" default:"/importacao-excel/status" yaml:"status_route"`

	// MaxFileSize is the largest file the uploader will send (default: 50MB)
	MaxFileSize int64 `env:"API_MAX_FILE_SIZE" default:"52428800" yaml:"max_file_size"`

	// Timeout bounds a single upload attempt (default: 60s)
	Timeout time.Duration `env:"API_TIMEOUT" default:"60s" yaml:"timeout"`

	// ProbeTimeout bounds the connectivity probe (default: 10s)
	ProbeTimeout time.Duration `env:"API_PROBE_TIMEOUT" default:"10s" yaml:"probe_timeout"`

	// MaxAttempts caps attempts for retryable failures (default: 3)
	MaxAttempts int `env:"API_MAX_ATTEMPTS" default:"3" yaml:"max_attempts"`

	// InitialDelay is the first backoff delay (default: 1s)
	InitialDelay time.Duration `env:"API_RETRY_INITIAL_DELAY" default:"1s" yaml:"initial_delay"`

	// MaxDelay caps the backoff delay (default: 30s)
	MaxDelay time.Duration `env:"API_RETRY_MAX_DELAY" default:"30s" yaml:"max_delay"`

	// Multiplier grows the delay between attempts (default: 2)
	Multiplier float64 `env:"API_RETRY_MULTIPLIER" default:"2" yaml:"multiplier"`
}

// HistoryConfig holds the optional run history database settings.
type HistoryConfig struct {
	// DatabaseURL is a PostgreSQL connection string; empty disables history
	DatabaseURL string `env:"HISTORY_DATABASE_URL" yaml:"database_url"`

	// MaxConns is the pool size (default: 4)
	MaxConns int `env:"HISTORY_MAX_CONNS" default:"4" yaml:"max_conns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" yaml:"level"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" yaml:"format"`

	// Dir receives daily log files; empty logs to stdout only (default: logs)
	Dir string `env:"LOG_DIR" default:"logs" yaml:"dir"`
}

// StubConfig holds settings for the local stand-in API.
type StubConfig struct {
	// Addr is the listen address (default: :8089)
	Addr string `env:"STUB_ADDR" default:":8089" yaml:"addr"`

	// Token is the bearer token the stub accepts; falls back to API.Token
	Token string `env:"STUB_TOKEN" yaml:"token"`

	// MaxConcurrent caps uploads processed at once; extra requests get 503 (default: 4)
	MaxConcurrent int `env:"STUB_MAX_CONCURRENT" default:"4" yaml:"max_concurrent"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP / X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"STUB_TRUSTED_PROXIES" yaml:"trusted_proxies"`

	// ShutdownTimeout bounds graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration `env:"STUB_SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout"`
}

// StubToken returns the token the stub API accepts.
func (c *Config) StubToken() string {
	if c.Stub.Token != "" {
		return c.Stub.Token
	}
	return c.API.Token
}

// CSVPath returns the path of the exported CSV.
func (c *Config) CSVPath() string {
	return filepath.Join(c.Files.OutputDir, c.Files.OriginalName)
}

// XLSXPath returns the path of the reshaped spreadsheet.
func (c *Config) XLSXPath() string {
	return filepath.Join(c.Files.OutputDir, c.Files.ProcessedName)
}

// Missing returns the names of the Tableau settings that are not set.
func (t *TableauConfig) Missing() []string {
	var missing []string
	check := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	check("TABLEAU_SERVER", t.Server)
	check("TABLEAU_SITE_ID", t.SiteID)
	check("TABLEAU_TOKEN_NAME", t.TokenName)
	check("TABLEAU_TOKEN_VALUE", t.TokenValue)
	check("WORKBOOK_ID", t.WorkbookID)
	check("VIEW_ID", t.ViewID)
	return missing
}

// RequireExport returns an error naming every missing Tableau setting.
func (t *TableauConfig) RequireExport() error {
	if missing := t.Missing(); len(missing) > 0 {
		return fmt.Errorf("required tableau settings not set: %v", missing)
	}
	return nil
}
