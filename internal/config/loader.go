package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable that points at an optional YAML file.
const FileEnv = "FUELSYNC_CONFIG"

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile reads the YAML file at path (if path is non-empty) and then
// overlays environment variables. Environment variables win over file values;
// defaults only fill fields that are still zero.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := readYAML(path, cfg); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func readYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s does not exist", path)
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		if value == "" {
			// A value from the config file counts as set
			if !fieldVal.IsZero() {
				continue
			}
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Files validation
	if c.Files.OutputDir == "" {
		errs = append(errs, "OUTPUT_DIR must not be empty")
	}
	if !strings.EqualFold(filepath.Ext(c.Files.ProcessedName), ".xlsx") {
		errs = append(errs, fmt.Sprintf("NAME_FILE_PROCESSED (%q) must end in .xlsx", c.Files.ProcessedName))
	}

	// API validation
	if c.API.MaxFileSize <= 0 {
		errs = append(errs, "API_MAX_FILE_SIZE must be positive")
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "API_TIMEOUT must be positive")
	}
	if c.API.ProbeTimeout <= 0 {
		errs = append(errs, "API_PROBE_TIMEOUT must be positive")
	}
	if c.API.MaxAttempts <= 0 {
		errs = append(errs, "API_MAX_ATTEMPTS must be positive")
	}
	if c.API.InitialDelay < 0 {
		errs = append(errs, "API_RETRY_INITIAL_DELAY must be non-negative")
	}
	if c.API.MaxDelay < c.API.InitialDelay {
		errs = append(errs, fmt.Sprintf("API_RETRY_MAX_DELAY (%s) must be >= API_RETRY_INITIAL_DELAY (%s)",
			c.API.MaxDelay, c.API.InitialDelay))
	}
	if c.API.Multiplier < 1 {
		errs = append(errs, "API_RETRY_MULTIPLIER must be >= 1")
	}

	// Tableau validation
	if c.Tableau.Timeout <= 0 {
		errs = append(errs, "TABLEAU_TIMEOUT must be positive")
	}

	// History validation
	if c.History.MaxConns <= 0 {
		errs = append(errs, "HISTORY_MAX_CONNS must be positive")
	}

	// Stub validation
	if c.Stub.MaxConcurrent <= 0 {
		errs = append(errs, "STUB_MAX_CONCURRENT must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Tokens and database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Tableau: {Server: %q, SiteID: %q, TokenName: %q, TokenValue: %s}, ",
		c.Tableau.Server, c.Tableau.SiteID, c.Tableau.TokenName, mask(c.Tableau.TokenValue)))
	b.WriteString(fmt.Sprintf("Files: {OutputDir: %q, Original: %q, Processed: %q}, ",
		c.Files.OutputDir, c.Files.OriginalName, c.Files.ProcessedName))
	b.WriteString(fmt.Sprintf("API: {Enabled: %v, URL: %q, Token: %s, MaxAttempts: %d}, ",
		c.API.Enabled, c.API.URL, mask(c.API.Token), c.API.MaxAttempts))
	b.WriteString(fmt.Sprintf("History: {DatabaseURL: %s}, ", mask(c.History.DatabaseURL)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return "[MASKED]"
}
