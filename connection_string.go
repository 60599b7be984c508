package storage

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	internalstorage "github.com/minidb/storage/internal/storage"
)

// ConnectionConfig holds parsed connection string parameters for opening a
// database file through this package's facade.
type ConnectionConfig struct {
	FilePath    string // Database file path
	ReadOnly    bool   // Open handles read-only (default: false)
	Collation   uint8  // Collation pragma written once at creation (default: 0)
	AutoRebuild bool   // Invoke recovery automatically if the invalid-state flag is set (default: false)
	LogLevel    string // Log level: debug, info, warn, error (default: warn)
}

// DefaultConnectionConfig returns default configuration.
func DefaultConnectionConfig(filePath string) *ConnectionConfig {
	return &ConnectionConfig{
		FilePath: filePath,
		LogLevel: "warn",
	}
}

// ParseConnectionString parses a connection string with optional query
// parameters.
//
// Format: /path/to/database.db?param1=value1&param2=value2
//
// Supported parameters:
//   - readonly=true|false     : Open read-only (default: false)
//   - collation=N             : Collation pragma byte, 0-255 (default: 0)
//   - auto_rebuild=true|false : Invoke recovery on an invalid-state flag (default: false)
//   - log_level=debug|info|warn|error : Set logging level (default: warn)
//
// Examples:
//   - "./my.db"                  : Default settings
//   - "./my.db?readonly=true"    : Open read-only
//   - "./my.db?log_level=debug"  : Enable debug logging
func ParseConnectionString(connStr string) (*ConnectionConfig, error) {
	// Split on first '?' to separate path from query params
	parts := strings.SplitN(connStr, "?", 2)

	config := DefaultConnectionConfig(parts[0])

	// No query parameters
	if len(parts) == 1 {
		return config, nil
	}

	// Parse query parameters
	queryParams, err := url.ParseQuery(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid connection string query parameters: %w", err)
	}

	if roStr := queryParams.Get("readonly"); roStr != "" {
		ro, err := strconv.ParseBool(roStr)
		if err != nil {
			return nil, fmt.Errorf("invalid readonly parameter: must be 'true' or 'false', got %q", roStr)
		}
		config.ReadOnly = ro
	}

	if collationStr := queryParams.Get("collation"); collationStr != "" {
		collation, err := strconv.ParseUint(collationStr, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid collation parameter: must be 0-255, got %q", collationStr)
		}
		config.Collation = uint8(collation)
	}

	if rebuildStr := queryParams.Get("auto_rebuild"); rebuildStr != "" {
		rebuild, err := strconv.ParseBool(rebuildStr)
		if err != nil {
			return nil, fmt.Errorf("invalid auto_rebuild parameter: must be 'true' or 'false', got %q", rebuildStr)
		}
		config.AutoRebuild = rebuild
	}

	// Parse log_level parameter
	if logLevel := queryParams.Get("log_level"); logLevel != "" {
		logLevel = strings.ToLower(logLevel)
		switch logLevel {
		case "debug", "info", "warn", "error":
			config.LogLevel = logLevel
		default:
			return nil, fmt.Errorf("invalid log_level parameter: must be 'debug', 'info', 'warn', or 'error', got %q", logLevel)
		}
	}

	return config, nil
}

// GetZapLevel converts log level string to zap.Level
func (c *ConnectionConfig) GetZapLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	}
}

// toStorageSettings converts a parsed connection config into the storage
// package's Settings shape.
func (c *ConnectionConfig) toStorageSettings() internalstorage.Settings {
	return internalstorage.Settings{
		Filename:    c.FilePath,
		ReadOnly:    c.ReadOnly,
		Collation:   c.Collation,
		AutoRebuild: c.AutoRebuild,
	}
}

// settingsFile mirrors ConnectionConfig's fields for YAML unmarshalling via
// LoadSettingsFile, keeping the on-disk format independent of whatever
// fields get added to ConnectionConfig for in-process use.
type settingsFile struct {
	FilePath    string `yaml:"file_path"`
	ReadOnly    bool   `yaml:"readonly"`
	Collation   uint8  `yaml:"collation"`
	AutoRebuild bool   `yaml:"auto_rebuild"`
	LogLevel    string `yaml:"log_level"`
}

// LoadSettingsFile reads a YAML settings file into a ConnectionConfig,
// applying the same defaults as DefaultConnectionConfig for any field left
// unset in the file.
func LoadSettingsFile(path string) (*ConnectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	var raw settingsFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}

	config := DefaultConnectionConfig(raw.FilePath)
	config.ReadOnly = raw.ReadOnly
	config.Collation = raw.Collation
	config.AutoRebuild = raw.AutoRebuild
	if raw.LogLevel != "" {
		config.LogLevel = strings.ToLower(raw.LogLevel)
	}
	return config, nil
}
