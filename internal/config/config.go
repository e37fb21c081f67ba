package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/On-Jun9/ShutterFix/internal/repair"
)

// EnvRoot names the environment variable that provides the default root.
const EnvRoot = "PHOTO_DIR"

type Config struct {
	Root             string   `yaml:"root" json:"root" toml:"root"`
	Database         string   `yaml:"database" json:"database" toml:"database"`
	DirIndex         string   `yaml:"dir_index" json:"dir_index" toml:"dir_index"`
	FilenamePattern  string   `yaml:"filename_pattern" json:"filename_pattern" toml:"filename_pattern"`
	Extensions       []string `yaml:"extensions" json:"extensions" toml:"extensions"`
	Ignore           []string `yaml:"ignore" json:"ignore" toml:"ignore"`
	LogFile          string   `yaml:"log_file" json:"log_file" toml:"log_file"`
	LogJSON          bool     `yaml:"log_json" json:"log_json" toml:"log_json"`
	Verbose          bool     `yaml:"verbose" json:"verbose" toml:"verbose"`
	SavePartialPrune bool     `yaml:"save_partial_prune" json:"save_partial_prune" toml:"save_partial_prune"`
	VerifyWrites     bool     `yaml:"verify_writes" json:"verify_writes" toml:"verify_writes"`
	PreserveMtime    bool     `yaml:"preserve_mtime" json:"preserve_mtime" toml:"preserve_mtime"`
}

// DataDir is the per-user directory for logs, profiles and run history.
func DataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".shutterfix")
}

func DefaultConfig() *Config {
	return &Config{
		Root:            os.Getenv(EnvRoot),
		Database:        "db.json",
		DirIndex:        "dirs.json",
		FilenamePattern: repair.DefaultFilenamePattern,
		Extensions:      []string{"jpg", "jpeg"},
		LogFile:         filepath.Join(DataDir(), "shutterfix.log"),
		PreserveMtime:   true,
	}
}

// LoadFromFile reads a YAML file, or TOML when path ends in .toml, over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes the configuration in the format chosen by the file
// extension.
func (c *Config) SaveToFile(path string) error {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		enc.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func (c *Config) Validate() error {
	if c.Root == "" {
		return &ValidationError{Field: "root", Message: "root path is required (use --dir or set " + EnvRoot + ")"}
	}

	if c.FilenamePattern == "" {
		c.FilenamePattern = repair.DefaultFilenamePattern
	}
	if _, err := repair.CompilePattern(c.FilenamePattern); err != nil {
		return &ValidationError{Field: "filename_pattern", Message: err.Error()}
	}

	if len(c.Extensions) == 0 {
		c.Extensions = []string{"jpg", "jpeg"}
	}
	if c.Database == "" {
		c.Database = "db.json"
	}
	if c.DirIndex == "" {
		c.DirIndex = "dirs.json"
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(DataDir(), "shutterfix.log")
	}

	return nil
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
