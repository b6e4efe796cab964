package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the stitching scheduler configuration
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	PCE       PCEConfig       `yaml:"pce"`
	Provider  ProviderConfig  `yaml:"provider"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Reporting ReportingConfig `yaml:"reporting"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// FrameworkConfig contains general framework settings
type FrameworkConfig struct {
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// PCEConfig contains plan expansion service connection settings
type PCEConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProviderConfig contains provider RPC settings
type ProviderConfig struct {
	// Timeout is the per-RPC timeout for every provider call,
	// DCN-family aggregates included; DCNTimeout does not lengthen it
	// and only sets the provider HTTP client's overall timeout.
	Timeout    time.Duration `yaml:"timeout"`
	DCNTimeout time.Duration `yaml:"dcn_timeout"`
}

// SchedulerConfig contains reservation run limits and dispatch settings
type SchedulerConfig struct {
	MaxPCECalls       int           `yaml:"max_pce_calls"`
	MaxAllocateTotal  int           `yaml:"max_allocate_total"`
	MaxAggregateTries int           `yaml:"max_aggregate_tries"`
	Deadline          time.Duration `yaml:"deadline"`
}

// ReportingConfig contains reporting and output settings
type ReportingConfig struct {
	OutputDir string   `yaml:"output_dir"`
	KeepLastN int      `yaml:"keep_last_n"`
	Formats   []string `yaml:"formats"`
}

// ArtifactsConfig controls persistence of provider request documents
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// MetricsConfig contains the Prometheus exposition endpoint settings
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			Version:   "v1",
			LogLevel:  "info",
			LogFormat: "text",
		},
		PCE: PCEConfig{
			URL:     "http://localhost:8081/scs",
			Timeout: 60 * time.Second,
		},
		Provider: ProviderConfig{
			Timeout:    120 * time.Second,
			DCNTimeout: 1800 * time.Second,
		},
		Scheduler: SchedulerConfig{
			MaxPCECalls:       5,
			MaxAllocateTotal:  100,
			MaxAggregateTries: 10,
			Deadline:          2 * time.Hour,
		},
		Reporting: ReportingConfig{
			OutputDir: "./reports",
			KeepLastN: 50,
			Formats:   []string{"json", "text"},
		},
		Artifacts: ArtifactsConfig{
			Dir: "./artifacts",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9108",
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// If no path provided, look for config.yaml in current directory
	if path == "" {
		path = "config.yaml"
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Return default config if file doesn't exist
		return cfg, nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Check if PCE_URL environment variable is set
	pceURLEnvSet := os.Getenv("PCE_URL") != ""
	pceURLEnv := os.Getenv("PCE_URL")

	// Expand environment variables in the YAML content
	expandedData := []byte(os.ExpandEnv(string(data)))

	// Parse YAML
	if err := yaml.Unmarshal(expandedData, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply PCE_URL env var if set (takes priority over config file)
	if pceURLEnvSet {
		cfg.PCE.URL = pceURLEnv
	}

	return cfg, nil
}

// Save writes configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PCE.URL == "" {
		return fmt.Errorf("pce.url is required")
	}

	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}

	if c.Scheduler.MaxPCECalls < 1 {
		return fmt.Errorf("scheduler.max_pce_calls must be at least 1")
	}

	if c.Scheduler.MaxAllocateTotal < 1 {
		return fmt.Errorf("scheduler.max_allocate_total must be at least 1")
	}

	return nil
}
