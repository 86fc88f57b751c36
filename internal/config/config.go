package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// ConfigFileName is the name of the on-disk configuration file Load
	// looks for, when one is used instead of flags alone.
	ConfigFileName = "seafhttpd.json"

	// DefaultAddress is the default HTTP listen address.
	DefaultAddress = ":8089"

	// DefaultTempDir is the default staging directory for in-flight
	// uploads (see tempsink.DefaultDir).
	DefaultTempDir = "/tmp/seafhttp"

	// DefaultServiceURL is the default externally-visible base URL used to
	// build post-upload redirects.
	DefaultServiceURL = "http://127.0.0.1:8089"

	// DefaultMetricsNamespace is the Prometheus namespace metrics register
	// under.
	DefaultMetricsNamespace = "seafhttp"
)

// Config is the complete seafhttpd runtime configuration.
type Config struct {
	// Address is the address the HTTP server listens on.
	Address string `json:"address,omitempty"`

	// TempDir stages in-flight uploads before Backend ingestion.
	TempDir string `json:"tempDir,omitempty"`

	// ServiceURL is used to build the post-upload redirect URLs spec §4.6
	// describes.
	ServiceURL string `json:"serviceUrl,omitempty"`

	// ReadHeaderTimeout bounds how long the server waits for request
	// headers.
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdownTimeout,omitempty"`

	// S3 holds object-store settings. Empty Bucket means "use the
	// filesystem-backed MemBackend instead" (see cmd/seafhttpd).
	S3 S3Config `json:"s3,omitempty"`

	// MetricsNamespace is the Prometheus namespace metrics register under.
	MetricsNamespace string `json:"metricsNamespace,omitempty"`

	// configPath stores the path this config was loaded from, if any.
	configPath string
}

// S3Config configures an S3Backend.
type S3Config struct {
	Bucket   string `json:"bucket,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		Address:           DefaultAddress,
		TempDir:           DefaultTempDir,
		ServiceURL:        DefaultServiceURL,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		MetricsNamespace:  DefaultMetricsNamespace,
	}
}

// Load reads configuration from seafhttpd.json in dir, if present, layering
// it over New()'s defaults. A missing file is not an error — New()'s
// defaults are returned as-is.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// SaveTo writes the configuration to path as indented JSON.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	c.configPath = path
	return nil
}

// Path returns the file path this config was loaded from, or "" if it was
// built purely from defaults/flags.
func (c *Config) Path() string { return c.configPath }

// applyDefaults fills in zero-valued fields after an on-disk config has
// been unmarshaled over New()'s defaults. A field explicitly set to its
// zero value in the file is indistinguishable from an absent field here.
func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.TempDir == "" {
		c.TempDir = DefaultTempDir
	}
	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = DefaultMetricsNamespace
	}
}

// Validate checks the configuration for obviously invalid values.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("config: address must not be empty")
	}
	if c.TempDir == "" {
		return fmt.Errorf("config: tempDir must not be empty")
	}
	if c.S3.Bucket != "" && c.S3.Region == "" && c.S3.Endpoint == "" {
		return fmt.Errorf("config: s3.bucket set without a region or endpoint")
	}
	return nil
}

// UsesS3 reports whether an S3Backend should be constructed instead of the
// default filesystem-backed MemBackend.
func (c *Config) UsesS3() bool { return c.S3.Bucket != "" }
