// Package config loads the newhosts configuration file. Values from the
// file are applied over the defaults and validated before any scanning
// starts; command line flags are layered on top by the CLI.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/logging"
)

const defaultCheckTimeout = 10 * time.Second

// Probe kinds accepted in probes.tools.
const (
	ToolPing     = "ping"
	ToolARPing   = "arping"
	ToolHostname = "hostname"
	ToolNmap     = "nmap"
)

// Config represents the complete newhosts configuration.
type Config struct {
	// Detection store
	Database db.Config `yaml:"database" json:"database"`

	// Probe tools and their worker pools
	Probes ProbesConfig `yaml:"probes" json:"probes"`

	// Watch mode defaults
	Watch WatchConfig `yaml:"watch" json:"watch"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`

	// Prometheus endpoint served during watch mode
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ProbesConfig holds settings shared by every probe plus per-tool sections.
type ProbesConfig struct {
	// Enabled tools, in report column order
	Tools []string `yaml:"tools" json:"tools" validate:"min=1,dive,oneof=ping arping hostname nmap"`

	// Network interface to bind probes to; empty lets the tool choose
	Interface string `yaml:"interface" json:"interface"`

	// Repeat count passed to tools that support one
	Checks int `yaml:"checks" json:"checks" validate:"min=1"`

	// Per-request timeout passed to the tool; zero means the tool default
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`

	// Added to timeout*checks to form the hard deadline of one probe
	Grace time.Duration `yaml:"grace" json:"grace" validate:"min=0"`

	Ping     ToolConfig     `yaml:"ping" json:"ping"`
	ARPing   ToolConfig     `yaml:"arping" json:"arping"`
	Hostname HostnameConfig `yaml:"hostname" json:"hostname"`
	Nmap     ToolConfig     `yaml:"nmap" json:"nmap"`
}

// ToolConfig configures one external probe tool.
type ToolConfig struct {
	// Executable name or path
	Command string `yaml:"command" json:"command" validate:"required"`

	// Worker pool size for this tool
	Workers int `yaml:"workers" json:"workers" validate:"min=1,max=1024"`
}

// HostnameConfig configures the name-resolution probe.
type HostnameConfig struct {
	// Worker pool size
	Workers int `yaml:"workers" json:"workers" validate:"min=1,max=1024"`

	// DNS server (host:port) queried for PTR records; empty uses the
	// system resolver only
	Resolver string `yaml:"resolver" json:"resolver" validate:"omitempty,hostname_port"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// Pause between cycles
	Interval time.Duration `yaml:"interval" json:"interval" validate:"min=0"`

	// Standard cron expression used instead of interval when set
	Schedule string `yaml:"schedule" json:"schedule"`

	// Merge results across cycles
	Collect bool `yaml:"collect" json:"collect"`

	// Hide unchanged addresses in compare mode
	ChangedOnly bool `yaml:"changed_only" json:"changed_only"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" validate:"omitempty,hostname_port"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Database: db.DefaultConfig(),
		Probes: ProbesConfig{
			Tools:  []string{ToolPing, ToolARPing, ToolHostname},
			Checks: 1,
			Grace:  2 * time.Second,
			Ping: ToolConfig{
				Command: "ping",
				Workers: 20,
			},
			ARPing: ToolConfig{
				Command: "arping",
				Workers: 10,
			},
			Hostname: HostnameConfig{
				Workers: 10,
			},
			Nmap: ToolConfig{
				Command: "nmap",
				Workers: 4,
			},
		},
		Watch: WatchConfig{
			Interval: time.Minute,
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9108",
		},
	}
}

// Load loads configuration from a file. A path that does not exist is an
// error; use Default when no file was given.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json", "":
		// JSON is a subset of YAML.
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to parse config file", err)
		}
	default:
		return nil, errors.NewConfigFieldError(errors.CodeConfiguration, "unsupported config file extension", "path", ext)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			cfgErr := errors.ErrConfigInvalid(first.Namespace(), first.Value())
			cfgErr.Message = fmt.Sprintf("Invalid configuration value (rule %q)", first.Tag())
			cfgErr.Cause = err
			return cfgErr
		}
		return errors.WrapConfigError(errors.CodeValidation, "configuration validation failed", err)
	}

	seen := make(map[string]bool, len(c.Probes.Tools))
	for _, tool := range c.Probes.Tools {
		if seen[tool] {
			return errors.ErrConfigInvalid("probes.tools", tool)
		}
		seen[tool] = true
	}

	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			cfgErr := errors.ErrConfigInvalid("watch.schedule", c.Watch.Schedule)
			cfgErr.Cause = err
			return cfgErr
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return errors.ErrConfigMissing("metrics.listen_addr")
	}

	switch c.Logging.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return errors.ErrConfigInvalid("logging.level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return errors.ErrConfigInvalid("logging.format", c.Logging.Format)
	}

	return nil
}

// ToolEnabled reports whether the named probe tool is enabled.
func (p ProbesConfig) ToolEnabled(tool string) bool {
	for _, t := range p.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// Deadline returns the hard limit of a single probe: the tool's own
// timeout for every check plus the grace period. Without a timeout each
// check is allowed the ten seconds ping waits for a missing reply.
func (p ProbesConfig) Deadline() time.Duration {
	checks := time.Duration(max(p.Checks, 1))
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return timeout*checks + p.Grace
}
