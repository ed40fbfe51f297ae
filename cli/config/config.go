package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/dredge/types"
)

// Environment tiers. Prod always runs with debug output disabled,
// whatever the configured debug flag says.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// DefaultBaseURL is the provider API root used when none is configured.
const DefaultBaseURL = "https://hq1.appsflyer.com/api"

// DefaultReportsDir is where report files and run records land when no
// directory is configured.
const DefaultReportsDir = "reports"

// Environment variable names recognized by ApplyEnv. Env values
// override file values and are themselves overridden by CLI flags.
const (
	EnvVarEnvironment  = "API_ENVIRONMENT"
	EnvVarDebug        = "DEBUG"
	EnvVarBaseURL      = "APPSFLYER_API_URL"
	EnvVarToken        = "APPSFLYER_TOKEN"
	EnvVarAppIDIOS     = "APPLICATION_ID_IOS"
	EnvVarAppIDAndroid = "APPLICATION_ID_ANDROID"
)

// Config represents a dredge.yaml configuration file.
// All values are optional and act as defaults for dredge pull flags.
// CLI flags always override config values.
type Config struct {
	Environment string         `yaml:"environment"`
	Debug       *bool          `yaml:"debug,omitempty"`
	ReportsDir  string         `yaml:"reports_dir"`
	Provider    ProviderConfig `yaml:"provider"`
	Pull        PullConfig     `yaml:"pull"`
	Archive     ArchiveConfig  `yaml:"archive"`
	Adapter     AdapterConfig  `yaml:"adapter"`
}

// ProviderConfig holds attribution provider credentials and endpoints.
type ProviderConfig struct {
	BaseURL        string   `yaml:"base_url"`
	Token          string   `yaml:"token"`
	AppIDIOS       string   `yaml:"app_id_ios"`
	AppIDAndroid   string   `yaml:"app_id_android"`
	TotalTimeout   Duration `yaml:"total_timeout,omitempty"`
	ConnectTimeout Duration `yaml:"connect_timeout,omitempty"`
}

// PullConfig holds pull loop defaults from the config file. Zero values
// fall through to the pull package defaults.
type PullConfig struct {
	InitialWait   Duration `yaml:"initial_wait,omitempty"`
	DrainWait     Duration `yaml:"drain_wait,omitempty"`
	RetryInterval Duration `yaml:"retry_interval,omitempty"`
	MaxAttempts   int      `yaml:"max_attempts,omitempty"`
	ChunkSize     int      `yaml:"chunk_size,omitempty"`
	Kinds         []string `yaml:"kinds,omitempty"`
}

// ArchiveConfig holds remote mirror defaults from the config file.
// Archiving is enabled when a bucket is set.
type ArchiveConfig struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix,omitempty"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// Enabled reports whether a remote mirror is configured.
func (a *ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// AdapterConfig holds completion adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Normalize fills defaults and canonicalizes the environment tier.
// Call before Validate.
func (c *Config) Normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = EnvProd
	}
	if c.ReportsDir == "" {
		c.ReportsDir = DefaultReportsDir
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = DefaultBaseURL
	}
}

// Validate checks tier and pull settings. Provider credentials are not
// required here: only the pull command needs them, and it checks for
// them itself.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown environment %q (expected %s, %s, or %s)",
			c.Environment, EnvLocal, EnvDev, EnvProd)
	}
	if c.Pull.MaxAttempts < 0 {
		return fmt.Errorf("pull.max_attempts cannot be negative: %d", c.Pull.MaxAttempts)
	}
	if c.Pull.ChunkSize < 0 {
		return fmt.Errorf("pull.chunk_size cannot be negative: %d", c.Pull.ChunkSize)
	}
	for _, k := range c.Pull.Kinds {
		if !types.ReportKind(k).Valid() {
			return fmt.Errorf("unknown report kind %q in pull.kinds", k)
		}
	}
	return nil
}

// DebugEnabled resolves the effective debug flag. Prod is always
// non-debug; other tiers default to debug on unless the file or the
// DEBUG variable turned it off.
func (c *Config) DebugEnabled() bool {
	if c.Environment == EnvProd {
		return false
	}
	if c.Debug != nil {
		return *c.Debug
	}
	return true
}

// ReportKinds converts the configured kind names into typed kinds.
// An empty list selects every kind.
func (c *Config) ReportKinds() []types.ReportKind {
	if len(c.Pull.Kinds) == 0 {
		return types.AllReportKinds()
	}
	kinds := make([]types.ReportKind, 0, len(c.Pull.Kinds))
	for _, k := range c.Pull.Kinds {
		kinds = append(kinds, types.ReportKind(k))
	}
	return kinds
}

// ApplyEnv overlays recognized environment variables onto the config.
// Unset variables leave file values untouched.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvVarEnvironment); ok && v != "" {
		c.Environment = v
	}
	if v, ok := os.LookupEnv(EnvVarDebug); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvVarDebug, v, err)
		}
		c.Debug = &parsed
	}
	if v, ok := os.LookupEnv(EnvVarBaseURL); ok && v != "" {
		c.Provider.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvVarToken); ok && v != "" {
		c.Provider.Token = v
	}
	if v, ok := os.LookupEnv(EnvVarAppIDIOS); ok && v != "" {
		c.Provider.AppIDIOS = v
	}
	if v, ok := os.LookupEnv(EnvVarAppIDAndroid); ok && v != "" {
		c.Provider.AppIDAndroid = v
	}
	return nil
}
