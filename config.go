package authstatus

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config controls the controller's fetch behaviour, metrics and audit output.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	// BaseURL is prepended to Endpoint. Empty keeps Endpoint as is.
	BaseURL string `yaml:"base_url" env:"AUTHSTATUS_BASE_URL"`
	// Endpoint is the protected resource path or absolute URL.
	Endpoint string `yaml:"endpoint" env:"AUTHSTATUS_ENDPOINT" envDefault:"/api/protected-data"`
	// LoginPath is where unauthenticated users are sent.
	LoginPath string `yaml:"login_path" env:"AUTHSTATUS_LOGIN_PATH" envDefault:"/login"`
	// RequestTimeout bounds credential retrieval plus the request. 0 leaves it to the transport.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"AUTHSTATUS_REQUEST_TIMEOUT"`
	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes int64 `yaml:"max_response_bytes" env:"AUTHSTATUS_MAX_RESPONSE_BYTES" envDefault:"1048576"`
	// CancelSuperseded cancels an in-flight fetch when the session changes again.
	CancelSuperseded bool `yaml:"cancel_superseded" env:"AUTHSTATUS_CANCEL_SUPERSEDED" envDefault:"true"`
	// ClearPayloadOnError drops the previous payload when a fetch fails.
	// Off by default: a failed fetch leaves the last good payload in place.
	ClearPayloadOnError bool `yaml:"clear_payload_on_error" env:"AUTHSTATUS_CLEAR_PAYLOAD_ON_ERROR"`

	Metrics MetricsConfig `yaml:"metrics" envPrefix:"AUTHSTATUS_METRICS_"`
	Audit   AuditConfig   `yaml:"audit" envPrefix:"AUTHSTATUS_AUDIT_"`
}

// MetricsConfig defines a public type used by authstatus APIs.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"ENABLED" envDefault:"true"`
	EnableLatencyHistograms bool `yaml:"latency_histograms" env:"LATENCY_HISTOGRAMS" envDefault:"true"`
}

// AuditConfig defines a public type used by authstatus APIs.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"BUFFER_SIZE" envDefault:"256"`
	DropIfFull bool `yaml:"drop_if_full" env:"DROP_IF_FULL" envDefault:"true"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Endpoint:         "/api/protected-data",
		LoginPath:        "/login",
		MaxResponseBytes: 1 << 20,
		CancelSuperseded: true,
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

/*
====================================
LOADING
====================================
*/

// LoadConfigFromEnv reads AUTHSTATUS_* variables. Unset variables keep their defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML file over [DefaultConfig]. Keys missing from the
// file keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting, wrapped in [ErrInvalidConfig].
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.LoginPath) == "" {
		return errors.New("LoginPath must not be empty")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("Endpoint must not be empty")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("BaseURL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("BaseURL scheme must be http or https")
		}
		if !strings.HasPrefix(c.Endpoint, "/") {
			return errors.New("Endpoint must start with / when BaseURL is set")
		}
	}
	if c.RequestTimeout < 0 {
		return errors.New("RequestTimeout must be >= 0")
	}
	if c.MaxResponseBytes <= 0 {
		return errors.New("MaxResponseBytes must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}

// endpointURL joins BaseURL and Endpoint.
func (c *Config) endpointURL() string {
	if c.BaseURL == "" {
		return c.Endpoint
	}
	return strings.TrimRight(c.BaseURL, "/") + c.Endpoint
}

/*
====================================
LINT
====================================
*/

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the list of warnings produced by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but likely unintended.
func (c *Config) Lint() LintResult {
	var out LintResult
	if c.RequestTimeout == 0 {
		out = append(out, LintWarning{
			Code:    "request_timeout_unset",
			Message: "no request timeout; a hung endpoint keeps the fetch loop waiting until the session changes",
		})
	}
	if !c.CancelSuperseded {
		out = append(out, LintWarning{
			Code:    "superseded_not_cancelled",
			Message: "superseded fetches run to completion; their results are still discarded",
		})
	}
	if !c.ClearPayloadOnError {
		out = append(out, LintWarning{
			Code:    "stale_payload_on_error",
			Message: "a failed fetch keeps the previous payload visible next to the error",
		})
	}
	if c.BaseURL != "" && strings.HasPrefix(c.BaseURL, "http://") {
		out = append(out, LintWarning{
			Code:    "plaintext_base_url",
			Message: "bearer credentials will be sent over plain http",
		})
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		out = append(out, LintWarning{
			Code:    "audit_blocking",
			Message: "a slow audit sink blocks session handling",
		})
	}
	return out
}
