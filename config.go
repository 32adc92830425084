package agentloop

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by LoadConfig when the file leaves a field unset.
const (
	DefaultMaxIterations  = 5
	DefaultHistoryBound   = 40
	DefaultCallTimeout    = 60 * time.Second
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultMaxOutputBytes = 16 * 1024
)

// EndpointConfig declares one tool-serving endpoint.
type EndpointConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// ModelConfig declares how to reach the reasoning engine.
type ModelConfig struct {
	// Name is the model identifier (e.g. "llama3.1").
	Name string `yaml:"name"`

	// BaseURL is the engine's API address.
	BaseURL string `yaml:"base_url"`
}

// Config is the immutable configuration value constructed once at process
// start and passed into every component constructor. There is no ambient
// singleton; mutate a copy if a variant is needed.
type Config struct {
	// Endpoints are the tool-serving endpoints to discover.
	Endpoints []EndpointConfig `yaml:"endpoints"`

	// Model is the reasoning engine to use.
	Model ModelConfig `yaml:"model"`

	// SystemPrompt seeds every conversation. Optional; the driver supplies
	// a default when empty.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxIterations caps the number of reasoning/executing round trips per
	// run before the loop aborts with a partial answer.
	MaxIterations int `yaml:"max_iterations"`

	// HistoryBound is the maximum number of non-system messages kept in
	// the conversation.
	HistoryBound int `yaml:"history_bound"`

	// CallTimeout bounds each gateway request and each tool invocation.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// RetryAttempts is how many times a transient gateway failure is
	// retried before surfacing a connection error.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// MaxOutputBytes bounds tool output folded into the conversation.
	MaxOutputBytes int `yaml:"max_output_bytes"`
}

// LoadConfig reads the YAML file at path, applies AGENTLOOP_* environment
// overrides and defaults, and validates the result. The returned Config is
// ready to pass into component constructors.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(KindConfiguration, "config", "reading %s", path).
			WithHint("pass the path to a readable agentloop YAML config file").
			WithCause(err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewError(KindConfiguration, "config", "parsing %s", path).
			WithHint("the config file must be valid YAML; see the README for the schema").
			WithCause(err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays AGENTLOOP_* environment variables over file values.
// Environment wins, matching the usual container deployment expectation.
func (c *Config) applyEnv() {
	if v := os.Getenv("AGENTLOOP_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("AGENTLOOP_MODEL_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("AGENTLOOP_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
		}
	}
	if v := os.Getenv("AGENTLOOP_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CallTimeout = d
		}
	}
}

func (c *Config) applyDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.HistoryBound == 0 {
		c.HistoryBound = DefaultHistoryBound
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = DefaultMaxOutputBytes
	}
}

// Validate fails fast with a configuration error when the config cannot
// drive a loop run. Every failure carries a remediation hint.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return NewError(KindConfiguration, "config", "no endpoints configured").
			WithHint("declare at least one endpoint under 'endpoints:' with a name and address")
	}
	seen := map[string]bool{}
	for i, ep := range c.Endpoints {
		if ep.Name == "" {
			return NewError(KindConfiguration, "config", "endpoint %d has no name", i).
				WithHint("give every endpoint a unique name")
		}
		if seen[ep.Name] {
			return NewError(KindConfiguration, "config", "duplicate endpoint name %q", ep.Name).
				WithHint("endpoint names must be unique")
		}
		seen[ep.Name] = true
		if ep.Address == "" {
			return NewError(KindConfiguration, "config", "endpoint %q has no address", ep.Name).
				WithHint("set the endpoint address to a transport spec such as stdio://cmd or sse://host:port/sse")
		}
	}
	if c.Model.Name == "" {
		return NewError(KindConfiguration, "config", "no model configured").
			WithHint("set model.name (or the AGENTLOOP_MODEL environment variable)")
	}
	if c.MaxIterations < 1 {
		return NewError(KindConfiguration, "config", "max_iterations is %d", c.MaxIterations).
			WithHint("max_iterations must be at least 1")
	}
	if c.HistoryBound < 1 {
		return NewError(KindConfiguration, "config", "history_bound is %d", c.HistoryBound).
			WithHint("history_bound must be at least 1")
	}
	if c.CallTimeout <= 0 {
		return NewError(KindConfiguration, "config", "call_timeout is %s", c.CallTimeout).
			WithHint("call_timeout must be a positive duration such as 30s")
	}
	if c.RetryAttempts < 0 {
		return NewError(KindConfiguration, "config", "retry_attempts is %d", c.RetryAttempts).
			WithHint("retry_attempts must be zero or positive")
	}
	return nil
}

// String renders a one-line summary for startup logs. Secrets never appear
// in Config, so the full value is safe to print.
func (c *Config) String() string {
	return fmt.Sprintf("model=%s endpoints=%d max_iterations=%d history_bound=%d call_timeout=%s",
		c.Model.Name, len(c.Endpoints), c.MaxIterations, c.HistoryBound, c.CallTimeout)
}
