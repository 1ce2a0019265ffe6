package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/bestdns/bestdns/internal/dns"
)

const (
	// DefaultPath is read when neither the flag nor BESTDNS_CONFIG is set.
	DefaultPath = "configs/bestdns.yaml"
	// DefaultLimit is the record cap for targets that do not set one.
	DefaultLimit = 5
	// DefaultPurgeMaxRounds bounds the list-and-delete loop per hostname.
	DefaultPurgeMaxRounds = 10
)

// Target maps a subdomain label to the list that feeds it.
type Target struct {
	Name  string `yaml:"name"`  // subdomain label, "@" for the zone apex
	URL   string `yaml:"url"`   // newline-delimited IPv4 list
	Limit int    `yaml:"limit"` // maximum records published
}

// UnmarshalYAML fills in DefaultLimit only when limit is absent, so an
// explicit zero still fails validation.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name  string `yaml:"name"`
		URL   string `yaml:"url"`
		Limit *int   `yaml:"limit"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	*t = Target{Name: raw.Name, URL: raw.URL, Limit: DefaultLimit}
	if raw.Limit != nil {
		t.Limit = *raw.Limit
	}
	return nil
}

// Metrics configures the optional Pushgateway export.
type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Config is the full bestdns configuration.
type Config struct {
	ProviderConfig `yaml:",inline"`

	// Targets are processed in order.
	Targets        []Target      `yaml:"targets"`
	PurgeMaxRounds int           `yaml:"purge_max_rounds"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	Metrics        Metrics       `yaml:"metrics"`
}

// DefaultTargets are used when the configuration names none.
func DefaultTargets() []Target {
	return []Target{
		{
			Name:  "bestcf",
			URL:   "https://raw.githubusercontent.com/ymyuuu/IPDB/refs/heads/main/BestCF/bestcfv4.txt",
			Limit: 5,
		},
		{
			Name:  "api",
			URL:   "https://raw.githubusercontent.com/464681925/youxuanyuming/refs/heads/main/ip.txt",
			Limit: 40,
		},
	}
}

// Load reads the configuration from the path in the BESTDNS_CONFIG
// environment variable, defaulting to DefaultPath.
func Load() (*Config, error) {
	path := os.Getenv("BESTDNS_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from path. A missing file yields the
// built-in defaults; any other read or parse error is returned.
func LoadFromPath(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.expandEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.ProviderConfig.applyDefaults()
	if len(c.Targets) == 0 {
		c.Targets = DefaultTargets()
	}
	if c.PurgeMaxRounds == 0 {
		c.PurgeMaxRounds = DefaultPurgeMaxRounds
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "bestdns"
	}
}

// Validate checks targets and limits. The token check runs last so that a
// malformed file is reported before a missing environment variable.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if err := dns.ValidateLabel(t.Name); err != nil {
			return fmt.Errorf("config: target %d: %w", i, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("config: duplicate target %q", t.Name)
		}
		seen[t.Name] = true

		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: target %q: invalid url %q", t.Name, t.URL)
		}
		if t.Limit < 1 {
			return fmt.Errorf("config: target %q: limit must be positive, got %d", t.Name, t.Limit)
		}
	}
	if c.PurgeMaxRounds < 1 {
		return fmt.Errorf("config: purge_max_rounds must be positive, got %d", c.PurgeMaxRounds)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("config: fetch_timeout must not be negative")
	}
	if c.Metrics.PushgatewayURL != "" {
		if _, err := url.ParseRequestURI(c.Metrics.PushgatewayURL); err != nil {
			return fmt.Errorf("config: invalid metrics.pushgateway_url: %w", err)
		}
	}
	return c.ProviderConfig.validate()
}
