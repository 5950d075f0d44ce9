// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/controlcoreio/policysync/lib/component"
	"github.com/controlcoreio/policysync/lib/quorum"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Salt modes for payload encryption key derivation.
const (
	// SaltLegacy is the fixed application salt every existing
	// deployment uses. Wire compatible, but shared across deployments.
	SaltLegacy = "legacy"

	// SaltDeployment is a random salt generated once per deployment
	// and distributed alongside the shared secret.
	SaltDeployment = "deployment"
)

// DefaultSecretEnv is the environment variable holding the shared
// secret when no sealed file is configured.
const DefaultSecretEnv = "POLICYSYNC_SHARED_SECRET"

// Config is the master configuration for a policysync node.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Node identifies this component.
	Node NodeConfig `yaml:"node"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Listen configures the HTTP listeners.
	Listen ListenConfig `yaml:"listen"`

	// Sync configures the protocol engine.
	Sync SyncConfig `yaml:"sync"`

	// Secret configures where the shared secret and salt come from.
	Secret SecretConfig `yaml:"secret"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths  *PathsConfig  `yaml:"paths,omitempty"`
	Listen *ListenConfig `yaml:"listen,omitempty"`
	Sync   *SyncConfig   `yaml:"sync,omitempty"`
	Secret *SecretConfig `yaml:"secret,omitempty"`
}

// NodeConfig identifies this component in the deployment.
type NodeConfig struct {
	// ComponentID is this node's unique ID, used as the token issuer.
	ComponentID string `yaml:"component_id"`

	// ComponentType is this node's role: enforcement-proxy,
	// admin-api, tenant-admin, or sync-coordinator.
	ComponentType component.Type `yaml:"component_type"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for policysync data.
	Root string `yaml:"root"`

	// State holds the RSA identity, the age identity, the salt file,
	// and the SQLite database.
	State string `yaml:"state"`

	// Inventory is the JSONC component inventory. Optional: a node
	// with no inventory trusts nobody until components register.
	Inventory string `yaml:"inventory"`
}

// ListenConfig configures the HTTP listeners.
type ListenConfig struct {
	// Sync is the address serving POST /sync and POST /challenge.
	// Default: :9443
	Sync string `yaml:"sync"`

	// Admin is the address serving the coordinator's distribution
	// API. It must be a loopback address. Empty disables it.
	// Default: 127.0.0.1:9444
	Admin string `yaml:"admin"`

	// TLSCertFile and TLSKeyFile enable TLS on the sync listener.
	// Both or neither must be set.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
}

// SyncConfig configures the protocol engine.
type SyncConfig struct {
	// VerificationInterval is how long a successful authentication
	// stays fresh. Default: 5m
	VerificationInterval time.Duration `yaml:"verification_interval"`

	// SweepInterval is how often the coordinator looks for stale
	// components. Zero means half the verification interval.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// ChallengeStale makes the sweeper re-authenticate stale
	// components by challenge instead of only logging them.
	ChallengeStale bool `yaml:"challenge_stale"`

	// DispatchTimeout bounds each per-target delivery. Default: 30s
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`

	// TokenTTL is the lifetime of bearer tokens. Default: 15m
	TokenTTL time.Duration `yaml:"token_ttl"`

	// Completion decides an event's terminal status from its
	// per-target outcomes: all-of, any-of, any-of(N), or sequential.
	// Default: all-of
	Completion string `yaml:"completion"`

	// Endpoints maps component type to base URL.
	Endpoints map[string]string `yaml:"endpoints"`
}

// SecretConfig configures where the shared secret and salt come from.
type SecretConfig struct {
	// SealedFile is an age-sealed secret bundle holding both the
	// shared secret and the deployment salt. When set, Env and
	// SaltFile are ignored.
	SealedFile string `yaml:"sealed_file"`

	// Env is the environment variable holding the shared secret.
	// Default: POLICYSYNC_SHARED_SECRET
	Env string `yaml:"env"`

	// Salt is "legacy" or "deployment".
	// Default: legacy (development), deployment (production)
	Salt string `yaml:"salt"`

	// SaltFile is the hex salt file used with Env and the deployment
	// salt. Default: ${paths.state}/salt
	SaltFile string `yaml:"salt_file"`

	// AllowLegacySalt permits the legacy salt in production.
	AllowLegacySalt bool `yaml:"allow_legacy_salt"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "state", "policysync")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: "${POLICYSYNC_ROOT}/state",
		},
		Listen: ListenConfig{
			Sync:  ":9443",
			Admin: "127.0.0.1:9444",
		},
		Sync: SyncConfig{
			VerificationInterval: 5 * time.Minute,
			DispatchTimeout:      30 * time.Second,
			TokenTTL:             15 * time.Minute,
			Completion:           "all-of",
		},
		Secret: SecretConfig{
			Env:  DefaultSecretEnv,
			Salt: SaltLegacy,
		},
	}
}

// Load loads configuration from the POLICYSYNC_CONFIG environment
// variable. There are no fallbacks: if it is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("POLICYSYNC_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("POLICYSYNC_CONFIG environment variable not set; " +
			"set it to the path of your policysync.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Production defaults apply before the file so the file can still
	// set the salt explicitly.
	var probe struct {
		Environment Environment `yaml:"environment"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if probe.Environment == Production {
		c.Secret.Salt = SaltDeployment
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.Inventory != "" {
			c.Paths.Inventory = overrides.Paths.Inventory
		}
	}

	if overrides.Listen != nil {
		if overrides.Listen.Sync != "" {
			c.Listen.Sync = overrides.Listen.Sync
		}
		if overrides.Listen.Admin != "" {
			c.Listen.Admin = overrides.Listen.Admin
		}
		if overrides.Listen.TLSCertFile != "" {
			c.Listen.TLSCertFile = overrides.Listen.TLSCertFile
		}
		if overrides.Listen.TLSKeyFile != "" {
			c.Listen.TLSKeyFile = overrides.Listen.TLSKeyFile
		}
	}

	if overrides.Sync != nil {
		if overrides.Sync.VerificationInterval != 0 {
			c.Sync.VerificationInterval = overrides.Sync.VerificationInterval
		}
		if overrides.Sync.SweepInterval != 0 {
			c.Sync.SweepInterval = overrides.Sync.SweepInterval
		}
		if overrides.Sync.DispatchTimeout != 0 {
			c.Sync.DispatchTimeout = overrides.Sync.DispatchTimeout
		}
		if overrides.Sync.TokenTTL != 0 {
			c.Sync.TokenTTL = overrides.Sync.TokenTTL
		}
		if overrides.Sync.Completion != "" {
			c.Sync.Completion = overrides.Sync.Completion
		}
		if overrides.Sync.ChallengeStale {
			c.Sync.ChallengeStale = true
		}
		for componentType, endpoint := range overrides.Sync.Endpoints {
			if c.Sync.Endpoints == nil {
				c.Sync.Endpoints = make(map[string]string)
			}
			c.Sync.Endpoints[componentType] = endpoint
		}
	}

	if overrides.Secret != nil {
		if overrides.Secret.SealedFile != "" {
			c.Secret.SealedFile = overrides.Secret.SealedFile
		}
		if overrides.Secret.Env != "" {
			c.Secret.Env = overrides.Secret.Env
		}
		if overrides.Secret.Salt != "" {
			c.Secret.Salt = overrides.Secret.Salt
		}
		if overrides.Secret.SaltFile != "" {
			c.Secret.SaltFile = overrides.Secret.SaltFile
		}
		if overrides.Secret.AllowLegacySalt {
			c.Secret.AllowLegacySalt = true
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"POLICYSYNC_ROOT": c.Paths.Root,
		"HOME":            os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["POLICYSYNC_ROOT"] = c.Paths.Root

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Inventory = expandVars(c.Paths.Inventory, vars)
	c.Listen.TLSCertFile = expandVars(c.Listen.TLSCertFile, vars)
	c.Listen.TLSKeyFile = expandVars(c.Listen.TLSKeyFile, vars)
	c.Secret.SealedFile = expandVars(c.Secret.SealedFile, vars)
	c.Secret.SaltFile = expandVars(c.Secret.SaltFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Node.ComponentID == "" {
		errs = append(errs, errors.New("node.component_id is required"))
	}
	if !c.Node.ComponentType.Valid() {
		errs = append(errs, fmt.Errorf("node.component_type %q is not a known component type", c.Node.ComponentType))
	}

	if c.Paths.State == "" {
		errs = append(errs, errors.New("paths.state is required"))
	}

	if c.Listen.Sync == "" {
		errs = append(errs, errors.New("listen.sync is required"))
	}
	if c.Listen.Admin != "" && !isLoopback(c.Listen.Admin) {
		errs = append(errs, fmt.Errorf("listen.admin %q must be a loopback address", c.Listen.Admin))
	}
	if (c.Listen.TLSCertFile == "") != (c.Listen.TLSKeyFile == "") {
		errs = append(errs, errors.New("listen.tls_cert_file and listen.tls_key_file must be set together"))
	}

	if c.Sync.VerificationInterval <= 0 {
		errs = append(errs, errors.New("sync.verification_interval must be positive"))
	}
	if c.Sync.SweepInterval < 0 {
		errs = append(errs, errors.New("sync.sweep_interval must not be negative"))
	}
	if c.Sync.DispatchTimeout <= 0 {
		errs = append(errs, errors.New("sync.dispatch_timeout must be positive"))
	}
	if c.Sync.TokenTTL <= 0 {
		errs = append(errs, errors.New("sync.token_ttl must be positive"))
	}
	if _, err := quorum.ParseRule(c.Sync.Completion); err != nil {
		errs = append(errs, fmt.Errorf("sync.completion: %w", err))
	}
	if _, err := c.EndpointMap(); err != nil {
		errs = append(errs, err)
	}

	if c.Secret.SealedFile == "" && c.Secret.Env == "" {
		errs = append(errs, errors.New("secret.sealed_file or secret.env is required"))
	}
	switch c.Secret.Salt {
	case SaltDeployment:
	case SaltLegacy:
		if c.Environment == Production && !c.Secret.AllowLegacySalt {
			errs = append(errs, errors.New("secret.salt is legacy in production; set secret.allow_legacy_salt to accept it"))
		}
	default:
		errs = append(errs, fmt.Errorf("secret.salt must be %q or %q", SaltLegacy, SaltDeployment))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EndpointMap returns Sync.Endpoints keyed by component type. Every
// key must be a known component type and every value an absolute
// http or https URL.
func (c *Config) EndpointMap() (map[component.Type]string, error) {
	endpoints := make(map[component.Type]string, len(c.Sync.Endpoints))
	var errs []error
	for key, endpoint := range c.Sync.Endpoints {
		componentType, err := component.ParseType(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync.endpoints: %w", err))
			continue
		}
		parsed, err := url.Parse(endpoint)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("sync.endpoints.%s: %q is not an http(s) URL", key, endpoint))
			continue
		}
		endpoints[componentType] = endpoint
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return endpoints, nil
}

// DatabasePath is the SQLite database holding the audit trail and the
// applied-payload ledger.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.State, "policysync.db")
}

// SaltPath is the hex salt file used when the secret comes from the
// environment.
func (c *Config) SaltPath() string {
	if c.Secret.SaltFile != "" {
		return c.Secret.SaltFile
	}
	return filepath.Join(c.Paths.State, "salt")
}

// PolicyDir is where a receiving node writes applied updates.
func (c *Config) PolicyDir() string {
	return filepath.Join(c.Paths.State, "policies")
}

// EnsurePaths creates the root and state directories if they don't
// exist. The state directory holds private keys and is created 0700.
func (c *Config) EnsurePaths() error {
	if c.Paths.Root != "" {
		if err := os.MkdirAll(c.Paths.Root, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", c.Paths.Root, err)
		}
	}
	if err := os.MkdirAll(c.Paths.State, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.State, err)
	}
	return nil
}

func isLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
