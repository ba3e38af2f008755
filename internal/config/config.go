// Package config provides configuration loading for the covert CLI: default
// padding proportion, default identity file path, and a default recipient
// list, all overridable by CLI flags (spec §4.7 — file values are defaults,
// flags take precedence).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete covert CLI configuration.
type Config struct {
	Identity   IdentityConfig   `yaml:"identity"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Recipients []string         `yaml:"recipients"` // default recipient list: covert1... keys or passphrase: entries
}

// IdentityConfig locates the local keypair file.
type IdentityConfig struct {
	// Path is the identity file location. "auto" resolves to
	// $XDG_CONFIG_HOME/covert/identity.key (or ~/.config/covert/identity.key).
	Path string `yaml:"path"`
}

// EncryptionConfig carries the defaults Encrypt falls back to when the CLI
// does not override them with explicit flags.
type EncryptionConfig struct {
	// PaddingProportion is the default value for --pad (spec §4.4, §6).
	PaddingProportion float64 `yaml:"padding_proportion"`

	// Decoys is the default number of decoy auth slots (spec §4.2).
	Decoys int `yaml:"decoys"`
}

// Default returns a Config with the same defaults documented in spec §6.
func Default() *Config {
	return &Config{
		Identity: IdentityConfig{
			Path: "auto",
		},
		Encryption: EncryptionConfig{
			PaddingProportion: 0.05,
			Decoys:            0,
		},
		Recipients: []string{},
	}
}

// Load reads and parses a configuration file. A missing file is not an
// error: Load returns Default() so the CLI always has usable values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, starting from Default() so
// any field the file omits keeps its default value.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values,
// supporting the ${VAR:-default} fallback form.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Encryption.PaddingProportion < 0 {
		errs = append(errs, "encryption.padding_proportion must not be negative")
	}
	if c.Encryption.Decoys < 0 || c.Encryption.Decoys > 19 {
		errs = append(errs, "encryption.decoys must be between 0 and 19")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ResolveIdentityPath expands Identity.Path's "auto" sentinel against the
// user's config directory.
func (c *Config) ResolveIdentityPath() (string, error) {
	if c.Identity.Path != "auto" {
		return c.Identity.Path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve identity path: %w", err)
	}
	return dir + "/covert/identity.key", nil
}

// ApplyOverrides layers CLI flag values onto c, matching the teacher's
// documented flag-over-file precedence. A nil pointer leaves the field
// unchanged; a non-nil padding or decoy value is applied even when zero,
// while an empty identity path is ignored.
func (c *Config) ApplyOverrides(paddingProportion *float64, decoys *int, identityPath *string) {
	if paddingProportion != nil {
		c.Encryption.PaddingProportion = *paddingProportion
	}
	if decoys != nil {
		c.Encryption.Decoys = *decoys
	}
	if identityPath != nil && *identityPath != "" {
		c.Identity.Path = *identityPath
	}
}
