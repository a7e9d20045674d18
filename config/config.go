package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/a-h/retread/wheel"
	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/pelletier/go-toml/v2"
)

// Config holds the proxy server configuration. It is read-only for the
// lifetime of a running proxy: changing rules or upstreams requires a
// restart.
type Config struct {
	Host      string       `toml:"host"`
	Port      int          `toml:"port"`
	Upstreams []string     `toml:"upstreams"`
	Renames   []RenameRule `toml:"renames"`
}

// RenameRule maps a virtual package name to a real upstream package.
type RenameRule struct {
	// Original is the upstream package name, e.g. "icechunk".
	Original string `toml:"original"`
	// NewName is the virtual package name, e.g. "icechunk_v1".
	NewName string `toml:"name"`
	// VersionSpec is an optional PEP 440 specifier limiting which
	// upstream versions the rule exposes, e.g. "<2".
	VersionSpec string `toml:"version,omitempty"`
}

// Default returns a config with the default listen address.
func Default() Config {
	return Config{
		Host: "127.0.0.1",
		Port: 8000,
	}
}

// Load reads a TOML config file.
//
// Format:
//
//	host = "127.0.0.1"
//	port = 8000
//	upstreams = ["https://pypi.org/simple/"]
//
//	[[renames]]
//	original = "icechunk"
//	name = "icechunk_v1"
//	version = "<2"
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return c, c.Validate()
}

// Validate checks that every rename rule is complete and that version
// specifiers parse, so a bad rule fails at startup rather than on the
// first request that hits it.
func (c Config) Validate() error {
	for _, rule := range c.Renames {
		if rule.Original == "" || rule.NewName == "" {
			return fmt.Errorf("invalid rename rule %q -> %q: original and name are required", rule.Original, rule.NewName)
		}
		if rule.VersionSpec != "" {
			if _, err := pep440.NewSpecifiers(rule.VersionSpec); err != nil {
				return fmt.Errorf("invalid version specifier %q for rename %q: %w", rule.VersionSpec, rule.NewName, err)
			}
		}
	}
	return nil
}

// ParseRenameRule parses the textual rule form
// "original=new_name[:version_spec]".
func ParseRenameRule(arg string) (RenameRule, error) {
	original, rest, found := strings.Cut(arg, "=")
	if !found {
		return RenameRule{}, fmt.Errorf("invalid rename %q: expected original=new_name[:version_spec]", arg)
	}
	newName, versionSpec, _ := strings.Cut(rest, ":")
	rule := RenameRule{
		Original:    strings.TrimSpace(original),
		NewName:     strings.TrimSpace(newName),
		VersionSpec: strings.TrimSpace(versionSpec),
	}
	if rule.Original == "" || rule.NewName == "" {
		return RenameRule{}, fmt.Errorf("invalid rename %q: original and new name must be non-empty", arg)
	}
	return rule, nil
}

// Rule returns the rename rule serving the given virtual package name.
// Comparison is by normalized name, so icechunk_v1, icechunk-v1 and
// Icechunk.V1 all resolve to the same rule.
func (c Config) Rule(name string) (RenameRule, bool) {
	normalized := wheel.Normalize(name)
	for _, rule := range c.Renames {
		if wheel.Normalize(rule.NewName) == normalized {
			return rule, true
		}
	}
	return RenameRule{}, false
}

// VirtualPackages returns the virtual package names exposed by the
// configured rename rules.
func (c Config) VirtualPackages() []string {
	names := make([]string, len(c.Renames))
	for i, rule := range c.Renames {
		names[i] = rule.NewName
	}
	return names
}
