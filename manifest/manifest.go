// Package manifest loads the extension manifest (extension.yaml): the
// extension's identity, the events it handles, and its declared secret
// defaults. Values may reference environment variables as ${VAR_NAME}; they
// are expanded before parsing so secrets never need to be written into the
// file.
package manifest

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EventSpec declares one event the extension handles.
type EventSpec struct {
	Name     string   `yaml:"name"`
	Versions []string `yaml:"versions"`
	Scopes   []string `yaml:"scopes,omitempty"`
}

// Manifest is the parsed extension.yaml.
type Manifest struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// BaseURL is the platform instance this extension talks to.
	BaseURL string `yaml:"base_url,omitempty"`

	// SigningSecret enables the legacy shared-secret verification mode.
	SigningSecret string `yaml:"signing_secret,omitempty"`

	Events  []EventSpec       `yaml:"events,omitempty"`
	Secrets map[string]string `yaml:"secrets,omitempty"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest not found: %s\n"+
			"Hint: Check the path or create an extension.yaml", path)
	}
	return Parse(data)
}

// Parse parses manifest bytes, expanding ${ENV_VAR} references first.
func Parse(data []byte) (*Manifest, error) {
	expanded := expandEnvVars(string(data))

	var m Manifest
	if err := yaml.Unmarshal([]byte(expanded), &m); err != nil {
		return nil, fmt.Errorf("invalid manifest yaml: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("id is required\nHint: use a reverse-DNS identifier like com.example.issue-bot")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("version is required")
	}
	for i, ev := range m.Events {
		if strings.TrimSpace(ev.Name) == "" {
			return fmt.Errorf("events[%d]: name is required", i)
		}
		if len(ev.Versions) == 0 {
			return fmt.Errorf("events[%d] (%s): at least one version is required", i, ev.Name)
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} with the environment value. Unset
// variables expand to the empty string, matching shell behavior.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
