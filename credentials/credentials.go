// Package credentials loads the orchestrator secret and LLM API keys.
//
// Keys live in a TOML file with one section per provider, plus [llm] for a
// key shared by all providers and [orchestrator] for the API secret:
//
//	[orchestrator]
//	api_key = "..."
//
//	[anthropic]
//	api_key = "sk-ant-..."
//
// The file must be mode 0400. Anything not found in the file falls back to
// the environment.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrInsecurePermissions = errors.New("credentials file has insecure permissions")

// DefaultOrchestratorKey is the API secret when nothing is configured.
const DefaultOrchestratorKey = "dev_key"

const (
	OrchestratorSection = "orchestrator"
	sharedSection       = "llm"
)

// ProviderCreds is one section of the file.
type ProviderCreds struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// Credentials is a parsed credentials file. A nil *Credentials is valid
// and resolves everything from the environment.
type Credentials struct {
	// LLM is the [llm] section, if present.
	LLM *ProviderCreds

	sections map[string]*ProviderCreds
}

// StandardPaths lists candidate files, most specific first.
func StandardPaths() []string {
	paths := []string{"credentials.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "orchestrator", "credentials.toml"))
	}
	return paths
}

// Load reads the first file in StandardPaths that exists and reports its
// path. With no file at all it returns nil, "", nil.
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		creds, err := LoadFile(path)
		return creds, path, err
	}
	return nil, "", nil
}

// LoadFile parses path. On Unix the file must be mode 0400.
func LoadFile(path string) (*Credentials, error) {
	if err := checkMode(path); err != nil {
		return nil, err
	}

	var raw map[string]ProviderCreds
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("credentials: parse %s: %w", path, err)
	}

	c := &Credentials{sections: make(map[string]*ProviderCreds, len(raw))}
	for name, sec := range raw {
		if sec == (ProviderCreds{}) {
			continue
		}
		sec := sec
		if name == sharedSection {
			c.LLM = &sec
		} else {
			c.sections[name] = &sec
		}
	}
	return c, nil
}

func checkMode(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm != 0400 {
		return fmt.Errorf("%w: %s is %04o, want 0400", ErrInsecurePermissions, path, perm)
	}
	return nil
}

// OrchestratorKey resolves the API secret: the [orchestrator] section, then
// ORCH_API_KEY, then DefaultOrchestratorKey.
func (c *Credentials) OrchestratorKey() string {
	if s := c.lookup(OrchestratorSection); s != nil && s.APIKey != "" {
		return s.APIKey
	}
	if v := os.Getenv("ORCH_API_KEY"); v != "" {
		return v
	}
	return DefaultOrchestratorKey
}

// GetAPIKey resolves a provider key: its own section, then [llm], then
// <PROVIDER>_API_KEY.
func (c *Credentials) GetAPIKey(provider string) string {
	if s := c.lookup(provider); s != nil && s.APIKey != "" {
		return s.APIKey
	}
	if c != nil && c.LLM != nil && c.LLM.APIKey != "" {
		return c.LLM.APIKey
	}
	return os.Getenv(envName(provider, "API_KEY"))
}

// GetBaseURL resolves an endpoint override: the provider section, then
// <PROVIDER>_BASE_URL. It is "" when neither is set.
func (c *Credentials) GetBaseURL(provider string) string {
	if s := c.lookup(provider); s != nil && s.BaseURL != "" {
		return s.BaseURL
	}
	return os.Getenv(envName(provider, "BASE_URL"))
}

// lookup finds a section by exact name or with dashes removed, so
// "open-claw" finds [openclaw].
func (c *Credentials) lookup(name string) *ProviderCreds {
	if c == nil {
		return nil
	}
	if s, ok := c.sections[name]; ok {
		return s
	}
	return c.sections[strings.ToLower(strings.ReplaceAll(name, "-", ""))]
}

// envName builds e.g. ANTHROPIC_API_KEY or MY_PROVIDER_BASE_URL.
func envName(provider, suffix string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_" + suffix
}
