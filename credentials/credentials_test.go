package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeCreds(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.toml")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestStandardPaths(t *testing.T) {
	paths := StandardPaths()
	if len(paths) == 0 || paths[0] != "credentials.toml" {
		t.Errorf("first path should be credentials.toml, got %v", paths)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeCreds(t, `
[orchestrator]
api_key = "s3cret"

[anthropic]
api_key = "sk-ant-test123"

[openclaw]
api_key = "oc-key"
base_url = "http://localhost:18789"
`, 0400)

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := creds.OrchestratorKey(); got != "s3cret" {
		t.Errorf("OrchestratorKey = %q, want s3cret", got)
	}
	if got := creds.GetAPIKey("anthropic"); got != "sk-ant-test123" {
		t.Errorf("anthropic key = %q", got)
	}
	if got := creds.GetBaseURL("openclaw"); got != "http://localhost:18789" {
		t.Errorf("openclaw base url = %q", got)
	}
}

func TestLoadFile_GenericLLMSection(t *testing.T) {
	path := writeCreds(t, `
[llm]
api_key = "generic-llm-key"

[openai]
api_key = "sk-openai"
`, 0400)

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := creds.GetAPIKey("google"); got != "generic-llm-key" {
		t.Errorf("google key = %q, want generic-llm-key", got)
	}
	if got := creds.GetAPIKey("openai"); got != "sk-openai" {
		t.Errorf("provider section should win over [llm], got %q", got)
	}
}

func TestLoadFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission check is Unix only")
	}
	for _, mode := range []os.FileMode{0644, 0600, 0440} {
		path := writeCreds(t, "[orchestrator]\napi_key = \"x\"\n", mode)
		if _, err := LoadFile(path); !errors.Is(err, ErrInsecurePermissions) {
			t.Errorf("mode %04o: err = %v, want ErrInsecurePermissions", mode, err)
		}
	}
}

func TestLoadFile_InvalidTOML(t *testing.T) {
	path := writeCreds(t, "[orchestrator\napi_key = ", 0400)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestOrchestratorKey_Fallbacks(t *testing.T) {
	t.Setenv("ORCH_API_KEY", "")

	var nilCreds *Credentials
	if got := nilCreds.OrchestratorKey(); got != DefaultOrchestratorKey {
		t.Errorf("nil credentials = %q, want %q", got, DefaultOrchestratorKey)
	}

	t.Setenv("ORCH_API_KEY", "from-env")
	if got := nilCreds.OrchestratorKey(); got != "from-env" {
		t.Errorf("env fallback = %q, want from-env", got)
	}
}

func TestGetAPIKey_FallbackToEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("MY_PROVIDER_API_KEY", "custom-env")

	creds := &Credentials{sections: map[string]*ProviderCreds{}}
	if got := creds.GetAPIKey("anthropic"); got != "env-key" {
		t.Errorf("anthropic = %q, want env-key", got)
	}
	var nilCreds *Credentials
	if got := nilCreds.GetAPIKey("my-provider"); got != "custom-env" {
		t.Errorf("generic env var = %q, want custom-env", got)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(t.TempDir())

	creds, path, err := Load()
	if err != nil || creds != nil || path != "" {
		t.Errorf("Load() = %v, %q, %v; want nil, \"\", nil", creds, path, err)
	}
}

func TestLoad_FromCurrentDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	if err := os.WriteFile("credentials.toml", []byte("[orchestrator]\napi_key = \"local\"\n"), 0400); err != nil {
		t.Fatalf("write: %v", err)
	}

	creds, path, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if path != "credentials.toml" {
		t.Errorf("path = %q", path)
	}
	if creds.OrchestratorKey() != "local" {
		t.Errorf("OrchestratorKey = %q, want local", creds.OrchestratorKey())
	}
}
