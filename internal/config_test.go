package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/vaultgate/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestUpstreamConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  UpstreamConfig
		ok   bool
	}{
		{"rest", UpstreamConfig{Backend: BackendREST, URL: "http://x", APIKey: "k"}, true},
		{"rest without key", UpstreamConfig{Backend: BackendREST, URL: "http://x"}, false},
		{"rest without url", UpstreamConfig{Backend: BackendREST, APIKey: "k"}, false},
		{"fs", UpstreamConfig{Backend: BackendFS, Path: "./vault"}, true},
		{"fs without path", UpstreamConfig{Backend: BackendFS}, false},
		{"unknown backend", UpstreamConfig{Backend: "s3"}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%s: err = %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestHistoryConfig_RejectsZeroCapacity(t *testing.T) {
	cfg := HistoryConfig{Capacity: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero capacity should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Upstream.APIKey = "k"
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("VAULTGATE_TEST_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
app:
  log_level: debug
  http:
    port: 9000
upstream:
  backend: rest
  url: https://127.0.0.1:27124
  api_key: ${VAULTGATE_TEST_KEY}
  timeout: 5s
  insecure_skip_verify: true
history:
  capacity: 25
patch:
  heading_delimiter: " > "
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9000 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Upstream.APIKey != "from-env" || cfg.Upstream.Timeout != 5*time.Second || !cfg.Upstream.InsecureSkipVerify {
		t.Errorf("upstream = %+v", cfg.Upstream)
	}
	if cfg.History.Capacity != 25 || cfg.History.JournalKeep != 1000 {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.Patch.HeadingDelimiter != " > " || cfg.Auth.Mode != AuthModeDisabled {
		t.Errorf("patch = %+v, auth = %+v", cfg.Patch, cfg.Auth)
	}
}
