package main

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/jsonfas"
	"github.com/MrEthical07/jsonfas/accounttest"
	"github.com/MrEthical07/jsonfas/client"
)

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out.String()) != jsonfas.Version {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--help"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "--service-url") {
		t.Fatalf("expected usage to list flags, got:\n%s", out.String())
	}
}

func TestRunRequiresServiceURL(t *testing.T) {
	err := run(context.Background(), []string{"--address", "127.0.0.1:0"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "service URL") {
		t.Fatalf("expected missing service url error, got %v", err)
	}
}

func TestFlagToEnvVarName(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("service-url", "", "")
	if got := flagToEnvVarName(fs.Lookup("service-url")); got != "JSONFAS_SERVICE_URL" {
		t.Fatalf("unexpected env var name %q", got)
	}
}

func TestSetFlagsFromEnvVariables(t *testing.T) {
	t.Setenv("JSONFAS_SERVICE_URL", "https://accounts.example.org/accounts/")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var ov overrides
	bindOverrides(fs, &ov)

	if err := setFlagsFromEnvVariables(fs); err != nil {
		t.Fatalf("env: %v", err)
	}
	cfg, err := loadConfig("", fs, ov)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Service.URL != "https://accounts.example.org/accounts/" {
		t.Fatalf("unexpected url %q", cfg.Service.URL)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsonfas.toml")
	body := `
[service]
url = "https://file.example.org/accounts/"
username = "svc"

[metrics]
enabled = false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var ov overrides
	bindOverrides(fs, &ov)
	if err := fs.Parse([]string{"--service-username", "other", "--ssl"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := loadConfig(path, fs, ov)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Service.URL != "https://file.example.org/accounts/" {
		t.Fatalf("file value must survive, got %q", cfg.Service.URL)
	}
	if cfg.Service.Username != "other" || !cfg.SSL.Enabled {
		t.Fatalf("flags must override the file, got %+v", cfg.Service)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("unset metrics flag must not override the file")
	}
}

func TestToSlogLevel(t *testing.T) {
	if toSlogLevel(0) != 0 || toSlogLevel(-3) != 0 {
		t.Fatal("expected info level by default")
	}
	if toSlogLevel(2) != -2 {
		t.Fatalf("unexpected level %v", toSlogLevel(2))
	}
	if _, err := newLogger(&loggerConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func newTestRouter(t *testing.T, srv *accounttest.Server) http.Handler {
	t.Helper()
	cfg := jsonfas.DefaultConfig()
	cfg.Service.URL = srv.URL()
	cfg.Service.RetryMax = 0
	cfg.Metrics.Enabled = true
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	logger := testr.New(t)
	svc, err := client.FromConfig(cfg, logger)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	p, err := jsonfas.New().WithConfig(cfg).WithAccountService(svc).WithLogger(logger).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(p.Close)
	return newRouter(logger, serverConfig{EnableRequestLogging: true, TrustProxyHeaders: true}, p)
}

func TestRouterLoginWhoamiLogout(t *testing.T) {
	srv := accounttest.NewServer()
	defer srv.Close()
	srv.AddUser(jsonfas.User{
		ID:                  5,
		Username:            "erin",
		HumanName:           "Erin",
		ApprovedMemberships: []jsonfas.Group{{ID: 2, Name: "packager"}},
	}, "erin-password")
	h := newTestRouter(t, srv)

	form := url.Values{"user_name": {"erin"}, "password": {"erin-password"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var who whoamiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &who); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if who.Username != "erin" || len(who.Groups) != 1 || who.Groups[0] != "packager" {
		t.Fatalf("unexpected login response %+v", who)
	}

	var visit string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "tg-visit" {
			visit = c.Value
		}
	}
	if visit == "" {
		t.Fatal("expected visit cookie")
	}
	sum := sha1.Sum([]byte(visit))
	if who.CSRFToken != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected csrf token %q", who.CSRFToken)
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami?_csrf_token="+who.CSRFToken, nil)
	req.AddCookie(&http.Cookie{Name: "tg-visit", Value: visit})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("whoami: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "tg-visit", Value: visit})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("whoami without token: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "tg-visit", Value: visit})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rec.Code)
	}
	if username, _ := srv.VisitUser(visit); username != "" {
		t.Fatalf("expected visit to be logged out, got %q", username)
	}
}

func TestRouterLoginFailure(t *testing.T) {
	srv := accounttest.NewServer()
	defer srv.Close()
	h := newTestRouter(t, srv)

	form := url.Values{"user_name": {"nobody"}, "password": {"x"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRouterHealthzAndMetrics(t *testing.T) {
	srv := accounttest.NewServer()
	defer srv.Close()
	h := newTestRouter(t, srv)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), jsonfas.Version) {
		t.Fatalf("unexpected healthz %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "jsonfas_identity_loaded_total") {
		t.Fatalf("expected metrics, got:\n%s", rec.Body.String())
	}
}
