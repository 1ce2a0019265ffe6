package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/bestdns/bestdns/internal/config"
	"github.com/bestdns/bestdns/internal/dns/cloudflare/fake"
)

const testToken = "cmd-token"

func TestMain(m *testing.M) {
	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))
	os.Exit(m.Run())
}

type testEnv struct {
	cf      *fake.Cloudflare
	cfSrv   *httptest.Server
	listSrv *httptest.Server
	dir     string
}

// newTestEnv starts a Cloudflare fake and a list server. Lists are served by
// path; a path in failing answers 502.
func newTestEnv(t *testing.T, lists map[string]string, failing ...string) *testEnv {
	t.Helper()
	e := &testEnv{
		cf:  fake.New(testToken, fake.Zone{ID: "zone-1", Name: "example.com"}),
		dir: t.TempDir(),
	}
	e.cfSrv = e.cf.Serve()
	e.listSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range failing {
			if r.URL.Path == p {
				http.Error(w, "upstream down", http.StatusBadGateway)
				return
			}
		}
		body, ok := lists[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(func() {
		e.cfSrv.Close()
		e.listSrv.Close()
	})
	return e
}

// writeConfig writes a config for the given target names, each fed from
// /<name>.txt on the list server, and returns its path.
func (e *testEnv) writeConfig(t *testing.T, pushgateway string, names ...string) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "provider: cloudflare\nsettings:\n")
	fmt.Fprintf(&b, "  base_url: %q\n", fake.BaseURL(e.cfSrv))
	fmt.Fprintf(&b, "  requests_per_second: \"1000\"\n")
	fmt.Fprintf(&b, "targets:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  - name: %s\n    url: %s/%s.txt\n    limit: 2\n", name, e.listSrv.URL, name)
	}
	if pushgateway != "" {
		fmt.Fprintf(&b, "metrics:\n  pushgateway_url: %s\n  job: bestdns-test\n", pushgateway)
	}

	path := filepath.Join(e.dir, "bestdns.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestRun(t *testing.T) {
	t.Setenv(config.TokenEnv, testToken)
	e := newTestEnv(t, map[string]string{"/bestcf.txt": "1.1.1.1\n8.8.8.8\n9.9.9.9\n"})
	e.cf.Seed(fake.Record{Type: "A", Name: "bestcf.example.com", Content: "4.4.4.4", TTL: 1})

	var out bytes.Buffer
	err := run(context.Background(), &out, e.writeConfig(t, "", "bestcf"), filepath.Join(e.dir, "absent.env"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, want := range []string{
		"Zone example.com (zone-1)",
		"bestcf -> bestcf.example.com",
		"1 deleted, 2 published",
		"+ 1.1.1.1",
		"+ 8.8.8.8",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out.String())
		}
	}
	if n := len(e.cf.Records("bestcf.example.com")); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestRun_TokenFromEnvFile(t *testing.T) {
	// godotenv never overrides a variable that is already set.
	t.Setenv(config.TokenEnv, "")
	os.Unsetenv(config.TokenEnv)

	e := newTestEnv(t, map[string]string{"/bestcf.txt": "1.1.1.1\n"})
	envFile := filepath.Join(e.dir, ".env")
	if err := os.WriteFile(envFile, []byte(config.TokenEnv+"="+testToken+"\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), &out, e.writeConfig(t, "", "bestcf"), envFile); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := len(e.cf.Records("bestcf.example.com")); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestRun_MissingToken(t *testing.T) {
	t.Setenv(config.TokenEnv, "")
	e := newTestEnv(t, map[string]string{"/bestcf.txt": "1.1.1.1\n"})

	var out bytes.Buffer
	err := run(context.Background(), &out, e.writeConfig(t, "", "bestcf"), "")
	if !errors.Is(err, config.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if calls := e.cf.Calls(); len(calls) != 0 {
		t.Errorf("expected no API calls, got %v", calls)
	}
	if out.Len() != 0 {
		t.Errorf("expected no report, got:\n%s", out.String())
	}
}

func TestRun_PartialReportOnFailure(t *testing.T) {
	t.Setenv(config.TokenEnv, testToken)
	e := newTestEnv(t, map[string]string{"/bestcf.txt": "1.1.1.1\n"}, "/api.txt")

	var out bytes.Buffer
	err := run(context.Background(), &out, e.writeConfig(t, "", "bestcf", "api"), "")
	if err == nil {
		t.Fatal("expected error for failing list, got nil")
	}
	if !strings.Contains(err.Error(), `target "api"`) {
		t.Errorf("expected the failing target in the error, got %v", err)
	}

	for _, want := range []string{
		"bestcf -> bestcf.example.com",
		"+ 1.1.1.1",
		"api -> api.example.com",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestRun_CanceledRunStillPushesMetrics(t *testing.T) {
	t.Setenv(config.TokenEnv, testToken)
	e := newTestEnv(t, map[string]string{"/bestcf.txt": "1.1.1.1\n"})

	var (
		mu      sync.Mutex
		methods []string
		paths   []string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if err := run(ctx, &out, e.writeConfig(t, gateway.URL, "bestcf"), ""); err == nil {
		t.Fatal("expected error for canceled run, got nil")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(methods) != 1 {
		t.Fatalf("expected 1 push, got %d", len(methods))
	}
	if methods[0] != http.MethodPost {
		t.Errorf("expected POST for a failed run, got %s", methods[0])
	}
	if paths[0] != "/metrics/job/bestdns-test" {
		t.Errorf("expected job path, got %s", paths[0])
	}
	if n := len(e.cf.Records("bestcf.example.com")); n != 0 {
		t.Errorf("expected no records for a canceled run, got %d", n)
	}
}
