package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/mcphub/internal/history"
	"github.com/flemzord/mcphub/internal/proxy"
	"github.com/flemzord/mcphub/internal/sandbox"
)

func testServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	g := New(cfg)
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp
}

func TestHealth_Minimal(t *testing.T) {
	t.Parallel()

	srv := testServer(t, Config{})

	var resp HealthResponse
	r := getJSON(t, srv.URL+"/health", &resp)
	if r.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", r.StatusCode)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q", resp.Status)
	}
}

func TestHealth_ReportsCatalog(t *testing.T) {
	t.Parallel()

	p := proxy.New(nil)
	if err := p.Add(proxy.Record{Name: "a__x", Server: "a", Raw: "x"}); err != nil {
		t.Fatal(err)
	}

	srv := testServer(t, Config{Proxy: p})

	var resp HealthResponse
	getJSON(t, srv.URL+"/health", &resp)
	if resp.Tools != 1 {
		t.Errorf("Tools = %d, want 1", resp.Tools)
	}
}

func TestExecutionsAPI(t *testing.T) {
	t.Parallel()

	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	if err := hist.Record(context.Background(), sandbox.Execution{
		ID:        "exec-1",
		State:     sandbox.ExecCompleted,
		Stdout:    "out",
		StartedAt: time.Now(),
		Duration:  time.Second,
	}); err != nil {
		t.Fatal(err)
	}

	srv := testServer(t, Config{History: hist})

	var list struct {
		Executions []executionView `json:"executions"`
	}
	getJSON(t, srv.URL+"/api/executions", &list)
	if len(list.Executions) != 1 || list.Executions[0].ID != "exec-1" {
		t.Fatalf("executions = %+v", list.Executions)
	}
	if list.Executions[0].DurationMS != 1000 {
		t.Errorf("DurationMS = %d, want 1000", list.Executions[0].DurationMS)
	}

	var one executionView
	getJSON(t, srv.URL+"/api/executions/exec-1", &one)
	if one.Stdout != "out" {
		t.Errorf("Stdout = %q", one.Stdout)
	}

	resp := getJSON(t, srv.URL+"/api/executions/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing execution: status = %d, want 404", resp.StatusCode)
	}

	resp = getJSON(t, srv.URL+"/api/executions?limit=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.SetCatalogSize(7)
	if err := metrics.Record(context.Background(), sandbox.Execution{
		State:    sandbox.ExecCompleted,
		Duration: 250 * time.Millisecond,
	}); err != nil {
		t.Fatal(err)
	}

	srv := testServer(t, Config{Metrics: metrics})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)

	for _, want := range []string{
		"mcphub_catalog_tools 7",
		`mcphub_script_executions_total{state="completed"} 1`,
		"mcphub_script_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output should contain %q", want)
		}
	}
}
