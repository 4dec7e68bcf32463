package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/depscan/depscan/internal/osvdev"
	"github.com/depscan/depscan/pkg/models"
)

// these tests swap the default slog logger, so none of them run in parallel

func newOSVServer(t *testing.T, byName map[string][]string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == osvdev.QueryBatchEndpoint:
			var q osvdev.BatchedQuery
			if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var resp osvdev.BatchedResponse
			for _, query := range q.Queries {
				var res osvdev.MinimalResponse
				for _, id := range byName[query.Package.Name] {
					res.Vulns = append(res.Vulns, osvdev.MinimalVulnerability{ID: id})
				}
				resp.Results = append(resp.Results, res)
			}
			_ = json.NewEncoder(w).Encode(resp)
		case strings.HasPrefix(r.URL.Path, osvdev.GetEndpoint+"/"):
			id := strings.TrimPrefix(r.URL.Path, osvdev.GetEndpoint+"/")
			_ = json.NewEncoder(w).Encode(osvdev.Vulnerability{
				ID:               id,
				Summary:          "summary of " + id,
				DatabaseSpecific: map[string]any{"severity": "HIGH"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	return server
}

// setupProject writes the files into a temporary directory alongside a
// depscan.toml pointing at apiURL.
func setupProject(t *testing.T, apiURL string, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	files["depscan.toml"] = "[osv]\napi-url = \"" + apiURL + "\"\n\n[resolution]\nenabled = false\n"

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("could not write %s: %v", name, err)
		}
	}

	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := run(append([]string{"depscan"}, args...), stdout, stderr)

	return code, stdout.String(), stderr.String()
}

func TestRun_NoSources(t *testing.T) {
	code, _, stderr := runCLI(t, "scan")

	if code != 128 {
		t.Errorf("exit code = %d, want 128", code)
	}
	if !strings.Contains(stderr, "No package sources found") {
		t.Errorf("stderr = %q, want a message about missing sources", stderr)
	}
}

func TestRun_VulnerableFile(t *testing.T) {
	server := newOSVServer(t, map[string][]string{"flask": {"GHSA-flask-1"}})
	dir := setupProject(t, server.URL, map[string]string{
		"requirements.txt": "requests==2.25.1\nflask==1.1.4\n",
	})

	code, stdout, _ := runCLI(t, "scan", filepath.Join(dir, "requirements.txt"))

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "GHSA-flask-1") {
		t.Errorf("stdout does not mention the vulnerability:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Scanned 2 dependencies: 1 vulnerable") {
		t.Errorf("stdout does not have the summary:\n%s", stdout)
	}
}

func TestRun_CleanDirectory(t *testing.T) {
	server := newOSVServer(t, map[string][]string{})
	dir := setupProject(t, server.URL, map[string]string{
		"requirements.txt": "requests==2.25.1\n",
		"README.md":        "# project\n",
	})

	code, stdout, stderr := runCLI(t, "scan", dir)

	if code != 0 {
		t.Errorf("exit code = %d, want 0; stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "Found 1 file in") {
		t.Errorf("stdout does not report the discovered file:\n%s", stdout)
	}
}

func TestRun_JSONFormat(t *testing.T) {
	server := newOSVServer(t, map[string][]string{"flask": {"GHSA-flask-1"}})
	dir := setupProject(t, server.URL, map[string]string{
		"requirements.txt": "flask==1.1.4\n",
	})

	code, stdout, _ := runCLI(t, "scan", "--format", "json", filepath.Join(dir, "requirements.txt"))

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}

	var r models.Report
	if err := json.Unmarshal([]byte(stdout), &r); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, stdout)
	}
	if r.VulnerableCount != 1 || r.TotalDependencies != 1 {
		t.Errorf("report = %+v, want one vulnerable dependency", r)
	}
}

func TestRun_IgnoreSeverity(t *testing.T) {
	server := newOSVServer(t, map[string][]string{"flask": {"GHSA-flask-1"}})
	dir := setupProject(t, server.URL, map[string]string{
		"requirements.txt": "flask==1.1.4\n",
	})

	code, stdout, _ := runCLI(t, "scan", "--ignore-severity", "high", filepath.Join(dir, "requirements.txt"))

	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout, "1 suppressed") {
		t.Errorf("stdout does not report the suppression:\n%s", stdout)
	}
}

func TestRun_IgnoredVulnsFromConfig(t *testing.T) {
	server := newOSVServer(t, map[string][]string{"flask": {"GHSA-flask-1"}})
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.toml")
	content := "[osv]\napi-url = \"" + server.URL + "\"\n\n[resolution]\nenabled = false\n\n" +
		"[[IgnoredVulns]]\nid = \"GHSA-flask-1\"\nreason = \"not reachable\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("flask==1.1.4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	code, stdout, _ := runCLI(t, "scan", "--config", configPath, filepath.Join(dir, "requirements.txt"))

	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout, "Loaded config from: "+configPath) {
		t.Errorf("stdout does not report the config:\n%s", stdout)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "depscan.toml"), []byte("[osv]\nnot-a-key = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("flask==1.1.4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI(t, "scan", dir)

	if code != 130 {
		t.Errorf("exit code = %d, want 130", code)
	}
	if !strings.Contains(stderr, "not-a-key") {
		t.Errorf("stderr does not name the unknown key:\n%s", stderr)
	}
}

func TestRun_InvalidSeverityFlag(t *testing.T) {
	server := newOSVServer(t, map[string][]string{})
	dir := setupProject(t, server.URL, map[string]string{
		"requirements.txt": "flask==1.1.4\n",
	})

	code, _, stderr := runCLI(t, "scan", "--ignore-severity", "urgent", dir)

	if code != 127 {
		t.Errorf("exit code = %d, want 127", code)
	}
	if !strings.Contains(stderr, "invalid severity") {
		t.Errorf("stderr = %q, want an invalid severity error", stderr)
	}
}

func TestRun_MetricsFile(t *testing.T) {
	server := newOSVServer(t, map[string][]string{})
	dir := setupProject(t, server.URL, map[string]string{
		"requirements.txt": "flask==1.1.4\n",
	})
	metricsPath := filepath.Join(t.TempDir(), "depscan.prom")

	code, _, stderr := runCLI(t, "scan", "--metrics-file", metricsPath, dir)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr:\n%s", code, stderr)
	}

	b, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file was not written: %v", err)
	}
	if !strings.Contains(string(b), `depscan_osv_requests_total{endpoint="/v1/querybatch",outcome="success"} 1`) {
		t.Errorf("metrics file does not record the batch request:\n%s", b)
	}
}
