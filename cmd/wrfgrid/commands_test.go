package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/testhelpers"
	"github.com/kjstillabower/wrf-grid-viewer/internal/timeseries"
)

// setupConfigDir serves t2 hours 0-3 (value = hour) and writes a config
// directory pointing at the server.
func setupConfigDir(t *testing.T) (string, *testhelpers.GridServer) {
	t.Helper()
	srv := testhelpers.NewGridServer(t)
	for h := 0; h <= 3; h++ {
		srv.AddGrid(t, fmt.Sprintf("t2/json/fh_%03d.json", h), testhelpers.UniformGrid(models.DefaultDomain, 5, 5, float64(h)))
	}

	for _, k := range []string{"DATA_BACKEND", "DATA_BASE_URL", "CACHE_BACKEND", "MEMCACHED_ADDRS", "FORECAST_START", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("ENV_NAME", "cli")

	dir := t.TempDir()
	yml := fmt.Sprintf(`
data:
  base_url: %q
  grid_paths: ["{variable}/json/fh_{hour3}.json"]
forecast:
  start: "2026-10-17T00:00:00Z"
variables:
  - name: t2
    label: "2 m temperature"
    units: "°C"
    precision: 1
    max_hour: 3
reliability:
  retry_max_attempts: 1
`, srv.URL)
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "cli.yaml"), []byte(yml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir, srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestProbeCmd(t *testing.T) {
	dir, _ := setupConfigDir(t)
	out, err := run(t, "probe", "t2", "--config-dir", dir)
	if err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if want := "t2: max hour 3 (configured, 0 probes)"; !strings.Contains(out, want) {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestSampleCmd(t *testing.T) {
	dir, _ := setupConfigDir(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"in domain", []string{"sample", "t2", "2", "--lat", "30", "--lon", "79"}, "t2 FH +2  Lat: 30.000 , Lon: 79.000  2.0 °C"},
		{"missing hour", []string{"sample", "t2", "7", "--lat", "30", "--lon", "79"}, "(placeholder)"},
		{"outside domain", []string{"sample", "t2", "2", "--lat", "10", "--lon", "79"}, "out_of_domain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append(tt.args, "--config-dir", dir)...)
			if err != nil {
				t.Fatalf("sample error = %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want substring %q", out, tt.want)
			}
		})
	}
}

// TestSeriesCmd_Stdout verifies that without --out the CSV goes to stdout and
// parses back to one point per hour.
func TestSeriesCmd_Stdout(t *testing.T) {
	dir, _ := setupConfigDir(t)
	out, err := run(t, "series", "t2", "--lat", "30", "--lon", "79", "--config-dir", dir)
	if err != nil {
		t.Fatalf("series error = %v", err)
	}
	points, err := timeseries.ParseCSV(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("len(points) = %d, want 4", len(points))
	}
	for i, p := range points {
		if p.Value != float64(i) {
			t.Errorf("points[%d].Value = %v, want %d", i, p.Value, i)
		}
	}
}

func TestSeriesCmd_OutFile(t *testing.T) {
	dir, srv := setupConfigDir(t)
	path := filepath.Join(t.TempDir(), "t2.csv")
	out, err := run(t, "series", "t2", "--lat", "30", "--lon", "79", "-o", path, "--config-dir", dir)
	if err != nil {
		t.Fatalf("series error = %v", err)
	}
	for _, want := range []string{"4 points (0 missing, 0 mismatched)", "mean 1.5", "Increasing", "wrote " + path} {
		if !strings.Contains(out, want) {
			t.Errorf("output = %q, want substring %q", out, want)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	points, err := timeseries.ParseCSV(f)
	if err != nil || len(points) != 4 {
		t.Errorf("ParseCSV(file) = %d points, %v; want 4", len(points), err)
	}
	if got := srv.TotalGets(); got != 4 {
		t.Errorf("GETs = %d, want 4", got)
	}
}

func TestCommands_Errors(t *testing.T) {
	dir, _ := setupConfigDir(t)
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"unknown variable", []string{"probe", "snow"}, "unknown variable"},
		{"bad coordinates", []string{"sample", "t2", "0", "--lat", "north", "--lon", "79"}, "lat"},
		{"bad hour", []string{"sample", "t2", "soon", "--lat", "30", "--lon", "79"}, "hour"},
		{"missing flag", []string{"series", "t2", "--lat", "30"}, "lon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append(tt.args, "--config-dir", dir)...)
			if err == nil {
				t.Fatal("error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want message containing %q", err, tt.wantMsg)
			}
		})
	}

	if _, err := run(t, "probe", "t2", "--config-dir", t.TempDir()); err == nil {
		t.Error("probe with missing config error = nil, want error")
	}
}
