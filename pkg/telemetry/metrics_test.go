package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupTestMetrics(t *testing.T) (*Metrics, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bootstrap.prom")
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "bootstrap", TextfilePath: path})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	return m, path
}

func TestMetricsCounters(t *testing.T) {
	m, _ := setupTestMetrics(t)

	m.RecordPhase("identity", "COMPLETE", time.Second)
	m.RecordPhase("shell", "FAILED", 0)
	m.RecordBackup()
	m.RecordBackup()

	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				found[f.GetName()] += c.GetValue()
			}
		}
	}
	if found["bootstrap_phases_total"] != 2 {
		t.Errorf("Expected 2 phase events, got %v", found["bootstrap_phases_total"])
	}
	if found["bootstrap_backups_total"] != 2 {
		t.Errorf("Expected 2 backups, got %v", found["bootstrap_backups_total"])
	}
}

func TestMetricsTextfile(t *testing.T) {
	m, path := setupTestMetrics(t)

	m.RecordRunCompleted("apply", "SUCCEEDED", 3*time.Second)
	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `bootstrap_runs_completed_total{mode="apply",outcome="SUCCEEDED"} 1`) {
		t.Errorf("Unexpected textfile:\n%s", data)
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatal(err)
	}

	m.RecordBackup()
	m.RecordRollbackStep("shell", "done")
	if m.Gatherer() != nil {
		t.Error("Disabled metrics should expose no registry")
	}
	if err := m.WriteTextfile(); err != nil {
		t.Errorf("WriteTextfile on disabled metrics: %v", err)
	}
}
