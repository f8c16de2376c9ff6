package deployment

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCatalogFromYAML(t *testing.T) {
	content := `instances:
  - name: ml.custom.small
    accelerator: none
    memory_gb: 4
    min_replicas: 1
    max_replicas: 2
  - name: ml.custom.accel
    accelerator: inferentia
    memory_gb: 16
    min_replicas: 1
    max_replicas: 8
`
	path := filepath.Join(t.TempDir(), "instances.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(catalog.Instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(catalog.Instances))
	}

	spec, err := catalog.Resolve("ml.custom.accel")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if spec.Accelerator != "inferentia" || spec.MaxReplicas != 8 {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestLoadCatalogDefaults(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("expected defaults without error, got %v", err)
	}
	if len(catalog.Instances) == 0 {
		t.Fatal("expected default instances")
	}
}

func TestLoadCatalogEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("instances: []\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

func TestResolveUnknownInstance(t *testing.T) {
	if _, err := DefaultCatalog().Resolve("ml.made.up"); err == nil {
		t.Fatal("expected error for unknown instance type")
	}
}
