package deployment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// InstanceSpec describes one hosting instance type offered by the
// deployment platform.
type InstanceSpec struct {
	Name        string `yaml:"name" json:"name"`
	Accelerator string `yaml:"accelerator" json:"accelerator"`
	MemoryGB    int    `yaml:"memory_gb" json:"memory_gb"`
	MinReplicas int    `yaml:"min_replicas" json:"min_replicas"`
	MaxReplicas int    `yaml:"max_replicas" json:"max_replicas"`
}

type Catalog struct {
	Instances []InstanceSpec `yaml:"instances" json:"instances"`
}

func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}

	var catalog Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return Catalog{}, err
	}

	if len(catalog.Instances) == 0 {
		return Catalog{}, errors.New("no instance types configured")
	}

	return catalog, nil
}

func DefaultCatalog() Catalog {
	return Catalog{Instances: []InstanceSpec{
		{Name: "ml.standard.large", Accelerator: "none", MemoryGB: 8, MinReplicas: 1, MaxReplicas: 2},
		{Name: "ml.standard.xlarge", Accelerator: "none", MemoryGB: 16, MinReplicas: 1, MaxReplicas: 4},
		{Name: "ml.inference.accel", Accelerator: "inferentia", MemoryGB: 16, MinReplicas: 1, MaxReplicas: 4},
		{Name: "ml.gpu.xlarge", Accelerator: "gpu", MemoryGB: 32, MinReplicas: 1, MaxReplicas: 2},
	}}
}

// Resolve returns the spec for name, or an error naming the known types.
func (c Catalog) Resolve(name string) (InstanceSpec, error) {
	for _, spec := range c.Instances {
		if spec.Name == name {
			return spec, nil
		}
	}
	known := make([]string, 0, len(c.Instances))
	for _, spec := range c.Instances {
		known = append(known, spec.Name)
	}
	return InstanceSpec{}, fmt.Errorf("unknown instance type %q (known: %v)", name, known)
}
