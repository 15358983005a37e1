package planner

import (
	"os"

	"gopkg.in/yaml.v3"
)

// PlanFile is a dump of scan plans for a whole batch
type PlanFile struct {
	Version  string      `yaml:"version"`
	Strength Strength    `yaml:"strength"`
	Cut      int         `yaml:"cut"`
	Images   []ImagePlan `yaml:"images"`
}

// ImagePlan is the plan of a single discovered image
type ImagePlan struct {
	ID    int      `yaml:"id"`
	Input string   `yaml:"input"`
	Plan  ScanPlan `yaml:"plan"`
}

// RegionTotal counts regions across all images.
func (f *PlanFile) RegionTotal() int {
	n := 0
	for _, img := range f.Images {
		n += len(img.Plan.Regions)
	}
	return n
}

// WritePlanFile writes a plan file as YAML
func WritePlanFile(f *PlanFile, path string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadPlanFile reads a plan file from YAML
func ReadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f PlanFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	return &f, nil
}
