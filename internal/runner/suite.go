package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Suite is a YAML manifest bundling several .conf unit tests.
type Suite struct {
	Name  string      `yaml:"name"`
	Tests []SuiteTest `yaml:"tests"`
}

// SuiteTest names one .conf test. Relative paths are resolved against
// the manifest's directory.
type SuiteTest struct {
	Name string `yaml:"name"`
	Conf string `yaml:"conf"`
}

// LoadSuite parses a suite manifest.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runner: read suite %s: %w", path, err)
	}

	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("runner: parse suite %s: %w", path, err)
	}
	if len(s.Tests) == 0 {
		return nil, fmt.Errorf("runner: suite %s has no tests", path)
	}

	dir := filepath.Dir(path)
	for i := range s.Tests {
		if s.Tests[i].Name == "" {
			s.Tests[i].Name = s.Tests[i].Conf
		}
		if !filepath.IsAbs(s.Tests[i].Conf) {
			s.Tests[i].Conf = filepath.Join(dir, s.Tests[i].Conf)
		}
	}
	return &s, nil
}
