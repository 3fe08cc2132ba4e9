package prompt

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadTemplates reads template overrides from a YAML file with optional
// "structured", "narrative" and "summary" keys. An empty path returns no
// overrides.
func LoadTemplates(path string) (Templates, error) {
	var t Templates
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, eris.Wrapf(err, "prompt: read templates %s", path)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, eris.Wrapf(err, "prompt: parse templates %s", path)
	}
	return t, nil
}
