package agent

import (
	"fmt"
	"os"

	"github.com/jllopis/taskbridge/pkg/bridge"
	"gopkg.in/yaml.v3"
)

type skillManifest struct {
	Skills []bridge.Skill `yaml:"skills"`
}

// LoadSkills reads a YAML skill manifest:
//
//	skills:
//	  - name: weather
//	    description: Answers weather questions
//	    parameters:
//	      - name: location
//	        type: string
//	        required: true
func LoadSkills(path string) ([]bridge.Skill, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skills %s: %w", path, err)
	}
	return ParseSkills(raw)
}

// ParseSkills decodes a skill manifest. Every skill needs a name.
func ParseSkills(raw []byte) ([]bridge.Skill, error) {
	var m skillManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse skills: %w", err)
	}
	for i, s := range m.Skills {
		if s.Name == "" {
			return nil, fmt.Errorf("skill %d has no name", i)
		}
		for j, p := range s.Parameters {
			if p.Type == "" {
				m.Skills[i].Parameters[j].Type = "string"
			}
		}
	}
	return m.Skills, nil
}
