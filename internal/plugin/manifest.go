package plugin

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wierd-stuff-inc/scribes/extensions"
)

// Manifest is a plugin written as data, main.yaml:
//
//	patterns:
//	  - name: draw_func
//	    pattern: '(@draw_func) (\d*) (\d*) (.*)'
//	    attrs: {class: func_plugin, width: $2, height: $3, function: $4}
type Manifest struct {
	Description string        `yaml:"description,omitempty"`
	Patterns    []PatternSpec `yaml:"patterns"`
}

func ReadManifest(entry string) (*Manifest, error) {
	data, err := os.ReadFile(entry)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", entry, err)
	}
	if len(m.Patterns) == 0 {
		return nil, fmt.Errorf("%s: no patterns", entry)
	}
	return &m, nil
}

// Extend builds every pattern first so a broken manifest installs nothing.
// A rule name that is already installed, or listed twice, is a conflict.
func (m *Manifest) Extend(ctx context.Context, engine Engine) error {
	built := make([]*extensions.AttrTagPattern, 0, len(m.Patterns))
	seen := make(map[string]struct{}, len(m.Patterns))
	for _, spec := range m.Patterns {
		p, err := spec.Build()
		if err != nil {
			return err
		}
		if _, dup := seen[p.Name()]; dup || engine.Has(p.Name()) {
			return fmt.Errorf("%w: %s", ErrRuleConflict, p.Name())
		}
		seen[p.Name()] = struct{}{}
		built = append(built, p)
	}
	for _, p := range built {
		engine.Install(p)
	}
	return nil
}

// ManifestLoader reads main.yaml entry points.
var ManifestLoader = LoaderFunc(func(entry string) (Extension, error) {
	return ReadManifest(entry)
})
