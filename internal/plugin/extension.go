package plugin

import (
	"context"

	"github.com/wierd-stuff-inc/scribes/extensions"
)

// Engine is what a plugin's extend hook gets to change: the process wide rule
// chain. *extensions.RuleSet implements it.
type Engine interface {
	Install(p *extensions.AttrTagPattern) bool
	Has(name string) bool
}

// Extension is the capability every plugin entry point provides.
type Extension interface {
	Extend(ctx context.Context, engine Engine) error
}

// Loader turns an entry module on disk into an Extension.
type Loader interface {
	Load(entry string) (Extension, error)
}

type LoaderFunc func(entry string) (Extension, error)

func (f LoaderFunc) Load(entry string) (Extension, error) {
	return f(entry)
}

// EntryPoint pairs an entry module file name with the loader that reads it.
type EntryPoint struct {
	File   string
	Loader Loader
}

// PatternSpec is the declarative form of an attribute tag pattern shared by
// the Lua and manifest loaders. A nil Tag means the default tag.
type PatternSpec struct {
	Name    string            `yaml:"name"`
	Pattern string            `yaml:"pattern"`
	Tag     *string           `yaml:"tag"`
	Attrs   map[string]string `yaml:"attrs"`
	Text    string            `yaml:"text"`
	Trigger string            `yaml:"trigger"`
}

func (s PatternSpec) Build() (*extensions.AttrTagPattern, error) {
	opts := []extensions.PatternOption{
		extensions.WithAttrs(s.Attrs),
		extensions.WithText(s.Text),
	}
	if s.Tag != nil {
		opts = append(opts, extensions.WithTag(*s.Tag))
	}
	if s.Trigger != "" {
		opts = append(opts, extensions.WithTrigger([]byte(s.Trigger)...))
	}
	return extensions.NewAttrTagPattern(s.Name, s.Pattern, opts...)
}
