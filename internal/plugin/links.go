package plugin

import (
	"slices"

	"github.com/wierd-stuff-inc/scribes/util"
)

// AssetLinks are the script and style URLs a single page render collected from
// the plugins it imported. Each URL appears once, in the order first added.
type AssetLinks struct {
	scripts []string
	styles  []string
}

func NewAssetLinks() *AssetLinks {
	return &AssetLinks{
		scripts: make([]string, 0),
		styles:  make([]string, 0),
	}
}

func (l *AssetLinks) AddScripts(urls ...string) {
	l.scripts = util.ConcatUnique(l.scripts, urls)
}

func (l *AssetLinks) AddStyles(urls ...string) {
	l.styles = util.ConcatUnique(l.styles, urls)
}

func (l *AssetLinks) Scripts() []string {
	return slices.Clone(l.scripts)
}

func (l *AssetLinks) Styles() []string {
	return slices.Clone(l.styles)
}
