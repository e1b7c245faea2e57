package book

import (
	"bytes"
	"os"
	"path"
	"path/filepath"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/wierd-stuff-inc/scribes/util"
)

// HighlightStylesheet is the file the code highlighting classes are written to,
// below <output>/css/static.
const HighlightStylesheet = "highlight.css"

type staticDir struct {
	template string
	prefix   string
}

var staticDirs = []staticDir{
	{template: "js", prefix: "js"},
	{template: "css", prefix: "css"},
}

// Bootstrap creates the output tree, publishes the static template assets and
// writes the highlight stylesheet. Every page links the static assets.
func (r *Renderer) Bootstrap() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dir := range []string{PagesDir, "js", "css"} {
		if err := os.MkdirAll(filepath.Join(r.outputDir, dir), 0o755); err != nil {
			return err
		}
	}
	for _, dir := range staticDirs {
		src := filepath.Join(r.templatesDir, dir.template)
		if !util.IsDir(src) {
			continue
		}
		r.log.Debug("copying static assets", "from", src)
		if err := util.CopyDir(src, r.staticDir(dir.prefix), true); err != nil {
			return err
		}
	}
	if err := r.writeHighlightCSS(); err != nil {
		return err
	}

	var err error
	if r.baseScripts, err = r.staticLinks("js"); err != nil {
		return err
	}
	if r.baseStyles, err = r.staticLinks("css"); err != nil {
		return err
	}
	r.log.Info("output tree ready", "dir", r.outputDir, "scripts", len(r.baseScripts), "styles", len(r.baseStyles))
	return nil
}

func (r *Renderer) staticDir(prefix string) string {
	return filepath.Join(r.outputDir, prefix, "static")
}

func (r *Renderer) writeHighlightCSS() error {
	dir := r.staticDir("css")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	formatter := chromahtml.New(
		chromahtml.WithClasses(true),
		chromahtml.WithLineNumbers(r.lineNumbers),
	)
	var css bytes.Buffer
	if err := formatter.WriteCSS(&css, styles.Get(r.style)); err != nil {
		return err
	}
	return util.WriteFileAtomic(filepath.Join(dir, HighlightStylesheet), css.Bytes(), 0o644)
}

func (r *Renderer) staticLinks(prefix string) ([]string, error) {
	entries, err := os.ReadDir(r.staticDir(prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	links := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			links = append(links, "/"+path.Join(prefix, "static", entry.Name()))
		}
	}
	return links, nil
}
