package book

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	gmText "github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"

	"github.com/wierd-stuff-inc/scribes/extensions"
	"github.com/wierd-stuff-inc/scribes/internal/html"
	"github.com/wierd-stuff-inc/scribes/internal/logging"
	"github.com/wierd-stuff-inc/scribes/internal/plugin"
	"github.com/wierd-stuff-inc/scribes/util"
)

// PagesDir is the directory below the output root that holds rendered pages.
const PagesDir = "pages"

// Fetcher resolves a remote plugin reference to a directory on disk.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

type Options struct {
	BookDir      string
	OutputDir    string
	TemplatesDir string

	Registry *plugin.Registry
	Fetcher  Fetcher

	HighlightStyle string
	LineNumbers    bool

	Log logging.Logger
}

// Renderer turns book pages into HTML documents. One page is converted at a
// time: plugins mutate the shared rule set and write into the shared output tree.
type Renderer struct {
	mu sync.Mutex

	bookDir      string
	outputDir    string
	templatesDir string
	registry     *plugin.Registry
	fetcher      Fetcher
	style        string
	lineNumbers  bool
	log          logging.Logger

	baseScripts []string
	baseStyles  []string
}

func NewRenderer(opts Options) *Renderer {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Renderer{
		bookDir:      opts.BookDir,
		outputDir:    opts.OutputDir,
		templatesDir: opts.TemplatesDir,
		registry:     opts.Registry,
		fetcher:      opts.Fetcher,
		style:        opts.HighlightStyle,
		lineNumbers:  opts.LineNumbers,
		log:          log,
	}
}

func (r *Renderer) BookDir() string {
	return r.bookDir
}

func (r *Renderer) OutputDir() string {
	return r.outputDir
}

// Page describes a rendered page.
type Page struct {
	Name    string
	Title   string
	Output  string
	Scripts []string
	Styles  []string
}

// RenderContext is the state of a single page render. It receives the page's
// @import directives.
type RenderContext struct {
	ctx      context.Context
	Page     string
	Links    *plugin.AssetLinks
	registry *plugin.Registry
	fetcher  Fetcher
}

func (r *Renderer) newContext(ctx context.Context, page string) *RenderContext {
	return &RenderContext{
		ctx:      ctx,
		Page:     page,
		Links:    plugin.NewAssetLinks(),
		registry: r.registry,
		fetcher:  r.fetcher,
	}
}

func (rc *RenderContext) ImportLocal(name string) error {
	return rc.registry.RegisterLocal(rc.ctx, rc.Links, name)
}

// ImportRemote fetches ref and registers the directory it resolved to.
func (rc *RenderContext) ImportRemote(ref string) error {
	if rc.fetcher == nil {
		return fmt.Errorf("remote import of %s: no fetcher configured", ref)
	}
	dir, err := rc.fetcher.Fetch(rc.ctx, ref)
	if err != nil {
		return err
	}
	return rc.registry.Register(rc.ctx, rc.Links, filepath.Dir(dir), filepath.Base(dir))
}

// RenderPage converts one markdown file into <output>/pages/<name>.html. The
// previous output is left alone when any step fails.
func (r *Renderer) RenderPage(ctx context.Context, filename string) (Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := util.PageName(filename)
	defer util.Timer("rendered "+name, r.log.Debug)()
	r.log.Info("generating page", "page", name, "file", filename)

	src, err := os.ReadFile(filename)
	if err != nil {
		return Page{}, err
	}
	rc := r.newContext(ctx, name)
	stripped, err := StripImports(string(src), rc)
	if err != nil {
		return Page{}, fmt.Errorf("%s: %w", filename, err)
	}
	converted, err := r.convert([]byte(stripped))
	if err != nil {
		return Page{}, fmt.Errorf("%s: %w", filename, err)
	}

	page := Page{
		Name:    name,
		Title:   converted.title,
		Output:  filepath.Join(r.outputDir, PagesDir, name+".html"),
		Scripts: util.ConcatUnique(r.baseScripts, rc.Links.Scripts()),
		Styles:  util.ConcatUnique(r.baseStyles, rc.Links.Styles()),
	}
	if page.Title == "" {
		page.Title = name
	}
	doc := buildPage(page, converted)
	if err := os.MkdirAll(filepath.Dir(page.Output), 0o755); err != nil {
		return Page{}, err
	}
	if err := util.WriteFileAtomic(page.Output, doc.Bytes(), 0o644); err != nil {
		return Page{}, err
	}
	r.log.Info("page generated", "page", name, "output", page.Output)
	return page, nil
}

// RenderBook renders every markdown file in the book directory. A page that
// fails is logged and skipped; the failures are returned joined.
func (r *Renderer) RenderBook(ctx context.Context) ([]Page, error) {
	entries, err := os.ReadDir(r.bookDir)
	if err != nil {
		return nil, err
	}
	var pages []Page
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !util.IsPageSource(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		page, err := r.RenderPage(ctx, filepath.Join(r.bookDir, entry.Name()))
		if err != nil {
			r.log.Error("cannot render page", "page", entry.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		pages = append(pages, page)
	}
	return pages, errors.Join(errs...)
}

// Pages lists the names of the pages rendered so far.
func (r *Renderer) Pages() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.outputDir, PagesDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), ".html") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".html"))
		}
	}
	sort.Strings(names)
	return names, nil
}

type conversion struct {
	body  []byte
	toc   *html.HTMLElement
	title string
	h1    *html.HTMLElement
}

// newMarkdown builds a converter from the rules installed so far. goldmark
// parsers cannot take new inline parsers once used, so each render gets its own.
func (r *Renderer) newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			r.registry.Rules().Extender(),
			extensions.LinkRewrite(),
			extensions.AlertExtension(),
			extensions.EmbedMedia(),
			meta.Meta,
			extension.GFM,
			extension.Footnote,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithLineNumbers(r.lineNumbers),
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithXHTML(),
			gmhtml.WithUnsafe(),
		),
	)
}

func (r *Renderer) convert(text []byte) (conversion, error) {
	md := r.newMarkdown()
	pc := parser.NewContext()
	doc := md.Parser().Parse(gmText.NewReader(text), parser.WithContext(pc))
	if err := extensions.MatchError(pc); err != nil {
		return conversion{}, err
	}

	var out conversion
	tree, err := toc.Inspect(doc, text, toc.MinDepth(1), toc.MaxDepth(5), toc.Compact(true))
	if err != nil {
		r.log.Warn("cannot build table of contents", "error", err)
	} else {
		out.toc = html.TableOfContents(tree)
	}

	if title, ok := meta.Get(pc)["title"].(string); ok {
		out.title = title
	}
	if h1 := firstHeading(doc); h1 != nil {
		heading := string(h1.Text(text))
		if out.title == "" {
			out.title = heading
		}
		out.h1 = html.NewHTMLElement("h1", html.ID("title"))
		out.h1.AppendText(heading)
		doc.RemoveChild(doc, h1)
	}

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, text, doc); err != nil {
		return conversion{}, err
	}
	out.body = buf.Bytes()
	return out, nil
}

func firstHeading(doc ast.Node) *ast.Heading {
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			return h
		}
	}
	return nil
}

func buildPage(page Page, c conversion) bytes.Buffer {
	body := html.NewHTMLElement("body")
	body.Append(c.toc)
	article := body.AppendNew("article")
	if c.h1 != nil {
		article.AppendNew("header").Append(c.h1)
	}
	article.AppendRaw(string(c.body)).NoIndent()
	return html.BuildDocument(body, html.HeadData{
		Title:   page.Title,
		Styles:  page.Styles,
		Scripts: page.Scripts,
	})
}
