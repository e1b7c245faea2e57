package extensions

import (
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

type mediaType int

const (
	mediaVideo mediaType = iota
	mediaAudio
)

var mediaExtensions = map[string]mediaType{
	"webm": mediaVideo,
	"mp4":  mediaVideo,
	"mkv":  mediaVideo,
	"ogv":  mediaVideo,
	"mp3":  mediaAudio,
	"ogg":  mediaAudio,
	"wav":  mediaAudio,
	"flac": mediaAudio,
}

type media struct {
	ast.BaseBlock
	ext         string
	destination []byte
	medium      mediaType
}

var KindMedia = ast.NewNodeKind("Media")

func (n *media) Kind() ast.NodeKind {
	return KindMedia
}

// Dump implements Node.Dump.
func (n *media) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Destination": string(n.destination)}, nil)
}

func NewMedia(ext string, destination []byte, t mediaType) *media {
	return &media{
		ext:         ext,
		destination: destination,
		medium:      t,
	}
}

type mediaTransformer struct{}

// Transform replaces images that point at audio or video files with media
// nodes. A media node that is alone in its paragraph replaces the paragraph.
func (r mediaTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	var found []*media
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		img, ok := n.(*ast.Image)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(string(img.Destination)), "."))
		flavor, ok := mediaExtensions[ext]
		if !ok {
			return ast.WalkContinue, nil
		}
		m := NewMedia(ext, img.Destination, flavor)
		n.Parent().ReplaceChild(n.Parent(), n, m)
		found = append(found, m)
		return ast.WalkSkipChildren, nil
	})
	for _, m := range found {
		para := m.Parent()
		if para != nil && para.Kind() == ast.KindParagraph && para.ChildCount() == 1 {
			para.Parent().ReplaceChild(para.Parent(), para, m)
		}
	}
}

// MediaHTMLRenderer is a renderer for video and audio nodes.
type MediaHTMLRenderer struct{}

func NewMediaHTMLRenderer() renderer.NodeRenderer {
	return &MediaHTMLRenderer{}
}

// RegisterFuncs registers the renderer with the Goldmark renderer.
func (r *MediaHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMedia, r.renderMedia)
}

func (r *MediaHTMLRenderer) renderMedia(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n, ok := node.(*media)
	if !ok || !entering {
		return ast.WalkContinue, nil
	}

	var tagOpen, tagClose, mime string
	switch n.medium {
	case mediaVideo:
		tagOpen = `<video controls loop muted>`
		tagClose = `</video>`
		mime = "video/" + n.ext
	case mediaAudio:
		tagOpen = `<audio controls>`
		tagClose = `</audio>`
		mime = "audio/" + n.ext
	}

	_, _ = w.WriteString(tagOpen)
	_, _ = w.WriteString(`<source src="`)
	_, _ = w.Write(util.EscapeHTML(util.URLEscape(n.destination, true)))
	_, _ = w.WriteString(`" type="`)
	_, _ = w.WriteString(mime)
	_, _ = w.WriteString(`" />`)
	_, _ = w.WriteString(tagClose)
	return ast.WalkSkipChildren, nil
}

type mediaEmbed struct{}

func (e *mediaEmbed) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithASTTransformers(
			util.Prioritized(mediaTransformer{}, priorityMediaTransformer),
		),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(NewMediaHTMLRenderer(), priorityMediaHTMLRenderer),
		),
	)
}

// EmbedMedia turns ![](clip.mp4) and ![](song.ogg) into <video> and <audio> players.
func EmbedMedia() goldmark.Extender {
	return &mediaEmbed{}
}
