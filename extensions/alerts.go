package extensions

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// alertClasses maps the flag of a GitHub style alert to the classes of its blockquote.
var alertClasses = map[string]string{
	"NOTE":      "alert alert-note",
	"TIP":       "alert alert-tip",
	"IMPORTANT": "alert alert-important",
	"WARNING":   "alert alert-warning",
	"CAUTION":   "alert alert-caution",
}

type alertParser struct{}

func (p *alertParser) Trigger() []byte {
	return []byte{'['}
}

func newAlertParser() *alertParser {
	return &alertParser{}
}

type alertFlagNode struct {
	ast.BaseInline
	flag string
}

var KindAlertFlag = ast.NewNodeKind("AlertFlag")

func (n *alertFlagNode) Kind() ast.NodeKind {
	return KindAlertFlag
}

// Dump implements Node.Dump.
func (n *alertFlagNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Flag": n.flag}, nil)
}

func NewAlertFlag(f string) *alertFlagNode {
	return &alertFlagNode{
		flag: f,
	}
}

// Parse only recognises [!FLAG] as the very first thing in a blockquote.
func (p *alertParser) Parse(parent ast.Node, block text.Reader, _ parser.Context) ast.Node {
	var (
		_open  = []byte("[!")
		_close = []byte("]")
	)
	if _, ok := parent.Parent().(*ast.Blockquote); !ok || parent.Lines().Len() == 0 {
		return nil
	}
	line, seg := block.PeekLine()
	if seg.Start != parent.Lines().At(0).Start {
		return nil
	}
	if !bytes.HasPrefix(line, _open) {
		return nil
	}
	stop := bytes.Index(line, _close)
	if stop < 0 {
		return nil
	}
	alertName := strings.ToUpper(string(line[len(_open):stop]))
	if _, ok := alertClasses[alertName]; !ok {
		return nil
	}
	out := NewAlertFlag(alertName)
	out.AppendChild(out, ast.NewTextSegment(text.NewSegment(seg.Start, seg.Start+stop+len(_close))))
	block.Advance(stop + len(_close))
	return out
}

type alertTransformer struct{}

func (t alertTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		bq, ok := n.(*ast.Blockquote)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		para, ok := bq.FirstChild().(*ast.Paragraph)
		if !ok {
			return ast.WalkContinue, nil
		}
		flag, ok := para.FirstChild().(*alertFlagNode)
		if !ok {
			return ast.WalkContinue, nil
		}
		class := alertClasses[flag.flag]
		if existing, ok := bq.AttributeString("class"); ok {
			if s, ok := existing.(string); ok {
				class = s + " " + class
			}
		}
		bq.SetAttribute([]byte("class"), class)
		para.RemoveChild(para, flag)
		return ast.WalkContinue, nil
	})
}

type alertExtension struct{}

func (e *alertExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithASTTransformers(
			util.Prioritized(alertTransformer{}, priorityAlertTransformer),
		),
		parser.WithInlineParsers(
			util.Prioritized(newAlertParser(), priorityAlertParser),
		),
	)
}

// AlertExtension renders blockquotes opening with [!NOTE], [!TIP],
// [!IMPORTANT], [!WARNING] or [!CAUTION] as classed alert boxes.
func AlertExtension() goldmark.Extender {
	return &alertExtension{}
}
