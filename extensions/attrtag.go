package extensions

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"regexp/syntax"
	"slices"
	"sort"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// DefaultTag is the element emitted by a pattern that does not name one.
const DefaultTag = "canvas"

var (
	// ErrNoTrigger is returned for an expression that does not start with a
	// literal character and has no explicit trigger.
	ErrNoTrigger = errors.New("pattern has no leading literal to trigger on")
	// ErrInvalidPattern covers bad names, expressions, tags and attribute names.
	ErrInvalidPattern = errors.New("invalid pattern")
)

var (
	nameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:-]*$`)
	tagRegex  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
)

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

type patternConfig struct {
	tag      string
	attrs    map[string]string
	text     string
	triggers []byte
}

// PatternOption configures an AttrTagPattern.
type PatternOption func(*patternConfig)

// WithTag sets the element name. An empty tag emits only the inner text, which
// is how a plugin swallows a directive without leaving markup behind.
func WithTag(tag string) PatternOption {
	return func(c *patternConfig) {
		c.tag = tag
	}
}

// WithAttrs sets the attribute template. Values may contain $N placeholders.
func WithAttrs(attrs map[string]string) PatternOption {
	return func(c *patternConfig) {
		for k, v := range attrs {
			c.attrs[k] = v
		}
	}
}

// WithText sets the inner text of the element. It may contain $N placeholders.
func WithText(s string) PatternOption {
	return func(c *patternConfig) {
		c.text = s
	}
}

// WithTrigger overrides the characters that make goldmark try the pattern.
func WithTrigger(triggers ...byte) PatternOption {
	return func(c *patternConfig) {
		c.triggers = append(c.triggers, triggers...)
	}
}

// AttrTagPattern turns inline text matching an expression into a single HTML
// element whose attributes are filled from the capture groups.
type AttrTagPattern struct {
	name     string
	expr     string
	re       *regexp.Regexp
	tag      string
	attrs    map[string]Template
	text     Template
	triggers []byte

	// lineStart is set for expressions starting with ^, which only match at
	// the start of a line.
	lineStart bool
}

// NewAttrTagPattern compiles a pattern. The expression is anchored at the
// position goldmark is currently parsing.
func NewAttrTagPattern(name, expr string, opts ...PatternOption) (*AttrTagPattern, error) {
	cfg := patternConfig{
		tag:   DefaultTag,
		attrs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !nameRegex.MatchString(name) {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidPattern, name)
	}
	if cfg.tag != "" && !tagRegex.MatchString(cfg.tag) {
		return nil, fmt.Errorf("%w: %s: tag %q", ErrInvalidPattern, name, cfg.tag)
	}
	re, err := regexp.Compile(`^(?:` + expr + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPattern, name, err)
	}
	triggers := cfg.triggers
	if len(triggers) == 0 {
		var ok bool
		triggers, ok = leadingBytes(expr)
		if !ok {
			return nil, fmt.Errorf("%w: %s: %q", ErrNoTrigger, name, expr)
		}
	}
	p := &AttrTagPattern{
		name:      name,
		expr:      expr,
		re:        re,
		tag:       cfg.tag,
		attrs:     make(map[string]Template, len(cfg.attrs)),
		text:      ParseTemplate(cfg.text),
		triggers:  dedupe(triggers),
		lineStart: anchoredAtLineStart(expr),
	}
	for k, v := range cfg.attrs {
		if !tagRegex.MatchString(k) {
			return nil, fmt.Errorf("%w: %s: attribute name %q", ErrInvalidPattern, name, k)
		}
		p.attrs[k] = ParseTemplate(v)
	}
	return p, nil
}

func (p *AttrTagPattern) Name() string {
	return p.name
}

func (p *AttrTagPattern) Expr() string {
	return p.expr
}

func (p *AttrTagPattern) Tag() string {
	return p.tag
}

func (p *AttrTagPattern) Triggers() []byte {
	return slices.Clone(p.triggers)
}

// TryMatch matches the pattern against the start of source. It returns a nil
// node when nothing matched, otherwise the element and the number of bytes it
// consumed.
func (p *AttrTagPattern) TryMatch(source []byte) (*AttrTagNode, int, error) {
	loc := p.re.FindSubmatchIndex(source)
	if loc == nil || loc[1] == 0 {
		return nil, 0, nil
	}
	groups := NewCaptureGroups(source, loc)
	values, err := SubstituteAll(p.attrs, groups)
	if err != nil {
		return nil, 0, fmt.Errorf("pattern %s: %w", p.name, err)
	}
	inner, err := p.text.Execute(groups)
	if err != nil {
		return nil, 0, fmt.Errorf("pattern %s: text: %w", p.name, err)
	}
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	attrs := make([]Attribute, len(names))
	for i, k := range names {
		attrs[i] = Attribute{Name: k, Value: values[k]}
	}
	return NewAttrTagNode(p.name, p.tag, attrs, inner), loc[1], nil
}

// leadingBytes finds the bytes any match of expr has to start with.
func leadingBytes(expr string) ([]byte, bool) {
	re, err := syntax.Parse(expr, syntax.Perl)
	if err != nil {
		return nil, false
	}
	return firstBytes(re.Simplify())
}

func firstBytes(re *syntax.Regexp) ([]byte, bool) {
	switch re.Op {
	case syntax.OpLiteral:
		if len(re.Rune) == 0 {
			return nil, false
		}
		return runeBytes(re.Rune[0], re.Flags&syntax.FoldCase != 0), true
	case syntax.OpCharClass:
		var out []byte
		for i := 0; i+1 < len(re.Rune); i += 2 {
			lo, hi := re.Rune[i], re.Rune[i+1]
			if hi >= utf8.RuneSelf || hi-lo > 16 {
				return nil, false
			}
			for r := lo; r <= hi; r++ {
				out = append(out, byte(r))
			}
		}
		return out, len(out) > 0
	case syntax.OpCapture, syntax.OpPlus:
		return firstBytes(re.Sub[0])
	case syntax.OpRepeat:
		if re.Min < 1 {
			return nil, false
		}
		return firstBytes(re.Sub[0])
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			switch sub.Op {
			case syntax.OpBeginLine, syntax.OpBeginText, syntax.OpEmptyMatch:
				continue
			}
			return firstBytes(sub)
		}
	case syntax.OpAlternate:
		var out []byte
		for _, sub := range re.Sub {
			b, ok := firstBytes(sub)
			if !ok {
				return nil, false
			}
			out = append(out, b...)
		}
		return out, true
	}
	return nil, false
}

// anchoredAtLineStart reports whether expr begins with ^.
func anchoredAtLineStart(expr string) bool {
	re, err := syntax.Parse(expr, syntax.Perl)
	if err != nil {
		return false
	}
	re = re.Simplify()
	for {
		switch re.Op {
		case syntax.OpBeginLine, syntax.OpBeginText:
			return true
		case syntax.OpCapture, syntax.OpConcat:
			if len(re.Sub) == 0 {
				return false
			}
			re = re.Sub[0]
		default:
			return false
		}
	}
}

func runeBytes(r rune, fold bool) []byte {
	if r >= utf8.RuneSelf {
		return utf8.AppendRune(nil, r)[:1]
	}
	if fold && unicode.IsLetter(r) {
		return []byte{byte(unicode.ToLower(r)), byte(unicode.ToUpper(r))}
	}
	return []byte{byte(r)}
}

func dedupe(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if bytes.IndexByte(out, c) < 0 {
			out = append(out, c)
		}
	}
	return out
}

// Attribute is a resolved attribute of an AttrTagNode.
type Attribute struct {
	Name  string
	Value string
}

// AttrTagNode is the inline node produced by an AttrTagPattern.
type AttrTagNode struct {
	ast.BaseInline
	Rule  string
	Tag   string
	Attrs []Attribute
	Inner string
}

var KindAttrTag = ast.NewNodeKind("AttrTag")

func (n *AttrTagNode) Kind() ast.NodeKind {
	return KindAttrTag
}

// Dump implements Node.Dump.
func (n *AttrTagNode) Dump(source []byte, level int) {
	kv := map[string]string{"Rule": n.Rule, "Tag": n.Tag, "Inner": n.Inner}
	for _, a := range n.Attrs {
		kv["@"+a.Name] = a.Value
	}
	ast.DumpHelper(n, source, level, kv, nil)
}

func NewAttrTagNode(rule, tag string, attrs []Attribute, inner string) *AttrTagNode {
	return &AttrTagNode{
		Rule:  rule,
		Tag:   tag,
		Attrs: attrs,
		Inner: inner,
	}
}

// Attr returns the value of the named attribute.
func (n *AttrTagNode) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

var contextKeyMatchError = parser.NewContextKey()

// MatchError returns the first error a pattern hit while parsing with pc.
// goldmark inline parsers cannot fail, so the error rides on the context.
func MatchError(pc parser.Context) error {
	if err, ok := pc.Get(contextKeyMatchError).(error); ok {
		return err
	}
	return nil
}

type attrTagParser struct {
	rules    []*AttrTagPattern
	triggers []byte
}

func newAttrTagParser(rules []*AttrTagPattern) *attrTagParser {
	var triggers []byte
	for _, rule := range rules {
		triggers = append(triggers, rule.triggers...)
	}
	return &attrTagParser{
		rules:    rules,
		triggers: dedupe(triggers),
	}
}

func (p *attrTagParser) Trigger() []byte {
	return p.triggers
}

func (p *attrTagParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, seg := block.PeekLine()
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return nil
	}
	lineStart := atLineStart(parent, seg.Start)
	for _, rule := range p.rules {
		if bytes.IndexByte(rule.triggers, line[0]) < 0 {
			continue
		}
		if rule.lineStart && !lineStart {
			continue
		}
		node, consumed, err := rule.TryMatch(line)
		if err != nil {
			if pc.Get(contextKeyMatchError) == nil {
				pc.Set(contextKeyMatchError, err)
			}
			return nil
		}
		if node == nil {
			continue
		}
		block.Advance(consumed)
		return node
	}
	return nil
}

// atLineStart reports whether pos is where one of the lines of parent begins.
func atLineStart(parent ast.Node, pos int) bool {
	if parent == nil || parent.Type() != ast.TypeBlock {
		return false
	}
	lines := parent.Lines()
	for i := 0; i < lines.Len(); i++ {
		if lines.At(i).Start == pos {
			return true
		}
	}
	return false
}

// AttrTagHTMLRenderer renders AttrTagNodes.
type AttrTagHTMLRenderer struct{}

func NewAttrTagHTMLRenderer() renderer.NodeRenderer {
	return &AttrTagHTMLRenderer{}
}

func (r *AttrTagHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindAttrTag, r.renderAttrTag)
}

func (r *AttrTagHTMLRenderer) renderAttrTag(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n, ok := node.(*AttrTagNode)
	if !ok || !entering {
		return ast.WalkContinue, nil
	}
	if n.Tag == "" {
		_, _ = w.Write(util.EscapeHTML([]byte(n.Inner)))
		return ast.WalkSkipChildren, nil
	}
	_ = w.WriteByte('<')
	_, _ = w.WriteString(n.Tag)
	for _, attr := range n.Attrs {
		_ = w.WriteByte(' ')
		_, _ = w.WriteString(attr.Name)
		_, _ = w.WriteString(`="`)
		_, _ = w.Write(util.EscapeHTML([]byte(attr.Value)))
		_ = w.WriteByte('"')
	}
	if voidTags[n.Tag] {
		_, _ = w.WriteString(" />")
		return ast.WalkSkipChildren, nil
	}
	_ = w.WriteByte('>')
	_, _ = w.Write(util.EscapeHTML([]byte(n.Inner)))
	_, _ = w.WriteString("</")
	_, _ = w.WriteString(n.Tag)
	_ = w.WriteByte('>')
	return ast.WalkSkipChildren, nil
}

// RuleSet is the ordered collection of plugin patterns known to the process.
// It only grows. The most recently installed pattern is tried first.
type RuleSet struct {
	mu    sync.RWMutex
	rules []*AttrTagPattern
	names map[string]struct{}
}

func NewRuleSet() *RuleSet {
	return &RuleSet{
		names: make(map[string]struct{}),
	}
}

// Install puts p at the front of the rule chain. A pattern whose name is
// already installed is ignored and Install returns false.
func (s *RuleSet) Install(p *AttrTagPattern) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[p.name]; ok {
		return false
	}
	s.names[p.name] = struct{}{}
	s.rules = slices.Insert(s.rules, 0, p)
	return true
}

func (s *RuleSet) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[name]
	return ok
}

func (s *RuleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Rules returns a snapshot of the rule chain, front first.
func (s *RuleSet) Rules() []*AttrTagPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rules)
}

// Extender builds a goldmark extension from the rules installed so far.
func (s *RuleSet) Extender() goldmark.Extender {
	return AttrTags(s.Rules()...)
}

type attrTags struct {
	rules []*AttrTagPattern
}

func (e *attrTags) Extend(m goldmark.Markdown) {
	if len(e.rules) == 0 {
		return
	}
	m.Parser().AddOptions(
		parser.WithInlineParsers(
			util.Prioritized(newAttrTagParser(e.rules), priorityAttrTagParser),
		),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(NewAttrTagHTMLRenderer(), priorityAttrTagHTMLRenderer),
		),
	)
}

// AttrTags returns an extension recognising the given patterns, tried in order.
func AttrTags(rules ...*AttrTagPattern) goldmark.Extender {
	return &attrTags{rules}
}
