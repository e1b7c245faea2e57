package extensions

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

func drawFunc(t *testing.T) *AttrTagPattern {
	t.Helper()
	p, err := NewAttrTagPattern("draw_func", `(@draw_func) (\d*) (\d*) (.*)`,
		WithAttrs(map[string]string{
			"class":    "func_plugin",
			"width":    "$2",
			"height":   "$3",
			"function": "$4",
		}),
	)
	require.NoError(t, err)
	return p
}

func convert(t *testing.T, src string, rules ...*AttrTagPattern) string {
	t.Helper()
	md := goldmark.New(goldmark.WithExtensions(AttrTags(rules...)))
	var buf bytes.Buffer
	require.NoError(t, md.Convert([]byte(src), &buf))
	return buf.String()
}

func TestAttrTagPattern_TryMatch(t *testing.T) {
	p := drawFunc(t)

	node, consumed, err := p.TryMatch([]byte("@draw_func 100 150 sin(x)"))
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, len("@draw_func 100 150 sin(x)"), consumed)
	assert.Equal(t, "canvas", node.Tag)
	assert.Equal(t, "draw_func", node.Rule)
	assert.Equal(t, []Attribute{
		{Name: "class", Value: "func_plugin"},
		{Name: "function", Value: "sin(x)"},
		{Name: "height", Value: "150"},
		{Name: "width", Value: "100"},
	}, node.Attrs)

	width, ok := node.Attr("width")
	assert.True(t, ok)
	assert.Equal(t, "100", width)
}

func TestAttrTagPattern_TryMatchIsAnchored(t *testing.T) {
	p := drawFunc(t)

	node, consumed, err := p.TryMatch([]byte("see @draw_func 1 2 x"))
	require.NoError(t, err)
	assert.Nil(t, node)
	assert.Zero(t, consumed)
}

func TestAttrTagPattern_Text(t *testing.T) {
	p, err := NewAttrTagPattern("shout", `@shout (\w+)`, WithTag("strong"), WithText("$1!"))
	require.NoError(t, err)

	node, _, err := p.TryMatch([]byte("@shout hello"))
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "hello!", node.Inner)
	assert.Empty(t, node.Attrs)
}

func TestAttrTagPattern_PlaceholderError(t *testing.T) {
	p, err := NewAttrTagPattern("bad", `(@bad)`, WithAttrs(map[string]string{"x": "$5"}))
	require.NoError(t, err)

	_, _, err = p.TryMatch([]byte("@bad"))
	assert.ErrorIs(t, err, ErrInvalidPlaceholder)
}

func TestNewAttrTagPattern_Triggers(t *testing.T) {
	tests := []struct {
		expr string
		want []byte
	}{
		{`(@draw_func) (\d*)`, []byte{'@'}},
		{`^@style bulma`, []byte{'@'}},
		{`(?i)note:`, []byte{'n', 'N'}},
		{`[xy]z`, []byte{'x', 'y'}},
		{`(?:%%|@@)`, []byte{'%', '@'}},
		{`\d+ apples`, []byte("0123456789")},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := NewAttrTagPattern("p", tt.expr)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, p.Triggers())
		})
	}
}

func TestNewAttrTagPattern_Rejects(t *testing.T) {
	_, err := NewAttrTagPattern("p", `.*foo`)
	assert.ErrorIs(t, err, ErrNoTrigger)

	_, err = NewAttrTagPattern("p", `(@unclosed`)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewAttrTagPattern("has space", `@x`)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewAttrTagPattern("p", `@x`, WithTag("<script>"))
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewAttrTagPattern("p", `@x`, WithAttrs(map[string]string{`on"click`: "x"}))
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestNewAttrTagPattern_ExplicitTrigger(t *testing.T) {
	p, err := NewAttrTagPattern("digits", `\w+@`, WithTrigger('a', 'b'))
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b'}, p.Triggers())
}

func TestAttrTags_Convert(t *testing.T) {
	got := convert(t, "@draw_func 100 150 sin(x)\n", drawFunc(t))

	assert.Equal(t,
		`<p><canvas class="func_plugin" function="sin(x)" height="150" width="100"></canvas></p>`+"\n",
		got)
}

func TestAttrTags_ConvertMidParagraph(t *testing.T) {
	p, err := NewAttrTagPattern("line", `(@line) ([a-zA-Z/]*)`,
		WithAttrs(map[string]string{"id": "$2", "width": "100", "height": "150"}))
	require.NoError(t, err)

	got := convert(t, "a chart @line up/down here\n", p)

	assert.Equal(t, `<p>a chart <canvas height="150" id="up/down" width="100"></canvas> here</p>`+"\n", got)
}

func TestAttrTags_EscapesValues(t *testing.T) {
	p, err := NewAttrTagPattern("say", `@say (.*)`, WithTag("span"), WithAttrs(map[string]string{"title": "$1"}), WithText("$1"))
	require.NoError(t, err)

	got := convert(t, `@say "<b>&"`+"\n", p)

	assert.Equal(t, `<p><span title="&quot;&lt;b&gt;&amp;&quot;">&quot;&lt;b&gt;&amp;&quot;</span></p>`+"\n", got)
}

func TestAttrTags_EmptyTagSwallowsDirective(t *testing.T) {
	p, err := NewAttrTagPattern("bulma_styles", `^@style bulma`, WithTag(""))
	require.NoError(t, err)

	got := convert(t, "@style bulma\n", p)

	assert.Equal(t, "<p></p>\n", got)
}

func TestAttrTags_CaretOnlyMatchesAtLineStart(t *testing.T) {
	p, err := NewAttrTagPattern("bulma_styles", `^@style bulma`, WithTag(""))
	require.NoError(t, err)

	tests := []struct {
		src  string
		want string
	}{
		{"@style bulma\n", "<p></p>\n"},
		{"text @style bulma\n", "<p>text @style bulma</p>\n"},
		{"first line\n@style bulma\n", "<p>first line\n</p>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, convert(t, tt.src, p))
		})
	}
}

func TestAttrTags_UnanchoredMatchesMidLine(t *testing.T) {
	p, err := NewAttrTagPattern("style", `@style bulma`, WithTag(""))
	require.NoError(t, err)

	assert.Equal(t, "<p>text </p>\n", convert(t, "text @style bulma\n", p))
}

func TestAttrTags_VoidTag(t *testing.T) {
	p, err := NewAttrTagPattern("pic", `@pic (\S+)`, WithTag("img"), WithAttrs(map[string]string{"src": "$1"}))
	require.NoError(t, err)

	got := convert(t, "@pic /a.png\n", p)

	assert.Equal(t, `<p><img src="/a.png" /></p>`+"\n", got)
}

func TestAttrTags_WinsOverCodeSpan(t *testing.T) {
	p, err := NewAttrTagPattern("tick", "`tick`", WithTag("kbd"), WithText("tick"))
	require.NoError(t, err)

	got := convert(t, "press `tick`\n", p)

	assert.Equal(t, "<p>press <kbd>tick</kbd></p>\n", got)
}

func TestAttrTags_NoRulesIsPlainMarkdown(t *testing.T) {
	assert.Equal(t, "<p>@draw_func 1 2 x</p>\n", convert(t, "@draw_func 1 2 x\n"))
}

func TestMatchError(t *testing.T) {
	p, err := NewAttrTagPattern("bad", `(@bad)`, WithAttrs(map[string]string{"x": "$5"}))
	require.NoError(t, err)
	md := goldmark.New(goldmark.WithExtensions(AttrTags(p)))

	pc := parser.NewContext()
	md.Parser().Parse(text.NewReader([]byte("@bad\n")), parser.WithContext(pc))

	assert.ErrorIs(t, MatchError(pc), ErrInvalidPlaceholder)
	assert.NoError(t, MatchError(parser.NewContext()))
}

func TestRuleSet(t *testing.T) {
	rules := NewRuleSet()
	first, err := NewAttrTagPattern("first", `@x`, WithTag("b"))
	require.NoError(t, err)
	second, err := NewAttrTagPattern("second", `@x`, WithTag("i"))
	require.NoError(t, err)
	again, err := NewAttrTagPattern("first", `@y`)
	require.NoError(t, err)

	assert.True(t, rules.Install(first))
	assert.True(t, rules.Install(second))
	assert.False(t, rules.Install(again), "names are unique")

	assert.Equal(t, 2, rules.Len())
	assert.True(t, rules.Has("first"))
	assert.False(t, rules.Has("third"))
	assert.Equal(t, []*AttrTagPattern{second, first}, rules.Rules())

	md := goldmark.New(goldmark.WithExtensions(rules.Extender()))
	var buf bytes.Buffer
	require.NoError(t, md.Convert([]byte("@x\n"), &buf))
	assert.Equal(t, "<p><i></i></p>\n", buf.String(), "the newest rule is tried first")
}
