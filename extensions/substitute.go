package extensions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPlaceholder is returned when a template references a capture group
// that the match does not have.
var ErrInvalidPlaceholder = errors.New("invalid placeholder")

// CaptureGroups holds the text of a single match. Index 0 is the whole match,
// index N the N-th capture group. Groups that did not participate are empty.
type CaptureGroups []string

// NewCaptureGroups builds the groups of a match from the index pairs returned
// by regexp's FindSubmatchIndex.
func NewCaptureGroups(source []byte, loc []int) CaptureGroups {
	groups := make(CaptureGroups, len(loc)/2)
	for i := range groups {
		start, stop := loc[2*i], loc[2*i+1]
		if start < 0 || stop < 0 {
			continue
		}
		groups[i] = string(source[start:stop])
	}
	return groups
}

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenGroup
)

type token struct {
	kind    tokenKind
	literal string
	group   int
}

// Template is a tokenized attribute value: a sequence of literal segments and
// $N group references.
type Template struct {
	raw    string
	tokens []token
}

// ParseTemplate splits s into literal and group reference tokens. A '$'
// followed by one or more digits is a reference (the longest run of digits is
// taken); any other '$' is literal text.
func ParseTemplate(s string) Template {
	t := Template{raw: s}
	var literal strings.Builder
	flush := func() {
		if literal.Len() > 0 {
			t.tokens = append(t.tokens, token{kind: tokenLiteral, literal: literal.String()})
			literal.Reset()
		}
	}
	i := 0
	for i < len(s) {
		if s[i] != '$' {
			literal.WriteByte(s[i])
			i++
			continue
		}
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j == i+1 {
			literal.WriteByte('$')
			i++
			continue
		}
		n, err := strconv.Atoi(s[i+1 : j])
		if err != nil {
			// too many digits to be an index; it can never resolve
			n = -1
		}
		flush()
		t.tokens = append(t.tokens, token{kind: tokenGroup, group: n, literal: s[i:j]})
		i = j
	}
	flush()
	return t
}

func (t Template) String() string {
	return t.raw
}

// IsLiteral reports whether the template contains no group references.
func (t Template) IsLiteral() bool {
	for _, tok := range t.tokens {
		if tok.kind == tokenGroup {
			return false
		}
	}
	return true
}

// Execute resolves every group reference against groups.
func (t Template) Execute(groups CaptureGroups) (string, error) {
	var out strings.Builder
	for _, tok := range t.tokens {
		switch tok.kind {
		case tokenLiteral:
			out.WriteString(tok.literal)
		case tokenGroup:
			if tok.group < 1 || tok.group >= len(groups) {
				return "", fmt.Errorf("%w: %s in %q (match has %d groups)",
					ErrInvalidPlaceholder, tok.literal, t.raw, max(len(groups)-1, 0))
			}
			out.WriteString(groups[tok.group])
		}
	}
	return out.String(), nil
}

// Substitute replaces every $N placeholder in template with the N-th captured
// group.
func Substitute(template string, groups CaptureGroups) (string, error) {
	return ParseTemplate(template).Execute(groups)
}

// SubstituteAll resolves every value of an attribute template. The input map is
// left untouched.
func SubstituteAll(attrs map[string]Template, groups CaptureGroups) (map[string]string, error) {
	out := make(map[string]string, len(attrs))
	for name, tmpl := range attrs {
		value, err := tmpl.Execute(groups)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}
