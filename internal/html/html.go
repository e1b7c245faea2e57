///////////////////////////////////////////////////////////////////////////////////////////////////
//                                                                                               //
//                              Copyright (C) 2024  Wyatt Sheffield                              //
//                                                                                               //
//                 This program is free software: you can redistribute it and/or                 //
//                 modify it under the terms of the GNU General Public License as                //
//                 published by the Free Software Foundation, either version 3 of                //
//                      the License, or (at your option) any later version.                      //
//                                                                                               //
//                This program is distributed in the hope that it will be useful,                //
//                 but WITHOUT ANY WARRANTY; without even the implied warranty of                //
//                 MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the                 //
//                          GNU General Public License for more details.                         //
//                                                                                               //
//                   You should have received a copy of the GNU General Public                   //
//                         License along with this program.  If not, see                         //
//                                <https://www.gnu.org/licenses/>.                               //
//                                                                                               //
///////////////////////////////////////////////////////////////////////////////////////////////////

package html

import (
	"bytes"
	"html"
	"slices"
	"sort"
	"strings"
)

var voidElements = []string{
	"area",
	"base",
	"br",
	"col",
	"embed",
	"hr",
	"img",
	"input",
	"link",
	"meta",
	"source",
	"track",
	"wbr",
}

type HTMLElement struct {
	Tag        string
	Content    string
	Attributes map[string]string
	Children   []*HTMLElement
	indent     bool
	raw        bool
}

// NewHTMLElement creates an element. Attribute maps given for the same key are
// joined with a space, so Class("a") and Class("b") give class="a b".
func NewHTMLElement(tag string, attr ...map[string]string) *HTMLElement {
	attributes := make(map[string]string)
	for _, attributeList := range attr {
		for key, value := range attributeList {
			if prev, ok := attributes[key]; ok && prev != "" {
				attributes[key] = prev + " " + value
			} else {
				attributes[key] = value
			}
		}
	}
	return &HTMLElement{
		Tag:        tag,
		Attributes: attributes,
		indent:     true,
	}
}

// NoIndent writes a text node verbatim, without leading indentation. Use it
// for preformatted markup such as converted markdown.
func (e *HTMLElement) NoIndent() *HTMLElement {
	e.indent = false
	return e
}

func (e *HTMLElement) Append(elem *HTMLElement) {
	if elem == nil {
		return
	}
	e.Children = append(e.Children, elem)
}

// Convienience function to quickly make a class attribute
func Class(cls string) map[string]string {
	return map[string]string{"class": cls}
}

func ID(id string) map[string]string {
	return map[string]string{"id": id}
}

// Convienience function to quickly make an href attribute
func Href(url string) map[string]string {
	return map[string]string{"href": url}
}

func (e *HTMLElement) AppendNew(tag string, attr ...map[string]string) *HTMLElement {
	elem := NewHTMLElement(tag, attr...)
	e.Children = append(e.Children, elem)
	return elem
}

// AppendText adds escaped text.
func (e *HTMLElement) AppendText(text string) *HTMLElement {
	elem := &HTMLElement{
		Content: html.EscapeString(text),
		indent:  true,
	}
	e.Children = append(e.Children, elem)
	return elem
}

// AppendRaw adds markup that is already HTML.
func (e *HTMLElement) AppendRaw(markup string) *HTMLElement {
	elem := &HTMLElement{
		Content: markup,
		indent:  true,
		raw:     true,
	}
	e.Children = append(e.Children, elem)
	return elem
}

func isShort(elem *HTMLElement) (bool, int) {
	if elem == nil {
		return false, 0
	}
	if len(elem.Children) > 1 {
		return false, 0
	}
	if len(elem.Children) == 0 {
		if elem.Tag == "" {
			return true, len(elem.Content)
		}
		return true, 0
	}
	if elem.Children[0].Tag != "" || elem.Children[0].raw {
		return false, 0
	}
	return true, len(elem.Children[0].Content)
}

func indent(out *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		out.WriteString("    ")
	}
}

func openTag(elem *HTMLElement, depth int) []byte {
	var out bytes.Buffer
	indent(&out, depth)
	out.WriteByte('<')
	out.WriteString(elem.Tag)
	keys := make([]string, 0, len(elem.Attributes))
	for key := range elem.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.WriteByte(' ')
		out.WriteString(key)
		if value := elem.Attributes[key]; value != "" {
			out.WriteString(`="`)
			out.WriteString(html.EscapeString(value))
			out.WriteByte('"')
		}
	}
	if slices.Contains(voidElements, elem.Tag) {
		out.WriteString(">\n")
	} else if short, textlen := isShort(elem); short && textlen < 32 {
		out.WriteByte('>')
	} else {
		out.WriteString(">\n")
	}
	return out.Bytes()
}

func closeTag(elem *HTMLElement, depth int) []byte {
	var out bytes.Buffer
	if short, textlen := isShort(elem); !(short && textlen < 32) {
		indent(&out, depth)
	}
	out.WriteString("</")
	out.WriteString(elem.Tag)
	out.WriteString(">\n")
	return out.Bytes()
}

// RenderHTML writes root and its children to text, indenting four spaces per level.
func RenderHTML(root *HTMLElement, text *bytes.Buffer, opts ...int) {
	if root == nil {
		return
	}
	var depth int
	var siblings int
	if len(opts) > 0 {
		depth = opts[0]
	}
	if len(opts) > 1 {
		siblings = opts[1]
	}
	if root.Tag == "" {
		if !root.indent {
			text.WriteString(root.Content)
			if !strings.HasSuffix(root.Content, "\n") {
				text.WriteByte('\n')
			}
			return
		}
		lines := strings.Split(root.Content, "\n")
		for _, line := range lines {
			if short, textlen := isShort(root); !short || textlen >= 32 || len(lines) > 1 || siblings > 1 {
				indent(text, depth)
				text.WriteString(line)
				text.WriteByte('\n')
			} else {
				text.WriteString(strings.TrimSpace(line))
			}
		}
		return
	}
	text.Write(openTag(root, depth))
	for _, elem := range root.Children {
		RenderHTML(elem, text, depth+1, len(root.Children))
	}
	// void elements should not have a closing tag!
	if !slices.Contains(voidElements, root.Tag) {
		text.Write(closeTag(root, depth))
	}
}
