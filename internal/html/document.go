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

	"go.abhg.dev/goldmark/toc"
)

// HeadData is everything that goes into a page's <head>.
type HeadData struct {
	Title   string
	Meta    []string
	Styles  []string
	Scripts []string
}

func BuildHead(headData HeadData) *HTMLElement {
	head := NewHTMLElement("head")
	head.AppendNew("meta", map[string]string{"charset": "utf-8"})
	head.AppendNew("title").AppendText(headData.Title)
	for _, href := range headData.Styles {
		head.AppendNew("link", map[string]string{"rel": "stylesheet", "href": href})
	}
	for _, src := range headData.Scripts {
		head.AppendNew("script", map[string]string{"src": src})
	}
	for _, meta := range headData.Meta {
		head.AppendRaw(meta)
	}
	return head
}

// BuildDocument renders a complete HTML document.
func BuildDocument(bodyHTML *HTMLElement, headData HeadData) bytes.Buffer {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n")
	document := NewHTMLElement("html")
	document.Append(BuildHead(headData))
	document.Append(bodyHTML)
	RenderHTML(document, &buf)
	return buf
}

func tocRecurse(items toc.Items, parent *HTMLElement) {
	for _, item := range items {
		child := parent.AppendNew("li")
		if len(item.ID) > 0 {
			child.AppendNew("a", Href("#"+string(item.ID))).AppendText(string(item.Title))
		}
		if len(item.Items) > 0 {
			ul := child.AppendNew("ul")
			tocRecurse(item.Items, ul)
		}
	}
}

// TableOfContents builds the navigation list for tree, or nil when there are
// no headings.
func TableOfContents(tree *toc.TOC) *HTMLElement {
	if tree == nil || len(tree.Items) == 0 {
		return nil
	}
	elem := NewHTMLElement("nav", Class("nav-toc"))
	ul := elem.AppendNew("div", Class("toc")).AppendNew("ul")
	tocRecurse(tree.Items, ul)
	if len(ul.Children) == 0 {
		return nil
	}
	return elem
}
