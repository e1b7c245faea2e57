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

package extensions

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	gmutil "github.com/yuin/goldmark/util"

	"github.com/wierd-stuff-inc/scribes/util"
)

// linkRewriteTransformer points links between book pages at the rendered pages.
type linkRewriteTransformer struct{}

func (r linkRewriteTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var url *[]byte
		switch n.Kind() {
		case ast.KindLink:
			url = &n.(*ast.Link).Destination
		case ast.KindImage:
			url = &n.(*ast.Image).Destination
		default:
			return ast.WalkContinue, nil
		}
		if rewritten, ok := util.PageURL(string(*url)); ok {
			*url = []byte(rewritten)
		}
		return ast.WalkContinue, nil
	})
}

type linkRewrite struct{}

func (e *linkRewrite) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithASTTransformers(
			gmutil.Prioritized(linkRewriteTransformer{}, priorityLinkRewriteTransformer),
		),
	)
}

func LinkRewrite() goldmark.Extender {
	return &linkRewrite{}
}
