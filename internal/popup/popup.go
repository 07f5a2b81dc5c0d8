// Package popup builds the HTML shown in marker popups.
package popup

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CSS classes of the synthesized popup
const (
	ClassContainer = "clustermap-popup"
	ClassTitle     = "clustermap-popup-title"
	ClassAddress   = "clustermap-popup-address"
)

// Content renders the default popup body for a marker. Title and address are
// escaped; blank values still produce their (empty) elements.
func Content(title, address string) string {
	root := element(atom.Div, ClassContainer,
		element(atom.H3, ClassTitle, textNode(title)),
		element(atom.P, ClassAddress, textNode(address)),
	)

	var b strings.Builder
	// Rendering into a strings.Builder cannot fail.
	_ = html.Render(&b, root)
	return b.String()
}

// Resolve returns custom verbatim when set, otherwise the synthesized content.
func Resolve(custom *string, title, address string) string {
	if custom != nil {
		return *custom
	}
	return Content(title, address)
}

// Text returns the visible text of popup content with whitespace collapsed.
func Text(content string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(content), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", fmt.Errorf("parsing popup content: %w", err)
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return strings.Join(parts, " "), nil
}

func element(a atom.Atom, class string, children ...*html.Node) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     a.String(),
		DataAtom: a,
		Attr:     []html.Attribute{{Key: "class", Val: class}},
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
