package parser

import (
	"strings"

	"golang.org/x/net/html"
)

// textNodes returns the text nodes under roots in document order,
// skipping script and style bodies.
func textNodes(roots ...*html.Node) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			out = append(out, n)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}

func hasAncestorTag(n *html.Node, tags ...string) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		for _, t := range tags {
			if p.Data == t {
				return true
			}
		}
	}
	return false
}

func hasAncestorClass(n *html.Node, match func(class string) bool) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		for _, c := range classes(p) {
			if match(c) {
				return true
			}
		}
	}
	return false
}

func classes(n *html.Node) []string {
	if n.Type != html.ElementNode {
		return nil
	}
	for _, a := range n.Attr {
		if a.Key == "class" {
			return strings.Fields(a.Val)
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for _, t := range textNodes(n) {
		b.WriteString(t.Data)
	}
	return strings.TrimSpace(b.String())
}

func struckThrough(n *html.Node) bool {
	return hasAncestorTag(n, "del", "s")
}
