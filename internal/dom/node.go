package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/jakopako/steprec/internal/utils"
	"golang.org/x/net/html"
)

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// TagName returns the lower-cased tag name of an element or "" for other nodes.
func TagName(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Attr returns the value of the attribute key and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if !IsElement(n) {
		return "", false
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// AttrValue returns the value of the attribute key or "".
func AttrValue(n *html.Node, key string) string {
	return htmlquery.SelectAttr(n, key)
}

// TextContent returns the trimmed, whitespace collapsed text of n and all its descendants.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	return utils.CollapseSpace(htmlquery.InnerText(n))
}

// DirectText returns the normalized value of the first non-blank text child
// of n. DirectTextExpr names the XPath node-set that selects that child.
func DirectText(n *html.Node) string {
	if c := firstTextChild(n); c != nil {
		return utils.CollapseSpace(c.Data)
	}
	return ""
}

// DirectTextExpr returns "text()" if the first text child of n carries its
// direct text, or "text()[normalize-space()][1]" if blank text comes first.
func DirectTextExpr(n *html.Node) string {
	if n != nil {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				if c == firstTextChild(n) {
					return "text()"
				}
				break
			}
		}
	}
	return "text()[normalize-space()][1]"
}

func firstTextChild(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && utils.CollapseSpace(c.Data) != "" {
			return c
		}
	}
	return nil
}

// ParentElement returns the closest ancestor that is an element, or nil.
func ParentElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// ElementChildren returns the element children of n in document order.
func ElementChildren(n *html.Node) []*html.Node {
	var children []*html.Node
	if n == nil {
		return children
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			children = append(children, c)
		}
	}
	return children
}

// PrevElementSibling returns the closest preceding sibling that is an element, or nil.
func PrevElementSibling(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// SameTagIndex returns the 1-based position of n among its same-tag element
// siblings and the total number of such siblings (n included).
func SameTagIndex(n *html.Node) (index, count int) {
	tag := TagName(n)
	if n.Parent == nil {
		return 1, 1
	}
	for _, c := range ElementChildren(n.Parent) {
		if TagName(c) != tag {
			continue
		}
		count++
		if c == n {
			index = count
		}
	}
	return index, count
}

// Closest returns the closest ancestor of n (n excluded) matching the css selector, or nil.
func Closest(n *html.Node, selector string) *html.Node {
	if n == nil || n.Parent == nil {
		return nil
	}
	sel := goquery.NewDocumentFromNode(n.Parent).Selection.Closest(selector)
	if sel.Length() == 0 {
		return nil
	}
	return sel.Get(0)
}

// Find returns every descendant of n matching the css selector.
func Find(n *html.Node, selector string) []*html.Node {
	if n == nil {
		return nil
	}
	return goquery.NewDocumentFromNode(n).Find(selector).Nodes
}

// Root returns the top most node n is attached to.
func Root(n *html.Node) *html.Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}

// PathOf returns the element-child indices leading from the root of n's tree to n.
// Together with NodeAtPath it allows to address an element across re-parses
// of the same markup.
func PathOf(n *html.Node) []int {
	var path []int
	for c := n; c != nil && c.Parent != nil; c = c.Parent {
		if c.Type != html.ElementNode {
			return nil
		}
		idx := 0
		for s := c.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode {
				idx++
			}
		}
		path = append(path, idx)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// NodeAtPath walks the element-child indices in path starting at root.
// It returns nil if the path does not exist.
func NodeAtPath(root *html.Node, path []int) *html.Node {
	n := root
	for _, idx := range path {
		children := ElementChildren(n)
		if idx < 0 || idx >= len(children) {
			return nil
		}
		n = children[idx]
	}
	if n == root {
		return nil
	}
	return n
}
