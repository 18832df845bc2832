package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// skippedContainers are subtrees that never contain listing text.
var skippedContainers = map[string]bool{
	"head": true, "script": true, "style": true,
	"noscript": true, "template": true, "iframe": true,
}

// document holds the parsed page in document order plus per-element text,
// which is what the anchored forward walk operates on.
type document struct {
	root  *html.Node
	seq   []*html.Node
	index map[*html.Node]int
	text  map[*html.Node]string // collapsed subtree text per element
}

func newDocument(root *html.Node) *document {
	d := &document{
		root:  root,
		index: make(map[*html.Node]int),
		text:  make(map[*html.Node]string),
	}
	d.flatten(root)
	return d
}

// flatten appends nodes in pre-order, mirroring how the markup reads top to
// bottom, and memoizes each element's collapsed text on the way back up.
func (d *document) flatten(n *html.Node) string {
	if n.Type == html.ElementNode && skippedContainers[n.Data] {
		return ""
	}

	if n.Type == html.ElementNode || n.Type == html.TextNode {
		if n.Type != html.TextNode || strings.TrimSpace(n.Data) != "" {
			d.index[n] = len(d.seq)
			d.seq = append(d.seq, n)
		}
	}

	var sb strings.Builder
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		childText := d.flatten(c)
		if childText != "" {
			sb.WriteString(" ")
			sb.WriteString(childText)
		}
	}

	text := collapse(sb.String())
	if n.Type == html.ElementNode {
		d.text[n] = text
	}
	return text
}

// elementText returns the collapsed text content of an element's subtree.
func (d *document) elementText(n *html.Node) string {
	return d.text[n]
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// collapse trims and squashes all whitespace runs (including NBSP) to a
// single space.
func collapse(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// tokenPad lowercases and replaces punctuation with spaces so keyword
// matches respect token boundaries ("(PC)" matches "pc", "Spectre" doesn't).
func tokenPad(s string) string {
	var sb strings.Builder
	sb.WriteByte(' ')
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '|':
			sb.WriteRune(r)
		default:
			sb.WriteByte(' ')
		}
	}
	sb.WriteByte(' ')
	return collapse(sb.String()) + " "
}

// containsToken reports whether text contains kw as a whole token.
func containsToken(text, kw string) bool {
	padded := " " + tokenPad(text)
	return strings.Contains(padded, " "+strings.ToLower(kw)+" ")
}
