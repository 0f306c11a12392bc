package publish

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxDescription = 350

// Describe derives a one-line repository description: the first heading of
// README.md, else the <title> of index.html, else empty.
func Describe(files []File) string {
	byPath := make(map[string][]byte, len(files))
	for _, f := range files {
		byPath[f.Path] = f.Content
	}
	desc := readmeHeading(byPath["README.md"])
	if desc == "" {
		desc = htmlTitle(byPath["index.html"])
	}
	desc = strings.Join(strings.Fields(desc), " ")
	if len(desc) > maxDescription {
		desc = strings.TrimSpace(desc[:maxDescription])
	}
	return desc
}

func readmeHeading(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var heading string
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		h, ok := n.(*gmast.Heading)
		if !ok {
			return gmast.WalkContinue, nil
		}
		var buf bytes.Buffer
		collectText(h, src, &buf)
		heading = buf.String()
		return gmast.WalkStop, nil
	})
	return heading
}

func collectText(n gmast.Node, src []byte, buf *bytes.Buffer) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *gmast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *gmast.String:
			buf.Write(t.Value)
		default:
			collectText(c, src, buf)
		}
	}
}

func htmlTitle(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return ""
	}
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			return b.String()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := find(c); t != "" {
				return t
			}
		}
		return ""
	}
	return find(doc)
}
