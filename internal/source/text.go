package source

import (
	"strings"

	"github.com/ppiankov/folio/internal/model"
	"golang.org/x/net/html"
)

// Normalize fills derived chunk fields: plain text from HTML when the text
// is blank, and the word count when it is zero
func Normalize(c model.Chunk) (model.Chunk, error) {
	c.SourceTitle = strings.TrimSpace(c.SourceTitle)

	if strings.TrimSpace(c.Text) == "" && strings.TrimSpace(c.HTML) != "" {
		text, err := HTMLToText(c.HTML)
		if err != nil {
			return c, err
		}
		c.Text = text
	}

	if c.WordCount == 0 {
		c.WordCount = len(strings.Fields(c.Text))
	}

	return c, nil
}

// HTMLToText returns the visible text of an HTML fragment, skipping scripts/styles
func HTMLToText(fragment string) (string, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	return visibleText(doc), nil
}

func visibleText(n *html.Node) string {
	var blocks []string
	var buf strings.Builder

	flush := func() {
		if line := strings.Join(strings.Fields(buf.String()), " "); line != "" {
			blocks = append(blocks, line)
		}
		buf.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "template":
				return
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteString(" ")
		}

		block := n.Type == html.ElementNode && isBlock(n.Data)
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}

	walk(n)
	flush()
	return strings.Join(blocks, "\n\n")
}

// isBlock reports elements that start a new paragraph in the plain rendering
func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "blockquote", "pre", "section", "article",
		"h1", "h2", "h3", "h4", "h5", "h6", "tr", "table", "ul", "ol":
		return true
	}
	return false
}
