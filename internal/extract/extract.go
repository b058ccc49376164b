package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is the readable part of one page.
type Document struct {
	Title string
	Text  string
}

// skipSelector lists elements whose text never belongs to the article.
const skipSelector = "script, style, noscript, nav, header, footer, aside, iframe, form, button, svg"

var boilerplateMarkers = []string{"cookie", "consent", "gdpr", "newsletter", "share-bar", "social-share", "paywall"}

// FromHTML returns the title and the block-structured text of the first
// <main>, else <article>, else <body>. Navigation chrome and elements tagged
// as consent banners, share bars or paywalls are dropped; pre/code content
// keeps its line breaks.
func FromHTML(input []byte) Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return Document{}
	}
	title := collapse(doc.Find("head title").First().Text())

	doc.Find(skipSelector).Remove()
	doc.Find("body *").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return isBoilerplate(s.Nodes[0])
	}).Remove()

	var content *goquery.Selection
	for _, sel := range []string{"main", "article", "body"} {
		if c := doc.Find(sel).First(); c.Length() > 0 {
			content = c
			break
		}
	}
	if content == nil {
		return Document{Title: title}
	}
	var w blockWriter
	for _, n := range content.Nodes {
		w.walk(n, false)
	}
	return Document{Title: title, Text: w.text()}
}

func isBoilerplate(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		switch {
		case key == "id", key == "class", key == "role", key == "aria-label", strings.HasPrefix(key, "data-"):
		default:
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, m := range boilerplateMarkers {
			if strings.Contains(val, m) {
				return true
			}
		}
	}
	return false
}

// blockWriter renders text nodes with line breaks around block elements.
type blockWriter struct {
	b strings.Builder
}

func (w *blockWriter) walk(n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		if pre {
			w.b.WriteString(n.Data)
		} else {
			w.b.WriteString(strings.NewReplacer("\t", " ", "\r", " ").Replace(n.Data))
		}
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, pre)
		}
		return
	}

	tag := strings.ToLower(n.Data)
	switch tag {
	case "pre", "code":
		pre = true
	case "br", "hr", "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "div", "section", "tr":
		w.b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, pre)
	}
	switch tag {
	case "p", "h1", "h2", "h3", "h4", "h5", "h6":
		w.b.WriteString("\n\n")
	case "li", "div", "section", "tr", "pre", "code":
		w.b.WriteByte('\n')
	}
}

// text trims every line, collapses inner spaces and keeps at most one blank
// line between paragraphs.
func (w *blockWriter) text() string {
	var out []string
	blank := false
	for _, line := range strings.Split(w.b.String(), "\n") {
		line = collapse(line)
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
