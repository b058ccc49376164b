package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hyperifyio/serpctx/internal/clean"
	"github.com/hyperifyio/serpctx/internal/credibility"
	"github.com/hyperifyio/serpctx/internal/model"
)

const (
	// SnippetMaxChars caps organic result snippets parsed from markup.
	SnippetMaxChars = 300
	// PageMaxChars caps single-page extractions.
	PageMaxChars = 15000

	overviewMinChars = 100
	// pivotDepth bounds how many ancestors are inspected above the anchor.
	pivotDepth = 3
	// pivotSlack is how much longer than the title a container's text must
	// be before it is accepted as the result block.
	pivotSlack = 20

	ellipsis = "..."
)

var aiSignal = regexp.MustCompile(`(?i)(AI Overview|Generative AI|Summarized by AI)`)

// junkSelector lists tags that never hold result content.
const junkSelector = "script, style, nav, footer, header, noscript"

// Parser turns provider payloads into the normalized {overview, results}
// shape. The zero value is not usable; use NewParser.
type Parser struct {
	Extractor Extractor
}

// NewParser returns a Parser backed by the heuristic boilerplate extractor.
func NewParser() *Parser {
	return &Parser{Extractor: HeuristicExtractor{}}
}

var defaultParser = NewParser()

// ParseSearchPayload parses a search response with the default parser.
func ParseSearchPayload(p model.Payload) model.Parsed {
	return defaultParser.ParseSearchPayload(p)
}

// ParseSinglePage parses a single scraped page with the default parser.
func ParseSinglePage(p model.Payload) model.Parsed {
	return defaultParser.ParseSinglePage(p)
}

// ParseSearchPayload maps structured results directly and runs the overview
// and anchor & pivot heuristics over markup.
func (p *Parser) ParseSearchPayload(payload model.Payload) model.Parsed {
	if payload.Kind == model.PayloadStructured {
		return parseStructuredSearch(payload.Structured)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload.Markup))
	if err != nil {
		return model.Parsed{}
	}
	doc.Find(junkSelector).Remove()
	return model.Parsed{
		AIOverview:     findAIOverview(doc),
		OrganicResults: findOrganicResults(doc),
	}
}

func parseStructuredSearch(sp *model.StructuredPayload) model.Parsed {
	if sp == nil {
		return model.Parsed{}
	}
	results := make([]model.OrganicResult, 0, len(sp.Items))
	for _, item := range sp.Items {
		results = append(results, model.OrganicResult{
			Title:            strings.TrimSpace(item.Title),
			URL:              strings.TrimSpace(item.URL),
			Snippet:          clean.String(item.Content),
			CredibilityScore: credibility.Score(item.URL),
		})
	}
	return model.Parsed{AIOverview: strings.TrimSpace(sp.Answer), OrganicResults: results}
}

// findAIOverview returns the cleaned text of the first top-level body child
// that is long enough and carries an explicit AI overview phrase.
func findAIOverview(doc *goquery.Document) string {
	var overview string
	doc.Find("body").Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		text := nodeText(child)
		if utf8.RuneCountInString(text) < overviewMinChars {
			return true
		}
		if aiSignal.MatchString(text) {
			overview = clean.String(text)
			return false
		}
		return true
	})
	return overview
}

func findOrganicResults(doc *goquery.Document) []model.OrganicResult {
	var results []model.OrganicResult
	seen := map[string]struct{}{}
	doc.Find("h3, h4").Each(func(_ int, heading *goquery.Selection) {
		anchor := heading.Closest("a")
		if anchor.Length() == 0 {
			return
		}
		href, _ := anchor.Attr("href")
		link := resolveLink(href)
		if link == "" || isAdLink(link) {
			return
		}
		key := canonicalKey(link)
		if _, ok := seen[key]; ok {
			return
		}
		title := collapse(nodeText(heading))
		if title == "" {
			return
		}
		seen[key] = struct{}{}

		container := pivot(anchor, title)
		snippet := nodeText(container)
		snippet = strings.ReplaceAll(snippet, title, "")
		snippet = strings.ReplaceAll(snippet, link, "")
		snippet = clean.String(collapse(snippet))
		if snippet == "" {
			return
		}
		results = append(results, model.OrganicResult{
			Title:            title,
			URL:              link,
			Snippet:          truncate(snippet, SnippetMaxChars, ellipsis),
			CredibilityScore: credibility.Score(link),
		})
	})
	return results
}

// pivot walks up from the anchor at most pivotDepth times and stops at the
// first <div> whose raw text is meaningfully longer than the title.
func pivot(anchor *goquery.Selection, title string) *goquery.Selection {
	container := anchor.Parent()
	if container.Length() == 0 {
		return anchor
	}
	limit := utf8.RuneCountInString(title) + pivotSlack
	for i := 0; i < pivotDepth; i++ {
		if goquery.NodeName(container) == "div" && utf8.RuneCountInString(container.Text()) > limit {
			break
		}
		parent := container.Parent()
		if parent.Length() == 0 {
			break
		}
		container = parent
	}
	return container
}

// ParseSinglePage extracts one page of content. Structured extracts prefer
// the boilerplate-removal pass over the raw field; markup falls back to
// plain tag-stripped text when the extractor finds nothing.
func (p *Parser) ParseSinglePage(payload model.Payload) model.Parsed {
	var title, link, text string
	if payload.Kind == model.PayloadStructured {
		title = "Extracted Content"
		link, text = p.structuredPage(payload.Structured)
	} else {
		title, text = p.markupPage(payload.Markup)
	}
	if link == "" {
		link = payload.SourceURL
	}
	score := credibility.Default
	if strings.TrimSpace(link) != "" {
		score = credibility.Score(link)
	}
	return model.Parsed{OrganicResults: []model.OrganicResult{{
		Title:            title,
		URL:              link,
		Snippet:          truncate(clean.String(text), PageMaxChars, ""),
		CredibilityScore: score,
	}}}
}

func (p *Parser) structuredPage(sp *model.StructuredPayload) (string, string) {
	if sp == nil || len(sp.Items) == 0 {
		return "", ""
	}
	item := sp.Items[0]
	if item.RawContent != "" {
		if doc := p.Extractor.Extract([]byte(item.RawContent)); strings.TrimSpace(doc.Text) != "" {
			return item.URL, doc.Text
		}
	}
	if strings.TrimSpace(item.Content) != "" {
		return item.URL, item.Content
	}
	return item.URL, item.RawContent
}

func (p *Parser) markupPage(markup string) (string, string) {
	extracted := p.Extractor.Extract([]byte(markup))
	title := strings.TrimSpace(extracted.Title)
	text := extracted.Text
	if strings.TrimSpace(text) == "" || title == "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err == nil {
			if title == "" {
				title = collapse(doc.Find("title").First().Text())
			}
			if strings.TrimSpace(text) == "" {
				doc.Find(junkSelector).Remove()
				body := doc.Find("body")
				if body.Length() == 0 {
					body = doc.Selection
				}
				text = nodeText(body)
			}
		}
	}
	if title == "" {
		title = "Scraped Page"
	}
	return title, text
}

// nodeText joins every trimmed, non-empty text node under the selection with
// single spaces, so adjacent block elements do not run together.
func nodeText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate caps s at max runes, appending marker when something was cut.
func truncate(s string, max int, marker string) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + marker
}
