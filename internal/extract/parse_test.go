package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperifyio/serpctx/internal/credibility"
	"github.com/hyperifyio/serpctx/internal/model"
)

const searchPage = `<!doctype html>
<html>
<head><title>python - Search</title><script>var tracking = "AI Overview";</script></head>
<body>
<header>Header junk that is not content</header>
<div id="overview"><h2>AI Overview</h2><p>Python is a high-level, general-purpose programming language. Its design philosophy emphasizes code readability with the use of significant indentation.</p></div>
<div id="search">
	<div class="g"><a href="/url?q=https://docs.python.org/3/&sa=U"><h3>Python Docs</h3></a><div><span>The official Python documentation covers the language reference and the standard library.</span></div></div>
	<div class="g"><a href="https://github.com/python/cpython"><h3>CPython on GitHub</h3></a><div><span>The reference implementation of the Python programming language lives here.</span></div></div>
	<div class="g"><a href="https://www.googleadservices.com/pagead/aclk?sa=L"><h3>Buy a Python Course</h3></a><div>Sponsored text that is long enough to look like a real result.</div></div>
	<div class="g"><a href="/relative/path"><h3>Relative</h3></a><div>Relative link text that should be ignored entirely by the parser.</div></div>
	<div class="g"><a href="https://github.com/python/cpython#readme"><h3>CPython again</h3></a><div>Duplicate of an already seen URL with only a fragment changed.</div></div>
	<div class="g"><h3>No anchor heading</h3><div>Heading without a wrapping anchor should be skipped entirely.</div></div>
</div>
<footer>Footer links</footer>
</body>
</html>`

func markup(html string) model.Payload {
	return model.MarkupPayload("test", "", html)
}

func TestParseSearchPayload_AnchorAndPivot(t *testing.T) {
	parsed := ParseSearchPayload(markup(searchPage))

	if len(parsed.OrganicResults) != 2 {
		t.Fatalf("expected 2 organic results, got %d: %+v", len(parsed.OrganicResults), parsed.OrganicResults)
	}
	first := parsed.OrganicResults[0]
	if first.URL != "https://docs.python.org/3/" {
		t.Fatalf("redirect not unwrapped: %q", first.URL)
	}
	if first.Title != "Python Docs" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if first.Snippet != "The official Python documentation covers the language reference and the standard library." {
		t.Fatalf("unexpected snippet %q", first.Snippet)
	}
	if first.CredibilityScore != 0.85 {
		t.Fatalf("unexpected score %v", first.CredibilityScore)
	}
	second := parsed.OrganicResults[1]
	if second.URL != "https://github.com/python/cpython" || second.CredibilityScore != 0.8 {
		t.Fatalf("unexpected second result %+v", second)
	}
}

func TestParseSearchPayload_AIOverview(t *testing.T) {
	parsed := ParseSearchPayload(markup(searchPage))
	if !strings.HasPrefix(parsed.AIOverview, "AI Overview Python is a high-level") {
		t.Fatalf("unexpected overview %q", parsed.AIOverview)
	}
}

func TestParseSearchPayload_OverviewIsConservative(t *testing.T) {
	long := strings.Repeat("A long block of ordinary text without any signal. ", 5)
	page := `<html><body><div>` + long + `</div><div>AI Overview</div></body></html>`
	if got := ParseSearchPayload(markup(page)).AIOverview; got != "" {
		t.Fatalf("expected no overview, got %q", got)
	}
}

func TestParseSearchPayload_SnippetCapped(t *testing.T) {
	body := strings.Repeat("Go is a fast compiled language. ", 20)
	page := `<html><body><div class="g"><a href="https://go.dev/doc"><h3>Golang Guide</h3></a><p>` + body + `</p></div></body></html>`

	parsed := ParseSearchPayload(markup(page))
	if len(parsed.OrganicResults) != 1 {
		t.Fatalf("expected one result, got %d", len(parsed.OrganicResults))
	}
	snippet := parsed.OrganicResults[0].Snippet
	if !strings.HasSuffix(snippet, "...") {
		t.Fatalf("expected ellipsis, got %q", snippet)
	}
	if n := utf8.RuneCountInString(snippet); n != SnippetMaxChars+3 {
		t.Fatalf("expected %d runes, got %d", SnippetMaxChars+3, n)
	}
}

func TestParseSearchPayload_SkipsEmptySnippet(t *testing.T) {
	page := `<html><body><div><a href="https://example.com/a"><h3>Only Title</h3></a></div></body></html>`
	if got := ParseSearchPayload(markup(page)).OrganicResults; len(got) != 0 {
		t.Fatalf("expected result without snippet to be skipped, got %+v", got)
	}
}

func TestParseSearchPayload_MalformedMarkup(t *testing.T) {
	parsed := ParseSearchPayload(markup(`<div><p>unclosed <b>text <a href="https://x.test"><h3>T`))
	if parsed.AIOverview != "" {
		t.Fatalf("unexpected overview %q", parsed.AIOverview)
	}
}

func TestParseSearchPayload_Structured(t *testing.T) {
	sp := &model.StructuredPayload{
		Answer: "Python is a programming language.",
		Items: []model.StructuredItem{
			{Title: "Docs", URL: "https://docs.python.org", Content: "Skip to main content The tutorial."},
			{Title: "Blog", URL: "https://example.com/post", Content: "A post."},
		},
	}
	parsed := ParseSearchPayload(model.StructuredResult("tavily", "", sp))

	if parsed.AIOverview != "Python is a programming language." {
		t.Fatalf("unexpected overview %q", parsed.AIOverview)
	}
	if len(parsed.OrganicResults) != 2 {
		t.Fatalf("expected 2 results, got %d", len(parsed.OrganicResults))
	}
	if got := parsed.OrganicResults[0].Snippet; got != "The tutorial." {
		t.Fatalf("content not cleaned: %q", got)
	}
	if got := parsed.OrganicResults[1].CredibilityScore; got != credibility.Default {
		t.Fatalf("unexpected score %v", got)
	}
}

func TestParseSearchPayload_NilStructured(t *testing.T) {
	parsed := ParseSearchPayload(model.Payload{Kind: model.PayloadStructured})
	if parsed.AIOverview != "" || len(parsed.OrganicResults) != 0 {
		t.Fatalf("expected empty parse, got %+v", parsed)
	}
}

func TestParseSinglePage_Markup(t *testing.T) {
	page := `<html><head><title>Go Tour</title></head><body><nav>Menu</nav><main><p>Welcome to the tour.</p></main></body></html>`
	parsed := ParseSinglePage(model.MarkupPayload("direct", "https://go.dev/tour", page))

	if parsed.AIOverview != "" {
		t.Fatalf("single page has no overview")
	}
	if len(parsed.OrganicResults) != 1 {
		t.Fatalf("expected exactly one result")
	}
	r := parsed.OrganicResults[0]
	if r.Title != "Go Tour" || r.URL != "https://go.dev/tour" || r.Snippet != "Welcome to the tour." {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.CredibilityScore != 0.85 {
		t.Fatalf("unexpected score %v", r.CredibilityScore)
	}
}

func TestParseSinglePage_MarkupWithoutTitle(t *testing.T) {
	parsed := ParseSinglePage(markup(`<html><body><p>Just text.</p></body></html>`))
	r := parsed.OrganicResults[0]
	if r.Title != "Scraped Page" {
		t.Fatalf("unexpected title %q", r.Title)
	}
	if r.CredibilityScore != credibility.Default {
		t.Fatalf("unknown url should get default score, got %v", r.CredibilityScore)
	}
}

type emptyExtractor struct{}

func (emptyExtractor) Extract([]byte) Document { return Document{} }

func TestParseSinglePage_FallsBackToPlainText(t *testing.T) {
	p := &Parser{Extractor: emptyExtractor{}}
	page := `<html><head><title>Fallback</title><style>p{}</style></head><body><div>Plain text here.</div></body></html>`
	r := p.ParseSinglePage(markup(page)).OrganicResults[0]
	if r.Title != "Fallback" || r.Snippet != "Plain text here." {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestParseSinglePage_CapsLength(t *testing.T) {
	body := strings.Repeat("word. ", 4000)
	r := ParseSinglePage(markup(`<html><body><p>` + body + `</p></body></html>`)).OrganicResults[0]
	if n := utf8.RuneCountInString(r.Snippet); n != PageMaxChars {
		t.Fatalf("expected snippet capped at %d, got %d", PageMaxChars, n)
	}
}

func TestParseSinglePage_StructuredPrefersExtraction(t *testing.T) {
	sp := &model.StructuredPayload{Items: []model.StructuredItem{{
		URL:        "https://arxiv.org/abs/1",
		Content:    "short summary",
		RawContent: `<html><body><nav>x</nav><article><p>Full article body.</p></article></body></html>`,
	}}}
	r := ParseSinglePage(model.StructuredResult("tavily", "https://arxiv.org/abs/1", sp)).OrganicResults[0]
	if r.Title != "Extracted Content" {
		t.Fatalf("unexpected title %q", r.Title)
	}
	if r.Snippet != "Full article body." {
		t.Fatalf("expected extracted text, got %q", r.Snippet)
	}
	if r.CredibilityScore != 1.0 {
		t.Fatalf("unexpected score %v", r.CredibilityScore)
	}
}

func TestParseSinglePage_StructuredFallsBackToContent(t *testing.T) {
	sp := &model.StructuredPayload{Items: []model.StructuredItem{{Content: "Plain content."}}}
	r := ParseSinglePage(model.StructuredResult("tavily", "https://example.com/p", sp)).OrganicResults[0]
	if r.Snippet != "Plain content." || r.URL != "https://example.com/p" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestResolveLink(t *testing.T) {
	cases := map[string]string{
		"https://example.com/a":                    "https://example.com/a",
		"/url?q=https://example.com/b&sa=U":        "https://example.com/b",
		"/url?q=https%3A%2F%2Fexample.com%2Fc&x=1": "https://example.com/c",
		"/search?q=python":                         "",
		"javascript:void(0)":                       "",
		"mailto:a@b.test":                          "",
		"":                                         "",
	}
	for in, want := range cases {
		if got := resolveLink(in); got != want {
			t.Fatalf("resolveLink(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalKey(t *testing.T) {
	a := canonicalKey("https://Example.com/p?utm_source=x&id=1#top")
	b := canonicalKey("https://example.com/p?id=1")
	if a != b {
		t.Fatalf("expected equal keys, got %q vs %q", a, b)
	}
}

func TestParseSinglePage_HeadingJoinedWithParagraph(t *testing.T) {
	page := `<html><body><main><h1>Changelog</h1><p>In version two we rewrote the parser.</p><p>Everything is faster now.</p></main></body></html>`
	r := ParseSinglePage(markup(page)).OrganicResults[0]
	if r.Snippet != "Changelog In version two we rewrote the parser. Everything is faster now." {
		t.Fatalf("unexpected snippet %q", r.Snippet)
	}
}
