package model

// PayloadKind tags which variant of Payload is populated.
type PayloadKind int

const (
	// PayloadMarkup is an opaque HTML blob from a rendering provider or a
	// direct fetch.
	PayloadMarkup PayloadKind = iota
	// PayloadStructured is a JSON response from a search or extract API.
	PayloadStructured
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadStructured:
		return "structured"
	case PayloadMarkup:
		return "markup"
	default:
		return "unknown"
	}
}

// StructuredItem is one title/url/content triple from a structured provider.
type StructuredItem struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// StructuredPayload is a provider response with an optional direct answer.
type StructuredPayload struct {
	Answer string           `json:"answer,omitempty"`
	Items  []StructuredItem `json:"results"`
}

// Payload is what the fetcher hands to the extractor. The variant is resolved
// once at the fetch boundary.
type Payload struct {
	Kind       PayloadKind
	Structured *StructuredPayload
	Markup     string
	// SourceURL is the page that was fetched in scrape mode, when known.
	SourceURL string
	// Provider names the provider that produced the payload.
	Provider string
}

// MarkupPayload wraps an HTML body.
func MarkupPayload(provider, sourceURL, html string) Payload {
	return Payload{Kind: PayloadMarkup, Markup: html, SourceURL: sourceURL, Provider: provider}
}

// StructuredResult wraps a structured provider response.
func StructuredResult(provider, sourceURL string, sp *StructuredPayload) Payload {
	return Payload{Kind: PayloadStructured, Structured: sp, SourceURL: sourceURL, Provider: provider}
}
