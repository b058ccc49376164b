// Package clean strips scraping noise from extracted text: login walls,
// cookie banners, share prompts, legal boilerplate, ad markers, bylines and
// trailing sentence fragments.
package clean

import (
	"regexp"
	"strings"
)

// noisePatterns are removed globally, in order, case-insensitively.
var noisePatterns = compileAll([]string{
	// social network walls
	`Create\s+your\s+free\s+account\s+or\s+sign\s+in`,
	`New\s+to\s+LinkedIn\?\s+Join\s+now`,
	`Sign\s+in\s+to\s+view\s+more\s+content`,
	`agree\s+to\s+LinkedIn[’']s\s+User\s+Agreement`,

	// cookie and privacy banners, navigation
	`See\s+our\s+Cookie\s+Policy`,
	`We\s+use\s+cookies[^.!?\n]*[.!?]?`,
	`Accept\s+all\s+cookies`,
	`Manage\s+your\s+preferences`,
	`Skip\s+to\s+(main\s+content|content|top)`,
	`Download\s+chart`,

	// share and subscribe calls to action
	`Share\s+on\s+(Twitter|Facebook|LinkedIn|WhatsApp|Reddit)`,
	`Open\s+the\s+app`,
	`Click\s+here\s+to\s+subscribe`,
	`Subscribe\s+to\s+our\s+newsletter`,

	// legal footer
	`All\s+rights\s+reserved\.?`,
	`Terms\s+of\s+(Service|Use)`,
	`Privacy\s+Policy`,
	`Copyright\s*©\s*\d{4}`,
	`©\s*\d{4}`,
	`Copyright\s+[-–]\s+.*?\d{4}`,

	// gating and ads
	`\bAdvertisement\b`,
	`Sponsored\s+Content`,
	`Read\s+more`,
	`Continue\s+reading`,
	`Subscriber\s+only`,

	// bylines and timestamps
	`\b(Published|Updated|Posted)(\s+on)?:?\s+[A-Z][a-z]{2,8}\.?\s+\d{1,2},\s+\d{4}(\s+at\s+\d{1,2}:\d{2}(\s*[ap]\.?m\.?)?)?`,
	`\b\d+\s+min(ute)?s?\s+read\b`,

	// app prompts
	`Follow\s+.*?\s+on\s+WhatsApp`,
	`Download\s+the\s+.*?\s+app`,
	`Join\s+.*?\s+channel`,

	// markdown noise
	`!\[[^\]]*?logo[^\]]*?\]\([^)]*?\)`,
	`!\[[^\]]*?representational[^\]]*?\]\([^)]*?\)`,
	`##\s*Related\s+Stories`,
	`\*\*\[[^\]]*?\]\([^)]*?\)\*\*`,
})

// uiPhrase drops the whole line or sentence it appears in. Whole words only,
// so "blog in" or "catalog in" never match "log in".
var uiPhrase = regexp.MustCompile(`(?i)\b(sign up|log in|get started|subscribe|create account|continue reading)\b`)

// segmentEnd closes a line or a sentence, including trailing space.
var segmentEnd = regexp.MustCompile(`[.!?]+["')]*\s+|\n`)

var whitespaceRun = regexp.MustCompile(`\s+`)

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// Text cleans an optional string. A nil input yields nil.
func Text(text *string) *string {
	if text == nil {
		return nil
	}
	out := String(*text)
	return &out
}

// String cleans text. Each pass only ever shortens its input, so passes are
// repeated until the text stops changing; this keeps String idempotent when
// a removal joins two fragments into a new match.
func String(text string) string {
	out := pass(text)
	for {
		next := pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func pass(text string) string {
	for _, re := range noisePatterns {
		text = re.ReplaceAllString(text, "")
	}
	text = dropUISegments(text)
	text = dropTrailingFragment(text)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// dropUISegments removes every line or sentence carrying a UI phrase. After
// the first pass the text is a single line, so working per sentence keeps a
// phrase formed by joining two lines from taking the whole text with it.
func dropUISegments(text string) string {
	var b strings.Builder
	start := 0
	for _, loc := range segmentEnd.FindAllStringIndex(text, -1) {
		if seg := text[start:loc[1]]; !uiPhrase.MatchString(seg) {
			b.WriteString(seg)
		}
		start = loc[1]
	}
	if seg := text[start:]; !uiPhrase.MatchString(seg) {
		b.WriteString(seg)
	}
	return b.String()
}

// dropTrailingFragment discards a dangling sentence fragment after the last
// terminator. Text without any terminator is left as-is.
func dropTrailingFragment(text string) string {
	text = strings.TrimRight(text, " \t\r\n")
	if text == "" {
		return text
	}
	switch text[len(text)-1] {
	case '.', '!', '?', '"', '\'', ')':
		return text
	}
	if i := strings.LastIndexAny(text, ".!?"); i >= 0 {
		return text[:i+1]
	}
	return text
}
