package extract

// Extractor removes boilerplate from a page. Parser uses it for single-page
// scrapes so the strategy can be swapped in tests.
type Extractor interface {
	Extract(input []byte) Document
}

// HeuristicExtractor is the FromHTML strategy.
type HeuristicExtractor struct{}

func (HeuristicExtractor) Extract(input []byte) Document { return FromHTML(input) }
