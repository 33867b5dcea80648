package similarity

import "strings"

const MaxKeywords = 6

var DefaultStopWords = []string{
	"the", "a", "an", "and", "or", "of", "with", "in", "for", "by",
	"set", "piece", "pack", "new", "free", "shipping", "sale",
}

// Extractor reduces product names to search keywords. It is immutable and
// safe for concurrent use.
type Extractor struct {
	stop map[string]struct{}
	max  int
}

func NewExtractor(stopWords []string, max int) *Extractor {
	if max <= 0 {
		max = MaxKeywords
	}
	e := &Extractor{stop: make(map[string]struct{}, len(stopWords)), max: max}
	for _, w := range stopWords {
		e.stop[strings.ToLower(w)] = struct{}{}
	}
	return e
}

func DefaultExtractor() *Extractor {
	return NewExtractor(DefaultStopWords, MaxKeywords)
}

// Extract returns up to max keywords in name order. Repeated words are kept.
func (e *Extractor) Extract(name string) []string {
	// Anything outside [a-z0-9-] separates tokens, whitespace included.
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return ' '
	}, strings.ToLower(name))

	out := make([]string, 0, e.max)
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := e.stop[tok]; stop {
			continue
		}
		out = append(out, tok)
		if len(out) == e.max {
			break
		}
	}
	return out
}

// ExtractKeywords runs the default extractor.
func ExtractKeywords(name string) []string {
	return DefaultExtractor().Extract(name)
}
