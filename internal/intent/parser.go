package intent

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
)

const (
	unmatchedConfidence = 0.1
	keywordBonus        = 0.2
)

// Parser turns free text into an Intent. It never fails.
//
// The zero value is usable and uncached; use NewParser to attach a cache.
type Parser struct {
	cache *Cache
	// inflight collapses concurrent misses for the same key into one derive.
	inflight singleflight.Group
}

type ParserOption func(*Parser)

// WithCache attaches a bounded result cache. maxEntries <= 0 disables caching.
func WithCache(maxEntries int, ttl time.Duration) ParserOption {
	return func(p *Parser) {
		if maxEntries > 0 {
			p.cache = NewCache(maxEntries, ttl)
		}
	}
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Cache returns the attached cache (nil if uncached).
func (p *Parser) Cache() *Cache { return p.cache }

// Parse interprets text. Blank input yields an "invalid/empty" intent with zero confidence.
func (p *Parser) Parse(text string) Intent {
	if strings.TrimSpace(text) == "" {
		return Intent{Domain: DomainUnknown, Category: CategoryInvalid, Action: "empty", Parameters: map[string]any{}}
	}
	return restoreCase(p.lookup(Normalize(text)), fold(text))
}

func (p *Parser) lookup(key string) Intent {
	if p == nil || p.cache == nil {
		return derive(key)
	}
	if in, ok := p.cache.Get(key); ok {
		return in
	}
	v, _, _ := p.inflight.Do(key, func() (any, error) {
		in := derive(key)
		p.cache.Put(key, in)
		return in, nil
	})
	return v.(Intent).Clone()
}

// caseSensitive lists parameters whose values are cut back out of the input
// with their original case.
var caseSensitive = []string{ParamURL, ParamFilePath, ParamSearchTerm}

// restoreCase swaps lower-cased parameter values in in for the matching span
// of orig. in must not be shared with the cache.
func restoreCase(in Intent, orig string) Intent {
	lower := strings.ToLower(orig)
	if lower == orig || len(lower) != len(orig) {
		return in
	}
	for _, k := range caseSensitive {
		v, ok := in.String(k)
		if !ok {
			continue
		}
		prefix, body := "", v
		i := strings.Index(lower, body)
		if i < 0 && k == ParamURL && strings.HasPrefix(v, "https://") {
			prefix, body = "https://", strings.TrimPrefix(v, "https://")
			i = strings.Index(lower, body)
		}
		if i >= 0 {
			in.Parameters[k] = prefix + orig[i:i+len(body)]
		}
	}
	return in
}

// derive runs on normalized text only, so cached and fresh results agree.
func derive(text string) Intent {
	action := findAction(text)
	for _, dt := range catalog {
		for _, tbl := range dt.tables {
			for _, re := range tbl.patterns {
				loc := re.FindStringIndex(text)
				if loc == nil || loc[1] == loc[0] {
					continue
				}
				// "open notes.txt" names a file, not the Notes app.
				if tbl.category == CategoryApps && reExtAfter.MatchString(text[loc[1]:]) {
					continue
				}
				matched := utf8.RuneCountInString(strings.TrimSpace(text[loc[0]:loc[1]]))
				return Intent{
					Domain:     dt.domain,
					Category:   tbl.category,
					Action:     action,
					Parameters: extractParameters(dt.domain, text),
					Confidence: confidence(matched, utf8.RuneCountInString(text), hasCoreVerb(text)),
				}
			}
		}
	}
	return Intent{
		Domain:     DomainUnknown,
		Category:   CategoryUnclassified,
		Action:     action,
		Parameters: map[string]any{},
		Confidence: unmatchedConfidence,
	}
}

func confidence(matched, total int, bonus bool) float64 {
	coverage := 0.0
	if total > 0 {
		coverage = float64(matched) / float64(total)
	}
	c := 0.5 + coverage*0.3
	if bonus {
		c += keywordBonus
	}
	return math.Min(1.0, c)
}

func findAction(text string) string {
	for _, w := range reWord.FindAllString(text, -1) {
		if _, ok := actionVerbs[w]; ok {
			return w
		}
	}
	if f := strings.Fields(text); len(f) > 0 {
		return f[0]
	}
	return ""
}

func hasCoreVerb(text string) bool {
	for _, w := range reWord.FindAllString(text, -1) {
		if _, ok := coreVerbs[w]; ok {
			return true
		}
	}
	return false
}

// Normalize lower-cases, collapses whitespace and strips punctuation that
// carries no meaning for parsing (exclamation marks, semicolons,
// inverted marks, trailing sentence punctuation).
func Normalize(text string) string {
	return strings.ToLower(fold(text))
}

// fold is Normalize without the case folding.
func fold(text string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '!', ';', '¡', '¿':
			return ' '
		}
		return r
	}, text)
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".?,: ")
}
