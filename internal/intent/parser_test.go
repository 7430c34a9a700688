package intent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseEmpty(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "   ", "\t\n"} {
		got := NewParser().Parse(in)
		require.Equal(t, DomainUnknown, got.Domain)
		require.Equal(t, CategoryInvalid, got.Category)
		require.Equal(t, "empty", got.Action)
		require.Empty(t, got.Parameters)
		require.Zero(t, got.Confidence)
	}
}

func TestParsePunctuationOnly(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"?", " !! ", "..."} {
		got := NewParser().Parse(in)
		require.Equal(t, DomainUnknown, got.Domain, in)
		require.Equal(t, CategoryUnclassified, got.Category, in)
		require.Equal(t, 0.1, got.Confidence, in)
	}
}

func TestParseKeepsParameterCase(t *testing.T) {
	t.Parallel()
	p := NewParser(WithCache(8, time.Minute))

	got := p.Parse("open https://Example.com/Docs/ReadMe")
	require.Equal(t, CategoryBrowsing, got.Category)
	require.Equal(t, "https://Example.com/Docs/ReadMe", got.Parameters[ParamURL])

	got = p.Parse("Open ~/Documents/Report.PDF")
	require.Equal(t, CategoryFiles, got.Category)
	require.Equal(t, "~/Documents/Report.PDF", got.Parameters[ParamFilePath])

	// A case variant shares the cache entry but keeps its own spelling.
	got = p.Parse("open ~/documents/REPORT.pdf")
	require.Equal(t, "~/documents/REPORT.pdf", got.Parameters[ParamFilePath])
	require.Equal(t, uint64(1), p.Cache().Stats().Hits)
	require.Equal(t, got, NewParser().Parse("open ~/documents/REPORT.pdf"))

	got = p.Parse("go to GitHub.com/Golang")
	require.Equal(t, "https://GitHub.com/Golang", got.Parameters[ParamURL])
}

func TestParseFileNamedLikeApp(t *testing.T) {
	t.Parallel()
	got := NewParser().Parse("open notes.txt")
	require.Equal(t, DomainDesktop, got.Domain)
	require.Equal(t, CategoryFiles, got.Category)
	require.Equal(t, "notes.txt", got.Parameters[ParamFilePath])
	require.NotContains(t, got.Parameters, ParamAppName)

	got = NewParser().Parse("open notes")
	require.Equal(t, CategoryApps, got.Category)
	require.Equal(t, "notes", got.Parameters[ParamAppName])
}

func TestParseShoppingScenario(t *testing.T) {
	t.Parallel()
	got := NewParser().Parse("search for laptops on amazon under $1000")

	require.Equal(t, DomainWeb, got.Domain)
	require.Equal(t, CategoryShopping, got.Category)
	require.Equal(t, "search", got.Action)
	require.Equal(t, "laptops", got.Parameters[ParamSearchTerm])
	require.Equal(t, 1000.0, got.Parameters[ParamMaxPrice])
	require.Equal(t, "amazon", got.Parameters[ParamSite])
	require.Greater(t, got.Confidence, 0.5)
	require.LessOrEqual(t, got.Confidence, 1.0)
}

func TestParseCategories(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text     string
		domain   Domain
		category string
		action   string
		params   map[string]any
	}{
		{text: "Visit https://example.com/docs", domain: DomainWeb, category: CategoryBrowsing, action: "visit",
			params: map[string]any{ParamURL: "https://example.com/docs"}},
		{text: "go to github.com", domain: DomainWeb, category: CategoryBrowsing, action: "go",
			params: map[string]any{ParamURL: "https://github.com"}},
		{text: `search for "best pizza near me"`, domain: DomainWeb, category: CategoryBrowsing, action: "search",
			params: map[string]any{ParamSearchTerm: "best pizza near me"}},
		{text: "buy a phone case under $25", domain: DomainWeb, category: CategoryShopping, action: "buy",
			params: map[string]any{ParamSearchTerm: "phone case", ParamMaxPrice: 25.0}},
		{text: "fill out the contact form", domain: DomainWeb, category: CategoryForms, action: "fill"},
		{text: "post my vacation photos on instagram", domain: DomainWeb, category: CategorySocial, action: "post",
			params: map[string]any{ParamPlatform: "instagram"}},
		{text: "Open Google Chrome", domain: DomainDesktop, category: CategoryApps, action: "open",
			params: map[string]any{ParamAppName: "google chrome"}},
		{text: "launch spotify", domain: DomainDesktop, category: CategoryApps, action: "launch",
			params: map[string]any{ParamAppName: "spotify"}},
		{text: "create a new file at ~/notes/todo.txt", domain: DomainDesktop, category: CategoryFiles, action: "create",
			params: map[string]any{ParamFilePath: "~/notes/todo.txt"}},
		{text: "restart the computer", domain: DomainDesktop, category: CategorySystem, action: "restart"},
		{text: "turn up the volume", domain: DomainDesktop, category: CategorySystem, action: "turn"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			got := NewParser().Parse(tt.text)
			require.Equal(t, tt.domain, got.Domain)
			require.Equal(t, tt.category, got.Category)
			require.Equal(t, tt.action, got.Action)
			for k, v := range tt.params {
				require.Equal(t, v, got.Parameters[k], "parameter %s", k)
			}
			require.Greater(t, got.Confidence, 0.5)
			require.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestParseUnclassified(t *testing.T) {
	t.Parallel()
	got := NewParser().Parse("rm -rf /")
	require.Equal(t, DomainUnknown, got.Domain)
	require.Equal(t, CategoryUnclassified, got.Category)
	require.Equal(t, "rm", got.Action)
	require.Equal(t, 0.1, got.Confidence)
}

func TestConfidenceFormula(t *testing.T) {
	t.Parallel()
	require.InDelta(t, 0.65, confidence(5, 10, false), 1e-9)
	require.InDelta(t, 0.85, confidence(5, 10, true), 1e-9)
	require.InDelta(t, 1.0, confidence(10, 10, true), 1e-9)
	require.LessOrEqual(t, confidence(40, 10, true), 1.0)
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	require.Equal(t, "open safari", Normalize("  Open   SAFARI!! "))
	require.Equal(t, "buy milk under $5", Normalize("Buy milk under $5."))
	require.Equal(t, "", Normalize(" ... "))
}

func TestParseCachedMatchesFresh(t *testing.T) {
	t.Parallel()
	p := NewParser(WithCache(8, time.Minute))
	text := "Search for laptops on Amazon under $1000!"

	first := p.Parse(text)
	second := p.Parse("search for laptops   on amazon under $1000")
	fresh := NewParser().Parse(text)

	require.Equal(t, first, second)
	require.Equal(t, fresh, second)
	require.Equal(t, uint64(1), p.Cache().Stats().Hits)

	// Mutating a returned intent must not leak into the cache.
	second.Parameters[ParamSearchTerm] = "tampered"
	require.Equal(t, "laptops", p.Parse(text).Parameters[ParamSearchTerm])
}

func TestParseConcurrentMisses(t *testing.T) {
	t.Parallel()
	p := NewParser(WithCache(8, time.Minute))
	want := NewParser().Parse("open calculator")

	var wg sync.WaitGroup
	got := make([]Intent, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = p.Parse("open calculator")
		}(i)
	}
	wg.Wait()
	for _, in := range got {
		require.Equal(t, want, in)
	}
	require.Equal(t, 1, p.Cache().Len())
}
