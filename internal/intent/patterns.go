package intent

import (
	"regexp"
	"strings"
)

type categoryTable struct {
	category string
	patterns []*regexp.Regexp
}

type domainTables struct {
	domain Domain
	tables []categoryTable
}

const (
	shopSites   = `amazon|ebay|walmart|etsy|target|bestbuy|aliexpress`
	socialSites = `facebook|twitter|instagram|linkedin|reddit|mastodon`
	tlds        = `com|org|net|io|dev|co|edu|gov|app`
)

// knownApps is ordered longest phrase first so multi-word names win.
var knownApps = []string{
	"visual studio code", "system preferences", "system settings", "activity monitor",
	"google chrome", "app store",
	"calculator", "calendar", "chrome", "excel", "finder", "firefox", "mail", "messages",
	"music", "notes", "photos", "preview", "reminders", "safari", "slack", "spotify",
	"terminal", "textedit", "vscode", "word", "zoom",
}

func mustAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// catalog is evaluated in order: web tables first, then desktop.
// The first matching pattern wins.
var catalog = []domainTables{
	{
		domain: DomainWeb,
		tables: []categoryTable{
			{CategoryShopping, mustAll(
				`\b(?:search|look|shop)\s+for\s+.+?\s+on\s+(?:`+shopSites+`)\b`,
				`\b(?:buy|purchase|order)\s+\S.*`,
				`\badd\s+.+?\s+to\s+(?:my\s+|the\s+)?cart\b`,
				`\b(?:under|below|less\s+than)\s+\$\s?\d+`,
				`\b(?:`+shopSites+`)\b`,
			)},
			{CategoryForms, mustAll(
				`\b(?:fill\s+(?:out|in)|complete|submit)\s+(?:the\s+|a\s+|an\s+|this\s+|my\s+)?(?:\w+\s+)?(?:form|application|survey|questionnaire)\b`,
				`\b(?:sign\s*up|register|log\s*in|login|sign\s+in)\b(?:\s+(?:to|on|for|at)\s+\S+)?`,
			)},
			{CategorySocial, mustAll(
				`\b(?:post|tweet|share|like|comment)\b.*?\b(?:`+socialSites+`)\b`,
				`\b(?:`+socialSites+`)\b`,
			)},
			{CategoryBrowsing, mustAll(
				`\b(?:open|go\s+to|visit|navigate\s+to|browse(?:\s+to)?|load)\s+(?:https?://\S+|www\.\S+|[a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:`+tlds+`)\b\S*)`,
				`https?://\S+`,
				`\bwww\.[a-z0-9-]+\.\S+`,
				`^(?:search|google|look\s+up)\s+(?:for\s+)?\S.*`,
				`\bsearch\s+(?:the\s+web\s+|online\s+)?for\s+\S.*`,
				`\b(?:website|webpage|web\s+page|browser|new\s+tab)\b`,
			)},
		},
	},
	{
		domain: DomainDesktop,
		tables: []categoryTable{
			{CategoryApps, mustAll(
				`\b(?:open|launch|start|run|quit|close|switch\s+to|activate)\s+(?:the\s+)?(?:app\s+|application\s+)?(?:`+strings.Join(knownApps, "|")+`)\b`,
				`\b(?:launch|quit)\s+\w+`,
				`\b(?:open|start|close)\s+(?:the\s+)?\w+\s+(?:app|application)\b`,
			)},
			{CategoryFiles, mustAll(
				`\b(?:create|make|delete|remove|move|copy|rename|open|find|list)\s+(?:a\s+|an\s+|the\s+|my\s+|all\s+)?(?:new\s+)?(?:\w+\s+)?(?:files?|folders?|director(?:y|ies)|documents?)\b`,
				`(?:^|\s)(?:~|\.{1,2})?/[\w.~/-]+`,
				`\b[\w-]+\.(?:txt|pdf|docx?|xlsx?|csv|md|json|png|jpe?g|zip)\b`,
			)},
			{CategorySystem, mustAll(
				`\b(?:shut\s*down|restart|reboot|sleep|lock|log\s*out)\s+(?:the\s+|my\s+)?(?:computer|system|mac|machine|pc|screen)\b`,
				`\b(?:turn|set|increase|decrease|raise|lower|mute|unmute)\s+(?:up\s+|down\s+|on\s+|off\s+)?(?:the\s+)?(?:volume|brightness|wifi|wi-fi|bluetooth|sound)\b`,
				`\b(?:volume|brightness|wifi|wi-fi|bluetooth|dark\s+mode|do\s+not\s+disturb)\b`,
				`\bempty\s+(?:the\s+)?trash\b`,
			)},
		},
	},
}

// actionVerbs is the recognized action vocabulary.
var actionVerbs = map[string]struct{}{}

// coreVerbs earn the keyword bonus when present as a whole word.
var coreVerbs = map[string]struct{}{}

func init() {
	for _, v := range strings.Fields(`search find look buy purchase order shop add fill submit complete
		register login post tweet share like comment open visit navigate browse go load
		launch start run quit close switch activate create make delete remove move copy rename
		list shutdown restart reboot sleep lock turn set increase decrease mute unmute empty
		play pause send`) {
		actionVerbs[v] = struct{}{}
	}
	for _, v := range strings.Fields(`search find buy purchase open launch close quit visit navigate
		create delete move copy rename fill submit post share restart shutdown`) {
		coreVerbs[v] = struct{}{}
	}
}

var reWord = regexp.MustCompile(`[a-z]+`)
