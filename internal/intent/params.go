package intent

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reURL        = regexp.MustCompile(`https?://[^\s"'<>]+`)
	reWWW        = regexp.MustCompile(`\bwww\.[^\s"'<>]+`)
	reBareDomain = regexp.MustCompile(`\b[a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:` + tlds + `)\b(?:/[^\s"'<>]*)?`)

	reQuoted       = regexp.MustCompile(`"([^"]+)"|“([^”]+)”|(?:^|\s)'([^']+)'(?:\s|$)`)
	searchTail     = `((?:\s+(?:on|at|from|in)\s+\S+|\s+(?:under|below|less\s+than|cheaper\s+than|up\s+to)\s+\$\S*)*)$`
	reSearchTerm   = regexp.MustCompile(`\b(?:search|look|shop|find)\s+(?:for\s+)?(.+?)` + searchTail)
	reBuyTerm      = regexp.MustCompile(`\b(?:buy|purchase|order)\s+(?:a\s+|an\s+|some\s+|the\s+)?(.+?)` + searchTail)
	reCartTerm     = regexp.MustCompile(`\badd\s+(.+?)\s+to\s+(?:my\s+|the\s+)?cart\b`)
	reMaxPrice     = regexp.MustCompile(`\b(?:under|below|less\s+than|cheaper\s+than|max(?:imum)?|up\s+to)\s+\$\s?(\d+(?:,\d{3})*(?:\.\d+)?)`)
	reShopSite     = regexp.MustCompile(`\b(` + shopSites + `)\b`)
	reSocialSite   = regexp.MustCompile(`\b(` + socialSites + `)\b`)
	reKnownApp     = regexp.MustCompile(`\b(` + strings.Join(knownApps, "|") + `)\b`)
	reAppAfterVerb = regexp.MustCompile(`\b(?:open|launch|start|run|quit|close|switch\s+to|activate)\s+(?:the\s+)?(?:app\s+|application\s+)?([a-z][a-z0-9-]*)`)
	rePath         = regexp.MustCompile(`(?:^|\s)((?:~|\.{1,2})?/[^\s"'<>|]+)`)
	reFileName     = regexp.MustCompile(`\b([\w-]+\.(?:txt|pdf|docx?|xlsx?|csv|md|json|png|jpe?g|zip))\b`)
	reExtAfter     = regexp.MustCompile(`^\.[a-z0-9]+\b`)
)

// notAppNames are words that follow an app verb but do not name an app.
var notAppNames = map[string]struct{}{
	"a": {}, "an": {}, "new": {}, "file": {}, "files": {}, "folder": {}, "folders": {},
	"directory": {}, "document": {}, "documents": {}, "my": {}, "all": {}, "it": {},
}

func extractParameters(d Domain, text string) map[string]any {
	params := map[string]any{}
	switch d {
	case DomainWeb:
		extractWeb(text, params)
	case DomainDesktop:
		extractDesktop(text, params)
	}
	return params
}

func extractWeb(text string, params map[string]any) {
	if u := findURL(text); u != "" {
		params[ParamURL] = u
	}
	if term := findSearchTerm(text); term != "" {
		params[ParamSearchTerm] = term
	}
	if m := reMaxPrice.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			params[ParamMaxPrice] = v
		}
	}
	if m := reShopSite.FindStringSubmatch(text); m != nil {
		params[ParamSite] = m[1]
	}
	if m := reSocialSite.FindStringSubmatch(text); m != nil {
		params[ParamPlatform] = m[1]
	}
}

func extractDesktop(text string, params map[string]any) {
	// App names are looked up outside of paths and file names
	// ("~/notes/x" and "notes.txt" name no app).
	bare := reFileName.ReplaceAllString(rePath.ReplaceAllString(text, " "), " ")
	if m := reKnownApp.FindStringSubmatch(bare); m != nil {
		params[ParamAppName] = m[1]
	} else if m := reAppAfterVerb.FindStringSubmatch(bare); m != nil {
		if _, skip := notAppNames[m[1]]; !skip {
			params[ParamAppName] = m[1]
		}
	}
	if m := rePath.FindStringSubmatch(text); m != nil {
		params[ParamFilePath] = m[1]
	} else if m := reFileName.FindStringSubmatch(text); m != nil {
		params[ParamFilePath] = m[1]
	}
}

func findURL(text string) string {
	if u := reURL.FindString(text); u != "" {
		return u
	}
	if u := reWWW.FindString(text); u != "" {
		return "https://" + u
	}
	if u := reBareDomain.FindString(text); u != "" {
		return "https://" + u
	}
	return ""
}

func findSearchTerm(text string) string {
	if m := reQuoted.FindStringSubmatch(text); m != nil {
		for _, g := range m[1:] {
			if g = strings.TrimSpace(g); g != "" {
				return g
			}
		}
	}
	for _, re := range []*regexp.Regexp{reSearchTerm, reBuyTerm, reCartTerm} {
		if m := re.FindStringSubmatch(text); m != nil {
			if term := strings.TrimSpace(m[1]); term != "" {
				return term
			}
		}
	}
	return ""
}
