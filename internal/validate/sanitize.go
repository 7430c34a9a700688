package validate

import (
	"regexp"
	"strings"

	"intentd/internal/intent"
)

var (
	reAppDisallowed = regexp.MustCompile(`[^a-z0-9\s-]+`)
	reSpaces        = regexp.MustCompile(`\s+`)
)

// Sanitize returns a copy of in with string parameters cleaned.
// Parameters it does not know about are copied through.
func Sanitize(in intent.Intent) intent.Intent {
	out := in.Clone()
	if v, ok := out.String(intent.ParamSearchTerm); ok {
		out.Parameters[intent.ParamSearchTerm] = SearchTerm(v)
	}
	if v, ok := out.String(intent.ParamAppName); ok {
		out.Parameters[intent.ParamAppName] = AppName(v)
	}
	if v, ok := out.String(intent.ParamFilePath); ok {
		out.Parameters[intent.ParamFilePath] = FilePath(v)
	}
	return out
}

// SearchTerm removes markup-significant characters and truncates to
// MaxSearchTermLength runes.
func SearchTerm(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'':
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > MaxSearchTermLength {
		s = strings.TrimSpace(string(r[:MaxSearchTermLength]))
	}
	return s
}

func AppName(s string) string {
	s = reAppDisallowed.ReplaceAllString(strings.ToLower(s), "")
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// FilePath drops "." and ".." segments, invalid filename characters and
// repeated separators. The result is never above its root ("/", "~/" or
// the current directory).
func FilePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	p = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return -1
		}
		return r
	}, p)

	root := ""
	switch {
	case p == "~" || strings.HasPrefix(p, "~/"):
		root, p = "~/", strings.TrimPrefix(p, "~")
	case strings.HasPrefix(p, "/"):
		root = "/"
	}

	var keep []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		keep = append(keep, seg)
	}
	return root + strings.Join(keep, "/")
}
