package validate

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"intentd/internal/intent"
)

const (
	MaxTextLength       = 1000
	MaxSearchTermLength = 200
	MinPrice            = 0
	MaxPrice            = 10000
)

// Outcome is the result of validating one request.
// Sanitized is non-nil iff Errors is empty.
type Outcome struct {
	Valid     bool           `json:"valid"`
	Errors    []string       `json:"errors"`
	Warnings  []string       `json:"warnings"`
	Sanitized *intent.Intent `json:"sanitized,omitempty"`
}

var harmfulPatterns = compileAll(
	// Destructive shell idioms.
	`\brm\s+-[a-z]*(?:r[a-z]*f|f[a-z]*r)`,
	`\bsudo\s+rm\b`,
	`\bmkfs(?:\.\w+)?\b`,
	`\bdd\s+if=`,
	`>\s*/dev/(?:sd|disk|nvme|hd)`,
	`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`,
	`\bchmod\s+(?:-r\s+)?777\s+/`,
	`\bdiskutil\s+(?:erase|zero|secureerase)`,
	// Credential and keychain probing.
	`\bsecurity\s+(?:find|dump|export)-(?:generic-|internet-)?(?:password|keychain)`,
	`\b(?:dump|export|steal|extract|exfiltrate)\b.*\b(?:keychain|passwords?|credentials?)\b`,
	`/etc/(?:passwd|shadow|sudoers)\b`,
	`\.ssh/id_[a-z0-9]+`,
	// Downloads piped into a shell.
	`\b(?:curl|wget)\b[^|]*\|\s*(?:sudo\s+)?(?:ba|z|k|da)?sh\b`,
	// Script injection.
	`<\s*script\b`,
	`\bjavascript\s*:`,
	`\bon(?:load|error|click|mouseover|focus)\s*=`,
	`\beval\s*\(`,
	`\$\([^)]*\)`,
	"`[^`]*`",
	`\bdo\s+shell\s+script\b`,
	`\bosascript\s+-e\b`,
)

type keyword struct {
	name string
	re   *regexp.Regexp
}

var sensitiveKeywords = []keyword{
	{"admin", regexp.MustCompile(`(?i)\badmin(?:istrator)?\b`)},
	{"root", regexp.MustCompile(`(?i)\broot\b`)},
	{"password", regexp.MustCompile(`(?i)\bpass(?:word|wd)s?\b`)},
	{"secret", regexp.MustCompile(`(?i)\bsecrets?\b`)},
	{"token", regexp.MustCompile(`(?i)\btokens?\b`)},
	{"credential", regexp.MustCompile(`(?i)\bcredentials?\b`)},
	{"private key", regexp.MustCompile(`(?i)\bprivate\s+keys?\b`)},
	{"api key", regexp.MustCompile(`(?i)\bapi[\s_-]?keys?\b`)},
	{"sudo", regexp.MustCompile(`(?i)\bsudo\b`)},
	{"bank account", regexp.MustCompile(`(?i)\bbank\s+accounts?\b`)},
}

var allowedApps = map[string]struct{}{}

func init() {
	for _, a := range []string{
		"calculator", "calendar", "chrome", "google chrome", "firefox", "safari", "finder",
		"notes", "mail", "messages", "music", "photos", "preview", "reminders", "slack",
		"spotify", "textedit", "visual studio code", "vscode", "zoom", "word", "excel",
	} {
		allowedApps[a] = struct{}{}
	}
}

var privilegedPrefixes = []string{
	"/system", "/bin", "/sbin", "/usr/bin", "/usr/sbin", "/usr/lib", "/etc",
	"/private/etc", "/private/var/db", "/library/launchdaemons", "/var/root",
	"/boot", "/proc", "/dev", "c:/windows",
}

var sensitivePrefixes = []string{
	"~/.ssh", "~/.aws", "~/.config", "~/.gnupg", "~/library", "/library",
	"/usr/local", "/var", "/opt", "/applications",
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

// Validator checks raw request text and a parsed intent. It is stateless and
// performs no I/O; the zero value is ready to use.
type Validator struct{}

func New() *Validator { return &Validator{} }

// Validate applies every rule in order; rules only add errors or warnings.
func (v *Validator) Validate(raw string, in intent.Intent) Outcome {
	var r report

	text := strings.TrimSpace(raw)
	if text == "" {
		r.fail("empty request")
	}
	if n := utf8.RuneCountInString(raw); n > MaxTextLength {
		r.fail(fmt.Sprintf("request too long: %d characters (max %d)", n, MaxTextLength))
	}

	for _, re := range harmfulPatterns {
		if re.MatchString(raw) {
			r.fail("request contains harmful patterns")
			break
		}
	}

	for _, kw := range sensitiveKeywords {
		if kw.re.MatchString(raw) {
			r.warn("sensitive keyword detected: " + kw.name)
		}
	}

	if u, ok := in.String(intent.ParamURL); ok {
		checkURL(u, &r)
	}

	switch in.Domain {
	case intent.DomainWeb:
		checkWeb(in, &r)
	case intent.DomainDesktop:
		checkDesktop(in, &r)
	}

	out := Outcome{Valid: len(r.errors) == 0, Errors: r.errors, Warnings: r.warnings}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	if out.Valid {
		s := Sanitize(in)
		out.Sanitized = &s
	}
	return out
}

type report struct {
	errors   []string
	warnings []string
}

func (r *report) fail(msg string) { r.errors = append(r.errors, msg) }
func (r *report) warn(msg string) { r.warnings = append(r.warnings, msg) }

func checkURL(raw string, r *report) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		r.fail(fmt.Sprintf("URL not allowed: %q is not a valid URL", raw))
		return
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		r.fail(fmt.Sprintf("URL not allowed: scheme %q", u.Scheme))
		return
	}
	if isLocalHost(u.Hostname()) {
		r.warn("local network access: " + u.Hostname())
	}
}

func isLocalHost(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") || strings.HasSuffix(h, ".local") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
}

func checkWeb(in intent.Intent, r *report) {
	for _, key := range []string{intent.ParamMaxPrice, "price"} {
		if p, ok := in.Number(key); ok && (p < MinPrice || p > MaxPrice) {
			r.warn(fmt.Sprintf("price range unusual: %g", p))
		}
	}
	if term, ok := in.String(intent.ParamSearchTerm); ok {
		if n := utf8.RuneCountInString(term); n > MaxSearchTermLength {
			r.fail(fmt.Sprintf("search term too long: %d characters (max %d)", n, MaxSearchTermLength))
		}
	}
}

func checkDesktop(in intent.Intent, r *report) {
	if app, ok := in.String(intent.ParamAppName); ok {
		if _, allowed := allowedApps[strings.ToLower(strings.TrimSpace(app))]; !allowed {
			r.warn(fmt.Sprintf("application %q not in allowed list", app))
		}
	}
	p, ok := in.String(intent.ParamFilePath)
	if !ok {
		return
	}
	candidates := pathForms(p)
	for _, c := range candidates {
		if hasAnyPrefix(c, privilegedPrefixes) {
			r.fail("system directory not allowed: " + p)
			return
		}
	}
	for _, c := range candidates {
		if hasAnyPrefix(c, sensitivePrefixes) {
			r.warn("path points to a sensitive location: " + p)
			return
		}
	}
}

// pathForms returns the raw and cleaned lower-case forms of p so that
// "/./etc" or "//etc" cannot slip past a prefix check.
func pathForms(p string) []string {
	raw := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p), `\`, "/"))
	return []string{raw, path.Clean(raw)}
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if p == pre || strings.HasPrefix(p, pre+"/") {
			return true
		}
	}
	return false
}
