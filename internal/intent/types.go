package intent

import "maps"

// Domain is the execution surface an intent targets.
type Domain string

const (
	DomainWeb     Domain = "web"
	DomainDesktop Domain = "desktop"
	DomainUnknown Domain = "unknown"
)

// Parameter keys produced by the parser and read by the validator/classifier.
const (
	ParamURL        = "url"
	ParamSearchTerm = "searchTerm"
	ParamMaxPrice   = "maxPrice"
	ParamSite       = "site"
	ParamPlatform   = "platform"
	ParamAppName    = "appName"
	ParamFilePath   = "filePath"
)

// Categories with special meaning downstream.
const (
	CategoryInvalid      = "invalid"
	CategoryUnclassified = "unclassified"

	CategoryShopping = "shopping"
	CategoryForms    = "forms"
	CategorySocial   = "social"
	CategoryBrowsing = "browsing"

	CategoryApps   = "apps"
	CategoryFiles  = "files"
	CategorySystem = "system"
)

// Intent is the structured interpretation of a free-text request.
type Intent struct {
	Domain     Domain         `json:"domain"`
	Category   string         `json:"category"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
	Confidence float64        `json:"confidence"`
}

// Clone returns a copy that shares no maps with in.
func (in Intent) Clone() Intent {
	out := in
	out.Parameters = maps.Clone(in.Parameters)
	if out.Parameters == nil {
		out.Parameters = map[string]any{}
	}
	return out
}

// String returns the parameter under key if it is a non-empty string.
func (in Intent) String(key string) (string, bool) {
	v, ok := in.Parameters[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Number returns the parameter under key as float64 if it holds a number.
func (in Intent) Number(key string) (float64, bool) {
	switch v := in.Parameters[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
