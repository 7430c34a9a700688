// Package classify derives scheduling metadata from a sanitized intent.
package classify

import "intentd/internal/intent"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities for queue placement: lower ranks dispatch first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type Risk string

const (
	RiskSafe     Risk = "safe"
	RiskModerate Risk = "moderate"
	RiskHigh     Risk = "high"
)

// MaxRetries is the retry budget for a task of risk r.
func (r Risk) MaxRetries() int {
	switch r {
	case RiskHigh:
		return 1
	case RiskModerate:
		return 2
	default:
		return 3
	}
}

type Classification struct {
	Domain                   intent.Domain `json:"domain"`
	Category                 string        `json:"category"`
	Priority                 Priority      `json:"priority"`
	EstimatedDurationSeconds int           `json:"estimatedDurationSeconds"`
	RequiresConfirmation     bool          `json:"requiresConfirmation"`
	RiskLevel                Risk          `json:"riskLevel"`
}

const (
	highConfidence      = 0.8
	confirmAbovePrice   = 100
	moderateAbovePrice  = 500
	defaultDurationSecs = 15
)

var durations = map[intent.Domain]struct {
	fallback   int
	categories map[string]int
}{
	intent.DomainWeb: {20, map[string]int{
		intent.CategoryShopping: 30,
		intent.CategoryForms:    45,
		intent.CategoryBrowsing: 10,
		intent.CategorySocial:   20,
	}},
	intent.DomainDesktop: {10, map[string]int{
		intent.CategoryApps:   5,
		intent.CategorySystem: 3,
		intent.CategoryFiles:  8,
	}},
}

// Classify is total: every intent, including unknown ones, gets a
// classification.
func Classify(in intent.Intent) Classification {
	return Classification{
		Domain:                   in.Domain,
		Category:                 in.Category,
		Priority:                 priority(in),
		EstimatedDurationSeconds: EstimateDuration(in.Domain, in.Category),
		RequiresConfirmation:     requiresConfirmation(in),
		RiskLevel:                risk(in),
	}
}

func priority(in intent.Intent) Priority {
	if in.Confidence > highConfidence {
		return PriorityHigh
	}
	switch in.Category {
	case intent.CategorySystem, intent.CategoryFiles:
		return PriorityHigh
	case intent.CategoryShopping, intent.CategoryApps, intent.CategoryBrowsing:
		return PriorityMedium
	}
	return PriorityLow
}

// EstimateDuration looks up domain then category, falling back to the
// domain default and then to a global default.
func EstimateDuration(d intent.Domain, category string) int {
	t, ok := durations[d]
	if !ok {
		return defaultDurationSecs
	}
	if s, ok := t.categories[category]; ok {
		return s
	}
	return t.fallback
}

func requiresConfirmation(in intent.Intent) bool {
	switch in.Category {
	case intent.CategoryFiles, intent.CategorySystem, intent.CategorySocial:
		return true
	case intent.CategoryShopping:
		p, ok := price(in)
		return ok && p > confirmAbovePrice
	}
	return false
}

func risk(in intent.Intent) Risk {
	switch in.Category {
	case intent.CategorySystem, intent.CategoryFiles:
		return RiskHigh
	case intent.CategorySocial:
		return RiskModerate
	case intent.CategoryShopping:
		if p, ok := price(in); ok && p > moderateAbovePrice {
			return RiskModerate
		}
	}
	return RiskSafe
}

func price(in intent.Intent) (float64, bool) {
	if p, ok := in.Number(intent.ParamMaxPrice); ok {
		return p, true
	}
	return in.Number("price")
}
