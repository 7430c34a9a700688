package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"intentd/internal/classify"
	"intentd/internal/intent"
)

// Plan is what DryRun reports instead of doing anything.
type Plan struct {
	Kind       string         `json:"kind"`
	Action     string         `json:"action"`
	Category   string         `json:"category"`
	Summary    string         `json:"summary"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Confirm    bool           `json:"requiresConfirmation"`
}

// DryRun succeeds for every routable intent and returns a Plan as data.
type DryRun struct{}

func (DryRun) Execute(ctx context.Context, in intent.Intent, c classify.Classification) Result {
	if err := ctx.Err(); err != nil {
		return Fail(err)
	}
	k := KindOf(in.Domain)
	if k == KindUnknown {
		return Failf("no executor for domain %q", in.Domain)
	}
	return OK(Plan{
		Kind:       k.String(),
		Action:     in.Action,
		Category:   in.Category,
		Summary:    summarize(in),
		Parameters: in.Clone().Parameters,
		Confirm:    c.RequiresConfirmation,
	})
}

func summarize(in intent.Intent) string {
	var b strings.Builder
	b.WriteString("would ")
	b.WriteString(in.Action)
	keys := make([]string, 0, len(in.Parameters))
	for k := range in.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		fmt.Fprint(&b, in.Parameters[k])
	}
	return b.String()
}
