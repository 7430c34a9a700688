// Package executor defines the boundary between the scheduler and whatever
// actually performs a task: a browser engine for web intents, an
// OS-scripting bridge for desktop ones.
package executor

import (
	"context"
	"fmt"

	"intentd/internal/classify"
	"intentd/internal/intent"
)

// Result is the outcome of one execution attempt. A false Success drives
// the scheduler's retry policy.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(data any) Result { return Result{Success: true, Data: data} }

func Fail(err error) Result {
	if err == nil {
		return Result{Error: "unknown error"}
	}
	return Result{Error: err.Error()}
}

func Failf(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Executor runs one attempt for a task. Implementations must report every
// failure through Result rather than panicking; the engine still recovers
// panics and records them as failures.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent, c classify.Classification) Result
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, in intent.Intent, c classify.Classification) Result

func (f Func) Execute(ctx context.Context, in intent.Intent, c classify.Classification) Result {
	return f(ctx, in, c)
}

// Kind is the closed set of execution surfaces.
type Kind int

const (
	KindUnknown Kind = iota
	KindWeb
	KindDesktop
)

func (k Kind) String() string {
	switch k {
	case KindWeb:
		return "web"
	case KindDesktop:
		return "desktop"
	default:
		return "unknown"
	}
}

func KindOf(d intent.Domain) Kind {
	switch d {
	case intent.DomainWeb:
		return KindWeb
	case intent.DomainDesktop:
		return KindDesktop
	default:
		return KindUnknown
	}
}

// Router dispatches to the runner for the intent's kind. A nil runner
// yields a failed result.
type Router struct {
	Web     Executor
	Desktop Executor
}

func (r Router) Execute(ctx context.Context, in intent.Intent, c classify.Classification) Result {
	var ex Executor
	switch k := KindOf(in.Domain); k {
	case KindWeb:
		ex = r.Web
	case KindDesktop:
		ex = r.Desktop
	default:
		return Failf("no executor for domain %q", in.Domain)
	}
	if ex == nil {
		return Failf("%s executor not configured", KindOf(in.Domain))
	}
	if err := ctx.Err(); err != nil {
		return Fail(err)
	}
	return ex.Execute(ctx, in, c)
}
