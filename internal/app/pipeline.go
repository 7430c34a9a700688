package app

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"intentd/internal/classify"
	"intentd/internal/intent"
	"intentd/internal/storage"
	"intentd/internal/validate"
	logx "intentd/pkg/logx"
)

// Analysis is what the intake pipeline derives from one request.
// Classification is set only when the request is valid.
type Analysis struct {
	Text           string                   `json:"text"`
	Intent         intent.Intent            `json:"intent"`
	Validation     validate.Outcome         `json:"validation"`
	Classification *classify.Classification `json:"classification,omitempty"`
}

// Submission is an accepted request and the task it became.
type Submission struct {
	Analysis
	TaskID string `json:"taskId"`
}

// Analyze parses, validates and classifies text without enqueueing it.
func (a *App) Analyze(text string) Analysis {
	in := a.parser.Parse(text)
	out := a.validator.Validate(text, in)
	an := Analysis{Text: text, Intent: in, Validation: out}
	if out.Valid && out.Sanitized != nil {
		c := classify.Classify(*out.Sanitized)
		an.Classification = &c
	}
	return an
}

// Submit runs text through the pipeline and enqueues the sanitized intent.
// A request that fails validation returns a *RejectedError.
func (a *App) Submit(ctx context.Context, text string) (Submission, error) {
	if lim := a.rateLimiter(); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return Submission{}, fmt.Errorf("submit throttled: %w", err)
		}
	}
	an := a.Analyze(text)
	if an.Classification == nil {
		a.log.Warn("request rejected",
			logx.Strings("errors", an.Validation.Errors),
			logx.String("category", an.Intent.Category))
		return Submission{Analysis: an}, &RejectedError{Outcome: an.Validation}
	}
	if len(an.Validation.Warnings) > 0 {
		a.log.Info("request accepted with warnings", logx.Strings("warnings", an.Validation.Warnings))
	}
	id := a.engine.AddTask(*an.Validation.Sanitized, *an.Classification)
	a.log.Debug("request queued",
		logx.String("task", id),
		logx.String("domain", string(an.Intent.Domain)),
		logx.String("priority", string(an.Classification.Priority)))
	return Submission{Analysis: an, TaskID: id}, nil
}

// ClearCompleted drops completed and failed tasks from the engine and
// archives them. The tasks are removed even if archiving fails.
func (a *App) ClearCompleted(ctx context.Context) (int, error) {
	removed := a.engine.ClearCompleted()
	if err := (storeArchiver{store: a.store}).Archive(ctx, removed); err != nil {
		return len(removed), fmt.Errorf("archive cleared tasks: %w", err)
	}
	return len(removed), nil
}

// Recent returns archived tasks, newest first.
func (a *App) Recent(ctx context.Context, limit int) ([]storage.TaskRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.Recent(ctx, limit)
}

func (a *App) rateLimiter() *rate.Limiter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.limiter
}

// setRate installs, retunes or removes the submit limiter. perSec <= 0
// disables throttling.
func (a *App) setRate(perSec float64, burst int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if perSec <= 0 {
		a.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	if a.limiter == nil {
		a.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		return
	}
	a.limiter.SetLimit(rate.Limit(perSec))
	a.limiter.SetBurst(burst)
}
