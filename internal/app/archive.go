package app

import (
	"context"
	"time"

	"intentd/internal/storage"
	"intentd/internal/task/engine"
)

// storeArchiver adapts a storage.Store to the reclaimer's Archiver.
type storeArchiver struct {
	store storage.Store
}

func (a storeArchiver) Archive(ctx context.Context, tasks []engine.Task) error {
	if a.store == nil || len(tasks) == 0 {
		return nil
	}
	recs := make([]storage.TaskRecord, 0, len(tasks))
	for _, t := range tasks {
		recs = append(recs, toRecord(t))
	}
	return a.store.Append(ctx, recs...)
}

func toRecord(t engine.Task) storage.TaskRecord {
	var completed time.Time
	if t.CompletedAt != nil {
		completed = *t.CompletedAt
	}
	errText := t.Error
	if errText == "" && t.Result != nil && !t.Result.Success {
		errText = t.Result.Error
	}
	return storage.TaskRecord{
		ID:          t.ID,
		Status:      string(t.Status),
		Domain:      string(t.Intent.Domain),
		Category:    t.Intent.Category,
		Action:      t.Intent.Action,
		Parameters:  t.Intent.Parameters,
		Priority:    string(t.Classification.Priority),
		Risk:        string(t.Classification.RiskLevel),
		RetryCount:  t.RetryCount,
		MaxRetries:  t.MaxRetries,
		Error:       errText,
		CreatedAt:   t.CreatedAt,
		CompletedAt: completed,
	}
}
