package engine

import "errors"

var (
	// ErrProcessTimeout is returned by ProcessTasks when the scheduler does
	// not reach idle in time. No partial results accompany it.
	ErrProcessTimeout = errors.New("task engine did not reach idle before timeout")
	// ErrNotStarted is returned when waiting on work that no worker will run.
	ErrNotStarted = errors.New("task engine not started")

	errExecTimeout = errors.New("execution timed out")
)
