package engine

import (
	"container/heap"
	"slices"
	"time"
)

// insertLocked places id before the first queued task of strictly lower
// priority, keeping FIFO order within a band.
func (s *Service) insertLocked(id string) {
	rank := s.tasks[id].Classification.Priority.Rank()
	at := len(s.queue)
	for i, qid := range s.queue {
		if s.tasks[qid].Classification.Priority.Rank() > rank {
			at = i
			break
		}
	}
	s.queue = slices.Insert(s.queue, at, id)
}

func (s *Service) dequeueLocked(id string) bool {
	if i := slices.Index(s.queue, id); i >= 0 {
		s.queue = slices.Delete(s.queue, i, i+1)
		return true
	}
	return false
}

type retryItem struct {
	id      string
	readyAt time.Time
	seq     uint64
}

// retryHeap is a min-heap of tasks waiting out their backoff, keyed by ready time.
type retryHeap []retryItem

func (h retryHeap) Len() int { return len(h) }
func (h retryHeap) Less(i, j int) bool {
	if h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].readyAt.Before(h[j].readyAt)
}
func (h retryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)   { *h = append(*h, x.(retryItem)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func (s *Service) unretryLocked(id string) bool {
	for i, it := range s.retries {
		if it.id == id {
			heap.Remove(&s.retries, i)
			return true
		}
	}
	return false
}

// promoteDueLocked moves every retry whose delay has elapsed to the front
// of the queue, earliest first. It returns the time the next retry is due,
// or the zero time if none are waiting.
func (s *Service) promoteDueLocked(now time.Time) (moved int, next time.Time) {
	var due []string
	for s.retries.Len() > 0 && !s.retries[0].readyAt.After(now) {
		due = append(due, heap.Pop(&s.retries).(retryItem).id)
	}
	if len(due) > 0 {
		s.queue = append(due, s.queue...)
	}
	if s.retries.Len() > 0 {
		next = s.retries[0].readyAt
	}
	return len(due), next
}

func (h *retryHeap) push(it retryItem) { heap.Push(h, it) }
