// Package errqueue collects the non-fatal errors raised while walking,
// checking and updating. Engines never stop on them; they are handed to a
// caller supplied Sink and copied into the report.
package errqueue

import (
	"fmt"
	"sync"

	"tripline/fco"
	"tripline/logger"
)

type Kind uint8

const (
	// KindObject is a failure on a single object (permission denied, vanished
	// file, unreadable content).
	KindObject Kind = iota + 1
	// KindSpec means a spec could not be processed at all.
	KindSpec
	// KindConflict is a report entry that no longer agrees with the database.
	KindConflict
	// KindViolation is a difference found while updating the policy.
	KindViolation
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindSpec:
		return "spec"
	case KindConflict:
		return "conflict"
	case KindViolation:
		return "violation"
	}
	return "unknown"
}

// Item is one queued error.
type Item struct {
	Kind    Kind
	Genre   fco.Genre
	Spec    string
	Path    string
	Message string
	Err     error
}

func (i *Item) Error() string {
	msg := i.Message
	if msg == "" && i.Err != nil {
		msg = i.Err.Error()
	}
	if i.Path != "" {
		return fmt.Sprintf("%s: %s: %s", i.Kind, i.Path, msg)
	}
	return fmt.Sprintf("%s: %s", i.Kind, msg)
}

func (i *Item) Unwrap() error { return i.Err }

// Sink receives non-fatal errors.
type Sink interface {
	Add(item *Item)
}

// Queue is a Sink that keeps every item. It is safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []*Item
	log   bool
}

func New() *Queue { return &Queue{} }

// NewLogging returns a queue that also logs each item as a warning.
func NewLogging() *Queue { return &Queue{log: true} }

func (q *Queue) Add(item *Item) {
	if item == nil {
		return
	}
	if q.log {
		logger.WithFields(map[string]interface{}{
			"kind":  item.Kind.String(),
			"genre": item.Genre.String(),
			"spec":  item.Spec,
		}).Warn(item.Error())
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Items returns a snapshot of the queued items.
func (q *Queue) Items() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Item(nil), q.items...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Count returns how many items of kind k were queued.
func (q *Queue) Count(k Kind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.Kind == k {
			n++
		}
	}
	return n
}

func (q *Queue) Reset() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
