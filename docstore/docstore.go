// Package docstore provides a small in-memory document database with the
// semantics the game engine is written against: create-if-absent, reads,
// per-field merge updates (last write wins per field), conditional
// check-and-set updates, and per-document change subscriptions delivered
// in write order.
package docstore

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrExists   = errors.New("docstore: document already exists")
	ErrNotFound = errors.New("docstore: document not found")
)

// Document is a nested field map. Values are plain Go values; nested
// documents are themselves map[string]any.
type Document map[string]any

type entry struct {
	data    Document
	updated time.Time
}

// Store holds documents grouped by collection. All methods are safe for
// concurrent use.
type Store struct {
	mu   sync.Mutex
	docs map[string]*entry
	subs map[string]map[*subscription]struct{}
}

func NewStore() *Store {
	return &Store{
		docs: make(map[string]*entry),
		subs: make(map[string]map[*subscription]struct{}),
	}
}

func key(collection, id string) string {
	return collection + "/" + id
}

// Create inserts a new document, failing with ErrExists if the id is
// already taken. Callers use this as their collision check.
func (s *Store) Create(collection, id string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(collection, id)
	if _, ok := s.docs[k]; ok {
		return ErrExists
	}
	s.docs[k] = &entry{data: cloneDoc(doc), updated: time.Now()}
	s.notifyLocked(k)

	return nil
}

// Get returns a snapshot of the document, or ok=false if absent.
func (s *Store) Get(collection, id string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[key(collection, id)]
	if !ok {
		return nil, false
	}
	return cloneDoc(e.data), true
}

// Update merges the named fields into an existing document. Field names
// may be dotted paths ("players.abc.lastWord"); intermediate maps are
// created as needed. Untouched fields are preserved.
func (s *Store) Update(collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(collection, id)
	e, ok := s.docs[k]
	if !ok {
		return ErrNotFound
	}

	for path, v := range fields {
		setAt(e.data, path, cloneValue(v))
	}
	e.updated = time.Now()
	s.notifyLocked(k)

	return nil
}

// UpdateIf applies fields only when every expected path still holds its
// expected current value, returning whether the write was applied. Two
// clients racing to resolve the same round collapse to a single winner.
func (s *Store) UpdateIf(collection, id string, fields, expect map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(collection, id)
	e, ok := s.docs[k]
	if !ok {
		return false, ErrNotFound
	}

	for path, want := range expect {
		got, _ := valueAt(e.data, path)
		if !valuesEqual(got, want) {
			return false, nil
		}
	}

	for path, v := range fields {
		setAt(e.data, path, cloneValue(v))
	}
	e.updated = time.Now()
	s.notifyLocked(k)

	return true, nil
}

// Delete removes a document. Subscribers are told the document is gone.
// Deletion is an administrative action; nothing in the game engine calls it.
func (s *Store) Delete(collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(collection, id)
	if _, ok := s.docs[k]; !ok {
		return
	}
	delete(s.docs, k)
	s.notifyLocked(k)
}

// Reap deletes every document that has not been written to within the
// given duration and reports how many were removed.
func (s *Store) Reap(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	reaped := 0
	for k, e := range s.docs {
		if e.updated.Before(cutoff) {
			delete(s.docs, k)
			s.notifyLocked(k)
			reaped++
		}
	}
	return reaped
}

// Subscribe registers fn for a document. It is invoked once immediately
// with the current state (ok=false if absent), then after every committed
// change, in write order. The returned function cancels the subscription.
func (s *Store) Subscribe(collection, id string, fn func(doc Document, ok bool)) func() {
	sub := &subscription{fn: fn}
	sub.cond = sync.NewCond(&sub.mu)

	s.mu.Lock()
	k := key(collection, id)
	if s.subs[k] == nil {
		s.subs[k] = make(map[*subscription]struct{})
	}
	s.subs[k][sub] = struct{}{}

	// Initial snapshot, queued before any later write can be.
	if e, ok := s.docs[k]; ok {
		e.updated = time.Now()
		sub.push(cloneDoc(e.data), true)
	} else {
		sub.push(nil, false)
	}
	s.mu.Unlock()

	go sub.drain()

	return func() {
		s.mu.Lock()
		if set, ok := s.subs[k]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(s.subs, k)
			}
		}
		s.mu.Unlock()
		sub.stop()
	}
}

// notifyLocked queues the current state of k for every subscriber.
func (s *Store) notifyLocked(k string) {
	set := s.subs[k]
	if len(set) == 0 {
		return
	}

	var snapshot Document
	ok := false
	if e, present := s.docs[k]; present {
		snapshot = e.data
		ok = true
	}
	for sub := range set {
		if ok {
			sub.push(cloneDoc(snapshot), true)
		} else {
			sub.push(nil, false)
		}
	}
}

type change struct {
	doc Document
	ok  bool
}

// subscription buffers changes in an unbounded ordered queue so that a
// slow callback never drops or reorders deliveries.
type subscription struct {
	fn     func(Document, bool)
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []change
	closed bool
}

func (sub *subscription) push(doc Document, ok bool) {
	sub.mu.Lock()
	if !sub.closed {
		sub.queue = append(sub.queue, change{doc: doc, ok: ok})
		sub.cond.Signal()
	}
	sub.mu.Unlock()
}

func (sub *subscription) stop() {
	sub.mu.Lock()
	sub.closed = true
	sub.cond.Signal()
	sub.mu.Unlock()
}

func (sub *subscription) drain() {
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.closed {
			sub.cond.Wait()
		}
		if sub.closed {
			sub.mu.Unlock()
			return
		}
		c := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		sub.fn(c.doc, c.ok)
	}
}

// ---- field path helpers ----

func setAt(doc Document, path string, v any) {
	parts := strings.Split(path, ".")
	m := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func valueAt(doc Document, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(doc)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case int:
		if y, ok := b.(int); ok {
			return x == y
		}
	case string:
		if y, ok := b.(string); ok {
			return x == y
		}
	case bool:
		if y, ok := b.(bool); ok {
			return x == y
		}
	}
	return false
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return map[string]any(cloneDoc(x))
	case Document:
		return map[string]any(cloneDoc(Document(x)))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out
	default:
		return v
	}
}

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}
