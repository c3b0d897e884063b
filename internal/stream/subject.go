// Package stream implements push-based state streams and the operators used to
// compose them into notification pipelines.
package stream

import (
	"slices"
	"sync"
)

// Observable is a push source. Subscribe registers fn and returns a function
// that removes the registration. Calling the returned function more than once
// is safe.
type Observable[T any] interface {
	Subscribe(fn func(T)) (cancel func())
}

// Func adapts a plain subscribe function to Observable.
type Func[T any] func(fn func(T)) func()

func (f Func[T]) Subscribe(fn func(T)) func() { return f(fn) }

// Subject is a behavior-style stream: it remembers the last published value
// and replays it synchronously to every new subscriber.
//
// Subscribers are called on the publishing goroutine and must not block;
// slow consumers go through ObserveOn or Debounce.
type Subject[T any] struct {
	pub sync.Mutex // one publisher at a time

	mu    sync.Mutex
	value T
	has   bool
	subs  map[uint64]func(T)
	next  uint64
}

// NewSubject returns an empty subject. Subscribers receive nothing until the
// first Publish.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{subs: make(map[uint64]func(T))}
}

// NewBehavior returns a subject holding initial.
func NewBehavior[T any](initial T) *Subject[T] {
	s := NewSubject[T]()
	s.value = initial
	s.has = true
	return s
}

// Publish stores v and delivers it to the current subscribers in
// registration order.
func (s *Subject[T]) Publish(v T) {
	s.pub.Lock()
	defer s.pub.Unlock()

	s.mu.Lock()
	s.value = v
	s.has = true
	fns := s.snapshot()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Value returns the last published value.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.has
}

// Subscribe registers fn. If the subject already holds a value, fn receives
// it before Subscribe returns.
func (s *Subject[T]) Subscribe(fn func(T)) func() {
	// Holding pub keeps a concurrent Publish from interleaving with the replay.
	s.pub.Lock()
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	v, has := s.value, s.has
	s.mu.Unlock()
	if has {
		fn(v)
	}
	s.pub.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Len reports the number of live subscriptions.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subject[T]) snapshot() []func(T) {
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = s.subs[id]
	}
	return fns
}
