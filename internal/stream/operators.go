package stream

import (
	"sync"
	"sync/atomic"
	"time"
)

// Distinct drops values equal to the previous value seen by the same
// subscription.
func Distinct[T comparable](src Observable[T]) Observable[T] {
	return DistinctFunc(src, func(a, b T) bool { return a == b })
}

// DistinctFunc is Distinct with a caller supplied equality.
func DistinctFunc[T any](src Observable[T], eq func(a, b T) bool) Observable[T] {
	return Func[T](func(fn func(T)) func() {
		var (
			mu   sync.Mutex
			last T
			seen bool
		)
		return src.Subscribe(func(v T) {
			mu.Lock()
			if seen && eq(last, v) {
				mu.Unlock()
				return
			}
			last, seen = v, true
			mu.Unlock()
			fn(v)
		})
	})
}

// Skip drops the first n values of every subscription.
func Skip[T any](src Observable[T], n int) Observable[T] {
	return Func[T](func(fn func(T)) func() {
		var (
			mu      sync.Mutex
			skipped int
		)
		return src.Subscribe(func(v T) {
			mu.Lock()
			if skipped < n {
				skipped++
				mu.Unlock()
				return
			}
			mu.Unlock()
			fn(v)
		})
	})
}

// Updates drops values delivered while Subscribe is still running. For a
// Subject, and anything combined from subjects, that is the replayed current
// state; everything published afterwards passes.
func Updates[T any](src Observable[T]) Observable[T] {
	return Func[T](func(fn func(T)) func() {
		var live atomic.Bool
		cancel := src.Subscribe(func(v T) {
			if live.Load() {
				fn(v)
			}
		})
		live.Store(true)
		return cancel
	})
}

// Map transforms every value.
func Map[T, R any](src Observable[T], f func(T) R) Observable[R] {
	return Func[R](func(fn func(R)) func() {
		return src.Subscribe(func(v T) { fn(f(v)) })
	})
}

// Filter forwards values for which keep returns true.
func Filter[T any](src Observable[T], keep func(T) bool) Observable[T] {
	return Func[T](func(fn func(T)) func() {
		return src.Subscribe(func(v T) {
			if keep(v) {
				fn(v)
			}
		})
	})
}

// Debounce forwards the last value of a burst once d has elapsed without a
// newer value. Delivery happens on a timer goroutine.
func Debounce[T any](src Observable[T], d time.Duration) Observable[T] {
	return Func[T](func(fn func(T)) func() {
		var (
			mu      sync.Mutex
			emit    sync.Mutex
			timer   *time.Timer
			gen     uint64
			pending T
			stopped bool
		)
		cancel := src.Subscribe(func(v T) {
			mu.Lock()
			defer mu.Unlock()
			if stopped {
				return
			}
			gen++
			g := gen
			pending = v
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(d, func() {
				emit.Lock()
				defer emit.Unlock()

				mu.Lock()
				if stopped || g != gen {
					mu.Unlock()
					return
				}
				out := pending
				mu.Unlock()
				fn(out)
			})
		})
		return func() {
			cancel()
			mu.Lock()
			stopped = true
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}
	})
}

// Pair is the value of a two-way latest-value join.
type Pair[A, B any] struct {
	First  A
	Second B
}

// CombineLatest emits f(latestA, latestB) whenever either input emits, but
// only once both inputs have produced at least one value.
func CombineLatest[A, B, R any](a Observable[A], b Observable[B], f func(A, B) R) Observable[R] {
	return Func[R](func(fn func(R)) func() {
		var (
			mu   sync.Mutex
			la   A
			lb   B
			hasA bool
			hasB bool
		)
		cancelA := a.Subscribe(func(v A) {
			mu.Lock()
			defer mu.Unlock()
			la, hasA = v, true
			if hasB {
				fn(f(la, lb))
			}
		})
		cancelB := b.Subscribe(func(v B) {
			mu.Lock()
			defer mu.Unlock()
			lb, hasB = v, true
			if hasA {
				fn(f(la, lb))
			}
		})
		return func() {
			cancelA()
			cancelB()
		}
	})
}

// Combine joins a and b into a Pair stream.
func Combine[A, B any](a Observable[A], b Observable[B]) Observable[Pair[A, B]] {
	return CombineLatest(a, b, func(x A, y B) Pair[A, B] { return Pair[A, B]{First: x, Second: y} })
}

// ObserveOn moves delivery onto exec. Values posted before cancellation but
// not yet run are dropped.
func ObserveOn[T any](src Observable[T], exec Executor) Observable[T] {
	return Func[T](func(fn func(T)) func() {
		var (
			mu        sync.Mutex
			cancelled bool
		)
		cancel := src.Subscribe(func(v T) {
			exec.Post(func() {
				mu.Lock()
				c := cancelled
				mu.Unlock()
				if !c {
					fn(v)
				}
			})
		})
		return func() {
			cancel()
			mu.Lock()
			cancelled = true
			mu.Unlock()
		}
	})
}
