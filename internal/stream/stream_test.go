package stream_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joygram/flowOSD-sub000/internal/stream"
)

type recorder[T any] struct {
	mu   sync.Mutex
	vals []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.vals = append(r.vals, v)
	r.mu.Unlock()
}

func (r *recorder[T]) get() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.vals))
	copy(out, r.vals)
	return out
}

func TestSubjectReplaysCurrentValueSynchronously(t *testing.T) {
	s := stream.NewBehavior(3)
	s.Publish(7)

	var got []int
	cancel := s.Subscribe(func(v int) { got = append(got, v) })
	defer cancel()

	require.Equal(t, []int{7}, got, "late subscriber must see the snapshot before Subscribe returns")

	s.Publish(9)
	assert.Equal(t, []int{7, 9}, got)
}

func TestSubjectEmptyUntilFirstPublish(t *testing.T) {
	s := stream.NewSubject[string]()
	_, ok := s.Value()
	assert.False(t, ok)

	var got []string
	cancel := s.Subscribe(func(v string) { got = append(got, v) })
	assert.Empty(t, got)

	s.Publish("on")
	cancel()
	cancel()
	s.Publish("off")

	assert.Equal(t, []string{"on"}, got)
	assert.Zero(t, s.Len())
}

func TestDistinct(t *testing.T) {
	s := stream.NewSubject[int]()
	var got []int
	cancel := stream.Distinct[int](s).Subscribe(func(v int) { got = append(got, v) })
	defer cancel()

	for _, v := range []int{1, 1, 2, 2, 2, 1, 3, 3} {
		s.Publish(v)
	}
	assert.Equal(t, []int{1, 2, 1, 3}, got)
}

func TestSkipAndMap(t *testing.T) {
	s := stream.NewBehavior(0)
	var got []string
	labels := stream.Map[int, string](stream.Skip[int](s, 1), func(v int) string {
		return map[int]string{1: "one", 2: "two"}[v]
	})
	cancel := labels.Subscribe(func(v string) { got = append(got, v) })
	defer cancel()

	s.Publish(1)
	s.Publish(2)
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestUpdatesDropOnlyTheReplay(t *testing.T) {
	full := stream.NewBehavior(true)
	var got []bool
	cancel := stream.Updates[bool](stream.Distinct[bool](full)).Subscribe(func(v bool) { got = append(got, v) })
	full.Publish(true)
	full.Publish(false)
	cancel()
	assert.Equal(t, []bool{false}, got, "equal to the snapshot is not a change")

	empty := stream.NewSubject[int]()
	var first []int
	cancel = stream.Updates[int](empty).Subscribe(func(v int) { first = append(first, v) })
	defer cancel()
	empty.Publish(7)
	assert.Equal(t, []int{7}, first, "nothing to replay, first value passes")
}

func TestDebounceCollapsesBurstToLastValue(t *testing.T) {
	s := stream.NewSubject[int]()
	rec := &recorder[int]{}
	cancel := stream.Debounce[int](s, 50*time.Millisecond).Subscribe(rec.add)
	defer cancel()

	// five changes within ~30 ms
	for i := 1; i <= 5; i++ {
		s.Publish(i)
		time.Sleep(6 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, []int{5}, rec.get())
}

func TestDebounceCancelStopsPendingValue(t *testing.T) {
	s := stream.NewSubject[int]()
	rec := &recorder[int]{}
	cancel := stream.Debounce[int](s, 30*time.Millisecond).Subscribe(rec.add)

	s.Publish(1)
	cancel()
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.get())
}

func TestCombineLatestWaitsForBothInputs(t *testing.T) {
	a := stream.NewSubject[int]()
	b := stream.NewSubject[string]()

	var got []stream.Pair[int, string]
	cancel := stream.Combine[int, string](a, b).Subscribe(func(p stream.Pair[int, string]) {
		got = append(got, p)
	})
	defer cancel()

	a.Publish(1)
	a.Publish(2)
	assert.Empty(t, got, "no combined event before B emits")

	b.Publish("x")
	a.Publish(3)
	b.Publish("y")

	assert.Equal(t, []stream.Pair[int, string]{
		{First: 2, Second: "x"},
		{First: 3, Second: "x"},
		{First: 3, Second: "y"},
	}, got)
}

func TestObserveOnSerializesDelivery(t *testing.T) {
	loop := stream.NewLoop()
	defer loop.Close()

	s := stream.NewSubject[int]()
	var (
		mu      sync.Mutex
		active  int
		overlap bool
		got     []int
	)
	done := make(chan struct{})
	cancel := stream.ObserveOn[int](s, loop).Subscribe(func(v int) {
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active--
		got = append(got, v)
		if len(got) == 20 {
			close(done)
		}
		mu.Unlock()
	})
	defer cancel()

	for i := 0; i < 20; i++ {
		s.Publish(i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not deliver all values")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, overlap)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopCloseRunsQueuedWork(t *testing.T) {
	loop := stream.NewLoop()
	var n int
	for i := 0; i < 10; i++ {
		loop.Post(func() { n++ })
	}
	loop.Close()
	loop.Close()
	assert.Equal(t, 10, n)

	loop.Post(func() { n++ })
	assert.Equal(t, 10, n)
}

func TestQueueDrain(t *testing.T) {
	nudges := 0
	q := stream.NewQueue(func() { nudges++ })
	var order []int
	q.Post(func() { order = append(order, 1) })
	q.Post(func() { order = append(order, 2) })

	assert.Equal(t, 2, nudges)
	assert.Equal(t, 2, q.Drain())
	assert.Equal(t, []int{1, 2}, order)
	assert.Zero(t, q.Drain())
}
