package stream

import "sync"

// Executor runs posted functions. Post must not block the caller.
type Executor interface {
	Post(fn func())
}

// Loop is an Executor that runs every posted function on one goroutine, in
// post order. It is the serialization point for consumer callbacks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// NewLoop starts the loop goroutine.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues fn. Functions posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close runs what is already queued, stops the goroutine and waits for it.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				closed := l.closed
				l.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			fn()
		}
	}
}

// Queue is an Executor drained by an external owner, such as a window
// message loop: Post enqueues and nudges the owner, the owner calls Drain on
// its own thread.
type Queue struct {
	mu     sync.Mutex
	queue  []func()
	notify func()
}

// NewQueue returns a queue that calls notify after every Post.
func NewQueue(notify func()) *Queue {
	return &Queue{notify: notify}
}

func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
	if q.notify != nil {
		q.notify()
	}
}

// Drain runs everything queued so far, in order.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.queue
	q.queue = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}
