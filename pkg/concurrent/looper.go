package concurrent

import (
	"fmt"
	"sync"
)

// Looper runs posted functions one at a time, in posting order, on a single
// goroutine it owns. Post never blocks and never runs fn on the caller's
// goroutine, so a function posted from inside a lock or a callback always
// runs after the poster has returned.
type Looper struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	onPanic func(recovered any)
}

// NewLooper starts a looper. onPanic, if not nil, receives values recovered
// from panicking functions; the looper keeps running either way.
func NewLooper(onPanic func(recovered any)) *Looper {
	l := &Looper{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		onPanic: onPanic,
	}
	go l.loop()
	return l
}

// Post enqueues fn. It returns false if the looper has been closed.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Drain blocks until every function posted before the call has run. It
// returns false without waiting if the looper is closed.
func (l *Looper) Drain() bool {
	marker := make(chan struct{})
	if !l.Post(func() { close(marker) }) {
		return false
	}
	select {
	case <-marker:
		return true
	case <-l.done:
		return false
	}
}

// Close stops accepting work, runs what is already queued and waits for the
// loop goroutine to exit. Calling Close from a posted function deadlocks.
func (l *Looper) Close() {
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

// Closed reports whether Close has been called.
func (l *Looper) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Looper) loop() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, fn := range batch {
			l.run(fn)
		}

		if len(batch) == 0 {
			if closed {
				return
			}
			<-l.wake
		}
	}
}

func (l *Looper) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if l.onPanic != nil {
				l.onPanic(r)
				return
			}
			fmt.Printf("looper: recovered panic: %v\n", r)
		}
	}()
	fn()
}
