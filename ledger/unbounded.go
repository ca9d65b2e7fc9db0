package ledger

import "sync"

// Unbounded is a multi-producer single-consumer channel without capacity
// limit. Send never blocks; items are delivered on Out in send order.
// Nothing bounds memory if the consumer stalls, watch Len.
type Unbounded[T any] struct {
	mu     sync.Mutex
	buf    []T
	closed bool
	wake   chan struct{}
	out    chan T
}

func NewUnbounded[T any]() *Unbounded[T] {
	u := &Unbounded[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
	go u.pump()
	return u
}

// Send enqueues v and reports false if the channel is already closed.
func (u *Unbounded[T]) Send(v T) bool {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return false
	}
	u.buf = append(u.buf, v)
	u.mu.Unlock()

	u.signal()
	return true
}

func (u *Unbounded[T]) Out() <-chan T {
	return u.out
}

// Len is the number of buffered items not yet handed to the consumer.
func (u *Unbounded[T]) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.buf)
}

// Close stops accepting items; Out is closed once the buffer drains.
func (u *Unbounded[T]) Close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
	u.signal()
}

func (u *Unbounded[T]) signal() {
	select {
	case u.wake <- struct{}{}:
	default:
	}
}

func (u *Unbounded[T]) pump() {
	var zero T
	for {
		u.mu.Lock()
		if len(u.buf) == 0 {
			closed := u.closed
			u.mu.Unlock()
			if closed {
				close(u.out)
				return
			}
			<-u.wake
			continue
		}
		v := u.buf[0]
		u.buf[0] = zero
		u.buf = u.buf[1:]
		u.mu.Unlock()

		u.out <- v
	}
}
