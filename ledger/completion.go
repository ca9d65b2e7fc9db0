package ledger

import (
	"context"
	"fmt"
	"sync/atomic"
)

type MessageStatus uint8

const (
	MessageConfirmed MessageStatus = iota + 1
	MessageExpired
	MessageError
)

func (s MessageStatus) String() string {
	switch s {
	case MessageConfirmed:
		return "confirmed"
	case MessageExpired:
		return "expired"
	case MessageError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Completion is the one-shot outcome of a pending message. It is fulfilled
// exactly once; a second fulfilment is a programming error and panics.
type Completion struct {
	ch       chan MessageStatus
	resolved atomic.Bool
}

func newCompletion() *Completion {
	return &Completion{ch: make(chan MessageStatus, 1)}
}

func (c *Completion) fulfil(status MessageStatus) {
	if !c.resolved.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("completion fulfilled twice (second status %s)", status))
	}
	c.ch <- status
}

// Done delivers the terminal status once. Only one receiver gets it.
func (c *Completion) Done() <-chan MessageStatus {
	return c.ch
}

func (c *Completion) Wait(ctx context.Context) (MessageStatus, error) {
	select {
	case status := <-c.ch:
		return status, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
