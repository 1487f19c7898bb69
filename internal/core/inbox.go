package core

import (
	"sync"

	"github.com/openrts/masterserver/internal/proto"
)

// inbox is an unbounded FIFO queue of proto.Message values. The registry
// and peer sessions must never block pushing a message onto a client's
// inbox, so delivery is buffered in a growable slice rather than a fixed
// channel — a full inbox would otherwise let one slow client wedge the
// registry's single transaction goroutine.
type inbox struct {
	in        chan proto.Message
	out       chan proto.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newInbox() *inbox {
	ib := &inbox{
		in:   make(chan proto.Message),
		out:  make(chan proto.Message),
		done: make(chan struct{}),
	}
	go ib.pump()
	return ib
}

func (ib *inbox) pump() {
	defer close(ib.out)

	var queue []proto.Message
	for {
		if len(queue) == 0 {
			select {
			case m, ok := <-ib.in:
				if !ok {
					return
				}
				queue = append(queue, m)
			case <-ib.done:
				return
			}
			continue
		}

		select {
		case m, ok := <-ib.in:
			if !ok {
				return
			}
			queue = append(queue, m)
		case ib.out <- queue[0]:
			queue = queue[1:]
		case <-ib.done:
			return
		}
	}
}

// push enqueues m. It never blocks: once the inbox is closed, push is a
// silent no-op (the client is gone).
func (ib *inbox) push(m proto.Message) {
	select {
	case ib.in <- m:
	case <-ib.done:
	}
}

// C returns the channel the session's processor reads from, in FIFO order.
func (ib *inbox) C() <-chan proto.Message {
	return ib.out
}

// close releases the pump goroutine. Safe to call more than once.
func (ib *inbox) close() {
	ib.closeOnce.Do(func() { close(ib.done) })
}
