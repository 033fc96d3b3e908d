package kernel

import (
	"runtime"
	"sync/atomic"
)

// Kind identifies a cross-core message.
type Kind uint8

const (
	MsgNone Kind = iota
	// MsgCaptureArm tells the companion a capture is arming; it must suspend
	// work that conflicts with sampling before acknowledging.
	MsgCaptureArm
	// MsgCaptureDone tells the companion the capture hardware is torn down.
	MsgCaptureDone
	MsgAck
	MsgPing
)

func (k Kind) String() string {
	switch k {
	case MsgNone:
		return "none"
	case MsgCaptureArm:
		return "capture-arm"
	case MsgCaptureDone:
		return "capture-done"
	case MsgAck:
		return "ack"
	case MsgPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Message is a small fixed-size envelope, sized like a pair of FIFO words.
type Message struct {
	From Endpoint
	Kind Kind
	Seq  uint32
	Arg  uint32
}

const mailboxSlots = 8

type slot struct {
	// seq is 2*lap while free and 2*lap+1 while holding a message.
	seq atomic.Uint64
	msg Message
}

// Mailbox is a fixed-size multi-producer, single-consumer queue.
// It is designed for bare-metal use: no allocations, busy-wait with Gosched().
// The zero value is ready to use.
type Mailbox struct {
	_     [0]func() // prevent accidental copying.
	head  atomic.Uint64
	tail  atomic.Uint64
	slots [mailboxSlots]slot
}

// TrySend attempts to enqueue a message, returning false if the mailbox is full.
func (mb *Mailbox) TrySend(msg Message) bool {
	for {
		head := mb.head.Load()
		s := &mb.slots[head%mailboxSlots]
		turn := head / mailboxSlots * 2
		seq := s.seq.Load()
		switch {
		case seq == turn:
			if !mb.head.CompareAndSwap(head, head+1) {
				continue
			}
			s.msg = msg
			s.seq.Store(turn + 1)
			return true
		case seq < turn:
			// Previous lap not consumed yet.
			return false
		}
		// Another producer won this slot; reload head.
	}
}

// Send enqueues a message, blocking until it succeeds.
func (mb *Mailbox) Send(msg Message) {
	for !mb.TrySend(msg) {
		runtime.Gosched()
	}
}

// TryRecv attempts to dequeue one message, returning false if empty.
// Only one goroutine may receive from a mailbox.
func (mb *Mailbox) TryRecv() (Message, bool) {
	tail := mb.tail.Load()
	s := &mb.slots[tail%mailboxSlots]
	turn := tail / mailboxSlots * 2
	if s.seq.Load() != turn+1 {
		return Message{}, false
	}
	msg := s.msg
	s.seq.Store(turn + 2)
	mb.tail.Store(tail + 1)
	return msg, true
}

// Recv blocks until one message is available.
func (mb *Mailbox) Recv() Message {
	for {
		msg, ok := mb.TryRecv()
		if ok {
			return msg
		}
		runtime.Gosched()
	}
}
