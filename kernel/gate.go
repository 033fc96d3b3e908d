package kernel

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

var ErrGateBusy = errors.New("gate: handshake already in progress")

// Gate is a synchronous two-party rendezvous between the main core and the
// companion core. At most one handshake may be outstanding.
type Gate struct {
	toCompanion Mailbox
	toMain      Mailbox
	busy        atomic.Bool
	seq         atomic.Uint32
}

// Handshake sends kind to the companion and blocks until the matching
// acknowledgement arrives or ctx is done. It returns the ack argument.
//
// An ack for an abandoned handshake is discarded by sequence number.
func (g *Gate) Handshake(ctx context.Context, kind Kind, arg uint32) (uint32, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return 0, ErrGateBusy
	}
	defer g.busy.Store(false)

	seq := g.seq.Add(1)
	req := Message{From: EPMain, Kind: kind, Seq: seq, Arg: arg}
	for !g.toCompanion.TrySend(req) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		runtime.Gosched()
	}

	for {
		if msg, ok := g.toMain.TryRecv(); ok {
			if msg.Kind == MsgAck && msg.Seq == seq {
				return msg.Arg, nil
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		runtime.Gosched()
	}
}

// Poll services at most one pending request on the companion side. handle
// runs before the acknowledgement is sent, so the main core stays blocked
// until handle returns.
func (g *Gate) Poll(handle func(Message) uint32) bool {
	msg, ok := g.toCompanion.TryRecv()
	if !ok {
		return false
	}
	var arg uint32
	if handle != nil {
		arg = handle(msg)
	}
	g.toMain.Send(Message{From: EPCompanion, Kind: MsgAck, Seq: msg.Seq, Arg: arg})
	return true
}

// Serve polls until ctx is done.
func (g *Gate) Serve(ctx context.Context, handle func(Message) uint32) {
	for ctx.Err() == nil {
		if !g.Poll(handle) {
			runtime.Gosched()
		}
	}
}
