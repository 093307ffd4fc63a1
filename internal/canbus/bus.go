package canbus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed reports an operation on a closed bus.
var ErrClosed = errors.New("canbus: bus closed")

// Bus is a non-blocking CAN endpoint. TryRecv never waits; firmware-style
// loops poll it once per tick, host tools wrap it with Recv.
type Bus interface {
	Send(Frame) error
	TryRecv() (Frame, bool, error)
	Close() error
}

// Recv polls bus until a frame arrives or ctx is done.
func Recv(ctx context.Context, bus Bus) (Frame, error) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		f, ok, err := bus.TryRecv()
		if err != nil {
			return Frame{}, err
		}
		if ok {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RecvMatch polls bus until a frame satisfying match arrives or ctx is
// done. Non-matching frames are discarded.
func RecvMatch(ctx context.Context, bus Bus, match func(Frame) bool) (Frame, error) {
	for {
		f, err := Recv(ctx, bus)
		if err != nil {
			return Frame{}, err
		}
		if match(f) {
			return f, nil
		}
	}
}

// Pipe is one end of an in-memory bus pair.
type Pipe struct {
	send chan<- Frame
	recv <-chan Frame
	done chan struct{}
	once *sync.Once
}

// NewPipe returns two connected endpoints with the given queue depth per
// direction. Frames sent on one end arrive on the other in order; a full
// peer queue makes Send fail rather than block, mirroring a saturated
// CAN mailbox.
func NewPipe(depth int) (*Pipe, *Pipe) {
	ab := make(chan Frame, depth)
	ba := make(chan Frame, depth)
	done := make(chan struct{})
	once := new(sync.Once)
	a := &Pipe{send: ab, recv: ba, done: done, once: once}
	b := &Pipe{send: ba, recv: ab, done: done, once: once}
	return a, b
}

// ErrBusOff reports a send into a full peer queue.
var ErrBusOff = errors.New("canbus: send queue full")

func (p *Pipe) Send(f Frame) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.send <- f:
		return nil
	default:
		return ErrBusOff
	}
}

func (p *Pipe) TryRecv() (Frame, bool, error) {
	select {
	case f := <-p.recv:
		return f, true, nil
	default:
	}
	select {
	case <-p.done:
		return Frame{}, false, ErrClosed
	default:
		return Frame{}, false, nil
	}
}

// Close shuts down both ends. Frames already queued are still delivered.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
