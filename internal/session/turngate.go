package session

import (
	"context"
	"errors"
	"sync"
)

var ErrGateClosed = errors.New("turn gate closed")

// TurnGate wakes the controller when the operator is to move. Signals
// coalesce; Close releases every waiter for good.
type TurnGate struct {
	ch        chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewTurnGate() *TurnGate {
	return &TurnGate{
		ch:   make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Signal opens the gate. It never blocks.
func (g *TurnGate) Signal() {
	select {
	case g.ch <- struct{}{}:
	default:
	}
}

// Clear drops a pending signal.
func (g *TurnGate) Clear() {
	select {
	case <-g.ch:
	default:
	}
}

// Wait blocks until a signal, Close or ctx. A closed gate always wins.
func (g *TurnGate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return ErrGateClosed
	default:
	}
	select {
	case <-g.done:
		return ErrGateClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-g.ch:
		return nil
	}
}

func (g *TurnGate) Close() {
	g.closeOnce.Do(func() { close(g.done) })
}

func (g *TurnGate) Done() <-chan struct{} { return g.done }

func (g *TurnGate) Closed() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}
