package upnp

import (
	"context"
	"sync"
)

// PendingCall is a client state that turns the callback based result
// delivery of an action into a blocking wait.
type PendingCall struct {
	State any

	once sync.Once
	done chan struct{}
	out  []any
	err  *Error
}

func NewPendingCall(state any) *PendingCall {
	return &PendingCall{
		State: state,
		done:  make(chan struct{}),
	}
}

func (p *PendingCall) complete(out []any, err *Error) {
	p.once.Do(func() {
		p.out = out
		p.err = err
		close(p.done)
	})
}

// Done is closed once a result or an error has been delivered.
func (p *PendingCall) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the call completes or ctx is done.
func (p *PendingCall) Wait(ctx context.Context) ([]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.out, nil
}
