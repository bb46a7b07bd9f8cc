package service

import "context"

// Outcome is the result of a call run with Go.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Go runs fn on its own goroutine and delivers its outcome on the returned
// channel, which receives exactly one value. Cancelling ctx stops fn at its
// next suspension point.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Outcome[T] {
	out := make(chan Outcome[T], 1)
	go func() {
		defer close(out)
		v, err := fn(ctx)
		out <- Outcome[T]{Value: v, Err: err}
	}()
	return out
}
