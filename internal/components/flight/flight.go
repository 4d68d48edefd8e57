// Package flight shares one in-flight call per key between concurrent
// callers that each keep their own context.
package flight

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"
)

// Do is singleflight.Group.Do where every caller waits at most as long as its
// own ctx. fn runs with the ctx of the caller that started the flight.
//
// a caller that joined a flight which then failed because its starter's
// context ended tries again, joining or starting a fresh flight, as long as
// its own ctx is still alive.
func Do[T any](ctx context.Context, group *singleflight.Group, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for {
		led := false
		ch := group.DoChan(key, func() (any, error) {
			led = true
			return fn(ctx)
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case result := <-ch:
			if result.Err == nil {
				val, _ := result.Val.(T)
				return val, nil
			}
			if !led && IsContextErr(result.Err) && ctx.Err() == nil {
				continue
			}
			return zero, result.Err
		}
	}
}

func IsContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
