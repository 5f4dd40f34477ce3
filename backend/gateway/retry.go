// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 500 * time.Millisecond
)

// Retrier re-runs a network call a bounded number of times with a fixed
// delay. There is no exponential backoff.
type Retrier struct {
	Attempts int
	Delay    time.Duration
	// Clock times the delay between attempts. Nil uses the wall clock.
	Clock clock.Clock
}

func NewRetrier(attempts int, delay time.Duration) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &Retrier{Attempts: attempts, Delay: delay}
}

// WithClock returns a copy of r that waits on clk.
func (r *Retrier) WithClock(clk clock.Clock) *Retrier {
	cp := *r
	cp.Clock = clk
	return &cp
}

func (r *Retrier) clock() clock.Clock {
	if r.Clock == nil {
		return clock.New()
	}
	return r.Clock
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. The last error is returned.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry is Do for calls that return a value.
func Retry[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	if r == nil {
		r = NewRetrier(1, 0)
	}
	var (
		zero T
		err  error
	)
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempt == r.Attempts {
			break
		}
		if r.Delay > 0 {
			t := r.clock().Timer(r.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, errors.Join(err, ctx.Err())
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return zero, errors.Join(err, ctx.Err())
		}
	}
	return zero, err
}
