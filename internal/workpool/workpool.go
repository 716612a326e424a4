// Package workpool bounds how many blocking calls run at once.
package workpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

type Pool struct {
	sem  *semaphore.Weighted
	size int
}

func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *Pool) Size() int {
	return p.size
}

type result[T any] struct {
	val T
	err error
}

// Submit runs fn once a slot is free and waits for it. If ctx ends first
// Submit returns ctx.Err() while fn keeps its slot until it returns, so the
// pool size always bounds the work actually running.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	done := make(chan result[T], 1)
	go func() {
		defer p.sem.Release(1)
		var res result[T]
		defer func() {
			if r := recover(); r != nil {
				res = result[T]{err: fmt.Errorf("workpool task panic: %v", r)}
			}
			done <- res
		}()
		res.val, res.err = fn(ctx)
	}()
	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
