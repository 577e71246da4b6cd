// Package blocking は CPU 負荷の高い処理をリクエスト処理から切り離して実行するワーカープールを提供します。
package blocking

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

var (
	// ErrPoolClosed はクローズ済みのプールへ処理を投入したときに返ります。
	ErrPoolClosed = errors.New("blocking: pool is closed")
	// ErrTaskPanicked は投入した処理が panic したときに返ります。
	ErrTaskPanicked = errors.New("blocking: task panicked")
)

// Pool は固定数のワーカーで処理を実行します。
type Pool struct {
	tasks     chan func()
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPool はワーカー数 workers のプールを起動します。0 以下なら GOMAXPROCS を使います。
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		tasks: make(chan func()),
		quit:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			task()
		case <-p.quit:
			return
		}
	}
}

// Submit は task をワーカーに引き渡します。
// ワーカーが受け取った時点で投入完了とし、以降 ctx がキャンセルされても task は最後まで実行されます。
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close は新規投入を止め、実行中の処理が終わるまで待ちます。
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

type result[T any] struct {
	value T
	err   error
}

// Do は fn をプール上で実行し、その結果を待ちます。
// 待機中に ctx が終了した場合は ctx.Err() を返しますが、fn 自体は中断されません。
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	done := make(chan result[T], 1)

	err := p.Submit(ctx, func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("%w: %v", ErrTaskPanicked, r)}
			}
		}()
		v, err := fn()
		done <- result[T]{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
