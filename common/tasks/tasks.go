package tasks

import (
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Group 是带 panic 保护的 errgroup，panic 会被转换为错误交给 HandleCrit
type Group struct {
	errGroup   errgroup.Group
	HandleCrit func(err error)
}

func (t *Group) Go(fn func() error) {
	t.errGroup.Go(func() error {
		defer func() {
			if err := recover(); err != nil {
				debug.PrintStack()
				if t.HandleCrit != nil {
					t.HandleCrit(fmt.Errorf("panic: %v", err))
				}
			}
		}()
		return fn()
	})
}

// Wait blocks until every task returned and yields the first error.
func (t *Group) Wait() error {
	return t.errGroup.Wait()
}
