package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Tasks is a group of long-running loops sharing one cancellable context.
// Stop cancels them and waits until every loop has returned.
type Tasks struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

func StartTasks(parent context.Context) *Tasks {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	return &Tasks{ctx: gctx, cancel: cancel, group: group}
}

func (t *Tasks) Go(name string, fn func(ctx context.Context) error) {
	t.group.Go(func() error {
		slog.Debug("Task started", "task", name)
		if err := fn(t.ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		slog.Debug("Task stopped", "task", name)
		return nil
	})
}

// Done is closed when Stop is called or any task returned an error.
func (t *Tasks) Done() <-chan struct{} {
	return t.ctx.Done()
}

func (t *Tasks) Stop() error {
	t.cancel()
	return t.group.Wait()
}
