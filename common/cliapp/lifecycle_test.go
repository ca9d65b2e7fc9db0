package cliapp

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type fakeLifecycle struct {
	startErr error
	started  bool
	stopped  bool
}

func (f *fakeLifecycle) Start(ctx context.Context) error {
	f.started = true
	return f.startErr
}

func (f *fakeLifecycle) Stop(ctx context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeLifecycle) Stopped() bool {
	return f.stopped
}

func neverInterrupted(ctx context.Context, _ ...os.Signal) {
	<-ctx.Done()
}

func TestLifecycleCmd_StopsAfterClose(t *testing.T) {
	app := &fakeLifecycle{}
	action := lifecycleCmd(func(ctx *cli.Context, close context.CancelCauseFunc) (Lifecycle, error) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			close(errors.New("done"))
		}()
		return app, nil
	}, neverInterrupted)

	cliCtx := cli.NewContext(cli.NewApp(), nil, nil)
	cliCtx.Context = context.Background()

	require.NoError(t, action(cliCtx))
	assert.True(t, app.started)
	assert.True(t, app.Stopped())
}

func TestLifecycleCmd_SetupFailure(t *testing.T) {
	action := lifecycleCmd(func(ctx *cli.Context, close context.CancelCauseFunc) (Lifecycle, error) {
		return nil, errors.New("bad config")
	}, neverInterrupted)

	cliCtx := cli.NewContext(cli.NewApp(), nil, nil)
	cliCtx.Context = context.Background()

	err := action(cliCtx)
	assert.ErrorContains(t, err, "failed to setup: bad config")
}

func TestLifecycleCmd_StartFailure(t *testing.T) {
	app := &fakeLifecycle{startErr: errors.New("port in use")}
	action := lifecycleCmd(func(ctx *cli.Context, close context.CancelCauseFunc) (Lifecycle, error) {
		return app, nil
	}, neverInterrupted)

	cliCtx := cli.NewContext(cli.NewApp(), nil, nil)
	cliCtx.Context = context.Background()

	err := action(cliCtx)
	assert.ErrorContains(t, err, "failed to start: port in use")
	assert.False(t, app.Stopped())
}
