package playtime

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestCheckpointer_RunsOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runs := make(chan struct{}, 4)
	cp := NewCheckpointer(clock, 30*time.Second, func(context.Context) { runs <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cp.Start(ctx)
		close(done)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(30 * time.Second)
	select {
	case <-runs:
	case <-waitCtx.Done():
		t.Fatal("checkpoint did not run")
	}

	cancel()
	select {
	case <-done:
	case <-waitCtx.Done():
		t.Fatal("checkpointer did not stop")
	}
}
