package embedding

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeBackfiller struct {
	batches []int
	err     error
	calls   int
}

func (f *fakeBackfiller) BackfillPending(_ context.Context, _ int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func TestRunOnceDrainsFullBatches(t *testing.T) {
	// Two full batches then a short one: the pass keeps going until the
	// backfill returns fewer docs than it asked for.
	backfiller := &fakeBackfiller{batches: []int{16, 16, 3}}
	runner := NewRunner(backfiller)

	runner.RunOnce(context.Background())

	assert.Equal(t, 3, backfiller.calls)
}

func TestRunOnceStopsOnError(t *testing.T) {
	backfiller := &fakeBackfiller{err: fmt.Errorf("provider down")}
	runner := NewRunner(backfiller)

	runner.RunOnce(context.Background())

	assert.Equal(t, 1, backfiller.calls)
}

func TestRunOnceHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backfiller := &fakeBackfiller{batches: []int{16, 16}}
	NewRunner(backfiller).RunOnce(ctx)

	assert.Zero(t, backfiller.calls)
}
