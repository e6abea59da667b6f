package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls atomic.Int32
	err   error
}

func (f *fakePurger) PurgeExpiredCache(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	return 3, f.err
}

func TestScheduler_RunsPurgeOnSchedule(t *testing.T) {
	p := &fakePurger{}
	s := NewScheduler(p, "* * * * * *", nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return p.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(&fakePurger{}, "not a schedule", nil)
	assert.Error(t, s.Start())
}

func TestScheduler_PurgeOnceSurvivesErrors(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	s := NewScheduler(p, "", nil)
	s.PurgeOnce()
	assert.EqualValues(t, 1, p.calls.Load())
}
