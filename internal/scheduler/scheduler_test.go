package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/logger"
)

func TestEvery_Ticks(t *testing.T) {
	s := New(logger.Discard())

	var n atomic.Int32
	_, err := s.Every(10*time.Millisecond, func() { n.Add(1) })
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestStop_PreventsFurtherTicks(t *testing.T) {
	s := New(logger.Discard())

	var n atomic.Int32
	_, err := s.Every(10*time.Millisecond, func() { n.Add(1) })
	require.NoError(t, err)

	s.Start()
	assert.True(t, s.Running())
	require.Eventually(t, func() bool { return n.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	<-s.Stop().Done()
	assert.False(t, s.Running())

	stopped := n.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, n.Load())
}

func TestRemove(t *testing.T) {
	s := New(logger.Discard())

	id, err := s.Every(time.Second, func() {})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs())

	s.Remove(id)
	assert.Equal(t, 0, s.Jobs())
}

func TestRecoversPanics(t *testing.T) {
	s := New(logger.Discard())

	var n atomic.Int32
	_, err := s.Every(10*time.Millisecond, func() {
		n.Add(1)
		panic("boom")
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return n.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestKeepsRunningAfterOnePanic(t *testing.T) {
	s := New(logger.Discard())

	var n atomic.Int32
	_, err := s.Every(10*time.Millisecond, func() {
		if n.Add(1) == 1 {
			panic("first run")
		}
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestInvalidSchedules(t *testing.T) {
	s := New(logger.Discard())

	_, err := s.Every(0, func() {})
	assert.Error(t, err)

	_, err = s.Add("not a spec", func() {})
	assert.ErrorContains(t, err, "register job")

	_, err = s.Add("@hourly", func() {})
	assert.NoError(t, err)
}
