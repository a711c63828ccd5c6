package frame

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualDrainRunsNestedPosts(t *testing.T) {
	m := NewManual()
	var order []int

	m.Post(func() {
		order = append(order, 1)
		m.Post(func() { order = append(order, 3) })
	})
	m.Post(func() { order = append(order, 2) })

	assert.Equal(t, 3, m.Drain())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, m.Pending())
}

func TestManualAdvanceFiresInDeadlineOrder(t *testing.T) {
	m := NewManual()
	var fired []string

	m.AfterFunc(200*time.Millisecond, func() { fired = append(fired, "late") })
	m.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "early") })
	stopped := m.AfterFunc(50*time.Millisecond, func() { fired = append(fired, "stopped") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	m.Advance(150 * time.Millisecond)
	assert.Equal(t, []string{"early"}, fired)

	m.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"early", "late"}, fired)
}

func TestManualTimerSchedulingFromCallback(t *testing.T) {
	m := NewManual()
	count := 0

	var tick func()
	tick = func() {
		count++
		if count < 3 {
			m.AfterFunc(10*time.Millisecond, tick)
		}
	}
	m.AfterFunc(10*time.Millisecond, tick)

	m.Advance(time.Second)
	assert.Equal(t, 3, count)
}

func TestLoopRunsPostedWork(t *testing.T) {
	loop := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	done := make(chan int, 1)
	loop.Post(func() { done <- 7 })

	select {
	case v := <-done:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("posted callback never ran")
	}

	fired := make(chan struct{})
	loop.AfterFunc(5*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	cancel()
	<-loop.Done()
	loop.Post(func() { t.Error("ran after stop") })
}

func TestLoopStoppedTimerNeverRuns(t *testing.T) {
	loop := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	ran := make(chan struct{}, 1)
	timer := loop.AfterFunc(20*time.Millisecond, func() { ran <- struct{}{} })
	require.True(t, timer.Stop())

	select {
	case <-ran:
		t.Fatal("stopped timer ran")
	case <-time.After(60 * time.Millisecond):
	}
}
