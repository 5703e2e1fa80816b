package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeFiresInDueOrder(t *testing.T) {
	clk := NewFake(epoch)
	var order []string

	clk.AfterFunc(300*time.Millisecond, func() { order = append(order, "c") })
	clk.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	clk.AfterFunc(100*time.Millisecond, func() { order = append(order, "b") })

	clk.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, epoch.Add(300*time.Millisecond), clk.Now())
}

func TestFakeStop(t *testing.T) {
	clk := NewFake(epoch)
	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	clk.Advance(2 * time.Second)
	assert.False(t, fired)
	assert.Equal(t, 0, clk.Pending())
}

func TestFakeChainedTimers(t *testing.T) {
	clk := NewFake(epoch)
	var at []time.Duration
	clk.AfterFunc(time.Second, func() {
		at = append(at, clk.Now().Sub(epoch))
		clk.AfterFunc(time.Second, func() {
			at = append(at, clk.Now().Sub(epoch))
		})
	})

	clk.Advance(5 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, at)
}

func TestSerializedPostsCallbacks(t *testing.T) {
	clk := NewFake(epoch)
	var queue []func()
	s := Serialized(clk, func(fn func()) { queue = append(queue, fn) })

	fired := 0
	s.AfterFunc(time.Second, func() { fired++ })
	cancelled := s.AfterFunc(time.Second, func() { fired += 10 })

	clk.Advance(time.Second)
	assert.Equal(t, 0, fired, "callbacks must wait for the loop")
	assert.Len(t, queue, 2)

	// 已投递但尚未执行时取消
	assert.True(t, cancelled.Stop())
	for _, fn := range queue {
		fn()
	}
	assert.Equal(t, 1, fired)
	assert.Equal(t, epoch.Add(time.Second), s.Now())
}

func TestSerializedStopBeforeBind(t *testing.T) {
	clk := NewFake(epoch)
	st := &serializedTimer{}
	assert.True(t, st.Stop())

	fired := false
	st.bind(clk.AfterFunc(time.Second, func() { fired = true }))
	assert.Equal(t, 0, clk.Pending())
	clk.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestSerializedConcurrentStop(t *testing.T) {
	clk := NewFake(epoch)
	var mu sync.Mutex
	var queue []func()
	s := Serialized(clk, func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		queue = append(queue, fn)
	})

	timers := make(chan Timer, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for tm := range timers {
			tm.Stop()
		}
	}()
	for i := 0; i < 64; i++ {
		timers <- s.AfterFunc(time.Second, func() { t.Error("stopped timer fired") })
	}
	close(timers)
	wg.Wait()

	clk.Advance(time.Second)
	assert.Equal(t, 0, clk.Pending())
	mu.Lock()
	defer mu.Unlock()
	for _, fn := range queue {
		fn()
	}
}
