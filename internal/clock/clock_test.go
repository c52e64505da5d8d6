package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)
	assert.Equal(t, start, clk.Now())

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())
}

func TestFakeClockConcurrentReaders(t *testing.T) {
	clk := NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = clk.Now()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		clk.Advance(time.Second)
	}
	wg.Wait()

	assert.Equal(t, time.Date(2024, 6, 1, 12, 1, 40, 0, time.UTC), clk.Now())
}
