package irq

import (
	"sync"
	"testing"
)

func TestAtomicCounterConcurrentInc(t *testing.T) {
	var c AtomicCounter
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	if got := c.Load(); got != 8000 {
		t.Errorf("Load() = %d, want 8000", got)
	}
}

func TestAtomicCounterZeroValue(t *testing.T) {
	var c Counter = &AtomicCounter{}
	if c.Load() != 0 {
		t.Errorf("zero value should load 0, got %d", c.Load())
	}
}
