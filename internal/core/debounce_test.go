package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls, last atomic.Int32
	for i := 1; i <= 5; i++ {
		v := int32(i)
		d.Schedule("s1", func() {
			calls.Add(1)
			last.Store(v)
		})
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(5), last.Load())
	assert.Zero(t, d.Pending())
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var calls atomic.Int32
	d.Schedule("a", func() { calls.Add(1) })
	d.Schedule("b", func() { calls.Add(1) })
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncerFlush(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var calls atomic.Int32
	d.Schedule("a", func() { calls.Add(1) })
	d.Schedule("b", func() { calls.Add(1) })
	assert.Equal(t, 2, d.Pending())

	d.Flush()
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, d.Pending())
}

func TestDebouncerZeroWaitRunsInline(t *testing.T) {
	d := NewDebouncer(0)
	ran := false
	d.Schedule("a", func() { ran = true })
	assert.True(t, ran)
}
