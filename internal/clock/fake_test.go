package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresTimersInOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var fired []string
	f.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	f.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := f.AfterFunc(1500*time.Millisecond, func() { fired = append(fired, "x") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	f.Advance(999 * time.Millisecond)
	assert.Empty(t, fired)
	f.Advance(time.Second + time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 0, f.Pending())
	assert.True(t, f.Now().Equal(time.Unix(2, 0)))
}

func TestFakeTickerDeliversLatestTick(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tk := f.NewTicker(100 * time.Millisecond)
	defer tk.Stop()
	f.Advance(100 * time.Millisecond)
	select {
	case <-tk.C():
	default:
		t.Fatalf("expected a tick")
	}
}

func TestFakeCountsRunningTickers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tk := f.NewTicker(time.Second)
	assert.Equal(t, 1, f.Tickers())
	tk.Stop()
	assert.Equal(t, 0, f.Tickers())
}
