package signal

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestIncomingRateLimiter(t *testing.T) {
	clk := clock.NewMock()
	rl := NewIncomingRateLimiter(2, time.Minute, clk)

	if !rl.Allow("a", "c1") || !rl.Allow("a", "c2") {
		t.Fatal("first two calls should pass")
	}
	if rl.Allow("a", "c3") {
		t.Fatal("third call inside the window should be limited")
	}
	if !rl.Allow("b", "c4") {
		t.Fatal("limits are per caller")
	}

	clk.Add(time.Minute + time.Second)
	if !rl.Allow("a", "c5") {
		t.Fatal("window should have expired")
	}
}

func TestIncomingRateLimiterForget(t *testing.T) {
	rl := NewIncomingRateLimiter(1, time.Minute, clock.NewMock())
	rl.Allow("a", "c1")
	if rl.Allow("a", "c2") {
		t.Fatal("second call should be limited")
	}
	rl.Forget("a")
	if rl.Len() != 0 {
		t.Fatalf("Len = %d after Forget", rl.Len())
	}
	if !rl.Allow("a", "c2") {
		t.Fatal("forgotten caller should pass again")
	}
}

func TestIncomingRateLimiterRedelivery(t *testing.T) {
	rl := NewIncomingRateLimiter(2, time.Minute, clock.NewMock())
	rl.Allow("a", "c1")
	rl.Allow("a", "c2")
	for i := 0; i < 5; i++ {
		if !rl.Allow("a", "c2") {
			t.Fatal("redelivered call counted against the limit")
		}
	}
	if rl.Allow("a", "c3") {
		t.Fatal("new call over the limit should be refused")
	}
}
