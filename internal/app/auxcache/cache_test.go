package auxcache

import (
	"sync"
	"testing"
	"time"
)

func TestDebouncer_LimitsPerKey(t *testing.T) {
	d := NewDebouncer(1, 2)
	now := time.Unix(100, 0)
	if !d.Allow("steve", now) || !d.Allow("steve", now) {
		t.Fatalf("burst of 2 should pass")
	}
	if d.Allow("steve", now) {
		t.Fatalf("third action in the same instant should be limited")
	}
	if !d.Allow("alex", now) {
		t.Fatalf("other keys are independent")
	}
	if !d.Allow("steve", now.Add(time.Second)) {
		t.Fatalf("token should refill after a second")
	}
}

func TestDebouncer_ConcurrentAccess(t *testing.T) {
	d := NewDebouncer(1000, 1000)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Allow("shared", time.Now())
			}
		}()
	}
	wg.Wait()
}

func TestClickTracker_DoubleClickWindow(t *testing.T) {
	c := NewClickTracker(500 * time.Millisecond)
	t0 := time.Unix(0, 0)
	if c.Click("steve", "town-a", t0) {
		t.Fatalf("first click is never a double click")
	}
	if !c.Click("steve", "town-a", t0.Add(400*time.Millisecond)) {
		t.Fatalf("expected double click")
	}
	if c.Click("steve", "town-a", t0.Add(450*time.Millisecond)) {
		t.Fatalf("double click must reset")
	}
	if c.Click("steve", "town-b", t0.Add(500*time.Millisecond)) {
		t.Fatalf("different target is not a double click")
	}
	if got := c.Prune(t0.Add(2 * time.Second)); got != 1 {
		t.Fatalf("expected 1 pruned, got %d", got)
	}
}

func TestCrossingTracker_Transitions(t *testing.T) {
	tr := NewCrossingTracker()
	if _, ok := tr.Update("steve", ""); ok {
		t.Fatalf("wilderness to wilderness is not a crossing")
	}
	c, ok := tr.Update("steve", "a")
	if !ok || !c.Entered() || c.Left() {
		t.Fatalf("expected enter, got %+v", c)
	}
	if _, ok := tr.Update("steve", "a"); ok {
		t.Fatalf("staying put is not a crossing")
	}
	c, ok = tr.Update("steve", "b")
	if !ok || c.From != "a" || c.To != "b" {
		t.Fatalf("expected a to b, got %+v", c)
	}
	if got := tr.ForgetTown("b"); len(got) != 1 || tr.Current("steve") != "" {
		t.Fatalf("expected steve cleared, got %v", got)
	}
}
