package auxcache

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Debouncer rate limits actions per key. Safe for concurrent use; none of the
// state here is town state.
type Debouncer struct {
	Every rate.Limit
	Burst int

	limiters sync.Map // key -> *rate.Limiter
}

func NewDebouncer(perSecond float64, burst int) *Debouncer {
	if burst <= 0 {
		burst = 1
	}
	return &Debouncer{Every: rate.Limit(perSecond), Burst: burst}
}

func (d *Debouncer) limiter(key string) *rate.Limiter {
	if v, ok := d.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := d.limiters.LoadOrStore(key, rate.NewLimiter(d.Every, d.Burst))
	return v.(*rate.Limiter)
}

// Allow reports whether key may act at now.
func (d *Debouncer) Allow(key string, now time.Time) bool {
	return d.limiter(key).AllowN(now, 1)
}

func (d *Debouncer) Forget(key string) {
	d.limiters.Delete(key)
}

// ClickTracker detects a second click on the same target within Window.
type ClickTracker struct {
	Window time.Duration

	mu   sync.Mutex
	last map[string]click
}

type click struct {
	target string
	at     time.Time
}

func NewClickTracker(window time.Duration) *ClickTracker {
	return &ClickTracker{Window: window, last: map[string]click{}}
}

// Click records a click by player on target and reports whether it completes
// a double click. A completed double click resets the tracker for the player.
func (c *ClickTracker) Click(player, target string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.last[player]
	if ok && prev.target == target && now.Sub(prev.at) <= c.Window {
		delete(c.last, player)
		return true
	}
	c.last[player] = click{target: target, at: now}
	return false
}

// Prune drops clicks older than the window.
func (c *ClickTracker) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for player, cl := range c.last {
		if now.Sub(cl.at) > c.Window {
			delete(c.last, player)
			n++
		}
	}
	return n
}

// Crossing is a change of the town a player stands in. Empty ids mean
// wilderness.
type Crossing struct {
	Player string
	From   string
	To     string
}

func (c Crossing) Left() bool    { return c.From != "" }
func (c Crossing) Entered() bool { return c.To != "" }

type CrossingTracker struct {
	mu      sync.Mutex
	current map[string]string
}

func NewCrossingTracker() *CrossingTracker {
	return &CrossingTracker{current: map[string]string{}}
}

// Update records that player now stands in townID and returns the crossing
// when it differs from the last known town.
func (t *CrossingTracker) Update(player, townID string) (Crossing, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.current[player]
	if prev == townID {
		return Crossing{}, false
	}
	if townID == "" {
		delete(t.current, player)
	} else {
		t.current[player] = townID
	}
	return Crossing{Player: player, From: prev, To: townID}, true
}

func (t *CrossingTracker) Current(player string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current[player]
}

// ForgetTown clears every player standing in townID, used when the town is
// removed. It returns the affected players.
func (t *CrossingTracker) ForgetTown(townID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for player, id := range t.current {
		if id == townID {
			delete(t.current, player)
			out = append(out, player)
		}
	}
	return out
}
