package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TickFunc is invoked on every ticker fire for a match.
type TickFunc func(ctx context.Context, matchID int64)

// Ticker runs one independent recurring tick per open match.
type Ticker struct {
	clock    clockwork.Clock
	interval time.Duration
	onTick   TickFunc

	mu     sync.Mutex
	seq    uint64
	active map[int64]run
	wg     sync.WaitGroup
}

type run struct {
	gen    uint64
	cancel context.CancelFunc
}

type genKey struct{}

// NewTicker creates a ticker that calls onTick every interval for each started match.
func NewTicker(clock clockwork.Clock, interval time.Duration, onTick TickFunc) *Ticker {
	return &Ticker{
		clock:    clock,
		interval: interval,
		onTick:   onTick,
		active:   make(map[int64]run),
	}
}

// Start begins ticking matchID, replacing any ticker already running for it.
func (t *Ticker) Start(ctx context.Context, matchID int64) {
	t.mu.Lock()
	if existing, ok := t.active[matchID]; ok {
		existing.cancel()
		log.Debug().Int64("match_id", matchID).Msg("replaced existing ticker")
	}
	t.seq++
	gen := t.seq
	tickCtx, cancel := context.WithCancel(context.WithValue(ctx, genKey{}, gen))
	t.active[matchID] = run{gen: gen, cancel: cancel}
	t.mu.Unlock()

	tk := t.clock.NewTicker(t.interval)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer tk.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-tk.Chan():
				if tickCtx.Err() != nil {
					return
				}
				t.onTick(tickCtx, matchID)
			}
		}
	}()
}

// Stop cancels the ticker for matchID.
func (t *Ticker) Stop(matchID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.active[matchID]; ok {
		r.cancel()
		delete(t.active, matchID)
	}
}

// StopCurrent stops matchID's ticker from inside a TickFunc. When ctx is the
// context of a ticker that has since been replaced, the replacement keeps
// running. A ctx that no ticker handed out behaves like Stop.
func (t *Ticker) StopCurrent(ctx context.Context, matchID int64) {
	gen, fromTick := ctx.Value(genKey{}).(uint64)

	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.active[matchID]
	if !ok || (fromTick && r.gen != gen) {
		return
	}
	r.cancel()
	delete(t.active, matchID)
}

// Running reports whether a ticker is active for matchID.
func (t *Ticker) Running(matchID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[matchID]
	return ok
}

// StopAll cancels every ticker and waits for their goroutines to exit.
func (t *Ticker) StopAll() {
	t.mu.Lock()
	for id, r := range t.active {
		r.cancel()
		delete(t.active, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}
