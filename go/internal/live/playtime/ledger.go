package playtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Writer persists a player's total playtime for a match.
type Writer interface {
	SetPlaytime(ctx context.Context, matchID, playerID int64, seconds int) error
}

type account struct {
	saved   map[int64]int
	session map[int64]int

	// held for the whole of a checkpoint
	flush sync.Mutex
}

func newAccount() *account {
	return &account{saved: make(map[int64]int), session: make(map[int64]int)}
}

// Ledger merges persisted playtime with in-memory accrual per match.
type Ledger struct {
	mu       sync.Mutex
	accounts map[int64]*account
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[int64]*account)}
}

func (l *Ledger) account(matchID int64) *account {
	acc, ok := l.accounts[matchID]
	if !ok {
		acc = newAccount()
		l.accounts[matchID] = acc
	}
	return acc
}

// Load seeds the saved baseline of matchID. An already loaded match is left as is.
func (l *Ledger) Load(matchID int64, baseline []models.PlayerPlaytime) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[matchID]; ok {
		return
	}
	acc := newAccount()
	for _, row := range baseline {
		acc.saved[row.PlayerID] = row.TimePlayed
	}
	l.accounts[matchID] = acc
}

// Loaded reports whether matchID has an account.
func (l *Ledger) Loaded(matchID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[matchID]
	return ok
}

// Credit adds seconds of session time to each player.
func (l *Ledger) Credit(matchID int64, playerIDs []int64, seconds int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(matchID)
	for _, id := range playerIDs {
		acc.session[id] += seconds
	}
}

// DisplayedTotal is saved plus session seconds.
func (l *Ledger) DisplayedTotal(matchID, playerID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[matchID]
	if !ok {
		return 0
	}
	return acc.saved[playerID] + acc.session[playerID]
}

// SessionSeconds returns the accrual since the last checkpoint.
func (l *Ledger) SessionSeconds(matchID, playerID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[matchID]
	if !ok {
		return 0
	}
	return acc.session[playerID]
}

// Totals returns the displayed total of every player with any time.
func (l *Ledger) Totals(matchID int64) map[int64]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[int64]int)
	acc, ok := l.accounts[matchID]
	if !ok {
		return out
	}
	for id, s := range acc.saved {
		out[id] += s
	}
	for id, s := range acc.session {
		out[id] += s
	}
	return out
}

// Matches lists every match with an account, ascending.
func (l *Ledger) Matches() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]int64, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Drop forgets matchID.
func (l *Ledger) Drop(matchID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, matchID)
}

type pending struct {
	playerID int64
	saved    int
	session  int
}

// Checkpoint persists saved+session for every player with time and folds the
// persisted session seconds into saved. A player whose write fails keeps its
// in-memory values and is retried on the next checkpoint.
func (l *Ledger) Checkpoint(ctx context.Context, matchID int64, w Writer) error {
	l.mu.Lock()
	acc, ok := l.accounts[matchID]
	l.mu.Unlock()
	if !ok {
		return nil
	}

	// Overlapping checkpoints of one match would fold the same session twice.
	acc.flush.Lock()
	defer acc.flush.Unlock()

	l.mu.Lock()
	if cur, ok := l.accounts[matchID]; !ok || cur != acc {
		l.mu.Unlock()
		return nil
	}
	var batch []pending
	for _, id := range playerIDs(acc) {
		s, sess := acc.saved[id], acc.session[id]
		if s > 0 || sess > 0 {
			batch = append(batch, pending{playerID: id, saved: s, session: sess})
		}
	}
	l.mu.Unlock()

	var errs []error
	persisted := 0
	for _, p := range batch {
		if err := w.SetPlaytime(ctx, matchID, p.playerID, p.saved+p.session); err != nil {
			log.Warn().
				Err(err).
				Int64("match_id", matchID).
				Int64("player_id", p.playerID).
				Msg("failed to persist playtime")
			errs = append(errs, fmt.Errorf("player %d: %w", p.playerID, err))
			continue
		}

		l.mu.Lock()
		if cur, ok := l.accounts[matchID]; ok && cur == acc {
			acc.saved[p.playerID] += p.session
			acc.session[p.playerID] -= p.session
		}
		l.mu.Unlock()
		persisted++
	}

	log.Debug().
		Int64("match_id", matchID).
		Int("persisted", persisted).
		Int("failed", len(errs)).
		Msg("playtime checkpoint")
	return errors.Join(errs...)
}

func playerIDs(acc *account) []int64 {
	seen := make(map[int64]struct{}, len(acc.saved)+len(acc.session))
	for id := range acc.saved {
		seen[id] = struct{}{}
	}
	for id := range acc.session {
		seen[id] = struct{}{}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
