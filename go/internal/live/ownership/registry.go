package ownership

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/rs/zerolog/log"
)

// Outcome is the result of an acquire attempt.
type Outcome int

const (
	Granted Outcome = iota + 1
	CollaboratorAccess
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "ok"
	case CollaboratorAccess:
		return "collaborator"
	case Denied:
		return "locked"
	default:
		return "unknown"
	}
}

// AcquireResult carries the outcome and the owner at the time of the decision.
// Changed is set when the call took a previously unlocked match.
type AcquireResult struct {
	Outcome Outcome
	OwnerID int64
	Changed bool
}

// JoinOutcome is the result of a join request.
type JoinOutcome int

const (
	JoinQueued JoinOutcome = iota + 1
	JoinRefreshed
	JoinAlreadyOwner
)

func (o JoinOutcome) String() string {
	switch o {
	case JoinQueued:
		return "queued"
	case JoinRefreshed:
		return "refreshed"
	case JoinAlreadyOwner:
		return "already_owner"
	}
	return "unknown"
}

// JoinRequest is a pending request for edit access.
type JoinRequest struct {
	MatchID       int64     `json:"match_id"`
	RequesterID   int64     `json:"requester_id"`
	RequesterName string    `json:"requester_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Transfer records an ownership change made by ReleaseAll.
type Transfer struct {
	MatchID  int64
	NewOwner *int64
}

type matchSession struct {
	finalized     bool
	owner         int64
	hasOwner      bool
	lockedAt      time.Time
	collaborators map[int64]struct{}
	requests      []JoinRequest
}

func (s *matchSession) ownedBy(userID int64) bool {
	return s.hasOwner && s.owner == userID
}

// Registry tracks, per match, the owner, the collaborator set and pending join requests.
// The owner, when present, is always a member of its match's collaborator set.
type Registry struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	sessions map[int64]*matchSession
}

// NewRegistry creates an empty registry.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:    clock,
		sessions: make(map[int64]*matchSession),
	}
}

func (r *Registry) session(matchID int64) *matchSession {
	s, ok := r.sessions[matchID]
	if !ok {
		s = &matchSession{collaborators: make(map[int64]struct{})}
		r.sessions[matchID] = s
	}
	return s
}

// Track makes sure a session exists for matchID. A finalized flag is sticky.
func (r *Registry) Track(matchID int64, finalized bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session(matchID)
	if finalized && !s.finalized {
		r.finalizeLocked(s)
	}
}

// Acquire tries to take ownership of matchID for userID.
func (r *Registry) Acquire(matchID, userID int64) (AcquireResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session(matchID)
	if s.finalized {
		return AcquireResult{}, errclass.ErrInvalidState.WithMessagef("match %d is finalized", matchID)
	}

	switch {
	case !s.hasOwner:
		s.owner, s.hasOwner = userID, true
		s.lockedAt = r.clock.Now()
		s.collaborators[userID] = struct{}{}
		log.Info().Int64("match_id", matchID).Int64("user_id", userID).Msg("match locked")
		return AcquireResult{Outcome: Granted, OwnerID: userID, Changed: true}, nil
	case s.owner == userID:
		return AcquireResult{Outcome: Granted, OwnerID: userID}, nil
	}

	if _, ok := s.collaborators[userID]; ok {
		return AcquireResult{Outcome: CollaboratorAccess, OwnerID: s.owner}, nil
	}
	return AcquireResult{Outcome: Denied, OwnerID: s.owner}, nil
}

// Release gives up ownership. The collaborator with the smallest id becomes
// the new owner; with no collaborators left the owner is cleared.
func (r *Registry) Release(matchID, userID int64) (*int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[matchID]
	if ok && s.finalized {
		return nil, errclass.ErrInvalidState.WithMessagef("match %d is finalized", matchID)
	}
	if !ok || !s.ownedBy(userID) {
		return nil, errclass.ErrConflict.WithMessage("only the owner can unlock the match")
	}
	return r.releaseLocked(matchID, s), nil
}

func (r *Registry) releaseLocked(matchID int64, s *matchSession) *int64 {
	previous := s.owner
	delete(s.collaborators, previous)

	heirs := sortedIDs(s.collaborators)
	if len(heirs) == 0 {
		delete(r.sessions, matchID)
		log.Info().Int64("match_id", matchID).Int64("previous_owner", previous).Msg("match unlocked")
		return nil
	}

	heir := heirs[0]
	s.owner = heir
	s.lockedAt = r.clock.Now()
	log.Info().
		Int64("match_id", matchID).
		Int64("previous_owner", previous).
		Int64("new_owner", heir).
		Msg("match ownership transferred")
	return &heir
}

// ReleaseAll releases every match owned by userID, in ascending match order.
func (r *Registry) ReleaseAll(userID int64) []Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var transfers []Transfer
	for _, matchID := range r.ownedLocked(userID) {
		newOwner := r.releaseLocked(matchID, r.sessions[matchID])
		transfers = append(transfers, Transfer{MatchID: matchID, NewOwner: newOwner})
	}
	return transfers
}

// OwnedBy lists the matches userID currently owns.
func (r *Registry) OwnedBy(userID int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownedLocked(userID)
}

func (r *Registry) ownedLocked(userID int64) []int64 {
	var ids []int64
	for matchID, s := range r.sessions {
		if s.ownedBy(userID) {
			ids = append(ids, matchID)
		}
	}
	slices.Sort(ids)
	return ids
}

// RequestJoin queues a join request. Repeating a pending request refreshes it in place.
func (r *Registry) RequestJoin(matchID, userID int64, displayName string) (JoinOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session(matchID)
	if s.finalized {
		return 0, errclass.ErrInvalidState.WithMessagef("match %d is finalized", matchID)
	}
	if s.ownedBy(userID) {
		return JoinAlreadyOwner, nil
	}

	now := r.clock.Now()
	for i := range s.requests {
		if s.requests[i].RequesterID == userID {
			s.requests[i].RequesterName = displayName
			s.requests[i].CreatedAt = now
			return JoinRefreshed, nil
		}
	}

	s.requests = append(s.requests, JoinRequest{
		MatchID:       matchID,
		RequesterID:   userID,
		RequesterName: displayName,
		CreatedAt:     now,
	})
	return JoinQueued, nil
}

// ListRequests returns the pending requests in arrival order. Owner only.
func (r *Registry) ListRequests(matchID, ownerID int64) ([]JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.ownerSessionLocked(matchID, ownerID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(s.requests), nil
}

// Decide pops the requester's pending request and, on accept, grants edit access.
func (r *Registry) Decide(matchID, ownerID, requesterID int64, accept bool) (JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.ownerSessionLocked(matchID, ownerID)
	if err != nil {
		return JoinRequest{}, err
	}

	idx := slices.IndexFunc(s.requests, func(req JoinRequest) bool {
		return req.RequesterID == requesterID
	})
	if idx < 0 {
		return JoinRequest{}, errclass.ErrNotFound.WithMessage("join request was already handled")
	}

	req := s.requests[idx]
	s.requests = slices.Delete(s.requests, idx, idx+1)
	if accept {
		s.collaborators[requesterID] = struct{}{}
	}

	log.Info().
		Int64("match_id", matchID).
		Int64("requester_id", requesterID).
		Bool("approved", accept).
		Msg("join request decided")
	return req, nil
}

func (r *Registry) ownerSessionLocked(matchID, ownerID int64) (*matchSession, error) {
	s, ok := r.sessions[matchID]
	if ok && s.finalized {
		return nil, errclass.ErrInvalidState.WithMessagef("match %d is finalized", matchID)
	}
	if !ok || !s.ownedBy(ownerID) {
		return nil, errclass.ErrConflict.WithMessage("only the owner can manage join requests")
	}
	return s, nil
}

// Finalize marks the match finalized and clears its owner, collaborators and requests.
func (r *Registry) Finalize(matchID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalizeLocked(r.session(matchID))
}

func (r *Registry) finalizeLocked(s *matchSession) {
	s.finalized = true
	s.owner, s.hasOwner = 0, false
	s.lockedAt = time.Time{}
	s.collaborators = make(map[int64]struct{})
	s.requests = nil
}

// IsFinalized reports whether matchID has been finalized.
func (r *Registry) IsFinalized(matchID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[matchID]
	return ok && s.finalized
}

// Owner returns the current owner and the time the lock was taken.
func (r *Registry) Owner(matchID int64) (int64, time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[matchID]
	if !ok || !s.hasOwner {
		return 0, time.Time{}, false
	}
	return s.owner, s.lockedAt, true
}

// IsOwner reports whether userID owns matchID.
func (r *Registry) IsOwner(matchID, userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[matchID]
	return ok && s.ownedBy(userID)
}

// IsCollaborator reports whether userID has edit access to matchID. The owner counts.
func (r *Registry) IsCollaborator(matchID, userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[matchID]
	if !ok {
		return false
	}
	_, member := s.collaborators[userID]
	return member
}

// Collaborators returns the owner first, followed by the other collaborators ascending.
func (r *Registry) Collaborators(matchID int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[matchID]
	if !ok {
		return nil
	}
	var out []int64
	if s.hasOwner {
		out = append(out, s.owner)
	}
	for _, id := range sortedIDs(s.collaborators) {
		if s.hasOwner && id == s.owner {
			continue
		}
		out = append(out, id)
	}
	return out
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
