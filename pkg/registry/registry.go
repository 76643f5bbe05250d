// Package registry owns all shared mutable state of the matchmaking core:
// the pool of online therapists, outstanding client requests, and active
// session pairings. Every exported operation is atomic under one mutex and
// returns copies, so callers never hold a reference into guarded state and
// never emit to the transport while the lock is held.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SafeSpaceHQ/safeline/pkg/errors"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"
)

// Teardown reasons, reported in the session-ended notification.
const (
	ReasonEnded            = "ended"
	ReasonPeerDisconnected = "peer-disconnected"
	ReasonExpired          = "expired"
)

// PendingRequest is a client's outstanding ask for a match. Candidates is
// the snapshot of therapists notified at broadcast time; it only shrinks
// (declines, therapists dropping offline) until the request is claimed,
// cancelled, or exhausted.
type PendingRequest struct {
	ClientID    string
	RequestedAt time.Time
	candidates  map[string]struct{}
}

// Session is a bounded-duration pairing of one client and one therapist.
// ExpiresAt is fixed at creation and never extended.
type Session struct {
	ID          string
	ClientID    string
	TherapistID string
	StartedAt   time.Time
	ExpiresAt   time.Time
	Status      SessionStatus
}

// Other returns the session member that is not id, or "" when id is not a
// member.
func (s Session) Other(id string) string {
	switch id {
	case s.ClientID:
		return s.TherapistID
	case s.TherapistID:
		return s.ClientID
	}
	return ""
}

// Remaining reports how long until expiry, clamped at zero.
func (s Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Removal describes everything a disconnect cleanup touched.
type Removal struct {
	WasOnline        bool
	HadPending       bool
	EndedSession     *Session
	ExhaustedClients []string
}

// Registry is the concurrency-safe store behind the matchmaking engine.
type Registry struct {
	mu         sync.Mutex
	ttl        time.Duration
	therapists map[string]struct{}
	pending    map[string]*PendingRequest
	sessions   map[string]*Session
	members    map[string]string // participant id -> active session id

	// claimed tracks clients whose request was claimed and whose session is
	// not yet created. The value flips to false when the client disconnects
	// or cancels inside that window, so the claim is void: the session must
	// not be created and the request must not be restored. Entries are
	// consumed by CreateSession or RestorePendingRequest.
	claimed map[string]bool
}

// New creates an empty registry. ttl is the fixed session duration applied
// at creation time.
func New(ttl time.Duration) *Registry {
	return &Registry{
		ttl:        ttl,
		therapists: make(map[string]struct{}),
		pending:    make(map[string]*PendingRequest),
		sessions:   make(map[string]*Session),
		members:    make(map[string]string),
		claimed:    make(map[string]bool),
	}
}

// MarkOnline adds a therapist to the pool. Idempotent.
func (r *Registry) MarkOnline(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.therapists[id] = struct{}{}
}

// MarkOffline removes a therapist from the pool and from every pending
// request's candidate set. It returns the clients whose requests were left
// with no candidates and therefore cleared; the caller owes each of them a
// request-declined notification. Idempotent.
func (r *Registry) MarkOffline(id string) (exhausted []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.therapists, id)
	return r.pruneCandidateLocked(id)
}

// pruneCandidateLocked drops id from all candidate sets and clears requests
// that end up with nobody left to accept them.
func (r *Registry) pruneCandidateLocked(id string) (exhausted []string) {
	for clientID, req := range r.pending {
		if _, ok := req.candidates[id]; !ok {
			continue
		}
		delete(req.candidates, id)
		if len(req.candidates) == 0 {
			delete(r.pending, clientID)
			exhausted = append(exhausted, clientID)
		}
	}
	return exhausted
}

// SetPendingRequest records a new request for clientID, replacing any prior
// one, and returns the snapshot of therapists online at this instant. When
// the pool is empty nothing changes and the snapshot is nil; an empty pool
// also implies no request can be pending, since candidate pruning clears
// requests as the last candidate leaves.
func (r *Registry) SetPendingRequest(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.therapists) == 0 {
		return nil
	}
	snapshot := make([]string, 0, len(r.therapists))
	candidates := make(map[string]struct{}, len(r.therapists))
	for id := range r.therapists {
		snapshot = append(snapshot, id)
		candidates[id] = struct{}{}
	}
	r.pending[clientID] = &PendingRequest{
		ClientID:    clientID,
		RequestedAt: time.Now(),
		candidates:  candidates,
	}
	return snapshot
}

// ClearPendingRequest removes the client's request if present. No error if
// absent. A cancel arriving while the request is claimed voids the claim, so
// the request is neither restored nor turned into a session afterwards.
func (r *Registry) ClearPendingRequest(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claimed[clientID]; ok {
		r.claimed[clientID] = false
	}
	_, ok := r.pending[clientID]
	delete(r.pending, clientID)
	return ok
}

// ClaimPendingRequest atomically checks for and removes the client's
// request. Under concurrent accepts exactly one caller observes ok=true;
// everyone else has lost the race.
func (r *Registry) ClaimPendingRequest(clientID string) (*PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[clientID]
	if !ok {
		return nil, false
	}
	delete(r.pending, clientID)
	r.claimed[clientID] = true
	return req, true
}

// RestorePendingRequest puts a claimed request back, used when session
// creation after a claim is rejected. The restore is skipped if the claim
// was voided (the client disconnected or cancelled since the claim) or the
// client has meanwhile issued a fresh request.
func (r *Registry) RestorePendingRequest(req *PendingRequest) {
	if req == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	valid, ok := r.claimed[req.ClientID]
	delete(r.claimed, req.ClientID)
	if ok && !valid {
		return
	}
	if _, exists := r.pending[req.ClientID]; exists {
		return
	}
	r.pending[req.ClientID] = req
}

// DeclineRequest removes therapistID from the candidate set of clientID's
// request. In the broadcast model a lone decline is advisory; only when the
// last candidate declines is the request cleared, reported by
// exhausted=true.
func (r *Registry) DeclineRequest(clientID, therapistID string) (exhausted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[clientID]
	if !ok {
		return false
	}
	delete(req.candidates, therapistID)
	if len(req.candidates) == 0 {
		delete(r.pending, clientID)
		return true
	}
	return false
}

// CreateSession pairs a client with a therapist. It fails with
// REQUEST_NOT_AVAILABLE when the client's claim was voided between the
// claim and this call (the client disconnected or cancelled), and with
// ALREADY_IN_SESSION when either participant is already a party to an
// active session; with correct claim usage the latter branch is
// unreachable, the check guards against logic errors.
func (r *Registry) CreateSession(clientID, therapistID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if valid, ok := r.claimed[clientID]; ok && !valid {
		delete(r.claimed, clientID)
		return Session{}, errors.NewAppErrorf(errors.ErrCodeRequestNotAvailable,
			"client %s left before the session could start", clientID)
	}
	if sid, ok := r.members[clientID]; ok {
		return Session{}, errors.NewAppErrorf(errors.ErrCodeAlreadyInSession,
			"participant %s is already in session %s", clientID, sid)
	}
	if sid, ok := r.members[therapistID]; ok {
		return Session{}, errors.NewAppErrorf(errors.ErrCodeAlreadyInSession,
			"participant %s is already in session %s", therapistID, sid)
	}
	now := time.Now()
	session := &Session{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		TherapistID: therapistID,
		StartedAt:   now,
		ExpiresAt:   now.Add(r.ttl),
		Status:      StatusActive,
	}
	delete(r.claimed, clientID)
	r.sessions[session.ID] = session
	r.members[clientID] = session.ID
	r.members[therapistID] = session.ID
	return *session, nil
}

// EndSession tears a session down exactly once. ok=true means this call
// performed the teardown and the caller owes both members a session-ended
// notification; later calls for the same id are no-ops reporting ok=false.
func (r *Registry) EndSession(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endSessionLocked(sessionID)
}

func (r *Registry) endSessionLocked(sessionID string) (Session, bool) {
	session, ok := r.sessions[sessionID]
	if !ok || session.Status != StatusActive {
		return Session{}, false
	}
	session.Status = StatusEnded
	delete(r.sessions, sessionID)
	delete(r.members, session.ClientID)
	delete(r.members, session.TherapistID)
	return *session, true
}

// FindSessionByParticipant returns the active session id is a party to.
func (r *Registry) FindSessionByParticipant(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.members[id]
	if !ok {
		return Session{}, false
	}
	session, ok := r.sessions[sid]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

// RemoveParticipantEverywhere is the disconnect cleanup: drop id from the
// therapist pool and all candidate sets, clear any request it owns, and end
// any active session it is a party to. Missing entries are expected and
// ignored.
func (r *Registry) RemoveParticipantEverywhere(id string) Removal {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removal Removal
	if _, ok := r.therapists[id]; ok {
		removal.WasOnline = true
		delete(r.therapists, id)
	}
	if _, ok := r.pending[id]; ok {
		removal.HadPending = true
		delete(r.pending, id)
	}
	// Void any in-flight claim so the request of a departed client is
	// neither restored nor turned into a session.
	if _, ok := r.claimed[id]; ok {
		r.claimed[id] = false
	}
	removal.ExhaustedClients = r.pruneCandidateLocked(id)
	if sid, ok := r.members[id]; ok {
		if session, ended := r.endSessionLocked(sid); ended {
			removal.EndedSession = &session
		}
	}
	return removal
}

// Counts reports pool, queue, and session sizes for the operational
// read-only surface.
func (r *Registry) Counts() (therapists, waiting, active int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.therapists), len(r.pending), len(r.sessions)
}

// ActiveSessions returns copies of every active session.
func (r *Registry) ActiveSessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}
