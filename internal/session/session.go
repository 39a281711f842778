// Package session holds per-user in-flight dialogue state. State is
// ephemeral: it exists only between the first prompt of a flow and its
// terminal step (commit, cancel or error), is keyed by the acting user's
// Telegram identity and never leaks across users.
package session

import "sync"

// Flows. One user is in at most one flow at a time.
const (
	FlowRegistration  = "registration"
	FlowBooking       = "booking"
	FlowRedemption    = "redemption"
	FlowAdminCredit   = "admin_credit"
	FlowAdminDebit    = "admin_debit"
	FlowAdminPurchase = "admin_purchase"
	FlowBroadcast     = "broadcast"
)

// Steps within flows.
const (
	StepFirstName = "first_name"
	StepLastName  = "last_name"
	StepPhone     = "phone"
	StepConfirm   = "confirm"

	StepDate   = "date"
	StepTime   = "time"
	StepGuests = "guests"

	StepAmount = "amount"
	StepTarget = "target"

	StepContent = "content"
)

// BroadcastDraft is the collected broadcast content: plain text, or one
// photo/video file id with an optional caption.
type BroadcastDraft struct {
	Text    string
	PhotoID string
	VideoID string
	Caption string
}

// State is one user's dialogue position plus the draft fields collected
// so far. Which draft fields are meaningful depends on the flow.
type State struct {
	Flow string
	Step string

	// Registration draft
	FirstName string
	LastName  string
	Phone     string

	// Booking draft
	Date   string
	Time   string
	Guests int

	// Admin credit/debit/purchase target
	TargetCardID int

	// Broadcast draft
	Broadcast BroadcastDraft
}

// Store is a mutex-guarded map of user id to dialogue state. The bot's
// transport may deliver events for different users concurrently; the store
// is the only process-wide mutable state and stays safe under that.
type Store struct {
	mu     sync.RWMutex
	states map[int64]State
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{states: make(map[int64]State)}
}

// Begin starts a fresh flow for the user, discarding any previous state.
func (s *Store) Begin(userID int64, flow, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = State{Flow: flow, Step: step}
}

// Get returns a copy of the user's state and whether one exists.
func (s *Store) Get(userID int64) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	return st, ok
}

// Put stores the user's state, replacing what was there.
func (s *Store) Put(userID int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = st
}

// Clear removes the user's state. Called on every terminal step.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

// Active reports whether the user has a dialogue in progress.
func (s *Store) Active(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.states[userID]
	return ok
}
