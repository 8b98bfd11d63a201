package position

import (
	"sync"
	"time"
)

// messageQueueCapacity is the outbound notification channel's
// capacity, per spec.md §4.5/§6.
const messageQueueCapacity = 100

// Store is the single process-wide, lock-protected record of managed
// positions (C5). Holders of the lock must not await across external
// I/O: every operation here clones out the minimum needed data and
// returns before any network call would be made by its caller.
type Store struct {
	mu sync.Mutex

	created time.Time
	updated time.Time

	active bool

	managedPositions []ManagedPosition

	localWalletPubkey        *string
	programmaticWalletPubkey *string

	positionToOpen  *NewProgrammaticPosition
	positionToClose *ManagedPosition

	messages chan PoolManagerMessage
}

// New creates an empty store. active gates the close/open executor
// loop per the MODE environment variable; programmaticWalletPubkey is
// the signing wallet and is always known at construction.
func New(active bool, programmaticWalletPubkey string) *Store {
	now := time.Now()
	return &Store{
		created:                  now,
		updated:                  now,
		active:                   active,
		programmaticWalletPubkey: &programmaticWalletPubkey,
		messages:                 make(chan PoolManagerMessage, messageQueueCapacity),
	}
}

// Snapshot is a cheap, under-lock clone of the fields C6's loops read
// every tick.
type Snapshot struct {
	Created                  time.Time
	Updated                  time.Time
	Active                   bool
	ManagedPositions         []ManagedPosition
	LocalWalletPubkey        *string
	ProgrammaticWalletPubkey *string
	PositionToOpen           *NewProgrammaticPosition
	PositionToClose          *ManagedPosition
}

// Snapshot returns a point-in-time copy of the store's state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make([]ManagedPosition, len(s.managedPositions))
	copy(positions, s.managedPositions)

	return Snapshot{
		Created:                  s.created,
		Updated:                  s.updated,
		Active:                   s.active,
		ManagedPositions:         positions,
		LocalWalletPubkey:        s.localWalletPubkey,
		ProgrammaticWalletPubkey: s.programmaticWalletPubkey,
		PositionToOpen:           s.positionToOpen,
		PositionToClose:          s.positionToClose,
	}
}

// IsRebalancing reports whether either executor slot is occupied —
// the decision loop's skip condition.
func (s *Store) IsRebalancing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionToOpen != nil || s.positionToClose != nil
}

// ReplacePositions atomically swaps the managed-position list and
// appends outgoing messages in a single lock acquisition, per
// spec.md §4.6.1 step 6.
func (s *Store) ReplacePositions(positions []ManagedPosition, outgoing []PoolManagerMessage) {
	s.mu.Lock()
	s.managedPositions = positions
	s.updated = time.Now()
	s.enqueueAll(outgoing)
	s.mu.Unlock()
}

// MutatePosition applies fn to the managed position identified by
// address in place, under the store lock, and reports whether one was
// found. Used by the decision loop to persist out_of_range_start
// transitions between reconciliation cycles without a full
// snapshot/replace round trip.
func (s *Store) MutatePosition(address string, fn func(p *ManagedPosition)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.managedPositions {
		if s.managedPositions[i].Address == address {
			fn(&s.managedPositions[i])
			return true
		}
	}
	return false
}

// SetPositionToOpen occupies the open slot.
func (s *Store) SetPositionToOpen(p NewProgrammaticPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionToOpen = &p
}

// ClearPositionToOpen empties the open slot.
func (s *Store) ClearPositionToOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionToOpen = nil
}

// SetPositionToClose occupies the close slot.
func (s *Store) SetPositionToClose(p ManagedPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionToClose = &p
}

// ClearPositionToClose empties the close slot.
func (s *Store) ClearPositionToClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionToClose = nil
}

// SetLocalWallet records pubkey as the read-only view wallet and
// merges newPositions (already fetched by the caller via C3 before
// calling — no I/O happens under this lock) into the managed set.
// Returns the full post-merge position list.
func (s *Store) SetLocalWallet(pubkey string, newPositions []ManagedPosition) []ManagedPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localWalletPubkey = &pubkey
	s.managedPositions = append(s.managedPositions, newPositions...)
	s.updated = time.Now()
	out := make([]ManagedPosition, len(s.managedPositions))
	copy(out, s.managedPositions)
	return out
}

// UnsetLocalWallet drops all managed positions whose WalletKey equals
// the now-removed local wallet and returns the removed set.
func (s *Store) UnsetLocalWallet() []ManagedPosition {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.localWalletPubkey == nil {
		return nil
	}
	removedWallet := *s.localWalletPubkey
	s.localWalletPubkey = nil

	var kept, removed []ManagedPosition
	for _, p := range s.managedPositions {
		if p.WalletKey == removedWallet {
			removed = append(removed, p)
		} else {
			kept = append(kept, p)
		}
	}
	s.managedPositions = kept
	s.updated = time.Now()
	return removed
}

// enqueueAll sends each message onto the outbound channel,
// non-blocking: a full channel drops the message without logging it,
// per spec.md §4.5's best-effort backpressure
// policy. Messages for the same address are enqueued in the order
// given, preserving per-address ordering since ReplacePositions is
// always called under a single goroutine (the reconciliation loop).
func (s *Store) enqueueAll(messages []PoolManagerMessage) {
	for _, m := range messages {
		select {
		case s.messages <- m:
		default:
		}
	}
}

// Enqueue pushes a single message (used by the stats forwarder and by
// ad-hoc single-message notifications), same backpressure policy as
// enqueueAll.
func (s *Store) Enqueue(m PoolManagerMessage) {
	select {
	case s.messages <- m:
	default:
	}
}

// DrainMessages removes and returns all currently buffered
// notifications. Called every 1s by the outbound forwarder.
func (s *Store) DrainMessages() []PoolManagerMessage {
	var drained []PoolManagerMessage
	for {
		select {
		case m := <-s.messages:
			drained = append(drained, m)
		default:
			return drained
		}
	}
}
