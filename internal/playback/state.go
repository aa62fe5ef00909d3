// Package playback owns the shared playback state and the controller state
// machine that keeps it consistent with the native video process.
package playback

import (
	"sync"

	"github.com/kvasir-media/fincast/internal/bridge"
)

// State is the single shared record of playback facts for one video session.
// Times are in seconds. It is mutated only through the Store; every other
// component holds a read-only view.
type State struct {
	Paused         bool
	CurrentTime    float64
	CachedTime     float64
	Duration       float64
	Volume         int
	Muted          bool
	Speed          float64
	AudioTracks    []bridge.Track
	SubtitleTracks []bridge.Track
}

// defaultState is the zero session state. Volume and speed use the native
// process defaults rather than literal zeroes so a fresh session is audible
// and plays at normal speed.
func defaultState() State {
	return State{
		Volume: 100,
		Speed:  1.0,
	}
}

// Progress returns the watched fraction in [0, 1]. An unknown or invalid
// duration yields 0 so thresholds never see NaN or Inf.
func (s State) Progress() float64 {
	return Fraction(s.CurrentTime, s.Duration)
}

// Store is an observable holder of State. Update notifies subscribers
// synchronously, in registration order, after the mutation is applied, so
// observers never see notifications out of order relative to the mutations
// that caused them.
type Store struct {
	mu    sync.Mutex
	state State

	subSeq int
	subs   []storeSub
}

type storeSub struct {
	id int
	fn func(State)
}

// NewStore creates a store holding the default session state.
func NewStore() *Store {
	return &Store{state: defaultState()}
}

// Get returns a snapshot of the current state. Track slices are shared;
// they are replaced wholesale and never mutated in place.
func (st *Store) Get() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Update applies a mutation and notifies subscribers with the new snapshot.
// The store performs no validation; clamping is the caller's job.
func (st *Store) Update(mutate func(*State)) {
	st.mu.Lock()
	mutate(&st.state)
	snapshot := st.state
	subs := make([]storeSub, len(st.subs))
	copy(subs, st.subs)
	st.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snapshot)
	}
}

// Reset restores the default session state and notifies subscribers.
func (st *Store) Reset() {
	st.Update(func(s *State) {
		*s = defaultState()
	})
}

// Subscribe registers an observer invoked on every update. Cancelling the
// returned subscription removes the observer; cancel is safe to call more
// than once.
func (st *Store) Subscribe(fn func(State)) *bridge.Subscription {
	st.mu.Lock()
	st.subSeq++
	id := st.subSeq
	st.subs = append(st.subs, storeSub{id: id, fn: fn})
	st.mu.Unlock()

	return bridge.NewSubscription(func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		for i, sub := range st.subs {
			if sub.id == id {
				st.subs = append(st.subs[:i], st.subs[i+1:]...)
				break
			}
		}
	})
}
