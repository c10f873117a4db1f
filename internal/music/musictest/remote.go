// Package musictest provides an in-memory music.Remote for tests.
package musictest

import (
	"context"
	"sync"

	"github.com/jfmyers9/desky/internal/music"
)

// Remote is a scriptable music.Remote and music.Controller
type Remote struct {
	mu sync.Mutex

	// ConnectErrs are returned by successive Connect calls; nil entries
	// and calls past the end succeed
	ConnectErrs []error

	// Block, when set, makes Connect wait until it is closed
	Block chan struct{}

	// State is returned by PlayerState
	State    *music.PlayerState
	StateErr error

	// CanSubscribe enables push subscriptions
	CanSubscribe bool

	// OnDisconnect, when set, runs at the start of every Disconnect
	OnDisconnect func()

	Connects    int
	Disconnects int
	Fetches     int
	Commands    []string
	Tokens      []string // Tokens passed to Connect
	Updates     []string // Tokens passed to UpdateToken

	token     string
	connected bool

	subscribers map[int]music.StateFunc
	nextSub     int
}

// New creates a Remote with an initial state
func New(state *music.PlayerState) *Remote {
	return &Remote{State: state, subscribers: make(map[int]music.StateFunc)}
}

// Connect records the attempt and returns the next scripted error
func (r *Remote) Connect(ctx context.Context, accessToken string) error {
	r.mu.Lock()
	block := r.Block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.Connects
	r.Connects++
	r.Tokens = append(r.Tokens, accessToken)
	if idx < len(r.ConnectErrs) && r.ConnectErrs[idx] != nil {
		return r.ConnectErrs[idx]
	}
	r.token = accessToken
	r.connected = true
	return nil
}

// Disconnect records the call and closes the session
func (r *Remote) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	hook := r.OnDisconnect
	r.mu.Unlock()

	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Disconnects++
	r.connected = false
	return nil
}

// UpdateToken records the token and uses it for the open session
func (r *Remote) UpdateToken(accessToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updates = append(r.Updates, accessToken)
	if r.connected {
		r.token = accessToken
	}
}

// Token returns the access token of the open session
func (r *Remote) Token() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// IsConnected reports whether the last Connect succeeded and no
// Disconnect followed
func (r *Remote) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// PlayerState returns a copy of State or StateErr
func (r *Remote) PlayerState(ctx context.Context) (*music.PlayerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fetches++
	if r.StateErr != nil {
		return nil, r.StateErr
	}
	if r.State == nil {
		return nil, nil
	}
	s := *r.State
	return &s, nil
}

// Subscribe registers fn when CanSubscribe is set
func (r *Remote) Subscribe(ctx context.Context, fn music.StateFunc) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.CanSubscribe {
		return nil, music.ErrSubscribeUnsupported
	}
	if r.subscribers == nil {
		r.subscribers = make(map[int]music.StateFunc)
	}
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subscribers, id)
	}, nil
}

// Push delivers state to every active subscriber
func (r *Remote) Push(state *music.PlayerState) {
	r.mu.Lock()
	fns := make([]music.StateFunc, 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Subscribers returns the number of active subscriptions
func (r *Remote) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// SetState replaces the state returned by PlayerState
func (r *Remote) SetState(state *music.PlayerState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.State = state
	r.StateErr = err
}

// ConnectCount returns the number of Connect calls
func (r *Remote) ConnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Connects
}

// FetchCount returns the number of PlayerState calls
func (r *Remote) FetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Fetches
}

func (r *Remote) command(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = append(r.Commands, name)
	return nil
}

// Play records the command
func (r *Remote) Play(ctx context.Context) error { return r.command("play") }

// Pause records the command
func (r *Remote) Pause(ctx context.Context) error { return r.command("pause") }

// PlayPause records the command
func (r *Remote) PlayPause(ctx context.Context) error { return r.command("playpause") }

// NextTrack records the command
func (r *Remote) NextTrack(ctx context.Context) error { return r.command("next") }

// PreviousTrack records the command
func (r *Remote) PreviousTrack(ctx context.Context) error { return r.command("previous") }
