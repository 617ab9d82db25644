package auth

import (
	"errors"
	"sync"

	"github.com/subzone/zonecore/internal/mainloop"
	"github.com/subzone/zonecore/internal/player"
)

// ErrShortLoginPacket reports a raw login packet shorter than the
// fixed-width name/password prefix.
var ErrShortLoginPacket = errors.New("auth: login packet shorter than fixed prefix")

// ErrAlreadyDone names the second-Done() condition. Done itself returns
// nothing and treats a second call as a no-op, so no function in this
// package returns this error.
var ErrAlreadyDone = errors.New("auth: request already completed")

// Result is the mutable outcome an authenticator fills in before
// calling Request.Done.
type Result struct {
	Code          Code
	CustomText    string
	Authenticated bool
}

// Request is one login attempt (§4.6): player, login_bytes,
// login_packet, extra_bytes, a mutable result, and Done(), which MUST
// be called — on the mainloop — once Result is final. Requests are
// pool-allocated; Acquire/Release recycle the struct across logins.
type Request struct {
	Player      *player.Player
	LoginBytes  []byte
	Login       LoginPacket
	ExtraBytes  []byte
	Result      Result

	mainloop *mainloop.Mainloop
	onDone   func(*Request)
	mu       sync.Mutex
	done     bool
}

var requestPool = sync.Pool{New: func() any { return &Request{} }}

// Acquire returns a Request from the pool, wired to post its
// completion through m and invoke onDone once Done() fires.
func Acquire(m *mainloop.Mainloop, player *player.Player, loginBytes, extraBytes []byte, login LoginPacket, onDone func(*Request)) *Request {
	r := requestPool.Get().(*Request)
	r.Player = player
	r.LoginBytes = loginBytes
	r.Login = login
	r.ExtraBytes = extraBytes
	r.Result = Result{}
	r.mainloop = m
	r.onDone = onDone
	r.done = false
	return r
}

// Release returns r to the pool. Call only after Done has fired (or
// the request was abandoned without ever being handed to an
// authenticator) — never while an IAuth implementation may still be
// holding a reference.
func Release(r *Request) {
	r.Player = nil
	r.LoginBytes = nil
	r.ExtraBytes = nil
	r.mainloop = nil
	r.onDone = nil
	requestPool.Put(r)
}

// Done posts the completion callback to the mainloop exactly once.
// A second call is a no-op: per §4.6, a player disconnecting before
// Done() fires means the request is simply discarded by its owner,
// never double-completed.
func (r *Request) Done() {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	r.mu.Unlock()

	if r.mainloop == nil {
		if r.onDone != nil {
			r.onDone(r)
		}
		return
	}
	r.mainloop.QueueWorkItem(func() {
		if r.onDone != nil {
			r.onDone(r)
		}
	})
}
