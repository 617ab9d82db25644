package auth

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subzone/zonecore/internal/mainloop"
)

func runningMainloop(t *testing.T) *mainloop.Mainloop {
	t.Helper()
	m := mainloop.New(slog.New(slog.DiscardHandler))
	done := make(chan struct{})
	go func() {
		m.Run(t.Context(), func(time.Time) {})
		close(done)
	}()
	t.Cleanup(func() {
		m.Quit(mainloop.ExitNormal)
		<-done
	})
	return m
}

func TestParseLoginPacketExtractsFixedPrefix(t *testing.T) {
	raw := make([]byte, loginPrefixSize+3)
	raw[0] = 7 // client version LE u32 = 7
	copy(raw[4:], []byte("alice"))
	copy(raw[4+nameFieldSize:], []byte("pw"))
	copy(raw[loginPrefixSize:], []byte("ext"))

	login, err := ParseLoginPacket(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", login.Name)
	assert.Equal(t, "pw", login.Password)
	assert.Equal(t, uint32(7), login.ClientVersion)
}

func TestParseLoginPacketRejectsShortInput(t *testing.T) {
	_, err := ParseLoginPacket(make([]byte, 4))
	assert.ErrorIs(t, err, ErrShortLoginPacket)
}

func TestRequestDoneFiresExactlyOnceViaMainloop(t *testing.T) {
	m := runningMainloop(t)

	var calls int
	var mu sync.Mutex
	done := make(chan struct{}, 1)

	req := Acquire(m, nil, nil, nil, LoginPacket{Name: "alice"}, func(r *Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- struct{}{}
	})

	req.Result.Code = CodeOK
	req.Result.Authenticated = true
	req.Done()
	req.Done() // second call must be a no-op
	req.Done()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Done callback never ran on the mainloop")
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	req := Acquire(nil, nil, []byte("login"), []byte("extra"), LoginPacket{Name: "bob"}, nil)
	assert.Equal(t, "bob", req.Login.Name)
	Release(req)

	req2 := Acquire(nil, nil, nil, nil, LoginPacket{}, nil)
	assert.Nil(t, req2.LoginBytes)
}

// E5 — auth chain fallback: IAuth#1 defers to the previously-registered
// IAuth#0 for every request. A login for "alice"/"pw" reaches IAuth#0,
// which sets code=OK, authenticated=true, and calls Done(). The
// player's status transition itself is mainloop-level plumbing outside
// this package; here we verify the chain forwards the exact request
// and the result propagates back through Done() exactly once.
func TestAuthChainForwardsToRegisteredFallback(t *testing.T) {
	m := runningMainloop(t)

	var base IAuth = IAuthFunc(func(req *Request) {
		assert.Equal(t, "alice", req.Login.Name)
		assert.Equal(t, "pw", req.Login.Password)
		req.Result.Code = CodeOK
		req.Result.Authenticated = true
		req.Done()
	})

	chained := Chain(func(req *Request, next IAuth) {
		next.Authenticate(req)
	}, base)

	resultCh := make(chan Result, 1)
	req := Acquire(m, nil, nil, nil, LoginPacket{Name: "alice", Password: "pw"}, func(r *Request) {
		resultCh <- r.Result
	})

	chained.Authenticate(req)

	select {
	case res := <-resultCh:
		assert.Equal(t, CodeOK, res.Code)
		assert.True(t, res.Authenticated)
	case <-time.After(time.Second):
		t.Fatal("chained authenticator never completed")
	}
}
