package auth

// IAuth is the pluggable authenticator contract (§4.6).
// Authenticate MUST eventually call req.Done(), on the mainloop, once
// req.Result is final; it may return before that happens (e.g. while
// waiting on a billing round-trip).
type IAuth interface {
	Authenticate(req *Request)
}

// IAuthFunc adapts a plain function to IAuth.
type IAuthFunc func(req *Request)

func (f IAuthFunc) Authenticate(req *Request) { f(req) }

// IBillingFallback lets a billing-backed authenticator consult a local
// credential store while its external billing connection is down
// (§4.6).
type IBillingFallback interface {
	Check(name, password string) (Code, bool)
}

// Chain wraps next so an authenticator can forward requests it
// doesn't want to handle itself to whatever IAuth was registered
// before it — the pattern described in §4.6: "a module fetches the
// currently-registered IAuth, stores the handle, then registers its
// own". The broker (internal/broker) is what supplies that
// fetch-then-register sequence; Chain is just the forwarding glue.
func Chain(self func(req *Request, next IAuth), next IAuth) IAuth {
	return IAuthFunc(func(req *Request) {
		self(req, next)
	})
}
