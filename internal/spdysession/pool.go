package spdysession

// Pool is the external collaborator a Session reports to during shutdown,
// so that a connection pool keyed by origin stops offering this session to
// new requests and eventually drops its last reference. The session never
// observes or reaches into other sessions through this interface; it is a
// narrow, one-way notification channel.
type Pool interface {
	// MakeUnavailable is called exactly once, the moment the session
	// leaves AVAILABLE (on GOAWAY sent/received or close), so new lookups
	// stop handing this session out for pooled reuse.
	MakeUnavailable(s *Session)

	// Remove is called exactly once, after the session has fully closed,
	// so the pool drops whatever reference it was holding.
	Remove(s *Session)

	// AddPooledAlias records an additional origin key this session may be
	// reused for (e.g. a certificate covering multiple DNS names), called
	// only while the session remains AVAILABLE.
	AddPooledAlias(key string)
}

// nopPool is used when a Session is constructed without a Pool, so the
// session core never needs a nil check on the hot path.
type nopPool struct{}

func (nopPool) MakeUnavailable(*Session) {}
func (nopPool) Remove(*Session)          {}
func (nopPool) AddPooledAlias(string)    {}
