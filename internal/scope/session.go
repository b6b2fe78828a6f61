package scope

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSessionCookie is the cookie name used when none is configured.
const DefaultSessionCookie = "DISPATCHSESSID"

// DefaultSessionCapacity bounds the in-memory session store.
const DefaultSessionCapacity = 4096

// Session holds session-scoped attributes for one client.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.RWMutex
	values   map[string]any
	lastSeen time.Time
}

// Get returns a session attribute, or nil.
func (s *Session) Get(name string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name]
}

// Set stores a session attribute.
func (s *Session) Set(name string, value any) {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
}

// Remove deletes a session attribute.
func (s *Session) Remove(name string) {
	s.mu.Lock()
	delete(s.values, name)
	s.mu.Unlock()
}

// LastSeen returns the time of the last request bound to this session.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// SessionStore is a bounded in-memory session store keyed by a cookie.
// Least-recently-used sessions are evicted when capacity is exceeded.
type SessionStore struct {
	cookie   string
	sessions *lru.Cache[string, *Session]
}

// NewSessionStore creates a store with the given cookie name and capacity.
// Zero values select the defaults.
func NewSessionStore(cookie string, capacity int) (*SessionStore, error) {
	if cookie == "" {
		cookie = DefaultSessionCookie
	}
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	cache, err := lru.New[string, *Session](capacity)
	if err != nil {
		return nil, err
	}
	return &SessionStore{cookie: cookie, sessions: cache}, nil
}

// Lookup returns the session bound to the request's cookie, or nil.
func (st *SessionStore) Lookup(r *http.Request) *Session {
	c, err := r.Cookie(st.cookie)
	if err != nil {
		return nil
	}
	s, ok := st.sessions.Get(c.Value)
	if !ok {
		return nil
	}
	s.touch(time.Now())
	return s
}

// Attach returns the request's session, creating one and setting the
// session cookie when absent.
func (st *SessionStore) Attach(w http.ResponseWriter, r *http.Request) *Session {
	if s := st.Lookup(r); s != nil {
		return s
	}

	now := time.Now()
	s := &Session{
		ID:       uuid.NewString(),
		Created:  now,
		values:   make(map[string]any),
		lastSeen: now,
	}
	st.sessions.Add(s.ID, s)

	http.SetCookie(w, &http.Cookie{
		Name:     st.cookie,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// Invalidate drops the request's session and expires its cookie.
func (st *SessionStore) Invalidate(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(st.cookie)
	if err != nil {
		return
	}
	st.sessions.Remove(c.Value)
	http.SetCookie(w, &http.Cookie{
		Name:   st.cookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	return st.sessions.Len()
}
