package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	undertone "github.com/menta2k/undertone-analyzer"
	"github.com/menta2k/undertone-analyzer/pkg/pipeline"
)

const (
	sessionCookieName = "undertone_session"
	sessionHeader     = "X-Session-ID"
	sessionTTL        = 30 * time.Minute
)

type sessionEntry struct {
	session  *pipeline.Session
	lastSeen time.Time
}

// sessionStore maps client session ids onto pipeline sessions so that a new
// upload from the same client supersedes the one still running
type sessionStore struct {
	analyzer *undertone.Analyzer
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func newSessionStore(analyzer *undertone.Analyzer, ttl time.Duration) *sessionStore {
	return &sessionStore{
		analyzer: analyzer,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// acquire returns the session for id, creating it when needed. Idle
// sessions are evicted on the way.
func (st *sessionStore) acquire(id string) *pipeline.Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	st.evictLocked(now)

	entry, ok := st.sessions[id]
	if !ok {
		entry = &sessionEntry{session: st.analyzer.NewSession(nil)}
		st.sessions[id] = entry
	}
	entry.lastSeen = now
	return entry.session
}

// lookup returns an existing session without creating one
func (st *sessionStore) lookup(id string) (*pipeline.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	entry, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// remove cancels and forgets a session
func (st *sessionStore) remove(id string) bool {
	st.mu.Lock()
	entry, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		entry.session.Cancel()
	}
	return ok
}

func (st *sessionStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *sessionStore) evictLocked(now time.Time) {
	for id, entry := range st.sessions {
		if now.Sub(entry.lastSeen) > st.ttl {
			entry.session.Cancel()
			delete(st.sessions, id)
		}
	}
}

func (st *sessionStore) closeAll() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, entry := range st.sessions {
		entry.session.Cancel()
		delete(st.sessions, id)
	}
}

// sessionID reads the client session id from the header or cookie, or
// mints a new one
func sessionID(r *http.Request) (string, bool) {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id, false
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, false
	}
	return uuid.NewString(), true
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}
