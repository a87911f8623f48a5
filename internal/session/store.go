// Package session tracks per-tab check state for the lifetime of a tab.
package session

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/navguard/internal/model"
)

// Session is the per-tab state. One active instance per open tab.
type Session struct {
	// LastCheckedDomain suppresses re-checking same-domain in-page
	// transitions.
	LastCheckedDomain string
	// TargetURL is the initiating URL of the most recent check; the
	// stale-result guard compares completing checks against it.
	TargetURL string
	// Pending is set while a check is in flight for TargetURL.
	Pending bool
	// CachedVerdict holds the most recent verdict awaiting display at
	// page-load-complete.
	CachedVerdict *model.Verdict
	// LastActivity timestamps the most recent check so same-domain
	// suppression can expire after a long idle period.
	LastActivity time.Time
}

// Store is an in-memory mapping from tab ID to Session. Safe for concurrent
// use: navigation events and network completions interleave freely across
// goroutines.
type Store struct {
	mu         sync.Mutex
	sessions   map[int]*Session
	staleAfter time.Duration
	now        func() time.Time
}

// NewStore creates a Store. staleAfter bounds how long same-domain
// re-navigation suppression holds for an idle tab; zero disables expiry.
func NewStore(staleAfter time.Duration) *Store {
	return &Store{
		sessions:   make(map[int]*Session),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Domain extracts the comparison key for same-domain suppression: the
// lowercase hostname without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// ShouldCheck reports whether a navigation to domain warrants a new check
// for this tab. Same-domain re-navigation is suppressed until the session
// goes stale.
func (s *Store) ShouldCheck(tabID int, domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tabID]
	if !ok || domain == "" {
		return true
	}
	if s.staleAfter > 0 && s.now().Sub(sess.LastActivity) > s.staleAfter {
		return true
	}
	return sess.LastCheckedDomain != domain
}

// BeginCheck records a pending check, creating the session on first use.
// Starting a new check abandons interest in any previous in-flight check for
// the tab; its eventual result fails the stale guard in CompleteCheck.
func (s *Store) BeginCheck(tabID int, rawURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tabID]
	if !ok {
		sess = &Session{}
		s.sessions[tabID] = sess
	}
	sess.LastCheckedDomain = Domain(rawURL)
	sess.TargetURL = rawURL
	sess.Pending = true
	sess.CachedVerdict = nil
	sess.LastActivity = s.now()
}

// CompleteCheck stores a verdict for later display. Returns false — with no
// state change — when the completing check's URL no longer matches the
// session's current target, or the session is gone (stale-result guard).
func (s *Store) CompleteCheck(tabID int, rawURL string, verdict *model.Verdict) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tabID]
	if !ok || sess.TargetURL != rawURL {
		return false
	}
	sess.CachedVerdict = verdict
	sess.Pending = false
	return true
}

// FailCheck clears the pending flag after a check errors out. Stale failures
// are ignored the same way stale completions are.
func (s *Store) FailCheck(tabID int, rawURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tabID]
	if !ok || sess.TargetURL != rawURL {
		return false
	}
	sess.Pending = false
	return true
}

// TakeVerdict returns and clears the cached verdict, if any. Used at
// page-load-complete so a deferred notification fires at most once.
func (s *Store) TakeVerdict(tabID int) *model.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tabID]
	if !ok || sess.CachedVerdict == nil {
		return nil
	}
	v := sess.CachedVerdict
	sess.CachedVerdict = nil
	return v
}

// CurrentTarget returns the session's current target URL, or "" if the tab
// has no session.
func (s *Store) CurrentTarget(tabID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[tabID]; ok {
		return sess.TargetURL
	}
	return ""
}

// ResetForURL clears check state on every session currently targeting the
// given URL, so the next navigation to it is evaluated afresh (used when the
// user bypasses a block). Returns the affected tab IDs.
func (s *Store) ResetForURL(rawURL string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tabs []int
	for id, sess := range s.sessions {
		if sess.TargetURL == rawURL {
			sess.LastCheckedDomain = ""
			sess.TargetURL = ""
			sess.Pending = false
			sess.CachedVerdict = nil
			tabs = append(tabs, id)
		}
	}
	return tabs
}

// Destroy removes all state for a closed tab. A destroyed session is never
// resurrected by a dangling check: CompleteCheck on a missing session is a
// no-op.
func (s *Store) Destroy(tabID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tabID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
