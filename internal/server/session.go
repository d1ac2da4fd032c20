package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/menta2k/dental-vision/pkg/analyzer"
)

// Session is one user's uploaded image. The image is never modified after
// upload, so handlers may read it without further locking.
type Session struct {
	ID        string
	Filename  string
	BaseName  string
	Upload    *analyzer.Upload
	CreatedAt time.Time
}

// SessionStore keeps sessions isolated from each other and forgets
// sessions idle for longer than the TTL. Every Get extends the TTL.
type SessionStore struct {
	cache *ttlcache.Cache[string, *Session]
}

// NewSessionStore creates an empty store; a zero ttl never expires sessions
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	cache := ttlcache.New[string, *Session](
		ttlcache.WithTTL[string, *Session](ttl),
	)
	go cache.Start()
	return &SessionStore{cache: cache}
}

// Create registers a new session for an upload
func (s *SessionStore) Create(filename, baseName string, upload *analyzer.Upload) *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		Filename:  filename,
		BaseName:  baseName,
		Upload:    upload,
		CreatedAt: time.Now(),
	}
	s.cache.Set(sess.ID, sess, ttlcache.DefaultTTL)
	return sess
}

// Get returns a live session and refreshes its idle timer
func (s *SessionStore) Get(id string) (*Session, bool) {
	item := s.cache.Get(id)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

// Delete removes a session and reports whether it existed
func (s *SessionStore) Delete(id string) bool {
	if _, ok := s.Get(id); !ok {
		return false
	}
	s.cache.Delete(id)
	return true
}

// Len returns the number of live sessions
func (s *SessionStore) Len() int {
	s.cache.DeleteExpired()
	return s.cache.Len()
}

// Close stops the background expiry loop
func (s *SessionStore) Close() {
	s.cache.Stop()
}
