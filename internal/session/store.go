package session

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Package session keeps accumulated intermediate results alive across
// successive tool calls that form one logical analysis (multi-step
// workflows where the user confirms each step).
//
// A session has two keys: an opaque session_id handed to the caller and
// a deterministic session_key derived from the call's shape, so the
// loop can rediscover the session when the caller does not pass an id.
// The store is indexed by both; the key index is rebuilt on insertion.

// TTL is how long a session survives after its last write.
const TTL = time.Hour

// Session is the persisted state of one multi-step analysis.
type Session struct {
	ID                string
	Key               string
	Results           map[string]interface{}
	Args              map[string]interface{}
	LastCompletedStep int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Store is an in-memory session store with TTL expiration.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*Session
	byKey map[string]string
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
}

// NewStore creates a store and starts its background sweeper.
func NewStore() *Store {
	s := &Store{
		byID:  make(map[string]*Session),
		byKey: make(map[string]string),
		ttl:   TTL,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Save persists results under the session identified by id, creating it
// when id is empty. Returns the session id.
func (s *Store) Save(id, key string, results, args map[string]interface{}, lastStep int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.byID[id]
	if !ok {
		if id == "" {
			id = uuid.NewString()
		}
		sess = &Session{ID: id, CreatedAt: now}
		s.byID[id] = sess
	}

	if sess.Key != "" && sess.Key != key {
		delete(s.byKey, sess.Key)
	}
	sess.Key = key
	sess.Results = results
	sess.Args = args
	sess.LastCompletedStep = lastStep
	sess.UpdatedAt = now
	if key != "" {
		s.byKey[key] = id
	}

	return id
}

// Get returns a live session by id. Expired entries are deleted on
// access and reported as missing.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	if s.expired(sess) {
		s.deleteLocked(sess)
		return nil, false
	}
	return sess, true
}

// FindByKey returns a live session matching the deterministic key.
// The secondary index makes this O(1); a linear scan backs it up in
// case the index entry was lost to an id collision.
func (s *Store) FindByKey(key string) (*Session, bool) {
	if key == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[key]; ok {
		if sess, ok := s.byID[id]; ok && !s.expired(sess) {
			return sess, true
		}
	}

	for _, sess := range s.byID {
		if sess.Key == key && !s.expired(sess) {
			return sess, true
		}
	}
	return nil, false
}

// Len reports the number of sessions currently held, expired included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Close stops the background sweeper.
func (s *Store) Close() {
	close(s.stop)
}

func (s *Store) expired(sess *Session) bool {
	return s.now().Sub(sess.UpdatedAt) > s.ttl
}

func (s *Store) deleteLocked(sess *Session) {
	delete(s.byID, sess.ID)
	if sess.Key != "" && s.byKey[sess.Key] == sess.ID {
		delete(s.byKey, sess.Key)
	}
}

// sweep evicts expired sessions every 2×TTL (lazy eviction on access
// handles the common path).
func (s *Store) sweep() {
	ticker := time.NewTicker(2 * s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for _, sess := range s.byID {
				if s.expired(sess) {
					s.deleteLocked(sess)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

// keyArgWhitelist is the subset of args that shape a session's identity.
// Everything else (session ids, confirmation flags, fed-back results)
// must not change the key between turns.
var keyArgWhitelist = []string{"hours", "focus", "database_name", "table_name"}

// DeterministicKey derives a stable session key from the tool name and
// the whitelisted args, so successive turns of the same analysis land in
// the same session without the caller carrying an identifier. The shape
// is marshalled as a map: encoding/json sorts the keys, making the
// serialization canonical.
func DeterministicKey(tool string, args map[string]interface{}) string {
	shape := map[string]interface{}{"tool": tool}
	for _, k := range keyArgWhitelist {
		if v, ok := args[k]; ok && v != nil {
			shape[k] = v
		}
	}

	raw, err := json.Marshal(shape)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(sum[:])[:20]
}
