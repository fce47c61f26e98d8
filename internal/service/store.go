package service

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"execbox/internal/sandbox/result"
	appErr "execbox/pkg/errors"
)

const (
	defaultStoreCapacity = 4096
	defaultResultTTL     = 30 * time.Minute
	janitorInterval      = time.Minute
)

// Fingerprint returns a stable hex digest of a submission's inputs,
// used to find an earlier identical submission. Both source and stdin
// must match; the same program with different input is not a duplicate.
func Fingerprint(source, stdin []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write(source)
	h.Write([]byte{0})
	h.Write(stdin)
	return hex.EncodeToString(h.Sum(nil))
}

type storedResult struct {
	res       result.SubmissionResult
	expiresAt time.Time
}

// ResultStore keeps finished submission results in memory with a TTL
// and a source fingerprint index. It is safe for concurrent use.
type ResultStore struct {
	mu          sync.RWMutex
	results     map[string]storedResult
	fingerprint map[string]string // source digest -> submission id
	capacity    int
	ttl         time.Duration
}

// NewResultStore creates a store; zero arguments select defaults.
func NewResultStore(capacity int, ttl time.Duration) *ResultStore {
	if capacity <= 0 {
		capacity = defaultStoreCapacity
	}
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	return &ResultStore{
		results:     make(map[string]storedResult),
		fingerprint: make(map[string]string),
		capacity:    capacity,
		ttl:         ttl,
	}
}

// Put records a finished result, optionally indexed by source digest.
func (s *ResultStore) Put(res result.SubmissionResult, sourceDigest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.results) >= s.capacity {
		s.evictOldestLocked()
	}
	s.results[res.SubmissionID] = storedResult{
		res:       res,
		expiresAt: time.Now().Add(s.ttl),
	}
	if sourceDigest != "" {
		s.fingerprint[sourceDigest] = res.SubmissionID
	}
	return nil
}

// Get returns the result for a submission id.
func (s *ResultStore) Get(id string) (result.SubmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.results[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return result.SubmissionResult{}, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", id)
	}
	return entry.res, nil
}

// LookupByFingerprint returns an earlier result for identical source,
// if one is still retained.
func (s *ResultStore) LookupByFingerprint(sourceDigest string) (result.SubmissionResult, bool) {
	s.mu.RLock()
	id, ok := s.fingerprint[sourceDigest]
	s.mu.RUnlock()
	if !ok {
		return result.SubmissionResult{}, false
	}
	res, err := s.Get(id)
	if err != nil {
		return result.SubmissionResult{}, false
	}
	return res, true
}

// StartJanitor evicts expired entries until ctx is done.
func (s *ResultStore) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictExpired()
			}
		}
	}()
}

func (s *ResultStore) evictExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.results {
		if now.After(entry.expiresAt) {
			delete(s.results, id)
		}
	}
	for digest, id := range s.fingerprint {
		if _, ok := s.results[id]; !ok {
			delete(s.fingerprint, digest)
		}
	}
}

// evictOldestLocked drops the entry closest to expiry to make room.
func (s *ResultStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, entry := range s.results {
		if oldestID == "" || entry.expiresAt.Before(oldest) {
			oldestID = id
			oldest = entry.expiresAt
		}
	}
	if oldestID != "" {
		delete(s.results, oldestID)
	}
}
