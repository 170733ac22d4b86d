package auth

import (
	"context"
	"sync"
)

// APIKeyRecord is the view of a client API key needed at request time.
type APIKeyRecord struct {
	ID   string
	Name string
}

// APIKeyStore resolves plaintext API keys into records.
type APIKeyStore interface {
	Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error)
}

// InMemoryAPIKeyStore holds the keys configured at startup. Plaintext keys
// are indexed by SHA256. Argon2id hashes are checked one by one and a
// successful match is remembered under the key's SHA256.
type InMemoryAPIKeyStore struct {
	keys   map[string]*APIKeyRecord // hash(API key) -> record
	hashes []*argonEntry

	mu       sync.RWMutex
	verified map[string]*APIKeyRecord
}

type argonEntry struct {
	encoded string
	record  *APIKeyRecord
}

func NewInMemoryAPIKeyStore(plaintextKeys, argonHashes []string) *InMemoryAPIKeyStore {
	s := &InMemoryAPIKeyStore{
		keys:     make(map[string]*APIKeyRecord, len(plaintextKeys)),
		verified: make(map[string]*APIKeyRecord),
	}

	for _, key := range plaintextKeys {
		hash := HashString(key)
		s.keys[hash] = &APIKeyRecord{ID: "key-" + hash[:12], Name: "configured key"}
	}
	for _, encoded := range argonHashes {
		s.hashes = append(s.hashes, &argonEntry{
			encoded: encoded,
			record:  &APIKeyRecord{ID: "hash-" + HashString(encoded)[:12], Name: "hashed key"},
		})
	}

	return s
}

// Len returns how many keys the store accepts.
func (s *InMemoryAPIKeyStore) Len() int {
	return len(s.keys) + len(s.hashes)
}

func (s *InMemoryAPIKeyStore) Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error) {
	if plaintextKey == "" {
		return nil, ErrKeyNotFound
	}

	hash := HashString(plaintextKey)
	if rec, ok := s.keys[hash]; ok {
		return rec, nil
	}

	s.mu.RLock()
	rec, ok := s.verified[hash]
	s.mu.RUnlock()
	if ok {
		return rec, nil
	}

	for _, entry := range s.hashes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		match, err := VerifyKeyArgon2(plaintextKey, entry.encoded)
		if err != nil || !match {
			continue
		}
		s.mu.Lock()
		s.verified[hash] = entry.record
		s.mu.Unlock()
		return entry.record, nil
	}

	return nil, ErrKeyNotFound
}
