package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	sessionKeyPrefix = "activeSession:"
	liveKeyPrefix    = "liveAttendance:"
	nonceKeyPrefix   = "qr:"
)

// State is the typed accessor for session entries, live attendance sets and QR
// nonces stored in a [Cache].
type State struct {
	cache  Cache
	prefix string
}

// NewState returns a [State] over c. A non-empty namespace is prepended to every key.
func NewState(c Cache, namespace string) *State {
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	return &State{cache: c, prefix: prefix}
}

func (s *State) sessionKey(sessionID string) string {
	return s.prefix + sessionKeyPrefix + sessionID
}

func (s *State) liveKey(sessionID string) string {
	return s.prefix + liveKeyPrefix + sessionID
}

func (s *State) nonceKey(nonce string) string {
	return s.prefix + nonceKeyPrefix + nonce
}

// PutSession stores entry for sessionID with the given lifetime.
func (s *State) PutSession(ctx context.Context, sessionID string, entry *SessionEntry, ttl time.Duration) error {
	data, err := EncodeSessionEntry(entry)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.sessionKey(sessionID), data, ttl)
}

// ReplaceSession overwrites an existing entry and keeps its lifetime. It returns
// ErrMiss when no entry exists, so an ended session is never recreated.
func (s *State) ReplaceSession(ctx context.Context, sessionID string, entry *SessionEntry) error {
	data, err := EncodeSessionEntry(entry)
	if err != nil {
		return err
	}
	ok, err := s.cache.Replace(ctx, s.sessionKey(sessionID), data)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMiss
	}
	return nil
}

// Session returns the cached entry for sessionID, or ErrMiss.
func (s *State) Session(ctx context.Context, sessionID string) (*SessionEntry, error) {
	data, err := s.cache.Get(ctx, s.sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	entry, err := DecodeSessionEntry(data)
	if err != nil {
		return nil, fmt.Errorf("decode session entry: %w", err)
	}
	return entry, nil
}

// SessionTTL returns the remaining lifetime of the session entry, or ErrMiss.
func (s *State) SessionTTL(ctx context.Context, sessionID string) (time.Duration, error) {
	return s.cache.TTL(ctx, s.sessionKey(sessionID))
}

// ExtendSession adds extra to the session entry lifetime and carries the live set
// along with it. It returns the new lifetime, or ErrMiss when no entry exists.
func (s *State) ExtendSession(ctx context.Context, sessionID string, extra time.Duration) (time.Duration, error) {
	ttl, err := s.cache.ExpireWithExtra(ctx, s.sessionKey(sessionID), extra)
	if err != nil {
		return 0, err
	}
	if ttl > 0 {
		if _, err := s.cache.Expire(ctx, s.liveKey(sessionID), ttl); err != nil {
			return ttl, err
		}
	}
	return ttl, nil
}

// DropSession removes the session entry and its live set.
func (s *State) DropSession(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, s.sessionKey(sessionID), s.liveKey(sessionID))
}

// AddLive adds studentID to the live set of sessionID. Nothing is written when the
// session entry is gone, so a live set never outlives its session.
func (s *State) AddLive(ctx context.Context, sessionID, studentID string) (bool, error) {
	return s.cache.AddMemberWhile(ctx, s.liveKey(sessionID), s.sessionKey(sessionID), studentID)
}

// RemoveLive removes studentID from the live set of sessionID.
func (s *State) RemoveLive(ctx context.Context, sessionID, studentID string) error {
	return s.cache.RemoveMember(ctx, s.liveKey(sessionID), studentID)
}

// Live returns the live set of sessionID sorted by student id.
func (s *State) Live(ctx context.Context, sessionID string) ([]string, error) {
	members, err := s.cache.Members(ctx, s.liveKey(sessionID))
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

// PutNonce stores the nonce record with the given lifetime.
func (s *State) PutNonce(ctx context.Context, nonce string, rec *NonceRecord, ttl time.Duration) error {
	if nonce == "" {
		return errors.New("empty nonce")
	}
	data, err := EncodeNonceRecord(rec)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.nonceKey(nonce), data, ttl)
}

// ConsumeNonce atomically reads and deletes the nonce record. A second call for
// the same nonce returns ErrMiss.
func (s *State) ConsumeNonce(ctx context.Context, nonce string) (*NonceRecord, error) {
	if nonce == "" {
		return nil, ErrMiss
	}
	data, err := s.cache.Take(ctx, s.nonceKey(nonce))
	if err != nil {
		return nil, err
	}
	rec, err := DecodeNonceRecord(data)
	if err != nil {
		return nil, fmt.Errorf("decode nonce record: %w", err)
	}
	return rec, nil
}
