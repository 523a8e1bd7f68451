// Package session holds per-visitor server-side state. A Session is loaded
// once per request, mutated in memory and saved once; saves are optimistic
// and fail with ErrVersionConflict when another request saved first.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var (
	// ErrVersionConflict is returned by Save when the stored session changed since Load
	ErrVersionConflict = errors.New("session modified by a concurrent request")
)

// serializedObject matches PHP object serialization anywhere a value could
// start inside a serialized payload.
var serializedObject = regexp.MustCompile(`(^|;|\{|\})[OC]:\+?[0-9]+:"`)

// Store persists sessions
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Destroy(ctx context.Context, id string) error
}

// Session is one visitor's key/value state
type Session struct {
	ID      string
	Version int64

	values map[string]string
	dirty  bool
}

// New creates an empty, never-saved session
func New(id string) *Session {
	return &Session{ID: id, values: make(map[string]string)}
}

// FromValues rebuilds a session from stored raw values
func FromValues(id string, version int64, values map[string]string) *Session {
	s := New(id)
	s.Version = version
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Get returns the decoded value for key. Raw values that parse as JSON are
// returned decoded, anything else is returned as the raw string. Other
// PHP-serialized forms are not decoded since nothing here writes them.
// Values holding a serialized object are dropped and reported as unset.
func (s *Session) Get(key string) (interface{}, bool) {
	raw, ok := s.raw(key)
	if !ok {
		return nil, false
	}

	var decoded interface{}
	if json.Valid([]byte(raw)) {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err == nil {
			return decoded, true
		}
	}
	return raw, true
}

// GetString returns the raw stored string without JSON decoding
func (s *Session) GetString(key string) (string, bool) {
	return s.raw(key)
}

// GetInto JSON-decodes the value for key into dst. It reports false, with
// dst untouched, when the key is unset.
func (s *Session) GetInto(key string, dst interface{}) (bool, error) {
	raw, ok := s.raw(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode session key %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key and returns it. Strings are stored verbatim,
// everything else is JSON-encoded. A nil value unsets the key.
func (s *Session) Set(key string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		s.Delete(key)
		return nil, nil
	case string:
		s.values[key] = v
	case []byte:
		s.values[key] = string(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode session key %q: %w", key, err)
		}
		s.values[key] = string(encoded)
	}
	s.dirty = true
	return value, nil
}

// Delete unsets key
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Keys lists the stored keys in sorted order
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dirty reports whether the session changed since it was loaded
func (s *Session) Dirty() bool {
	return s.dirty
}

// Values returns a copy of the raw stored values
func (s *Session) Values() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Session) markClean(version int64) {
	s.Version = version
	s.dirty = false
}

func (s *Session) raw(key string) (string, bool) {
	raw, ok := s.values[key]
	if !ok {
		return "", false
	}
	if IsSerializedObject(raw) {
		s.Delete(key)
		return "", false
	}
	return raw, true
}

// IsSerializedObject reports whether raw is PHP-serialized data carrying an
// object. JSON values never are, whatever their strings contain.
func IsSerializedObject(raw string) bool {
	if json.Valid([]byte(raw)) {
		return false
	}
	return serializedObject.MatchString(raw)
}
