// Package nonce issues short-lived tokens bound to a session and an action.
// A token stays valid for the tick it was issued in and the following one,
// so its lifetime is between half and all of the configured window.
package nonce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Actions
const (
	ActionAjax     = "edd_ajax_nonce"
	ActionPurchase = "edd-purchase-nonce"
)

const tokenLength = 10

// Manager creates and verifies nonces
type Manager struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewManager creates a manager. lifetime defaults to 24h.
func NewManager(secret string, lifetime time.Duration) *Manager {
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &Manager{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Create returns the nonce for action in session sessionID
func (m *Manager) Create(action, sessionID string) string {
	return m.token(m.tick(), action, sessionID)
}

// Verify reports whether token is a current or previous-tick nonce for
// action in session sessionID
func (m *Manager) Verify(token, action, sessionID string) bool {
	if token == "" {
		return false
	}
	tick := m.tick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(token), []byte(m.token(t, action, sessionID))) {
			return true
		}
	}
	return false
}

func (m *Manager) tick() int64 {
	half := m.lifetime.Seconds() / 2
	return int64(math.Ceil(float64(m.now().Unix()) / half))
}

func (m *Manager) token(tick int64, action, sessionID string) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%d|%s|%s", tick, action, sessionID)
	sum := hex.EncodeToString(mac.Sum(nil))
	return sum[len(sum)-tokenLength-2 : len(sum)-2]
}
