package nonce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCreateAndVerify(t *testing.T) {
	m := NewManager("secret", time.Hour)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	token := m.Create(ActionPurchase, "sess-1")
	assert.Len(t, token, tokenLength)
	assert.True(t, m.Verify(token, ActionPurchase, "sess-1"))

	assert.False(t, m.Verify(token, ActionAjax, "sess-1"))
	assert.False(t, m.Verify(token, ActionPurchase, "sess-2"))
	assert.False(t, m.Verify("", ActionPurchase, "sess-1"))

	other := NewManager("other-secret", time.Hour)
	other.now = m.now
	assert.False(t, other.Verify(token, ActionPurchase, "sess-1"))
}

func TestNonceExpires(t *testing.T) {
	m := NewManager("secret", time.Hour)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	token := m.Create(ActionAjax, "sess")

	now = now.Add(30 * time.Minute)
	assert.True(t, m.Verify(token, ActionAjax, "sess"))

	now = now.Add(90 * time.Minute)
	assert.False(t, m.Verify(token, ActionAjax, "sess"))
}
