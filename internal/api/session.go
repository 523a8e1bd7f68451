package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/checkout"
	"storefront/internal/nonce"
	"storefront/internal/session"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Cookies
const (
	SessionCookie     = "edd_session"
	CartPresentCookie = "edd_items_in_cart"
)

// AjaxNonceHeader carries the ajax nonce; the "nonce" form field is accepted too
const AjaxNonceHeader = "X-EDD-Nonce"

const (
	sessionIDKey    = "session_id"
	maxSaveAttempts = 3
)

// sessionMiddleware makes sure every request has a session id cookie
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err != nil || !validSessionID(id) {
			id = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, id, int(h.sessionCfg.TTL.Seconds()), "/", "", h.sessionCfg.SecureCookies, true)
		}
		c.Set(sessionIDKey, id)
		c.Next()
	}
}

func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}

// requireAjaxNonce rejects cart mutations without a valid ajax nonce
func (h *Handler) requireAjaxNonce() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(AjaxNonceHeader)
		if token == "" {
			token = c.PostForm("nonce")
		}
		if !h.nonces.Verify(token, nonce.ActionAjax, sessionID(c)) {
			fail(c, http.StatusForbidden, "invalid_nonce", "Security check failed, please reload the page")
			c.Abort()
			return
		}
		c.Next()
	}
}

// withState loads the visitor's checkout state, applies fn and saves. When a
// concurrent request saved the session first, the whole cycle is retried on
// the fresh copy. An error from fn aborts without saving.
func (h *Handler) withState(c *gin.Context, fn func(st *checkout.State) error) (*checkout.State, error) {
	ctx := c.Request.Context()
	id := sessionID(c)

	for attempt := 1; ; attempt++ {
		sess, st, err := h.loadState(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(st); err != nil {
			return nil, err
		}
		if err := st.Store(sess); err != nil {
			return nil, err
		}

		err = h.sessions.Save(ctx, sess)
		if err == nil {
			h.setCartCookie(c, st)
			return st, nil
		}
		if !errors.Is(err, session.ErrVersionConflict) || attempt == maxSaveAttempts {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
		util.SessionConflictsTotal.Inc()
	}
}

// overwriteState saves st over whatever the session holds now. Used after a
// purchase, whose outcome must not be lost to a concurrent cart edit.
func (h *Handler) overwriteState(c *gin.Context, sess *session.Session, st *checkout.State) error {
	ctx := c.Request.Context()

	for attempt := 1; ; attempt++ {
		if err := st.Store(sess); err != nil {
			return err
		}
		err := h.sessions.Save(ctx, sess)
		if err == nil {
			h.setCartCookie(c, st)
			return nil
		}
		if !errors.Is(err, session.ErrVersionConflict) || attempt == maxSaveAttempts {
			return fmt.Errorf("failed to save session: %w", err)
		}
		util.SessionConflictsTotal.Inc()

		if sess, err = h.sessions.Load(ctx, sess.ID); err != nil {
			return err
		}
	}
}

func (h *Handler) loadState(ctx context.Context, id string) (*session.Session, *checkout.State, error) {
	sess, err := h.sessions.Load(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}
	st, err := checkout.LoadState(sess)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return sess, st, nil
}

// setCartCookie keeps the cart presence cookie in line with the cart
func (h *Handler) setCartCookie(c *gin.Context, st *checkout.State) {
	if !st.Cart.IsEmpty() {
		c.SetCookie(CartPresentCookie, "1", int(h.sessionCfg.CartCookieTTL.Seconds()), "/", "", h.sessionCfg.SecureCookies, false)
		return
	}
	if _, err := c.Cookie(CartPresentCookie); err == nil {
		c.SetCookie(CartPresentCookie, "", -1, "/", "", h.sessionCfg.SecureCookies, false)
	}
}
