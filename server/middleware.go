package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"musicbox/core/access"
	"musicbox/core/auth"
	"musicbox/core/session"
	"musicbox/logger"
)

const sessionCookie = "session"

// accessLog adapts the global logger to the io.Writer expected by
// handlers.LoggingHandler.
type accessLog struct{}

func (accessLog) Write(p []byte) (int, error) {
	logger.Info("http", logger.String("access", strings.TrimSpace(string(p))))
	return len(p), nil
}

// recoveryLog receives panics caught by handlers.RecoveryHandler.
type recoveryLog struct{}

func (recoveryLog) Println(v ...interface{}) {
	logger.Error("panic while serving request", logger.String("panic", fmt.Sprint(v...)))
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}

// SessionMiddleware resolves the session cookie into an actor stored in the
// request context. Every failure leaves the request anonymous.
func (h *APIHandler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, sid, err := h.resolveActor(r, c.Value)
		if err != nil {
			if errors.Is(err, errStaleSession) {
				clearSessionCookie(w)
			} else {
				logger.Warn("session lookup failed", logger.ErrorField(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := access.WithActor(r.Context(), actor)
		ctx = withSessionID(ctx, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errStaleSession = errors.New("stale session")

type sessionIDKey struct{}

func withSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sid)
}

func sessionIDFrom(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDKey{}).(string)
	return sid
}

func (h *APIHandler) resolveActor(r *http.Request, token string) (access.Actor, string, error) {
	claims, err := h.signer.Parse(token)
	if err != nil {
		return access.Anonymous, "", fmt.Errorf("%w: %v", errStaleSession, err)
	}

	userID, err := h.sessions.Lookup(r.Context(), claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return access.Anonymous, "", fmt.Errorf("%w: %v", errStaleSession, err)
		}
		return access.Anonymous, "", err
	}
	if userID != claims.UserID {
		return access.Anonymous, "", fmt.Errorf("%w: session user mismatch", errStaleSession)
	}

	user, err := h.userRepo.GetUserByID(r.Context(), userID)
	if err != nil {
		return access.Anonymous, "", err
	}
	if user == nil {
		return access.Anonymous, "", fmt.Errorf("%w: user %d no longer exists", errStaleSession, userID)
	}
	return access.Actor{ID: user.ID, Username: user.Username}, claims.SessionID, nil
}

// RequireLogin sends anonymous callers to the login page, remembering
// where they were going.
func (h *APIHandler) RequireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if access.FromContext(r.Context()).Authenticated() {
			next(w, r)
			return
		}
		addFlash(w, "Please log in to access this page.")
		target := "/auth/login"
		if r.Method == http.MethodGet {
			target += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		redirect(w, r, target)
	}
}

// safeNext only allows redirects to paths on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}

const (
	csrfCookie = "csrf"
	csrfField  = "csrf_token"
)

type csrfNonceKey struct{}

// CSRFMiddleware makes sure every visitor carries a csrf nonce cookie so
// rendered forms can embed a token bound to it.
func (h *APIHandler) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce := ""
		if c, err := r.Cookie(csrfCookie); err == nil {
			nonce = c.Value
		}
		if nonce == "" {
			nonce = auth.NewCSRFNonce()
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookie,
				Value:    nonce,
				Path:     "/",
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfNonceKey{}, nonce)))
	})
}

// csrfToken returns the form token for the current visitor.
func (h *APIHandler) csrfToken(r *http.Request) string {
	nonce, _ := r.Context().Value(csrfNonceKey{}).(string)
	if nonce == "" {
		return ""
	}
	token, err := h.signer.CSRFToken(nonce)
	if err != nil {
		logger.Error("failed to issue csrf token", logger.ErrorField(err))
		return ""
	}
	return token
}

// validCSRF checks the posted token against the nonce cookie the request
// arrived with. The form must already be parsed for multipart bodies.
func (h *APIHandler) validCSRF(r *http.Request) bool {
	c, err := r.Cookie(csrfCookie)
	if err != nil {
		return false
	}
	return h.signer.CheckCSRF(c.Value, r.PostFormValue(csrfField))
}

func csrfRejected(w http.ResponseWriter, r *http.Request) {
	logger.Warn("csrf check failed", logger.String("method", r.Method), logger.String("path", r.URL.Path))
	http.Error(w, "Invalid or missing CSRF token", http.StatusForbidden)
}

// RequireCSRF refuses POST requests whose form lacks a valid token.
func (h *APIHandler) RequireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !h.validCSRF(r) {
			csrfRejected(w, r)
			return
		}
		next(w, r)
	}
}
