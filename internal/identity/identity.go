// Package identity resolves the anonymous visitor a request belongs to.
// Every stored expense is scoped to that visitor's owner key.
package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	applog "otakuwallet/internal/log"
)

const (
	DefaultCookieName = "wallet_visitor"
	cookieMaxAge      = 365 * 24 * time.Hour
)

// Provider resolves the owner of a request, issuing one when the request
// carries none.
type Provider interface {
	Owner(w http.ResponseWriter, r *http.Request) (string, error)
	// Clear forgets the request's identity so the next request gets a new one.
	Clear(w http.ResponseWriter, r *http.Request)
}

var _ Provider = (*CookieProvider)(nil)

// CookieProvider keeps the owner key in a long-lived HttpOnly cookie.
type CookieProvider struct {
	name  string
	newID func() (uuid.UUID, error)
}

func NewCookieProvider(name string) *CookieProvider {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieProvider{name: name, newID: uuid.NewRandom}
}

// Owner returns the visitor id from the cookie. A missing or malformed
// cookie is replaced by a fresh random UUID written to the response.
func (p *CookieProvider) Owner(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(p.name); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String(), nil
		}
	}

	id, err := p.newID()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, p.cookie(r, id.String(), int(cookieMaxAge.Seconds())))
	applog.FromContext(r.Context()).WithComponent(applog.ComponentIdentity).
		DebugContext(r.Context(), "Issued visitor identity", applog.FieldOwner, id.String())
	return id.String(), nil
}

func (p *CookieProvider) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, p.cookie(r, "", -1))
}

func (p *CookieProvider) cookie(r *http.Request, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     p.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
}

type contextKey struct{}

// WithOwner returns ctx carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, contextKey{}, owner)
}

// OwnerFromContext returns the owner stored by Middleware, or "".
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(contextKey{}).(string)
	return owner
}

// Middleware resolves the owner once per request and stores it in the
// request context. The request logger is enriched with the owner field.
// onFail writes the response when no owner can be resolved; nil answers
// with a bare 500.
func Middleware(p Provider, onFail func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := p.Owner(w, r)
			if err != nil {
				applog.FromContext(r.Context()).WithComponent(applog.ComponentIdentity).
					ErrorContext(r.Context(), "Failed to resolve visitor identity", applog.FieldError, err)
				if onFail != nil {
					onFail(w, r)
				} else {
					http.Error(w, "identity unavailable", http.StatusInternalServerError)
				}
				return
			}
			ctx := WithOwner(r.Context(), owner)
			ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldOwner, owner))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
