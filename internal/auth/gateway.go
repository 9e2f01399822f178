package auth

import (
	"net/http"
	"strings"

	"greendrake/chat/internal/apperr"
	"greendrake/chat/internal/config"
	"greendrake/chat/internal/utils"
)

// DevUserHeader carries a trusted user id in non-production environments.
const DevUserHeader = "X-User-ID"

// Gateway resolves the calling user from a request credential. REST middleware and
// the WebSocket handshake both go through Resolve.
type Gateway struct {
	secret      string
	cookieName  string
	allowHeader bool
}

// NewGateway builds a Gateway from config. The dev header is honoured only outside production.
func NewGateway(cfg *config.Config) *Gateway {
	return &Gateway{
		secret:      cfg.JwtSecret,
		cookieName:  cfg.SessionCookieName,
		allowHeader: cfg.DevAuthHeader && !cfg.IsProduction(),
	}
}

// ResolveOption tweaks which credential carriers are accepted.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	queryToken bool
}

// WithQueryToken accepts ?token=. Browsers cannot set headers on a WebSocket
// upgrade, so only the socket route enables it.
func WithQueryToken() ResolveOption {
	return func(o *resolveOptions) { o.queryToken = true }
}

// Resolve returns the caller id or an UNAUTHENTICATED error.
func (g *Gateway) Resolve(r *http.Request, opts ...ResolveOption) (utils.SixID, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	if token := bearerToken(r); token != "" {
		return g.fromToken(token)
	}
	if cookie, err := r.Cookie(g.cookieName); err == nil && cookie.Value != "" {
		return g.fromToken(cookie.Value)
	}
	if o.queryToken {
		if token := r.URL.Query().Get("token"); token != "" {
			return g.fromToken(token)
		}
	}
	if g.allowHeader {
		if raw := r.Header.Get(DevUserHeader); raw != "" {
			id, err := utils.ParseSixID(raw)
			if err != nil {
				return utils.SixID{}, apperr.Unauthorized("invalid " + DevUserHeader + " header")
			}
			return id, nil
		}
	}
	return utils.SixID{}, apperr.Unauthorized("authentication required")
}

func (g *Gateway) fromToken(token string) (utils.SixID, error) {
	claims, err := ValidateJWT(token, g.secret)
	if err != nil {
		return utils.SixID{}, apperr.Wrap(apperr.CodeUnauthenticated, "invalid or expired token", err)
	}
	id, err := utils.ParseSixID(claims.UserID)
	if err != nil {
		return utils.SixID{}, apperr.Wrap(apperr.CodeUnauthenticated, "invalid or expired token", err)
	}
	return id, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
