package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_restaurant/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RoleStaff = "staff"

type ctxKey int

const (
	identityKey ctxKey = iota
	roleKey
)

// CartMerger folds an anonymous cart into a user's cart on sign-in.
type CartMerger interface {
	MergeSessionCartIntoUserCart(ctx context.Context, sessionKey, userID string) (cart *domain.Cart, merged bool, err error)
}

type AuthConfig struct {
	JWTSecret         string
	SessionCookieName string
	SessionCookieTTL  time.Duration
	SecureCookies     bool
}

// Claims carried by bearer tokens. The subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var errInvalidToken = errors.New("invalid bearer token")

// IdentityMiddleware resolves the caller to exactly one identity: the bearer
// token's subject when present, otherwise the session cookie, issuing a new
// session cookie when there is none. A request carrying both a valid token
// and a session cookie triggers a cart merge. The cookie is expired once the
// merge succeeds; until then the request is served as the session so its cart
// stays reachable, and the next signed-in request retries.
type IdentityMiddleware struct {
	cfg    AuthConfig
	merger CartMerger
	log    *zap.SugaredLogger
}

func NewIdentityMiddleware(cfg AuthConfig, merger CartMerger, log *zap.SugaredLogger) *IdentityMiddleware {
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = "session_id"
	}
	return &IdentityMiddleware{cfg: cfg, merger: merger, log: log}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if token, ok := bearerToken(r); ok {
			claims, err := m.parseToken(token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}

			if cookie, errCookie := r.Cookie(m.cfg.SessionCookieName); errCookie == nil && cookie.Value != "" {
				_, merged, err := m.merger.MergeSessionCartIntoUserCart(ctx, cookie.Value, claims.Subject)
				if err != nil {
					m.log.Errorw("cart merge on sign-in failed", "user_id", claims.Subject, "error", err,
						"request_id", middleware.GetReqID(ctx))
				}
				if !merged {
					m.log.Warnw("serving signed-in request as session until merge succeeds",
						"user_id", claims.Subject, "request_id", middleware.GetReqID(ctx))
					ctx = context.WithValue(ctx, identityKey, domain.SessionIdentity(cookie.Value))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				m.expireSessionCookie(w)
			}

			ctx = context.WithValue(ctx, identityKey, domain.UserIdentity(claims.Subject))
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		sessionKey := ""
		if cookie, err := r.Cookie(m.cfg.SessionCookieName); err == nil {
			sessionKey = cookie.Value
		}
		if sessionKey == "" {
			sessionKey = uuid.NewString()
			m.setSessionCookie(w, sessionKey)
		}

		ctx = context.WithValue(ctx, identityKey, domain.SessionIdentity(sessionKey))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *IdentityMiddleware) parseToken(raw string) (*Claims, error) {
	if m.cfg.JWTSecret == "" {
		return nil, errInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(m.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

func (m *IdentityMiddleware) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.cfg.SessionCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *IdentityMiddleware) expireSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// RequireRole rejects requests that are not from a signed-in user with role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || !identity.IsUser() {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "sign in required")
				return
			}
			if roleFromContext(r.Context()) != role {
				respondError(w, http.StatusForbidden, "permission_denied", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok && identity.Valid()
}

// WithIdentity returns a copy of ctx carrying identity and role.
func WithIdentity(ctx context.Context, identity domain.Identity, role string) context.Context {
	ctx = context.WithValue(ctx, identityKey, identity)
	return context.WithValue(ctx, roleKey, role)
}

func roleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// RequestLogger logs one line per request with the zap logger.
func RequestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				log.Infow("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// LimitBody caps request bodies at n bytes.
func LimitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
