package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-group-buying/internal/auth"
)

type ctxKey string

const ctxKeyClaims ctxKey = "auth-claims"

// Authenticator memvalidasi bearer token (JWT HS256) + cek revocation.
type Authenticator struct {
	Secret  []byte
	Revoker auth.Revoker // optional
	Log     *slog.Logger
}

func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeFail(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		claims, err := auth.Parse(a.Secret, raw)
		if err != nil {
			a.Log.Warn("token validation failed", "error", err, "path", r.URL.Path)
			writeFail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if a.Revoker != nil {
			revoked, err := a.Revoker.Revoked(r.Context(), claims.ID)
			if err != nil {
				// Redis down: fail closed
				a.Log.Error("revocation check failed", "error", err)
				writeFail(w, http.StatusServiceUnavailable, "Authentication temporarily unavailable")
				return
			}
			if revoked {
				writeFail(w, http.StatusUnauthorized, "Token has been revoked")
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, claims)))
	})
}

// RequireCustomer: hanya customer yang boleh create/join team.
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := claimsFrom(r.Context())
		if !ok {
			writeFail(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !c.User().CanParticipate() {
			writeFail(w, http.StatusForbidden, "Only customers can take part in teams")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*auth.Claims)
	return c, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
