package httpx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-group-buying/internal/auth"
)

type AuthHandler struct {
	Revoker auth.Revoker
	Log     *slog.Logger
}

// Register: route dipasang di dalam group yang sudah pakai Authenticator.Require.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/api/auth/logout", h.logout)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	c, ok := claimsFrom(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if c.ExpiresAt == nil {
		writeFail(w, http.StatusBadRequest, "Token has no expiry")
		return
	}
	if err := h.Revoker.Revoke(r.Context(), c.ID, c.ExpiresAt.Time); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.Log.Info("user logged out", "user_id", c.UserID)
	writeOK(w, http.StatusOK, "Logged out successfully", nil)
}
