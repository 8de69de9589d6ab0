package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/peakfit/gymcore/internal/auth"
	"github.com/peakfit/gymcore/internal/obs"
	"github.com/peakfit/gymcore/internal/token"
)

// withAuth is the request gate. Requests without credentials pass through
// anonymous; a presented token must survive the revocation check and then
// signature verification before a principal is bound to the context.
// Revocation is checked first and is terminal: a revoked token is rejected
// even if it would otherwise verify.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		raw, present, err := bearerToken(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid authorization header")
			return
		}
		if !present {
			next.ServeHTTP(w, r)
			return
		}

		revoked, err := a.revoked.IsRevoked(r.Context(), raw)
		if err != nil {
			obs.Error("revocation_check_failed", err, logFields(r))
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if revoked {
			obs.Info("token_revoked", logFields(r))
			writeError(w, r, http.StatusUnauthorized, "token revoked")
			return
		}

		claims, err := a.tokens.Verify(raw)
		if err != nil {
			fields := logFields(r)
			if errors.Is(err, token.ErrTokenExpired) {
				obs.Info("token_expired", fields)
			} else {
				obs.Info("token_rejected", fields)
			}
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		role, ok := auth.ParseRole(claims.Role)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{
			Username: claims.Subject,
			Role:     role,
		})
		ctx = auth.ContextWithToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the credential from the Authorization header.
// Absence is not an error; a present but malformed header is.
func bearerToken(r *http.Request) (raw string, present bool, err error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false, nil
	}
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true, errors.New("httpapi: malformed authorization header")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true, errors.New("httpapi: empty bearer token")
	}
	return value, true, nil
}
