package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/peakfit/gymcore/internal/auth"
	"github.com/peakfit/gymcore/internal/obs"
)

// Capability declares, at registration time, who may call an operation and
// whether the caller must own the resource it touches. Handlers never make
// access decisions themselves.
type Capability struct {
	// AllowedRoles lists the roles admitted to the operation.
	AllowedRoles []auth.Role

	// OwnedBy lists the self-service roles: callers with one of these
	// roles must be the subject of the operation. Callers whose role is
	// allowed but not listed here act across the ownership boundary and
	// are exempt from the subject check.
	OwnedBy []auth.Role

	// SubjectOf extracts the username the operation targets. Required
	// when OwnedBy is non-empty.
	SubjectOf func(r *http.Request) (string, error)
}

// Require wraps a handler with the capability check: authentication,
// role admission, then ownership.
func Require(cap Capability, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "not authenticated")
			return
		}
		if !roleAllowed(cap.AllowedRoles, principal.Role) {
			obs.Info("access_denied_role", accessFields(r, principal))
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		if roleAllowed(cap.OwnedBy, principal.Role) {
			subject, err := cap.SubjectOf(r)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			if !strings.EqualFold(subject, principal.Username) {
				obs.Info("access_denied_ownership", accessFields(r, principal))
				writeError(w, r, http.StatusForbidden, "forbidden")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func roleAllowed(roles []auth.Role, role auth.Role) bool {
	for _, allowed := range roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func accessFields(r *http.Request, p auth.Principal) map[string]any {
	fields := logFields(r)
	fields["username"] = p.Username
	fields["role"] = string(p.Role)
	return fields
}

// SubjectFromJSONBody returns a subject extractor that reads a string field
// out of the JSON request body. The body is buffered and restored so the
// handler can decode it again.
func SubjectFromJSONBody(field string) func(r *http.Request) (string, error) {
	return func(r *http.Request) (string, error) {
		data, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return "", errors.New("unable to read request body")
		}
		r.Body = io.NopCloser(bytes.NewReader(data))

		var payload map[string]json.RawMessage
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", errors.New("request body must be a JSON object")
		}
		rawValue, ok := payload[field]
		if !ok {
			return "", errors.New(field + " is required")
		}
		var value string
		if err := json.Unmarshal(rawValue, &value); err != nil || strings.TrimSpace(value) == "" {
			return "", errors.New(field + " is required")
		}
		return strings.TrimSpace(value), nil
	}
}

// SubjectFromPath returns a subject extractor that takes the username from
// the final path segment under the given prefix.
func SubjectFromPath(prefix string) func(r *http.Request) (string, error) {
	return func(r *http.Request) (string, error) {
		rest := strings.TrimPrefix(r.URL.Path, prefix)
		rest = strings.Trim(rest, "/")
		if rest == "" || strings.Contains(rest, "/") {
			return "", errors.New("username missing from path")
		}
		return rest, nil
	}
}
