package httpapi

import (
	"net/http"

	"github.com/peakfit/gymcore/internal/audit"
	"github.com/peakfit/gymcore/internal/auth"
)

type syncResponse struct {
	TransactionID string `json:"transaction_id"`
	Total         int    `json:"total"`
	Sent          int    `json:"sent"`
	ElapsedMS     int64  `json:"elapsed_ms"`
	Aborted       bool   `json:"aborted"`
}

func (a *API) handleFullResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	result, err := a.engine.FullResync(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	fields := map[string]any{
		"total":   result.Total,
		"sent":    result.Sent,
		"aborted": result.Aborted,
	}
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		fields["username"] = principal.Username
	}
	_ = audit.LogEvent(r.Context(), "full_resync_triggered", fields)

	// An aborted run is reported in the counters, not as an error status.
	writeJSON(w, http.StatusOK, syncResponse{
		TransactionID: result.TransactionID,
		Total:         result.Total,
		Sent:          result.Sent,
		ElapsedMS:     result.Elapsed.Milliseconds(),
		Aborted:       result.Aborted,
	})
}
