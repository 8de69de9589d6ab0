// Package audit writes an append-only trail of security-relevant actions:
// token issuance, failed logins, lockouts, password changes and sync runs.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/peakfit/gymcore/internal/auth"
	"github.com/peakfit/gymcore/internal/obs"
	"github.com/peakfit/gymcore/internal/txid"
)

// LogEvent writes an audit log entry enriched with the transaction id and
// the caller identity when present.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if id, ok := txid.From(ctx); ok {
		entry["transaction_id"] = id
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		entry["username"] = principal.Username
		entry["role"] = string(principal.Role)
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
